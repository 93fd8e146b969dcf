package selector

import (
	"errors"
	"sort"
	"strings"

	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// cssParser is a recursive descent parser over a CSS token stream.
type cssParser struct {
	source      string
	tokens      []csstoken.Token
	pos         int
	customNames map[string]bool
	names       map[string]bool
}

// ParseCSS parses a CSS-like selector list. Pseudo-classes named in
// customNames become Function calls with parsed arguments; every other
// pseudo-class stays in the raw CSS fragment. It returns the list and the
// custom names it referenced, sorted.
func ParseCSS(source string, customNames map[string]bool) (SelectorList, []string, error) {
	tokens, err := csstoken.Tokenize(source)
	if err != nil {
		var se *types.SelectorError
		if errors.As(err, &se) {
			se.WithSelector(source)
		}
		return nil, nil, err
	}
	for _, tok := range tokens {
		if unsupported(tok) {
			return nil, nil, types.NewUnsupportedTokenError(tok.Source(), source)
		}
	}

	p := &cssParser{source: source, tokens: tokens, customNames: customNames, names: make(map[string]bool)}
	list, err := p.parseArguments()
	if err != nil {
		return nil, nil, err
	}
	if !p.isEOF() {
		return nil, nil, p.unexpected()
	}
	for _, arg := range list {
		if _, ok := arg.(*ComplexSelector); !ok {
			return nil, nil, types.NewParseError("Expected a selector, got a literal", source)
		}
	}

	names := make([]string, 0, len(p.names))
	for name := range p.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return list, names, nil
}

func unsupported(tok csstoken.Token) bool {
	switch tok.Type {
	case csstoken.TokenAtKeyword, csstoken.TokenBadString, csstoken.TokenBadURL,
		csstoken.TokenColumn, csstoken.TokenCDO, csstoken.TokenCDC,
		csstoken.TokenSemicolon, csstoken.TokenOpenCurly, csstoken.TokenCloseCurly,
		csstoken.TokenURL, csstoken.TokenPercentage:
		return true
	}
	return false
}

// current returns the current token.
func (p *cssParser) current() csstoken.Token {
	if p.pos >= len(p.tokens) {
		return csstoken.Token{Type: csstoken.TokenEOF}
	}
	return p.tokens[p.pos]
}

// peek returns the next token without consuming it.
func (p *cssParser) peek() csstoken.Token {
	if p.pos+1 >= len(p.tokens) {
		return csstoken.Token{Type: csstoken.TokenEOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes the current token and returns it.
func (p *cssParser) advance() csstoken.Token {
	tok := p.current()
	p.pos++
	return tok
}

func (p *cssParser) unexpected() error {
	return types.NewUnexpectedTokenError(p.current().Source(), p.source)
}

func (p *cssParser) is(tt csstoken.TokenType) bool {
	return p.current().Type == tt
}

func (p *cssParser) isEOF() bool {
	return p.is(csstoken.TokenEOF)
}

func (p *cssParser) skipWhitespace() {
	for p.is(csstoken.TokenWhitespace) {
		p.pos++
	}
}

// combinator reports the clause combinator at the cursor and its token width.
func (p *cssParser) combinator() (Combinator, int) {
	tok := p.current()
	switch {
	case tok.IsDelim(">") && p.peek().IsDelim("="):
		return SelfOrAncestor, 2
	case tok.IsDelim(">"):
		return Child, 1
	case tok.IsDelim("+"):
		return AdjacentSibling, 1
	case tok.IsDelim("~"):
		return GeneralSibling, 1
	}
	return Descendant, 0
}

func (p *cssParser) isClauseEnd() bool {
	if _, n := p.combinator(); n > 0 {
		return true
	}
	switch p.current().Type {
	case csstoken.TokenComma, csstoken.TokenCloseParen, csstoken.TokenEOF, csstoken.TokenWhitespace:
		return true
	}
	return false
}

// parseArguments parses a comma-separated list of arguments.
func (p *cssParser) parseArguments() (SelectorList, error) {
	first, err := p.parseArgument()
	if err != nil {
		return nil, err
	}
	list := SelectorList{first}
	for {
		p.skipWhitespace()
		if !p.is(csstoken.TokenComma) {
			break
		}
		p.advance()
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		list = append(list, arg)
	}
	return list, nil
}

func (p *cssParser) parseArgument() (Arg, error) {
	p.skipWhitespace()
	switch p.current().Type {
	case csstoken.TokenNumber:
		return Number(p.advance().Num), nil
	case csstoken.TokenString:
		return String(p.advance().Value), nil
	}
	return p.parseComplexSelector()
}

func (p *cssParser) parseComplexSelector() (*ComplexSelector, error) {
	result := &ComplexSelector{}
	p.skipWhitespace()
	if _, n := p.combinator(); n > 0 {
		// A relative selector starts at an implicit :scope.
		result.Clauses = append(result.Clauses, Clause{Simple: callWith("scope")})
	} else {
		simple, err := p.parseSimpleSelector()
		if err != nil {
			return nil, err
		}
		result.Clauses = append(result.Clauses, Clause{Simple: simple})
	}

	for {
		p.skipWhitespace()
		if comb, n := p.combinator(); n > 0 {
			result.Clauses[len(result.Clauses)-1].Combinator = comb
			p.pos += n
			p.skipWhitespace()
		} else if p.isClauseEnd() {
			break
		}
		simple, err := p.parseSimpleSelector()
		if err != nil {
			return nil, err
		}
		result.Clauses = append(result.Clauses, Clause{Simple: simple})
	}
	return result, nil
}

func (p *cssParser) parseSimpleSelector() (SimpleSelector, error) {
	var raw strings.Builder
	var functions []Function

	for !p.isClauseEnd() {
		tok := p.current()
		switch {
		case tok.Type == csstoken.TokenIdent || tok.IsDelim("*") || tok.Type == csstoken.TokenHash:
			raw.WriteString(p.advance().Source())

		case tok.IsDelim("."):
			p.advance()
			if !p.is(csstoken.TokenIdent) {
				return SimpleSelector{}, p.unexpected()
			}
			raw.WriteString("." + p.advance().Source())

		case tok.Type == csstoken.TokenColon:
			p.advance()
			switch p.current().Type {
			case csstoken.TokenIdent:
				name := strings.ToLower(p.current().Value)
				if !p.customNames[name] {
					raw.WriteString(":" + p.advance().Source())
					continue
				}
				p.advance()
				functions = append(functions, Function{Name: name})
				p.names[name] = true

			case csstoken.TokenFunction:
				name := strings.ToLower(p.advance().Value)
				if !p.customNames[name] {
					raw.WriteString(":" + csstoken.EscapeIdent(name) + "(" + p.builtinArguments() + ")")
				} else {
					args, err := p.parseArguments()
					if err != nil {
						return SimpleSelector{}, err
					}
					functions = append(functions, Function{Name: name, Args: args})
					p.names[name] = true
				}
				p.skipWhitespace()
				if !p.is(csstoken.TokenCloseParen) {
					return SimpleSelector{}, p.unexpected()
				}
				p.advance()

			default:
				return SimpleSelector{}, p.unexpected()
			}

		case tok.Type == csstoken.TokenOpenSquare:
			p.advance()
			raw.WriteString("[")
			for !p.is(csstoken.TokenCloseSquare) && !p.isEOF() {
				raw.WriteString(p.advance().Source())
			}
			if !p.is(csstoken.TokenCloseSquare) {
				return SimpleSelector{}, p.unexpected()
			}
			p.advance()
			raw.WriteString("]")

		default:
			return SimpleSelector{}, p.unexpected()
		}
	}

	if raw.Len() == 0 && len(functions) == 0 {
		return SimpleSelector{}, p.unexpected()
	}
	return SimpleSelector{CSS: raw.String(), Functions: functions}, nil
}

// builtinArguments copies the tokens of a pass-through pseudo-class call up
// to its closing paren, which is left for the caller.
func (p *cssParser) builtinArguments() string {
	var sb strings.Builder
	balance := 1
	for !p.isEOF() {
		switch p.current().Type {
		case csstoken.TokenOpenParen, csstoken.TokenFunction:
			balance++
		case csstoken.TokenCloseParen:
			balance--
		}
		if balance == 0 {
			break
		}
		sb.WriteString(p.advance().Source())
	}
	return sb.String()
}
