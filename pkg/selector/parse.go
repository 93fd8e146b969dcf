package selector

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// lightSuffix marks a legacy engine that must not pierce shadow roots.
const lightSuffix = ":light"

// maxSuggestionDistance bounds the edit distance of "did you mean" hints.
const maxSuggestionDistance = 2

// Parser turns selector strings into ParsedSelectors. Engine names come from
// the evaluator registry: they are accepted as legacy segment names (with or
// without ":light") and parsed as custom pseudo-functions inside CSS.
type Parser struct {
	engines map[string]bool
	sorted  []string
}

// NewParser creates a parser that knows the given engine names. "css" is
// always known.
func NewParser(engineNames ...string) *Parser {
	p := &Parser{engines: map[string]bool{"css": true}}
	for _, name := range engineNames {
		p.engines[strings.ToLower(name)] = true
	}
	for name := range p.engines {
		p.sorted = append(p.sorted, name)
	}
	sort.Strings(p.sorted)
	return p
}

// Names returns the engine names the parser accepts, sorted.
func (p *Parser) Names() []string {
	return append([]string(nil), p.sorted...)
}

func (p *Parser) known(name string) bool {
	return p.engines[strings.TrimSuffix(name, lightSuffix)]
}

// suggest returns the closest known engine name, or "" if none is close.
func (p *Parser) suggest(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range p.sorted {
		if d := edlib.LevenshteinDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// ParseCSS parses a CSS body with the parser's engine names as custom
// pseudo-functions.
func (p *Parser) ParseCSS(source string) (SelectorList, []string, error) {
	return ParseCSS(source, p.engines)
}

// Parse parses a legacy chain and translates it into a SelectorList.
func (p *Parser) Parse(selector string) (*ParsedSelector, error) {
	v1, err := ParseV1(selector)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for _, part := range v1.Parts {
		if !p.known(part.Name) {
			return nil, types.NewUnknownEngineError(part.Name, selector, p.suggest(strings.TrimSuffix(part.Name, lightSuffix)))
		}
		names[part.Name] = true
	}

	chain := func(parts []Part, firstTextIntoScope bool) (*ComplexSelector, error) {
		result := &ComplexSelector{}
		for _, part := range parts {
			name := part.Name
			wrapInLight := false
			if strings.HasSuffix(name, lightSuffix) {
				wrapInLight = true
				name = strings.TrimSuffix(name, lightSuffix)
			}

			var simple SimpleSelector
			switch name {
			case "css":
				list, cssNames, err := p.ParseCSS(part.Body)
				if err != nil {
					return nil, err
				}
				for _, n := range cssNames {
					names[n] = true
				}
				simple = callWith("is", list...)
			case "text":
				simple = textToSimple(part.Body)
			default:
				simple = callWith(name, String(part.Body))
			}
			if wrapInLight {
				simple = callWith("light", simpleToComplex(simple))
			}

			if name == "text" {
				if n := len(result.Clauses); n > 0 {
					result.Clauses[n-1].Combinator = SelfOrAncestor
				} else if firstTextIntoScope {
					result.Clauses = append(result.Clauses, Clause{Simple: callWith("scope"), Combinator: SelfOrAncestor})
				}
			}
			result.Clauses = append(result.Clauses, Clause{Simple: simple})
		}
		return result, nil
	}

	capture := v1.CaptureIndex()
	head, err := chain(v1.Parts[:capture+1], false)
	if err != nil {
		return nil, err
	}
	if capture+1 < len(v1.Parts) {
		tail, err := chain(v1.Parts[capture+1:], true)
		if err != nil {
			return nil, err
		}
		last := &head.Clauses[len(head.Clauses)-1].Simple
		last.Functions = append(last.Functions, Function{Name: "has", Args: SelectorList{tail}})
	}

	sortedNames := make([]string, 0, len(names))
	for n := range names {
		sortedNames = append(sortedNames, n)
	}
	sort.Strings(sortedNames)

	return &ParsedSelector{
		Source: selector,
		V1:     v1,
		V2:     SelectorList{head},
		Names:  sortedNames,
	}, nil
}

// textToSimple translates a text engine body: quoted bodies match strictly,
// /pattern/flags bodies are regular expressions, anything else is a
// case-insensitive substring match.
func textToSimple(body string) SimpleSelector {
	switch {
	case len(body) > 1 && body[0] == '"' && body[len(body)-1] == '"',
		len(body) > 1 && body[0] == '\'' && body[len(body)-1] == '\'':
		return callWith("text-is", String(unescapeText(body[1:len(body)-1])))
	case strings.HasPrefix(body, "/") && strings.LastIndexByte(body, '/') > 0:
		last := strings.LastIndexByte(body, '/')
		return callWith("text-matches", String(body[1:last]), String(body[last+1:]))
	default:
		return callWith("text", String(body))
	}
}

func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
