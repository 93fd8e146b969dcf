package csstoken

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

const (
	eof              rune = -1
	replacementChar  rune = 0xFFFD
	maxAllowedCodept rune = 0x10FFFF
)

// Tokenizer scans a preprocessed codepoint buffer into CSS tokens.
type Tokenizer struct {
	input []rune
	pos   int  // index of the next codepoint to consume
	code  rune // last consumed codepoint
	line  int
	col   int
	// column before the last consumed newline, restored by reconsume
	lastCol int
	tokens  []Token
}

// NewTokenizer creates a tokenizer for the given input.
func NewTokenizer(input string) *Tokenizer {
	return &Tokenizer{input: preprocess(input), line: 1, code: eof}
}

// Tokenize scans the entire input and returns all tokens, terminated by EOF.
func Tokenize(input string) ([]Token, error) {
	return NewTokenizer(input).Tokenize()
}

// Tokenize scans the entire input and returns all tokens.
func (t *Tokenizer) Tokenize() ([]Token, error) {
	budget := 2 * len(t.input)
	iterations := 0
	for t.next(1) != eof {
		t.tokens = append(t.tokens, t.consumeToken())
		iterations++
		if iterations > budget {
			return nil, types.NewTokenizerError("tokenizer exceeded its iteration budget")
		}
	}
	if n := len(t.tokens); n == 0 || t.tokens[n-1].Type != TokenEOF {
		t.tokens = append(t.tokens, Token{Type: TokenEOF, Pos: t.pos, Line: t.line, Col: t.col + 1})
	}
	return t.tokens, nil
}

// preprocess normalizes newlines, replaces NUL and decodes the input into
// codepoints. Invalid UTF-8 decodes to U+FFFD.
func preprocess(s string) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '\r':
			if i < len(s) && s[i] == '\n' {
				i++
			}
			r = '\n'
		case '\f':
			r = '\n'
		case 0:
			r = replacementChar
		}
		out = append(out, r)
	}
	return out
}

// next peeks the n-th codepoint after the current one (n >= 1).
func (t *Tokenizer) next(n int) rune {
	i := t.pos + n - 1
	if i < 0 || i >= len(t.input) {
		return eof
	}
	return t.input[i]
}

// consume advances by one codepoint and returns it.
func (t *Tokenizer) consume() rune {
	if t.pos >= len(t.input) {
		t.pos++
		t.code = eof
		return eof
	}
	t.code = t.input[t.pos]
	t.pos++
	if t.code == '\n' {
		t.line++
		t.lastCol = t.col
		t.col = 0
	} else {
		t.col++
	}
	return t.code
}

func (t *Tokenizer) consumeN(n int) {
	for i := 0; i < n; i++ {
		t.consume()
	}
}

// reconsume pushes the current codepoint back.
func (t *Tokenizer) reconsume() {
	t.pos--
	if t.code == '\n' {
		t.line--
		t.col = t.lastCol
	} else if t.code != eof {
		t.col--
	}
	if t.pos > 0 && t.pos-1 < len(t.input) {
		t.code = t.input[t.pos-1]
	} else {
		t.code = eof
	}
}

func (t *Tokenizer) consumeToken() Token {
	t.consumeComments()
	start, line, col := t.pos, t.line, t.col+1
	tok := t.consumeTokenBody()
	tok.Pos, tok.Line, tok.Col = start, line, col
	end := t.pos
	if end > len(t.input) {
		end = len(t.input)
	}
	if start < end {
		tok.Raw = string(t.input[start:end])
	}
	return tok
}

func (t *Tokenizer) consumeTokenBody() Token {
	c := t.consume()
	switch {
	case isWhitespace(c):
		for isWhitespace(t.next(1)) {
			t.consume()
		}
		return Token{Type: TokenWhitespace, Value: " "}
	case c == '"' || c == '\'':
		return t.consumeString(c)
	case c == '#':
		if isNameChar(t.next(1)) || validEscape(t.next(1), t.next(2)) {
			tok := Token{Type: TokenHash}
			tok.HashID = wouldStartIdentifier(t.next(1), t.next(2), t.next(3))
			tok.Value = t.consumeName()
			return tok
		}
		return delim(c)
	case c == '$':
		if t.next(1) == '=' {
			t.consume()
			return Token{Type: TokenSuffixMatch, Value: "$="}
		}
		return delim(c)
	case c == '(':
		return Token{Type: TokenOpenParen, Value: "("}
	case c == ')':
		return Token{Type: TokenCloseParen, Value: ")"}
	case c == '*':
		if t.next(1) == '=' {
			t.consume()
			return Token{Type: TokenSubstringMatch, Value: "*="}
		}
		return delim(c)
	case c == '+':
		if t.startsWithNumber() {
			t.reconsume()
			return t.consumeNumeric()
		}
		return delim(c)
	case c == ',':
		return Token{Type: TokenComma, Value: ","}
	case c == '-':
		if t.startsWithNumber() {
			t.reconsume()
			return t.consumeNumeric()
		}
		if t.next(1) == '-' && t.next(2) == '>' {
			t.consumeN(2)
			return Token{Type: TokenCDC, Value: "-->"}
		}
		if t.startsWithIdentifier() {
			t.reconsume()
			return t.consumeIdentLike()
		}
		return delim(c)
	case c == '.':
		if t.startsWithNumber() {
			t.reconsume()
			return t.consumeNumeric()
		}
		return delim(c)
	case c == ':':
		return Token{Type: TokenColon, Value: ":"}
	case c == ';':
		return Token{Type: TokenSemicolon, Value: ";"}
	case c == '<':
		if t.next(1) == '!' && t.next(2) == '-' && t.next(3) == '-' {
			t.consumeN(3)
			return Token{Type: TokenCDO, Value: "<!--"}
		}
		return delim(c)
	case c == '@':
		if wouldStartIdentifier(t.next(1), t.next(2), t.next(3)) {
			return Token{Type: TokenAtKeyword, Value: t.consumeName()}
		}
		return delim(c)
	case c == '[':
		return Token{Type: TokenOpenSquare, Value: "["}
	case c == '\\':
		if t.startsWithValidEscape() {
			t.reconsume()
			return t.consumeIdentLike()
		}
		return delim(c)
	case c == ']':
		return Token{Type: TokenCloseSquare, Value: "]"}
	case c == '^':
		if t.next(1) == '=' {
			t.consume()
			return Token{Type: TokenPrefixMatch, Value: "^="}
		}
		return delim(c)
	case c == '{':
		return Token{Type: TokenOpenCurly, Value: "{"}
	case c == '}':
		return Token{Type: TokenCloseCurly, Value: "}"}
	case isDigit(c):
		t.reconsume()
		return t.consumeNumeric()
	case isNameStartChar(c):
		t.reconsume()
		return t.consumeIdentLike()
	case c == '|':
		if t.next(1) == '=' {
			t.consume()
			return Token{Type: TokenDashMatch, Value: "|="}
		}
		if t.next(1) == '|' {
			t.consume()
			return Token{Type: TokenColumn, Value: "||"}
		}
		return delim(c)
	case c == '~':
		if t.next(1) == '=' {
			t.consume()
			return Token{Type: TokenIncludeMatch, Value: "~="}
		}
		return delim(c)
	case c == eof:
		return Token{Type: TokenEOF}
	default:
		return delim(c)
	}
}

func delim(c rune) Token {
	return Token{Type: TokenDelim, Value: string(c)}
}

func (t *Tokenizer) consumeComments() {
	for t.next(1) == '/' && t.next(2) == '*' {
		t.consumeN(2)
		for {
			c := t.consume()
			if c == '*' && t.next(1) == '/' {
				t.consume()
				break
			}
			if c == eof {
				return
			}
		}
	}
}

func (t *Tokenizer) consumeNumeric() Token {
	num, repr, typ := t.consumeNumber()
	if wouldStartIdentifier(t.next(1), t.next(2), t.next(3)) {
		return Token{Type: TokenDimension, Num: num, Repr: repr, NumType: typ, Unit: t.consumeName()}
	}
	if t.next(1) == '%' {
		t.consume()
		return Token{Type: TokenPercentage, Num: num, Repr: repr, NumType: typ}
	}
	return Token{Type: TokenNumber, Num: num, Repr: repr, NumType: typ}
}

func (t *Tokenizer) consumeIdentLike() Token {
	name := t.consumeName()
	if strings.EqualFold(name, "url") && t.next(1) == '(' {
		t.consume()
		for isWhitespace(t.next(1)) && isWhitespace(t.next(2)) {
			t.consume()
		}
		n1, n2 := t.next(1), t.next(2)
		if n1 == '"' || n1 == '\'' || (isWhitespace(n1) && (n2 == '"' || n2 == '\'')) {
			return Token{Type: TokenFunction, Value: name}
		}
		return t.consumeURL()
	}
	if t.next(1) == '(' {
		t.consume()
		return Token{Type: TokenFunction, Value: name}
	}
	return Token{Type: TokenIdent, Value: name}
}

func (t *Tokenizer) consumeString(ending rune) Token {
	var sb strings.Builder
	for {
		c := t.consume()
		switch {
		case c == ending || c == eof:
			return Token{Type: TokenString, Value: sb.String()}
		case c == '\n':
			t.reconsume()
			return Token{Type: TokenBadString, Value: sb.String()}
		case c == '\\':
			switch {
			case t.next(1) == eof:
			case t.next(1) == '\n':
				t.consume()
			default:
				sb.WriteRune(t.consumeEscape())
			}
		default:
			sb.WriteRune(c)
		}
	}
}

func (t *Tokenizer) consumeURL() Token {
	var sb strings.Builder
	for isWhitespace(t.next(1)) {
		t.consume()
	}
	if t.next(1) == eof {
		return Token{Type: TokenURL}
	}
	for {
		c := t.consume()
		switch {
		case c == ')' || c == eof:
			return Token{Type: TokenURL, Value: sb.String()}
		case isWhitespace(c):
			for isWhitespace(t.next(1)) {
				t.consume()
			}
			if t.next(1) == ')' || t.next(1) == eof {
				t.consume()
				return Token{Type: TokenURL, Value: sb.String()}
			}
			t.consumeBadURLRemnants()
			return Token{Type: TokenBadURL}
		case c == '"' || c == '\'' || c == '(' || isNonPrintable(c):
			t.consumeBadURLRemnants()
			return Token{Type: TokenBadURL}
		case c == '\\':
			if t.startsWithValidEscape() {
				sb.WriteRune(t.consumeEscape())
			} else {
				t.consumeBadURLRemnants()
				return Token{Type: TokenBadURL}
			}
		default:
			sb.WriteRune(c)
		}
	}
}

func (t *Tokenizer) consumeBadURLRemnants() {
	for {
		c := t.consume()
		if c == ')' || c == eof {
			return
		}
		if t.startsWithValidEscape() {
			t.consumeEscape()
		}
	}
}

// consumeEscape consumes the codepoints after a backslash. A malformed
// escape yields U+FFFD instead of failing.
func (t *Tokenizer) consumeEscape() rune {
	c := t.consume()
	if isHexDigit(c) {
		digits := []rune{c}
		for i := 0; i < 5 && isHexDigit(t.next(1)); i++ {
			digits = append(digits, t.consume())
		}
		if isWhitespace(t.next(1)) {
			t.consume()
		}
		v, err := strconv.ParseInt(string(digits), 16, 32)
		value := rune(v)
		if err != nil || value == 0 || value > maxAllowedCodept || (value >= 0xD800 && value <= 0xDFFF) {
			value = replacementChar
		}
		return value
	}
	if c == eof {
		return replacementChar
	}
	return c
}

func (t *Tokenizer) consumeName() string {
	var sb strings.Builder
	for {
		c := t.consume()
		switch {
		case isNameChar(c):
			sb.WriteRune(c)
		case t.startsWithValidEscape():
			sb.WriteRune(t.consumeEscape())
		default:
			t.reconsume()
			return sb.String()
		}
	}
}

func (t *Tokenizer) consumeNumber() (float64, string, NumericType) {
	var repr strings.Builder
	typ := Integer
	if n := t.next(1); n == '+' || n == '-' {
		repr.WriteRune(t.consume())
	}
	for isDigit(t.next(1)) {
		repr.WriteRune(t.consume())
	}
	if t.next(1) == '.' && isDigit(t.next(2)) {
		repr.WriteRune(t.consume())
		repr.WriteRune(t.consume())
		typ = Number
		for isDigit(t.next(1)) {
			repr.WriteRune(t.consume())
		}
	}
	c1, c2, c3 := t.next(1), t.next(2), t.next(3)
	if (c1 == 'e' || c1 == 'E') && isDigit(c2) {
		repr.WriteRune(t.consume())
		repr.WriteRune(t.consume())
		typ = Number
		for isDigit(t.next(1)) {
			repr.WriteRune(t.consume())
		}
	} else if (c1 == 'e' || c1 == 'E') && (c2 == '+' || c2 == '-') && isDigit(c3) {
		repr.WriteRune(t.consume())
		repr.WriteRune(t.consume())
		repr.WriteRune(t.consume())
		typ = Number
		for isDigit(t.next(1)) {
			repr.WriteRune(t.consume())
		}
	}
	s := repr.String()
	// Overflow still yields ±Inf, which is the value CSS asks for.
	v, _ := strconv.ParseFloat(s, 64)
	return v, s, typ
}

// startsWithValidEscape checks the current codepoint and the next one.
func (t *Tokenizer) startsWithValidEscape() bool {
	return validEscape(t.code, t.next(1))
}

func (t *Tokenizer) startsWithIdentifier() bool {
	return wouldStartIdentifier(t.code, t.next(1), t.next(2))
}

func (t *Tokenizer) startsWithNumber() bool {
	return wouldStartNumber(t.code, t.next(1), t.next(2))
}

func validEscape(c1, c2 rune) bool {
	return c1 == '\\' && c2 != '\n'
}

func wouldStartIdentifier(c1, c2, c3 rune) bool {
	switch {
	case c1 == '-':
		return isNameStartChar(c2) || c2 == '-' || validEscape(c2, c3)
	case isNameStartChar(c1):
		return true
	case c1 == '\\':
		return validEscape(c1, c2)
	default:
		return false
	}
}

func wouldStartNumber(c1, c2, c3 rune) bool {
	switch {
	case c1 == '+' || c1 == '-':
		return isDigit(c2) || (c2 == '.' && isDigit(c3))
	case c1 == '.':
		return isDigit(c2)
	default:
		return isDigit(c1)
	}
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameStartChar(c rune) bool {
	return isLetter(c) || c >= 0x80 || c == '_'
}

func isNameChar(c rune) bool {
	return isNameStartChar(c) || isDigit(c) || c == '-'
}

func isNonPrintable(c rune) bool {
	return (c >= 0 && c <= 8) || c == 0x0B || (c >= 0x0E && c <= 0x1F) || c == 0x7F
}

func isWhitespace(c rune) bool {
	return c == '\n' || c == '\t' || c == ' '
}
