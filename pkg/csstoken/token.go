// Package csstoken implements the CSS Syntax Level 3 tokenizer used by the
// selector parser, plus serialization of token streams back to source.
package csstoken

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenWhitespace TokenType = iota // run of spaces, tabs, newlines
	TokenIdent                       // foo
	TokenFunction                    // foo(
	TokenAtKeyword                   // @foo
	TokenHash                        // #foo
	TokenString                      // "foo" or 'foo'
	TokenBadString                   // string broken by a newline
	TokenURL                         // url(foo)
	TokenBadURL                      // url( with illegal content
	TokenDelim                       // any other single codepoint
	TokenNumber                      // 12, +1.5, -3e4
	TokenPercentage                  // 50%
	TokenDimension                   // 10px

	// Attribute matchers
	TokenIncludeMatch   // ~=
	TokenDashMatch      // |=
	TokenPrefixMatch    // ^=
	TokenSuffixMatch    // $=
	TokenSubstringMatch // *=
	TokenColumn         // ||

	TokenCDO // <!--
	TokenCDC // -->

	// Punctuation
	TokenColon       // :
	TokenSemicolon   // ;
	TokenComma       // ,
	TokenOpenSquare  // [
	TokenCloseSquare // ]
	TokenOpenParen   // (
	TokenCloseParen  // )
	TokenOpenCurly   // {
	TokenCloseCurly  // }

	TokenEOF // end of input
)

// NumericType distinguishes integer from non-integer numeric tokens.
type NumericType int

const (
	Integer NumericType = iota
	Number
)

// Token represents a single lexical token.
type Token struct {
	Type  TokenType
	Value string // decoded value: ident/function/at-keyword name, string contents, hash name, url, delim codepoint

	Num     float64     // numeric value (Number, Percentage, Dimension)
	Repr    string      // numeric source representation
	NumType NumericType // Integer or Number
	Unit    string      // Dimension unit
	HashID  bool        // Hash whose name would start an identifier

	Raw  string // source text the token was read from
	Pos  int    // codepoint offset in the preprocessed input
	Line int    // 1-based
	Col  int    // 1-based
}

// IsDelim reports whether the token is a Delim with the given codepoint.
func (t Token) IsDelim(value string) bool {
	return t.Type == TokenDelim && t.Value == value
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenWhitespace:
		return "WHITESPACE"
	case TokenIdent:
		return "IDENT"
	case TokenFunction:
		return "FUNCTION"
	case TokenAtKeyword:
		return "AT-KEYWORD"
	case TokenHash:
		return "HASH"
	case TokenString:
		return "STRING"
	case TokenBadString:
		return "BAD-STRING"
	case TokenURL:
		return "URL"
	case TokenBadURL:
		return "BAD-URL"
	case TokenDelim:
		return "DELIM"
	case TokenNumber:
		return "NUMBER"
	case TokenPercentage:
		return "PERCENTAGE"
	case TokenDimension:
		return "DIMENSION"
	case TokenIncludeMatch:
		return "INCLUDE-MATCH"
	case TokenDashMatch:
		return "DASH-MATCH"
	case TokenPrefixMatch:
		return "PREFIX-MATCH"
	case TokenSuffixMatch:
		return "SUFFIX-MATCH"
	case TokenSubstringMatch:
		return "SUBSTRING-MATCH"
	case TokenColumn:
		return "COLUMN"
	case TokenCDO:
		return "CDO"
	case TokenCDC:
		return "CDC"
	case TokenColon:
		return "COLON"
	case TokenSemicolon:
		return "SEMICOLON"
	case TokenComma:
		return "COMMA"
	case TokenOpenSquare:
		return "LBRACKET"
	case TokenCloseSquare:
		return "RBRACKET"
	case TokenOpenParen:
		return "LPAREN"
	case TokenCloseParen:
		return "RPAREN"
	case TokenOpenCurly:
		return "LBRACE"
	case TokenCloseCurly:
		return "RBRACE"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}
