package csstoken

import (
	"strconv"
	"strings"
)

// Source serializes a single token so that re-tokenizing it yields an
// equal token. Whitespace always serializes as a single space.
func (t Token) Source() string {
	switch t.Type {
	case TokenWhitespace:
		return " "
	case TokenIdent:
		return EscapeIdent(t.Value)
	case TokenFunction:
		return EscapeIdent(t.Value) + "("
	case TokenAtKeyword:
		return "@" + EscapeIdent(t.Value)
	case TokenHash:
		if t.HashID {
			return "#" + EscapeIdent(t.Value)
		}
		return "#" + escapeName(t.Value)
	case TokenString:
		return QuoteString(t.Value)
	case TokenBadString, TokenBadURL:
		return t.Raw
	case TokenURL:
		return "url(" + escapeURL(t.Value) + ")"
	case TokenDelim:
		if t.Value == "\\" {
			return "\\\n"
		}
		return t.Value
	case TokenNumber:
		return t.Repr
	case TokenPercentage:
		return t.Repr + "%"
	case TokenDimension:
		unit := EscapeIdent(t.Unit)
		// "1" + "e3" would re-tokenize as the number 1e3.
		if len(unit) > 1 && (unit[0] == 'e' || unit[0] == 'E') && (unit[1] == '-' || isDigit(rune(unit[1]))) {
			unit = `\65 ` + unit[1:]
		}
		return t.Repr + unit
	case TokenEOF:
		return ""
	default:
		return t.Value
	}
}

// ToSource serializes a token stream.
func ToSource(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Source())
	}
	return sb.String()
}

// EscapeIdent escapes s so it tokenizes as a single identifier.
func EscapeIdent(s string) string {
	if s == "-" {
		return `\-`
	}
	var sb strings.Builder
	runes := []rune(s)
	for i, c := range runes {
		switch {
		case c == 0:
			sb.WriteRune(replacementChar)
		case (c >= 0x1 && c <= 0x1F) || c == 0x7F ||
			(i == 0 && isDigit(c)) ||
			(i == 1 && isDigit(c) && runes[0] == '-'):
			sb.WriteString(`\` + strconv.FormatInt(int64(c), 16) + " ")
		case c >= 0x80 || c == '-' || c == '_' || isDigit(c) || isLetter(c):
			sb.WriteRune(c)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// escapeName escapes s as a sequence of name codepoints with no
// identifier-start constraint (unrestricted hash names).
func escapeName(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch {
		case c == 0:
			sb.WriteRune(replacementChar)
		case (c >= 0x1 && c <= 0x1F) || c == 0x7F:
			sb.WriteString(`\` + strconv.FormatInt(int64(c), 16) + " ")
		case c >= 0x80 || c == '-' || c == '_' || isDigit(c) || isLetter(c):
			sb.WriteRune(c)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// EscapeString escapes s for use between double quotes.
func EscapeString(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch {
		case c == 0:
			sb.WriteRune(replacementChar)
		case (c >= 0x1 && c <= 0x1F) || c == 0x7F:
			sb.WriteString(`\` + strconv.FormatInt(int64(c), 16) + " ")
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(c)
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// QuoteString returns s as a double-quoted CSS string.
func QuoteString(s string) string {
	return `"` + EscapeString(s) + `"`
}

func escapeURL(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch {
		case c == 0:
			sb.WriteRune(replacementChar)
		case isNonPrintable(c) || isWhitespace(c):
			sb.WriteString(`\` + strconv.FormatInt(int64(c), 16) + " ")
		case c == '"' || c == '\'' || c == '(' || c == ')' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(c)
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}
