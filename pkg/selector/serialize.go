package selector

import (
	"strconv"
	"strings"

	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
)

// Serialize renders a SelectorList back to CSS-like text that ParseCSS
// accepts.
func Serialize(list SelectorList) string {
	parts := make([]string, len(list))
	for i, arg := range list {
		parts[i] = serializeArg(arg)
	}
	return strings.Join(parts, ", ")
}

func serializeArg(arg Arg) string {
	switch a := arg.(type) {
	case String:
		return csstoken.QuoteString(string(a))
	case Number:
		return strconv.FormatFloat(float64(a), 'g', -1, 64)
	case *ComplexSelector:
		return a.String()
	default:
		return ""
	}
}

// String renders the complex selector.
func (c *ComplexSelector) String() string {
	parts := make([]string, 0, len(c.Clauses))
	for _, clause := range c.Clauses {
		s := clause.Simple.String()
		if clause.Combinator != Descendant {
			s += " " + string(clause.Combinator)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// String renders the simple selector.
func (s SimpleSelector) String() string {
	var sb strings.Builder
	sb.WriteString(s.CSS)
	for _, fn := range s.Functions {
		sb.WriteString(":" + csstoken.EscapeIdent(fn.Name))
		if len(fn.Args) > 0 {
			sb.WriteString("(" + Serialize(fn.Args) + ")")
		}
	}
	return sb.String()
}
