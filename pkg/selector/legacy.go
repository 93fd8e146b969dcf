package selector

import (
	"regexp"
	"strings"

	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

var engineNamePattern = regexp.MustCompile(`^[a-zA-Z_0-9\-+:*]+$`)

// xpathStart matches bodies that begin with "//", optionally behind one or
// more opening parens.
var xpathStart = regexp.MustCompile(`^\(*//`)

// ParseV1 splits a legacy selector on top-level ">>" and infers each
// segment's engine. Double, single and backtick quotes protect ">>"; a
// backslash escapes the next character.
func ParseV1(selector string) (*V1, error) {
	result := &V1{}
	var quote byte
	start := 0

	appendPart := func(end int) error {
		part := strings.TrimSpace(selector[start:end])
		if part == "" {
			return types.NewParseError("Empty selector segment", selector)
		}

		var name, body string
		eq := strings.IndexByte(part, '=')
		switch {
		case eq != -1 && engineNamePattern.MatchString(strings.TrimSpace(part[:eq])):
			name = strings.TrimSpace(part[:eq])
			body = strings.TrimSpace(part[eq+1:])
		case len(part) > 1 && part[0] == '"' && part[len(part)-1] == '"',
			len(part) > 1 && part[0] == '\'' && part[len(part)-1] == '\'':
			name, body = "text", part
		case xpathStart.MatchString(part) || strings.HasPrefix(part, ".."):
			name, body = "xpath", part
		default:
			name, body = "css", part
		}

		capture := false
		if strings.HasPrefix(name, "*") {
			capture = true
			name = name[1:]
		}
		result.Parts = append(result.Parts, Part{Name: name, Body: body})
		if capture {
			if result.Capture != nil {
				return types.NewCaptureConflictError(selector)
			}
			idx := len(result.Parts) - 1
			result.Capture = &idx
		}
		return nil
	}

	i := 0
	for i < len(selector) {
		c := selector[i]
		switch {
		case c == '\\' && i+1 < len(selector):
			i += 2
		case quote != 0 && c == quote:
			quote = 0
			i++
		case quote == 0 && (c == '"' || c == '\'' || c == '`'):
			quote = c
			i++
		case quote == 0 && c == '>' && i+1 < len(selector) && selector[i+1] == '>':
			if err := appendPart(i); err != nil {
				return nil, err
			}
			i += 2
			start = i
		default:
			i++
		}
	}
	if err := appendPart(len(selector)); err != nil {
		return nil, err
	}
	return result, nil
}
