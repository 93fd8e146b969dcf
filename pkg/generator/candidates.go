package generator

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
	"github.com/lemonberrylabs/selector-engine/pkg/dom"
)

// Token is one segment of a generated selector. Lower scores are preferred.
type Token struct {
	Engine   string
	Selector string
	Score    int
}

var (
	nameTags = map[string]bool{
		"button": true, "form": true, "fieldset": true, "iframe": true, "input": true, "keygen": true,
		"object": true, "output": true, "select": true, "textarea": true, "map": true, "meta": true, "param": true,
	}
	altTags  = map[string]bool{"applet": true, "area": true, "img": true, "input": true}
	formTags = map[string]bool{"input": true, "textarea": true, "select": true}
)

// buildCandidates returns the attribute and tag candidates of el.
func (g *Generator) buildCandidates(el *html.Node) []Token {
	var candidates []Token
	add := func(selector string, score int) {
		candidates = append(candidates, Token{Engine: "css", Selector: selector, Score: score})
	}
	tag := dom.TagName(el)
	escapedTag := csstoken.EscapeIdent(tag)

	for _, attr := range g.opts.TestIDAttributes {
		if v, ok := dom.Attr(el, attr); ok {
			add("["+attr+"="+csstoken.QuoteString(v)+"]", g.opts.Scores.TestID)
		}
	}
	if tag == "input" {
		if v := dom.AttrOr(el, "placeholder", ""); v != "" {
			add("[placeholder="+csstoken.QuoteString(v)+"]", g.opts.Scores.Placeholder)
		}
	}
	if v, ok := dom.Attr(el, "aria-label"); ok {
		add("[aria-label="+csstoken.QuoteString(v)+"]", g.opts.Scores.AriaLabel)
	}
	if v := dom.AttrOr(el, "alt", ""); v != "" && altTags[tag] {
		add(escapedTag+"[alt="+csstoken.QuoteString(v)+"]", g.opts.Scores.Alt)
	}
	if v, ok := dom.Attr(el, "role"); ok {
		add(escapedTag+"[role="+csstoken.QuoteString(v)+"]", g.opts.Scores.Role)
	}
	if v := dom.AttrOr(el, "name", ""); v != "" && nameTags[tag] {
		add(escapedTag+"[name="+csstoken.QuoteString(v)+"]", g.opts.Scores.Name)
	}
	if (tag == "input" || tag == "textarea") && dom.AttrOr(el, "type", "") != "hidden" {
		if v := dom.AttrOr(el, "type", ""); v != "" {
			add(escapedTag+"[type="+csstoken.QuoteString(v)+"]", g.opts.Scores.Type)
		}
	}
	if formTags[tag] {
		add(escapedTag, g.opts.Scores.FormTag)
	}
	if id := dom.AttrOr(el, "id", ""); id != "" && !IsGUIDLike(id, g.opts.GUIDRatio) {
		add(selectorForID(id), g.opts.Scores.ID)
	}
	add(escapedTag, g.opts.Scores.Tag)
	return candidates
}

// buildTextCandidates returns text candidates of el. Text that cannot be
// written as a plain text body is turned into a regular expression.
func (g *Generator) buildTextCandidates(text string, el *html.Node, allowHasText bool) []Token {
	if dom.TagName(el) == "select" {
		return nil
	}
	text = dom.NormalizeWhiteSpace(text)
	if runes := []rune(text); len(runes) > g.opts.MaxTextLength {
		text = strings.TrimSpace(string(runes[:g.opts.MaxTextLength]))
	}
	if text == "" {
		return nil
	}

	var candidates []Token
	if needsRegex(text) {
		candidates = append(candidates, Token{Engine: "text", Selector: "/.*" + escapeForRegex(text) + ".*/", Score: g.opts.Scores.TextRegex})
		return candidates
	}
	candidates = append(candidates, Token{Engine: "text", Selector: text, Score: g.opts.Scores.Text})
	if allowHasText {
		prefix := csstoken.EscapeIdent(dom.TagName(el))
		if v, ok := dom.Attr(el, "role"); ok {
			prefix += "[role=" + csstoken.QuoteString(v) + "]"
		}
		candidates = append(candidates, Token{Engine: "css", Selector: prefix + ":has-text(" + csstoken.QuoteString(text) + ")", Score: g.opts.Scores.HasText})
	}
	return candidates
}

// needsRegex reports whether text would be misread as a quoted literal, a
// regular expression or a chain separator when used as a text body.
func needsRegex(text string) bool {
	return strings.ContainsAny(text, "\"'`") || strings.Contains(text, ">>") || text[0] == '/'
}

func isRegexToken(t Token) bool {
	return t.Engine == "text" && strings.HasPrefix(t.Selector, "/")
}

func escapeForRegex(text string) string {
	var sb strings.Builder
	for _, c := range text {
		if strings.ContainsRune(`.*+?^>${}()|[]\"'`+"`", c) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// selectorForID returns "#id" for simple ids and an attribute selector
// otherwise.
func selectorForID(id string) string {
	simple := len(id) > 1
	for i, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '_'):
		default:
			simple = false
		}
	}
	if simple {
		return "#" + id
	}
	return "[id=" + csstoken.QuoteString(id) + "]"
}

type charClass int

const (
	classNone charClass = iota
	classLower
	classUpper
	classDigit
	classOther
)

// IsGUIDLike reports whether id looks machine generated: the number of
// character class transitions (ignoring '-' and '_', and treating an upper
// case letter followed by lower case ones as one word) is at least ratio
// times its length.
func IsGUIDLike(id string, ratio float64) bool {
	last := classNone
	transitions := 0
	for _, c := range id {
		var class charClass
		switch {
		case c == '-' || c == '_':
			continue
		case c >= 'a' && c <= 'z':
			class = classLower
		case c >= 'A' && c <= 'Z':
			class = classUpper
		case c >= '0' && c <= '9':
			class = classDigit
		default:
			class = classOther
		}
		if class == classLower && last == classUpper {
			last = class
			continue
		}
		if last != classNone && last != class {
			transitions++
		}
		last = class
	}
	return float64(transitions) >= float64(utf8.RuneCountInString(id))*ratio
}

// joinTokens renders tokens as a legacy chain. Adjacent css tokens share one
// segment unless the later one is an nth-match.
func joinTokens(tokens []Token) string {
	var parts []string
	lastEngine := ""
	for _, t := range tokens {
		if len(parts) > 0 && (lastEngine != "css" || t.Engine != "css" || strings.HasPrefix(t.Selector, ":nth-match(")) {
			parts = append(parts, ">>")
		}
		lastEngine = t.Engine
		if t.Engine == "css" {
			parts = append(parts, t.Selector)
		} else {
			parts = append(parts, t.Engine+"="+t.Selector)
		}
	}
	return strings.Join(parts, " ")
}

// combineScores weights tokens closer to the start of the chain more.
func combineScores(tokens []Token) int {
	score := 0
	for i, t := range tokens {
		score += t.Score * (len(tokens) - i)
	}
	return score
}
