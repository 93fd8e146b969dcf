package generator

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/evaluator"
)

var quote = csstoken.QuoteString

// cssFallback builds a plain CSS path from the target upwards, preferring
// ids, then class combinations, then tag names with ordinals. When no prefix
// of the path is unique it returns an absolute :nth-child path, indexed with
// nth-match if shadow trees make even that ambiguous.
func (r *generation) cssFallback() Token {
	score := r.g.opts.Scores.Fallback
	var tokens []string

	unique := func(prefix string) (string, bool) {
		sel := strings.Join(append([]string{prefix}, tokens...), " ")
		result := r.queryAll(sel, r.doc.Root)
		return sel, len(result) == 1 && result[0] == r.target
	}

	for el := r.target; el != nil; el = r.doc.ParentElementOrShadowHost(el) {
		tag := dom.TagName(el)
		best := ""

		if id := dom.AttrOr(el, "id", ""); id != "" {
			token := selectorForID(id)
			if sel, ok := unique(token); ok {
				return Token{Engine: "css", Selector: sel, Score: score}
			}
			best = token
		}

		parent := el.Parent
		classes := dom.ClassList(el)
		for i := range classes {
			escaped := make([]string, i+1)
			for j, c := range classes[:i+1] {
				escaped[j] = csstoken.EscapeIdent(c)
			}
			token := "." + strings.Join(escaped, ".")
			if sel, ok := unique(token); ok {
				return Token{Engine: "css", Selector: sel, Score: score}
			}
			if best == "" && parent != nil && len(r.query(token, evaluator.QueryContext{Scope: parent})) == 1 {
				best = token
			}
		}

		if parent != nil {
			token := ordinalToken(el)
			if sel, ok := unique(token); ok {
				return Token{Engine: "css", Selector: sel, Score: score}
			}
			if best == "" {
				best = token
			}
		} else if best == "" {
			best = csstoken.EscapeIdent(tag)
		}
		tokens = append([]string{best}, tokens...)
	}
	return Token{Engine: "css", Selector: r.absolutePath(), Score: score}
}

// ordinalToken is the tag name, qualified with :nth-child unless el is the
// first sibling of its kind.
func ordinalToken(el *html.Node) string {
	tag := dom.TagName(el)
	siblings := dom.ElementChildren(el.Parent)
	firstOfType := true
	position := 0
	for i, sib := range siblings {
		if sib == el {
			position = i + 1
			break
		}
		if dom.TagName(sib) == tag {
			firstOfType = false
		}
	}
	if firstOfType {
		return csstoken.EscapeIdent(tag)
	}
	return fmt.Sprintf("%s:nth-child(%d)", csstoken.EscapeIdent(tag), position)
}

// absolutePath returns a child-combinator path with an ordinal at every level
// below the root element. Light children of a shadow host and the top-level
// nodes of its shadow tree can share an ordinal, so an ambiguous path is
// wrapped in nth-match.
func (r *generation) absolutePath() string {
	var steps []string
	for el := r.target; el != nil; el = r.doc.ParentElementOrShadowHost(el) {
		tag := csstoken.EscapeIdent(dom.TagName(el))
		if el == r.doc.DocumentElement() {
			steps = append([]string{tag}, steps...)
			continue
		}
		position := 0
		for i, sib := range dom.ElementChildren(el.Parent) {
			if sib == el {
				position = i + 1
				break
			}
		}
		steps = append([]string{fmt.Sprintf("%s:nth-child(%d)", tag, position)}, steps...)
	}
	path := strings.Join(steps, " > ")

	result := r.queryAll(path, r.doc.Root)
	if len(result) == 1 && result[0] == r.target {
		return path
	}
	if i := indexOf(result, r.target); i >= 0 {
		return fmt.Sprintf(":nth-match(%s, %d)", path, i+1)
	}
	return path
}
