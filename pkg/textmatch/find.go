package textmatch

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
)

// Normalize prepares a pattern the way NodeStream presents text: trimmed,
// whitespace collapsed and optionally lower-cased.
func Normalize(text string, ignoreCase bool) []rune {
	text = dom.NormalizeWhiteSpace(text)
	if ignoreCase {
		text = strings.ToLower(text)
	}
	return []rune(text)
}

// Contains reports whether the text below root contains text.
func Contains(doc *dom.Document, root *html.Node, text string, ignoreCase bool) bool {
	var s Stream = NewNodeStream(doc, root)
	if ignoreCase {
		s = Lowercase(s)
	}
	return Search(s, Normalize(text, ignoreCase)) != -1
}

// FindElement locates the first occurrence of text below root and returns
// the least common ancestor element of the first and last matched text
// nodes. It returns nil when the text does not occur or is empty.
func FindElement(doc *dom.Document, root *html.Node, text string, ignoreCase bool) *html.Node {
	pattern := Normalize(text, ignoreCase)
	if len(pattern) == 0 {
		return nil
	}
	ns := NewNodeStream(doc, root)
	var s Stream = ns
	if ignoreCase {
		s = Lowercase(ns)
	}
	start := Search(s, pattern)
	if start == -1 {
		return nil
	}
	first := ns.NodeAt(start)
	last := ns.NodeAt(start + len(pattern) - 1)
	if first == nil || last == nil {
		return nil
	}
	return commonAncestor(doc, textParent(doc, first), textParent(doc, last))
}

// textParent returns the element a text node belongs to, resolving text
// directly inside a shadow root to its host.
func textParent(doc *dom.Document, n *html.Node) *html.Node {
	if p := n.Parent; dom.IsElement(p) {
		return p
	}
	return doc.Host(n.Parent)
}

func commonAncestor(doc *dom.Document, a, b *html.Node) *html.Node {
	ancestors := make(map[*html.Node]bool)
	for e := a; e != nil; e = doc.ParentElementOrShadowHost(e) {
		ancestors[e] = true
	}
	for e := b; e != nil; e = doc.ParentElementOrShadowHost(e) {
		if ancestors[e] {
			return e
		}
	}
	return nil
}
