package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// SkipForText reports whether n's content never counts as text: scripts,
// styles and anything inside <head>.
func SkipForText(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch TagName(n) {
	case "script", "noscript", "style", "head":
		return true
	}
	return false
}

// OwnText returns the text of n's direct text node children. Unlike
// ElementText it ignores where n sits, so it works for <title>.
func OwnText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// ElementText returns the full text of root: text nodes in the light tree
// followed by the text of root's shadow tree, recursively. root may be an
// element or a shadow root. Submit and button inputs contribute their value.
func (d *Document) ElementText(root *html.Node) string {
	var sb strings.Builder
	d.writeText(&sb, root)
	return sb.String()
}

func (d *Document) writeText(sb *strings.Builder, n *html.Node) {
	if SkipForText(n) || d.insideHead(n) {
		return
	}
	if n.Type == html.ElementNode && TagName(n) == "input" {
		switch strings.ToLower(AttrOr(n, "type", "")) {
		case "submit", "button":
			sb.WriteString(AttrOr(n, "value", ""))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			d.writeText(sb, c)
		}
	}
	if root := d.shadowRoots[n]; root != nil {
		d.writeText(sb, root)
	}
}

func (d *Document) insideHead(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && TagName(p) == "head" {
			return true
		}
	}
	return false
}

// TextNodes returns the text nodes below root in text order (light tree,
// then shadow tree), skipping the same content ElementText skips.
func (d *Document) TextNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if SkipForText(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				out = append(out, c)
			case html.ElementNode:
				walk(c)
			}
		}
		if sr := d.shadowRoots[n]; sr != nil {
			walk(sr)
		}
	}
	if !d.insideHead(root) {
		walk(root)
	}
	return out
}

// NormalizeWhiteSpace trims s and collapses every whitespace run to a single
// space.
func NormalizeWhiteSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
