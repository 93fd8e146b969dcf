package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Attr returns the value of the named attribute.
func Attr(el *html.Node, name string) (string, bool) {
	if el == nil {
		return "", false
	}
	for _, a := range el.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def when it is missing.
func AttrOr(el *html.Node, name, def string) string {
	if v, ok := Attr(el, name); ok {
		return v
	}
	return def
}

// HasAttr reports whether el carries the named attribute.
func HasAttr(el *html.Node, name string) bool {
	_, ok := Attr(el, name)
	return ok
}

// TagName returns the lower-case tag name.
func TagName(el *html.Node) string {
	return strings.ToLower(el.Data)
}

// ClassList returns the whitespace-separated classes of el.
func ClassList(el *html.Node) []string {
	return strings.Fields(AttrOr(el, "class", ""))
}

// ParentElement returns el's parent if it is an element.
func ParentElement(el *html.Node) *html.Node {
	if p := el.Parent; IsElement(p) {
		return p
	}
	return nil
}

// PreviousElementSibling returns the closest preceding element sibling.
func PreviousElementSibling(el *html.Node) *html.Node {
	for s := el.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// NextElementSibling returns the closest following element sibling.
func NextElementSibling(el *html.Node) *html.Node {
	for s := el.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// ElementChildren returns the element children of n, which may be an
// element, a document or a shadow root.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Walk calls fn for every element below n in light-tree pre-order. Returning
// false from fn skips that element's subtree.
func Walk(n *html.Node, fn func(el *html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if fn(c) {
			Walk(c, fn)
		}
	}
}

// Descendants returns the light-tree element descendants of n in order.
func Descendants(n *html.Node) []*html.Node {
	var out []*html.Node
	Walk(n, func(el *html.Node) bool {
		out = append(out, el)
		return true
	})
	return out
}

// Closest returns el or its nearest ancestor (crossing shadow boundaries)
// satisfying match.
func (d *Document) Closest(el *html.Node, match func(*html.Node) bool) *html.Node {
	for e := el; e != nil; e = d.ParentElementOrShadowHost(e) {
		if match(e) {
			return e
		}
	}
	return nil
}

// Path returns a debugging path like "html > body > div".
func (d *Document) Path(el *html.Node) string {
	var parts []string
	for e := el; e != nil; e = d.ParentElementOrShadowHost(e) {
		parts = append(parts, TagName(e))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}
