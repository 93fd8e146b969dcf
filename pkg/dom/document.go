// Package dom wraps golang.org/x/net/html trees with the extras the selector
// engine needs: declarative shadow roots, stable element order and handles,
// text extraction, a visibility heuristic and an XPath navigator.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const (
	// ShadowRootName is the Data of the container node holding a shadow tree.
	ShadowRootName = "#shadow-root"
	// FragmentName is the Data of the inert container holding template contents.
	FragmentName = "#document-fragment"
)

// Document is a parsed HTML document. It must not be mutated after Parse.
type Document struct {
	Root *html.Node

	shadowRoots map[*html.Node]*html.Node // host -> shadow root
	hosts       map[*html.Node]*html.Node // shadow root -> host
	modes       map[*html.Node]string     // shadow root -> "open" or "closed"
	templates   map[*html.Node]*html.Node // template -> content fragment

	elements []*html.Node
	index    map[*html.Node]int
}

// Parse parses an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return newDocument(root), nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func newDocument(root *html.Node) *Document {
	d := &Document{
		Root:        root,
		shadowRoots: make(map[*html.Node]*html.Node),
		hosts:       make(map[*html.Node]*html.Node),
		modes:       make(map[*html.Node]string),
		templates:   make(map[*html.Node]*html.Node),
		index:       make(map[*html.Node]int),
	}
	d.detachTemplates(root)
	d.collect(root)
	return d
}

// detachTemplates moves template contents out of the tree. A template with a
// shadowrootmode (or legacy shadowroot) attribute becomes its parent's shadow
// root, unless that parent already has one.
func (d *Document) detachTemplates(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.Data == "template" {
			mode := shadowRootMode(c)
			if mode != "" && n.Type == html.ElementNode && d.shadowRoots[n] == nil {
				n.RemoveChild(c)
				root := adoptChildren(c, ShadowRootName)
				d.shadowRoots[n] = root
				d.hosts[root] = n
				d.modes[root] = mode
				d.detachTemplates(root)
			} else {
				frag := adoptChildren(c, FragmentName)
				d.templates[c] = frag
				d.detachTemplates(frag)
			}
		} else {
			d.detachTemplates(c)
		}
		c = next
	}
}

func shadowRootMode(template *html.Node) string {
	for _, key := range []string{"shadowrootmode", "shadowroot"} {
		if v, ok := Attr(template, key); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "open" || v == "closed" {
				return v
			}
		}
	}
	return ""
}

// adoptChildren moves every child of from into a new detached container.
func adoptChildren(from *html.Node, name string) *html.Node {
	container := &html.Node{Type: html.RawNode, Data: name}
	for c := from.FirstChild; c != nil; {
		next := c.NextSibling
		from.RemoveChild(c)
		container.AppendChild(c)
		c = next
	}
	return container
}

// collect records every element in document order: an element, then its
// light children, then its shadow tree.
func (d *Document) collect(n *html.Node) {
	if n.Type == html.ElementNode {
		d.index[n] = len(d.elements)
		d.elements = append(d.elements, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.collect(c)
	}
	if root := d.shadowRoots[n]; root != nil {
		d.collect(root)
	}
}

// ShadowRoot returns the shadow root attached to host, or nil.
func (d *Document) ShadowRoot(host *html.Node) *html.Node {
	return d.shadowRoots[host]
}

// ShadowRootMode returns "open" or "closed" for a shadow root.
func (d *Document) ShadowRootMode(root *html.Node) string {
	return d.modes[root]
}

// Host returns the host element of a shadow root, or nil.
func (d *Document) Host(root *html.Node) *html.Node {
	return d.hosts[root]
}

// IsShadowRoot reports whether n is a shadow root container of this document.
func (d *Document) IsShadowRoot(n *html.Node) bool {
	_, ok := d.hosts[n]
	return ok
}

// TemplateContent returns the detached contents of a plain template element.
func (d *Document) TemplateContent(template *html.Node) *html.Node {
	return d.templates[template]
}

// DocumentElement returns the root element (usually <html>).
func (d *Document) DocumentElement() *html.Node {
	for c := d.Root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// AllElements returns every element, shadow trees included, in document order.
func (d *Document) AllElements() []*html.Node {
	return d.elements
}

// IndexOf returns the position of el in AllElements, or -1.
func (d *Document) IndexOf(el *html.Node) int {
	if i, ok := d.index[el]; ok {
		return i
	}
	return -1
}

// ElementAt returns the element with the given handle, or nil.
func (d *Document) ElementAt(i int) *html.Node {
	if i < 0 || i >= len(d.elements) {
		return nil
	}
	return d.elements[i]
}

// Contains reports whether el belongs to this document.
func (d *Document) Contains(el *html.Node) bool {
	_, ok := d.index[el]
	return ok
}

// SortInDocumentOrder returns the distinct elements of nodes in document
// order, light children before the host's shadow tree. Nodes foreign to the
// document are dropped.
func (d *Document) SortInDocumentOrder(nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool, len(nodes))
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if seen[n] || !d.Contains(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return d.index[out[i]] < d.index[out[j]]
	})
	return out
}

// ParentElementOrShadowHost returns el's parent element, or its shadow host
// when el is a top-level node of a shadow tree.
func (d *Document) ParentElementOrShadowHost(el *html.Node) *html.Node {
	p := el.Parent
	if p == nil {
		return nil
	}
	if p.Type == html.ElementNode {
		return p
	}
	return d.hosts[p]
}

// EnclosingShadowRoot returns the shadow root that contains n, or nil when n
// is in the light tree.
func (d *Document) EnclosingShadowRoot(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if d.IsShadowRoot(p) {
			return p
		}
	}
	return nil
}

// OuterHTML renders el and its light subtree. Shadow roots are rendered as
// declarative shadow DOM templates.
func (d *Document) OuterHTML(el *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.withShadow(el)); err != nil {
		return "", fmt.Errorf("failed to render element: %w", err)
	}
	return buf.String(), nil
}

// withShadow returns a detached copy of n where every shadow root is
// re-attached as a <template shadowrootmode> first child.
func (d *Document) withShadow(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if root := d.shadowRoots[n]; root != nil {
		tmpl := &html.Node{
			Type: html.ElementNode,
			Data: "template",
			Attr: []html.Attribute{{Key: "shadowrootmode", Val: d.modes[root]}},
		}
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			tmpl.AppendChild(d.withShadow(c))
		}
		cp.AppendChild(tmpl)
	}
	if frag := d.templates[n]; frag != nil {
		for c := frag.FirstChild; c != nil; c = c.NextSibling {
			cp.AppendChild(d.withShadow(c))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(d.withShadow(c))
	}
	return cp
}
