package dom

import (
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Navigator implements xpath.NodeNavigator over an html tree. The top of the
// tree containing the start node (the document or a shadow root) acts as the
// XPath root node, so expressions never cross shadow boundaries.
type Navigator struct {
	root, cur *html.Node
	attr      int // index into cur.Attr, -1 when positioned on a node
}

// NewNavigator returns a navigator positioned at n.
func NewNavigator(n *html.Node) *Navigator {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	return &Navigator{root: root, cur: n, attr: -1}
}

// Current returns the node the navigator is positioned at.
func (n *Navigator) Current() *html.Node {
	return n.cur
}

func (n *Navigator) NodeType() xpath.NodeType {
	if n.attr != -1 {
		return xpath.AttributeNode
	}
	switch n.cur.Type {
	case html.ElementNode:
		return xpath.ElementNode
	case html.TextNode:
		return xpath.TextNode
	case html.CommentNode:
		return xpath.CommentNode
	default:
		return xpath.RootNode
	}
}

func (n *Navigator) LocalName() string {
	if n.attr != -1 {
		return n.cur.Attr[n.attr].Key
	}
	return n.cur.Data
}

func (n *Navigator) Prefix() string { return "" }

func (n *Navigator) Value() string {
	switch {
	case n.attr != -1:
		return n.cur.Attr[n.attr].Val
	case n.cur.Type == html.TextNode || n.cur.Type == html.CommentNode:
		return n.cur.Data
	}
	var text []byte
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			text = append(text, c.Data...)
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n.cur)
	return string(text)
}

func (n *Navigator) Copy() xpath.NodeNavigator {
	cp := *n
	return &cp
}

func (n *Navigator) MoveToRoot() {
	n.cur = n.root
	n.attr = -1
}

func (n *Navigator) MoveToParent() bool {
	if n.attr != -1 {
		n.attr = -1
		return true
	}
	if n.cur.Parent == nil {
		return false
	}
	n.cur = n.cur.Parent
	return true
}

func (n *Navigator) MoveToNextAttribute() bool {
	if n.attr+1 >= len(n.cur.Attr) {
		return false
	}
	n.attr++
	return true
}

func (n *Navigator) MoveToChild() bool {
	if n.attr != -1 || n.cur.FirstChild == nil {
		return false
	}
	n.cur = n.cur.FirstChild
	return true
}

func (n *Navigator) MoveToFirst() bool {
	if n.attr != -1 || n.cur.PrevSibling == nil {
		return false
	}
	for n.cur.PrevSibling != nil {
		n.cur = n.cur.PrevSibling
	}
	return true
}

func (n *Navigator) MoveToNext() bool {
	if n.attr != -1 || n.cur.NextSibling == nil {
		return false
	}
	n.cur = n.cur.NextSibling
	return true
}

func (n *Navigator) MoveToPrevious() bool {
	if n.attr != -1 || n.cur.PrevSibling == nil {
		return false
	}
	n.cur = n.cur.PrevSibling
	return true
}

func (n *Navigator) MoveTo(other xpath.NodeNavigator) bool {
	node, ok := other.(*Navigator)
	if !ok || node.root != n.root {
		return false
	}
	n.cur = node.cur
	n.attr = node.attr
	return true
}

func (n *Navigator) String() string {
	return n.Value()
}
