package textmatch

import (
	"unicode"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
)

// boundary records the stream offset at which a text node's content starts.
type boundary struct {
	offset int
	node   *html.Node
}

// NodeStream streams the text below a root, light tree first and then the
// shadow tree, collapsing whitespace runs into a single space and skipping
// leading whitespace. It remembers which text node every offset since the
// last marked match start came from.
type NodeStream struct {
	nodes []*html.Node
	next  int // index of the next node to load

	cur    []rune
	pos    int
	offset int

	started   bool
	prevSpace bool

	boundaries []boundary
}

// NewNodeStream returns a stream over the text of root.
func NewNodeStream(doc *dom.Document, root *html.Node) *NodeStream {
	return &NodeStream{nodes: doc.TextNodes(root)}
}

// fill loads nodes until the current one has unread codepoints.
func (s *NodeStream) fill() bool {
	for s.pos >= len(s.cur) {
		if s.next >= len(s.nodes) {
			return false
		}
		node := s.nodes[s.next]
		s.next++
		s.cur = s.cur[:0]
		s.pos = 0
		for _, r := range node.Data {
			if unicode.IsSpace(r) {
				if s.started && !s.prevSpace {
					s.cur = append(s.cur, ' ')
					s.prevSpace = true
				}
				continue
			}
			s.cur = append(s.cur, r)
			s.started = true
			s.prevSpace = false
		}
		if len(s.cur) > 0 {
			s.boundaries = append(s.boundaries, boundary{offset: s.offset, node: node})
		}
	}
	return true
}

func (s *NodeStream) HasNext() bool {
	return s.fill()
}

func (s *NodeStream) Peek() rune {
	s.fill()
	return s.cur[s.pos]
}

func (s *NodeStream) Advance(markStart bool) {
	if !s.fill() {
		return
	}
	if markStart {
		s.prune(s.offset)
	}
	s.pos++
	s.offset++
}

// prune drops boundaries of nodes that end before offset.
func (s *NodeStream) prune(offset int) {
	keep := 0
	for i, b := range s.boundaries {
		if b.offset <= offset {
			keep = i
		}
	}
	s.boundaries = s.boundaries[keep:]
}

// NodeAt returns the text node that produced the codepoint at offset. Only
// offsets at or after the last marked match start are known.
func (s *NodeStream) NodeAt(offset int) *html.Node {
	var found *html.Node
	for _, b := range s.boundaries {
		if b.offset > offset {
			break
		}
		found = b.node
	}
	return found
}

// Offset returns the number of codepoints consumed so far.
func (s *NodeStream) Offset() int {
	return s.offset
}

// lowercase folds every codepoint of the wrapped stream.
type lowercase struct {
	Stream
}

// Lowercase returns s with every codepoint lower-cased.
func Lowercase(s Stream) Stream {
	return lowercase{s}
}

func (l lowercase) Peek() rune {
	return unicode.ToLower(l.Stream.Peek())
}
