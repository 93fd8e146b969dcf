package runtime

import (
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
)

const maxDescribedText = 100

// ElementInfo is the serializable summary of an element returned by the
// APIs. Handle is stable for the lifetime of the document.
type ElementInfo struct {
	Handle  int    `json:"handle"`
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// Describe summarizes el.
func Describe(doc *dom.Document, el *html.Node) ElementInfo {
	text := []rune(dom.NormalizeWhiteSpace(doc.ElementText(el)))
	if len(text) > maxDescribedText {
		text = append(text[:maxDescribedText-1], '…')
	}
	return ElementInfo{
		Handle:  doc.IndexOf(el),
		Tag:     dom.TagName(el),
		ID:      dom.AttrOr(el, "id", ""),
		Path:    doc.Path(el),
		Text:    string(text),
		Visible: doc.IsVisible(el),
	}
}

// DescribeAll summarizes nodes in order.
func DescribeAll(doc *dom.Document, nodes []*html.Node) []ElementInfo {
	out := make([]ElementInfo, len(nodes))
	for i, n := range nodes {
		out[i] = Describe(doc, n)
	}
	return out
}
