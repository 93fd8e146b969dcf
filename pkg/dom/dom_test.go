package dom

import (
	"testing"

	"github.com/antchfx/xpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const shadowPage = `<!DOCTYPE html>
<html><head><title>t</title></head><body>
<div id="host"><span id="l1">light</span><template shadowrootmode="open"><p id="s1">shadow</p><p id="s2">more</p></template><span id="l2">light2</span></div>
<template id="t"><b id="inert">inert</b></template>
<section id="legacy"><template shadowroot="closed"><i id="deep">deep</i></template></section>
</body></html>`

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := ParseString(src)
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *Document, id string) *html.Node {
	t.Helper()
	for _, el := range doc.AllElements() {
		if v, _ := Attr(el, "id"); v == id {
			return el
		}
	}
	t.Fatalf("no element with id %q", id)
	return nil
}

func ids(nodes []*html.Node) []string {
	var out []string
	for _, n := range nodes {
		if v, ok := Attr(n, "id"); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestShadowRoots(t *testing.T) {
	doc := mustParse(t, shadowPage)
	host := byID(t, doc, "host")
	s1 := byID(t, doc, "s1")

	root := doc.ShadowRoot(host)
	require.NotNil(t, root)
	assert.Equal(t, html.RawNode, root.Type)
	assert.Equal(t, ShadowRootName, root.Data)
	assert.Equal(t, host, doc.Host(root))
	assert.Equal(t, "open", doc.ShadowRootMode(root))
	assert.True(t, doc.IsShadowRoot(root))
	assert.Equal(t, root, doc.EnclosingShadowRoot(s1))
	assert.Nil(t, doc.EnclosingShadowRoot(host))

	assert.Nil(t, ParentElement(s1))
	assert.Equal(t, host, doc.ParentElementOrShadowHost(s1))

	legacy := byID(t, doc, "legacy")
	require.NotNil(t, doc.ShadowRoot(legacy))
	assert.Equal(t, "closed", doc.ShadowRootMode(doc.ShadowRoot(legacy)))
	assert.Empty(t, ElementChildren(legacy))
}

func TestAllElementsOrder(t *testing.T) {
	doc := mustParse(t, shadowPage)
	assert.Equal(t, []string{"host", "l1", "l2", "s1", "s2", "t", "legacy", "deep"}, ids(doc.AllElements()))

	for i, el := range doc.AllElements() {
		assert.Equal(t, i, doc.IndexOf(el))
		assert.Equal(t, el, doc.ElementAt(i))
	}
	assert.Nil(t, doc.ElementAt(-1))
	assert.Nil(t, doc.ElementAt(len(doc.AllElements())))
	assert.Equal(t, "html", TagName(doc.DocumentElement()))
}

func TestTemplateContentIsInert(t *testing.T) {
	doc := mustParse(t, shadowPage)
	tmpl := byID(t, doc, "t")
	assert.Nil(t, tmpl.FirstChild)

	frag := doc.TemplateContent(tmpl)
	require.NotNil(t, frag)
	assert.Equal(t, FragmentName, frag.Data)
	inert := ElementChildren(frag)
	require.Len(t, inert, 1)
	assert.False(t, doc.Contains(inert[0]))
	assert.Equal(t, -1, doc.IndexOf(inert[0]))
}

func TestSortInDocumentOrder(t *testing.T) {
	doc := mustParse(t, shadowPage)
	host, l1, l2, s1 := byID(t, doc, "host"), byID(t, doc, "l1"), byID(t, doc, "l2"), byID(t, doc, "s1")
	foreign := &html.Node{Type: html.ElementNode, Data: "div"}

	sorted := doc.SortInDocumentOrder([]*html.Node{s1, l2, foreign, l1, s1, host})
	assert.Equal(t, []*html.Node{host, l1, l2, s1}, sorted)
}

func TestElementText(t *testing.T) {
	doc := mustParse(t, shadowPage)
	assert.Equal(t, "lightlight2shadowmore", doc.ElementText(byID(t, doc, "host")))
	assert.Equal(t, "shadowmore", doc.ElementText(doc.ShadowRoot(byID(t, doc, "host"))))

	doc = mustParse(t, `<div id="a">x<script>var y</script><style>p{}</style> <input id="b" type="submit" value="Go"></div>`)
	assert.Equal(t, "x Go", doc.ElementText(byID(t, doc, "a")))
}

func TestOwnText(t *testing.T) {
	doc := mustParse(t, `<html><head><title> My  page </title></head><body><p id="p">a<b>b</b>c</p></body></html>`)
	var title *html.Node
	for _, el := range doc.AllElements() {
		if TagName(el) == "title" {
			title = el
		}
	}
	require.NotNil(t, title)
	assert.Empty(t, doc.ElementText(title))
	assert.Equal(t, " My  page ", OwnText(title))
	assert.Equal(t, "ac", OwnText(byID(t, doc, "p")))
}

func TestTextNodes(t *testing.T) {
	doc := mustParse(t, shadowPage)
	var texts []string
	for _, n := range doc.TextNodes(byID(t, doc, "host")) {
		texts = append(texts, n.Data)
	}
	assert.Equal(t, []string{"light", "light2", "shadow", "more"}, texts)
}

func TestNormalizeWhiteSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhiteSpace("  a \n\t b   c "))
	assert.Equal(t, "", NormalizeWhiteSpace(" \n "))
}

func TestIsVisible(t *testing.T) {
	doc := mustParse(t, `<body>
<p id="plain">x</p>
<div hidden><span id="under-hidden">x</span></div>
<div style="color: red; display : none !important"><span id="under-none">x</span></div>
<span id="invisible" style="visibility:hidden">x</span>
<input id="hidden-input" type="hidden">
<input id="text-input" type="text">
<div id="host"><template shadowrootmode="open"><b id="shadow-b">x</b></template></div>
<div hidden id="hidden-host"><template shadowrootmode="open"><b id="hidden-shadow">x</b></template></div>
</body>`)

	tests := map[string]bool{
		"plain":         true,
		"under-hidden":  false,
		"under-none":    false,
		"invisible":     false,
		"hidden-input":  false,
		"text-input":    true,
		"shadow-b":      true,
		"hidden-shadow": false,
	}
	for id, want := range tests {
		assert.Equal(t, want, doc.IsVisible(byID(t, doc, id)), id)
	}
	assert.False(t, doc.IsVisible(doc.DocumentElement().FirstChild))
}

func TestNavigator(t *testing.T) {
	doc := mustParse(t, shadowPage)

	expr, err := xpath.Compile("//span")
	require.NoError(t, err)
	var found []*html.Node
	iter := expr.Select(NewNavigator(doc.Root))
	for iter.MoveNext() {
		found = append(found, iter.Current().(*Navigator).Current())
	}
	assert.Equal(t, []string{"l1", "l2"}, ids(found))

	// Inside a shadow root the root node is the shadow root itself.
	s1 := byID(t, doc, "s1")
	expr, err = xpath.Compile("/p[@id='s2']")
	require.NoError(t, err)
	iter = expr.Select(NewNavigator(s1))
	require.True(t, iter.MoveNext())
	assert.Equal(t, "s2", AttrOr(iter.Current().(*Navigator).Current(), "id", ""))

	expr, err = xpath.Compile("string(.)")
	require.NoError(t, err)
	assert.Equal(t, "shadow", expr.Evaluate(NewNavigator(s1)))
}

func TestOuterHTML(t *testing.T) {
	doc := mustParse(t, shadowPage)
	out, err := doc.OuterHTML(byID(t, doc, "host"))
	require.NoError(t, err)
	assert.Equal(t,
		`<div id="host"><template shadowrootmode="open"><p id="s1">shadow</p><p id="s2">more</p></template><span id="l1">light</span><span id="l2">light2</span></div>`,
		out)

	reparsed := mustParse(t, "<body>"+out+"</body>")
	assert.Equal(t, []string{"host", "l1", "l2", "s1", "s2"}, ids(reparsed.AllElements()))
}

func TestClosestAndPath(t *testing.T) {
	doc := mustParse(t, shadowPage)
	s1 := byID(t, doc, "s1")
	host := doc.Closest(s1, func(n *html.Node) bool { return TagName(n) == "div" })
	assert.Equal(t, byID(t, doc, "host"), host)
	assert.Equal(t, "html > body > div > p", doc.Path(s1))
	assert.Equal(t, []string{"a", "b"}, ClassList(&html.Node{Type: html.ElementNode, Data: "x", Attr: []html.Attribute{{Key: "class", Val: " a  b "}}}))
}
