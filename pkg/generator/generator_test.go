package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/evaluator"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
)

const page = `<!DOCTYPE html>
<html><head><title>Shop</title></head><body>
<div class="card"><span>Buy</span><button>Add to cart</button></div>
<div class="card"><span>Buy</span><button>Add to cart</button></div>
<div class="card"><span>Sell</span><button data-testid="sell"><b>Sell</b> now</button></div>
<input placeholder="Search" type="text">
<input type="checkbox" name="agree">
<img alt="logo" src="logo.png">
<p id="a1B2c3D4">guid</p>
<p id="submit-button">ok</p>
<ul><li>one</li><li>two</li><li>two</li><li>"quoted" text</li><li>a &gt;&gt; b</li><li>/slash</li></ul>
<div id="host"><template shadowrootmode="open"><p>shadow</p><p>shadow</p><span class="x">s</span></template><p>shadow</p></div>
<section><div><div><div><em>deep</em></div></div></div></section>
<table><tr><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td></tr></table>
<script>var x = 1;</script><script>var y = 2;</script>
</body></html>`

func newGenerator(opts Options) *Generator {
	ev := evaluator.New(nil)
	return New(selector.NewParser(ev.Registry().Names()...), ev, opts)
}

func mustParse(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src)
	require.NoError(t, err)
	return doc
}

func find(t *testing.T, doc *dom.Document, match func(*html.Node) bool) *html.Node {
	t.Helper()
	for _, el := range doc.AllElements() {
		if match(el) {
			return el
		}
	}
	t.Fatal("no matching element")
	return nil
}

func TestGeneratedSelectorsAreUnique(t *testing.T) {
	opts := DefaultOptions()
	opts.Retarget = false
	g := newGenerator(opts)
	doc := mustParse(t, page)

	for i, el := range doc.AllElements() {
		res, err := g.Generate(doc, el)
		require.NoError(t, err)
		require.Len(t, res.Elements, 1, "element %d (%s) got %q", i, doc.Path(el), res.Selector)
		assert.Same(t, el, res.Elements[0], "element %d (%s) got %q", i, doc.Path(el), res.Selector)
	}
}

func TestPreferredCandidates(t *testing.T) {
	g := newGenerator(DefaultOptions())
	doc := mustParse(t, page)

	tests := []struct {
		name  string
		match func(*html.Node) bool
		want  string
	}{
		{"test id", func(n *html.Node) bool { return dom.HasAttr(n, "data-testid") }, `[data-testid="sell"]`},
		{"placeholder", func(n *html.Node) bool { return dom.HasAttr(n, "placeholder") }, `[placeholder="Search"]`},
		{"alt", func(n *html.Node) bool { return dom.TagName(n) == "img" }, `img[alt="logo"]`},
		{"html", func(n *html.Node) bool { return dom.TagName(n) == "html" }, "html"},
		{"text", func(n *html.Node) bool { return dom.TagName(n) == "em" }, "text=deep"},
		{"stable id", func(n *html.Node) bool { return dom.AttrOr(n, "id", "") == "submit-button" }, "text=ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Generate(doc, find(t, doc, tt.match))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Selector)
		})
	}
}

func TestRetarget(t *testing.T) {
	g := newGenerator(DefaultOptions())
	doc := mustParse(t, page)
	bold := find(t, doc, func(n *html.Node) bool { return dom.TagName(n) == "b" })

	res, err := g.Generate(doc, bold)
	require.NoError(t, err)
	assert.Equal(t, `[data-testid="sell"]`, res.Selector)
	require.Len(t, res.Elements, 1)
	assert.Equal(t, "button", dom.TagName(res.Elements[0]))
}

func TestNthMatchFallback(t *testing.T) {
	opts := DefaultOptions()
	opts.Retarget = false
	g := newGenerator(opts)
	doc := mustParse(t, `<body><i>same</i><i>same</i><i>same</i></body>`)
	items := dom.Descendants(doc.DocumentElement())
	var is []*html.Node
	for _, el := range items {
		if dom.TagName(el) == "i" {
			is = append(is, el)
		}
	}
	require.Len(t, is, 3)

	res, err := g.Generate(doc, is[2])
	require.NoError(t, err)
	assert.Equal(t, `:nth-match(:text("same"), 3)`, res.Selector)
	assert.Equal(t, []*html.Node{is[2]}, res.Elements)
}

func TestOrdinalFallback(t *testing.T) {
	opts := DefaultOptions()
	opts.Retarget = false
	g := newGenerator(opts)
	doc := mustParse(t, `<body><b></b><b></b><b></b><b></b><b></b><b></b><b></b></body>`)
	target := dom.ElementChildren(find(t, doc, func(n *html.Node) bool { return dom.TagName(n) == "body" }))[4]

	res, err := g.Generate(doc, target)
	require.NoError(t, err)
	assert.Equal(t, "b:nth-child(5)", res.Selector)
	assert.Equal(t, []*html.Node{target}, res.Elements)
}

func TestForeignElement(t *testing.T) {
	g := newGenerator(DefaultOptions())
	doc := mustParse(t, page)
	_, err := g.Generate(doc, &html.Node{Type: html.ElementNode, Data: "div"})
	assert.ErrorIs(t, err, ErrForeignElement)
}

func TestGenerateInSessionKeepsCache(t *testing.T) {
	ev := evaluator.New(nil)
	g := New(selector.NewParser(ev.Registry().Names()...), ev, DefaultOptions())
	doc := mustParse(t, page)
	s := ev.Begin(doc)
	defer s.End()

	em := find(t, doc, func(n *html.Node) bool { return dom.TagName(n) == "em" })
	first, err := g.GenerateInSession(s, em)
	require.NoError(t, err)
	second, err := g.GenerateInSession(s, em)
	require.NoError(t, err)
	assert.Equal(t, first.Selector, second.Selector)
}

func TestIsGUIDLike(t *testing.T) {
	tests := map[string]bool{
		"a1B2c3D4":          true,
		"submit-button":     false,
		"SubmitButton":      false,
		"x7f3k9q2":          true,
		"main_content_area": false,
		"ember123":          false,
	}
	for id, want := range tests {
		assert.Equal(t, want, IsGUIDLike(id, 0.25), id)
	}

	// Length is measured in characters, not bytes.
	assert.True(t, IsGUIDLike("é1é2", 0.6))
	assert.False(t, IsGUIDLike("éé12", 0.6))
}

func TestBuildCandidatesSkipsGUIDIDs(t *testing.T) {
	g := newGenerator(DefaultOptions())
	doc := mustParse(t, page)

	guid := find(t, doc, func(n *html.Node) bool { return dom.AttrOr(n, "id", "") == "a1B2c3D4" })
	for _, c := range g.buildCandidates(guid) {
		assert.NotContains(t, c.Selector, "a1B2c3D4")
	}

	stable := find(t, doc, func(n *html.Node) bool { return dom.AttrOr(n, "id", "") == "submit-button" })
	assert.Contains(t, g.buildCandidates(stable), Token{Engine: "css", Selector: "#submit-button", Score: 100})
}

func TestTextCandidates(t *testing.T) {
	g := newGenerator(DefaultOptions())
	li := &html.Node{Type: html.ElementNode, Data: "li"}

	assert.Equal(t, []Token{
		{Engine: "text", Selector: "two words", Score: 10},
		{Engine: "css", Selector: `li:has-text("two words")`, Score: 30},
	}, g.buildTextCandidates("  two \n words ", li, true))
	assert.Equal(t, []Token{
		{Engine: "text", Selector: `/.*a \>\> b.*/`, Score: 250},
	}, g.buildTextCandidates("a >> b", li, true))
	assert.Equal(t, []Token{
		{Engine: "text", Selector: `/.*\"q\".*/`, Score: 250},
	}, g.buildTextCandidates(`"q"`, li, false))
	assert.Nil(t, g.buildTextCandidates("   ", li, true))
	assert.Nil(t, g.buildTextCandidates("x", &html.Node{Type: html.ElementNode, Data: "select"}, true))
}

func TestJoinTokensAndScores(t *testing.T) {
	assert.Equal(t, "div span", joinTokens([]Token{{"css", "div", 1}, {"css", "span", 1}}))
	assert.Equal(t, "div >> text=foo", joinTokens([]Token{{"css", "div", 1}, {"text", "foo", 1}}))
	assert.Equal(t, "div >> :nth-match(p, 2)", joinTokens([]Token{{"css", "div", 1}, {"css", ":nth-match(p, 2)", 1}}))
	assert.Equal(t, 12, combineScores([]Token{{"css", "a", 1}, {"css", "b", 10}}))
}

func TestSelectorForID(t *testing.T) {
	assert.Equal(t, "#submit-button", selectorForID("submit-button"))
	assert.Equal(t, `[id="1abc"]`, selectorForID("1abc"))
	assert.Equal(t, `[id="a"]`, selectorForID("a"))
	assert.Equal(t, `[id="a b"]`, selectorForID("a b"))
}
