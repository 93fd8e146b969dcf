package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

func mustParseDoc(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src)
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *dom.Document, id string) *html.Node {
	t.Helper()
	for _, el := range doc.AllElements() {
		if dom.AttrOr(el, "id", "") == id {
			return el
		}
	}
	t.Fatalf("no element with id %q", id)
	return nil
}

func ids(nodes []*html.Node) []string {
	out := []string{}
	for _, n := range nodes {
		out = append(out, dom.AttrOr(n, "id", dom.TagName(n)))
	}
	return out
}

func parse(t *testing.T, ev *Evaluator, sel string) selector.SelectorList {
	t.Helper()
	parsed, err := selector.NewParser(ev.Registry().Names()...).Parse(sel)
	require.NoError(t, err, sel)
	return parsed.V2
}

func queryIDs(t *testing.T, ev *Evaluator, doc *dom.Document, scope *html.Node, sel string) []string {
	t.Helper()
	nodes, err := ev.QueryAll(doc, QueryContext{Scope: scope, PierceShadow: true}, parse(t, ev, sel))
	require.NoError(t, err, sel)
	return ids(nodes)
}

func TestCompileRegexFlags(t *testing.T) {
	re, err := compileRegex(regexKey("^a.b$", "is"))
	require.NoError(t, err)
	ok, err := re.MatchString("A\nB")
	require.NoError(t, err)
	assert.True(t, ok)

	re, err = compileRegex(regexKey("^a.b$", "i"))
	require.NoError(t, err)
	ok, err = re.MatchString("A\nB")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = compileRegex(regexKey("a", "q"))
	assert.True(t, types.HasTag(err, types.TagEngineError))
}

func TestQueryScenarios(t *testing.T) {
	ev := New(nil)

	t.Run("single div", func(t *testing.T) {
		doc := mustParseDoc(t, `<p id="p">x</p><div id="only">y</div>`)
		assert.Equal(t, []string{"only"}, queryIDs(t, ev, doc, doc.Root, "css=div"))
	})

	t.Run("quoted text is strict", func(t *testing.T) {
		doc := mustParseDoc(t, `<div id="a"><span id="b"> hello </span></div><p id="c">hello world</p><p id="d">Hello</p>`)
		assert.Equal(t, []string{"b"}, queryIDs(t, ev, doc, doc.Root, `text="hello"`))
	})

	t.Run("capture returns the ancestor", func(t *testing.T) {
		doc := mustParseDoc(t, `<ul id="u1"><li id="l1">a</li><li id="l2">b</li></ul><ul id="u2"></ul><ul id="u3"><li id="l3">c</li></ul>`)
		assert.Equal(t, []string{"l1", "l2", "l3"}, queryIDs(t, ev, doc, doc.Root, "css=ul >> css=li"))
		assert.Equal(t, []string{"u1", "u3"}, queryIDs(t, ev, doc, doc.Root, "*css=ul >> css=li"))
	})

	t.Run("nth-match is one-based", func(t *testing.T) {
		doc := mustParseDoc(t, `<div class="card" id="c1"></div><span class="card"></span><div class="card" id="c2"></div>
<section><div class="card" id="c3"></div></section><div class="card" id="c4"></div>`)
		assert.Equal(t, []string{"c3"}, queryIDs(t, ev, doc, doc.Root, ":nth-match(div.card, 3)"))
		assert.Empty(t, queryIDs(t, ev, doc, doc.Root, ":nth-match(div.card, 9)"))
		assert.Empty(t, queryIDs(t, ev, doc, doc.Root, ":nth-match(div.card, 99999999999999999999)"))
	})
}

const shadowDoc = `<body>
<div id="host"><span id="l1">light one</span><span id="l2">light two</span>
<template shadowrootmode="open"><span id="s1">shadow one</span><div id="inner"><template shadowrootmode="open"><span id="deep">deep</span></template></div><span id="s2">shadow two</span></template></div>
<span id="after">after</span>
</body>`

func TestShadowPiercingOrder(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, shadowDoc)
	host := byID(t, doc, "host")

	assert.Equal(t, []string{"l1", "l2", "s1", "inner", "s2", "deep"}, queryIDs(t, ev, doc, host, "css=*"))
	assert.Equal(t, []string{"l1", "l2", "after", "s1", "s2", "deep"}, queryIDs(t, ev, doc, doc.Root, "span"))
	assert.Equal(t, []string{"l1", "l2", "after"}, queryIDs(t, ev, doc, doc.Root, "css:light=span"))
	assert.Equal(t, []string{"deep"}, queryIDs(t, ev, doc, doc.Root, "#host #deep"))
	assert.Equal(t, []string{"l1", "l2", "s1", "s2"}, queryIDs(t, ev, doc, doc.Root, "#host > span"))
	assert.Empty(t, queryIDs(t, ev, doc, doc.Root, "css=:light(#host span#s1)"))
}

func TestDeterminism(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, shadowDoc)
	list := parse(t, ev, "span, div")
	first, err := ev.QueryAll(doc, QueryContext{Scope: doc.Root, PierceShadow: true}, list)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ev.QueryAll(doc, QueryContext{Scope: doc.Root, PierceShadow: true}, list)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCombinators(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<div class="a"><p><span id="s1"></span></p></div><p><span id="s2"></span></p>
<section><h1 id="h"></h1><p id="p1"></p><b></b><p id="p2"></p></section>
<div id="d1"><span></span></div><div id="d2"><p><span></span></p></div>`)

	tests := []struct {
		sel  string
		want []string
	}{
		{"div.a > p span", []string{"s1"}},
		{"div p > span", []string{"s1", "span"}},
		{"section p", []string{"p1", "p2"}},
		{"h1 + p", []string{"p1"}},
		{"h1 ~ p", []string{"p1", "p2"}},
		{"b + p", []string{"p2"}},
		{"div:has(> span)", []string{"d1"}},
		{"div:has(span)", []string{"div", "d1", "d2"}},
		{"#s2, #s1", []string{"s1", "s2"}},
		{":is(#p2, #p1)", []string{"p1", "p2"}},
		{"section > :not(h1, b)", []string{"p1", "p2"}},
		{"section > p:first-of-type", []string{"p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			assert.Equal(t, tt.want, queryIDs(t, ev, doc, doc.Root, tt.sel))
		})
	}
}

func TestTextEngines(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<div id="d"><span id="s">Say HELLO there</span></div>
<p id="p">Hello <b id="b">world</b></p>
<button id="btn">  Submit  order </button>
<script>hello</script>`)

	tests := []struct {
		sel  string
		want []string
	}{
		{"text=hello", []string{"s", "p"}},
		{"text=  say   hello ", []string{"s"}},
		{`text="Submit order"`, []string{"btn"}},
		{"text=/h.llo/i", []string{"s", "p"}},
		{"text=/^Hello/", []string{"p"}},
		{"css=div >> text=hello", []string{"s"}},
		{"*css=div >> text=hello", []string{"d"}},
		{"p:has-text('world')", []string{"p"}},
		{":text-is('world')", []string{"b"}},
		{"span:text-matches('there$')", []string{"s"}},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			assert.Equal(t, tt.want, queryIDs(t, ev, doc, doc.Root, tt.sel))
		})
	}
}

func TestXPathAndAttributeEngines(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<body><p id="a" data-testid="first">a</p>
<div id="host"><template shadowrootmode="open"><p id="b" data-testid="second">b</p></template></div></body>`)

	assert.Equal(t, []string{"a", "b"}, queryIDs(t, ev, doc, doc.Root, "//p"))
	assert.Equal(t, []string{"a"}, queryIDs(t, ev, doc, doc.Root, "xpath:light=//p"))
	assert.Equal(t, []string{"a"}, queryIDs(t, ev, doc, doc.Root, "xpath=//p[@id='a']"))
	assert.Equal(t, []string{"b"}, queryIDs(t, ev, doc, doc.Root, "data-testid=second"))
	assert.Empty(t, queryIDs(t, ev, doc, doc.Root, "data-testid:light=second"))
	assert.Equal(t, []string{"a"}, queryIDs(t, ev, doc, doc.Root, "id=a"))
	assert.Equal(t, []string{"host"}, queryIDs(t, ev, doc, doc.Root, "*css=div >> xpath=//p"))
}

func TestVisibleAndScope(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<div id="outer"><span id="shown">a</span><span id="gone" hidden>b</span></div>`)
	assert.Equal(t, []string{"shown"}, queryIDs(t, ev, doc, doc.Root, "span:visible"))
	assert.Equal(t, []string{"html"}, queryIDs(t, ev, doc, doc.Root, ":scope"))

	outer := byID(t, doc, "outer")
	assert.Equal(t, []string{"outer"}, queryIDs(t, ev, doc, outer, ":scope"))
	assert.Equal(t, []string{"shown", "gone"}, queryIDs(t, ev, doc, outer, ":scope > span"))
	assert.Empty(t, queryIDs(t, ev, doc, outer, "div"), "scope never matches itself")

	ok, err := ev.Matches(doc, byID(t, doc, "shown"), parse(t, ev, "div > span"), QueryContext{Scope: doc.Root, PierceShadow: true})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ev.Matches(doc, byID(t, doc, "shown"), parse(t, ev, "div > span"), QueryContext{Scope: outer, PierceShadow: true})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluationErrors(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<div></div>`)
	qc := QueryContext{Scope: doc.Root, PierceShadow: true}
	complex := func(simple selector.SimpleSelector) selector.SelectorList {
		return selector.SelectorList{&selector.ComplexSelector{Clauses: []selector.Clause{{Simple: simple}}}}
	}

	tests := []struct {
		name string
		list selector.SelectorList
		tag  string
	}{
		{"literal", selector.SelectorList{selector.String("div")}, types.TagMalformedSelector},
		{"unknown engine", complex(selector.SimpleSelector{Functions: []selector.Function{{Name: "nope"}}}), types.TagUnknownEngine},
		{"bad css", complex(selector.SimpleSelector{CSS: "div["}), types.TagUnsupportedCSS},
		{"nth-match without index", parse(t, ev, ":nth-match(div)"), types.TagEngineError},
		{"scope with args", parse(t, ev, ":scope(div)"), types.TagEngineError},
		{"text without string", parse(t, ev, ":text(div)"), types.TagEngineError},
		{"bad regex", parse(t, ev, ":text-matches('(')"), types.TagEngineError},
		{"bad xpath", parse(t, ev, "xpath=//p["), types.TagEngineError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.QueryAll(doc, qc, tt.list)
			require.Error(t, err)
			assert.True(t, types.HasTag(err, tt.tag), "got %v", err)
		})
	}

	_, err := ev.QueryAll(doc, QueryContext{}, parse(t, ev, "div"))
	assert.True(t, types.HasTag(err, types.TagMalformedSelector))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"is", "where", "not", "has", "scope", "light", "visible", "text", "text-is",
		"text-matches", "has-text", "nth-match", "xpath", "id", "data-testid", "data-test-id", "data-test"} {
		_, err := r.Lookup(name)
		assert.NoError(t, err, name)
	}

	err := r.Register("tag", struct{}{})
	assert.True(t, types.HasTag(err, types.TagEngineError))
	err = r.Register("is", isEngine)
	assert.True(t, types.HasTag(err, types.TagEngineError))
	_, err = r.Lookup("missing")
	assert.True(t, types.HasTag(err, types.TagUnknownEngine))

	require.NoError(t, r.RegisterAttribute("data-qa"))
	ev := New(r)
	doc := mustParseDoc(t, `<a id="x" data-qa="login">x</a>`)
	assert.Equal(t, []string{"x"}, queryIDs(t, ev, doc, doc.Root, "data-qa=login"))
}

func TestSessionMemoizesEngineCalls(t *testing.T) {
	r := NewRegistry()
	calls := 0
	require.NoError(t, r.Register("counted", MatcherFunc(func(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
		calls++
		return dom.TagName(el) == "b", nil
	})))
	ev := New(r)
	doc := mustParseDoc(t, `<p><b id="b1"></b></p><p><b id="b2"></b></p>`)
	list := parse(t, ev, "p :counted, :counted")
	qc := QueryContext{Scope: doc.Root, PierceShadow: true}

	s := ev.Begin(doc)
	nodes, err := s.QueryAll(qc, list)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids(nodes))
	perSession := calls
	assert.Equal(t, len(doc.AllElements()), perSession, "each element is tested once per session")

	s.Retain()
	_, err = s.QueryAll(qc, list)
	require.NoError(t, err)
	s.End()
	assert.Equal(t, perSession, calls)
	assert.NotEmpty(t, s.memo)
	s.End()
	assert.Empty(t, s.memo)

	_, err = ev.QueryAll(doc, qc, list)
	require.NoError(t, err)
	assert.Equal(t, 2*perSession, calls)
}

func TestCompileCacheIsShared(t *testing.T) {
	ev := New(nil)
	doc := mustParseDoc(t, `<p class="x"></p>`)
	for i := 0; i < 3; i++ {
		_, err := ev.QueryAll(doc, QueryContext{Scope: doc.Root}, parse(t, ev, "p.x"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ev.css.len())
}
