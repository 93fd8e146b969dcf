package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/config"
	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/generator"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

const page = `<html><body>
<div id="list">
  <section data-qa="first"><h2>Alpha</h2><button>Open</button></section>
  <section data-qa="second"><h2>Beta</h2><button>Open</button></section>
</div>
<div id="host"><template shadowrootmode="open"><span id="inner">Hidden <b>treasure</b></span></template></div>
</body></html>`

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return e
}

func mustParse(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	return doc
}

func tags(nodes []*html.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = dom.TagName(n)
	}
	return out
}

func TestQuerySelectorAll(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)

	nodes, err := e.QuerySelectorAll(doc, "section >> text=Open", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"button", "button"}, tags(nodes))

	nodes, err = e.QuerySelectorAll(doc, "#inner", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = e.QuerySelectorAll(doc, "#inner", QueryOptions{Light: true})
	require.NoError(t, err)
	assert.Empty(t, nodes)

	first, err := e.QuerySelector(doc, "section", QueryOptions{})
	require.NoError(t, err)
	nodes, err = e.QuerySelectorAll(doc, "button", QueryOptions{Root: first})
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestQuerySelectorNoMatch(t *testing.T) {
	e := newEngine(t, nil)
	node, err := e.QuerySelector(mustParse(t), "article", QueryOptions{})
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestAttributeEnginesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engines.Attributes = []string{"data-qa"}
	e := newEngine(t, cfg)
	assert.Contains(t, e.EngineNames(), "data-qa")

	nodes, err := e.QuerySelectorAll(mustParse(t), "data-qa=second >> h2", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Beta", dom.NormalizeWhiteSpace(mustParse(t).ElementText(nodes[0])))

	cfg.Engines.Attributes = []string{"id"}
	_, err = NewEngine(cfg, nil)
	assert.Error(t, err)
}

func TestErrorsNameTheSelector(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)

	_, err := e.QuerySelectorAll(doc, "textt=foo", QueryOptions{})
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagUnknownEngine))

	_, err = e.QuerySelectorAll(doc, "div:nth-match(div, 0)", QueryOptions{})
	require.Error(t, err)
	var se *types.SelectorError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "div:nth-match(div, 0)", se.Selector)

	_, err = e.QuerySelectorAll(doc, "div", QueryOptions{Root: &html.Node{Type: html.ElementNode, Data: "div"}})
	assert.True(t, types.HasTag(err, types.TagMalformedSelector))
}

func TestParseSelectorIsCached(t *testing.T) {
	e := newEngine(t, nil)
	a, err := e.ParseSelector("div >> text=hi")
	require.NoError(t, err)
	b, err := e.ParseSelector("div >> text=hi")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGenerateSelectorRoundTrip(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)

	for _, el := range doc.AllElements() {
		res, err := e.GenerateSelector(doc, el)
		require.NoError(t, err)
		nodes, err := e.QuerySelectorAll(doc, res.Selector, QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, res.Elements, nodes, res.Selector)
	}

	_, err := e.GenerateSelector(doc, &html.Node{Type: html.ElementNode, Data: "p"})
	assert.ErrorIs(t, err, generator.ErrForeignElement)
}

func TestMatches(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)
	inner, err := e.QuerySelector(doc, "#inner", QueryOptions{})
	require.NoError(t, err)

	ok, err := e.Matches(doc, inner, "#host span")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Matches(doc, inner, "section span")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindText(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)

	el := e.FindText(doc, nil, "hidden TREASURE", true)
	require.NotNil(t, el)
	assert.Equal(t, "inner", dom.AttrOr(el, "id", ""))

	assert.Nil(t, e.FindText(doc, nil, "hidden TREASURE", false))
	assert.Nil(t, e.FindText(doc, nil, "missing", true))
}

func TestConcurrentQueries(t *testing.T) {
	e := newEngine(t, nil)
	doc := mustParse(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nodes, err := e.QuerySelectorAll(doc, "section:has-text(\"Beta\") >> button", QueryOptions{})
			assert.NoError(t, err)
			assert.Len(t, nodes, 1)
		}()
	}
	wg.Wait()
}

func TestDescribe(t *testing.T) {
	doc := mustParse(t)
	e := newEngine(t, nil)
	el, err := e.QuerySelector(doc, "#inner", QueryOptions{})
	require.NoError(t, err)

	info := Describe(doc, el)
	assert.Equal(t, doc.IndexOf(el), info.Handle)
	assert.Equal(t, "span", info.Tag)
	assert.Equal(t, "inner", info.ID)
	assert.Equal(t, "Hidden treasure", info.Text)
	assert.Equal(t, "html > body > div > span", info.Path)
}
