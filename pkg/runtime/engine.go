// Package runtime wires the parser, evaluator and generator into a single
// engine used by the servers and the CLI.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/config"
	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/evaluator"
	"github.com/lemonberrylabs/selector-engine/pkg/generator"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/textmatch"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// MaxParsedSelectors bounds the parsed selector cache. The cache is dropped
// as a whole when it fills up.
const MaxParsedSelectors = 4096

// Engine evaluates and generates selectors against documents. It is safe for
// concurrent use; every call runs in its own evaluation session.
type Engine struct {
	registry  *evaluator.Registry
	parser    *selector.Parser
	evaluator *evaluator.Evaluator
	generator *generator.Generator
	logger    *zap.Logger

	mu     sync.RWMutex
	parsed map[string]*selector.ParsedSelector
}

// NewEngine builds an engine from cfg. A nil cfg uses config.Default and a
// nil logger discards output.
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := evaluator.NewRegistry()
	for _, attr := range cfg.Engines.Attributes {
		if err := registry.RegisterAttribute(attr); err != nil {
			return nil, fmt.Errorf("registering attribute engine %q: %w", attr, err)
		}
	}
	parser := selector.NewParser(registry.Names()...)
	ev := evaluator.New(registry, evaluator.WithLogger(logger.Named("evaluator")))

	opts := cfg.GeneratorOptions()
	opts.Logger = logger.Named("generator")

	return &Engine{
		registry:  registry,
		parser:    parser,
		evaluator: ev,
		generator: generator.New(parser, ev, opts),
		logger:    logger,
		parsed:    make(map[string]*selector.ParsedSelector),
	}, nil
}

// EngineNames returns every engine name selectors may use.
func (e *Engine) EngineNames() []string {
	return e.parser.Names()
}

// Tokenize splits a CSS string into tokens.
func (e *Engine) Tokenize(input string) ([]csstoken.Token, error) {
	return csstoken.Tokenize(input)
}

// ParseSelector parses sel into its legacy and modern forms. Results are
// cached and must not be modified.
func (e *Engine) ParseSelector(sel string) (*selector.ParsedSelector, error) {
	e.mu.RLock()
	parsed, ok := e.parsed[sel]
	e.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := e.parser.Parse(sel)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.parsed) >= MaxParsedSelectors {
		e.parsed = make(map[string]*selector.ParsedSelector)
	}
	e.parsed[sel] = parsed
	e.mu.Unlock()
	return parsed, nil
}

// QueryOptions narrow a query. A nil Root means the whole document.
type QueryOptions struct {
	Root *html.Node
	// Light disables shadow root piercing.
	Light bool
}

func (e *Engine) queryContext(doc *dom.Document, opts QueryOptions) (evaluator.QueryContext, error) {
	root := opts.Root
	if root == nil {
		root = doc.Root
	} else if root != doc.Root && !doc.Contains(root) {
		return evaluator.QueryContext{}, types.NewMalformedSelectorError("query root does not belong to the document")
	}
	return evaluator.QueryContext{Scope: root, PierceShadow: !opts.Light}, nil
}

// QuerySelectorAll returns every element matching sel in document order.
func (e *Engine) QuerySelectorAll(doc *dom.Document, sel string, opts QueryOptions) ([]*html.Node, error) {
	parsed, err := e.ParseSelector(sel)
	if err != nil {
		return nil, err
	}
	qc, err := e.queryContext(doc, opts)
	if err != nil {
		return nil, err
	}
	nodes, err := e.evaluator.QueryAll(doc, qc, parsed.V2)
	if err != nil {
		return nil, withSelector(err, sel)
	}
	e.logger.Debug("query",
		zap.String("selector", sel),
		zap.Int("matches", len(nodes)))
	return nodes, nil
}

// QuerySelector returns the first element matching sel, or nil.
func (e *Engine) QuerySelector(doc *dom.Document, sel string, opts QueryOptions) (*html.Node, error) {
	parsed, err := e.ParseSelector(sel)
	if err != nil {
		return nil, err
	}
	qc, err := e.queryContext(doc, opts)
	if err != nil {
		return nil, err
	}
	node, err := e.evaluator.Query(doc, qc, parsed.V2)
	if err != nil {
		return nil, withSelector(err, sel)
	}
	return node, nil
}

// Matches reports whether el matches sel.
func (e *Engine) Matches(doc *dom.Document, el *html.Node, sel string) (bool, error) {
	if !doc.Contains(el) {
		return false, generator.ErrForeignElement
	}
	parsed, err := e.ParseSelector(sel)
	if err != nil {
		return false, err
	}
	ok, err := e.evaluator.Matches(doc, el, parsed.V2, evaluator.QueryContext{Scope: doc.Root, PierceShadow: true})
	if err != nil {
		return false, withSelector(err, sel)
	}
	return ok, nil
}

// GenerateSelector returns a selector that resolves to el only.
func (e *Engine) GenerateSelector(doc *dom.Document, el *html.Node) (*generator.Result, error) {
	return e.generator.Generate(doc, el)
}

// FindText returns the smallest element containing the first occurrence of
// text below root (the whole document when root is nil), or nil.
func (e *Engine) FindText(doc *dom.Document, root *html.Node, text string, ignoreCase bool) *html.Node {
	if root == nil {
		root = doc.Root
	}
	return textmatch.FindElement(doc, root, text, ignoreCase)
}

// withSelector returns a copy of a selector error naming sel. Errors may be
// shared through the compile caches, so they are never modified in place.
func withSelector(err error, sel string) error {
	var se *types.SelectorError
	if errors.As(err, &se) && se.Selector == "" {
		cp := *se
		cp.Selector = sel
		return &cp
	}
	return err
}
