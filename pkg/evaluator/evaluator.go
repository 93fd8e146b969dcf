// Package evaluator resolves parsed selectors against a document. Named
// engines plug in through a Registry; every top-level call runs inside a
// Session whose memo cache is dropped when the call ends.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// Evaluator evaluates selector lists using the engines of a Registry.
type Evaluator struct {
	registry *Registry
	logger   *zap.Logger

	css   *compileCache[cascadia.SelectorGroup]
	regex *compileCache[*regexp2.Regexp]
	xpath *compileCache[*xpath.Expr]
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an evaluator. A nil registry means NewRegistry().
func New(registry *Registry, opts ...Option) *Evaluator {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Evaluator{
		registry: registry,
		logger:   zap.NewNop(),
		css:      newCompileCache(compileCSS),
		regex:    newCompileCache(compileRegex),
		xpath:    newCompileCache(compileXPath),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the evaluator's engine registry.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Session is the scope of one top-level evaluation against one document.
// It is not safe for concurrent use.
type Session struct {
	ev     *Evaluator
	doc    *dom.Document
	retain int
	memo   map[cacheKey]any
	texts  map[*html.Node]string
}

// Begin opens a session on doc. Callers must call End.
func (e *Evaluator) Begin(doc *dom.Document) *Session {
	return &Session{
		ev:     e,
		doc:    doc,
		retain: 1,
		memo:   make(map[cacheKey]any),
		texts:  make(map[*html.Node]string),
	}
}

// Retain keeps the session's cache alive across nested Begin/End pairs.
func (s *Session) Retain() *Session {
	s.retain++
	return s
}

// End releases the session. The cache is dropped once every Retain has been
// matched by an End.
func (s *Session) End() {
	s.retain--
	if s.retain > 0 {
		return
	}
	s.ev.logger.Debug("evaluator session ended",
		zap.Int("memo_entries", len(s.memo)),
		zap.Int("text_entries", len(s.texts)))
	s.memo = make(map[cacheKey]any)
	s.texts = make(map[*html.Node]string)
}

// Doc returns the document the session evaluates against.
func (s *Session) Doc() *dom.Document {
	return s.doc
}

// Evaluator returns the evaluator that opened the session.
func (s *Session) Evaluator() *Evaluator {
	return s.ev
}

// Matches reports whether el matches any selector of list.
func (e *Evaluator) Matches(doc *dom.Document, el *html.Node, list selector.SelectorList, qc QueryContext) (bool, error) {
	s := e.Begin(doc)
	defer s.End()
	return s.Matches(el, list, qc)
}

// QueryAll returns all elements under qc.Scope matching list in document
// order.
func (e *Evaluator) QueryAll(doc *dom.Document, qc QueryContext, list selector.SelectorList) ([]*html.Node, error) {
	s := e.Begin(doc)
	defer s.End()
	return s.QueryAll(qc, list)
}

// Query returns the first element matching list, or nil.
func (e *Evaluator) Query(doc *dom.Document, qc QueryContext, list selector.SelectorList) (*html.Node, error) {
	s := e.Begin(doc)
	defer s.End()
	return s.Query(qc, list)
}

// Matches reports whether el matches any selector of list.
func (s *Session) Matches(el *html.Node, list selector.SelectorList, qc QueryContext) (bool, error) {
	return s.matchesEngine("is", isEngine, el, list, qc)
}

// QueryAll returns all elements under qc.Scope matching list.
func (s *Session) QueryAll(qc QueryContext, list selector.SelectorList) ([]*html.Node, error) {
	if qc.Scope == nil {
		return nil, types.NewMalformedSelectorError("query scope must not be nil")
	}
	nodes, err := s.queryEngine("is", isEngine, qc, list)
	if err != nil {
		return nil, err
	}
	out := make([]*html.Node, len(nodes))
	copy(out, nodes)
	return out, nil
}

// Query returns the first element under qc.Scope matching list, or nil.
func (s *Session) Query(qc QueryContext, list selector.SelectorList) (*html.Node, error) {
	nodes, err := s.QueryAll(qc, list)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

func (s *Session) matchesArg(el *html.Node, arg selector.Arg, qc QueryContext) (bool, error) {
	complex, ok := arg.(*selector.ComplexSelector)
	if !ok || len(complex.Clauses) == 0 {
		return false, types.NewMalformedSelectorError(fmt.Sprintf("expected a selector, got %T", arg))
	}
	ok, err := s.matchesSimple(el, &complex.Clauses[len(complex.Clauses)-1].Simple, qc)
	if err != nil || !ok {
		return false, err
	}
	return s.matchesParents(el, complex, len(complex.Clauses)-2, qc)
}

func (s *Session) queryArg(qc QueryContext, arg selector.Arg) ([]*html.Node, error) {
	complex, ok := arg.(*selector.ComplexSelector)
	if !ok || len(complex.Clauses) == 0 {
		return nil, types.NewMalformedSelectorError(fmt.Sprintf("expected a selector, got %T", arg))
	}
	key := cacheKey{op: opQuery, sel: complex, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() ([]*html.Node, error) {
		last := len(complex.Clauses) - 1
		elements, err := s.querySimple(qc, &complex.Clauses[last].Simple)
		if err != nil {
			return nil, err
		}
		return s.filter(elements, func(el *html.Node) (bool, error) {
			return s.matchesParents(el, complex, last-1, qc)
		})
	})
}

func (s *Session) matchesSimple(el *html.Node, simple *selector.SimpleSelector, qc QueryContext) (bool, error) {
	key := cacheKey{op: opMatchesSimple, node: el, sel: simple, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() (bool, error) {
		possiblyScope := false
		for _, fn := range simple.Functions {
			if fn.Name == "scope" || fn.Name == "is" {
				possiblyScope = true
				break
			}
		}
		// The scope itself only matches through :scope or :is(:scope).
		if !possiblyScope && el == qc.Scope {
			return false, nil
		}
		if simple.CSS != "" {
			ok, err := s.matchesCSS(el, simple.CSS)
			if err != nil || !ok {
				return false, err
			}
		}
		for i := range simple.Functions {
			fn := &simple.Functions[i]
			engine, err := s.ev.registry.Lookup(fn.Name)
			if err != nil {
				return false, err
			}
			ok, err := s.matchesEngine(fn.Name, engine, el, fn.Args, qc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

func (s *Session) querySimple(qc QueryContext, simple *selector.SimpleSelector) ([]*html.Node, error) {
	if len(simple.Functions) == 0 {
		css := simple.CSS
		if css == "" {
			css = "*"
		}
		return s.queryCSS(qc, css)
	}

	key := cacheKey{op: opQuerySimple, sel: simple, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() ([]*html.Node, error) {
		engines := make([]Engine, len(simple.Functions))
		for i, fn := range simple.Functions {
			engine, err := s.ev.registry.Lookup(fn.Name)
			if err != nil {
				return nil, err
			}
			engines[i] = engine
		}

		var elements []*html.Node
		var err error
		first := -1
		if simple.CSS != "" && simple.CSS != "*" {
			elements, err = s.queryCSS(qc, simple.CSS)
		} else {
			for i, engine := range engines {
				if _, ok := engine.(Querier); ok {
					first = i
					break
				}
			}
			if first == -1 {
				first = 0
			}
			fn := &simple.Functions[first]
			elements, err = s.queryEngine(fn.Name, engines[first], qc, fn.Args)
		}
		if err != nil {
			return nil, err
		}

		// Cheap matchers filter first; query-only engines are checked last.
		for _, wantMatcher := range []bool{true, false} {
			for i, engine := range engines {
				if i == first {
					continue
				}
				if _, isMatcher := engine.(Matcher); isMatcher != wantMatcher {
					continue
				}
				fn := &simple.Functions[i]
				elements, err = s.filter(elements, func(el *html.Node) (bool, error) {
					return s.matchesEngine(fn.Name, engine, el, fn.Args, qc)
				})
				if err != nil {
					return nil, err
				}
			}
		}
		return elements, nil
	})
}

func (s *Session) matchesParents(el *html.Node, complex *selector.ComplexSelector, index int, qc QueryContext) (bool, error) {
	if index < 0 {
		return true, nil
	}
	key := cacheKey{op: opMatchesParents, node: el, sel: complex, index: index, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() (bool, error) {
		clause := &complex.Clauses[index]
		simple := &clause.Simple
		// A clause that already failed above a descendant link cannot succeed
		// higher up the same chain.
		stopAfterMiss := func(link selector.Combinator) bool {
			return index > 0 && complex.Clauses[index-1].Combinator == link
		}

		switch clause.Combinator {
		case selector.Child:
			parent := s.parentInContext(el, qc)
			if parent == nil {
				return false, nil
			}
			return s.matchesClauseAndParents(parent, simple, complex, index, qc)

		case selector.AdjacentSibling:
			prev := previousSiblingInContext(el, qc)
			if prev == nil {
				return false, nil
			}
			return s.matchesClauseAndParents(prev, simple, complex, index, qc)

		case selector.Descendant, selector.SelfOrAncestor:
			start := s.parentInContext(el, qc)
			if clause.Combinator == selector.SelfOrAncestor {
				start = el
			}
			for parent := start; parent != nil; parent = s.parentInContext(parent, qc) {
				ok, err := s.matchesSimple(parent, simple, qc)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
				ok, err = s.matchesParents(parent, complex, index-1, qc)
				if err != nil || ok {
					return ok, err
				}
				if stopAfterMiss(selector.Descendant) {
					break
				}
			}
			return false, nil

		case selector.GeneralSibling:
			for prev := previousSiblingInContext(el, qc); prev != nil; prev = previousSiblingInContext(prev, qc) {
				ok, err := s.matchesSimple(prev, simple, qc)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
				ok, err = s.matchesParents(prev, complex, index-1, qc)
				if err != nil || ok {
					return ok, err
				}
				if stopAfterMiss(selector.GeneralSibling) {
					break
				}
			}
			return false, nil
		}
		return false, types.NewMalformedSelectorError(fmt.Sprintf("unsupported combinator %q", clause.Combinator))
	})
}

func (s *Session) matchesClauseAndParents(el *html.Node, simple *selector.SimpleSelector, complex *selector.ComplexSelector, index int, qc QueryContext) (bool, error) {
	ok, err := s.matchesSimple(el, simple, qc)
	if err != nil || !ok {
		return false, err
	}
	return s.matchesParents(el, complex, index-1, qc)
}

func (s *Session) matchesEngine(name string, engine Engine, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if m, ok := engine.(Matcher); ok {
		key := cacheKey{op: opCallMatches, node: el, sel: engineKey{name, keyOfList(args)}, scope: qc.Scope, pierce: qc.PierceShadow}
		return cached(s, key, func() (bool, error) {
			return m.Matches(s, el, args, qc)
		})
	}
	if q, ok := engine.(Querier); ok {
		nodes, err := s.callQuery(name, q, qc, args)
		if err != nil {
			return false, err
		}
		for _, n := range nodes {
			if n == el {
				return true, nil
			}
		}
		return false, nil
	}
	return false, types.NewEngineError(fmt.Sprintf("selector engine %q should implement Matches or Query", name))
}

func (s *Session) queryEngine(name string, engine Engine, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	if q, ok := engine.(Querier); ok {
		return s.callQuery(name, q, qc, args)
	}
	if m, ok := engine.(Matcher); ok {
		all, err := s.queryCSS(qc, "*")
		if err != nil {
			return nil, err
		}
		return s.filter(all, func(el *html.Node) (bool, error) {
			return s.matchesEngine(name, m, el, args, qc)
		})
	}
	return nil, types.NewEngineError(fmt.Sprintf("selector engine %q should implement Matches or Query", name))
}

func (s *Session) callQuery(name string, q Querier, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	key := cacheKey{op: opCallQuery, sel: engineKey{name, keyOfList(args)}, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() ([]*html.Node, error) {
		return q.Query(s, qc, args)
	})
}

func (s *Session) matchesCSS(el *html.Node, css string) (bool, error) {
	group, err := s.ev.css.get(css)
	if err != nil {
		return false, err
	}
	return group.Match(el), nil
}

// queryCSS returns the elements below qc.Scope matching css: the light tree
// first, then the scope's own shadow tree, then the shadow trees of its
// descendants in order.
func (s *Session) queryCSS(qc QueryContext, css string) ([]*html.Node, error) {
	key := cacheKey{op: opQueryCSS, sel: css, scope: qc.Scope, pierce: qc.PierceShadow}
	return cached(s, key, func() ([]*html.Node, error) {
		var match func(*html.Node) bool
		if css == "*" {
			match = func(*html.Node) bool { return true }
		} else {
			group, err := s.ev.css.get(css)
			if err != nil {
				return nil, err
			}
			match = group.Match
		}

		var result []*html.Node
		var query func(root *html.Node)
		query = func(root *html.Node) {
			dom.Walk(root, func(el *html.Node) bool {
				if match(el) {
					result = append(result, el)
				}
				return true
			})
			if !qc.PierceShadow {
				return
			}
			if shadow := s.doc.ShadowRoot(root); shadow != nil {
				query(shadow)
			}
			dom.Walk(root, func(el *html.Node) bool {
				if shadow := s.doc.ShadowRoot(el); shadow != nil {
					query(shadow)
				}
				return true
			})
		}
		query(qc.Scope)
		return result, nil
	})
}

// shadowRoots returns the shadow roots below scope in queryCSS order.
func (s *Session) shadowRoots(scope *html.Node) []*html.Node {
	var roots []*html.Node
	var visit func(root *html.Node)
	visit = func(root *html.Node) {
		if shadow := s.doc.ShadowRoot(root); shadow != nil {
			roots = append(roots, shadow)
			visit(shadow)
		}
		dom.Walk(root, func(el *html.Node) bool {
			if shadow := s.doc.ShadowRoot(el); shadow != nil {
				roots = append(roots, shadow)
				visit(shadow)
			}
			return true
		})
	}
	visit(scope)
	return roots
}

// Text returns the memoized full text of root (an element or shadow root).
func (s *Session) Text(root *html.Node) string {
	if t, ok := s.texts[root]; ok {
		return t
	}
	t := s.doc.ElementText(root)
	s.texts[root] = t
	return t
}

func (s *Session) parentInContext(el *html.Node, qc QueryContext) *html.Node {
	if el == qc.Scope {
		return nil
	}
	if !qc.PierceShadow {
		return dom.ParentElement(el)
	}
	return s.doc.ParentElementOrShadowHost(el)
}

func previousSiblingInContext(el *html.Node, qc QueryContext) *html.Node {
	if el == qc.Scope {
		return nil
	}
	return dom.PreviousElementSibling(el)
}

// filter returns a new slice with the elements keep accepts. The input may be
// a cached result and is never modified.
func (s *Session) filter(elements []*html.Node, keep func(*html.Node) (bool, error)) ([]*html.Node, error) {
	out := make([]*html.Node, 0, len(elements))
	for _, el := range elements {
		ok, err := keep(el)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, el)
		}
	}
	return out, nil
}

func compileCSS(css string) (cascadia.SelectorGroup, error) {
	group, err := cascadia.ParseGroup(css)
	if err != nil {
		return nil, types.NewUnsupportedCSSError(css, err)
	}
	return group, nil
}

func compileXPath(expr string) (*xpath.Expr, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, types.NewEngineError(fmt.Sprintf("invalid xpath %q: %v", expr, err))
	}
	return compiled, nil
}

// regexKey joins a pattern and its flags into one compile cache key.
func regexKey(pattern, flags string) string {
	return pattern + "\x00" + flags
}

// compileRegex compiles a JavaScript-style pattern. The dotAll flag needs
// Singleline, which the ECMAScript mode does not allow.
func compileRegex(key string) (*regexp2.Regexp, error) {
	pattern, flags, _ := strings.Cut(key, "\x00")
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'u', 'y':
		default:
			return nil, types.NewEngineError(fmt.Sprintf("invalid regular expression flags %q", flags))
		}
	}
	if opts&regexp2.Singleline != 0 {
		opts &^= regexp2.ECMAScript
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, types.NewEngineError(fmt.Sprintf("invalid regular expression /%s/%s: %v", pattern, flags, err))
	}
	return re, nil
}
