package evaluator

import (
	"fmt"
	"sort"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// QueryContext carries the scope node every selector is evaluated against.
// It is narrowed (never mutated) when engines recurse, e.g. has() scopes its
// sub-query to the candidate element.
type QueryContext struct {
	Scope        *html.Node
	PierceShadow bool
}

// Matcher is implemented by engines that can test a single element.
type Matcher interface {
	Matches(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error)
}

// Querier is implemented by engines that can enumerate matching elements
// under a scope directly.
type Querier interface {
	Query(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error)
}

// Engine is a named selector engine. It must implement Matcher, Querier or
// both.
type Engine interface{}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error)

func (f MatcherFunc) Matches(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	return f(s, el, args, qc)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error)

func (f QuerierFunc) Query(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	return f(s, qc, args)
}

// dualEngine combines a matcher and a querier into one engine.
type dualEngine struct {
	MatcherFunc
	QuerierFunc
}

// Registry maps engine names to engines.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates a registry with all built-in engines registered.
func NewRegistry() *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	r.registerLogical()
	r.registerText()
	r.registerXPath()
	for _, attr := range DefaultAttributeEngines {
		r.engines[attr] = attributeEngine(attr)
	}
	return r
}

// DefaultAttributeEngines are the attribute-equality engines every registry
// starts with.
var DefaultAttributeEngines = []string{"id", "data-testid", "data-test-id", "data-test"}

// Register adds an engine under name. Names are unique and the engine must
// implement at least one of Matcher and Querier.
func (r *Registry) Register(name string, engine Engine) error {
	if name == "" {
		return types.NewEngineError("engine name must not be empty")
	}
	if _, exists := r.engines[name]; exists {
		return types.NewEngineError(fmt.Sprintf("%q selector engine has been already registered", name))
	}
	_, isMatcher := engine.(Matcher)
	_, isQuerier := engine.(Querier)
	if !isMatcher && !isQuerier {
		return types.NewEngineError(fmt.Sprintf("selector engine %q should implement Matches or Query", name))
	}
	r.engines[name] = engine
	return nil
}

// RegisterAttribute registers an attribute-equality engine named after attr.
func (r *Registry) RegisterAttribute(attr string) error {
	return r.Register(attr, attributeEngine(attr))
}

// Lookup returns the engine registered under name.
func (r *Registry) Lookup(name string) (Engine, error) {
	engine, ok := r.engines[name]
	if !ok {
		return nil, types.NewUnknownEngineError(name, "", "")
	}
	return engine, nil
}

// Names returns the sorted names of all registered engines.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireArgs checks that an engine received between min and max arguments.
// max < 0 means unbounded.
func requireArgs(name string, args selector.SelectorList, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		switch {
		case max == 0:
			return types.NewEngineError(fmt.Sprintf("%q engine expects no arguments", name))
		case max < 0:
			return types.NewEngineError(fmt.Sprintf("%q engine expects non-empty selector list", name))
		default:
			return types.NewEngineError(fmt.Sprintf("%q engine expects %d to %d arguments, got %d", name, min, max, len(args)))
		}
	}
	return nil
}

// stringArg returns args[i] as a string literal.
func stringArg(name string, args selector.SelectorList, i int) (string, error) {
	if i < len(args) {
		if s, ok := args[i].(selector.String); ok {
			return string(s), nil
		}
	}
	return "", types.NewEngineError(fmt.Sprintf("%q engine expects a single string", name))
}
