package evaluator

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/selector"
)

type operation uint8

const (
	opMatchesSimple operation = iota
	opQuerySimple
	opMatchesParents
	opQuery
	opQueryCSS
	opCallMatches
	opCallQuery
)

// cacheKey identifies one memoized sub-computation. Selector parts are keyed
// by identity: the AST of a call is never mutated while a session is open.
type cacheKey struct {
	op     operation
	node   *html.Node
	sel    any
	index  int
	scope  *html.Node
	pierce bool
}

// listKey identifies an argument list by its backing array and length, so a
// reslice of the same arguments hits the same entry.
type listKey struct {
	first *selector.Arg
	n     int
}

func keyOfList(args selector.SelectorList) listKey {
	if len(args) == 0 {
		return listKey{}
	}
	return listKey{first: &args[0], n: len(args)}
}

type engineKey struct {
	name string
	args listKey
}

// cached returns the memoized result for key, computing it on a miss.
// Errors are returned but never stored.
func cached[T any](s *Session, key cacheKey, compute func() (T, error)) (T, error) {
	if v, ok := s.memo[key]; ok {
		return v.(T), nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	s.memo[key] = v
	return v, nil
}

type compiled[T any] struct {
	value T
	err   error
}

// compileCache memoizes compiled CSS, regular expressions and XPath
// expressions for the lifetime of an Evaluator. It is safe for concurrent
// use.
type compileCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]compiled[T]
	compile func(source string) (T, error)
}

func newCompileCache[T any](compile func(source string) (T, error)) *compileCache[T] {
	return &compileCache[T]{entries: make(map[string]compiled[T]), compile: compile}
}

func (c *compileCache[T]) get(source string) (T, error) {
	c.mu.RLock()
	entry, ok := c.entries[source]
	c.mu.RUnlock()
	if ok {
		return entry.value, entry.err
	}

	value, err := c.compile(source)
	c.mu.Lock()
	c.entries[source] = compiled[T]{value: value, err: err}
	c.mu.Unlock()
	return value, err
}

func (c *compileCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
