// Package generator synthesizes short, unique selectors for elements.
package generator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/evaluator"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
)

// ErrForeignElement is returned when the target does not belong to the
// document.
var ErrForeignElement = errors.New("element does not belong to the document")

// Scores are the costs of each kind of candidate.
type Scores struct {
	TestID          int `yaml:"testId"`
	Text            int `yaml:"text"`
	TextRegex       int `yaml:"textRegex"`
	Placeholder     int `yaml:"placeholder"`
	AriaLabel       int `yaml:"ariaLabel"`
	Alt             int `yaml:"alt"`
	HasText         int `yaml:"hasText"`
	Role            int `yaml:"role"`
	Name            int `yaml:"name"`
	Type            int `yaml:"type"`
	FormTag         int `yaml:"formTag"`
	ID              int `yaml:"id"`
	Tag             int `yaml:"tag"`
	NthMatchPenalty int `yaml:"nthMatchPenalty"`
	Fallback        int `yaml:"fallback"`
}

// DefaultScores returns the standard candidate costs.
func DefaultScores() Scores {
	return Scores{
		TestID:          1,
		Text:            10,
		TextRegex:       250,
		Placeholder:     10,
		AriaLabel:       10,
		Alt:             10,
		HasText:         30,
		Role:            50,
		Name:            50,
		Type:            50,
		FormTag:         50,
		ID:              100,
		Tag:             200,
		NthMatchPenalty: 1000,
		Fallback:        10_000_000,
	}
}

// Options tune the generator.
type Options struct {
	Scores           Scores
	TestIDAttributes []string
	// MaxNthMatchCandidates is the largest result set an nth-match fallback
	// may index into.
	MaxNthMatchCandidates int
	MaxTextLength         int
	GUIDRatio             float64
	// Retarget moves the target to its closest button-like ancestor.
	Retarget bool
	Logger   *zap.Logger
}

// DefaultOptions returns the standard generator options.
func DefaultOptions() Options {
	return Options{
		Scores:                DefaultScores(),
		TestIDAttributes:      []string{"data-testid", "data-test-id", "data-test"},
		MaxNthMatchCandidates: 5,
		MaxTextLength:         80,
		GUIDRatio:             0.25,
		Retarget:              true,
	}
}

// Generator builds selectors with a parser and an evaluator that agree on
// the set of engines.
type Generator struct {
	parser *selector.Parser
	ev     *evaluator.Evaluator
	opts   Options
	logger *zap.Logger
}

// New creates a generator.
func New(parser *selector.Parser, ev *evaluator.Evaluator, opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{parser: parser, ev: ev, opts: opts, logger: logger}
}

// Result is a generated selector and the elements it resolves to.
type Result struct {
	Selector string
	Elements []*html.Node
}

var retargetSelector = cascadia.MustCompile("button,select,input,[role=button],[role=checkbox],[role=radio]")

// Generate returns a selector for target. It only fails when target is not
// an element of doc.
func (g *Generator) Generate(doc *dom.Document, target *html.Node) (*Result, error) {
	s := g.ev.Begin(doc)
	defer s.End()
	return g.GenerateInSession(s, target)
}

// GenerateInSession generates a selector reusing the memo cache of an open
// session.
func (g *Generator) GenerateInSession(s *evaluator.Session, target *html.Node) (*Result, error) {
	s.Retain()
	defer s.End()

	doc := s.Doc()
	if !doc.Contains(target) {
		return nil, ErrForeignElement
	}
	if g.opts.Retarget {
		for el := target; el != nil; el = dom.ParentElement(el) {
			if retargetSelector.Match(el) {
				target = el
				break
			}
		}
	}

	run := &generation{
		g:            g,
		s:            s,
		doc:          doc,
		target:       target,
		parsed:       make(map[string]selector.SelectorList),
		allowText:    make(map[*html.Node][]Token),
		disallowText: make(map[*html.Node][]Token),
	}
	tokens := run.selectorFor()
	if tokens == nil {
		tokens = []Token{run.cssFallback()}
	}
	sel := joinTokens(tokens)
	elements := run.queryAll(sel, doc.Root)
	g.logger.Debug("generated selector",
		zap.String("selector", sel),
		zap.Int("elements", len(elements)),
		zap.Int("queries", run.queries))
	return &Result{Selector: sel, Elements: elements}, nil
}

// generation holds the state of one Generate call.
type generation struct {
	g      *Generator
	s      *evaluator.Session
	doc    *dom.Document
	target *html.Node

	parsed       map[string]selector.SelectorList
	allowText    map[*html.Node][]Token
	disallowText map[*html.Node][]Token
	queries      int
}

// queryAll resolves sel under scope, piercing shadow roots. Selectors that
// fail to parse or evaluate resolve to nothing.
func (r *generation) queryAll(sel string, scope *html.Node) []*html.Node {
	return r.query(sel, evaluator.QueryContext{Scope: scope, PierceShadow: true})
}

func (r *generation) query(sel string, qc evaluator.QueryContext) []*html.Node {
	list, ok := r.parsed[sel]
	if !ok {
		parsed, err := r.g.parser.Parse(sel)
		if err != nil {
			r.g.logger.Debug("candidate selector rejected", zap.String("selector", sel), zap.Error(err))
		} else {
			list = parsed.V2
		}
		r.parsed[sel] = list
	}
	if list == nil {
		return nil
	}
	r.queries++
	nodes, err := r.s.QueryAll(qc, list)
	if err != nil {
		r.g.logger.Debug("candidate selector failed", zap.String("selector", sel), zap.Error(err))
		return nil
	}
	return nodes
}

func (r *generation) selectorFor() []Token {
	if r.target == r.doc.DocumentElement() {
		return []Token{{Engine: "css", Selector: "html", Score: 1}}
	}
	return r.calculateCached(r.target, true)
}

func (r *generation) calculateCached(el *html.Node, allowText bool) []Token {
	cache := r.disallowText
	if allowText {
		cache = r.allowText
	}
	if tokens, ok := cache[el]; ok {
		return tokens
	}
	tokens := r.calculate(el, allowText)
	cache[el] = tokens
	return tokens
}

func withoutRegex(candidates [][]Token) [][]Token {
	var out [][]Token
	for _, c := range candidates {
		if !isRegexToken(c[0]) {
			out = append(out, c)
		}
	}
	return out
}

func (r *generation) calculate(el *html.Node, allowText bool) []Token {
	isTarget := el == r.target
	allowNthMatch := isTarget

	var textCandidates [][]Token
	if allowText {
		for _, t := range r.g.buildTextCandidates(r.s.Text(el), el, isTarget) {
			textCandidates = append(textCandidates, []Token{t})
		}
	}
	if !isTarget {
		textCandidates = withoutRegex(textCandidates)
	}
	var plainCandidates [][]Token
	for _, t := range r.g.buildCandidates(el) {
		plainCandidates = append(plainCandidates, []Token{t})
	}

	all := append(append([][]Token{}, textCandidates...), plainCandidates...)
	result := r.chooseFirstSelector(r.doc.Root, el, all, allowNthMatch)

	// Chained selectors never use regular expressions.
	textCandidates = withoutRegex(textCandidates)

	checkWithText := func(textToUse [][]Token) {
		// Text on the element itself makes text on its parents redundant.
		allowParentText := allowText && len(textToUse) == 0

		var candidates [][]Token
		for _, c := range append(append([][]Token{}, textToUse...), plainCandidates...) {
			if result == nil || combineScores(c) < combineScores(result) {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			return
		}
		// Widening the scope only makes a candidate less selective, so the
		// best match inside a parent bounds every grand-parent.
		bestPossibleInParent := candidates[0]

		for parent := r.doc.ParentElementOrShadowHost(el); parent != nil; parent = r.doc.ParentElementOrShadowHost(parent) {
			parentTokens := r.calculateCached(parent, allowParentText)
			if parentTokens == nil {
				continue
			}
			if result != nil && combineScores(concat(parentTokens, bestPossibleInParent)) >= combineScores(result) {
				continue
			}
			bestPossibleInParent = r.chooseFirstSelector(parent, el, candidates, allowNthMatch)
			if bestPossibleInParent == nil {
				return
			}
			combined := concat(parentTokens, bestPossibleInParent)
			if (result == nil || combineScores(combined) < combineScores(result)) && r.resolvesTo(combined, el) {
				result = combined
			}
		}
	}

	checkWithText(textCandidates)
	// The target may skip its own text and rely on text of a parent.
	if isTarget && len(textCandidates) > 0 {
		checkWithText(nil)
	}
	return result
}

func concat(a, b []Token) []Token {
	out := make([]Token, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// chooseFirstSelector returns the cheapest candidate that resolves to
// exactly el under scope, or an nth-match over a small result set that
// contains el.
func (r *generation) chooseFirstSelector(scope, el *html.Node, candidates [][]Token, allowNthMatch bool) []Token {
	sorted := append([][]Token(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return combineScores(sorted[i]) < combineScores(sorted[j])
	})

	var bestWithIndex []Token
	for _, tokens := range sorted {
		result := r.queryAll(joinTokens(tokens), scope)
		if len(result) == 1 && result[0] == el {
			return tokens
		}
		index := indexOf(result, el)
		if !allowNthMatch || bestWithIndex != nil || index == -1 || len(result) > r.g.opts.MaxNthMatchCandidates {
			continue
		}

		allCSS := make([]Token, len(tokens))
		for i, t := range tokens {
			allCSS[i] = t
			if t.Engine != "text" {
				continue
			}
			if strings.HasPrefix(t.Selector, "/") && strings.HasSuffix(t.Selector, "/") {
				allCSS[i] = Token{Engine: "css", Selector: ":text-matches(" + quote(t.Selector[1:len(t.Selector)-1]) + ")", Score: t.Score}
			} else {
				allCSS[i] = Token{Engine: "css", Selector: ":text(" + quote(t.Selector) + ")", Score: t.Score}
			}
		}
		bestWithIndex = []Token{{
			Engine:   "css",
			Selector: fmt.Sprintf(":nth-match(%s, %d)", joinTokens(allCSS), index+1),
			Score:    combineScores(allCSS) + r.g.opts.Scores.NthMatchPenalty,
		}}
	}
	return bestWithIndex
}

// resolvesTo reports whether the chained tokens select exactly el from the
// document root. Segments after ">>" are matched as descendants, which
// differs from scoped evaluation for nth-match and text candidates.
func (r *generation) resolvesTo(tokens []Token, el *html.Node) bool {
	result := r.queryAll(joinTokens(tokens), r.doc.Root)
	return len(result) == 1 && result[0] == el
}

func indexOf(nodes []*html.Node, el *html.Node) int {
	for i, n := range nodes {
		if n == el {
			return i
		}
	}
	return -1
}
