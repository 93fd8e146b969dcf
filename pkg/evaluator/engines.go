package evaluator

import (
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

func (r *Registry) registerLogical() {
	r.engines["is"] = isEngine
	r.engines["where"] = isEngine
	r.engines["not"] = MatcherFunc(matchNot)
	r.engines["has"] = MatcherFunc(matchHas)
	r.engines["scope"] = dualEngine{MatcherFunc(matchScope), QuerierFunc(queryScope)}
	r.engines["light"] = dualEngine{MatcherFunc(matchLight), QuerierFunc(queryLight)}
	r.engines["visible"] = MatcherFunc(matchVisible)
	r.engines["nth-match"] = QuerierFunc(queryNthMatch)
}

// logicalIs implements :is() and :where(), which only differ in CSS
// specificity.
type logicalIs struct{}

var isEngine = logicalIs{}

func (logicalIs) Matches(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if err := requireArgs("is", args, 1, -1); err != nil {
		return false, err
	}
	for _, arg := range args {
		ok, err := s.matchesArg(el, arg, qc)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (logicalIs) Query(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	if err := requireArgs("is", args, 1, -1); err != nil {
		return nil, err
	}
	var elements []*html.Node
	for _, arg := range args {
		nodes, err := s.queryArg(qc, arg)
		if err != nil {
			return nil, err
		}
		elements = append(elements, nodes...)
	}
	if len(args) == 1 {
		return elements, nil
	}
	return s.doc.SortInDocumentOrder(elements), nil
}

func matchNot(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if err := requireArgs("not", args, 1, -1); err != nil {
		return false, err
	}
	ok, err := s.Matches(el, args, qc)
	return !ok, err
}

func matchHas(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if err := requireArgs("has", args, 1, -1); err != nil {
		return false, err
	}
	nodes, err := s.queryEngine("is", isEngine, QueryContext{Scope: el, PierceShadow: qc.PierceShadow}, args)
	return len(nodes) > 0, err
}

func matchScope(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if err := requireArgs("scope", args, 0, 0); err != nil {
		return false, err
	}
	if qc.Scope.Type == html.DocumentNode {
		return el == s.doc.DocumentElement(), nil
	}
	return el == qc.Scope, nil
}

func queryScope(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	if err := requireArgs("scope", args, 0, 0); err != nil {
		return nil, err
	}
	switch {
	case qc.Scope.Type == html.DocumentNode:
		if root := s.doc.DocumentElement(); root != nil {
			return []*html.Node{root}, nil
		}
	case dom.IsElement(qc.Scope):
		return []*html.Node{qc.Scope}, nil
	}
	return nil, nil
}

func matchLight(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	return s.Matches(el, args, QueryContext{Scope: qc.Scope})
}

func queryLight(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	return s.queryEngine("is", isEngine, QueryContext{Scope: qc.Scope}, args)
}

func matchVisible(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	if err := requireArgs("visible", args, 0, 0); err != nil {
		return false, err
	}
	return s.doc.IsVisible(el), nil
}

// queryNthMatch selects the n-th (one-based) element matched by the selector
// list preceding the index argument.
func queryNthMatch(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	if len(args) < 2 {
		return nil, types.NewEngineError(`"nth-match" engine expects non-empty selector list and an index argument`)
	}
	n, ok := args[len(args)-1].(selector.Number)
	if !ok || n < 1 {
		return nil, types.NewEngineError(`"nth-match" engine expects a one-based index as the last argument`)
	}
	elements, err := s.queryEngine("is", isEngine, qc, args[:len(args)-1])
	if err != nil {
		return nil, err
	}
	if float64(n) > float64(len(elements)) {
		return nil, nil
	}
	return []*html.Node{elements[int(n)-1]}, nil
}

// attributeEngine matches elements whose attr equals the argument exactly.
func attributeEngine(attr string) Engine {
	return MatcherFunc(func(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
		if err := requireArgs(attr, args, 1, 1); err != nil {
			return false, err
		}
		want, err := stringArg(attr, args, 0)
		if err != nil {
			return false, err
		}
		got, ok := dom.Attr(el, attr)
		return ok && got == want, nil
	})
}
