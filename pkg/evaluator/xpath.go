package evaluator

import (
	"strings"

	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
)

func (r *Registry) registerXPath() {
	r.engines["xpath"] = QuerierFunc(queryXPath)
}

// queryXPath evaluates an XPath expression relative to the scope. Absolute
// paths are made relative. With shadow piercing the expression is evaluated
// again from every shadow root below the scope.
func queryXPath(s *Session, qc QueryContext, args selector.SelectorList) ([]*html.Node, error) {
	source, err := singleString("xpath", args)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(source, "/") {
		source = "." + source
	}
	expr, err := s.ev.xpath.get(source)
	if err != nil {
		return nil, err
	}

	var result []*html.Node
	seen := make(map[*html.Node]bool)
	evaluate := func(root *html.Node) {
		iter := expr.Select(dom.NewNavigator(root))
		for iter.MoveNext() {
			nav := iter.Current()
			if nav.NodeType() != xpath.ElementNode {
				continue
			}
			el := nav.(*dom.Navigator).Current()
			if !seen[el] {
				seen[el] = true
				result = append(result, el)
			}
		}
	}
	evaluate(qc.Scope)
	if qc.PierceShadow {
		for _, root := range s.shadowRoots(qc.Scope) {
			evaluate(root)
		}
	}
	return result, nil
}
