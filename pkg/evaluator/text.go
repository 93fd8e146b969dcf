package evaluator

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/lemonberrylabs/selector-engine/pkg/dom"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
	"github.com/lemonberrylabs/selector-engine/pkg/textmatch"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

func (r *Registry) registerText() {
	r.engines["text"] = MatcherFunc(matchText)
	r.engines["text-is"] = MatcherFunc(matchTextIs)
	r.engines["text-matches"] = MatcherFunc(matchTextMatches)
	r.engines["has-text"] = MatcherFunc(matchHasText)
}

// textMatch says where a text matcher succeeded relative to an element.
type textMatch int

const (
	textNone textMatch = iota
	// textSelf means the element matches and none of its children do.
	textSelf
	textSelfAndChildren
)

// textMatcher tests the text of an element or shadow root.
type textMatcher func(root *html.Node) (bool, error)

func (s *Session) elementMatchesText(el *html.Node, matcher textMatcher) (textMatch, error) {
	if dom.SkipForText(el) {
		return textNone, nil
	}
	ok, err := matcher(el)
	if err != nil || !ok {
		return textNone, err
	}
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		if !dom.IsElement(child) || dom.SkipForText(child) {
			continue
		}
		ok, err := matcher(child)
		if err != nil {
			return textNone, err
		}
		if ok {
			return textSelfAndChildren, nil
		}
	}
	if shadow := s.doc.ShadowRoot(el); shadow != nil {
		ok, err := matcher(shadow)
		if err != nil {
			return textNone, err
		}
		if ok {
			return textSelfAndChildren, nil
		}
	}
	return textSelf, nil
}

// laxMatcher matches a case-insensitive substring after whitespace
// normalization, streaming the text with KMP.
func (s *Session) laxMatcher(text string) textMatcher {
	return func(root *html.Node) (bool, error) {
		return textmatch.Contains(s.doc, root, text, true), nil
	}
}

// strictMatcher matches the whole normalized text exactly.
func (s *Session) strictMatcher(text string) textMatcher {
	want := dom.NormalizeWhiteSpace(text)
	return func(root *html.Node) (bool, error) {
		return dom.NormalizeWhiteSpace(s.Text(root)) == want, nil
	}
}

func (s *Session) regexMatcher(pattern, flags string) (textMatcher, error) {
	re, err := s.ev.regex.get(regexKey(pattern, flags))
	if err != nil {
		return nil, err
	}
	return func(root *html.Node) (bool, error) {
		ok, err := re.MatchString(s.Text(root))
		if err != nil {
			return false, types.NewEngineError(fmt.Sprintf("regular expression /%s/%s: %v", pattern, flags, err))
		}
		return ok, nil
	}, nil
}

func matchText(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	text, err := singleString("text", args)
	if err != nil {
		return false, err
	}
	m, err := s.elementMatchesText(el, s.laxMatcher(text))
	return m == textSelf, err
}

func matchTextIs(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	text, err := singleString("text-is", args)
	if err != nil {
		return false, err
	}
	m, err := s.elementMatchesText(el, s.strictMatcher(text))
	return m == textSelf, err
}

func matchTextMatches(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	malformed := types.NewEngineError(`"text-matches" engine expects a regexp body and optional regexp flags`)
	if len(args) == 0 || len(args) > 2 {
		return false, malformed
	}
	pattern, ok := args[0].(selector.String)
	if !ok {
		return false, malformed
	}
	var flags selector.String
	if len(args) == 2 {
		if flags, ok = args[1].(selector.String); !ok {
			return false, malformed
		}
	}
	matcher, err := s.regexMatcher(string(pattern), string(flags))
	if err != nil {
		return false, err
	}
	m, err := s.elementMatchesText(el, matcher)
	return m == textSelf, err
}

func matchHasText(s *Session, el *html.Node, args selector.SelectorList, qc QueryContext) (bool, error) {
	text, err := singleString("has-text", args)
	if err != nil {
		return false, err
	}
	if dom.SkipForText(el) {
		return false, nil
	}
	return s.laxMatcher(text)(el)
}

func singleString(name string, args selector.SelectorList) (string, error) {
	if len(args) != 1 {
		return "", types.NewEngineError(fmt.Sprintf("%q engine expects a single string", name))
	}
	return stringArg(name, args, 0)
}
