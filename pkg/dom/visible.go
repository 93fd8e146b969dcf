package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// IsVisible approximates rendering without layout: an element is visible
// unless it or an ancestor (across shadow boundaries) is hidden by the
// hidden attribute, an inline display:none or visibility:hidden style, is a
// hidden input, or lives in a non-rendered element.
func (d *Document) IsVisible(el *html.Node) bool {
	if !IsElement(el) {
		return false
	}
	for e := el; e != nil; e = d.ParentElementOrShadowHost(e) {
		if hiddenElement(e) {
			return false
		}
	}
	// Template fragments are not rendered.
	return d.Contains(el)
}

func hiddenElement(el *html.Node) bool {
	switch TagName(el) {
	case "head", "script", "style", "noscript", "template", "title", "meta", "link":
		return true
	case "input":
		if strings.EqualFold(AttrOr(el, "type", ""), "hidden") {
			return true
		}
	}
	if HasAttr(el, "hidden") {
		return true
	}
	style := inlineStyle(el)
	return style["display"] == "none" || style["visibility"] == "hidden" || style["visibility"] == "collapse"
}

// inlineStyle parses the style attribute into lower-case property/value
// pairs.
func inlineStyle(el *html.Node) map[string]string {
	raw, ok := Attr(el, "style")
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		prop, val, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		out[strings.ToLower(strings.TrimSpace(prop))] = strings.ToLower(val)
	}
	return out
}
