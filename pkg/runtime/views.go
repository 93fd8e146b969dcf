package runtime

import (
	"github.com/lemonberrylabs/selector-engine/pkg/csstoken"
	"github.com/lemonberrylabs/selector-engine/pkg/selector"
)

// PartView is one segment of a legacy selector chain.
type PartView struct {
	Engine string `json:"engine"`
	Body   string `json:"body"`
}

// ParsedView is the serializable form of a parsed selector.
type ParsedView struct {
	Selector string     `json:"selector"`
	Parts    []PartView `json:"parts"`
	// Capture is the index of the part whose element is returned.
	Capture    int      `json:"capture"`
	Normalized string   `json:"normalized"`
	Engines    []string `json:"engines"`
}

// ViewParsed converts a parsed selector.
func ViewParsed(p *selector.ParsedSelector) ParsedView {
	v := ParsedView{
		Selector:   p.Source,
		Capture:    p.V1.CaptureIndex(),
		Normalized: selector.Serialize(p.V2),
		Engines:    p.Names,
	}
	for _, part := range p.V1.Parts {
		v.Parts = append(v.Parts, PartView{Engine: part.Name, Body: part.Body})
	}
	return v
}

// TokenView is the serializable form of a CSS token.
type TokenView struct {
	Type  string  `json:"type"`
	Value string  `json:"value,omitempty"`
	Raw   string  `json:"raw"`
	Num   float64 `json:"num,omitempty"`
	Unit  string  `json:"unit,omitempty"`
	Line  int     `json:"line"`
	Col   int     `json:"col"`
}

// ViewTokens converts tokens, dropping the trailing EOF.
func ViewTokens(tokens []csstoken.Token) []TokenView {
	out := make([]TokenView, 0, len(tokens))
	for _, t := range tokens {
		if t.Type == csstoken.TokenEOF {
			continue
		}
		out = append(out, TokenView{
			Type:  t.Type.String(),
			Value: t.Value,
			Raw:   t.Raw,
			Num:   t.Num,
			Unit:  t.Unit,
			Line:  t.Line,
			Col:   t.Col,
		})
	}
	return out
}
