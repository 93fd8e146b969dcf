// Package selector parses the two selector dialects into one AST: the legacy
// "engine=body >> engine=body" chain and the nested CSS-like grammar with
// custom pseudo-functions.
package selector

// Arg is a pseudo-function argument: *ComplexSelector, String or Number.
type Arg interface {
	arg()
}

// String is a quoted string argument.
type String string

func (String) arg() {}

// Number is a numeric argument.
type Number float64

func (Number) arg() {}

// SelectorList is a comma-separated alternation of arguments.
type SelectorList []Arg

// Combinator links a clause to the clause that follows it.
type Combinator string

const (
	Descendant      Combinator = ""
	Child           Combinator = ">"
	AdjacentSibling Combinator = "+"
	GeneralSibling  Combinator = "~"
	// SelfOrAncestor matches when the next clause's element, or one of its
	// ancestors, satisfies this clause.
	SelfOrAncestor Combinator = ">="
)

// ComplexSelector is an ordered chain of clauses. The last clause is the
// anchor a candidate element must satisfy first.
type ComplexSelector struct {
	Clauses []Clause
}

func (*ComplexSelector) arg() {}

// Clause pairs a simple selector with the combinator to the next clause.
type Clause struct {
	Simple     SimpleSelector
	Combinator Combinator
}

// SimpleSelector is a raw CSS fragment plus pseudo-function calls.
type SimpleSelector struct {
	CSS       string
	Functions []Function
}

// Function is a custom pseudo-function call such as :has(...) or :visible.
type Function struct {
	Name string
	Args SelectorList
}

// Part is one segment of a legacy chain.
type Part struct {
	Name string
	Body string
}

// V1 is the legacy chain. Capture is the index of the "*" segment, if any.
type V1 struct {
	Parts   []Part
	Capture *int
}

// ParsedSelector is the result of Parser.Parse.
type ParsedSelector struct {
	Source string
	V1     *V1
	V2     SelectorList
	Names  []string
}

// CaptureIndex returns the segment whose element is returned: the capture
// marker if set, otherwise the last segment.
func (v *V1) CaptureIndex() int {
	if v.Capture != nil {
		return *v.Capture
	}
	return len(v.Parts) - 1
}

func callWith(name string, args ...Arg) SimpleSelector {
	return SimpleSelector{Functions: []Function{{Name: name, Args: args}}}
}

func simpleToComplex(simple SimpleSelector) *ComplexSelector {
	return &ComplexSelector{Clauses: []Clause{{Simple: simple}}}
}
