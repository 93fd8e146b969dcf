// Package types holds the error taxonomy shared by the tokenizer, parser,
// evaluator and generator.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error tag constants.
const (
	TagTokenizerError    = "TokenizerError"
	TagParseError        = "ParseError"
	TagUnsupportedToken  = "UnsupportedToken"
	TagUnexpectedToken   = "UnexpectedToken"
	TagUnknownEngine     = "UnknownEngine"
	TagCaptureConflict   = "CaptureConflict"
	TagMalformedSelector = "MalformedSelector"
	TagEngineError       = "EngineError"
	TagUnsupportedCSS    = "UnsupportedCSS"
)

// SelectorError is returned for every tokenize, parse and evaluation
// failure. Selector carries the original selector text for diagnostics.
type SelectorError struct {
	Message  string
	Selector string
	Token    string // offending token source, if any
	Tags     []string
	Err      error
}

// Error implements the error interface.
func (e *SelectorError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Selector != "" {
		fmt.Fprintf(&sb, " while parsing selector %q", e.Selector)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *SelectorError) Unwrap() error {
	return e.Err
}

// HasTag returns true if the error has the specified tag.
func (e *SelectorError) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WithSelector attaches the selector text unless one is already set.
func (e *SelectorError) WithSelector(selector string) *SelectorError {
	if e.Selector == "" {
		e.Selector = selector
	}
	return e
}

// HasTag reports whether err (or anything it wraps) is a SelectorError
// carrying tag.
func HasTag(err error, tag string) bool {
	var se *SelectorError
	if errors.As(err, &se) {
		return se.HasTag(tag)
	}
	return false
}

// NewTokenizerError creates a TokenizerError.
func NewTokenizerError(msg string) *SelectorError {
	return &SelectorError{Message: msg, Tags: []string{TagTokenizerError}}
}

// NewParseError creates a generic ParseError.
func NewParseError(msg, selector string) *SelectorError {
	return &SelectorError{Message: msg, Selector: selector, Tags: []string{TagParseError}}
}

// NewUnsupportedTokenError reports a token kind the selector grammar rejects.
func NewUnsupportedTokenError(token, selector string) *SelectorError {
	return &SelectorError{
		Message:  fmt.Sprintf("Unsupported token %q", token),
		Selector: selector,
		Token:    token,
		Tags:     []string{TagParseError, TagUnsupportedToken},
	}
}

// NewUnexpectedTokenError reports a token in a position the grammar does not allow.
func NewUnexpectedTokenError(token, selector string) *SelectorError {
	return &SelectorError{
		Message:  fmt.Sprintf("Unexpected token %q", token),
		Selector: selector,
		Token:    token,
		Tags:     []string{TagParseError, TagUnexpectedToken},
	}
}

// NewUnknownEngineError reports an engine name nobody registered.
func NewUnknownEngineError(name, selector, suggestion string) *SelectorError {
	msg := fmt.Sprintf("Unknown engine %q", name)
	if suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return &SelectorError{
		Message:  msg,
		Selector: selector,
		Token:    name,
		Tags:     []string{TagParseError, TagUnknownEngine},
	}
}

// NewCaptureConflictError reports more than one "*" capture marker.
func NewCaptureConflictError(selector string) *SelectorError {
	return &SelectorError{
		Message:  "Only one of the selectors can capture using * modifier",
		Selector: selector,
		Tags:     []string{TagParseError, TagCaptureConflict},
	}
}

// NewMalformedSelectorError reports a selector object of the wrong shape.
func NewMalformedSelectorError(msg string) *SelectorError {
	return &SelectorError{Message: msg, Tags: []string{TagMalformedSelector}}
}

// NewEngineError reports an engine misuse such as bad arguments.
func NewEngineError(msg string) *SelectorError {
	return &SelectorError{Message: msg, Tags: []string{TagEngineError}}
}

// NewUnsupportedCSSError reports a raw CSS fragment the matcher cannot compile.
func NewUnsupportedCSSError(css string, err error) *SelectorError {
	return &SelectorError{
		Message: fmt.Sprintf("Unsupported css %q", css),
		Token:   css,
		Tags:    []string{TagUnsupportedCSS},
		Err:     err,
	}
}
