// Package metadata derives structured fields (summary, keywords,
// affiliations) for a paper from a chat completion model.
package metadata

import (
	"errors"
	"fmt"
)

// Variant selects the prompt and the response schema of an extraction request.
type Variant int

const (
	// WithSourceText sends first-page PDF text and expects affiliations,
	// keywords and summary.
	WithSourceText Variant = iota
	// AbstractOnly sends the abstract when no source text is available and
	// expects keywords and summary.
	AbstractOnly
)

func (v Variant) String() string {
	switch v {
	case WithSourceText:
		return "with_text"
	case AbstractOnly:
		return "abstract_only"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// requiredFields lists the keys a response must carry for each variant.
func (v Variant) requiredFields() []string {
	if v == WithSourceText {
		return []string{"affiliations", "keywords", "summary"}
	}
	return []string{"keywords", "summary"}
}

// Request is one extraction call.
type Request struct {
	Variant Variant
	// DocID is used for logging only.
	DocID string
	Text  string
}

// NewRequest picks the variant from the available inputs: first-page text
// when non-empty, otherwise the abstract.
func NewRequest(docID, sourceText, abstract string) Request {
	if sourceText != "" {
		return Request{Variant: WithSourceText, DocID: docID, Text: sourceText}
	}
	return Request{Variant: AbstractOnly, DocID: docID, Text: abstract}
}

// Result holds the extracted fields. When Degraded is set every field is at
// its default: Summary nil and both lists empty.
type Result struct {
	Variant      Variant
	Summary      *string
	Keywords     []string
	Affiliations []string
	Degraded     *DegradedError
}

// OK reports whether extraction succeeded.
func (r Result) OK() bool { return r.Degraded == nil }

var (
	ErrNoInput         = errors.New("no input text")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrCompletion      = errors.New("completion failed")
)

// DegradedError describes why extraction fell back to default values.
type DegradedError struct {
	Variant Variant
	DocID   string
	Err     error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("metadata extraction degraded (%s, %s): %v", e.Variant, e.DocID, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

func degraded(req Request, err error) Result {
	return Result{
		Variant:      req.Variant,
		Keywords:     []string{},
		Affiliations: []string{},
		Degraded:     &DegradedError{Variant: req.Variant, DocID: req.DocID, Err: err},
	}
}
