// Package structured turns free-form model output into typed records.
//
// Two output shapes are supported: a JSON object embedded somewhere in the
// text (extracted, repaired, strictly decoded and validated), and a
// line-oriented dialogue listing. Every failure is reported as one of the
// sentinel errors below so retry loops can treat it as a rejected attempt.
package structured

import "errors"

var (
	// ErrNoStructuredOutput means the text contained no {...} region at all.
	ErrNoStructuredOutput = errors.New("structured: no structured output found")

	// ErrMalformedStructure means a region was found but could not be decoded,
	// or decoded into something that is missing required fields or has the
	// wrong arity.
	ErrMalformedStructure = errors.New("structured: malformed structure")
)
