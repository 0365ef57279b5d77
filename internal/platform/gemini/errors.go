package gemini

import "errors"

// Errors specific to the Gemini generator.
var (
	// ErrUnknownVariant is returned when a request names a variant this
	// generator has no prompt template for.
	ErrUnknownVariant = errors.New("unknown digest variant")
)
