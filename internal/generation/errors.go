package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when digest generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate digest from text")

	// ErrEmptyText is returned when a generation request carries no text
	ErrEmptyText = errors.New("generation text cannot be empty")

	// ErrInvalidRequest is returned when a generation request fails validation
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
