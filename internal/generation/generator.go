package generation

import (
	"context"

	"github.com/skimcast/skim-api/internal/domain"
)

// Variant identifies which of the two independent digest outputs a
// generation call produces.
type Variant string

// The two output variants. Formatted is the primary output; its failure is
// fatal to a job. Breadtext is secondary and degrades gracefully.
const (
	VariantFormatted Variant = "formatted"
	VariantBreadtext Variant = "breadtext"
)

// UnreadableContentReply is the canned marker the model is instructed to
// return when the supplied text carries no readable content. The pipeline
// treats a primary output starting with this marker as an extraction
// failure: the cached extracted text is discarded so a retry redoes
// extraction too.
const UnreadableContentReply = "[UNREADABLE_CONTENT]"

// WordsPerMinute is the reading speed used to turn a target reading time
// into a word budget for the prompt.
const WordsPerMinute = 230

// Request carries everything one generation call needs.
type Request struct {
	// Text is the combined extracted text of all sources.
	Text string

	// Images are the extracted image references the model may embed.
	Images []string

	// ReadingMinutes, Complexity and Language are the job's immutable
	// generation parameters.
	ReadingMinutes int
	Complexity     string
	Language       string

	// Variant selects formatted or breadtext output.
	Variant Variant
}

// WordBudget returns the approximate output length in words implied by the
// requested reading time.
func (r Request) WordBudget() int {
	return r.ReadingMinutes * WordsPerMinute
}

// Validate checks the request before an expensive generation call.
func (r Request) Validate() error {
	if r.Text == "" {
		return ErrEmptyText
	}
	if r.ReadingMinutes < domain.MinReadingMinutes || r.ReadingMinutes > domain.MaxReadingMinutes {
		return ErrInvalidRequest
	}
	switch r.Variant {
	case VariantFormatted, VariantBreadtext:
	default:
		return ErrInvalidRequest
	}
	return nil
}

// Chunk is one increment of generated text. Err is set instead of Text on
// terminal failure; a chunk never carries both.
type Chunk struct {
	Text string
	Err  error
}

// Generator defines the interface for streaming digest generation.
// This interface is the boundary between the pipeline and the external
// LLM service.
type Generator interface {
	// GenerateDigest starts one generation call for the requested variant
	// and returns a channel of text increments. The channel is closed when
	// the stream ends; a terminal failure is delivered as a final Chunk
	// with Err set. The producer honors ctx cancellation between
	// increments and stops emitting promptly when it fires.
	GenerateDigest(ctx context.Context, req Request) (<-chan Chunk, error)
}
