// Package stream defines the server-to-client event vocabulary of the
// processing pipeline and the SSE transport that delivers it. The event
// kinds form a closed set; every consumer switches over them exhaustively
// so adding a kind is a compile-time-visible change.
package stream

import (
	"context"

	"github.com/skimcast/skim-api/internal/generation"
)

// Type tags one event on the wire.
type Type string

// The closed set of event kinds.
const (
	// TypeStatus carries a human-readable progress message.
	TypeStatus Type = "status"

	// TypeFormattedChunk and TypeBreadtextChunk carry one text increment
	// of the respective output; the client appends them in order.
	TypeFormattedChunk Type = "formatted_chunk"
	TypeBreadtextChunk Type = "breadtext_chunk"

	// TypeContent and TypeBreadtext carry a full output text. Used on the
	// replay path, where the outputs already exist and are sent whole.
	TypeContent   Type = "content"
	TypeBreadtext Type = "breadtext"

	// TypeFormattedDone and TypeBreadtextDone mark the end of the
	// respective chunk stream.
	TypeFormattedDone Type = "formatted_done"
	TypeBreadtextDone Type = "breadtext_done"

	// TypeError reports a problem, non-fatal (a skipped source) or
	// terminal (the job failed).
	TypeError Type = "error"

	// TypeImages carries the final set of referenced image links.
	TypeImages Type = "images"

	// TypeDone terminates the stream. It is always the last event, on
	// success and on failure alike.
	TypeDone Type = "done"
)

// Event is one tagged record on the event stream. Exactly the fields
// relevant to the event's type are set; the rest are omitted from JSON.
type Event struct {
	Type    Type     `json:"type"`
	Message string   `json:"message,omitempty"`
	Text    string   `json:"text,omitempty"`
	Images  []string `json:"images,omitempty"`
}

// Valid reports whether the event's type is a member of the closed set.
func (e Event) Valid() bool {
	switch e.Type {
	case TypeStatus, TypeFormattedChunk, TypeBreadtextChunk,
		TypeContent, TypeBreadtext, TypeFormattedDone, TypeBreadtextDone,
		TypeError, TypeImages, TypeDone:
		return true
	default:
		return false
	}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone
}

// Status creates a progress event.
func Status(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

// Error creates an error event.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Content creates a full formatted-output event for the replay path.
func Content(text string) Event {
	return Event{Type: TypeContent, Text: text}
}

// Breadtext creates a full breadtext-output event for the replay path.
func Breadtext(text string) Event {
	return Event{Type: TypeBreadtext, Text: text}
}

// Images creates the final image-set event.
func Images(refs []string) Event {
	return Event{Type: TypeImages, Images: refs}
}

// Done creates the stream-terminating event.
func Done() Event {
	return Event{Type: TypeDone}
}

// Chunk creates a text-increment event for the given variant.
func Chunk(variant generation.Variant, text string) Event {
	if variant == generation.VariantBreadtext {
		return Event{Type: TypeBreadtextChunk, Text: text}
	}
	return Event{Type: TypeFormattedChunk, Text: text}
}

// VariantDone creates the end-of-stream marker for the given variant.
func VariantDone(variant generation.Variant) Event {
	if variant == generation.VariantBreadtext {
		return Event{Type: TypeBreadtextDone}
	}
	return Event{Type: TypeFormattedDone}
}

// Sink receives pipeline events in emission order. The SSE writer is the
// production implementation; tests use collecting sinks.
type Sink interface {
	// Send delivers one event. A returned error means the consumer is
	// gone and the caller should stop producing.
	Send(ctx context.Context, event Event) error
}
