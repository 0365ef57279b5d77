package streamclient

// EventType tags one event on the wire.
type EventType string

// The event types emitted by the job stream.
const (
	EventStatus         EventType = "status"
	EventFormattedChunk EventType = "formatted_chunk"
	EventBreadtextChunk EventType = "breadtext_chunk"
	EventContent        EventType = "content"
	EventBreadtext      EventType = "breadtext"
	EventFormattedDone  EventType = "formatted_done"
	EventBreadtextDone  EventType = "breadtext_done"
	EventError          EventType = "error"
	EventImages         EventType = "images"
	EventDone           EventType = "done"
)

// Event is one record of the job stream. Fields are populated according
// to the type: Message for status and error events, Text for chunk and
// full-output events, Images for the image set.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Text    string    `json:"text,omitempty"`
	Images  []string  `json:"images,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone
}
