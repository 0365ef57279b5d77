package pipeline

import (
	"context"
	"sync"

	"github.com/skimcast/skim-api/internal/generation"
)

type eventKind int

const (
	kindChunk eventKind = iota
	kindDone
	kindFailed
)

// producerEvent is one tagged record from a generation producer.
type producerEvent struct {
	variant generation.Variant
	kind    eventKind
	text    string
	err     error
}

// fanIn merges events from concurrent producer goroutines into a single
// consumer. Producers append to a mutex-guarded pending buffer and nudge
// the 1-buffered wake channel; the consumer drains the buffer in arrival
// order whenever woken. Appends never block, so no event is lost and each
// producer's events keep their relative order.
type fanIn struct {
	mu      sync.Mutex
	pending []producerEvent
	wake    chan struct{}
}

func newFanIn() *fanIn {
	return &fanIn{wake: make(chan struct{}, 1)}
}

// publish appends one event and wakes the consumer if it is blocked. The
// send on wake is non-blocking: a pending wake already covers this event.
func (f *fanIn) publish(ev producerEvent) {
	f.mu.Lock()
	f.pending = append(f.pending, ev)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// take removes and returns every buffered event, oldest first.
func (f *fanIn) take() []producerEvent {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()
	return batch
}

// wait blocks until a producer publishes or ctx ends. A nil return does
// not guarantee the buffer is non-empty; callers loop on take.
func (f *fanIn) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.wake:
		return nil
	}
}
