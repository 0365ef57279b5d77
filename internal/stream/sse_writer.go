package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrStreamingUnsupported indicates the response writer cannot flush, so
// server-sent events cannot be delivered incrementally.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// ErrWriterClosed indicates a send after the writer was closed.
var ErrWriterClosed = errors.New("stream writer is closed")

// SSEWriter delivers events to one HTTP client as server-sent events.
// Each event is one "data:" frame carrying the event's JSON encoding.
// While the stream is open a background ticker emits comment frames so
// intermediaries do not sever the connection during quiet stretches; the
// heartbeat runs independently of event traffic.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
	closeOnce     sync.Once
}

var _ Sink = (*SSEWriter)(nil)

// NewSSEWriter prepares w for server-sent events and starts the heartbeat
// ticker. The caller must call Close when the stream ends. Returns
// ErrStreamingUnsupported when w cannot flush.
func NewSSEWriter(w http.ResponseWriter, heartbeatInterval time.Duration, logger *slog.Logger) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := &SSEWriter{
		w:             w,
		flusher:       flusher,
		logger:        logger.With(slog.String("component", "sse_writer")),
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}

	go sw.heartbeatLoop(heartbeatInterval)

	return sw, nil
}

// Send writes one event as a data frame and flushes it to the client.
func (sw *SSEWriter) Send(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stream context ended: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %q: %w", event.Type, err)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrWriterClosed
	}

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write event %q: %w", event.Type, err)
	}
	sw.flusher.Flush()

	return nil
}

// Close stops the heartbeat and rejects further sends. Safe to call more
// than once.
func (sw *SSEWriter) Close() {
	sw.closeOnce.Do(func() {
		close(sw.stopHeartbeat)
		<-sw.heartbeatDone

		sw.mu.Lock()
		sw.closed = true
		sw.mu.Unlock()
	})
}

func (sw *SSEWriter) heartbeatLoop(interval time.Duration) {
	defer close(sw.heartbeatDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopHeartbeat:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if sw.closed {
				sw.mu.Unlock()
				return
			}
			if _, err := fmt.Fprint(sw.w, ": keep-alive\n\n"); err != nil {
				sw.mu.Unlock()
				sw.logger.Debug("heartbeat write failed, client likely disconnected",
					slog.String("error", err.Error()))
				return
			}
			sw.flusher.Flush()
			sw.mu.Unlock()
		}
	}
}
