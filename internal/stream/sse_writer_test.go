package stream_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimcast/skim-api/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// plainResponseWriter deliberately lacks http.Flusher.
type plainResponseWriter struct {
	header http.Header
}

func (p *plainResponseWriter) Header() http.Header {
	if p.header == nil {
		p.header = make(http.Header)
	}
	return p.header
}

func (p *plainResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainResponseWriter) WriteHeader(int)             {}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := stream.NewSSEWriter(&plainResponseWriter{}, time.Minute, discardLogger())
	assert.ErrorIs(t, err, stream.ErrStreamingUnsupported)
}

func TestSSEWriter_SetsStreamingHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, time.Minute, discardLogger())
	require.NoError(t, err)
	defer sw.Close()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSSEWriter_SendWritesDataFrames(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, time.Minute, discardLogger())
	require.NoError(t, err)
	defer sw.Close()

	ctx := context.Background()
	require.NoError(t, sw.Send(ctx, stream.Status("claiming job")))
	require.NoError(t, sw.Send(ctx, stream.Done()))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"type":"status","message":"claiming job"}`+"\n\n")
	assert.Contains(t, body, `data: {"type":"done"}`+"\n\n")

	// frames arrive in send order
	assert.Less(t, strings.Index(body, `"status"`), strings.Index(body, `"done"`))
}

func TestSSEWriter_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, time.Minute, discardLogger())
	require.NoError(t, err)

	sw.Close()
	sw.Close() // idempotent

	err = sw.Send(context.Background(), stream.Status("late"))
	assert.ErrorIs(t, err, stream.ErrWriterClosed)
}

func TestSSEWriter_SendHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, time.Minute, discardLogger())
	require.NoError(t, err)
	defer sw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sw.Send(ctx, stream.Status("never"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSSEWriter_EmitsHeartbeatComments(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, 10*time.Millisecond, discardLogger())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), ": keep-alive\n\n")
	}, time.Second, 5*time.Millisecond)

	sw.Close()
}

func TestSSEWriter_HeartbeatStopsAfterClose(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := stream.NewSSEWriter(rec, 10*time.Millisecond, discardLogger())
	require.NoError(t, err)

	sw.Close()
	snapshot := rec.Body.Len()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, snapshot, rec.Body.Len())
}
