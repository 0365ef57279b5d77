package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimcast/skim-api/internal/api"
	"github.com/skimcast/skim-api/internal/api/shared"
	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/generation"
	"github.com/skimcast/skim-api/internal/mocks"
	"github.com/skimcast/skim-api/internal/service"
	"github.com/skimcast/skim-api/internal/stream"
)

// decodeSSE parses the data lines of an SSE body into events, skipping
// comment (keep-alive) lines.
func decodeSSE(t *testing.T, body string) []stream.Event {
	t.Helper()

	var events []stream.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

type streamTestEnv struct {
	store  *mocks.MockJobStore
	router chi.Router
	userID uuid.UUID
	jobID  uuid.UUID
}

func newStreamTestEnv(t *testing.T, process api.ProcessFunc) *streamTestEnv {
	t.Helper()

	jobStore := mocks.NewMockJobStore()
	svc, err := service.NewJobService(jobStore, nil, nil)
	require.NoError(t, err)

	userID := uuid.New()
	job, err := domain.NewDigestJob(userID, 5, domain.ComplexitySimple, "English")
	require.NoError(t, err)
	_, err = job.AddSource(domain.SourceKindFile, "store/report.pdf", "report.pdf")
	require.NoError(t, err)
	jobStore.Seed(job)

	handler := api.NewStreamHandler(svc, process, time.Minute, time.Minute, nil)

	r := chi.NewRouter()
	r.Get("/api/jobs/{id}/events", handler.StreamJob)

	return &streamTestEnv{
		store:  jobStore,
		router: r,
		userID: userID,
		jobID:  job.ID,
	}
}

func (env *streamTestEnv) stream(t *testing.T, asUser uuid.UUID, jobID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/events", nil)
	if asUser != uuid.Nil {
		req = req.WithContext(context.WithValue(req.Context(), shared.UserIDContextKey, asUser))
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestStreamJob(t *testing.T) {
	t.Parallel()

	process := func(ctx context.Context, job *domain.DigestJob, sink stream.Sink) {
		_ = sink.Send(ctx, stream.Status("extracting content"))
		_ = sink.Send(ctx, stream.Chunk(generation.VariantFormatted, "# Digest"))
		_ = sink.Send(ctx, stream.VariantDone(generation.VariantFormatted))
		_ = sink.Send(ctx, stream.Done())
	}

	env := newStreamTestEnv(t, process)
	rec := env.stream(t, env.userID, env.jobID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := decodeSSE(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, stream.TypeStatus, events[0].Type)
	assert.Equal(t, "extracting content", events[0].Message)
	assert.Equal(t, stream.TypeFormattedChunk, events[1].Type)
	assert.Equal(t, "# Digest", events[1].Text)
	assert.Equal(t, stream.TypeFormattedDone, events[2].Type)
	assert.Equal(t, stream.TypeDone, events[3].Type)
}

func TestStreamJob_PipelineRunsOnRequestJob(t *testing.T) {
	t.Parallel()

	var gotJobID uuid.UUID
	done := make(chan struct{})
	process := func(ctx context.Context, job *domain.DigestJob, sink stream.Sink) {
		gotJobID = job.ID
		close(done)
	}

	env := newStreamTestEnv(t, process)
	env.stream(t, env.userID, env.jobID.String())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline was not invoked")
	}
	assert.Equal(t, env.jobID, gotJobID)
}

func TestStreamJob_Errors(t *testing.T) {
	t.Parallel()

	process := func(ctx context.Context, job *domain.DigestJob, sink stream.Sink) {
		t.Error("pipeline should not run for rejected requests")
	}

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()
		env := newStreamTestEnv(t, process)
		rec := env.stream(t, uuid.Nil, env.jobID.String())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("job owned by someone else", func(t *testing.T) {
		t.Parallel()
		env := newStreamTestEnv(t, process)
		rec := env.stream(t, uuid.New(), env.jobID.String())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()
		env := newStreamTestEnv(t, process)
		rec := env.stream(t, env.userID, uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed job id", func(t *testing.T) {
		t.Parallel()
		env := newStreamTestEnv(t, process)
		rec := env.stream(t, env.userID, "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
