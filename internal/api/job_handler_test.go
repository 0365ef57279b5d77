package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimcast/skim-api/internal/api"
	"github.com/skimcast/skim-api/internal/api/shared"
	"github.com/skimcast/skim-api/internal/mocks"
	"github.com/skimcast/skim-api/internal/service"
)

// jobTestEnv wires a JobHandler to an in-memory store behind the real
// service, mounted on a chi router so URL parameters resolve.
type jobTestEnv struct {
	store  *mocks.MockJobStore
	router chi.Router
	userID uuid.UUID
}

func newJobTestEnv(t *testing.T) *jobTestEnv {
	t.Helper()

	jobStore := mocks.NewMockJobStore()
	svc, err := service.NewJobService(jobStore, nil, nil)
	require.NoError(t, err)

	handler := api.NewJobHandler(svc, nil)

	r := chi.NewRouter()
	r.Post("/api/jobs", handler.CreateJob)
	r.Get("/api/jobs", handler.ListJobs)
	r.Get("/api/jobs/{id}", handler.GetJob)
	r.Delete("/api/jobs/{id}", handler.DeleteJob)

	return &jobTestEnv{
		store:  jobStore,
		router: r,
		userID: uuid.New(),
	}
}

// do sends a request through the router as the environment's user.
func (env *jobTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), shared.UserIDContextKey, env.userID))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func validCreateRequest() api.CreateJobRequest {
	return api.CreateJobRequest{
		Sources: []api.SourceRequest{
			{Kind: "file", Location: "store/report.pdf", DisplayName: "report.pdf"},
			{Kind: "url", Location: "https://example.com/article"},
		},
		TargetReadingMinutes: 5,
		ComplexityLevel:      "balanced",
		OutputLanguage:       "English",
	}
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	env := newJobTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/jobs", validCreateRequest())

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, api.JobStatusPending, resp.Status)
	assert.Len(t, resp.Sources, 2)
	assert.Equal(t, "report.pdf", resp.Sources[0].DisplayName)
	// URL sources without a title fall back to the location.
	assert.Equal(t, "https://example.com/article", resp.Sources[1].DisplayName)
}

func TestCreateJob_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*api.CreateJobRequest)
	}{
		{"no sources", func(r *api.CreateJobRequest) { r.Sources = nil }},
		{"bad source kind", func(r *api.CreateJobRequest) { r.Sources[0].Kind = "ftp" }},
		{"zero minutes", func(r *api.CreateJobRequest) { r.TargetReadingMinutes = 0 }},
		{"excessive minutes", func(r *api.CreateJobRequest) { r.TargetReadingMinutes = 90 }},
		{"unknown complexity", func(r *api.CreateJobRequest) { r.ComplexityLevel = "extreme" }},
		{"missing language", func(r *api.CreateJobRequest) { r.OutputLanguage = "" }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newJobTestEnv(t)
			req := validCreateRequest()
			tc.mutate(&req)
			rec := env.do(t, http.MethodPost, "/api/jobs", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateJob_Unauthenticated(t *testing.T) {
	t.Parallel()

	env := newJobTestEnv(t)

	raw, err := json.Marshal(validCreateRequest())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	env := newJobTestEnv(t)
	created := env.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, created.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	t.Run("owner reads job", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/jobs/"+resp.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got api.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, resp.ID, got.ID)
	})

	t.Run("other user sees not found", func(t *testing.T) {
		other := *env
		other.userID = uuid.New()
		rec := other.do(t, http.MethodGet, "/api/jobs/"+resp.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	env := newJobTestEnv(t)
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []api.JobSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 3)

	other := *env
	other.userID = uuid.New()
	rec = other.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summaries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Empty(t, summaries)
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	env := newJobTestEnv(t)
	created := env.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, created.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	t.Run("other user cannot delete", func(t *testing.T) {
		other := *env
		other.userID = uuid.New()
		rec := other.do(t, http.MethodDelete, "/api/jobs/"+resp.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("owner deletes", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/jobs/"+resp.ID.String(), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/jobs/"+resp.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
