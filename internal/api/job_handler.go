package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/skimcast/skim-api/internal/api/shared"
	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/service"
)

// JobHandler handles digest-job CRUD requests.
type JobHandler struct {
	jobService service.JobService
	validator  *validator.Validate
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler with the given dependencies.
func NewJobHandler(jobService service.JobService, log *slog.Logger) *JobHandler {
	if log == nil {
		log = slog.Default()
	}
	return &JobHandler{
		jobService: jobService,
		validator:  validator.New(),
		logger:     log.With(slog.String("component", "job_handler")),
	}
}

// CreateJob handles POST /api/jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	input := service.CreateJobInput{
		TargetReadingMinutes: req.TargetReadingMinutes,
		ComplexityLevel:      req.ComplexityLevel,
		OutputLanguage:       req.OutputLanguage,
	}
	for _, src := range req.Sources {
		input.Sources = append(input.Sources, service.SourceInput{
			Kind:        domain.SourceKind(src.Kind),
			Location:    src.Location,
			DisplayName: src.DisplayName,
		})
	}

	job, err := h.jobService.CreateJob(r.Context(), userID, input)
	if err != nil {
		log.Warn("job creation failed", slog.String("error", err.Error()))
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewJobResponse(job))
}

// ListJobs handles GET /api/jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "User ID not found or invalid")
		return
	}

	jobs, err := h.jobService.ListJobs(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	summaries := make([]JobSummaryResponse, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, NewJobSummaryResponse(job))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, summaries)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	job, err := h.jobService.GetJobForUser(r.Context(), jobID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}

// DeleteJob handles DELETE /api/jobs/{id}.
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, jobID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.jobService.DeleteJob(r.Context(), jobID, userID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("job deleted via API", slog.String("job_id", jobID.String()))
	w.WriteHeader(http.StatusNoContent)
}
