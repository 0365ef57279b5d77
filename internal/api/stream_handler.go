package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/service"
	"github.com/skimcast/skim-api/internal/stream"
)

// ProcessFunc runs the processing pipeline for one job, emitting events on
// the sink. Satisfied by pipeline.Processor.Process.
type ProcessFunc func(ctx context.Context, job *domain.DigestJob, sink stream.Sink)

// StreamHandler serves the per-job event stream.
type StreamHandler struct {
	jobService service.JobService
	processor  ProcessFunc
	heartbeat  time.Duration
	jobTimeout time.Duration
	logger     *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
// heartbeat is the keep-alive interval of the SSE writer; jobTimeout is the
// processing ceiling applied on top of the client's own connection.
func NewStreamHandler(
	jobService service.JobService,
	processor ProcessFunc,
	heartbeat time.Duration,
	jobTimeout time.Duration,
	log *slog.Logger,
) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{
		jobService: jobService,
		processor:  processor,
		heartbeat:  heartbeat,
		jobTimeout: jobTimeout,
		logger:     log.With(slog.String("component", "stream_handler")),
	}
}

// StreamJob handles GET /api/jobs/{id}/events. It authenticates, verifies
// ownership, then hands the connection to the pipeline: every outcome after
// the stream opens is delivered as events, ending with done.
func (h *StreamHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, jobID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	job, err := h.jobService.GetJobForUser(r.Context(), jobID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Processing stops when the client disconnects or the ceiling passes,
	// whichever comes first.
	ctx, cancel := context.WithTimeout(r.Context(), h.jobTimeout)
	defer cancel()

	sink, err := stream.NewSSEWriter(w, h.heartbeat, log)
	if err != nil {
		HandleAPIError(w, r, err, "Streaming is not supported on this connection")
		return
	}
	defer sink.Close()

	log.Info("event stream opened",
		slog.String("job_id", jobID.String()),
		slog.String("user_id", userID.String()))

	h.processor(ctx, job, sink)

	log.Debug("event stream closed", slog.String("job_id", jobID.String()))
}
