package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/store"
)

// JobServiceError is a custom error type for job service errors.
type JobServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
func NewJobServiceError(operation, message string, err error) *JobServiceError {
	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// SourceInput describes one source of a job being created.
type SourceInput struct {
	Kind        domain.SourceKind
	Location    string
	DisplayName string
}

// CreateJobInput carries everything needed to create a digest job.
type CreateJobInput struct {
	Sources              []SourceInput
	TargetReadingMinutes int
	ComplexityLevel      string
	OutputLanguage       string
}

// JobService provides digest-job operations with ownership enforcement.
// Ownership failures are reported as ErrNotOwned so the API layer can
// answer identically for "not yours" and "does not exist".
type JobService interface {
	// CreateJob validates the input, builds the job with its sources in
	// submission order, and persists everything atomically.
	CreateJob(ctx context.Context, userID uuid.UUID, input CreateJobInput) (*domain.DigestJob, error)

	// GetJobForUser retrieves a job and verifies the caller owns it.
	GetJobForUser(ctx context.Context, jobID, userID uuid.UUID) (*domain.DigestJob, error)

	// ListJobs retrieves the caller's jobs, newest first.
	ListJobs(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error)

	// DeleteJob removes a job the caller owns. Sources cascade.
	DeleteJob(ctx context.Context, jobID, userID uuid.UUID) error
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	jobs   store.JobStore
	db     *sql.DB
	logger *slog.Logger
}

var _ JobService = (*jobServiceImpl)(nil)

// NewJobService creates a new JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(jobs store.JobStore, db *sql.DB, log *slog.Logger) (JobService, error) {
	if jobs == nil {
		return nil, domain.NewValidationError("jobs", "cannot be nil", domain.ErrValidation)
	}
	if log == nil {
		log = slog.Default()
	}

	return &jobServiceImpl{
		jobs:   jobs,
		db:     db,
		logger: log.With(slog.String("component", "job_service")),
	}, nil
}

// CreateJob implements JobService.CreateJob
func (s *jobServiceImpl) CreateJob(ctx context.Context, userID uuid.UUID, input CreateJobInput) (*domain.DigestJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(input.Sources) == 0 {
		return nil, domain.ErrJobHasNoSources
	}

	job, err := domain.NewDigestJob(userID, input.TargetReadingMinutes, input.ComplexityLevel, input.OutputLanguage)
	if err != nil {
		return nil, err
	}

	for _, src := range input.Sources {
		name := src.DisplayName
		if name == "" {
			// URL sources usually arrive without a title; the scraper
			// supplies a better one during extraction
			name = src.Location
		}
		if _, err := job.AddSource(src.Kind, src.Location, name); err != nil {
			return nil, err
		}
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	// The job row and its source rows land atomically. Stores without a
	// transactional database (in-memory test doubles) persist directly.
	if s.db != nil {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			if err := s.jobs.WithTx(tx).Create(ctx, job); err != nil {
				log.Error("failed to create job in transaction",
					slog.String("error", err.Error()),
					slog.String("user_id", userID.String()))
				return NewJobServiceError("create_job", "failed to save job", err)
			}
			return nil
		})
	} else if err = s.jobs.Create(ctx, job); err != nil {
		err = NewJobServiceError("create_job", "failed to save job", err)
	}
	if err != nil {
		return nil, err
	}

	log.Info("created digest job",
		slog.String("job_id", job.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Int("sources", len(job.Sources)))

	return job, nil
}

// GetJobForUser implements JobService.GetJobForUser
func (s *jobServiceImpl) GetJobForUser(ctx context.Context, jobID, userID uuid.UUID) (*domain.DigestJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to retrieve job",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, NewJobServiceError("get_job", "failed to retrieve job", err)
	}

	if job.UserID != userID {
		log.Warn("job ownership check failed",
			slog.String("job_id", jobID.String()),
			slog.String("user_id", userID.String()))
		return nil, ErrNotOwned
	}

	return job, nil
}

// ListJobs implements JobService.ListJobs
func (s *jobServiceImpl) ListJobs(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	jobs, err := s.jobs.ListByUser(ctx, userID)
	if err != nil {
		log.Error("failed to list jobs",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, NewJobServiceError("list_jobs", "failed to list jobs", err)
	}

	return jobs, nil
}

// DeleteJob implements JobService.DeleteJob
func (s *jobServiceImpl) DeleteJob(ctx context.Context, jobID, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.GetJobForUser(ctx, jobID, userID); err != nil {
		return err
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		if store.IsNotFoundError(err) {
			return store.ErrJobNotFound
		}
		log.Error("failed to delete job",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return NewJobServiceError("delete_job", "failed to delete job", err)
	}

	log.Info("deleted digest job",
		slog.String("job_id", jobID.String()),
		slog.String("user_id", userID.String()))

	return nil
}
