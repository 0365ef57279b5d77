package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skimcast/skim-api/internal/domain"
)

// ClaimResult is the outcome of an attempt to claim a digest job for
// processing.
type ClaimResult int

// Possible claim outcomes.
const (
	// ClaimAcquired means this caller now holds the exclusive right to
	// run extraction and generation for the job.
	ClaimAcquired ClaimResult = iota

	// ClaimInProgress means another worker currently holds the claim.
	// The caller should not process the job; the client is expected to
	// reconnect later to observe progress.
	ClaimInProgress

	// ClaimComplete means extraction is already done. The caller may
	// proceed straight to generation using the persisted extracted text.
	ClaimComplete
)

// String returns a human-readable name for logging.
func (r ClaimResult) String() string {
	switch r {
	case ClaimAcquired:
		return "acquired"
	case ClaimInProgress:
		return "in_progress"
	case ClaimComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// JobStore defines the interface for digest job persistence, including the
// claim operations that coordinate at-most-one processing across
// concurrently connected handlers. The database row is the sole
// mutual-exclusion mechanism: every claim mutation is a conditional
// single-statement update, so no in-process locking is needed and the
// coordination holds across independent processes.
type JobStore interface {
	// Create saves a new job together with its sources.
	// It handles domain validation internally.
	Create(ctx context.Context, job *domain.DigestJob) error

	// GetByID retrieves a job and its sources by the job's unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestJob, error)

	// ListByUser retrieves all jobs owned by the given user, newest first.
	// Sources are not populated; use GetByID for the full record.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error)

	// Delete removes a job. Sources cascade via foreign key.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// TryClaim atomically transitions the job's extraction status from
	// none to running. Exactly one of N concurrent callers on a fresh
	// job observes ClaimAcquired; the rest observe ClaimInProgress.
	// A job whose extraction already completed yields ClaimComplete.
	// Returns ErrJobNotFound if the job does not exist.
	TryClaim(ctx context.Context, id uuid.UUID) (ClaimResult, error)

	// ReleaseClaim resets the extraction status from running back to
	// none, enabling a future retry to redo extraction. The update is
	// conditional on the status still being running, so a concurrently
	// completed extraction is never clobbered. Releasing a claim that is
	// not held is a no-op, not an error.
	ReleaseClaim(ctx context.Context, id uuid.UUID) error

	// MarkExtracted persists the combined text and image references and
	// moves the extraction status from running to done in one update.
	// Returns ErrUpdateFailed if the claim was not held (e.g. reaped).
	MarkExtracted(ctx context.Context, id uuid.UUID, text string, images []string) error

	// ResetExtraction discards a completed extraction result, moving the
	// status from done back to none. Used when the generation model
	// judged the extracted text unusable, so a retry redoes extraction.
	ResetExtraction(ctx context.Context, id uuid.UUID) error

	// SaveOutputs persists both generated outputs and the referenced
	// image subset in a single update. Outputs are written exactly once,
	// complete and non-empty only.
	SaveOutputs(ctx context.Context, id uuid.UUID, formatted, breadtext string, outputImages []string) error

	// ReleaseStaleClaims releases every claim that has been held longer
	// than olderThan, returning how many were released. Used by the
	// reaper to recover jobs abandoned mid-claim (crashed worker, client
	// gone and never retried).
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}
