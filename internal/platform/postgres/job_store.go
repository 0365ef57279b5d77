package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/store"
)

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx implements store.JobStore.WithTx
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.JobStore.Create
// It saves a new job and its sources, handling domain validation.
// Returns store.ErrInvalidEntity if the user ID doesn't exist (foreign key violation).
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.DigestJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	query := `
		INSERT INTO digest_jobs (
			id, user_id, extraction_status, extracted_text, extracted_images,
			formatted_output, breadtext_output, output_images,
			target_reading_minutes, complexity_level, output_language,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	extractedImages, err := marshalImages(job.ExtractedImages)
	if err != nil {
		return err
	}
	outputImages, err := marshalImages(job.OutputImages)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.UserID,
		job.ExtractionStatus,
		job.ExtractedText,
		extractedImages,
		job.FormattedOutput,
		job.BreadtextOutput,
		outputImages,
		job.TargetReadingMinutes,
		job.ComplexityLevel,
		job.OutputLanguage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("foreign key violation during job creation",
				slog.String("error", err.Error()),
				slog.String("job_id", job.ID.String()),
				slog.String("user_id", job.UserID.String()))
			return fmt.Errorf("%w: user with ID %s not found",
				store.ErrInvalidEntity, job.UserID)
		}

		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return MapError(err)
	}

	sourceQuery := `
		INSERT INTO job_sources (id, job_id, position, kind, location, display_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range job.Sources {
		src := &job.Sources[i]
		_, err = s.db.ExecContext(
			ctx,
			sourceQuery,
			src.ID,
			src.JobID,
			src.Position,
			src.Kind,
			src.Location,
			src.DisplayName,
		)
		if err != nil {
			log.Error("failed to create job source",
				slog.String("error", err.Error()),
				slog.String("job_id", job.ID.String()),
				slog.Int("position", src.Position))
			return MapError(err)
		}
	}

	log.Info("job created successfully",
		slog.String("job_id", job.ID.String()),
		slog.String("user_id", job.UserID.String()),
		slog.Int("source_count", len(job.Sources)))
	return nil
}

// GetByID implements store.JobStore.GetByID
// It retrieves a job and its sources by the job's unique ID.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, extraction_status, extracted_text, extracted_images,
		       formatted_output, breadtext_output, output_images,
		       target_reading_minutes, complexity_level, output_language,
		       created_at, updated_at
		FROM digest_jobs
		WHERE id = $1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("job not found", slog.String("job_id", id.String()))
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, MapError(err)
	}

	sources, err := s.getSources(ctx, id)
	if err != nil {
		log.Error("failed to get job sources",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, MapError(err)
	}
	job.Sources = sources

	return job, nil
}

// ListByUser implements store.JobStore.ListByUser
func (s *PostgresJobStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, extraction_status, extracted_text, extracted_images,
		       formatted_output, breadtext_output, output_images,
		       target_reading_minutes, complexity_level, output_language,
		       created_at, updated_at
		FROM digest_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		log.Error("failed to list jobs",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.DigestJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

// Delete implements store.JobStore.Delete
// Sources cascade via the job_sources foreign key.
func (s *PostgresJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM digest_jobs WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}

	log.Info("job deleted", slog.String("job_id", id.String()))
	return nil
}

// TryClaim implements store.JobStore.TryClaim
// The claim is a single conditional UPDATE on extraction_status, so at most
// one of any number of concurrent callers can move a job from none to
// running. When the update affects no rows, the current status is re-read
// to distinguish "someone else holds it" from "extraction already done".
func (s *PostgresJobStore) TryClaim(ctx context.Context, id uuid.UUID) (store.ClaimResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET extraction_status = $2, updated_at = $3
		WHERE id = $1 AND extraction_status = $4
	`, id, domain.ExtractionStatusRunning, time.Now().UTC(), domain.ExtractionStatusNone)
	if err != nil {
		log.Error("claim update failed",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return 0, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	if rows == 1 {
		log.Info("claim acquired", slog.String("job_id", id.String()))
		return store.ClaimAcquired, nil
	}

	var status domain.ExtractionStatus
	err = s.db.QueryRowContext(ctx,
		`SELECT extraction_status FROM digest_jobs WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrJobNotFound
		}
		return 0, MapError(err)
	}

	switch status {
	case domain.ExtractionStatusDone:
		log.Debug("claim not needed, extraction complete",
			slog.String("job_id", id.String()))
		return store.ClaimComplete, nil
	default:
		// Either running, or released between our two statements; in
		// both cases this caller does not hold the claim.
		log.Debug("claim held elsewhere",
			slog.String("job_id", id.String()),
			slog.String("status", string(status)))
		return store.ClaimInProgress, nil
	}
}

// ReleaseClaim implements store.JobStore.ReleaseClaim
// The update is guarded on the status still being running so it can never
// clobber a concurrently completed extraction. Affecting zero rows is fine.
func (s *PostgresJobStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET extraction_status = $2, extracted_text = '', extracted_images = '[]', updated_at = $3
		WHERE id = $1 AND extraction_status = $4
	`, id, domain.ExtractionStatusNone, time.Now().UTC(), domain.ExtractionStatusRunning)
	if err != nil {
		log.Error("failed to release claim",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return MapError(err)
	}

	if rows, rowsErr := result.RowsAffected(); rowsErr == nil && rows == 1 {
		log.Info("claim released", slog.String("job_id", id.String()))
	}
	return nil
}

// MarkExtracted implements store.JobStore.MarkExtracted
// Text, images and the done status are written in one UPDATE: a crash
// before it leaves the claim reapable, a crash after it never redoes
// extraction.
func (s *PostgresJobStore) MarkExtracted(ctx context.Context, id uuid.UUID, text string, images []string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	imagesJSON, err := marshalImages(images)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET extraction_status = $2, extracted_text = $3, extracted_images = $4, updated_at = $5
		WHERE id = $1 AND extraction_status = $6
	`, id, domain.ExtractionStatusDone, text, imagesJSON, time.Now().UTC(), domain.ExtractionStatusRunning)
	if err != nil {
		log.Error("failed to mark extraction complete",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rows == 0 {
		// The claim was released out from under us (e.g. by the reaper).
		log.Warn("extraction result discarded, claim no longer held",
			slog.String("job_id", id.String()))
		return fmt.Errorf("%w: claim no longer held for job %s", store.ErrUpdateFailed, id)
	}

	log.Info("extraction result persisted",
		slog.String("job_id", id.String()),
		slog.Int("text_length", len(text)),
		slog.Int("image_count", len(images)))
	return nil
}

// ResetExtraction implements store.JobStore.ResetExtraction
func (s *PostgresJobStore) ResetExtraction(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET extraction_status = $2, extracted_text = '', extracted_images = '[]', updated_at = $3
		WHERE id = $1 AND extraction_status = $4
	`, id, domain.ExtractionStatusNone, time.Now().UTC(), domain.ExtractionStatusDone)
	if err != nil {
		log.Error("failed to reset extraction",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return MapError(err)
	}

	log.Info("extraction result discarded for retry", slog.String("job_id", id.String()))
	return nil
}

// SaveOutputs implements store.JobStore.SaveOutputs
func (s *PostgresJobStore) SaveOutputs(
	ctx context.Context,
	id uuid.UUID,
	formatted, breadtext string,
	outputImages []string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	imagesJSON, err := marshalImages(outputImages)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET formatted_output = $2, breadtext_output = $3, output_images = $4, updated_at = $5
		WHERE id = $1
	`, id, formatted, breadtext, imagesJSON, time.Now().UTC())
	if err != nil {
		log.Error("failed to save outputs",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}

	log.Info("outputs persisted",
		slog.String("job_id", id.String()),
		slog.Int("formatted_length", len(formatted)),
		slog.Int("breadtext_length", len(breadtext)),
		slog.Int("output_image_count", len(outputImages)))
	return nil
}

// ReleaseStaleClaims implements store.JobStore.ReleaseStaleClaims
func (s *PostgresJobStore) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `
		UPDATE digest_jobs
		SET extraction_status = $1, extracted_text = '', extracted_images = '[]', updated_at = $2
		WHERE extraction_status = $3 AND updated_at < $4
	`, domain.ExtractionStatusNone, time.Now().UTC(), domain.ExtractionStatusRunning, cutoff)
	if err != nil {
		log.Error("failed to release stale claims", slog.String("error", err.Error()))
		return 0, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	if rows > 0 {
		log.Warn("released stale claims",
			slog.Int64("count", rows),
			slog.Duration("older_than", olderThan))
	}
	return rows, nil
}

// getSources loads a job's sources in submission order.
func (s *PostgresJobStore) getSources(ctx context.Context, jobID uuid.UUID) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, position, kind, location, display_name
		FROM job_sources
		WHERE job_id = $1
		ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sources := make([]domain.Source, 0)
	for rows.Next() {
		var src domain.Source
		var kind string
		if err := rows.Scan(&src.ID, &src.JobID, &src.Position, &kind, &src.Location, &src.DisplayName); err != nil {
			return nil, err
		}
		src.Kind = domain.SourceKind(kind)
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans one digest_jobs row into a domain.DigestJob.
func scanJob(row rowScanner) (*domain.DigestJob, error) {
	var job domain.DigestJob
	var status string
	var extractedImages, outputImages []byte

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.ExtractedText,
		&extractedImages,
		&job.FormattedOutput,
		&job.BreadtextOutput,
		&outputImages,
		&job.TargetReadingMinutes,
		&job.ComplexityLevel,
		&job.OutputLanguage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ExtractionStatus = domain.ExtractionStatus(status)
	if job.ExtractedImages, err = unmarshalImages(extractedImages); err != nil {
		return nil, err
	}
	if job.OutputImages, err = unmarshalImages(outputImages); err != nil {
		return nil, err
	}
	return &job, nil
}

// marshalImages encodes image references for the jsonb columns.
func marshalImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image references: %w", err)
	}
	return data, nil
}

// unmarshalImages decodes image references from a jsonb column.
func unmarshalImages(data []byte) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var images []string
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, fmt.Errorf("failed to decode image references: %w", err)
	}
	return images, nil
}
