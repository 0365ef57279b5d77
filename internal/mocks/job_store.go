package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/store"
)

// MockJobStore implements store.JobStore for testing. Its default
// implementation is an in-memory map with the same conditional-update
// semantics as the Postgres store, so claim-coordination tests exercise
// real exclusivity without a database.
type MockJobStore struct {
	// Function fields for customizable behavior
	CreateFn             func(ctx context.Context, job *domain.DigestJob) error
	GetByIDFn            func(ctx context.Context, id uuid.UUID) (*domain.DigestJob, error)
	ListByUserFn         func(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error)
	DeleteFn             func(ctx context.Context, id uuid.UUID) error
	TryClaimFn           func(ctx context.Context, id uuid.UUID) (store.ClaimResult, error)
	ReleaseClaimFn       func(ctx context.Context, id uuid.UUID) error
	MarkExtractedFn      func(ctx context.Context, id uuid.UUID, text string, images []string) error
	ResetExtractionFn    func(ctx context.Context, id uuid.UUID) error
	SaveOutputsFn        func(ctx context.Context, id uuid.UUID, formatted, breadtext string, outputImages []string) error
	ReleaseStaleClaimsFn func(ctx context.Context, olderThan time.Duration) (int64, error)

	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.DigestJob

	// WriteCount counts every default-implementation mutation, letting
	// tests assert that read-only paths performed zero writes.
	WriteCount int
}

var _ store.JobStore = (*MockJobStore)(nil)

// NewMockJobStore creates a mock store with an empty in-memory map.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[uuid.UUID]*domain.DigestJob)}
}

// Seed inserts a job directly, bypassing validation and write counting.
func (m *MockJobStore) Seed(job *domain.DigestJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
}

// Snapshot returns a copy of the stored job, or nil if absent.
func (m *MockJobStore) Snapshot(id uuid.UUID) *domain.DigestJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// Writes returns the number of default-implementation mutations so far.
func (m *MockJobStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WriteCount
}

// Create implements the JobStore interface
func (m *MockJobStore) Create(ctx context.Context, job *domain.DigestJob) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}

	if err := job.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	m.WriteCount++
	return nil
}

// GetByID implements the JobStore interface
func (m *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestJob, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListByUser implements the JobStore interface
func (m *MockJobStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DigestJob, error) {
	if m.ListByUserFn != nil {
		return m.ListByUserFn(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DigestJob
	for _, job := range m.jobs {
		if job.UserID == userID {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete implements the JobStore interface
func (m *MockJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return store.ErrJobNotFound
	}
	delete(m.jobs, id)
	m.WriteCount++
	return nil
}

// TryClaim implements the JobStore interface with the same atomicity as
// the conditional UPDATE: under one lock, at most one caller moves the
// status from none to running.
func (m *MockJobStore) TryClaim(ctx context.Context, id uuid.UUID) (store.ClaimResult, error) {
	if m.TryClaimFn != nil {
		return m.TryClaimFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return 0, store.ErrJobNotFound
	}

	switch job.ExtractionStatus {
	case domain.ExtractionStatusNone:
		job.ExtractionStatus = domain.ExtractionStatusRunning
		job.UpdatedAt = time.Now().UTC()
		m.WriteCount++
		return store.ClaimAcquired, nil
	case domain.ExtractionStatusDone:
		return store.ClaimComplete, nil
	default:
		return store.ClaimInProgress, nil
	}
}

// ReleaseClaim implements the JobStore interface
func (m *MockJobStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	if m.ReleaseClaimFn != nil {
		return m.ReleaseClaimFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.ExtractionStatus != domain.ExtractionStatusRunning {
		return nil
	}
	job.ExtractionStatus = domain.ExtractionStatusNone
	job.ExtractedText = ""
	job.ExtractedImages = nil
	job.UpdatedAt = time.Now().UTC()
	m.WriteCount++
	return nil
}

// MarkExtracted implements the JobStore interface
func (m *MockJobStore) MarkExtracted(ctx context.Context, id uuid.UUID, text string, images []string) error {
	if m.MarkExtractedFn != nil {
		return m.MarkExtractedFn(ctx, id, text, images)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.ExtractionStatus != domain.ExtractionStatusRunning {
		return store.ErrUpdateFailed
	}
	job.ExtractionStatus = domain.ExtractionStatusDone
	job.ExtractedText = text
	job.ExtractedImages = images
	job.UpdatedAt = time.Now().UTC()
	m.WriteCount++
	return nil
}

// ResetExtraction implements the JobStore interface
func (m *MockJobStore) ResetExtraction(ctx context.Context, id uuid.UUID) error {
	if m.ResetExtractionFn != nil {
		return m.ResetExtractionFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.ExtractionStatus != domain.ExtractionStatusDone {
		return nil
	}
	job.ExtractionStatus = domain.ExtractionStatusNone
	job.ExtractedText = ""
	job.ExtractedImages = nil
	job.UpdatedAt = time.Now().UTC()
	m.WriteCount++
	return nil
}

// SaveOutputs implements the JobStore interface
func (m *MockJobStore) SaveOutputs(ctx context.Context, id uuid.UUID, formatted, breadtext string, outputImages []string) error {
	if m.SaveOutputsFn != nil {
		return m.SaveOutputsFn(ctx, id, formatted, breadtext, outputImages)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.FormattedOutput = formatted
	job.BreadtextOutput = breadtext
	job.OutputImages = outputImages
	job.UpdatedAt = time.Now().UTC()
	m.WriteCount++
	return nil
}

// ReleaseStaleClaims implements the JobStore interface
func (m *MockJobStore) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.ReleaseStaleClaimsFn != nil {
		return m.ReleaseStaleClaimsFn(ctx, olderThan)
	}

	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	var released int64
	for _, job := range m.jobs {
		if job.ExtractionStatus == domain.ExtractionStatusRunning && job.UpdatedAt.Before(cutoff) {
			job.ExtractionStatus = domain.ExtractionStatusNone
			job.ExtractedText = ""
			job.ExtractedImages = nil
			job.UpdatedAt = time.Now().UTC()
			released++
			m.WriteCount++
		}
	}
	return released, nil
}

// WithTx implements the JobStore interface. The mock has no transactions;
// it returns itself.
func (m *MockJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return m
}
