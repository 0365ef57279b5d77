package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/mocks"
	"github.com/skimcast/skim-api/internal/service"
	"github.com/skimcast/skim-api/internal/store"
)

func newTestJobService(t *testing.T, jobs store.JobStore) service.JobService {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewJobService(jobs, nil, log)
	require.NoError(t, err)
	return svc
}

func validInput() service.CreateJobInput {
	return service.CreateJobInput{
		Sources: []service.SourceInput{
			{Kind: domain.SourceKindFile, Location: "store/report.pdf", DisplayName: "report.pdf"},
			{Kind: domain.SourceKindURL, Location: "https://example.com/post"},
		},
		TargetReadingMinutes: 5,
		ComplexityLevel:      domain.ComplexityBalanced,
		OutputLanguage:       "English",
	}
}

func TestNewJobService_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := service.NewJobService(nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	svc := newTestJobService(t, jobs)
	userID := uuid.New()

	job, err := svc.CreateJob(context.Background(), userID, validInput())
	require.NoError(t, err)

	assert.Equal(t, userID, job.UserID)
	assert.Equal(t, domain.ExtractionStatusNone, job.ExtractionStatus)
	require.Len(t, job.Sources, 2)
	assert.Equal(t, 0, job.Sources[0].Position)
	assert.Equal(t, 1, job.Sources[1].Position)

	saved := jobs.Snapshot(job.ID)
	require.NotNil(t, saved)
	assert.Equal(t, 5, saved.TargetReadingMinutes)
}

func TestCreateJob_ValidatesInput(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	svc := newTestJobService(t, jobs)
	ctx := context.Background()
	userID := uuid.New()

	tests := []struct {
		name    string
		mutate  func(*service.CreateJobInput)
		wantErr error
	}{
		{
			name:    "no sources",
			mutate:  func(in *service.CreateJobInput) { in.Sources = nil },
			wantErr: domain.ErrJobHasNoSources,
		},
		{
			name:    "reading minutes out of range",
			mutate:  func(in *service.CreateJobInput) { in.TargetReadingMinutes = 0 },
			wantErr: domain.ErrInvalidReadingMinutes,
		},
		{
			name:    "unknown complexity",
			mutate:  func(in *service.CreateJobInput) { in.ComplexityLevel = "extreme" },
			wantErr: domain.ErrInvalidComplexityLevel,
		},
		{
			name:    "missing language",
			mutate:  func(in *service.CreateJobInput) { in.OutputLanguage = "" },
			wantErr: domain.ErrEmptyOutputLanguage,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			input := validInput()
			tc.mutate(&input)

			_, err := svc.CreateJob(ctx, userID, input)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGetJobForUser(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	svc := newTestJobService(t, jobs)
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.CreateJob(ctx, owner, validInput())
	require.NoError(t, err)

	t.Run("owner can read", func(t *testing.T) {
		got, err := svc.GetJobForUser(ctx, created.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("other user is rejected", func(t *testing.T) {
		_, err := svc.GetJobForUser(ctx, created.ID, uuid.New())
		assert.ErrorIs(t, err, service.ErrNotOwned)
	})

	t.Run("missing job", func(t *testing.T) {
		_, err := svc.GetJobForUser(ctx, uuid.New(), owner)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	svc := newTestJobService(t, jobs)
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.CreateJob(ctx, owner, validInput())
	require.NoError(t, err)
	_, err = svc.CreateJob(ctx, owner, validInput())
	require.NoError(t, err)
	_, err = svc.CreateJob(ctx, uuid.New(), validInput())
	require.NoError(t, err)

	got, err := svc.ListJobs(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	svc := newTestJobService(t, jobs)
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.CreateJob(ctx, owner, validInput())
	require.NoError(t, err)

	err = svc.DeleteJob(ctx, created.ID, uuid.New())
	assert.ErrorIs(t, err, service.ErrNotOwned)

	require.NoError(t, svc.DeleteJob(ctx, created.ID, owner))
	assert.Nil(t, jobs.Snapshot(created.ID))

	err = svc.DeleteJob(ctx, created.ID, owner)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}
