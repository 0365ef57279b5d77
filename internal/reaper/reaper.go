// Package reaper recovers digest jobs whose processing claim was abandoned
// without release: a crashed server, or a client that disconnected mid-run
// and never retried. Releasing the claim makes the job claimable again, so
// the next connected client simply redoes extraction.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skimcast/skim-api/internal/metrics"
)

// ClaimReleaser releases claims held longer than a cutoff. Satisfied by
// store.JobStore.
type ClaimReleaser interface {
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config holds the reaper's timing parameters.
type Config struct {
	// ClaimTTL is how long a claim may be held before it is considered
	// abandoned. It must comfortably exceed the job processing ceiling.
	ClaimTTL time.Duration

	// SweepInterval is how often to check for stale claims.
	// If zero, defaults to 5 minutes.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ClaimTTL:      15 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Reaper periodically releases abandoned processing claims.
type Reaper struct {
	jobs       ClaimReleaser
	config     Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a Reaper.
func New(jobs ClaimReleaser, config Config, m *metrics.Metrics, logger *slog.Logger) *Reaper {
	if config.SweepInterval == 0 {
		config.SweepInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		jobs:       jobs,
		config:     config,
		metrics:    m,
		logger:     logger.With(slog.String("component", "reaper")),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start begins the background sweep loop. A first sweep runs immediately
// to recover claims left over from before this process started.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop shuts the sweep loop down and waits for it to exit.
func (r *Reaper) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	r.sweep()

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping reaper")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	released, err := r.jobs.ReleaseStaleClaims(r.ctx, r.config.ClaimTTL)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Error("failed to release stale claims", "error", err)
		return
	}

	if released > 0 {
		r.metrics.StaleClaimsReleased.Add(float64(released))
		r.logger.Info("released stale claims",
			"count", released,
			"older_than", r.config.ClaimTTL.String())
	}
}
