package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skimcast/skim-api/internal/config"
	"github.com/skimcast/skim-api/internal/extract"
	"github.com/skimcast/skim-api/internal/generation"
	"github.com/skimcast/skim-api/internal/metrics"
	"github.com/skimcast/skim-api/internal/pipeline"
	"github.com/skimcast/skim-api/internal/platform/gemini"
	"github.com/skimcast/skim-api/internal/platform/ocr"
	"github.com/skimcast/skim-api/internal/platform/postgres"
	"github.com/skimcast/skim-api/internal/platform/scraper"
	"github.com/skimcast/skim-api/internal/reaper"
	"github.com/skimcast/skim-api/internal/service"
	"github.com/skimcast/skim-api/internal/service/auth"
	"github.com/skimcast/skim-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	userStore store.UserStore
	jobStore  store.JobStore

	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	generator        generation.Generator
	jobService       service.JobService
	processor        *pipeline.Processor
	reaper           *reaper.Reaper
}

// newApplication wires the application components. The database connection
// and logger are established by the caller.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.passwordVerifier = auth.NewBcryptVerifier()

	app.userStore = postgres.NewPostgresUserStore(db, cfg.Auth.BcryptCost, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)

	app.generator, err = gemini.NewGeminiGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize digest generator: %w", err)
	}

	ocrClient := ocr.NewClient(
		cfg.Extract.OCRBaseURL,
		time.Duration(cfg.Extract.OCRTimeoutSeconds)*time.Second,
		logger,
	)
	scraperClient := scraper.NewClient(
		cfg.Extract.ScraperBaseURL,
		time.Duration(cfg.Extract.ScrapeTimeoutSeconds)*time.Second,
		logger,
	)
	extractor := extract.NewExtractor(
		ocrClient,
		scraperClient,
		time.Duration(cfg.Extract.OCRTimeoutSeconds)*time.Second,
		time.Duration(cfg.Extract.ScrapeTimeoutSeconds)*time.Second,
		logger,
	)

	app.processor = pipeline.NewProcessor(app.jobStore, extractor, app.generator, app.metrics, logger)

	app.jobService, err = service.NewJobService(app.jobStore, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app.reaper = reaper.New(app.jobStore, reaper.Config{
		ClaimTTL:      time.Duration(cfg.Reaper.ClaimTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Reaper.SweepIntervalMinutes) * time.Minute,
	}, app.metrics, logger)
	app.reaper.Start()

	logger.Info("application initialized")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.reaper != nil {
		app.reaper.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}
