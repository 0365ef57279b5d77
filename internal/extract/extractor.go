// Package extract turns a job's sources into a single markdown document.
// File sources go through the OCR service, URL sources through the scraper;
// the results are concatenated in submission order under per-source
// separator headers. A source that fails is reported on the event stream
// and skipped rather than failing the job.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/platform/ocr"
	"github.com/skimcast/skim-api/internal/platform/scraper"
	"github.com/skimcast/skim-api/internal/stream"
)

// ErrNoContent indicates that none of the job's sources produced usable
// text. The job cannot proceed to generation.
var ErrNoContent = errors.New("no content could be extracted from any source")

// OCRClient extracts markdown and image references from a stored document.
type OCRClient interface {
	ExtractDocument(ctx context.Context, location string) (ocr.Result, error)
}

// ScraperClient fetches a URL and converts it to markdown.
type ScraperClient interface {
	Scrape(ctx context.Context, url string) (scraper.Result, error)
}

// Result is the combined outcome of extracting every source of a job.
type Result struct {
	// CombinedText is the markdown of all successful sources, in
	// submission order, each under a separator header.
	CombinedText string

	// Images are the image references discovered across all sources.
	Images []string
}

// Extractor runs the extraction stage of the pipeline.
type Extractor struct {
	ocrClient     OCRClient
	scraperClient ScraperClient
	ocrTimeout    time.Duration
	scrapeTimeout time.Duration
	logger        *slog.Logger
}

// NewExtractor creates an Extractor with per-source-kind timeouts.
func NewExtractor(
	ocrClient OCRClient,
	scraperClient ScraperClient,
	ocrTimeout time.Duration,
	scrapeTimeout time.Duration,
	log *slog.Logger,
) *Extractor {
	return &Extractor{
		ocrClient:     ocrClient,
		scraperClient: scraperClient,
		ocrTimeout:    ocrTimeout,
		scrapeTimeout: scrapeTimeout,
		logger:        log.With(slog.String("component", "extractor")),
	}
}

// Extract processes every source in order. Per-source failures are emitted
// on sink as error events and skipped. Returns ErrNoContent when the
// concatenation holds no non-separator text.
func (e *Extractor) Extract(ctx context.Context, sources []domain.Source, sink stream.Sink) (Result, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	var combined strings.Builder
	var images []string
	extracted := false

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("extraction cancelled: %w", err)
		}

		markdown, srcImages, displayName, err := e.extractSource(ctx, src)
		if err != nil {
			log.Warn("source extraction failed, skipping",
				slog.String("source_id", src.ID.String()),
				slog.String("kind", string(src.Kind)),
				slog.String("error", err.Error()))

			msg := fmt.Sprintf("failed to extract %q, skipping", displayName)
			if sendErr := sink.Send(ctx, stream.Error(msg)); sendErr != nil {
				return Result{}, fmt.Errorf("stream send failed: %w", sendErr)
			}
			continue
		}

		combined.WriteString(separator(displayName))
		combined.WriteString(markdown)
		images = append(images, srcImages...)
		if strings.TrimSpace(markdown) != "" {
			extracted = true
		}
	}

	if !extracted {
		return Result{}, ErrNoContent
	}

	return Result{CombinedText: combined.String(), Images: images}, nil
}

// extractSource dispatches one source to the client for its kind and
// returns its markdown, image references, and display name.
func (e *Extractor) extractSource(ctx context.Context, src domain.Source) (string, []string, string, error) {
	switch src.Kind {
	case domain.SourceKindFile:
		srcCtx, cancel := context.WithTimeout(ctx, e.ocrTimeout)
		defer cancel()

		res, err := e.ocrClient.ExtractDocument(srcCtx, src.Location)
		if err != nil {
			return "", nil, src.DisplayName, err
		}
		return res.Markdown, res.Images, src.DisplayName, nil

	case domain.SourceKindURL:
		srcCtx, cancel := context.WithTimeout(ctx, e.scrapeTimeout)
		defer cancel()

		res, err := e.scraperClient.Scrape(srcCtx, src.Location)
		if err != nil {
			return "", nil, displayNameFor(src), err
		}
		name := res.DisplayName
		if name == "" {
			name = displayNameFor(src)
		}
		return res.Markdown, nil, name, nil

	default:
		return "", nil, displayNameFor(src), fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func displayNameFor(src domain.Source) string {
	if src.DisplayName != "" {
		return src.DisplayName
	}
	return src.Location
}

func separator(displayName string) string {
	return fmt.Sprintf("\n\n===== %s =====\n\n", displayName)
}
