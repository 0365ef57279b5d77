// Package pipeline orchestrates the processing of one digest job on behalf
// of one connected client: claim the job, extract its sources, run both
// generation variants concurrently, persist the outputs, and narrate every
// step on the client's event stream. The stream always terminates with a
// done event, on success and on failure alike.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/extract"
	"github.com/skimcast/skim-api/internal/generation"
	"github.com/skimcast/skim-api/internal/metrics"
	"github.com/skimcast/skim-api/internal/platform/logger"
	"github.com/skimcast/skim-api/internal/store"
	"github.com/skimcast/skim-api/internal/stream"
)

// Client-facing terminal messages. Kept stable so clients can distinguish
// the retriable failures from the permanent ones.
const (
	msgProcessedElsewhere = "this job is being processed by another session; reconnect to observe progress"
	msgNoContent          = "no content could be extracted from the provided sources"
	msgUnreadableContent  = "the extracted content was not readable as a document; extraction will be retried on the next attempt"
	msgGenerationFailed   = "digest generation failed"
	msgInternalError      = "an internal error interrupted processing"
	msgComplete           = "complete"
)

// Extractor runs the extraction stage. Satisfied by extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, sources []domain.Source, sink stream.Sink) (extract.Result, error)
}

// Processor drives one job from claim to terminal event.
type Processor struct {
	jobs      store.JobStore
	extractor Extractor
	generator generation.Generator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewProcessor wires the pipeline's collaborators.
func NewProcessor(
	jobs store.JobStore,
	extractor Extractor,
	generator generation.Generator,
	m *metrics.Metrics,
	log *slog.Logger,
) *Processor {
	return &Processor{
		jobs:      jobs,
		extractor: extractor,
		generator: generator,
		metrics:   m,
		logger:    log.With(slog.String("component", "pipeline")),
	}
}

// Process runs the full pipeline for job, emitting events on sink. It does
// not return an error: every outcome the client must know about is an
// event, and transport failures mean there is no client left to tell.
func (p *Processor) Process(ctx context.Context, job *domain.DigestJob, sink stream.Sink) {
	start := time.Now()
	log := logger.FromContextOrDefault(ctx, p.logger).With(slog.String("job_id", job.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing job", slog.Any("panic", r))
			// conditional on the claim still being held, so a completed
			// extraction is never discarded
			if err := p.jobs.ReleaseClaim(ctx, job.ID); err != nil {
				log.Error("failed to release claim after panic", slog.String("error", err.Error()))
			}
			p.failJob(ctx, sink, msgInternalError)
		}
		p.metrics.ObserveJobDuration(time.Since(start))
	}()

	// Completed jobs replay their persisted outputs without touching the
	// row, so reconnecting to a finished job is free and idempotent.
	if job.IsComplete() {
		log.Debug("replaying completed job")
		p.replay(ctx, sink, job)
		return
	}

	result, err := p.jobs.TryClaim(ctx, job.ID)
	if err != nil {
		log.Error("claim attempt failed", slog.String("error", err.Error()))
		p.failJob(ctx, sink, msgInternalError)
		return
	}

	var text string
	var images []string

	switch result {
	case store.ClaimInProgress:
		p.metrics.ClaimConflicts.Inc()
		log.Info("job already claimed by another session")
		p.sendAll(ctx, sink, stream.Status(msgProcessedElsewhere), stream.Done())
		return

	case store.ClaimComplete:
		// Extraction survived a previous attempt. Re-read the row: the
		// handler's snapshot predates the claim check, so the job may
		// even have completed in the meantime.
		fresh, err := p.jobs.GetByID(ctx, job.ID)
		if err != nil {
			log.Error("failed to reload job after claim check", slog.String("error", err.Error()))
			p.failJob(ctx, sink, msgInternalError)
			return
		}
		if fresh.IsComplete() {
			log.Debug("job completed since snapshot, replaying")
			p.replay(ctx, sink, fresh)
			return
		}
		log.Info("resuming job with persisted extraction")
		text, images = fresh.ExtractedText, fresh.ExtractedImages

	case store.ClaimAcquired:
		p.metrics.ClaimsAcquired.Inc()
		log.Info("claim acquired", slog.Int("sources", len(job.Sources)))

		text, images, err = p.runExtraction(ctx, log, sink, job)
		if err != nil {
			return
		}

	default:
		log.Error("unknown claim result", slog.String("result", result.String()))
		p.failJob(ctx, sink, msgInternalError)
		return
	}

	p.runGeneration(ctx, log, sink, job, text, images)
}

// runExtraction extracts all sources and persists the result. Any error
// return means a terminal event was already sent (or the client is gone)
// and processing must stop.
func (p *Processor) runExtraction(ctx context.Context, log *slog.Logger, sink stream.Sink, job *domain.DigestJob) (string, []string, error) {
	if err := sink.Send(ctx, stream.Status("extracting content")); err != nil {
		return "", nil, err
	}

	res, err := p.extractor.Extract(ctx, job.Sources, sink)
	if err != nil {
		if ctx.Err() != nil {
			// Client gone or job ceiling hit. Leave the row alone; the
			// reaper releases the stale claim later.
			log.Info("extraction cancelled", slog.String("error", err.Error()))
			return "", nil, err
		}

		log.Warn("extraction produced no content", slog.String("error", err.Error()))
		if relErr := p.jobs.ReleaseClaim(ctx, job.ID); relErr != nil {
			log.Error("failed to release claim", slog.String("error", relErr.Error()))
		}
		p.metrics.JobsFailed.Inc()
		p.sendAll(ctx, sink, stream.Error(msgNoContent), stream.Done())
		return "", nil, err
	}

	if err := p.jobs.MarkExtracted(ctx, job.ID, res.CombinedText, res.Images); err != nil {
		log.Error("failed to persist extraction", slog.String("error", err.Error()))
		if relErr := p.jobs.ReleaseClaim(ctx, job.ID); relErr != nil {
			log.Error("failed to release claim", slog.String("error", relErr.Error()))
		}
		p.failJob(ctx, sink, msgInternalError)
		return "", nil, err
	}

	log.Info("extraction persisted",
		slog.Int("text_len", len(res.CombinedText)),
		slog.Int("images", len(res.Images)))

	return res.CombinedText, res.Images, nil
}

// runGeneration fans two concurrent generation producers into the event
// stream, applies the asymmetric failure policy, and persists the outputs.
func (p *Processor) runGeneration(ctx context.Context, log *slog.Logger, sink stream.Sink, job *domain.DigestJob, text string, images []string) {
	if err := sink.Send(ctx, stream.Status("generating digest")); err != nil {
		return
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fi := newFanIn()
	for _, variant := range []generation.Variant{generation.VariantFormatted, generation.VariantBreadtext} {
		req := generation.Request{
			Text:           text,
			Images:         images,
			ReadingMinutes: job.TargetReadingMinutes,
			Complexity:     job.ComplexityLevel,
			Language:       job.OutputLanguage,
			Variant:        variant,
		}
		go p.produce(genCtx, fi, req)
	}

	var formatted, breadtext strings.Builder
	var formattedErr error
	breadtextOK := true

	remaining := 2
	for remaining > 0 {
		if err := fi.wait(ctx); err != nil {
			log.Info("generation cancelled", slog.String("error", err.Error()))
			return
		}

		for _, ev := range fi.take() {
			switch ev.kind {
			case kindChunk:
				if ev.variant == generation.VariantFormatted {
					formatted.WriteString(ev.text)
				} else {
					breadtext.WriteString(ev.text)
				}
				if err := sink.Send(ctx, stream.Chunk(ev.variant, ev.text)); err != nil {
					return
				}
				p.metrics.ChunksStreamed.WithLabelValues(string(ev.variant)).Inc()

			case kindDone:
				remaining--
				if err := sink.Send(ctx, stream.VariantDone(ev.variant)); err != nil {
					return
				}

			case kindFailed:
				remaining--
				if ev.variant == generation.VariantFormatted {
					formattedErr = ev.err
					// the secondary output is worthless without the
					// primary; stop its producer early
					cancel()
				} else {
					breadtextOK = false
					log.Warn("breadtext generation failed, continuing without it",
						slog.String("error", ev.err.Error()))
				}
			}
		}
	}

	if formattedErr != nil {
		if ctx.Err() != nil {
			log.Info("generation cancelled", slog.String("error", formattedErr.Error()))
			return
		}
		log.Error("formatted generation failed", slog.String("error", formattedErr.Error()))
		p.metrics.JobsFailed.Inc()
		p.sendAll(ctx, sink, stream.Error(msgGenerationFailed), stream.Done())
		return
	}

	formattedText := formatted.String()
	if strings.HasPrefix(strings.TrimSpace(formattedText), generation.UnreadableContentReply) {
		log.Warn("model judged extracted content unreadable, resetting extraction")
		if err := p.jobs.ResetExtraction(ctx, job.ID); err != nil {
			log.Error("failed to reset extraction", slog.String("error", err.Error()))
		}
		p.metrics.JobsFailed.Inc()
		p.sendAll(ctx, sink, stream.Error(msgUnreadableContent), stream.Done())
		return
	}

	breadtextText := breadtext.String()
	if !breadtextOK || strings.HasPrefix(strings.TrimSpace(breadtextText), generation.UnreadableContentReply) {
		breadtextText = ""
	}

	outputImages := referencedImages(images, formattedText, breadtextText)

	if err := p.jobs.SaveOutputs(ctx, job.ID, formattedText, breadtextText, outputImages); err != nil {
		log.Error("failed to persist outputs", slog.String("error", err.Error()))
		p.failJob(ctx, sink, msgInternalError)
		return
	}

	p.metrics.JobsCompleted.Inc()
	log.Info("job completed",
		slog.Int("formatted_len", len(formattedText)),
		slog.Int("breadtext_len", len(breadtextText)),
		slog.Int("output_images", len(outputImages)))

	p.sendAll(ctx, sink,
		stream.Status(msgComplete),
		stream.Images(outputImages),
		stream.Done(),
	)
}

// produce runs one generation call and republishes its chunks as tagged
// fan-in events. Exactly one terminal event (done or failed) is published
// per producer.
func (p *Processor) produce(ctx context.Context, fi *fanIn, req generation.Request) {
	ch, err := p.generator.GenerateDigest(ctx, req)
	if err != nil {
		fi.publish(producerEvent{variant: req.Variant, kind: kindFailed, err: err})
		return
	}

	for chunk := range ch {
		if chunk.Err != nil {
			fi.publish(producerEvent{variant: req.Variant, kind: kindFailed, err: chunk.Err})
			return
		}
		fi.publish(producerEvent{variant: req.Variant, kind: kindChunk, text: chunk.Text})
	}

	fi.publish(producerEvent{variant: req.Variant, kind: kindDone})
}

// replay streams a completed job's persisted outputs. No writes occur.
func (p *Processor) replay(ctx context.Context, sink stream.Sink, job *domain.DigestJob) {
	events := []stream.Event{
		stream.Status(msgComplete),
		stream.Content(job.FormattedOutput),
	}
	if job.BreadtextOutput != "" {
		events = append(events, stream.Breadtext(job.BreadtextOutput))
	}
	events = append(events, stream.Images(job.OutputImages), stream.Done())

	p.sendAll(ctx, sink, events...)
}

// failJob emits the terminal error/done pair with a generic message.
func (p *Processor) failJob(ctx context.Context, sink stream.Sink, message string) {
	p.metrics.JobsFailed.Inc()
	p.sendAll(ctx, sink, stream.Error(message), stream.Done())
}

// sendAll sends events until one fails; a transport failure means the
// client is gone and the rest would go nowhere.
func (p *Processor) sendAll(ctx context.Context, sink stream.Sink, events ...stream.Event) {
	for _, ev := range events {
		if err := sink.Send(ctx, ev); err != nil {
			return
		}
	}
}

// referencedImages returns the extracted image references that appear
// verbatim in at least one of the given output texts, preserving
// extraction order.
func referencedImages(extracted []string, outputs ...string) []string {
	var out []string
	for _, img := range extracted {
		if img == "" {
			continue
		}
		for _, text := range outputs {
			if strings.Contains(text, img) {
				out = append(out, img)
				break
			}
		}
	}
	return out
}
