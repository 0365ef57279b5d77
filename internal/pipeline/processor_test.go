package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/extract"
	"github.com/skimcast/skim-api/internal/generation"
	"github.com/skimcast/skim-api/internal/metrics"
	"github.com/skimcast/skim-api/internal/mocks"
	"github.com/skimcast/skim-api/internal/pipeline"
	"github.com/skimcast/skim-api/internal/stream"
)

type fakeExtractor struct {
	extractFn func(ctx context.Context, sources []domain.Source, sink stream.Sink) (extract.Result, error)
	calls     atomic.Int64
}

func (f *fakeExtractor) Extract(ctx context.Context, sources []domain.Source, sink stream.Sink) (extract.Result, error) {
	f.calls.Add(1)
	if f.extractFn != nil {
		return f.extractFn(ctx, sources, sink)
	}
	return extract.Result{CombinedText: "extracted text"}, nil
}

type collectingSink struct {
	mu     sync.Mutex
	events []stream.Event
}

func (c *collectingSink) Send(_ context.Context, event stream.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collectingSink) Events() []stream.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stream.Event(nil), c.events...)
}

func (c *collectingSink) Types() []stream.Type {
	events := c.Events()
	types := make([]stream.Type, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// TextOf concatenates the chunk texts of one variant in arrival order.
func (c *collectingSink) TextOf(chunkType stream.Type) string {
	var out string
	for _, ev := range c.Events() {
		if ev.Type == chunkType {
			out += ev.Text
		}
	}
	return out
}

func (c *collectingSink) Last() stream.Event {
	events := c.Events()
	if len(events) == 0 {
		return stream.Event{}
	}
	return events[len(events)-1]
}

func newTestProcessor(jobs *mocks.MockJobStore, ex pipeline.Extractor, gen generation.Generator) *pipeline.Processor {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	return pipeline.NewProcessor(jobs, ex, gen, m, log)
}

func newJob(t *testing.T) *domain.DigestJob {
	t.Helper()
	job, err := domain.NewDigestJob(uuid.New(), 5, domain.ComplexitySimple, "English")
	require.NoError(t, err)
	_, err = job.AddSource(domain.SourceKindFile, "store/report.pdf", "report.pdf")
	require.NoError(t, err)
	return job
}

func happyGenerator() *mocks.MockGenerator {
	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"# Digest\n\n", "body with fig1.png"}
	gen.Chunks[generation.VariantBreadtext] = []string{"plain ", "prose"}
	return gen
}

func TestProcess_SuccessfulRun(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	ex := &fakeExtractor{
		extractFn: func(context.Context, []domain.Source, stream.Sink) (extract.Result, error) {
			return extract.Result{
				CombinedText: "\n\n===== report.pdf =====\n\ncontent",
				Images:       []string{"fig1.png", "fig2.png", "fig3.png"},
			}, nil
		},
	}
	gen := happyGenerator()
	gen.Chunks[generation.VariantBreadtext] = []string{"plain ", "prose with fig2.png"}

	sink := &collectingSink{}
	newTestProcessor(jobs, ex, gen).Process(context.Background(), job, sink)

	// terminal ordering: status(complete), images, done
	types := sink.Types()
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, stream.TypeDone, types[len(types)-1])
	assert.Equal(t, stream.TypeImages, types[len(types)-2])
	assert.Equal(t, stream.TypeStatus, types[len(types)-3])

	// per-variant chunk order is preserved
	assert.Equal(t, "# Digest\n\nbody with fig1.png", sink.TextOf(stream.TypeFormattedChunk))
	assert.Equal(t, "plain prose with fig2.png", sink.TextOf(stream.TypeBreadtextChunk))

	// both variants requested with the job's parameters
	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	variants := map[generation.Variant]bool{}
	for _, req := range reqs {
		variants[req.Variant] = true
		assert.Equal(t, 5, req.ReadingMinutes)
		assert.Equal(t, domain.ComplexitySimple, req.Complexity)
		assert.Equal(t, "English", req.Language)
		assert.Contains(t, req.Text, "content")
	}
	assert.True(t, variants[generation.VariantFormatted])
	assert.True(t, variants[generation.VariantBreadtext])

	// persisted outcome
	saved := jobs.Snapshot(job.ID)
	require.NotNil(t, saved)
	assert.Equal(t, domain.ExtractionStatusDone, saved.ExtractionStatus)
	assert.Equal(t, "# Digest\n\nbody with fig1.png", saved.FormattedOutput)
	assert.Equal(t, "plain prose with fig2.png", saved.BreadtextOutput)
	assert.Equal(t, []string{"fig1.png", "fig2.png"}, saved.OutputImages,
		"images referenced by either output are kept, unreferenced ones dropped")
}

func TestProcess_ClaimExclusivity(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	ex := &fakeExtractor{}
	proc := newTestProcessor(jobs, ex, happyGenerator())

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc.Process(context.Background(), job, &collectingSink{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ex.calls.Load(), "extraction must run exactly once")

	saved := jobs.Snapshot(job.ID)
	require.NotNil(t, saved)
	assert.Equal(t, domain.ExtractionStatusDone, saved.ExtractionStatus)
}

func TestProcess_ClaimInProgress(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	job.ExtractionStatus = domain.ExtractionStatusRunning
	jobs.Seed(job)

	ex := &fakeExtractor{}
	sink := &collectingSink{}
	newTestProcessor(jobs, ex, happyGenerator()).Process(context.Background(), job, sink)

	assert.Equal(t, []stream.Type{stream.TypeStatus, stream.TypeDone}, sink.Types())
	assert.Zero(t, ex.calls.Load())
	assert.Zero(t, jobs.Writes())
}

func TestProcess_ResumeSkipsExtraction(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	job.ExtractionStatus = domain.ExtractionStatusDone
	job.ExtractedText = "text from an earlier attempt"
	job.ExtractedImages = []string{"old.png"}
	jobs.Seed(job)

	ex := &fakeExtractor{}
	gen := happyGenerator()

	sink := &collectingSink{}
	newTestProcessor(jobs, ex, gen).Process(context.Background(), job, sink)

	assert.Zero(t, ex.calls.Load(), "extraction must not rerun")

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	for _, req := range reqs {
		assert.Equal(t, "text from an earlier attempt", req.Text)
		assert.Equal(t, []string{"old.png"}, req.Images)
	}

	assert.Equal(t, stream.TypeDone, sink.Last().Type)
	assert.NotEmpty(t, jobs.Snapshot(job.ID).FormattedOutput)
}

func TestProcess_ReplayCompletedJob_ZeroWrites(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	job.ExtractionStatus = domain.ExtractionStatusDone
	job.FormattedOutput = "# Done already"
	job.BreadtextOutput = "done already"
	job.OutputImages = []string{"fig.png"}
	jobs.Seed(job)

	ex := &fakeExtractor{}
	gen := mocks.NewMockGenerator()

	sink := &collectingSink{}
	newTestProcessor(jobs, ex, gen).Process(context.Background(), job, sink)

	assert.Equal(t, []stream.Type{
		stream.TypeStatus,
		stream.TypeContent,
		stream.TypeBreadtext,
		stream.TypeImages,
		stream.TypeDone,
	}, sink.Types())

	events := sink.Events()
	assert.Equal(t, "# Done already", events[1].Text)
	assert.Equal(t, "done already", events[2].Text)
	assert.Equal(t, []string{"fig.png"}, events[3].Images)

	assert.Zero(t, jobs.Writes(), "replay must not touch the row")
	assert.Zero(t, ex.calls.Load())
	assert.Zero(t, gen.GenerateDigestCalls.Count)
}

func TestProcess_ReplayOmitsEmptyBreadtext(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	job.ExtractionStatus = domain.ExtractionStatusDone
	job.FormattedOutput = "# Done already"
	jobs.Seed(job)

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, mocks.NewMockGenerator()).Process(context.Background(), job, sink)

	assert.Equal(t, []stream.Type{
		stream.TypeStatus,
		stream.TypeContent,
		stream.TypeImages,
		stream.TypeDone,
	}, sink.Types())
}

func TestProcess_NoContentReleasesClaim(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	ex := &fakeExtractor{
		extractFn: func(context.Context, []domain.Source, stream.Sink) (extract.Result, error) {
			return extract.Result{}, extract.ErrNoContent
		},
	}

	sink := &collectingSink{}
	newTestProcessor(jobs, ex, mocks.NewMockGenerator()).Process(context.Background(), job, sink)

	events := sink.Events()
	require.GreaterOrEqual(t, len(events), 2)
	errEvent := events[len(events)-2]
	assert.Equal(t, stream.TypeError, errEvent.Type)
	assert.Contains(t, errEvent.Message, "no content")
	assert.Equal(t, stream.TypeDone, sink.Last().Type)

	saved := jobs.Snapshot(job.ID)
	assert.Equal(t, domain.ExtractionStatusNone, saved.ExtractionStatus, "claim must be released for a future retry")
}

func TestProcess_FormattedFailureIsTerminal(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"partial "}
	gen.Errs[generation.VariantFormatted] = errors.New("model overloaded")
	gen.Chunks[generation.VariantBreadtext] = []string{"plain"}

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, gen).Process(context.Background(), job, sink)

	events := sink.Events()
	errEvent := events[len(events)-2]
	assert.Equal(t, stream.TypeError, errEvent.Type)
	assert.Equal(t, stream.TypeDone, sink.Last().Type)

	saved := jobs.Snapshot(job.ID)
	assert.Empty(t, saved.FormattedOutput, "nothing may be persisted on primary failure")
	assert.Empty(t, saved.BreadtextOutput)
	assert.Equal(t, domain.ExtractionStatusDone, saved.ExtractionStatus,
		"extraction survives so a retry skips straight to generation")
}

func TestProcess_BreadtextFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"# Fine"}
	gen.Errs[generation.VariantBreadtext] = errors.New("model overloaded")

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, gen).Process(context.Background(), job, sink)

	assert.Equal(t, stream.TypeDone, sink.Last().Type)

	saved := jobs.Snapshot(job.ID)
	assert.Equal(t, "# Fine", saved.FormattedOutput)
	assert.Empty(t, saved.BreadtextOutput, "job succeeds with empty breadtext")
}

func TestProcess_BreadtextStartFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"# Fine"}
	gen.StartErrs[generation.VariantBreadtext] = errors.New("quota exceeded")

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, gen).Process(context.Background(), job, sink)

	assert.Equal(t, stream.TypeDone, sink.Last().Type)
	assert.Equal(t, "# Fine", jobs.Snapshot(job.ID).FormattedOutput)
}

func TestProcess_CannedReplyResetsExtraction(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{generation.UnreadableContentReply}
	gen.Chunks[generation.VariantBreadtext] = []string{"plain"}

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, gen).Process(context.Background(), job, sink)

	events := sink.Events()
	errEvent := events[len(events)-2]
	assert.Equal(t, stream.TypeError, errEvent.Type)
	assert.Contains(t, errEvent.Message, "not readable")
	assert.Equal(t, stream.TypeDone, sink.Last().Type)

	saved := jobs.Snapshot(job.ID)
	assert.Equal(t, domain.ExtractionStatusNone, saved.ExtractionStatus,
		"unreadable content discards the extraction so a retry redoes it")
	assert.Empty(t, saved.ExtractedText)
	assert.Empty(t, saved.FormattedOutput)
}

func TestProcess_CannedBreadtextIsDiscarded(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	ex := &fakeExtractor{
		extractFn: func(context.Context, []domain.Source, stream.Sink) (extract.Result, error) {
			return extract.Result{CombinedText: "content", Images: []string{"fig1.png"}}, nil
		},
	}
	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"# Fine"}
	gen.Chunks[generation.VariantBreadtext] = []string{generation.UnreadableContentReply + " fig1.png"}

	sink := &collectingSink{}
	newTestProcessor(jobs, ex, gen).Process(context.Background(), job, sink)

	saved := jobs.Snapshot(job.ID)
	assert.Equal(t, "# Fine", saved.FormattedOutput)
	assert.Empty(t, saved.BreadtextOutput)
	assert.Empty(t, saved.OutputImages,
		"a discarded breadtext output cannot keep images alive")
	assert.Equal(t, domain.ExtractionStatusDone, saved.ExtractionStatus,
		"only a canned primary output resets extraction")
}

func TestProcess_PerVariantOrderPreserved(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	gen := mocks.NewMockGenerator()
	gen.Chunks[generation.VariantFormatted] = []string{"f1 ", "f2 ", "f3 ", "f4 ", "f5"}
	gen.Chunks[generation.VariantBreadtext] = []string{"b1 ", "b2 ", "b3"}

	sink := &collectingSink{}
	newTestProcessor(jobs, &fakeExtractor{}, gen).Process(context.Background(), job, sink)

	assert.Equal(t, "f1 f2 f3 f4 f5", sink.TextOf(stream.TypeFormattedChunk))
	assert.Equal(t, "b1 b2 b3", sink.TextOf(stream.TypeBreadtextChunk))

	// both termination markers arrive before the terminal trio
	types := sink.Types()
	assert.Contains(t, types, stream.TypeFormattedDone)
	assert.Contains(t, types, stream.TypeBreadtextDone)
}

func TestProcess_CancelledContextLeavesRowForReaper(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	job := newJob(t)
	jobs.Seed(job)

	ex := &fakeExtractor{
		extractFn: func(ctx context.Context, _ []domain.Source, _ stream.Sink) (extract.Result, error) {
			<-ctx.Done()
			return extract.Result{}, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &collectingSink{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestProcessor(jobs, ex, mocks.NewMockGenerator()).Process(ctx, job, sink)
	}()
	cancel()
	<-done

	saved := jobs.Snapshot(job.ID)
	assert.Equal(t, domain.ExtractionStatusRunning, saved.ExtractionStatus,
		"an interrupted claim is left for the reaper, not released mid-flight")
}
