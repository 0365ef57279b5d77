package mocks

import (
	"context"
	"sync"

	"github.com/skimcast/skim-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateDigestFn allows test cases to mock the GenerateDigest behavior
	GenerateDigestFn func(ctx context.Context, req generation.Request) (<-chan generation.Chunk, error)

	// Scripted default behavior, keyed per variant. Chunks are emitted in
	// order; Errs[variant] (if set) is delivered as a terminal error chunk
	// after the scripted chunks. StartErrs[variant] fails the call itself.
	Chunks    map[generation.Variant][]string
	Errs      map[generation.Variant]error
	StartErrs map[generation.Variant]error

	// Call tracking for verification
	GenerateDigestCalls struct {
		// mu protects the call tracking state for concurrent producers
		mu sync.Mutex

		// Count tracks how many times GenerateDigest was called
		Count int

		// Requests contains every request passed to GenerateDigest
		Requests []generation.Request
	}
}

var _ generation.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a generator with empty scripts.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Chunks:    make(map[generation.Variant][]string),
		Errs:      make(map[generation.Variant]error),
		StartErrs: make(map[generation.Variant]error),
	}
}

// GenerateDigest implements the generation.Generator interface
func (m *MockGenerator) GenerateDigest(ctx context.Context, req generation.Request) (<-chan generation.Chunk, error) {
	// Track call details for verification
	m.GenerateDigestCalls.mu.Lock()
	m.GenerateDigestCalls.Count++
	m.GenerateDigestCalls.Requests = append(m.GenerateDigestCalls.Requests, req)
	m.GenerateDigestCalls.mu.Unlock()

	// Use custom function if provided
	if m.GenerateDigestFn != nil {
		return m.GenerateDigestFn(ctx, req)
	}

	if err := m.StartErrs[req.Variant]; err != nil {
		return nil, err
	}

	chunks := m.Chunks[req.Variant]
	terminalErr := m.Errs[req.Variant]

	out := make(chan generation.Chunk, len(chunks)+1)
	go func() {
		defer close(out)
		for _, text := range chunks {
			select {
			case <-ctx.Done():
				out <- generation.Chunk{Err: ctx.Err()}
				return
			case out <- generation.Chunk{Text: text}:
			}
		}
		if terminalErr != nil {
			out <- generation.Chunk{Err: terminalErr}
		}
	}()

	return out, nil
}

// Requests returns a copy of the tracked requests.
func (m *MockGenerator) Requests() []generation.Request {
	m.GenerateDigestCalls.mu.Lock()
	defer m.GenerateDigestCalls.mu.Unlock()
	return append([]generation.Request(nil), m.GenerateDigestCalls.Requests...)
}
