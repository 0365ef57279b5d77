package gemini

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/skimcast/skim-api/internal/config"
	"github.com/skimcast/skim-api/internal/generation"
	"google.golang.org/genai"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to stream digest text.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// chunkBuffer is the capacity of each returned chunk channel
	chunkBuffer int

	// templates holds the parsed prompt template per variant
	templates map[generation.Variant]*template.Template
}

// promptData is the input to the prompt templates.
type promptData struct {
	Text            string
	Images          []string
	ReadingMinutes  int
	WordBudget      int
	Complexity      string
	Language        string
	UnreadableReply string
}

// NewGeminiGenerator creates a new instance of GeminiGenerator with the
// provided dependencies. It validates the LLM configuration, parses the
// embedded prompt templates, and initializes the Gemini client.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	chunkBuffer := cfg.ChunkBufferSize
	if chunkBuffer <= 0 {
		chunkBuffer = 32
	}

	templates := make(map[generation.Variant]*template.Template, 2)
	for variant, file := range map[generation.Variant]string{
		generation.VariantFormatted: "prompts/formatted.tmpl",
		generation.VariantBreadtext: "prompts/breadtext.tmpl",
	} {
		content, err := promptFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template %s: %v",
				generation.ErrInvalidConfig, file, err)
		}
		tmpl, err := template.New(string(variant)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse prompt template %s: %v",
				generation.ErrInvalidConfig, file, err)
		}
		templates[variant] = tmpl
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger:      logger.With(slog.String("component", "gemini_generator")),
		client:      client,
		model:       cfg.ModelName,
		chunkBuffer: chunkBuffer,
		templates:   templates,
	}, nil
}

// Ensure GeminiGenerator implements generation.Generator
var _ generation.Generator = (*GeminiGenerator)(nil)

// GenerateDigest implements generation.Generator.GenerateDigest.
// It starts a server-streaming generation call and relays text increments
// onto a bounded channel. Cancellation is checked at every send, so a
// disconnected client stops the stream within one chunk.
func (g *GeminiGenerator) GenerateDigest(
	ctx context.Context,
	req generation.Request,
) (<-chan generation.Chunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt, err := g.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "starting digest generation",
		slog.String("variant", string(req.Variant)),
		slog.Int("prompt_length", len(prompt)),
		slog.Int("word_budget", req.WordBudget()))

	out := make(chan generation.Chunk, g.chunkBuffer)

	go func() {
		defer close(out)

		for resp, err := range g.client.Models.GenerateContentStream(
			ctx, g.model, genai.Text(prompt), nil,
		) {
			if err != nil {
				g.send(ctx, out, generation.Chunk{
					Err: fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err),
				})
				return
			}

			if blocked(resp) {
				g.send(ctx, out, generation.Chunk{Err: generation.ErrContentBlocked})
				return
			}

			text := resp.Text()
			if text == "" {
				continue
			}

			if !g.send(ctx, out, generation.Chunk{Text: text}) {
				g.logger.DebugContext(ctx, "generation cancelled mid-stream",
					slog.String("variant", string(req.Variant)))
				return
			}
		}
	}()

	return out, nil
}

// send delivers a chunk unless the context has been cancelled.
// Returns false when the send was abandoned.
func (g *GeminiGenerator) send(ctx context.Context, out chan<- generation.Chunk, chunk generation.Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildPrompt renders the variant's template with the request parameters.
func (g *GeminiGenerator) buildPrompt(req generation.Request) (string, error) {
	tmpl, ok := g.templates[req.Variant]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, req.Variant)
	}

	data := promptData{
		Text:            req.Text,
		Images:          req.Images,
		ReadingMinutes:  req.ReadingMinutes,
		WordBudget:      req.WordBudget(),
		Complexity:      req.Complexity,
		Language:        req.Language,
		UnreadableReply: generation.UnreadableContentReply,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// blocked reports whether the response was stopped by safety filters.
func blocked(resp *genai.GenerateContentResponse) bool {
	if resp == nil || len(resp.Candidates) == 0 {
		return false
	}
	return resp.Candidates[0].FinishReason == genai.FinishReasonSafety
}
