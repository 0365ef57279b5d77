// Package ocr is the HTTP client for the document OCR collaborator, which
// turns a stored document into markdown plus any embedded image references.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrExtractionFailed is returned when the OCR service reports a failure
// or responds with a non-success status.
var ErrExtractionFailed = errors.New("document extraction failed")

// Result is the OCR service's output for one document.
type Result struct {
	Markdown string   `json:"markdown"`
	Images   []string `json:"images"`
}

// Client calls the OCR collaborator over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OCR client for the given base URL with the given
// per-call timeout. OCR on large documents is slow; the timeout should be
// generous (the default configuration uses 150s).
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger.With(slog.String("component", "ocr_client")),
	}
}

// ExtractDocument runs OCR on the document at the given stored location.
// A per-call failure is returned to the caller, who decides whether it is
// fatal to the whole job (it is not; failed sources are skipped).
func (c *Client) ExtractDocument(ctx context.Context, location string) (Result, error) {
	body, err := json.Marshal(map[string]string{"location": location})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount of the body for the log; the caller only
		// sees the sentinel.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("OCR service returned error",
			slog.Int("status", resp.StatusCode),
			slog.String("detail", string(detail)))
		return Result{}, fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: malformed response: %v", ErrExtractionFailed, err)
	}

	c.logger.Debug("document extracted",
		slog.Int("markdown_length", len(result.Markdown)),
		slog.Int("image_count", len(result.Images)),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}
