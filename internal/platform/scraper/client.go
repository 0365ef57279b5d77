// Package scraper is the HTTP client for the URL scraping collaborator,
// which fetches and renders a web page to markdown. Scraped markdown needs
// no OCR pass.
package scraper

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

// ErrScrapeFailed is returned when the scraper service reports a failure
// or responds with a non-success status.
var ErrScrapeFailed = errors.New("url scrape failed")

// Result is the scraper service's output for one URL.
type Result struct {
	// StoredLocation is where the scraper archived the fetched page.
	StoredLocation string `json:"stored_location"`

	// DisplayName is a human-readable name for the page, used in the
	// combined text's section separators.
	DisplayName string `json:"display_name"`

	Markdown string `json:"markdown"`
}

// Client calls the scraper collaborator over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a scraper client for the given base URL with the given
// per-call timeout (the default configuration uses 45s).
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger.With(slog.String("component", "scraper_client")),
	}
}

// Scrape fetches and renders the page at the given URL.
func (c *Client) Scrape(ctx context.Context, url string) (Result, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("scraper service returned error",
			slog.Int("status", resp.StatusCode),
			slog.String("detail", string(detail)))
		return Result{}, fmt.Errorf("%w: status %d", ErrScrapeFailed, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: malformed response: %v", ErrScrapeFailed, err)
	}

	c.logger.Debug("url scraped",
		slog.String("display_name", result.DisplayName),
		slog.Int("markdown_length", len(result.Markdown)),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}
