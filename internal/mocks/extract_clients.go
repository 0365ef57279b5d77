package mocks

import (
	"context"
	"sync"

	"github.com/skimcast/skim-api/internal/platform/ocr"
	"github.com/skimcast/skim-api/internal/platform/scraper"
)

// MockOCRClient implements extract.OCRClient for testing
type MockOCRClient struct {
	// ExtractDocumentFn allows test cases to mock the ExtractDocument behavior
	ExtractDocumentFn func(ctx context.Context, location string) (ocr.Result, error)

	// Default response values
	Result ocr.Result
	Err    error

	// Call tracking for verification
	mu        sync.Mutex
	Locations []string
}

// ExtractDocument implements the extract.OCRClient interface
func (m *MockOCRClient) ExtractDocument(ctx context.Context, location string) (ocr.Result, error) {
	m.mu.Lock()
	m.Locations = append(m.Locations, location)
	m.mu.Unlock()

	if m.ExtractDocumentFn != nil {
		return m.ExtractDocumentFn(ctx, location)
	}
	return m.Result, m.Err
}

// MockScraperClient implements extract.ScraperClient for testing
type MockScraperClient struct {
	// ScrapeFn allows test cases to mock the Scrape behavior
	ScrapeFn func(ctx context.Context, url string) (scraper.Result, error)

	// Default response values
	Result scraper.Result
	Err    error

	// Call tracking for verification
	mu   sync.Mutex
	URLs []string
}

// Scrape implements the extract.ScraperClient interface
func (m *MockScraperClient) Scrape(ctx context.Context, url string) (scraper.Result, error) {
	m.mu.Lock()
	m.URLs = append(m.URLs, url)
	m.mu.Unlock()

	if m.ScrapeFn != nil {
		return m.ScrapeFn(ctx, url)
	}
	return m.Result, m.Err
}
