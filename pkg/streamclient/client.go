// Package streamclient consumes the per-job event stream served by the
// skim API, reconnecting with exponential backoff when the connection
// drops before the stream's terminal event.
package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrConnectionLost is returned when the stream breaks and the retry
	// budget is exhausted without reaching a done event.
	ErrConnectionLost = errors.New("event stream connection lost")

	// ErrUnexpectedStatus is returned when the server rejects the stream
	// request outright. Rejections are not retried; a 404 or 401 will not
	// heal on reconnect.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = time.Second
)

// Handler receives each decoded event in stream order. Returning an error
// aborts consumption and is passed through to the Stream caller.
type Handler func(event Event) error

// Config carries the settings for a stream client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string

	// Token is the bearer token sent on every stream request.
	Token string

	// HTTPClient is used for stream requests. Defaults to a client with
	// no overall timeout; the stream is long-lived and bounded by ctx.
	HTTPClient *http.Client

	// MaxAttempts is the number of consecutive reconnect attempts made
	// after a broken stream before giving up, on top of the initial
	// connection. Any received event resets the count. Defaults to 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first reconnect; each
	// further consecutive failure doubles it. Defaults to 1s.
	InitialBackoff time.Duration

	Logger *slog.Logger
}

// Client consumes job event streams.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// New creates a stream client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("streamclient: base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		httpClient:     cfg.HTTPClient,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         cfg.Logger.With(slog.String("component", "stream_client")),
	}, nil
}

// Stream consumes the event stream for jobID, invoking handler for each
// event. It returns nil when the stream ends with a done event, the
// handler's error if it aborts, ErrUnexpectedStatus if the server rejects
// the request, and ErrConnectionLost once reconnection attempts are
// exhausted. A received event resets both the attempt counter and the
// backoff, so a long stream survives many transient drops.
func (c *Client) Stream(ctx context.Context, jobID uuid.UUID, handler Handler) error {
	attempts := 0
	backoff := retry.NewExponential(c.initialBackoff)

	for {
		received, err := c.consume(ctx, jobID, handler)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, ErrUnexpectedStatus):
			return err
		case !errors.Is(err, errStreamBroken):
			// Handler errors and decode errors are not connection
			// problems; reconnecting would replay them.
			return err
		}

		if received {
			attempts = 0
			backoff = retry.NewExponential(c.initialBackoff)
		}

		// attempts counts reconnects, not connections: a dropped initial
		// connection still gets the full reconnect budget.
		if attempts >= c.maxAttempts {
			c.logger.Warn("event stream lost",
				slog.String("job_id", jobID.String()),
				slog.Int("attempts", attempts))
			return fmt.Errorf("%w after %d attempts: %w", ErrConnectionLost, attempts, err)
		}
		attempts++

		delay, _ := backoff.Next()
		c.logger.Debug("reconnecting to event stream",
			slog.String("job_id", jobID.String()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// errStreamBroken marks failures that warrant a reconnect.
var errStreamBroken = errors.New("stream broken")

// consume opens the stream once and reads it to its end. It reports
// whether at least one event was received on this connection, and returns
// nil only on a clean done event.
func (c *Client) consume(ctx context.Context, jobID uuid.UUID, handler Handler) (received bool, err error) {
	url := fmt.Sprintf("%s/api/jobs/%s/events", c.baseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %w", errStreamBroken, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			// Blank separators and keep-alive comments.
			continue
		}

		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return received, fmt.Errorf("decode event: %w", err)
		}

		received = true
		if err := handler(event); err != nil {
			return received, err
		}

		if event.Terminal() {
			return received, nil
		}
	}

	if ctx.Err() != nil {
		return received, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return received, fmt.Errorf("%w: %w", errStreamBroken, err)
	}

	// The server closed the stream without a done event.
	return received, fmt.Errorf("%w: stream ended without done", errStreamBroken)
}
