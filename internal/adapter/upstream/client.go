// Package upstream downloads the public SCAN wastewater feed.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
)

// maxErrorBody caps how much of a failed response is echoed in errors.
const maxErrorBody = 512

// Retry controls how failed downloads are repeated. Attempts counts retries
// after the first request; zero disables retrying.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Client fetches the upstream CSV export.
type Client struct {
	httpClient *http.Client
	retry      Retry
	logger     *slog.Logger
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(timeout time.Duration, r Retry, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  r,
		logger: logger,
	}
}

// statusError is a non-200 response.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.code, e.body)
}

func (e *statusError) temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// Fetch downloads the body at url and copies it into dst, returning the
// number of bytes copied. Transport errors, 429 and 5xx responses are
// retried with doubling backoff; dst is written only once a download
// completes.
func (c *Client) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	start := time.Now()
	backoff := c.retry.Backoff

	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			n, err := io.Copy(dst, bytes.NewReader(body))
			if err != nil {
				return n, fmt.Errorf("write upstream body: %w", err)
			}
			c.logger.Info("upstream feed downloaded",
				"url", url, "bytes", n, "attempts", attempt+1, "duration", time.Since(start))
			return n, nil
		}

		if !retryable(ctx, err) || attempt >= c.retry.Attempts {
			return 0, err
		}
		c.logger.Warn("upstream download failed, retrying",
			"url", url, "attempt", attempt+1, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return 0, fmt.Errorf("upstream request: %w", ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, c.retry.MaxBackoff)
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{code: resp.StatusCode, body: body}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.temporary()
	}
	return true
}
