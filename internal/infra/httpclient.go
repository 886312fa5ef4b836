package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
	maxErrorBody   = 512
)

// HTTPStatusError is a non-2xx answer from a venue.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%s", e.StatusCode, e.Body)
}

// IsRetriable reports whether a later attempt may succeed (5xx or 429).
func (e *HTTPStatusError) IsRetriable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewHTTPClient returns the shared client used by every price source.
// The per-request budget comes from the caller's context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// CalculateBackoff returns the exponential delay before retry n (0-based),
// capped at retryMaxDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount > 4 {
		return retryMaxDelay
	}
	delay := retryBaseDelay << uint(retryCount)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// GetJSON issues a GET and decodes the body into out. Network errors, 5xx and
// 429 answers are retried up to maxRetries times with backoff, as long as ctx
// allows it.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, maxRetries int, out any) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			delay := CalculateBackoff(i - 1)
			slog.Debug("Retrying venue request", slog.String("url", url), slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		err := doGetJSON(ctx, client, url, headers, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(ctx, err) {
			return err
		}
	}
	return lastErr
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.IsRetriable()
	}
	var decodeErr *DecodeError
	return !errors.As(err, &decodeErr)
}

// DecodeError is a response body that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func doGetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
