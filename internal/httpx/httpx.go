// Package httpx centralizes outbound HTTP plumbing: client construction,
// caller-signal/timeout composition and lenient JSON fetching.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single upstream request unless the provider
// configures its own.
const DefaultTimeout = 12 * time.Second

// UserAgent identifies the system on every outbound request unless a
// provider overrides it (SEC EDGAR sends the operator identity instead).
const UserAgent = "tickerlens/1.0 (+https://github.com/tickerlens/tickerlens)"

// NewClient builds an HTTP client with the given per-request timeout.
// Non-positive timeouts fall back to DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Compose merges the caller's cancellation signal with a per-call timeout:
// the returned context ends when either fires. Callers must invoke cancel.
func Compose(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// StatusError is a non-2xx upstream response. Body holds a snippet of the
// response for provider-level classification (tier markers, error text).
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// GetJSON performs a GET with Accept: application/json, the system
// User-Agent and any extra headers, decoding a 2xx body into out. Non-2xx
// responses surface as *StatusError.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// parseRetryAfter handles the delta-seconds form of the header; the HTTP
// date form is rare on the APIs involved and is ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
