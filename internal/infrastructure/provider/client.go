// Package provider holds the HTTP plumbing shared by the external provider
// adapters: response size limits, status classification and Retry-After parsing.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 4 * 1024 * 1024

// defaultRetryAfter is used when a 429 carries no usable Retry-After
const defaultRetryAfter = time.Second

// ErrNotFound is returned for HTTP 404 responses
var ErrNotFound = errors.New("provider: resource not found")

// StatusError is a non-success response that is not retried
type StatusError struct {
	Provider   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

// Client is a JSON-over-HTTP client for one provider
type Client struct {
	name       string
	httpClient *http.Client
	headers    map[string]string
}

// NewClient creates a client. A nil httpClient gets a client with timeout.
func NewClient(name string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		name:       name,
		httpClient: httpClient,
		headers:    map[string]string{"Accept": "application/json"},
	}
}

// Name returns the provider name used in errors
func (c *Client) Name() string {
	return c.name
}

// SetHeader adds a header to every request. Empty values are skipped.
func (c *Client) SetHeader(key, value string) {
	if value == "" {
		return
	}
	c.headers[key] = value
}

// Get issues a GET and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	return c.Do(req, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response into out
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req, out)
}

// Do sends the request and classifies the outcome:
//   - transport failures and 5xx wrap payorder.ErrProviderUnavailable
//   - 429 becomes a *payorder.RateLimitedError
//   - 404 wraps ErrNotFound
//   - other non-2xx are a *StatusError
func (c *Client) Do(req *http.Request, out any) error {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %v", payorder.ErrProviderUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", payorder.ErrProviderUnavailable, c.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return payorder.NewRateLimitedError(c.name, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status %d", payorder.ErrProviderUnavailable, c.name, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.name, req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: body}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", c.name, err)
	}
	return nil
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
