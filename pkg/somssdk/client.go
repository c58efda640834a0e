// Package somssdk is a zero-dependency Go client for SOMS's three HTTP
// services: TaskStore, Ledger, and Voice. Each service gets its own
// small client sharing one request helper — there is no single
// "SOMS API", just three sibling services Brain (and any other Go
// caller) happens to talk to.
package somssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is the SDK version.
const Version = "1.0.0"

// ClientOption configures a service client's underlying HTTP transport.
type ClientOption func(*http.Client)

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *http.Client) { c.Timeout = d }
}

// WithHTTPClient swaps in a caller-supplied *http.Client wholesale.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *http.Client) { *c = *hc }
}

func newHTTPClient(opts ...ClientOption) *http.Client {
	hc := &http.Client{Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// Error is a non-2xx response from a SOMS service, carrying the
// service's own {"error","message"} body shape when present.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("somssdk: %s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
}

func doRequest(ctx context.Context, hc *http.Client, apiKey, method, url string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("somssdk: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("somssdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("somssdk: request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("somssdk: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Kind: apiErr.Error, Message: apiErr.Message}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("somssdk: unmarshal response: %w", err)
		}
	}
	return nil
}
