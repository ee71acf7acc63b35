package legacyapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client sends requests to the legacy chat/completions upstream,
// attaching the Bearer access token plus the vendor tenant headers
// spec.md §6 / SPEC_FULL.md §C.4 require (X-User-Id, X-Enterprise-Id,
// X-Tenant-Id, X-Domain) — omitted rather than sent empty.
type Client struct {
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

// New builds a Client with no client-side timeout. The router adds no
// context timeout either (DefaultTimeout is not applied by any
// caller): an upstream call lasts as long as the caller's request
// context, bounded only by the HTTP server's WriteTimeout.
func New(baseURL string, headers map[string]string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Headers:    headers,
		HTTPClient: &http.Client{Timeout: 0},
	}
}

// Send issues the chat/completions request and returns the raw
// response for the caller to stream-scan with transcode.ScanLegacyFrames.
// The caller owns closing resp.Body.
func (c *Client) Send(ctx context.Context, body []byte, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("legacyapi: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range c.Headers {
		if v == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("legacyapi: request failed: %w", err)
	}
	return resp, nil
}

// ReadErrorBody drains and returns resp.Body for ErrorClassifier
// inspection on a non-2xx response (spec.md §4.5).
func ReadErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	return string(b)
}

const DefaultTimeout = 300 * time.Second
