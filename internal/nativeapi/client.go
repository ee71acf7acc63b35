// Package nativeapi is the HTTP client for the native, Anthropic-wire
// upstream: NativePassthrough (spec.md §4.10) and the native side of
// TokenCounter (spec.md §4.12). Passthrough deliberately stays at the
// raw-bytes level — unlike legacyapi, which must construct a request
// the legacy upstream understands, this upstream already speaks the
// caller's own wire format, so the only transformations spec.md
// allows are model-name mapping and the reserved-header strip.
package nativeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Passthrough forwards Anthropic-shaped request bodies to the native
// upstream and streams (or unwraps) the response back.
type Passthrough struct {
	BaseURL    string
	Headers    map[string]string // vendor x-*-internal headers, spec.md §6
	HTTPClient *http.Client
}

// New builds a Passthrough. No client-side timeout is set here, and
// the router adds none either: an upstream call lasts as long as the
// caller's request context, bounded only by the HTTP server's
// WriteTimeout.
func New(baseURL string, headers map[string]string) *Passthrough {
	return &Passthrough{BaseURL: baseURL, Headers: headers, HTTPClient: &http.Client{}}
}

// Send issues the request carrying x-api-key and anthropic-version,
// plus the vendor internal headers (spec.md §6). The caller owns
// closing resp.Body.
func (p *Passthrough) Send(ctx context.Context, path string, body []byte, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nativeapi: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", accessToken)
	req.Header.Set("anthropic-version", "2023-06-01")
	for k, v := range p.Headers {
		if v == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nativeapi: request failed: %w", err)
	}
	return resp, nil
}

// successEnvelope is the native upstream's non-streaming wrapper
// (spec.md §4.10): {"type":"success","data":{...}}.
type successEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnwrapSuccess extracts .data from a {type:"success", data:{...}}
// envelope. If body isn't shaped that way, it is returned unchanged —
// some deployments of the native upstream answer bare Anthropic
// responses without the wrapper.
func UnwrapSuccess(body []byte) (json.RawMessage, error) {
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("nativeapi: parsing response envelope: %w", err)
	}
	if env.Type == "success" && len(env.Data) > 0 {
		return env.Data, nil
	}
	return body, nil
}

// ReadBody drains and returns resp.Body, for ErrorClassifier
// inspection or UnwrapSuccess.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
