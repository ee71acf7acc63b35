// Package router implements Router (spec.md §4.11): the per-request
// decision of which upstream serves an Anthropic Messages request, and
// the hybrid failover orchestration between them. Grounded in the data
// flow spec.md §2 describes ("Caller → Router →
// {NativePassthrough | (RequestRewriter → MessageTranscoder → legacy
// upstream → ResponseTranscoder)} → Caller") and, for the dispatch
// shape itself, in the teacher's internal/llm/provider selection logic
// that picks between providers by name.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	anthropicwire "relay/internal/anthropic"
	"relay/internal/config"
	"relay/internal/credential"
	"relay/internal/legacyapi"
	"relay/internal/logging"
	"relay/internal/nativeapi"
	"relay/internal/quota"
	"relay/internal/rewrite"
	"relay/internal/transcode"
)

// Router dispatches one decoded Anthropic request to the configured
// upstream(s), per spec.md §4.11.
type Router struct {
	cfg *config.Config

	credStore *credential.Store
	ledger    *quota.Ledger

	native       *nativeapi.Passthrough
	tokenCounter *nativeapi.TokenCounter
	legacy       *legacyapi.Client
}

// New builds a Router wired to the given backends. native/legacy may
// be nil if the corresponding mode is not configured; callers should
// not select a mode whose backend is nil (cmd/root.go validates this
// at startup, spec.md §6 "Fatal startup").
func New(cfg *config.Config, credStore *credential.Store, ledger *quota.Ledger, native *nativeapi.Passthrough, tokenCounter *nativeapi.TokenCounter, legacy *legacyapi.Client) *Router {
	return &Router{cfg: cfg, credStore: credStore, ledger: ledger, native: native, tokenCounter: tokenCounter, legacy: legacy}
}

// ErrNoCredential is returned when no OAuth key is loaded for an
// upstream call that requires one.
var ErrNoCredential = fmt.Errorf("router: no credential loaded")

func (r *Router) accessToken() (string, error) {
	key := r.credStore.Get()
	if key == nil {
		return "", ErrNoCredential
	}
	return key.AccessToken, nil
}

// Route serves req, writing either a complete JSON response or an SSE
// stream to w depending on req.Stream. rawBody is the original,
// unparsed request body, forwarded byte-for-byte by NativePassthrough
// (spec.md §4.10 forwards "as-is"); tryNative re-marshals req instead
// only when its own model mapping or reserved-header strip changed it.
func (r *Router) Route(ctx context.Context, w http.ResponseWriter, req *anthropicwire.Request, rawBody []byte) {
	switch r.cfg.Mode {
	case config.ModeNative:
		r.routeNative(ctx, w, req, rawBody)
	case config.ModeLegacy:
		r.routeLegacy(ctx, w, req)
	default: // hybrid
		r.routeHybrid(ctx, w, req, rawBody)
	}
}

func (r *Router) routeHybrid(ctx context.Context, w http.ResponseWriter, req *anthropicwire.Request, rawBody []byte) {
	if !r.ledger.IsNativeAvailable() {
		logging.Info("hybrid: quota exhausted, routing to legacy", "model", req.Model)
		r.routeLegacy(ctx, w, req)
		return
	}

	exhausted, served := r.tryNative(ctx, w, req, rawBody, true)
	if served {
		return
	}
	if exhausted {
		logging.Warn("hybrid: native upstream quota-exhausted, failing over to legacy", "model", req.Model)
		if err := r.ledger.MarkNativeExhausted("native upstream returned a quota-exhaustion signal"); err != nil {
			logging.Error("failed to persist quota exhaustion", "error", err.Error())
		}
		r.routeLegacy(ctx, w, req)
		return
	}
	// A non-quota upstream failure in hybrid mode is surfaced directly
	// (already written by tryNative); nothing further to do.
}

// routeNative serves the native-only mode: tryNative already writes
// either the response or the upstream error to w in every case, since
// mode native has no failover target.
func (r *Router) routeNative(ctx context.Context, w http.ResponseWriter, req *anthropicwire.Request, rawBody []byte) {
	r.tryNative(ctx, w, req, rawBody, false)
}

// tryNative issues the request to the native upstream. It writes the
// response to w and returns served=true once it has committed to
// doing so. When allowFailover is true and the failure classifies as
// quota-exhaustion, it writes nothing and returns exhausted=true,
// served=false instead — per the failover invariant (spec.md §4.11),
// the upstream status code is inspected before a single byte reaches
// w, so the caller is guaranteed to see exactly one response, from
// whichever path ends up serving it. When allowFailover is false (no
// hybrid fallback available), a quota-exhaustion failure is written
// out directly as the final rate_limit_error response.
func (r *Router) tryNative(ctx context.Context, w http.ResponseWriter, req *anthropicwire.Request, rawBody []byte, allowFailover bool) (exhausted, served bool) {
	token, err := r.accessToken()
	if err != nil {
		writeError(w, http.StatusUnauthorized, anthropicwire.ErrTypeAuthentication, err.Error())
		return false, true
	}

	mapped := *req
	mapped.Model = rewrite.NormalizeModelName(req.Model, r.cfg.Native.ModelMap, r.cfg.Native.ModelMap)
	patched := false
	if mapped.Model != req.Model {
		patched = true
	}
	if systemText, err := mapped.SystemText(); err == nil && systemText != "" {
		if stripped, rewrote := rewrite.StripReservedHeaders(systemText); rewrote {
			mapped.SetSystemText(stripped)
			patched = true
		}
	}
	body := rawBody
	if patched {
		if marshalled, err := json.Marshal(mapped); err == nil {
			body = marshalled
		}
	}

	resp, err := r.native.Send(ctx, "/v1/messages", body, token)
	if err != nil {
		logging.Error("native upstream request failed", "error", err.Error())
		writeError(w, http.StatusBadGateway, anthropicwire.ErrTypeAPIError, "upstream request failed")
		return false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		errBody, _ := nativeapi.ReadBody(resp)
		if quota.IsQuotaExhaustedError(resp.StatusCode, string(errBody)) {
			if allowFailover {
				return true, false
			}
			writeError(w, http.StatusTooManyRequests, anthropicwire.ErrTypeRateLimit, string(errBody))
			return false, true
		}
		writeError(w, resp.StatusCode, anthropicwire.ErrorTypeForStatus(resp.StatusCode), string(errBody))
		return false, true
	}

	if err := r.ledger.RecordRequest(); err != nil {
		logging.Warn("failed to record native request", "error", err.Error())
	}

	if req.Stream {
		writeSSEHeaders(w)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		if _, err := copyWithFlush(w, resp.Body, flusher); err != nil {
			if !transcode.IsClientDisconnect(err) {
				logging.Warn("native stream copy failed", "error", err.Error())
			}
		}
		return false, true
	}

	raw, err := nativeapi.ReadBody(resp)
	if err != nil {
		logging.Error("reading native response body", "error", err.Error())
		return false, true
	}
	data, err := nativeapi.UnwrapSuccess(raw)
	if err != nil {
		logging.Error("unwrapping native response envelope", "error", err.Error())
		data = raw
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return false, true
}

func (r *Router) routeLegacy(ctx context.Context, w http.ResponseWriter, req *anthropicwire.Request) {
	token, err := r.accessToken()
	if err != nil {
		writeError(w, http.StatusUnauthorized, anthropicwire.ErrTypeAuthentication, err.Error())
		return
	}

	if systemText, err := req.SystemText(); err == nil && systemText != "" {
		stripped, _ := rewrite.StripReservedHeaders(systemText)
		sanitised := rewrite.SanitiseModerationTriggers(stripped)
		req.SetSystemText(sanitised)
	}
	model := rewrite.NormalizeModelName(req.Model, r.cfg.Legacy.ModelMap, r.cfg.Legacy.ModelMap)

	var estimatedInputTokens int64
	if r.tokenCounter != nil {
		estimatedInputTokens = r.tokenCounter.Count(ctx, req)
	}

	transcoder := &transcode.MessageTranscoder{MaxContextTokens: r.cfg.MaxContextTokens}
	messages, tools, err := transcoder.Transcode(req, estimatedInputTokens)
	if err != nil {
		if tooLong, ok := err.(transcode.ErrInputTooLong); ok {
			writeError(w, http.StatusBadRequest, anthropicwire.ErrTypeInvalidRequest, tooLong.Error())
			return
		}
		writeError(w, http.StatusBadRequest, anthropicwire.ErrTypeInvalidRequest, err.Error())
		return
	}

	body, err := legacyapi.BuildRequestBody(req, model, messages, tools)
	if err != nil {
		logging.Error("building legacy request body", "error", err.Error())
		writeError(w, http.StatusInternalServerError, anthropicwire.ErrTypeInternal, "failed to build upstream request")
		return
	}

	resp, err := r.legacy.Send(ctx, body, token)
	if err != nil {
		logging.Error("legacy upstream request failed", "error", err.Error())
		writeError(w, http.StatusBadGateway, anthropicwire.ErrTypeAPIError, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		errBody := legacyapi.ReadErrorBody(resp)
		if quota.IsQuotaExhaustedError(resp.StatusCode, errBody) {
			writeError(w, http.StatusTooManyRequests, anthropicwire.ErrTypeRateLimit, errBody)
			return
		}
		writeError(w, resp.StatusCode, anthropicwire.ErrorTypeForStatus(resp.StatusCode), errBody)
		return
	}

	if err := r.ledger.RecordRequest(); err != nil {
		logging.Warn("failed to record legacy request", "error", err.Error())
	}

	messageID := "msg_" + uuid.NewString()

	if req.Stream {
		r.streamLegacyResponse(w, resp.Body, messageID, req.Model, estimatedInputTokens)
		return
	}

	buf := transcode.NewBufferTranscoder(messageID, req.Model, estimatedInputTokens)
	_ = transcode.ScanLegacyFrames(resp.Body, func(c transcode.LegacyChunk) error {
		buf.HandleChunk(c)
		return nil
	})
	out := buf.Response()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (r *Router) streamLegacyResponse(w http.ResponseWriter, upstream io.Reader, messageID, model string, inputTokens int64) {
	writeSSEHeaders(w)
	flusher, _ := w.(http.Flusher)
	sseWriter := anthropicwire.NewSSEWriter(w, flusherAdapter{flusher})

	st := transcode.NewStreamTranscoder(sseWriter, messageID, model, inputTokens)
	if err := st.Start(); err != nil {
		if !transcode.IsClientDisconnect(err) {
			logging.Warn("writing message_start failed", "error", err.Error())
		}
		return
	}

	err := transcode.ScanLegacyFrames(upstream, func(c transcode.LegacyChunk) error {
		return st.HandleChunk(c)
	})
	if err != nil {
		if !transcode.IsClientDisconnect(err) {
			logging.Warn("legacy stream scan failed", "error", err.Error())
		}
		return
	}

	if err := st.Finish(); err != nil && !transcode.IsClientDisconnect(err) {
		logging.Warn("writing terminal SSE events failed", "error", err.Error())
	}
}

type flusherAdapter struct{ f http.Flusher }

func (a flusherAdapter) Flush() {
	if a.f != nil {
		a.f.Flush()
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(anthropicwire.NewError(errType, message))
}

func copyWithFlush(dst io.Writer, src io.Reader, flusher http.Flusher) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
