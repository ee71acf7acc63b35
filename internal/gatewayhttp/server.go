// Package gatewayhttp wires the gateway's HTTP surface (spec.md §6):
// the Anthropic Messages endpoints, the static model catalogue,
// quota status/reset, health, CORS preflight, and the additive debug
// log stream (SPEC_FULL.md §A.3). Grounded in the teacher's
// cmd/root.go startHTTPServer — same http.NewServeMux/http.Server
// shape, same manually-set CORS header block, same
// ReadTimeout/WriteTimeout/IdleTimeout server tuning — generalized
// from one `/rpc` JSON-RPC endpoint to the gateway's several REST
// routes.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	anthropicwire "relay/internal/anthropic"
	"relay/internal/config"
	"relay/internal/logging"
	"relay/internal/nativeapi"
	"relay/internal/quota"
	"relay/internal/router"
)

// Server bundles the gateway's HTTP mux with the backends its handlers
// call into.
type Server struct {
	cfg          *config.Config
	router       *router.Router
	ledger       *quota.Ledger
	tokenCounter *nativeapi.TokenCounter

	httpServer *http.Server
}

// New builds a Server listening on cfg.HTTP.Host:cfg.HTTP.Port.
func New(cfg *config.Config, rt *router.Router, ledger *quota.Ledger, tokenCounter *nativeapi.TokenCounter) *Server {
	s := &Server{cfg: cfg, router: rt, ledger: ledger, tokenCounter: tokenCounter}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.withCORS(s.handleMessages))
	mux.HandleFunc("/messages", s.withCORS(s.handleMessages))
	mux.HandleFunc("/v1/messages/count_tokens", s.withCORS(s.handleCountTokens))
	mux.HandleFunc("/v1/models", s.withCORS(s.handleModels))
	mux.HandleFunc("/models", s.withCORS(s.handleModels))
	mux.HandleFunc("/v1/quota", s.withCORS(s.handleQuotaStatus))
	mux.HandleFunc("/v1/quota/reset", s.withCORS(s.handleQuotaReset))
	mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("/v1/debug/logs", s.withCORS(s.handleDebugLogs))

	addr := cfg.HTTP.Host + ":" + strconv.Itoa(cfg.HTTP.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  15 * time.Minute,
	}
	return s
}

// Run starts the server and blocks until ctx is cancelled (spec.md §5
// "SIGINT ⇒ stop accepting, drain in-flight by connection close").
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		logging.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	logging.Info("gateway HTTP server ready", "address", s.httpServer.Addr, "mode", string(s.cfg.Mode))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gatewayhttp: server failed: %w", err)
	}
	return nil
}

// withCORS applies spec.md §6's CORS preflight policy to every route:
// allow `*`, methods GET/POST/OPTIONS, headers anthropic-version and
// x-api-key.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, anthropic-version, x-api-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawBody, req, err := decodeRequest(r)
	if err != nil {
		writeClientError(w, err)
		return
	}

	s.router.Route(r.Context(), w, req, rawBody)
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, req, err := decodeRequest(r)
	if err != nil {
		writeClientError(w, err)
		return
	}

	count := s.tokenCounter.Count(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"input_tokens": count})
}

// decodeRequest reads and parses the raw JSON body, returning both the
// raw bytes (for NativePassthrough's byte-exact forward) and the
// decoded request. A missing model or messages list is ClientMalformed
// (spec.md §7).
func decodeRequest(r *http.Request) ([]byte, *anthropicwire.Request, error) {
	raw, err := readLimitedBody(r)
	if err != nil {
		return nil, nil, err
	}
	var req anthropicwire.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Model == "" {
		return nil, nil, fmt.Errorf("missing required field: model")
	}
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("missing required field: messages")
	}
	return raw, &req, nil
}

func writeClientError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(anthropicwire.NewError(anthropicwire.ErrTypeInvalidRequest, err.Error()))
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(staticModelCatalogue())
}

func (s *Server) handleQuotaStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.ledger.Status()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(quotaStatusResponse(state))
}

func (s *Server) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ledger.ResetNative(); err != nil {
		logging.Error("quota reset failed", "error", err.Error())
		http.Error(w, "failed to reset quota", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(quotaStatusResponse(s.ledger.Status()))
}
