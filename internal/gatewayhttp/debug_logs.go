package gatewayhttp

import (
	"encoding/json"
	"net/http"

	"relay/internal/logging"
)

// handleDebugLogs streams replayed and live log lines as SSE
// (SPEC_FULL.md §A.3): the backlog first, then new records as they
// are published, until the caller disconnects.
func (s *Server) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	writeEvent := func(msg logging.LogMessage) error {
		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("event: log\ndata: " + string(body) + "\n\n")); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	for _, msg := range logging.List() {
		if err := writeEvent(msg); err != nil {
			return
		}
	}

	ctx := r.Context()
	events := logging.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ev.Payload); err != nil {
				return
			}
		}
	}
}
