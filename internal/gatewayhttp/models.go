package gatewayhttp

import (
	"io"
	"net/http"

	"relay/internal/quota"
)

// maxRequestBodyBytes bounds a single /v1/messages payload; callers
// sending tool_result blobs or large documents stay well under this.
const maxRequestBodyBytes = 32 << 20

func readLimitedBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
}

// modelCatalogueEntry is one row of the static /v1/models listing
// (spec.md §6 "static model catalogue").
type modelCatalogueEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

func staticModelCatalogue() map[string]any {
	return map[string]any{
		"data": []modelCatalogueEntry{
			{ID: "claude-opus-4", DisplayName: "Claude Opus 4", Type: "model"},
			{ID: "claude-sonnet-4", DisplayName: "Claude Sonnet 4", Type: "model"},
			{ID: "claude-haiku-4", DisplayName: "Claude Haiku 4", Type: "model"},
		},
		"has_more": false,
	}
}

// quotaStatusBody mirrors QuotaManager.get_status() field-for-field
// (SPEC_FULL.md §C.1), plus a derived native_available boolean.
type quotaStatusBody struct {
	Exhausted     bool   `json:"exhausted"`
	ExhaustedAt   string `json:"exhausted_at,omitempty"`
	ResetAt       string `json:"reset_at,omitempty"`
	RequestCount  int64  `json:"request_count"`
	LastRequestAt string `json:"last_request_at,omitempty"`
	NativeAvail   bool   `json:"native_available"`
}

func quotaStatusResponse(state quota.State) quotaStatusBody {
	body := quotaStatusBody{
		Exhausted:    state.Exhausted,
		RequestCount: state.RequestCount,
		NativeAvail:  !state.Exhausted,
	}
	if !state.ExhaustedAt.IsZero() {
		body.ExhaustedAt = state.ExhaustedAt.Format(timeLayout)
	}
	if !state.ResetAt.IsZero() {
		body.ResetAt = state.ResetAt.Format(timeLayout)
	}
	if !state.LastRequestAt.IsZero() {
		body.LastRequestAt = state.LastRequestAt.Format(timeLayout)
	}
	return body
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
