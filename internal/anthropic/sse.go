package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
)

// SSEWriter frames Anthropic SSE events to an underlying writer as
// `event: <name>\ndata: <json>\n\n`, flushing after each event
// (spec.md §5 "Ordering guarantees ... flushed per event"). Grounded
// in the teacher's HTTP layer's general SSE plumbing and in
// other_examples/.../internal-handler-messages.go.go's writeSSE
// helper.
type SSEWriter struct {
	w       io.Writer
	flusher interface{ Flush() }
}

// NewSSEWriter wraps w. flusher may be nil if the underlying
// ResponseWriter does not support flushing (e.g. in tests).
func NewSSEWriter(w io.Writer, flusher interface{ Flush() }) *SSEWriter {
	return &SSEWriter{w: w, flusher: flusher}
}

// Event writes one named SSE event with a JSON payload.
func (s *SSEWriter) Event(name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("anthropic: marshaling sse event %s: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, body); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// MessageStart is the envelope for the "message_start" event.
type MessageStart struct {
	Type    string        `json:"type"`
	Message MessageHeader `json:"message"`
}

// MessageHeader is message_start.message before any content arrives.
type MessageHeader struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ContentBlockStart is "content_block_start".
type ContentBlockStart struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// TextDelta / ThinkingDelta / InputJSONDelta are the possible
// "delta" payloads of content_block_delta.
type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ThinkingDelta struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

// ContentBlockDelta is "content_block_delta".
type ContentBlockDelta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta any    `json:"delta"`
}

// ContentBlockStop is "content_block_stop".
type ContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaPayload is the "delta" of message_delta.
type MessageDeltaPayload struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageDelta is "message_delta".
type MessageDelta struct {
	Type  string              `json:"type"`
	Delta MessageDeltaPayload `json:"delta"`
	Usage Usage               `json:"usage"`
}

// MessageStop is "message_stop".
type MessageStop struct {
	Type string `json:"type"`
}

// SSEError is the terminal "error" event for UpstreamTransport
// failures mid-stream (spec.md §7), only ever sent before any other
// bytes have reached the caller.
type SSEError struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}
