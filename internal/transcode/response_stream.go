// Package transcode also implements both ResponseTranscoder variants
// (spec.md §4.8-§4.9): converting the legacy upstream's streamed
// OpenAI-style chat-completion chunks into a well-formed Anthropic
// event sequence, live (StreamTranscoder) or buffered to one response
// object (BufferTranscoder). Grounded in
// other_examples/.../translator/anthropic_openai.go's
// openAIStreamToAnthropicState, generalized to this spec's explicit
// block-index-by-first-observation and multi-object-suppression rules
// (spec.md §4.8) that the envoy translator does not need.
package transcode

import (
	"errors"
	"strings"
	"syscall"

	anthropicwire "relay/internal/anthropic"
)

// StreamTranscoder is the streaming ResponseTranscoder state machine
// of spec.md §4.8. One instance serves exactly one request.
type StreamTranscoder struct {
	w         *anthropicwire.SSEWriter
	messageID string
	model     string
	inputTokens int64

	nextIndex int

	textOpen      bool
	textIndex     int
	thinkingOpen  bool
	thinkingIndex int

	toolSlots map[int]*ToolCallAssembly
	toolOrder []int

	finishReason string
	charsEmitted int64
}

// NewStreamTranscoder builds a transcoder that writes Anthropic SSE
// events to w for a response with the given id/model and estimated
// input token count (spec.md §4.8 step 1).
func NewStreamTranscoder(w *anthropicwire.SSEWriter, messageID, model string, inputTokens int64) *StreamTranscoder {
	return &StreamTranscoder{
		w:           w,
		messageID:   messageID,
		model:       model,
		inputTokens: inputTokens,
		toolSlots:   make(map[int]*ToolCallAssembly),
	}
}

// Start emits message_start (spec.md §4.8 step 1).
func (t *StreamTranscoder) Start() error {
	return t.w.Event("message_start", anthropicwire.MessageStart{
		Type: "message_start",
		Message: anthropicwire.MessageHeader{
			ID:      t.messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   t.model,
			Content: []anthropicwire.ContentBlock{},
			Usage:   anthropicwire.Usage{InputTokens: t.inputTokens},
		},
	})
}

// HandleChunk dispatches one legacy chunk's choices[0] delta, per
// spec.md §4.8 steps 2-5. Safe to call with an empty choices list
// (some upstreams send a final usage-only frame).
func (t *StreamTranscoder) HandleChunk(c LegacyChunk) error {
	if len(c.Choices) == 0 {
		return nil
	}
	choice := c.Choices[0]

	if choice.Delta.Content != "" {
		if err := t.emitText(choice.Delta.Content); err != nil {
			return err
		}
	}
	if thinking := choice.Delta.ThinkingText(); thinking != "" {
		if err := t.emitThinking(thinking); err != nil {
			return err
		}
	}
	for _, td := range choice.Delta.ToolCalls {
		if err := t.emitToolCallDelta(td); err != nil {
			return err
		}
	}
	if choice.FinishReason != nil {
		t.finishReason = *choice.FinishReason
	}
	return nil
}

func (t *StreamTranscoder) emitText(text string) error {
	if !t.textOpen {
		t.textIndex = t.nextIndex
		t.nextIndex++
		t.textOpen = true
		if err := t.w.Event("content_block_start", anthropicwire.ContentBlockStart{
			Type:         "content_block_start",
			Index:        t.textIndex,
			ContentBlock: anthropicwire.ContentBlock{Type: anthropicwire.BlockText},
		}); err != nil {
			return err
		}
	}
	t.charsEmitted += int64(len(text))
	return t.w.Event("content_block_delta", anthropicwire.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: t.textIndex,
		Delta: anthropicwire.TextDelta{Type: "text_delta", Text: text},
	})
}

func (t *StreamTranscoder) emitThinking(thinking string) error {
	if !t.thinkingOpen {
		t.thinkingIndex = t.nextIndex
		t.nextIndex++
		t.thinkingOpen = true
		if err := t.w.Event("content_block_start", anthropicwire.ContentBlockStart{
			Type:         "content_block_start",
			Index:        t.thinkingIndex,
			ContentBlock: anthropicwire.ContentBlock{Type: anthropicwire.BlockThinking},
		}); err != nil {
			return err
		}
	}
	t.charsEmitted += int64(len(thinking))
	return t.w.Event("content_block_delta", anthropicwire.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: t.thinkingIndex,
		Delta: anthropicwire.ThinkingDelta{Type: "thinking_delta", Thinking: thinking},
	})
}

func (t *StreamTranscoder) emitToolCallDelta(td LegacyToolCallDelta) error {
	slot, ok := t.toolSlots[td.Index]
	if !ok {
		slot = &ToolCallAssembly{}
		t.toolSlots[td.Index] = slot
		t.toolOrder = append(t.toolOrder, td.Index)
	}
	if td.ID != "" {
		slot.ID = NormalizeToolCallID(td.ID)
	}
	if td.Function.Name != "" {
		slot.Name = td.Function.Name
	}

	if !slot.Started {
		if slot.ID == "" || slot.Name == "" {
			// Not enough to start the block yet; buffer arguments so
			// far without emitting (spec.md §4.8 step 4).
			slot.Append(td.Function.Arguments)
			return nil
		}
		slot.Started = true
		slot.BlockIndex = t.nextIndex
		t.nextIndex++
		if err := t.w.Event("content_block_start", anthropicwire.ContentBlockStart{
			Type:  "content_block_start",
			Index: slot.BlockIndex,
			ContentBlock: anthropicwire.ContentBlock{
				Type:         anthropicwire.BlockToolUse,
				ToolUseID:    slot.ID,
				ToolUseName:  slot.Name,
				ToolUseInput: []byte("{}"),
			},
		}); err != nil {
			return err
		}
		// Flush anything accumulated before id+name were both known.
		buffered := slot.Arguments.String()
		if buffered != "" {
			t.charsEmitted += int64(len(buffered))
			return t.w.Event("content_block_delta", anthropicwire.ContentBlockDelta{
				Type:  "content_block_delta",
				Index: slot.BlockIndex,
				Delta: anthropicwire.InputJSONDelta{Type: "input_json_delta", PartialJSON: buffered},
			})
		}
		return nil
	}

	if td.Function.Arguments == "" {
		return nil
	}
	fragment := slot.Append(td.Function.Arguments)
	if fragment == "" {
		return nil
	}
	t.charsEmitted += int64(len(fragment))
	return t.w.Event("content_block_delta", anthropicwire.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: slot.BlockIndex,
		Delta: anthropicwire.InputJSONDelta{Type: "input_json_delta", PartialJSON: fragment},
	})
}

// Finish emits the terminal event sequence on `[DONE]` (spec.md §4.8
// step 6): content_block_stop for each open block in the order
// thinking → text → tool_use (tool blocks in slot first-seen order),
// then message_delta, then message_stop. Indices are assigned by first
// observation, so this order is ascending by index only when the
// blocks first appeared in that same order.
func (t *StreamTranscoder) Finish() error {
	if t.thinkingOpen {
		if err := t.w.Event("content_block_stop", anthropicwire.ContentBlockStop{Type: "content_block_stop", Index: t.thinkingIndex}); err != nil {
			return err
		}
	}
	if t.textOpen {
		if err := t.w.Event("content_block_stop", anthropicwire.ContentBlockStop{Type: "content_block_stop", Index: t.textIndex}); err != nil {
			return err
		}
	}
	for _, idx := range t.toolOrder {
		slot := t.toolSlots[idx]
		if !slot.Started {
			continue
		}
		if err := t.w.Event("content_block_stop", anthropicwire.ContentBlockStop{Type: "content_block_stop", Index: slot.BlockIndex}); err != nil {
			return err
		}
	}

	stopReason := t.stopReason()
	outputTokens := t.charsEmitted / 4
	if err := t.w.Event("message_delta", anthropicwire.MessageDelta{
		Type:  "message_delta",
		Delta: anthropicwire.MessageDeltaPayload{StopReason: stopReason},
		Usage: anthropicwire.Usage{OutputTokens: outputTokens},
	}); err != nil {
		return err
	}
	return t.w.Event("message_stop", anthropicwire.MessageStop{Type: "message_stop"})
}

// stopReason implements spec.md §4.8's stop_reason mapping.
func (t *StreamTranscoder) stopReason() string {
	if len(t.toolOrder) > 0 {
		for _, idx := range t.toolOrder {
			if t.toolSlots[idx].Started {
				return "tool_use"
			}
		}
	}
	switch t.finishReason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "stop":
		return "end_turn"
	default:
		return "end_turn"
	}
}

// IsClientDisconnect reports whether err represents the caller
// breaking its connection mid-stream (spec.md §5 Cancellation,
// §4.8 "Client-disconnect handling"): the upstream read should be
// cancelled and the handler should return silently, without writing
// an error event.
func IsClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "connection reset")
}
