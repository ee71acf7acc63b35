package transcode

import (
	"encoding/json"
	"strings"

	anthropicwire "relay/internal/anthropic"
)

// BufferTranscoder implements the non-streaming ResponseTranscoder of
// spec.md §4.9: the legacy upstream is always called with stream:true
// (spec.md §4.7), but the non-streaming caller wants one complete
// Anthropic response object, so this buffers text/thinking/tool-call
// fragments to completion instead of emitting them live.
type BufferTranscoder struct {
	messageID   string
	model       string
	inputTokens int64

	text      strings.Builder
	thinking  strings.Builder
	toolSlots map[int]*ToolCallAssembly
	toolOrder []int

	finishReason string
}

// NewBufferTranscoder builds a non-streaming transcoder.
func NewBufferTranscoder(messageID, model string, inputTokens int64) *BufferTranscoder {
	return &BufferTranscoder{
		messageID:   messageID,
		model:       model,
		inputTokens: inputTokens,
		toolSlots:   make(map[int]*ToolCallAssembly),
	}
}

// HandleChunk accumulates one legacy chunk's delta.
func (b *BufferTranscoder) HandleChunk(c LegacyChunk) {
	if len(c.Choices) == 0 {
		return
	}
	choice := c.Choices[0]
	b.text.WriteString(choice.Delta.Content)
	b.thinking.WriteString(choice.Delta.ThinkingText())

	for _, td := range choice.Delta.ToolCalls {
		slot, ok := b.toolSlots[td.Index]
		if !ok {
			slot = &ToolCallAssembly{}
			b.toolSlots[td.Index] = slot
			b.toolOrder = append(b.toolOrder, td.Index)
		}
		if td.ID != "" {
			slot.ID = NormalizeToolCallID(td.ID)
		}
		if td.Function.Name != "" {
			slot.Name = td.Function.Name
		}
		if td.Function.Arguments != "" {
			slot.Append(td.Function.Arguments)
		}
	}
	if choice.FinishReason != nil {
		b.finishReason = *choice.FinishReason
	}
}

// Response assembles the complete Anthropic response object (spec.md
// §4.9). Tool-call arguments that fail to parse are repaired with one
// heuristic (append a trailing '}'); if still unparseable, the raw
// text is returned as {_raw_arguments, _parse_error} rather than
// failing the whole request.
func (b *BufferTranscoder) Response() anthropicwire.Response {
	var content []anthropicwire.ContentBlock

	if b.thinking.Len() > 0 {
		content = append(content, anthropicwire.ContentBlock{
			Type:     anthropicwire.BlockThinking,
			Thinking: b.thinking.String(),
		})
	}
	if b.text.Len() > 0 {
		content = append(content, anthropicwire.ContentBlock{
			Type: anthropicwire.BlockText,
			Text: b.text.String(),
		})
	}
	for _, idx := range b.toolOrder {
		slot := b.toolSlots[idx]
		if slot.ID == "" && slot.Name == "" {
			continue
		}
		content = append(content, anthropicwire.ContentBlock{
			Type:         anthropicwire.BlockToolUse,
			ToolUseID:    slot.ID,
			ToolUseName:  slot.Name,
			ToolUseInput: repairArguments(slot.Arguments.String()),
		})
	}
	if content == nil {
		content = []anthropicwire.ContentBlock{}
	}

	charsEmitted := int64(b.text.Len() + b.thinking.Len())
	for _, idx := range b.toolOrder {
		charsEmitted += int64(b.toolSlots[idx].Arguments.Len())
	}

	return anthropicwire.Response{
		ID:         b.messageID,
		Type:       "message",
		Role:       "assistant",
		Model:      b.model,
		Content:    content,
		StopReason: b.stopReason(),
		Usage: anthropicwire.Usage{
			InputTokens:  b.inputTokens,
			OutputTokens: charsEmitted / 4,
		},
	}
}

func (b *BufferTranscoder) stopReason() string {
	for _, idx := range b.toolOrder {
		slot := b.toolSlots[idx]
		if slot.ID != "" || slot.Name != "" {
			return "tool_use"
		}
	}
	switch b.finishReason {
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

// repairArguments implements spec.md §4.9's one-shot repair heuristic:
// if raw isn't valid JSON, try appending a closing brace; if it's
// still unparseable, fall back to a raw/parse-error envelope rather
// than failing the request.
func repairArguments(raw string) json.RawMessage {
	if raw == "" {
		raw = "{}"
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	repaired := raw + "}"
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired)
	}
	fallback, err := json.Marshal(map[string]any{
		"_raw_arguments": raw,
		"_parse_error":   "unparseable tool-call arguments",
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return fallback
}
