// Package transcode implements MessageTranscoder and both
// ResponseTranscoder variants (spec.md §4.7-§4.9): Anthropic ⇄ legacy
// wire-format conversion. Message conversion is grounded in the
// teacher's internal/llm/provider/openai.go convertMessages/
// convertTools/preparedParams trio — generalized here to the richer
// Anthropic content-block model (source-ordered interleaving of
// text/image/document/tool_result, not a single flat string per
// message) that spec.md §4.7 requires.
package transcode

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	anthropicwire "relay/internal/anthropic"
)

// MessageTranscoder converts an Anthropic request into the legacy
// upstream's message/tool list plus request-level fields.
type MessageTranscoder struct {
	// MaxContextTokens bounds input+requested_output (spec.md §4.7
	// "max_tokens cap"); 0 disables the cap (spec.md §9's
	// MAX_OUTPUT_TOKENS=None open question, kept configurable).
	MaxContextTokens int64
}

// ErrInputTooLong is ContextTooLong from spec.md §7.
type ErrInputTooLong struct{ Remaining int64 }

func (e ErrInputTooLong) Error() string {
	return fmt.Sprintf("input too long: only %d tokens remain in the context window", e.Remaining)
}

// Transcode converts req (whose system field has already passed
// through RequestRewriter) into the legacy message/tool list.
func (t *MessageTranscoder) Transcode(req *anthropicwire.Request, estimatedInputTokens int64) ([]openai.ChatCompletionMessageParamUnion, []openai.ChatCompletionToolParam, error) {
	var out []openai.ChatCompletionMessageParamUnion

	systemText, err := req.SystemText()
	if err != nil {
		return nil, nil, err
	}
	if systemText != "" {
		out = append(out, openai.SystemMessage(systemText))
	}

	for _, msg := range req.Messages {
		converted, err := t.convertMessage(msg)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, converted...)
	}

	tools := t.convertTools(req.Tools)

	maxTokens := req.MaxTokens
	if t.MaxContextTokens > 0 {
		remaining := t.MaxContextTokens - estimatedInputTokens
		if remaining < 100 {
			return nil, nil, ErrInputTooLong{Remaining: remaining}
		}
		if maxTokens > remaining {
			maxTokens = remaining
		}
	}
	req.MaxTokens = maxTokens

	return out, tools, nil
}

// convertMessage handles one Anthropic message, which may expand into
// several legacy messages (assistant: text+tool_calls; user: the
// buffer-then-flush-on-tool_result interleaving of spec.md §4.7).
func (t *MessageTranscoder) convertMessage(msg anthropicwire.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case "assistant":
		return []openai.ChatCompletionMessageParamUnion{t.convertAssistant(msg)}, nil
	case "user":
		return t.convertUser(msg)
	default:
		return nil, fmt.Errorf("transcode: unsupported message role %q", msg.Role)
	}
}

func (t *MessageTranscoder) convertAssistant(msg anthropicwire.Message) openai.ChatCompletionMessageParamUnion {
	blocks := msg.Content.AsBlocks()

	var thinking, text strings.Builder
	var toolCalls []openai.ChatCompletionMessageToolCallParam

	for _, b := range blocks {
		switch b.Type {
		case anthropicwire.BlockThinking:
			thinking.WriteString(b.Thinking)
		case anthropicwire.BlockRedactedThinking:
			// ignored per spec.md §4.7
		case anthropicwire.BlockText:
			text.WriteString(b.Text)
		case anthropicwire.BlockToolUse:
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   DenormalizeToolCallID(b.ToolUseID),
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      b.ToolUseName,
					Arguments: string(b.ToolUseInput),
				},
			})
		}
	}

	assistantMsg := openai.ChatCompletionAssistantMessageParam{Role: "assistant"}

	var content strings.Builder
	if thinking.Len() > 0 {
		content.WriteString("<thinking>")
		content.WriteString(thinking.String())
		content.WriteString("</thinking>")
	}
	content.WriteString(text.String())
	if content.Len() > 0 {
		assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(content.String()),
		}
	}
	if len(toolCalls) > 0 {
		assistantMsg.ToolCalls = toolCalls
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg}
}

// convertUser implements spec.md §4.7's interleaving rule: process
// blocks in source order, buffering non-tool_result content into a
// pending user message, flushing it before each tool_result.
func (t *MessageTranscoder) convertUser(msg anthropicwire.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	var pending []anthropicwire.ContentBlock

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		m, err := userMessageFromBlocks(pending)
		if err != nil {
			return err
		}
		out = append(out, m)
		pending = nil
		return nil
	}

	for _, b := range msg.Content.AsBlocks() {
		if b.Type == anthropicwire.BlockToolResult {
			if err := flush(); err != nil {
				return nil, err
			}
			content, err := toolResultText(b.ToolResultContent)
			if err != nil {
				return nil, err
			}
			out = append(out, openai.ToolMessage(content, DenormalizeToolCallID(b.ToolResultID)))
			continue
		}
		pending = append(pending, b)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func toolResultText(c anthropicwire.ToolResultContent) (string, error) {
	if c.IsString {
		return c.String, nil
	}
	var sb strings.Builder
	for i, part := range c.Parts {
		if part.Type != anthropicwire.BlockText {
			continue
		}
		if i > 0 && sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// userMessageFromBlocks builds one legacy user message from a buffered
// run of text/image/document blocks: a plain string if it is a single
// text block, otherwise an array of typed parts (spec.md §4.7).
func userMessageFromBlocks(blocks []anthropicwire.ContentBlock) (openai.ChatCompletionMessageParamUnion, error) {
	if len(blocks) == 1 && blocks[0].Type == anthropicwire.BlockText {
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(blocks[0].Text)},
			},
		}, nil
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	for _, b := range blocks {
		switch b.Type {
		case anthropicwire.BlockText:
			textBlock := openai.ChatCompletionContentPartTextParam{Text: b.Text}
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{OfText: &textBlock})
		case anthropicwire.BlockImage:
			url := b.Source.URL
			if b.Source.Type == "base64" {
				url = fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data)
			}
			imageBlock := openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url},
			}
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{OfImageURL: &imageBlock})
		case anthropicwire.BlockDocument:
			// The legacy upstream does not accept binary docs
			// (spec.md §4.7): emit a placeholder text part instead.
			mime := ""
			if b.DocumentSource != nil {
				mime = b.DocumentSource.MediaType
			}
			textBlock := openai.ChatCompletionContentPartTextParam{Text: fmt.Sprintf("[Document: %s]", mime)}
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{OfText: &textBlock})
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}, nil
}

func (t *MessageTranscoder) convertTools(tools []anthropicwire.Tool) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		cleaned := CleanToolSchema(tool.InputSchema)
		out[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  cleaned,
			},
		}
	}
	return out
}

// ReasoningEffortFor maps {"type":"enabled"} thinking to the legacy
// upstream's reasoning_effort (spec.md §4.7 "thinking → reasoning").
func ReasoningEffortFor(thinking *anthropicwire.Thinking) (effort shared.ReasoningEffort, enabled bool) {
	if thinking == nil || thinking.Type != "enabled" {
		return "", false
	}
	return shared.ReasoningEffortHigh, true
}

// MapToolChoice implements spec.md §4.7's tool_choice collapse rules.
// Returned value is nil (omit), a string, or a map — encoded by the
// caller via sjson since openai-go's typed tool_choice union does not
// model the "any"→"auto" downgrade this spec requires.
func MapToolChoice(tc *anthropicwire.ToolChoice) any {
	if tc == nil {
		return nil
	}
	if tc.IsString {
		switch tc.String {
		case "auto", "none":
			return tc.String
		case "any":
			return "auto"
		default:
			return tc.String
		}
	}
	switch tc.Type {
	case "tool":
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.Name},
		}
	case "auto", "none":
		return tc.Type
	case "any":
		return "auto"
	default:
		return tc.Type
	}
}
