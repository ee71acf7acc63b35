// Package legacyapi is the HTTP client for the legacy, OpenAI-style
// chat/completions upstream (spec.md §4.7, §6). Request bodies are
// built with the openai-go SDK's typed params for the fields it
// models (messages, tools, model, max_tokens) and patched with sjson
// for the handful of fields spec.md requires that the SDK's union
// types don't cleanly express (tool_choice's "any"→"auto" downgrade,
// reasoning_summary, stop, forced stream:true); reasoning_effort goes
// through the typed params — the same division
// of labor other_examples/.../translator/anthropic_openai.go uses
// ("Using sjson avoids that dependency [on the external SDK type]").
package legacyapi

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/tidwall/sjson"

	anthropicwire "relay/internal/anthropic"
	"relay/internal/transcode"
)

// BuildRequestBody assembles the legacy upstream's JSON request body
// from a transcoded message/tool list plus the original Anthropic
// request's tool_choice/thinking/stop_sequences fields. The legacy
// upstream requires stream:true unconditionally (spec.md §4.7), even
// when serving a non-streaming caller.
func BuildRequestBody(req *anthropicwire.Request, model string, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) ([]byte, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	effort, reasoningEnabled := transcode.ReasoningEffortFor(req.Thinking)
	if reasoningEnabled {
		params.ReasoningEffort = effort
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("legacyapi: marshaling request: %w", err)
	}

	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("legacyapi: setting stream: %w", err)
	}

	if len(req.StopSequences) > 0 {
		body, err = sjson.SetBytes(body, "stop", req.StopSequences)
		if err != nil {
			return nil, fmt.Errorf("legacyapi: setting stop sequences: %w", err)
		}
	}

	if choice := transcode.MapToolChoice(req.ToolChoice); choice != nil {
		body, err = sjson.SetBytes(body, "tool_choice", choice)
		if err != nil {
			return nil, fmt.Errorf("legacyapi: setting tool_choice: %w", err)
		}
	}

	if reasoningEnabled {
		body, err = sjson.SetBytes(body, "reasoning_summary", "auto")
		if err != nil {
			return nil, fmt.Errorf("legacyapi: setting reasoning_summary: %w", err)
		}
	}

	return body, nil
}
