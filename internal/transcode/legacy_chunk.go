package transcode

import "encoding/json"

// LegacyChunk is one `data: <json>` frame of the legacy upstream's
// streamed chat-completion response. Hand-rolled rather than decoded
// via openai-go's stream types (spec.md §4.8 reads line-delimited
// frames directly so it can access vendor extension fields like
// reasoning_content that the typed SDK response does not model).
type LegacyChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []LegacyChoice `json:"choices"`
}

// LegacyChoice is one choices[] entry of a LegacyChunk.
type LegacyChoice struct {
	Index        int          `json:"index"`
	Delta        LegacyDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// LegacyDelta is choices[i].delta. ReasoningContent is the
// vendor-specific "thinking" extension field (spec.md §4.8 step 3,
// "reasoning_content (or thinking)").
type LegacyDelta struct {
	Content          string             `json:"content"`
	ReasoningContent string             `json:"reasoning_content"`
	Thinking         string             `json:"thinking"`
	ToolCalls        []LegacyToolCallDelta `json:"tool_calls"`
}

// LegacyToolCallDelta is one tool_calls[] delta entry. Index is the
// stable slot key ToolCallAssembly is keyed on (spec.md §3, §4.8).
type LegacyToolCallDelta struct {
	Index    int                    `json:"index"`
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function LegacyFunctionDelta    `json:"function"`
}

// LegacyFunctionDelta is tool_calls[i].function: name arrives once,
// arguments arrive as incremental JSON-fragment chunks.
type LegacyFunctionDelta struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ThinkingText returns whichever of reasoning_content/thinking is
// populated; upstreams are observed to use either field name.
func (d LegacyDelta) ThinkingText() string {
	if d.ReasoningContent != "" {
		return d.ReasoningContent
	}
	return d.Thinking
}

// ParseLegacyChunk decodes one `data: ...` frame's JSON payload.
// Malformed frames are UpstreamProtocol errors (spec.md §7): the
// caller skips them and continues, never failing the stream.
func ParseLegacyChunk(data []byte) (LegacyChunk, error) {
	var c LegacyChunk
	err := json.Unmarshal(data, &c)
	return c, err
}
