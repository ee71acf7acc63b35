package transcode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anthropicwire "relay/internal/anthropic"
)

func TestMessageTranscoder_InterleavedToolResultOrdering(t *testing.T) {
	raw := `[
		{"type":"text","text":"a"},
		{"type":"tool_result","tool_use_id":"toolu_1","content":"r1"},
		{"type":"text","text":"b"},
		{"type":"tool_result","tool_use_id":"toolu_2","content":"r2"}
	]`
	var content anthropicwire.FlexibleContent
	require.NoError(t, json.Unmarshal([]byte(raw), &content))

	req := &anthropicwire.Request{
		Model: "sonnet",
		Messages: []anthropicwire.Message{
			{Role: "user", Content: content},
		},
	}

	tc := &MessageTranscoder{}
	msgs, _, err := tc.Transcode(req, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.NotNil(t, msgs[0].OfUser)
	assert.Equal(t, "a", msgs[0].OfUser.Content.OfString.Value)
	assert.NotNil(t, msgs[1].OfTool)
	assert.Equal(t, "toolu_1", msgs[1].OfTool.ToolCallID)
	assert.Equal(t, "r1", msgs[1].OfTool.Content.OfString.Value)
	assert.NotNil(t, msgs[2].OfUser)
	assert.Equal(t, "b", msgs[2].OfUser.Content.OfString.Value)
	assert.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "toolu_2", msgs[3].OfTool.ToolCallID)
}

func TestMessageTranscoder_ContextTooLong(t *testing.T) {
	req := &anthropicwire.Request{
		Model:     "sonnet",
		MaxTokens: 1000,
		Messages: []anthropicwire.Message{
			{Role: "user", Content: anthropicwire.FlexibleContent{IsString: true, String: "hi"}},
		},
	}
	tc := &MessageTranscoder{MaxContextTokens: 100}
	_, _, err := tc.Transcode(req, 50)
	require.Error(t, err)
	var tooLong ErrInputTooLong
	require.ErrorAs(t, err, &tooLong)
}

func TestCleanToolSchema_StripsSchemaAdditionalPropertiesAndFormat(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","additionalProperties":false,"$schema":"http://json-schema.org/draft-07/schema#","properties":{"d":{"type":"string","format":"email"}}}`)
	cleaned := CleanToolSchema(raw)
	b, err := json.Marshal(cleaned)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.NotContains(t, decoded, "additionalProperties")
	assert.NotContains(t, decoded, "$schema")

	props := decoded["properties"].(map[string]any)
	d := props["d"].(map[string]any)
	assert.NotContains(t, d, "format")
	assert.Equal(t, "string", d["type"])
}

func TestMapToolChoice_AnyDowngradesToAuto(t *testing.T) {
	assert.Equal(t, "auto", MapToolChoice(&anthropicwire.ToolChoice{IsString: true, String: "any"}))
	assert.Equal(t, "none", MapToolChoice(&anthropicwire.ToolChoice{IsString: true, String: "none"}))
	tool := MapToolChoice(&anthropicwire.ToolChoice{Type: "tool", Name: "search"})
	m := tool.(map[string]any)
	assert.Equal(t, "function", m["type"])
}
