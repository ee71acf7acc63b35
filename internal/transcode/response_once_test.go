package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferTranscoder_TextAndToolUse(t *testing.T) {
	b := NewBufferTranscoder("msg_1", "sonnet", 5)
	chunk1, err := ParseLegacyChunk([]byte(`{"choices":[{"delta":{"content":"hi"}}]}`))
	require.NoError(t, err)
	b.HandleChunk(chunk1)

	chunk2, err := ParseLegacyChunk([]byte(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"1","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]},"finish_reason":"tool_calls"}]}`))
	require.NoError(t, err)
	b.HandleChunk(chunk2)

	resp := b.Response()
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "hi", resp.Content[0].Text)
	assert.Equal(t, "toolu_1", resp.Content[1].ToolUseID)
	assert.JSONEq(t, `{"q":"go"}`, string(resp.Content[1].ToolUseInput))
}

func TestBufferTranscoder_NoChunksYieldsEmptyContent(t *testing.T) {
	b := NewBufferTranscoder("msg_1", "sonnet", 0)
	resp := b.Response()
	assert.Empty(t, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestRepairArguments_AppendsClosingBrace(t *testing.T) {
	out := repairArguments(`{"a":1`)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestRepairArguments_FallsBackOnUnparseable(t *testing.T) {
	out := repairArguments(`not json at all {{{`)
	assert.Contains(t, string(out), "_raw_arguments")
	assert.Contains(t, string(out), "_parse_error")
}
