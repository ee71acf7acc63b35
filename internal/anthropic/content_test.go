package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBlock_RoundTrip_AllTypes(t *testing.T) {
	inputs := []string{
		`{"type":"text","text":"hello"}`,
		`{"type":"thinking","thinking":"pondering","signature":"sig"}`,
		`{"type":"redacted_thinking","data":"opaque"}`,
		`{"type":"image","source":{"type":"base64","media_type":"image/png","data":"Zm9v"}}`,
		`{"type":"document","source":{"type":"url","url":"https://example.com/x.pdf"}}`,
		`{"type":"tool_use","id":"toolu_1","name":"search","input":{"q":"go"}}`,
		`{"type":"tool_result","tool_use_id":"toolu_1","content":"r1"}`,
	}

	for _, in := range inputs {
		var b ContentBlock
		require.NoError(t, json.Unmarshal([]byte(in), &b), in)

		out, err := json.Marshal(b)
		require.NoError(t, err, in)

		var reparsed ContentBlock
		require.NoError(t, json.Unmarshal(out, &reparsed), in)
		assert.Equal(t, b.Type, reparsed.Type, in)
	}
}

func TestFlexibleContent_PreservesOrder(t *testing.T) {
	raw := `[{"type":"text","text":"a"},{"type":"tool_result","tool_use_id":"toolu_1","content":"r1"},{"type":"text","text":"b"},{"type":"tool_result","tool_use_id":"toolu_2","content":"r2"}]`
	var c FlexibleContent
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	blocks := c.AsBlocks()
	require.Len(t, blocks, 4)
	assert.Equal(t, BlockText, blocks[0].Type)
	assert.Equal(t, "a", blocks[0].Text)
	assert.Equal(t, BlockToolResult, blocks[1].Type)
	assert.Equal(t, "toolu_1", blocks[1].ToolResultID)
	assert.Equal(t, BlockText, blocks[2].Type)
	assert.Equal(t, "b", blocks[2].Text)
	assert.Equal(t, BlockToolResult, blocks[3].Type)
	assert.Equal(t, "toolu_2", blocks[3].ToolResultID)
}

func TestFlexibleContent_StringShorthand(t *testing.T) {
	var c FlexibleContent
	require.NoError(t, json.Unmarshal([]byte(`"hi there"`), &c))
	blocks := c.AsBlocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "hi there", blocks[0].Text)
}

func TestToolResultContent_ListOfTextParts(t *testing.T) {
	var trc ToolResultContent
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"p1"},{"type":"text","text":"p2"}]`), &trc))
	assert.False(t, trc.IsString)
	require.Len(t, trc.Parts, 2)
}

func TestRequest_SystemText_StringAndBlockList(t *testing.T) {
	r := Request{System: json.RawMessage(`"You are helpful."`)}
	text, err := r.SystemText()
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.", text)

	r2 := Request{System: json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)}
	text2, err := r2.SystemText()
	require.NoError(t, err)
	assert.Equal(t, "a\nb", text2)
}

func TestErrorTypeForStatus(t *testing.T) {
	assert.Equal(t, ErrTypeInvalidRequest, ErrorTypeForStatus(400))
	assert.Equal(t, ErrTypeRateLimit, ErrorTypeForStatus(429))
	assert.Equal(t, ErrTypeOverloaded, ErrorTypeForStatus(529))
	assert.Equal(t, ErrTypeInternal, ErrorTypeForStatus(502))
}
