package transcode

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anthropicwire "relay/internal/anthropic"
)

type capturedEvent struct {
	Name string
	Data map[string]any
}

func runStream(t *testing.T, frames []string) (*bytes.Buffer, []capturedEvent) {
	t.Helper()
	var buf bytes.Buffer
	w := anthropicwire.NewSSEWriter(&buf, nil)
	tr := NewStreamTranscoder(w, "msg_1", "sonnet", 10)
	require.NoError(t, tr.Start())

	for _, f := range frames {
		if f == legacyDone {
			require.NoError(t, tr.Finish())
			continue
		}
		chunk, err := ParseLegacyChunk([]byte(f))
		require.NoError(t, err)
		require.NoError(t, tr.HandleChunk(chunk))
	}

	return &buf, parseEvents(t, buf.String())
}

func parseEvents(t *testing.T, raw string) []capturedEvent {
	t.Helper()
	var events []capturedEvent
	lines := strings.Split(raw, "\n")
	var name string
	for _, line := range lines {
		if strings.HasPrefix(line, "event: ") {
			name = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			var payload map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
			events = append(events, capturedEvent{Name: name, Data: payload})
		}
	}
	return events
}

func TestStreamTranscoder_StreamingEcho(t *testing.T) {
	_, events := runStream(t, []string{
		`{"choices":[{"delta":{"content":"hello"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		legacyDone,
	})

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, names)

	assert.Equal(t, float64(0), events[1].Data["index"])
	assert.Equal(t, "text", events[1].Data["content_block"].(map[string]any)["type"])
	assert.Equal(t, "hello", events[2].Data["delta"].(map[string]any)["text"])
	assert.Equal(t, "end_turn", events[4].Data["delta"].(map[string]any)["stop_reason"])
}

func TestStreamTranscoder_MultiObjectToolCallSuppressed(t *testing.T) {
	_, events := runStream(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"abc123","function":{"name":"search"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":1}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"b\":2}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		legacyDone,
	})

	var deltas []string
	for _, e := range events {
		if e.Name == "content_block_delta" {
			if d, ok := e.Data["delta"].(map[string]any)["partial_json"]; ok {
				deltas = append(deltas, d.(string))
			}
		}
	}
	require.Len(t, deltas, 1)
	assert.Equal(t, `{"a":1}`, deltas[0])

	last := events[len(events)-1]
	assert.Equal(t, "message_stop", last.Name)

	var sawToolUseStart bool
	for _, e := range events {
		if e.Name == "content_block_start" {
			if e.Data["content_block"].(map[string]any)["type"] == "tool_use" {
				sawToolUseStart = true
				assert.Equal(t, "toolu_abc123", e.Data["content_block"].(map[string]any)["id"])
			}
		}
	}
	assert.True(t, sawToolUseStart)
}
