package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReservedHeaders(t *testing.T) {
	in := "x-anthropic-billing-header: v=2.1.15\n\nYou are helpful."
	out, rewrote := StripReservedHeaders(in)
	assert.True(t, rewrote)
	assert.Equal(t, "You are helpful.", out)
}

func TestStripReservedHeaders_Idempotent(t *testing.T) {
	in := "x-anthropic-billing: foo\nYou are helpful."
	once, _ := StripReservedHeaders(in)
	twice, rewroteAgain := StripReservedHeaders(once)
	assert.Equal(t, once, twice)
	assert.False(t, rewroteAgain)
}

func TestStripReservedHeaders_NoMatch(t *testing.T) {
	in := "You are helpful."
	out, rewrote := StripReservedHeaders(in)
	assert.False(t, rewrote)
	assert.Equal(t, in, out)
}

func TestNormalizeModelName_ExactMatch(t *testing.T) {
	aliases := map[string]string{"sonnet": "claude-sonnet-4-5"}
	got := NormalizeModelName("sonnet", aliases, nil)
	assert.Equal(t, "claude-sonnet-4-5", got)
}

func TestNormalizeModelName_SubstringFallback(t *testing.T) {
	fallback := map[string]string{"opus": "claude-opus-4-1"}
	got := NormalizeModelName("claude-3-Opus-20240229", nil, fallback)
	assert.Equal(t, "claude-opus-4-1", got)
}

func TestNormalizeModelName_UnmatchedPassesThrough(t *testing.T) {
	got := NormalizeModelName("gpt-4o-mini", nil, nil)
	assert.Equal(t, "gpt-4o-mini", got)
}
