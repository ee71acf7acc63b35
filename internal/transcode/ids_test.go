package transcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToolCallID_Idempotent(t *testing.T) {
	first := NormalizeToolCallID("abc123")
	second := NormalizeToolCallID(first)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "toolu_"))
}

func TestNormalizeToolCallID_MissingGetsSynthesized(t *testing.T) {
	id := NormalizeToolCallID("")
	assert.True(t, strings.HasPrefix(id, "toolu_"))
	assert.Len(t, id, len("toolu_")+24)
}

func TestDenormalizeToolCallID_PassesThrough(t *testing.T) {
	assert.Equal(t, "toolu_abc", DenormalizeToolCallID("toolu_abc"))
}
