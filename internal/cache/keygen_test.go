package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyDeterminism(t *testing.T) {
	g := NewKeyGenerator(1000, nil)

	k1 := g.BuildKey("summarize", "hello", map[string]any{"a": 1, "b": 2}, "")
	k2 := g.BuildKey("summarize", "hello", map[string]any{"b": 2, "a": 1}, "")
	k3 := g.BuildKey("summarize", "hello", map[string]any{"a": 1}, "")

	assert.Equal(t, k1, k2, "option order must not change the key")
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, "v1|summarize|"))
}

func TestBuildKeyHashesLargeText(t *testing.T) {
	g := NewKeyGenerator(100, nil)
	text := strings.Repeat("sensitive-content ", 20)
	require.Greater(t, len(text), 100)

	key := g.BuildKey("summarize", text, nil, "")
	assert.NotContains(t, key, "sensitive-content")

	// Deterministic across calls.
	assert.Equal(t, key, g.BuildKey("summarize", text, nil, ""))

	// Small text is embedded verbatim.
	small := g.BuildKey("summarize", "short", nil, "")
	assert.Contains(t, small, "|short|")
}

func TestBuildKeyQuestionFingerprint(t *testing.T) {
	g := NewKeyGenerator(1000, nil)

	qa1 := g.BuildKey("qa", "text", nil, "what is this?")
	qa2 := g.BuildKey("qa", "text", nil, "what is that?")
	other := g.BuildKey("summarize", "text", nil, "")

	assert.NotEqual(t, qa1, qa2)
	assert.NotContains(t, qa1, "what is this?")
	assert.True(t, strings.HasSuffix(other, "|"), "non-qa keys carry no question fingerprint")
}

func TestSizeTier(t *testing.T) {
	g := NewKeyGenerator(1000, map[string]int{"small": 10, "medium": 100, "large": 1000})

	assert.Equal(t, "small", g.SizeTier("short"))
	assert.Equal(t, "medium", g.SizeTier(strings.Repeat("x", 50)))
	assert.Equal(t, "large", g.SizeTier(strings.Repeat("x", 500)))
	assert.Equal(t, "xlarge", g.SizeTier(strings.Repeat("x", 5000)))
	assert.Empty(t, NewKeyGenerator(1000, nil).SizeTier("anything"))
}
