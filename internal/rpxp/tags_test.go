package rpxp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

func TestResolveTagLongestWins(t *testing.T) {
	m, ok := rpxp.ResolveTag("AB hello there", []string{"A", "AB"})
	require.True(t, ok)
	assert.Equal(t, "AB", m.Tag)
	assert.Equal(t, "hello there", m.Body)
	assert.Equal(t, 2, m.Words)

	m, ok = rpxp.ResolveTag("A hello", []string{"AB", "A"})
	require.True(t, ok)
	assert.Equal(t, "A", m.Tag)
}

func TestResolveTagMetacharacters(t *testing.T) {
	m, ok := rpxp.ResolveTag("k! (waves) hi", []string{"k!", "k"})
	require.True(t, ok)
	assert.Equal(t, "k!", m.Tag)
	assert.Equal(t, 2, m.Words)

	_, ok = rpxp.ResolveTag("x.y text", []string{"x*"})
	assert.False(t, ok)
}

func TestResolveTagMisses(t *testing.T) {
	_, ok := rpxp.ResolveTag("hello B.", []string{"B."})
	assert.False(t, ok, "tag must be at the start")
	_, ok = rpxp.ResolveTag("b. hello", []string{"B."})
	assert.False(t, ok, "tags are case sensitive")
	_, ok = rpxp.ResolveTag("B. hello", nil)
	assert.False(t, ok)
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, rpxp.CountWords("   "))
	assert.Equal(t, 3, rpxp.CountWords(" one\ttwo\nthree "))
}
