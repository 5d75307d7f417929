package sessioncache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/modelgate/internal/universal"
)

func TestCache_GetPutRoundTrip(t *testing.T) {
	c := New(10)

	_, ok := c.Get("session-1")
	assert.False(t, ok)

	c.Put("session-1", universal.SessionUsage{InputTokens: 4200})
	usage, ok := c.Get("session-1")
	require.True(t, ok)
	assert.Equal(t, 4200, usage.InputTokens)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)

	c.Put("a", universal.SessionUsage{InputTokens: 1})
	c.Put("b", universal.SessionUsage{InputTokens: 2})

	// touch "a" so "b" becomes the least recently used entry
	_, _ = c.Get("a")

	c.Put("c", universal.SessionUsage{InputTokens: 3})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")

	assert.True(t, aOK, "recently touched entry should survive eviction")
	assert.False(t, bOK, "least recently used entry should be evicted")
	assert.True(t, cOK, "newly inserted entry should be present")
	assert.Equal(t, 2, c.Len())
}

func TestCache_IgnoresEmptySessionID(t *testing.T) {
	c := New(10)
	c.Put("", universal.SessionUsage{InputTokens: 1})
	_, ok := c.Get("")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_DefaultCapacityFallback(t *testing.T) {
	c := New(0)
	assert.NotNil(t, c)
}
