package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, ok := c.Get(ctx, "evt_123")
	assert.False(t, ok, "empty cache should miss")

	c.Set(ctx, "evt_123", "processed", time.Minute)
	val, ok := c.Get(ctx, "evt_123")
	require.True(t, ok)
	assert.Equal(t, "processed", val)
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "evt_456", "processed", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get(ctx, "evt_456")
	assert.False(t, ok, "expired entry should miss")
}

func TestMemory_ZeroTTLIgnored(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "evt_789", "processed", 0)
	_, ok := c.Get(ctx, "evt_789")
	assert.False(t, ok)
}
