package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/barbershop/internal/app/domain/master"
)

func TestNoopNeverHits(t *testing.T) {
	var c Noop
	c.Set(context.Background(), []master.Master{{ID: 1}})
	_, ok := c.Get(context.Background())
	assert.False(t, ok)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}
	ctx := context.Background()
	c, err := NewRedis(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close()

	c.Invalidate(ctx)
	_, ok := c.Get(ctx)
	assert.False(t, ok)

	c.Set(ctx, []master.Master{{ID: 1, Name: "Ivan", IsActive: true}})
	got, ok := c.Get(ctx)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Ivan", got[0].Name)

	c.Invalidate(ctx)
	_, ok = c.Get(ctx)
	assert.False(t, ok)
}
