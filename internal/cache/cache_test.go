package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("MissThenHit", func(t *testing.T) {
		m := NewMemory()
		_, err := m.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)

		require.NoError(t, m.Set(ctx, "k", "v", 0))
		v, err := m.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})

	t.Run("CloseDropsEntries", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(ctx, "k", "v", 0))
		require.NoError(t, m.Close())
		_, err := m.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("Expiry", func(t *testing.T) {
		m := NewMemory()
		now := time.Unix(1000, 0)
		m.now = func() time.Time { return now }

		require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
		now = now.Add(59 * time.Second)
		_, err := m.Get(ctx, "k")
		assert.NoError(t, err)

		now = now.Add(time.Second)
		_, err = m.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, url)
	require.NoError(t, err)
	defer r.Close()

	key := "dmcore:test:" + time.Now().Format(time.RFC3339Nano)
	_, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, r.Set(ctx, key, "v", time.Minute))
	v, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
