package store_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/config"
	"dmcore/internal/domain"
	"dmcore/internal/store"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		StoreDriver: config.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "dm.db"),
	}

	repos, err := store.Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer repos.Close(ctx)

	require.NoError(t, repos.Friendships.Add(ctx, &domain.Friendship{UserID: "a", FriendID: "b"}))
	ok, err := repos.Friendships.Exists(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), &config.Config{StoreDriver: "cassandra"}, slog.Default())
	assert.Error(t, err)
}
