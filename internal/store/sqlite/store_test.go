package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/store/sqlite"
	"dmcore/internal/store/storetest"
)

func openMigrated(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	// Migrations are idempotent.
	require.NoError(t, sqlite.Migrate(db))
	return db
}

func repos(db *sql.DB) storetest.Repos {
	return storetest.Repos{
		Conversations: sqlite.NewConversationRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		Friendships:   sqlite.NewFriendshipRepo(db),
	}
}

func TestSQLiteRepositories(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		storetest.Run(t, repos(openMigrated(t, ":memory:")))
	})
	t.Run("File", func(t *testing.T) {
		storetest.Run(t, repos(openMigrated(t, filepath.Join(t.TempDir(), "dm.db"))))
	})
}

func TestOpenAppliesPragmasToEveryConnection(t *testing.T) {
	ctx := context.Background()
	db := openMigrated(t, filepath.Join(t.TempDir(), "dm.db"))

	// Hold several connections at once so the pool has to open new ones.
	conns := make([]*sql.Conn, 4)
	for i := range conns {
		c, err := db.Conn(ctx)
		require.NoError(t, err)
		conns[i] = c
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for i, c := range conns {
		var timeout, fk int
		var journal string
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&journal))
		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, 1, fk, "conn %d", i)
		assert.Equal(t, "wal", journal, "conn %d", i)
	}
}
