package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the conversation schema on PostgreSQL.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		// Friendships (written by the friend-request path)
		`CREATE TABLE IF NOT EXISTS friendships (
			user_id    TEXT        NOT NULL,
			friend_id  TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, friend_id)
		)`,

		// Conversations; (user_low, user_high) is the canonical unordered pair
		`CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT        PRIMARY KEY,
			user_low          TEXT        NOT NULL,
			user_high         TEXT        NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_message_date TIMESTAMPTZ,
			CONSTRAINT conversations_pair_key UNIQUE (user_low, user_high),
			CONSTRAINT conversations_pair_order CHECK (user_low < user_high)
		)`,

		// Messages; seq is the insertion order tie-break for equal sending_time
		`CREATE TABLE IF NOT EXISTS messages (
			seq             BIGSERIAL   UNIQUE,
			id              TEXT        PRIMARY KEY,
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			sender_id       TEXT        NOT NULL,
			content         TEXT        NOT NULL,
			sending_time    TIMESTAMPTZ NOT NULL
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships(friend_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_high ON conversations(user_high)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_time ON messages(conversation_id, sending_time, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
