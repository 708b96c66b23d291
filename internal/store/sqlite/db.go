package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN. Connection pragmas are
// passed through the DSN so the driver applies them to every pooled
// connection, not just the first one.
func Open(dsn string) (*sql.DB, error) {
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")

	db, err := sql.Open("sqlite", withPragmas(dsn, memory))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to an in-memory database gets its own empty database.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// withPragmas appends busy_timeout, foreign_keys and, for file databases,
// WAL journaling to dsn. Transactions begin IMMEDIATE so a writer waits on
// busy_timeout instead of failing when it upgrades a read lock.
func withPragmas(dsn string, memory bool) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	if !memory {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	params.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// Migrate runs idempotent DDL for the conversation schema.
// Timestamps are stored as INTEGER unix nanoseconds (UTC) so range scans and
// ordering compare numbers rather than driver-formatted strings.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS friendships (
			user_id    TEXT    NOT NULL,
			friend_id  TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, friend_id)
		);`,
		// user_low < user_high is the canonical form of the unordered pair.
		`CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT    PRIMARY KEY,
			user_low          TEXT    NOT NULL,
			user_high         TEXT    NOT NULL,
			created_at        INTEGER NOT NULL,
			last_message_date INTEGER DEFAULT NULL,
			UNIQUE (user_low, user_high),
			CHECK (user_low < user_high)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT    NOT NULL UNIQUE,
			conversation_id TEXT    NOT NULL,
			sender_id       TEXT    NOT NULL,
			content         TEXT    NOT NULL,
			sending_time    INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships(friend_id, user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_high ON conversations(user_high);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_date);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_time ON messages(conversation_id, sending_time, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
