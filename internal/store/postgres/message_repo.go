package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dmcore/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Append(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock the conversation row so last_message_date updates serialise.
	var low, high string
	err = tx.QueryRowContext(ctx, `
		SELECT user_low, user_high FROM conversations WHERE id = $1 FOR UPDATE
	`, m.ConversationID).Scan(&low, &high)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if m.SenderID != low && m.SenderID != high {
		return fmt.Errorf("append message: %w: sender is not a participant", domain.ErrForbidden)
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SendingTime.IsZero() {
		m.SendingTime = time.Now()
	}
	m.SendingTime = m.SendingTime.UTC()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, sending_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.SendingTime).Scan(&m.Seq); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_date = GREATEST(last_message_date, $1)
		WHERE id = $2
	`, m.SendingTime, m.ConversationID); err != nil {
		return fmt.Errorf("update last_message_date: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) Page(ctx context.Context, conversationID string, q domain.PageQuery) ([]*domain.Message, error) {
	var (
		rows     *sql.Rows
		err      error
		reversed bool
	)
	switch {
	case q.After != nil:
		rows, err = r.db.QueryContext(ctx, `
			SELECT seq, id, conversation_id, sender_id, content, sending_time
			FROM messages
			WHERE conversation_id = $1 AND sending_time > $2
			ORDER BY sending_time ASC, seq ASC
			LIMIT $3
		`, conversationID, *q.After, q.Limit)
	case q.Before != nil:
		rows, err = r.db.QueryContext(ctx, `
			SELECT seq, id, conversation_id, sender_id, content, sending_time
			FROM messages
			WHERE conversation_id = $1 AND sending_time < $2
			ORDER BY sending_time DESC, seq DESC
			LIMIT $3
		`, conversationID, *q.Before, q.Limit)
		reversed = true
	default:
		rows, err = r.db.QueryContext(ctx, `
			SELECT seq, id, conversation_id, sender_id, content, sending_time
			FROM messages
			WHERE conversation_id = $1
			ORDER BY sending_time DESC, seq DESC
			LIMIT $2
		`, conversationID, q.Limit)
		reversed = true
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if reversed {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	res := []*domain.Message{}
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.SendingTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SendingTime = m.SendingTime.UTC()
		res = append(res, m)
	}
	return res, rows.Err()
}
