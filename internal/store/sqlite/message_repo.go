package sqlite

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

	var low, high string
	err = tx.QueryRowContext(ctx, `
		SELECT user_low, user_high FROM conversations WHERE id = ?
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

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, sending_time)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, toNanos(m.SendingTime))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.Seq = seq

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_date = MAX(COALESCE(last_message_date, 0), ?)
		WHERE id = ?
	`, toNanos(m.SendingTime), m.ConversationID); err != nil {
		return fmt.Errorf("update last_message_date: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) Page(ctx context.Context, conversationID string, q domain.PageQuery) ([]*domain.Message, error) {
	const cols = `seq, id, conversation_id, sender_id, content, sending_time`

	var (
		rows     *sql.Rows
		err      error
		reversed bool
	)
	switch {
	case q.After != nil:
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+cols+`
			FROM messages
			WHERE conversation_id = ? AND sending_time > ?
			ORDER BY sending_time ASC, seq ASC
			LIMIT ?
		`, conversationID, toNanos(*q.After), q.Limit)
	case q.Before != nil:
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+cols+`
			FROM messages
			WHERE conversation_id = ? AND sending_time < ?
			ORDER BY sending_time DESC, seq DESC
			LIMIT ?
		`, conversationID, toNanos(*q.Before), q.Limit)
		reversed = true
	default:
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+cols+`
			FROM messages
			WHERE conversation_id = ?
			ORDER BY sending_time DESC, seq DESC
			LIMIT ?
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
		// Reverse to chronological order (DB returns DESC)
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	res := []*domain.Message{}
	for rows.Next() {
		var (
			m           domain.Message
			sendingTime int64
		)
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Content, &sendingTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SendingTime = fromNanos(sendingTime)
		res = append(res, &m)
	}
	return res, rows.Err()
}
