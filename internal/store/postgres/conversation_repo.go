package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dmcore/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var lastMsg sql.NullTime
	if err := row.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &c.CreatedAt, &lastMsg); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if lastMsg.Valid {
		t := lastMsg.Time.UTC()
		c.LastMessageDate = &t
	}
	return c, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT id, user_low, user_high, created_at, last_message_date
		FROM conversations WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	low, high := domain.CanonicalPair(userA, userB)
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT id, user_low, user_high, created_at, last_message_date
		FROM conversations
		WHERE user_low = $1 AND user_high = $2
	`, low, high))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation by participants: %w", err)
	}
	return c, nil
}

// Create inserts the conversation unless the canonical pair already exists,
// in which case it returns ErrConflict and the caller re-resolves.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	low, high := domain.CanonicalPair(c.Participants[0], c.Participants[1])
	if low == high {
		return fmt.Errorf("create conversation: %w: participants must be distinct", domain.ErrBadRequest)
	}
	c.Participants = [2]string{low, high}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_low, user_high, created_at, last_message_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT conversations_pair_key DO NOTHING
	`, c.ID, low, high, c.CreatedAt, c.LastMessageDate)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *ConversationRepo) ListCounterparts(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN user_low = $1 THEN user_high ELSE user_low END
		FROM conversations
		WHERE user_low = $1 OR user_high = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list counterparts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan counterpart: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListWithMessages reads conversations and messages under one REPEATABLE READ
// transaction so both queries observe the same snapshot.
func (r *ConversationRepo) ListWithMessages(
	ctx context.Context,
	userID string,
	after *time.Time,
	perConversation int,
) ([]*domain.ConversationWithMessages, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	filter := `(c.user_low = $1 OR c.user_high = $1)`
	args := []any{userID}
	if after != nil {
		filter += ` AND c.last_message_date > $2`
		args = append(args, *after)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT c.id, c.user_low, c.user_high, c.created_at, c.last_message_date
		FROM conversations c
		WHERE `+filter+`
		ORDER BY c.last_message_date DESC NULLS LAST, c.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var (
		res   []*domain.ConversationWithMessages
		index = make(map[string]*domain.ConversationWithMessages)
	)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		item := &domain.ConversationWithMessages{Conversation: c, Messages: []*domain.Message{}}
		res = append(res, item)
		index[c.ID] = item
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	rows.Close()
	if len(res) == 0 {
		return res, tx.Commit()
	}

	query := `
		SELECT m.seq, m.id, m.conversation_id, m.sender_id, m.content, m.sending_time
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE ` + filter + `
		ORDER BY m.conversation_id, m.sending_time, m.seq`
	if perConversation > 0 {
		query = fmt.Sprintf(`
			SELECT seq, id, conversation_id, sender_id, content, sending_time FROM (
				SELECT m.seq, m.id, m.conversation_id, m.sender_id, m.content, m.sending_time,
				       ROW_NUMBER() OVER (
				           PARTITION BY m.conversation_id
				           ORDER BY m.sending_time DESC, m.seq DESC
				       ) AS rn
				FROM messages m
				JOIN conversations c ON c.id = m.conversation_id
				WHERE %s
			) ranked
			WHERE rn <= $%d
			ORDER BY conversation_id, sending_time, seq`, filter, len(args)+1)
		args = append(args, perConversation)
	}

	msgRows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	msgs, err := scanMessages(msgRows)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if item, ok := index[m.ConversationID]; ok {
			item.Messages = append(item.Messages, m)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}
