package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dmcore/internal/domain"
)

type FriendshipRepo struct {
	db *sql.DB
}

func NewFriendshipRepo(db *sql.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

var _ domain.FriendshipRepository = (*FriendshipRepo)(nil)

func (r *FriendshipRepo) Add(ctx context.Context, f *domain.Friendship) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO friendships (user_id, friend_id, created_at)
		VALUES (?, ?, ?)
	`, f.UserID, f.FriendID, toNanos(f.CreatedAt)); err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func (r *FriendshipRepo) Exists(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE (user_id = ? AND friend_id = ?)
			   OR (user_id = ? AND friend_id = ?)
		)
	`, userA, userB, userB, userA).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}
