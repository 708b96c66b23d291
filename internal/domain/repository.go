package domain

import (
	"context"
	"time"
)

// Page size bounds for message pagination.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 50
)

// PageQuery is a validated message page request handed to the store. At most
// one of Before and After is set; the service resolves precedence.
type PageQuery struct {
	Before *time.Time
	After  *time.Time
	Limit  int
}

// ConversationRepository defines persistence operations for conversations.
// Lookups return ErrNotFound when nothing matches.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*Conversation, error)
	FindByParticipants(ctx context.Context, userA, userB string) (*Conversation, error)
	// Create inserts c atomically and returns ErrConflict if a conversation
	// for the same unordered pair already exists.
	Create(ctx context.Context, c *Conversation) error
	ListCounterparts(ctx context.Context, userID string) ([]string, error)
	// ListWithMessages returns every conversation of userID (optionally only
	// those with last_message_date > after) joined with its messages in
	// ascending order. perConversation > 0 keeps only the most recent N.
	ListWithMessages(ctx context.Context, userID string, after *time.Time, perConversation int) ([]*ConversationWithMessages, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Append stores m, assigns m.Seq and advances the owning conversation's
	// last_message_date. The sender must be a participant (ErrForbidden).
	Append(ctx context.Context, m *Message) error
	// Page returns messages of a conversation relative to the query cursor,
	// ordered ascending by (sending_time, seq).
	Page(ctx context.Context, conversationID string, q PageQuery) ([]*Message, error)
}

// FriendshipRepository defines operations on the friendship relation.
type FriendshipRepository interface {
	Add(ctx context.Context, f *Friendship) error
	// Exists reports whether a friendship links the two users in either direction.
	Exists(ctx context.Context, userA, userB string) (bool, error)
}
