package domain

import (
	"strconv"
	"time"
)

// Conversation is a persistent two-party messaging channel. Participants are
// stored in canonical (sorted) order so the pair can back a uniqueness
// constraint.
type Conversation struct {
	ID              string     `json:"id"`
	Participants    [2]string  `json:"participants"`
	LastMessageDate *time.Time `json:"last_message_date"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewConversation builds an unsaved conversation between two users.
func NewConversation(id, userA, userB string) *Conversation {
	low, high := CanonicalPair(userA, userB)
	return &Conversation{
		ID:           id,
		Participants: [2]string{low, high},
		CreatedAt:    time.Now().UTC(),
	}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Counterpart returns the participant that is not userID. The second return
// value is false when userID does not participate.
func (c *Conversation) Counterpart(userID string) (string, bool) {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return "", false
}

// Message is a single immutable chat message. Seq is assigned by the store on
// insert and breaks ties between equal SendingTime values.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"message"`
	SendingTime    time.Time `json:"sending_time"`
	Seq            int64     `json:"-"`
}

// Friendship is a directed relation confirming userID may converse with friendID.
type Friendship struct {
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationWithMessages is one aggregated record of the conversation list
// and the response shape of a single conversation fetch.
type ConversationWithMessages struct {
	*Conversation
	Messages []*Message `json:"messages"`
}

// CanonicalPair orders two user ids so that an unordered pair has exactly one
// representation.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey is the single-string form of the canonical pair, used by caches and
// by stores that index a scalar field. The length prefix keeps ids that
// contain the separator from colliding.
func PairKey(a, b string) string {
	low, high := CanonicalPair(a, b)
	return strconv.Itoa(len(low)) + ":" + low + ":" + high
}
