package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"dmcore/internal/cache"
	"dmcore/internal/domain"
)

const pairCachePrefix = "dmcore:pair:"

type ConversationService struct {
	conversations domain.ConversationRepository
	friendships   domain.FriendshipRepository
	messages      *MessageService
	logger        *slog.Logger

	pairs         cache.Cache
	pairTTL       time.Duration
	embeddedLimit int

	group singleflight.Group
}

func NewConversationService(
	conversations domain.ConversationRepository,
	friendships domain.FriendshipRepository,
	messages *MessageService,
	opts ...Option,
) *ConversationService {
	o := applyOptions(opts)
	return &ConversationService{
		conversations: conversations,
		friendships:   friendships,
		messages:      messages,
		logger:        o.logger,
		pairs:         o.pairs,
		pairTTL:       o.pairTTL,
		embeddedLimit: o.embeddedLimit,
	}
}

// ConversationRef identifies a conversation either directly or through the
// other participant. Exactly one field must be set.
type ConversationRef struct {
	ConversationID string
	FriendID       string
}

// GetOrCreate returns the id of the conversation between userID and
// friendID, creating it when absent. Concurrent callers for the same pair
// always observe the same id.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID, friendID string) (string, error) {
	if userID == "" || friendID == "" {
		return "", fmt.Errorf("get or create conversation: %w: empty user id", domain.ErrInvalidCounterpart)
	}
	if userID == friendID {
		return "", fmt.Errorf("get or create conversation: %w: cannot converse with yourself", domain.ErrInvalidCounterpart)
	}

	ok, err := s.friendships.Exists(ctx, userID, friendID)
	if err != nil {
		return "", storeErr("check friendship", err)
	}
	if !ok {
		return "", fmt.Errorf("get or create conversation: %w: %s is not a friend", domain.ErrInvalidCounterpart, friendID)
	}

	key := domain.PairKey(userID, friendID)
	if id, ok := s.cachedPair(ctx, key); ok {
		return id, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.getOrCreate(ctx, userID, friendID, key)
	})
	if err != nil && ctx.Err() == nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// The shared call ran under another caller's context.
		v, err = s.getOrCreate(ctx, userID, friendID, key)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *ConversationService) getOrCreate(ctx context.Context, userID, friendID, key string) (string, error) {
	conv, err := s.conversations.FindByParticipants(ctx, userID, friendID)
	if err == nil {
		s.rememberPair(ctx, key, conv.ID)
		return conv.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", storeErr("find conversation", err)
	}

	conv = domain.NewConversation(uuid.NewString(), userID, friendID)
	err = s.conversations.Create(ctx, conv)
	if err == nil {
		s.logger.Info("conversation created",
			slog.String("conversation_id", conv.ID),
			slog.String("user_a", conv.Participants[0]),
			slog.String("user_b", conv.Participants[1]))
		s.rememberPair(ctx, key, conv.ID)
		return conv.ID, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return "", storeErr("create conversation", err)
	}

	// Lost the race to another writer; the winner's row is authoritative.
	winner, err := s.conversations.FindByParticipants(ctx, userID, friendID)
	if err != nil {
		return "", fmt.Errorf("re-resolve conversation after conflict: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.logger.Debug("conversation create conflict resolved",
		slog.String("conversation_id", winner.ID))
	s.rememberPair(ctx, key, winner.ID)
	return winner.ID, nil
}

func (s *ConversationService) cachedPair(ctx context.Context, key string) (string, bool) {
	if s.pairs == nil {
		return "", false
	}
	id, err := s.pairs.Get(ctx, pairCachePrefix+key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("pair cache get failed", slog.Any("error", err))
		}
		return "", false
	}
	return id, id != ""
}

func (s *ConversationService) rememberPair(ctx context.Context, key, id string) {
	if s.pairs == nil {
		return
	}
	if err := s.pairs.Set(ctx, pairCachePrefix+key, id, s.pairTTL); err != nil {
		s.logger.Warn("pair cache set failed", slog.Any("error", err))
	}
}

// Resolve looks up the conversation named by ref on behalf of caller. When
// addressed by id the caller must be a participant.
func (s *ConversationService) Resolve(ctx context.Context, caller string, ref ConversationRef) (*domain.Conversation, error) {
	switch {
	case ref.ConversationID != "" && ref.FriendID != "":
		return nil, fmt.Errorf("%w: supply either conversation_id or friend_id, not both", domain.ErrBadRequest)
	case ref.ConversationID == "" && ref.FriendID == "":
		return nil, fmt.Errorf("%w: conversation_id or friend_id is required", domain.ErrBadRequest)
	}

	if ref.ConversationID != "" {
		conv, err := s.conversations.GetByID(ctx, ref.ConversationID)
		if err != nil {
			return nil, storeErr("get conversation", err)
		}
		if !conv.HasParticipant(caller) {
			return nil, fmt.Errorf("get conversation: %w: not a participant", domain.ErrForbidden)
		}
		return conv, nil
	}

	conv, err := s.conversations.FindByParticipants(ctx, caller, ref.FriendID)
	if err != nil {
		return nil, storeErr("find conversation", err)
	}
	return conv, nil
}

// GetConversation resolves ref and attaches one page of its messages.
func (s *ConversationService) GetConversation(
	ctx context.Context,
	caller string,
	ref ConversationRef,
	page PageRequest,
) (*domain.ConversationWithMessages, error) {
	// Validate the page first so a bad limit is reported without a store hit.
	if _, err := s.messages.Query(page); err != nil {
		return nil, err
	}
	conv, err := s.Resolve(ctx, caller, ref)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.FetchPage(ctx, conv.ID, page)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationWithMessages{Conversation: conv, Messages: msgs}, nil
}

// ListForUser returns every conversation of userID with its messages. When
// after is set only conversations active since then are included. Any store
// failure fails the whole call.
func (s *ConversationService) ListForUser(ctx context.Context, userID string, after *time.Time) ([]*domain.ConversationWithMessages, error) {
	res, err := s.conversations.ListWithMessages(ctx, userID, after, s.embeddedLimit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w: %w", domain.ErrAggregationFailed, err)
	}
	if res == nil {
		res = []*domain.ConversationWithMessages{}
	}
	return res, nil
}

// Counterpart returns the other participant of a conversation.
func (s *ConversationService) Counterpart(ctx context.Context, conversationID, caller string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("%w: conversation_id is required", domain.ErrBadRequest)
	}
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return "", storeErr("get conversation", err)
	}
	other, ok := conv.Counterpart(caller)
	if !ok {
		return "", fmt.Errorf("counterpart: %w: not a participant", domain.ErrForbidden)
	}
	return other, nil
}
