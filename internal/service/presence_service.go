package service

import (
	"context"
	"log/slog"

	"dmcore/internal/domain"
)

// OnlineSet answers membership queries against live sessions.
type OnlineSet interface {
	OnlineSubset(candidates []string) []string
}

type PresenceService struct {
	conversations domain.ConversationRepository
	online        OnlineSet
	logger        *slog.Logger
}

func NewPresenceService(conversations domain.ConversationRepository, online OnlineSet, opts ...Option) *PresenceService {
	o := applyOptions(opts)
	return &PresenceService{conversations: conversations, online: online, logger: o.logger}
}

// OnlineFriends returns the users userID has a conversation with that are
// currently online.
func (s *PresenceService) OnlineFriends(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.conversations.ListCounterparts(ctx, userID)
	if err != nil {
		return nil, storeErr("list counterparts", err)
	}
	online := s.online.OnlineSubset(ids)
	s.logger.Debug("online friends resolved",
		slog.String("user_id", userID),
		slog.Int("candidates", len(ids)),
		slog.Int("online", len(online)))
	return online, nil
}
