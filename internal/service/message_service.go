package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dmcore/internal/domain"
)

// PageRequest is an unvalidated page request. A nil Limit selects the
// default page size.
type PageRequest struct {
	Before *time.Time
	After  *time.Time
	Limit  *int
}

type MessageService struct {
	messages domain.MessageRepository
	logger   *slog.Logger
}

func NewMessageService(messages domain.MessageRepository, opts ...Option) *MessageService {
	o := applyOptions(opts)
	return &MessageService{messages: messages, logger: o.logger}
}

// Query validates req and turns it into a store query. After wins over
// Before when both are set.
func (s *MessageService) Query(req PageRequest) (domain.PageQuery, error) {
	q := domain.PageQuery{Limit: domain.DefaultPageLimit}
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > domain.MaxPageLimit {
			return q, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrBadRequest, domain.MaxPageLimit)
		}
		q.Limit = *req.Limit
	}
	switch {
	case req.After != nil:
		if req.Before != nil {
			s.logger.Debug("both before and after supplied, using after",
				slog.Time("before", *req.Before), slog.Time("after", *req.After))
		}
		q.After = req.After
	case req.Before != nil:
		q.Before = req.Before
	}
	return q, nil
}

// FetchPage returns one page of messages of a conversation in ascending
// sending order.
func (s *MessageService) FetchPage(ctx context.Context, conversationID string, req PageRequest) ([]*domain.Message, error) {
	q, err := s.Query(req)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.Page(ctx, conversationID, q)
	if err != nil {
		return nil, storeErr("fetch messages", err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}
