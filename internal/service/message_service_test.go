package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dmcore/internal/domain"
	"dmcore/internal/service"
)

func intPtr(v int) *int { return &v }

func TestFetchPageLimit(t *testing.T) {
	repo := new(MockMessageRepo)
	svc := service.NewMessageService(repo)
	ctx := context.Background()

	t.Run("DefaultIs20", func(t *testing.T) {
		repo.On("Page", mock.Anything, "c1", domain.PageQuery{Limit: 20}).Return([]*domain.Message{}, nil).Once()
		_, err := svc.FetchPage(ctx, "c1", service.PageRequest{})
		require.NoError(t, err)
	})

	t.Run("BoundsAccepted", func(t *testing.T) {
		for _, l := range []int{1, 50} {
			repo.On("Page", mock.Anything, "c1", domain.PageQuery{Limit: l}).Return([]*domain.Message{}, nil).Once()
			_, err := svc.FetchPage(ctx, "c1", service.PageRequest{Limit: intPtr(l)})
			assert.NoError(t, err, "limit %d", l)
		}
	})

	t.Run("OutOfRangeRejected", func(t *testing.T) {
		for _, l := range []int{0, -1, 51, 1000} {
			_, err := svc.FetchPage(ctx, "c1", service.PageRequest{Limit: intPtr(l)})
			assert.ErrorIs(t, err, domain.ErrBadRequest, "limit %d", l)
		}
	})

	repo.AssertExpectations(t)
}

func TestFetchPageCursor(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)
	after := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("AfterWinsOverBefore", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := service.NewMessageService(repo)
		repo.On("Page", mock.Anything, "c1", domain.PageQuery{After: &after, Limit: 20}).Return([]*domain.Message{}, nil).Once()

		_, err := svc.FetchPage(ctx, "c1", service.PageRequest{Before: &before, After: &after})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("BeforeOnly", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := service.NewMessageService(repo)
		repo.On("Page", mock.Anything, "c1", domain.PageQuery{Before: &before, Limit: 5}).Return([]*domain.Message{}, nil).Once()

		_, err := svc.FetchPage(ctx, "c1", service.PageRequest{Before: &before, Limit: intPtr(5)})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("StoreErrorWrapped", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := service.NewMessageService(repo)
		cause := errors.New("connection reset")
		repo.On("Page", mock.Anything, "c1", mock.Anything).Return(nil, cause).Once()

		_, err := svc.FetchPage(ctx, "c1", service.PageRequest{})
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("NilResultBecomesEmpty", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := service.NewMessageService(repo)
		repo.On("Page", mock.Anything, "c1", mock.Anything).Return([]*domain.Message(nil), nil).Once()

		msgs, err := svc.FetchPage(ctx, "c1", service.PageRequest{})
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})
}
