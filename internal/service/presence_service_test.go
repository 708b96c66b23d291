package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dmcore/internal/domain"
	"dmcore/internal/presence"
	"dmcore/internal/service"
)

func TestOnlineFriends(t *testing.T) {
	ctx := context.Background()

	t.Run("IntersectsCounterpartsWithPresence", func(t *testing.T) {
		convs := new(MockConversationRepo)
		convs.On("ListCounterparts", mock.Anything, "alice").Return([]string{"bob", "carol", "dave"}, nil)

		reg := presence.NewRegistry(4)
		reg.Connect("bob", "h1")
		reg.Connect("dave", "h2")
		reg.Connect("erin", "h3")

		svc := service.NewPresenceService(convs, reg)
		got, err := svc.OnlineFriends(ctx, "alice")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"bob", "dave"}, got)
	})

	t.Run("StoreError", func(t *testing.T) {
		convs := new(MockConversationRepo)
		convs.On("ListCounterparts", mock.Anything, "alice").Return(nil, errors.New("timeout"))

		svc := service.NewPresenceService(convs, presence.NewRegistry(1))
		_, err := svc.OnlineFriends(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}
