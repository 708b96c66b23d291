// Package storetest holds a behavioural suite every repository backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/domain"
)

type Repos struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Friendships   domain.FriendshipRepository
}

// Run exercises repos. User ids are randomised so the suite can run against
// a database that outlives the test.
func Run(t *testing.T, repos Repos) {
	s := &suite{Repos: repos}
	t.Run("Friendship", s.testFriendship)
	t.Run("CreateAndResolve", s.testCreateAndResolve)
	t.Run("CreateConflict", s.testCreateConflict)
	t.Run("ConcurrentCreate", s.testConcurrentCreate)
	t.Run("ConcurrentMixed", s.testConcurrentMixed)
	t.Run("AppendAndPage", s.testAppendAndPage)
	t.Run("AppendRejects", s.testAppendRejects)
	t.Run("ListCounterparts", s.testListCounterparts)
	t.Run("ListWithMessages", s.testListWithMessages)
}

type suite struct {
	Repos
}

func user(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func (s *suite) conversation(t *testing.T, a, b string) *domain.Conversation {
	t.Helper()
	c := domain.NewConversation(uuid.NewString(), a, b)
	require.NoError(t, s.Conversations.Create(context.Background(), c))
	return c
}

func (s *suite) appendAt(t *testing.T, convID, sender string, at time.Time, content string) *domain.Message {
	t.Helper()
	m := &domain.Message{ConversationID: convID, SenderID: sender, Content: content, SendingTime: at}
	require.NoError(t, s.Messages.Append(context.Background(), m))
	return m
}

func contents(msgs []*domain.Message) []string {
	res := make([]string, len(msgs))
	for i, m := range msgs {
		res[i] = m.Content
	}
	return res
}

func (s *suite) testFriendship(t *testing.T) {
	ctx := context.Background()
	a, b, c := user("a"), user("b"), user("c")
	require.NoError(t, s.Friendships.Add(ctx, &domain.Friendship{UserID: a, FriendID: b}))
	require.NoError(t, s.Friendships.Add(ctx, &domain.Friendship{UserID: a, FriendID: b}))

	ok, err := s.Friendships.Exists(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Friendships.Exists(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok, "either direction counts")

	ok, err = s.Friendships.Exists(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (s *suite) testCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	a, b := user("a"), user("b")
	c := s.conversation(t, b, a)

	got, err := s.Conversations.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.True(t, got.HasParticipant(a))
	assert.True(t, got.HasParticipant(b))
	assert.Nil(t, got.LastMessageDate)

	for _, pair := range [][2]string{{a, b}, {b, a}} {
		got, err := s.Conversations.FindByParticipants(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	}

	_, err = s.Conversations.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Conversations.FindByParticipants(ctx, a, user("z"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func (s *suite) testCreateConflict(t *testing.T) {
	ctx := context.Background()
	a, b := user("a"), user("b")
	s.conversation(t, a, b)

	dup := domain.NewConversation(uuid.NewString(), b, a)
	assert.ErrorIs(t, s.Conversations.Create(ctx, dup), domain.ErrConflict)
}

func (s *suite) testConcurrentCreate(t *testing.T) {
	a, b := user("a"), user("b")
	const n = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 0 {
				x, y = y, x
			}
			err := s.Conversations.Create(context.Background(), domain.NewConversation(uuid.NewString(), x, y))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
}

// testConcurrentMixed interleaves reads and writes on many pairs at once.
// Every call must either succeed or report a domain outcome.
func (s *suite) testConcurrentMixed(t *testing.T) {
	const pairs = 20

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	fail := func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}

	for p := 0; p < pairs; p++ {
		a, b := user("a"), user("b")
		for _, order := range [][2]string{{a, b}, {b, a}} {
			wg.Add(1)
			go func(x, y string) {
				defer wg.Done()
				ctx := context.Background()

				if err := s.Friendships.Add(ctx, &domain.Friendship{UserID: x, FriendID: y}); err != nil {
					fail(err)
					return
				}
				if _, err := s.Friendships.Exists(ctx, x, y); err != nil {
					fail(err)
					return
				}
				c, err := s.Conversations.FindByParticipants(ctx, x, y)
				if errors.Is(err, domain.ErrNotFound) {
					c = domain.NewConversation(uuid.NewString(), x, y)
					err = s.Conversations.Create(ctx, c)
					if errors.Is(err, domain.ErrConflict) {
						c, err = s.Conversations.FindByParticipants(ctx, x, y)
					}
				}
				if err != nil {
					fail(err)
					return
				}
				m := &domain.Message{ConversationID: c.ID, SenderID: x, Content: "hi", SendingTime: base}
				if err := s.Messages.Append(ctx, m); err != nil {
					fail(err)
				}
			}(order[0], order[1])
		}
	}
	wg.Wait()

	require.Empty(t, failures)
}

func (s *suite) testAppendAndPage(t *testing.T) {
	ctx := context.Background()
	a, b := user("a"), user("b")
	c := s.conversation(t, a, b)

	// Appended out of order; m3 and m3b share a timestamp.
	s.appendAt(t, c.ID, a, base.Add(3*time.Minute), "m3")
	s.appendAt(t, c.ID, b, base.Add(1*time.Minute), "m1")
	s.appendAt(t, c.ID, a, base.Add(3*time.Minute), "m3b")
	s.appendAt(t, c.ID, b, base.Add(2*time.Minute), "m2")
	s.appendAt(t, c.ID, a, base.Add(4*time.Minute), "m4")

	got, err := s.Conversations.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageDate)
	assert.True(t, base.Add(4*time.Minute).Equal(*got.LastMessageDate))

	page := func(q domain.PageQuery) []string {
		t.Helper()
		msgs, err := s.Messages.Page(ctx, c.ID, q)
		require.NoError(t, err)
		for _, m := range msgs {
			assert.True(t, got.HasParticipant(m.SenderID))
		}
		return contents(msgs)
	}

	assert.Equal(t, []string{"m1", "m2", "m3", "m3b", "m4"}, page(domain.PageQuery{Limit: 20}))
	assert.Equal(t, []string{"m3b", "m4"}, page(domain.PageQuery{Limit: 2}))

	before := base.Add(3 * time.Minute)
	assert.Equal(t, []string{"m1", "m2"}, page(domain.PageQuery{Before: &before, Limit: 20}))
	assert.Equal(t, []string{"m2"}, page(domain.PageQuery{Before: &before, Limit: 1}))

	after := base.Add(1 * time.Minute)
	assert.Equal(t, []string{"m2", "m3", "m3b"}, page(domain.PageQuery{After: &after, Limit: 3}))

	last := base.Add(4 * time.Minute)
	assert.Empty(t, page(domain.PageQuery{After: &last, Limit: 20}))

	// A late message with an older timestamp must not move last_message_date back.
	s.appendAt(t, c.ID, b, base, "m0")
	got, err = s.Conversations.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, base.Add(4*time.Minute).Equal(*got.LastMessageDate))
}

func (s *suite) testAppendRejects(t *testing.T) {
	ctx := context.Background()
	a, b := user("a"), user("b")
	c := s.conversation(t, a, b)

	err := s.Messages.Append(ctx, &domain.Message{ConversationID: c.ID, SenderID: user("x"), Content: "hi", SendingTime: base})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = s.Messages.Append(ctx, &domain.Message{ConversationID: uuid.NewString(), SenderID: a, Content: "hi", SendingTime: base})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msgs, err := s.Messages.Page(ctx, c.ID, domain.PageQuery{Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func (s *suite) testListCounterparts(t *testing.T) {
	ctx := context.Background()
	me, x, y := user("me"), user("x"), user("y")
	s.conversation(t, me, x)
	s.conversation(t, y, me)
	s.conversation(t, x, y)

	ids, err := s.Conversations.ListCounterparts(ctx, me)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{x, y}, ids)

	ids, err = s.Conversations.ListCounterparts(ctx, user("nobody"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func (s *suite) testListWithMessages(t *testing.T) {
	ctx := context.Background()
	me, x, y, z := user("me"), user("x"), user("y"), user("z")
	old := s.conversation(t, me, x)
	recent := s.conversation(t, y, me)
	silent := s.conversation(t, me, z)
	s.conversation(t, x, y)

	s.appendAt(t, old.ID, x, base, "o1")
	s.appendAt(t, old.ID, me, base.Add(time.Minute), "o2")
	s.appendAt(t, recent.ID, y, base.Add(10*time.Minute), "r1")
	s.appendAt(t, recent.ID, me, base.Add(11*time.Minute), "r2")
	s.appendAt(t, recent.ID, y, base.Add(12*time.Minute), "r3")

	byID := func(items []*domain.ConversationWithMessages) map[string][]string {
		res := make(map[string][]string, len(items))
		for _, it := range items {
			res[it.ID] = contents(it.Messages)
		}
		return res
	}

	t.Run("All", func(t *testing.T) {
		items, err := s.Conversations.ListWithMessages(ctx, me, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			old.ID:    {"o1", "o2"},
			recent.ID: {"r1", "r2", "r3"},
			silent.ID: {},
		}, byID(items))
		for _, it := range items {
			assert.NotNil(t, it.Messages)
		}
	})

	t.Run("AfterFilter", func(t *testing.T) {
		after := base.Add(5 * time.Minute)
		items, err := s.Conversations.ListWithMessages(ctx, me, &after, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{recent.ID: {"r1", "r2", "r3"}}, byID(items))
	})

	t.Run("PerConversationCap", func(t *testing.T) {
		items, err := s.Conversations.ListWithMessages(ctx, me, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			old.ID:    {"o1", "o2"},
			recent.ID: {"r2", "r3"},
			silent.ID: {},
		}, byID(items))
	})
}
