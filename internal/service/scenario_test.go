package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/domain"
	"dmcore/internal/service"
	"dmcore/internal/store/sqlite"
)

type sqliteFixture struct {
	db      *sql.DB
	convs   *sqlite.ConversationRepo
	msgs    *sqlite.MessageRepo
	friends *sqlite.FriendshipRepo
	svc     *service.ConversationService
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()
	return newSQLiteFixtureAt(t, ":memory:")
}

func newSQLiteFixtureAt(t *testing.T, dsn string) *sqliteFixture {
	t.Helper()
	db, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	f := &sqliteFixture{
		db:      db,
		convs:   sqlite.NewConversationRepo(db),
		msgs:    sqlite.NewMessageRepo(db),
		friends: sqlite.NewFriendshipRepo(db),
	}
	f.svc = service.NewConversationService(f.convs, f.friends, service.NewMessageService(f.msgs))
	return f
}

func (f *sqliteFixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	require.NoError(t, f.friends.Add(context.Background(), &domain.Friendship{UserID: a, FriendID: b}))
}

func sendingTimes(msgs []*domain.Message) []time.Time {
	res := make([]time.Time, len(msgs))
	for i, m := range msgs {
		res[i] = m.SendingTime
	}
	return res
}

func TestScenarioResolveOrCreateThenList(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	f.befriend(t, "alice", "bob")

	id, err := f.svc.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := f.svc.GetOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	list, err := f.svc.ListForUser(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Empty(t, list[0].Messages)
}

func TestScenarioConcurrentGetOrCreate(t *testing.T) {
	f := newSQLiteFixture(t)
	f.befriend(t, "bob", "alice")

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			ids[i], errs[i] = f.svc.GetOrCreate(context.Background(), a, b)
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestScenarioConcurrentGetOrCreateOnFile(t *testing.T) {
	f := newSQLiteFixtureAt(t, filepath.Join(t.TempDir(), "dm.db"))
	// A second service has its own call coalescing, so its callers race
	// the first service's callers in the store.
	other := service.NewConversationService(f.convs, f.friends, service.NewMessageService(f.msgs))

	const pairs = 50
	for p := 0; p < pairs; p++ {
		f.befriend(t, fmt.Sprintf("u%d", p), fmt.Sprintf("v%d", p))
	}

	ids := make([][2]string, pairs)
	errs := make([][2]error, pairs)
	var wg sync.WaitGroup
	for p := 0; p < pairs; p++ {
		u, v := fmt.Sprintf("u%d", p), fmt.Sprintf("v%d", p)
		wg.Add(2)
		go func(p int) {
			defer wg.Done()
			ids[p][0], errs[p][0] = f.svc.GetOrCreate(context.Background(), u, v)
		}(p)
		go func(p int) {
			defer wg.Done()
			ids[p][1], errs[p][1] = other.GetOrCreate(context.Background(), v, u)
		}(p)
	}
	wg.Wait()

	for p := 0; p < pairs; p++ {
		require.NoError(t, errs[p][0], "pair %d", p)
		require.NoError(t, errs[p][1], "pair %d", p)
		assert.Equal(t, ids[p][0], ids[p][1], "pair %d", p)
	}

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count))
	assert.Equal(t, pairs, count)
}

func TestScenarioPagination(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	f.befriend(t, "alice", "bob")

	id, err := f.svc.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	t1000 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1005 := t1000.Add(5 * time.Minute)
	t1010 := t1000.Add(10 * time.Minute)
	for i, ts := range []time.Time{t1010, t1000, t1005} {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		require.NoError(t, f.msgs.Append(ctx, &domain.Message{
			ConversationID: id, SenderID: sender, Content: "hi", SendingTime: ts,
		}))
	}

	ref := service.ConversationRef{ConversationID: id}

	got, err := f.svc.GetConversation(ctx, "alice", ref, service.PageRequest{Limit: intPtr(2)})
	require.NoError(t, err)
	if diff := cmp.Diff([]time.Time{t1005, t1010}, sendingTimes(got.Messages)); diff != "" {
		t.Errorf("latest page mismatch (-want +got):\n%s", diff)
	}

	got, err = f.svc.GetConversation(ctx, "alice", ref, service.PageRequest{Before: &t1010, Limit: intPtr(2)})
	require.NoError(t, err)
	if diff := cmp.Diff([]time.Time{t1000, t1005}, sendingTimes(got.Messages)); diff != "" {
		t.Errorf("before page mismatch (-want +got):\n%s", diff)
	}

	got, err = f.svc.GetConversation(ctx, "bob", ref, service.PageRequest{After: &t1000})
	require.NoError(t, err)
	if diff := cmp.Diff([]time.Time{t1005, t1010}, sendingTimes(got.Messages)); diff != "" {
		t.Errorf("after page mismatch (-want +got):\n%s", diff)
	}

	for _, m := range got.Messages {
		assert.True(t, got.HasParticipant(m.SenderID), "sender %s", m.SenderID)
	}
}

func TestScenarioBadRequestAndNotFound(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetConversation(ctx, "alice", service.ConversationRef{}, service.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = f.svc.GetConversation(ctx, "alice", service.ConversationRef{ConversationID: "does-not-exist"}, service.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
