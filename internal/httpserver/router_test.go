package httpserver_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/config"
	"dmcore/internal/domain"
	"dmcore/internal/httpserver"
	"dmcore/internal/presence"
	"dmcore/internal/security"
	"dmcore/internal/service"
	"dmcore/internal/store/sqlite"
)

type apiFixture struct {
	handler  http.Handler
	db       *sql.DB
	tokens   *security.TokenService
	svc      *service.ConversationService
	msgs     *sqlite.MessageRepo
	friends  *sqlite.FriendshipRepo
	registry *presence.Registry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	convs := sqlite.NewConversationRepo(db)
	f := &apiFixture{
		db:       db,
		tokens:   security.NewTokenService("test-secret", time.Hour),
		msgs:     sqlite.NewMessageRepo(db),
		friends:  sqlite.NewFriendshipRepo(db),
		registry: presence.NewRegistry(4),
	}
	f.svc = service.NewConversationService(convs, f.friends, service.NewMessageService(f.msgs))
	presenceSvc := service.NewPresenceService(convs, f.registry)

	cfg := &config.Config{
		AppName:        "dmcore test",
		CORSOrigins:    []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
	}
	f.handler = httpserver.NewRouter(cfg, f.tokens, f.svc, presenceSvc, nil, nil)
	return f
}

func (f *apiFixture) get(t *testing.T, userID, path string, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return f.getRaw(t, userID, target)
}

// getRaw sends target as written, without re-encoding its query.
func (f *apiFixture) getRaw(t *testing.T, userID, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userID != "" {
		tok, err := f.tokens.CreateForUser(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// conversationWithMessages seeds a conversation between alice and bob with
// three messages five minutes apart.
func (f *apiFixture) conversationWithMessages(t *testing.T) (string, []time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.friends.Add(ctx, &domain.Friendship{UserID: "alice", FriendID: "bob"}))
	id, err := f.svc.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(5 * time.Minute), base.Add(10 * time.Minute)}
	for _, ts := range times {
		require.NoError(t, f.msgs.Append(ctx, &domain.Message{
			ConversationID: id, SenderID: "bob", Content: "hello", SendingTime: ts,
		}))
	}
	return id, times
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type conversationBody struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []message `json:"messages"`
}

type message struct {
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"message"`
	SendingTime time.Time `json:"sending_time"`
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.get(t, "", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPIFixture(t)
	const path = "/api/conversation/online-users"

	t.Run("MissingHeader", func(t *testing.T) {
		rec := f.get(t, "", path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[map[string]string](t, rec)
		assert.Contains(t, body["error"], domain.ErrUnauthorized.Error())
	})

	t.Run("BadToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[map[string]string](t, rec)
		assert.Equal(t, domain.ErrUnauthorized.Error()+": invalid token", body["error"])
	})
}

func TestGetConversationEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id, times := f.conversationWithMessages(t)
	const path = "/api/conversation/get-conversation"

	t.Run("Unauthenticated", func(t *testing.T) {
		rec := f.get(t, "", path, url.Values{"conversation_id": {id}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("NeitherIdentifier", func(t *testing.T) {
		rec := f.get(t, "alice", path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BothIdentifiers", func(t *testing.T) {
		rec := f.get(t, "alice", path, url.Values{"conversation_id": {id}, "friend_id": {"bob"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		rec := f.get(t, "alice", path, url.Values{"conversation_id": {"missing"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("NotParticipant", func(t *testing.T) {
		rec := f.get(t, "mallory", path, url.Values{"conversation_id": {id}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		for _, l := range []string{"0", "51", "ten"} {
			rec := f.get(t, "alice", path, url.Values{"conversation_id": {id}, "limit": {l}})
			assert.Equal(t, http.StatusBadRequest, rec.Code, "limit %s", l)
		}
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		rec := f.get(t, "alice", path, url.Values{"conversation_id": {id}, "before": {"yesterday"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("OffsetCursor", func(t *testing.T) {
		// 12:02+02:00 is 10:02 UTC, between the first and second message.
		for _, after := range []string{"2024-05-01T12:02:00+02:00", "2024-05-01T12:02:00%2B02:00"} {
			rec := f.getRaw(t, "alice", path+"?conversation_id="+id+"&after="+after)
			require.Equal(t, http.StatusOK, rec.Code, "after %s: %s", after, rec.Body.String())
			body := decode[conversationBody](t, rec)
			require.Len(t, body.Messages, 2, "after %s", after)
			assert.True(t, times[1].Equal(body.Messages[0].SendingTime))
		}
	})

	t.Run("LatestPage", func(t *testing.T) {
		rec := f.get(t, "alice", path, url.Values{"conversation_id": {id}, "limit": {"2"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[conversationBody](t, rec)
		assert.Equal(t, id, body.ID)
		assert.ElementsMatch(t, []string{"alice", "bob"}, body.Participants)
		require.Len(t, body.Messages, 2)
		assert.True(t, times[1].Equal(body.Messages[0].SendingTime))
		assert.True(t, times[2].Equal(body.Messages[1].SendingTime))
	})

	t.Run("BeforeCursorByFriend", func(t *testing.T) {
		rec := f.get(t, "bob", path, url.Values{
			"friend_id": {"alice"},
			"before":    {times[2].Format(time.RFC3339)},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[conversationBody](t, rec)
		require.Len(t, body.Messages, 2)
		assert.True(t, times[0].Equal(body.Messages[0].SendingTime))
		assert.True(t, times[1].Equal(body.Messages[1].SendingTime))
	})
}

func TestListConversationsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id, times := f.conversationWithMessages(t)
	const path = "/api/conversation/list-conversations"

	rec := f.get(t, "alice", path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]conversationBody](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Len(t, list[0].Messages, 3)

	rec = f.get(t, "alice", path, url.Values{"after": {times[2].Format(time.RFC3339)}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.get(t, "alice", path, url.Values{"after": {"not-a-time"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnlineUsersEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.conversationWithMessages(t)
	const path = "/api/conversation/online-users"

	rec := f.get(t, "alice", path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online_friends":[]}`, rec.Body.String())

	f.registry.Connect("bob", "session-1")
	rec = f.get(t, "alice", path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online_friends":["bob"]}`, rec.Body.String())
}

func TestInternalErrorIsGeneric(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.db.Close())

	rec := f.get(t, "alice", "/api/conversation/list-conversations", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
