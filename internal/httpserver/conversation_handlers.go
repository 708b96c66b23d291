package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dmcore/internal/domain"
	"dmcore/internal/service"
)

type onlineFriendsResponse struct {
	OnlineFriends []string `json:"online_friends"`
}

// parseTimeParam reads an optional RFC 3339 timestamp query parameter. A
// "+hh:mm" offset sent unescaped arrives as a space and is restored.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil && strings.Contains(raw, " ") {
		t, err = time.Parse(time.RFC3339Nano, strings.ReplaceAll(raw, " ", "+"))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", domain.ErrBadRequest, name)
	}
	t = t.UTC()
	return &t, nil
}

func parseLimitParam(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: limit must be an integer", domain.ErrBadRequest)
	}
	return &n, nil
}

// handleGetConversation godoc
// @Summary      Get a conversation
// @Description  Returns one conversation, addressed by id or by the other participant, with a page of its messages in ascending order
// @Tags         conversation
// @Produce      json
// @Param        conversation_id  query  string  false  "Conversation id (exclusive with friend_id)"
// @Param        friend_id        query  string  false  "Other participant (exclusive with conversation_id)"
// @Param        before           query  string  false  "RFC 3339 cursor; messages strictly older"
// @Param        after            query  string  false  "RFC 3339 cursor; messages strictly newer, wins over before"
// @Param        limit            query  int     false  "Page size 1..50, default 20"
// @Success      200  {object}  domain.ConversationWithMessages
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /conversation/get-conversation [get]
func handleGetConversation(convSvc *service.ConversationService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := CurrentUserID(r)
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		q := r.URL.Query()
		ref := service.ConversationRef{
			ConversationID: q.Get("conversation_id"),
			FriendID:       q.Get("friend_id"),
		}
		before, err := parseTimeParam(r, "before")
		if err != nil {
			writeError(w, r, logger, "get conversation", err)
			return
		}
		after, err := parseTimeParam(r, "after")
		if err != nil {
			writeError(w, r, logger, "get conversation", err)
			return
		}
		limit, err := parseLimitParam(r)
		if err != nil {
			writeError(w, r, logger, "get conversation", err)
			return
		}

		conv, err := convSvc.GetConversation(r.Context(), userID, ref, service.PageRequest{
			Before: before,
			After:  after,
			Limit:  limit,
		})
		if err != nil {
			writeError(w, r, logger, "get conversation", err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// handleListConversations godoc
// @Summary      List conversations
// @Description  Returns every conversation of the caller with its messages; after filters on last message date
// @Tags         conversation
// @Produce      json
// @Param        after  query  string  false  "RFC 3339; only conversations active since"
// @Success      200  {array}   domain.ConversationWithMessages
// @Failure      400  {object}  map[string]string
// @Security     BearerAuth
// @Router       /conversation/list-conversations [get]
func handleListConversations(convSvc *service.ConversationService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := CurrentUserID(r)
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		after, err := parseTimeParam(r, "after")
		if err != nil {
			writeError(w, r, logger, "list conversations", err)
			return
		}
		convs, err := convSvc.ListForUser(r.Context(), userID, after)
		if err != nil {
			writeError(w, r, logger, "list conversations", err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

// handleOnlineUsers godoc
// @Summary      Online friends
// @Description  Users the caller has a conversation with that currently hold a live session
// @Tags         conversation
// @Produce      json
// @Success      200  {object}  onlineFriendsResponse
// @Security     BearerAuth
// @Router       /conversation/online-users [get]
func handleOnlineUsers(presenceSvc *service.PresenceService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := CurrentUserID(r)
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		online, err := presenceSvc.OnlineFriends(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, "online friends", err)
			return
		}
		writeJSON(w, http.StatusOK, onlineFriendsResponse{OnlineFriends: online})
	}
}
