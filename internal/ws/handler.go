package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dmcore/internal/domain"
	"dmcore/internal/security"
	"dmcore/internal/service"
)

// Inbound frame types.
const (
	typeGetOrCreate  = "get_or_create_conversation"
	typeCounterpart  = "conversation_counterpart"
	typeOnlineFriend = "online_friends"
	typePing         = "ping"
)

const notifyTimeout = 5 * time.Second

type inboundFrame struct {
	Type           string `json:"type"`
	FriendID       string `json:"friend_id"`
	ConversationID string `json:"conversation_id"`
}

type presenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, ok := allowed["*"]; ok {
		return func(r *http.Request) bool { return true }
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// closeCode maps a domain error to a close code and a client-facing reason.
func closeCode(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCounterpart):
		return websocket.CloseUnsupportedData, "invalid receiver id"
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden):
		return websocket.CloseInvalidFramePayloadData, err.Error()
	}
	return websocket.CloseInternalServerErr, domain.ErrInternal.Error()
}

// Handler serves the /ws endpoint. Sessions authenticate with a bearer token
// (Authorization header or Sec-WebSocket-Protocol), then exchange JSON frames:
//   - get_or_create_conversation -> conversation
//   - conversation_counterpart   -> counterpart
//   - online_friends             -> online_friends
//   - ping                       -> pong
//
// A failed operation terminates the session with a close code instead of a
// reply.
type Handler struct {
	hub         *Hub
	tokens      *security.TokenService
	convSvc     *service.ConversationService
	presenceSvc *service.PresenceService
	checkOrigin func(r *http.Request) bool
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewHandler(
	hub *Hub,
	tokens *security.TokenService,
	convSvc *service.ConversationService,
	presenceSvc *service.PresenceService,
	allowedOrigins []string,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	checkOrigin := makeCheckOrigin(allowedOrigins)
	return &Handler{
		hub:         hub,
		tokens:      tokens,
		convSvc:     convSvc,
		presenceSvc: presenceSvc,
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
			Subprotocols: []string{
				"bearer",
			},
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	tokenStr, err := extractTokenFromWSRequest(r)
	if err != nil {
		var authErr wsAuthError
		if errors.As(err, &authErr) {
			http.Error(w, authErr.msg, authErr.status)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.UserID(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := NewConnection(userID, wsConn)
	log := h.logger.With(slog.String("user_id", userID), slog.String("conn_id", conn.ID))

	if h.hub.Attach(conn) {
		h.notifyCounterparts(userID, "user_online", log)
	}
	defer func() {
		conn.Close(websocket.CloseNormalClosure, "")
		if h.hub.Detach(conn) {
			h.notifyCounterparts(userID, "user_offline", log)
		}
	}()

	wsConn.SetReadLimit(maxMessageSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws: read failed", slog.Any("error", err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.Close(websocket.CloseInvalidFramePayloadData, "malformed frame")
			return
		}

		reply, err := h.dispatch(ctx, userID, frame)
		if err != nil {
			code, reason := closeCode(err)
			if code == websocket.CloseInternalServerErr {
				log.Error("ws: operation failed", slog.String("type", frame.Type), slog.Any("error", err))
			} else {
				log.Debug("ws: operation rejected", slog.String("type", frame.Type), slog.Any("error", err))
			}
			conn.Close(code, reason)
			return
		}
		if reply == nil {
			continue
		}
		if err := conn.Send(reply); err != nil {
			log.Debug("ws: reply dropped", slog.Any("error", err))
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, userID string, frame inboundFrame) (any, error) {
	switch frame.Type {
	case typeGetOrCreate:
		if frame.FriendID == "" {
			return nil, fmt.Errorf("%w: friend_id is required", domain.ErrBadRequest)
		}
		id, err := h.convSvc.GetOrCreate(ctx, userID, frame.FriendID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"type": "conversation", "conversation_id": id}, nil

	case typeCounterpart:
		other, err := h.convSvc.Counterpart(ctx, frame.ConversationID, userID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"type": "counterpart", "user_id": other}, nil

	case typeOnlineFriend:
		online, err := h.presenceSvc.OnlineFriends(ctx, userID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "online_friends", "online_friends": online}, nil

	case typePing:
		return map[string]string{"type": "pong"}, nil
	}
	return map[string]string{"type": "error", "message": fmt.Sprintf("unknown event type %q", frame.Type)}, nil
}

// notifyCounterparts tells the user's online counterparts about a presence
// transition.
func (h *Handler) notifyCounterparts(userID, eventType string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	online, err := h.presenceSvc.OnlineFriends(ctx, userID)
	if err != nil {
		log.Warn("ws: presence notification skipped", slog.String("event", eventType), slog.Any("error", err))
		return
	}
	h.hub.SendToUsers(online, presenceEvent{Type: eventType, UserID: userID})
}
