package ws

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"dmcore/internal/presence"
)

// Hub tracks live connections by handle and mirrors them into the presence
// registry so online queries and fan-out agree on who is connected.
type Hub struct {
	registry *presence.Registry
	conns    sync.Map // handle -> *Connection
	logger   *slog.Logger
}

func NewHub(registry *presence.Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{registry: registry, logger: logger}
}

// Attach registers conn and starts its writer. It reports whether this is
// the user's first live session.
func (h *Hub) Attach(conn *Connection) bool {
	h.conns.Store(conn.ID, conn)
	cameOnline := h.registry.Connect(conn.UserID, conn.ID)
	conn.Start()
	return cameOnline
}

// Detach unregisters conn. It reports whether the user has no sessions left.
func (h *Hub) Detach(conn *Connection) bool {
	h.conns.Delete(conn.ID)
	return h.registry.Disconnect(conn.UserID, conn.ID)
}

// SendToUsers queues payload on every live session of the given users and
// returns the number of sessions it was queued on.
func (h *Hub) SendToUsers(userIDs []string, payload any) int {
	delivered := 0
	for _, uid := range userIDs {
		for _, handle := range h.registry.Handles(uid) {
			v, ok := h.conns.Load(handle)
			if !ok {
				continue
			}
			conn := v.(*Connection)
			if err := conn.Send(payload); err != nil {
				h.logger.Debug("ws: send failed",
					slog.String("user_id", uid),
					slog.String("conn_id", conn.ID),
					slog.Any("error", err))
				continue
			}
			delivered++
		}
	}
	return delivered
}

// Close terminates every tracked connection.
func (h *Hub) Close() {
	h.conns.Range(func(key, v any) bool {
		v.(*Connection).Close(websocket.CloseGoingAway, "server shutdown")
		h.conns.Delete(key)
		return true
	})
}
