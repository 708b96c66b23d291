package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "dmcore/docs"
	"dmcore/internal/config"
	"dmcore/internal/security"
	"dmcore/internal/service"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
// wsHandler serves /ws and may be nil; a nil logger uses slog.Default.
func NewRouter(
	cfg *config.Config,
	tokens *security.TokenService,
	convSvc *service.ConversationService,
	presenceSvc *service.PresenceService,
	wsHandler http.Handler,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
			"docs":    "/docs/index.html",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	r.Route("/api/conversation", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(AuthMiddleware(tokens, logger))

		r.Get("/get-conversation", handleGetConversation(convSvc, logger))
		r.Get("/list-conversations", handleListConversations(convSvc, logger))
		r.Get("/online-users", handleOnlineUsers(presenceSvc, logger))
	})

	// WebSocket endpoint; long-lived, so outside the request timeout.
	if wsHandler != nil {
		r.Method(http.MethodGet, "/ws", wsHandler)
	}

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
