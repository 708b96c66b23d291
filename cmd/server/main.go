package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmcore/internal/cache"
	"dmcore/internal/config"
	"dmcore/internal/httpserver"
	"dmcore/internal/presence"
	"dmcore/internal/security"
	"dmcore/internal/service"
	"dmcore/internal/store"
	"dmcore/internal/ws"
)

// @title           dmcore API
// @version         1.0
// @description     Direct-messaging conversation and presence core.

// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repos, err := store.Open(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repos.Close(ctx); err != nil {
			logger.Error("store close failed", slog.Any("error", err))
		}
	}()

	pairCache := openPairCache(cfg, logger)
	defer pairCache.Close()

	// Presence lives for the whole process and is torn down on shutdown.
	registry := presence.NewRegistry(cfg.PresenceShards)
	defer registry.Close()
	hub := ws.NewHub(registry, logger)

	tokenSvc := security.NewTokenService(cfg.JWTSecret, 24*time.Hour)
	msgSvc := service.NewMessageService(repos.Messages, service.WithLogger(logger))
	convSvc := service.NewConversationService(repos.Conversations, repos.Friendships, msgSvc,
		service.WithLogger(logger),
		service.WithPairCache(pairCache, cfg.PairCacheTTL),
		service.WithEmbeddedMessageLimit(cfg.EmbeddedMessageLimit),
	)
	presenceSvc := service.NewPresenceService(repos.Conversations, registry, service.WithLogger(logger))

	wsHandler := ws.NewHandler(hub, tokenSvc, convSvc, presenceSvc, cfg.CORSOrigins, logger)
	router := httpserver.NewRouter(cfg, tokenSvc, convSvc, presenceSvc, wsHandler, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.HTTPAddr()), slog.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Debug || cfg.Env == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openPairCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		// Pair cache is best-effort.
		logger.Warn("redis unavailable, using in-process pair cache", slog.Any("error", err))
		return cache.NewMemory()
	}
	logger.Info("pair cache connected", slog.String("backend", "redis"))
	return c
}
