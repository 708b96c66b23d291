// Package store opens the configured persistence backend and exposes its
// repositories behind the domain interfaces.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"dmcore/internal/config"
	"dmcore/internal/domain"
	"dmcore/internal/store/mongodb"
	"dmcore/internal/store/postgres"
	"dmcore/internal/store/sqlite"
)

type Repositories struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Friendships   domain.FriendshipRepository

	close func(ctx context.Context) error
}

// Close releases the underlying connection pool or client.
func (r *Repositories) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}

// Open connects to the backend selected by cfg.StoreDriver and applies its
// schema migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Repositories, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.StoreDriver), slog.String("path", cfg.SQLitePath))
		return &Repositories{
			Conversations: sqlite.NewConversationRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
			Friendships:   sqlite.NewFriendshipRepo(db),
			close:         func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.StoreDriver))
		return &Repositories{
			Conversations: postgres.NewConversationRepo(db),
			Messages:      postgres.NewMessageRepo(db),
			Friendships:   postgres.NewFriendshipRepo(db),
			close:         func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverMongo:
		client, db, err := mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mongodb.Migrate(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("migrate mongo: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.StoreDriver), slog.String("database", cfg.MongoDatabase))
		return &Repositories{
			Conversations: mongodb.NewConversationRepo(db),
			Messages:      mongodb.NewMessageRepo(db),
			Friendships:   mongodb.NewFriendshipRepo(db),
			close:         client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
