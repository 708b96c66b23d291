package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dmcore/internal/cache"
	"dmcore/internal/domain"
)

// Option configures the services in this package.
type Option func(*options)

type options struct {
	logger *slog.Logger

	pairs         cache.Cache
	pairTTL       time.Duration
	embeddedLimit int
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPairCache enables a best-effort cache of pair key to conversation id.
// Only ConversationService uses it.
func WithPairCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.pairs = c
		o.pairTTL = ttl
	}
}

// WithEmbeddedMessageLimit keeps only the most recent n messages per
// conversation in ConversationService.ListForUser. Zero means unbounded.
func WithEmbeddedMessageLimit(n int) Option {
	return func(o *options) {
		o.embeddedLimit = n
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// storeErr wraps a repository failure. Domain sentinels pass through so the
// boundary can map them; anything else becomes ErrStoreUnavailable with the
// cause kept in the chain.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrBadRequest):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
