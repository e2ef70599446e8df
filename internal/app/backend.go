package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/postbox"
	"github.com/rbaliyan/postbox/retry"
	"github.com/rbaliyan/postbox/store"
	"github.com/rbaliyan/postbox/store/cached"
	"github.com/rbaliyan/postbox/store/memory"
	mongostore "github.com/rbaliyan/postbox/store/mongo"
	storeotel "github.com/rbaliyan/postbox/store/otel"
	"github.com/rbaliyan/postbox/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// backend owns the store and the connections behind it.
type backend struct {
	store   store.Store
	redis   *redis.Client
	closers []func(context.Context) error
}

// openBackend connects to the configured database and Redis, retrying while
// they come up, and assembles the store decorators.
func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	policy := retry.DefaultPolicy()
	if cfg.Store.ConnectAttempts > 0 {
		policy.Attempts = cfg.Store.ConnectAttempts
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("backend not ready, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	switch cfg.Store.Driver {
	case "memory":
		b.store = memory.New()

	case "postgres", "pgx":
		// "postgres" is registered by lib/pq, "pgx" by the pgx stdlib adapter.
		db, err := sqlx.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Store.Driver, err)
		}
		b.closers = append(b.closers, func(context.Context) error { return db.Close() })
		if err := retry.Do(ctx, policy, db.PingContext); err != nil {
			return nil, fmt.Errorf("ping %s: %w", cfg.Store.Driver, err)
		}
		b.store = postgres.New(db,
			postgres.WithTimeout(cfg.Store.Timeout),
			postgres.WithLogger(logger))

	case "mongo":
		client, err := mongo.Connect(mongoopts.Client().ApplyURI(cfg.Store.DSN))
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		b.closers = append(b.closers, client.Disconnect)
		if err := retry.Do(ctx, policy, func(ctx context.Context) error { return client.Ping(ctx, nil) }); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		b.store = mongostore.New(client,
			mongostore.WithDatabase(cfg.Store.Database),
			mongostore.WithTimeout(cfg.Store.Timeout),
			mongostore.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		b.redis = redis.NewClient(opts)
		b.closers = append(b.closers, func(context.Context) error { return b.redis.Close() })
		if err := retry.Do(ctx, policy, func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		if cfg.Redis.Cache {
			b.store = cached.New(b.store, b.redis,
				cached.WithTTL(cfg.Redis.CacheTTL),
				cached.WithLogger(logger))
		}
	}

	if cfg.OTel.Enabled {
		wrapped, err := storeotel.New(b.store,
			storeotel.WithBackend(cfg.Store.Driver),
			storeotel.WithTracing(true),
			storeotel.WithMetrics(true))
		if err != nil {
			return nil, fmt.Errorf("instrument store: %w", err)
		}
		b.store = wrapped
	}

	return b, nil
}

// serviceOptions returns the postbox options for this backend and config.
func (b *backend) serviceOptions(cfg *Config, logger *slog.Logger) []postbox.Option {
	opts := []postbox.Option{
		postbox.WithStore(b.store),
		postbox.WithLogger(logger),
		postbox.WithMaxSubjectLength(cfg.Limits.MaxSubjectLength),
		postbox.WithMaxContentSize(cfg.Limits.MaxContentSize),
		postbox.WithMaxRecipients(cfg.Limits.MaxRecipients),
		postbox.WithMaxConcurrentSends(cfg.Limits.MaxConcurrentSends),
	}
	if b.redis != nil && cfg.Redis.Events {
		opts = append(opts, postbox.WithRedisClient(b.redis))
	}
	if cfg.OTel.Enabled {
		opts = append(opts, postbox.WithOTel(true), postbox.WithServiceName(cfg.OTel.ServiceName))
	}
	return opts
}

// Close releases connections in reverse order of opening.
func (b *backend) Close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(b.closers) {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// connect opens the backend and returns a connected service. The caller
// closes the service and then the backend.
func connect(ctx context.Context, cfg *Config, logger *slog.Logger) (postbox.Service, *backend, error) {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := postbox.NewService(b.serviceOptions(cfg, logger)...)
	if err != nil {
		_ = b.Close(ctx)
		return nil, nil, err
	}
	if err := svc.Connect(ctx); err != nil {
		_ = b.Close(ctx)
		return nil, nil, fmt.Errorf("connect service: %w", err)
	}
	return svc, b, nil
}
