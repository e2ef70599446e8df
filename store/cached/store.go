// Package cached provides a Redis read-through cache for the user directory.
//
// Users are immutable once created, so cached entries never need
// invalidation; the TTL only bounds memory use. Message and stats
// operations pass straight through to the wrapped store.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/postbox/store"
	"github.com/redis/go-redis/v9"
)

// Store wraps a store.Store with a Redis user cache.
type Store struct {
	store.Store

	client redis.UniversalClient
	opts   *options
	logger *slog.Logger
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New wraps backend with a user cache stored in client.
func New(backend store.Store, client redis.UniversalClient, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		Store:  backend,
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

func (s *Store) emailKey(email string) string { return s.opts.keyPrefix + "email:" + email }
func (s *Store) idKey(id string) string       { return s.opts.keyPrefix + "id:" + id }

// CreateUser creates the user in the backend and primes the cache.
func (s *Store) CreateUser(ctx context.Context, data store.UserData) (*store.User, error) {
	u, err := s.Store.CreateUser(ctx, data)
	if err != nil {
		return nil, err
	}
	s.put(ctx, u)
	return u, nil
}

// GetUserByEmail serves from cache, falling back to the backend.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	if u, ok := s.get(ctx, s.emailKey(email)); ok {
		return u, nil
	}
	u, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.put(ctx, u)
	return u, nil
}

// GetUserByID serves from cache, falling back to the backend.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	if u, ok := s.get(ctx, s.idKey(id)); ok {
		return u, nil
	}
	u, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, u)
	return u, nil
}

// get reads a cached user. Cache errors are logged and treated as misses.
func (s *Store) get(ctx context.Context, key string) (*store.User, bool) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("user cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var u store.User
	if err := json.Unmarshal(data, &u); err != nil {
		s.logger.Warn("user cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	s.logger.Debug("user cache hit", "key", key)
	return &u, true
}

// put caches u under both its email and id keys.
func (s *Store) put(ctx context.Context, u *store.User) {
	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn("user cache encode failed", "user_id", u.ID, "error", err)
		return
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.emailKey(u.Email), data, s.opts.ttl)
		p.Set(ctx, s.idKey(u.ID), data, s.opts.ttl)
		return nil
	})
	if err != nil {
		s.logger.Warn("user cache write failed", "user_id", u.ID, "error", err)
	}
}

// Purge removes a user's cache entries.
func (s *Store) Purge(ctx context.Context, u *store.User) error {
	if err := s.client.Del(ctx, s.emailKey(u.Email), s.idKey(u.ID)).Err(); err != nil {
		return fmt.Errorf("purge user cache: %w", err)
	}
	return nil
}
