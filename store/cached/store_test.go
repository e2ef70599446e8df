package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/postbox/store"
	"github.com/rbaliyan/postbox/store/memory"
	"github.com/redis/go-redis/v9"
)

func setupCached(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := memory.New()
	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return New(backend, client, opts...), mr
}

func TestCreatePrimesCache(t *testing.T) {
	ctx := context.Background()
	s, mr := setupCached(t)

	u, err := s.CreateUser(ctx, store.UserData{Email: "alice@example.com", Name: "Alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists(s.emailKey(u.Email)) || !mr.Exists(s.idKey(u.ID)) {
		t.Fatal("expected both cache keys after create")
	}

	got, err := s.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != u.ID || got.Name != "Alice" {
		t.Errorf("unexpected cached user: %+v", got)
	}
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	s, mr := setupCached(t)

	// Bypass the cache on create.
	u, err := s.Store.CreateUser(ctx, store.UserData{Email: "bob@example.com", Name: "Bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists(s.idKey(u.ID)) {
		t.Fatal("cache should be cold")
	}

	if _, err := s.GetUserByID(ctx, u.ID); err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !mr.Exists(s.idKey(u.ID)) || !mr.Exists(s.emailKey(u.Email)) {
		t.Error("expected read-through to populate cache")
	}
}

func TestMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	s, mr := setupCached(t)

	if _, err := s.GetUserByEmail(ctx, "ghost@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(s.emailKey("ghost@example.com")) {
		t.Error("negative lookups must not be cached")
	}
}

func TestTTLAndPurge(t *testing.T) {
	ctx := context.Background()
	s, mr := setupCached(t, WithTTL(time.Minute), WithKeyPrefix("test:"))

	u, err := s.CreateUser(ctx, store.UserData{Email: "carol@example.com", Name: "Carol"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.TTL("test:email:carol@example.com") != time.Minute {
		t.Errorf("unexpected ttl %v", mr.TTL("test:email:carol@example.com"))
	}

	if err := s.Purge(ctx, u); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if mr.Exists(s.idKey(u.ID)) {
		t.Error("expected id key removed")
	}
}

func TestRedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	s, mr := setupCached(t)

	u, err := s.CreateUser(ctx, store.UserData{Email: "dave@example.com", Name: "Dave"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.Close()

	got, err := s.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("expected backend fallback, got %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("unexpected user %+v", got)
	}
}
