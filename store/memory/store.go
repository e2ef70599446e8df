// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/postbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
//
// All maps are guarded by a single RWMutex so a message and its recipient
// rows are published together and a read flip is never observed half-done.
type Store struct {
	mu sync.RWMutex

	users        map[string]*store.User // id -> user
	usersByEmail map[string]string      // email -> id

	messages map[string]*store.Message // id -> message (recipients embedded)
	sent     map[string][]string       // sender id -> message ids, insertion order
	inbox    map[string][]string       // recipient id -> message ids, insertion order

	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]*store.User),
		usersByEmail: make(map[string]string),
		messages:     make(map[string]*store.Message),
		sent:         make(map[string][]string),
		inbox:        make(map[string][]string),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected. Data is retained.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// sortMessages orders by creation time, then id.
func sortMessages(msgs []*store.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
