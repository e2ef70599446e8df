package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rbaliyan/postbox/store"
)

// CreateUser stores a new user. The email index makes creation of the
// same email from concurrent callers yield exactly one user.
func (s *Store) CreateUser(_ context.Context, data store.UserData) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[data.Email]; exists {
		return nil, store.ErrDuplicateEntry
	}

	u := &store.User{
		ID:        uuid.New().String(),
		Email:     data.Email,
		Name:      data.Name,
		CreatedAt: data.CreatedAtOrNow(),
	}
	s.users[u.ID] = u
	s.usersByEmail[u.Email] = u.ID
	return u.Clone(), nil
}

// GetUserByEmail looks up a user by exact email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(_ context.Context, id string) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(_ context.Context) ([]*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*store.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
