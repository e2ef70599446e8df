package postbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/postbox/store"
)

// CreateUser registers a user. The email is trimmed and lowercased before
// validation and storage; the store's unique constraint decides races
// between concurrent creates of the same address.
func (s *service) CreateUser(ctx context.Context, email, name string) (_ *User, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "postbox.create_user")
	defer func() {
		endSpan(err)
		s.otel.recordCreateUser(ctx, time.Since(start), err)
	}()

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, store.UserData{
		Email:     NormalizeEmail(email),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.opts.now(),
	})
	if err != nil {
		if store.IsDuplicateEntry(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Debug("user created", "user_id", user.ID)

	if err := publish(ctx, s, s.events.UserCreated, "UserCreated", user.ID, UserCreatedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}); err != nil {
		return user, err
	}

	return user, nil
}

// GetUserByEmail returns the user with the normalized email, or (nil, nil).
func (s *service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.lookupEmail(ctx, NormalizeEmail(email))
}

// GetUserByID returns the user with the id, or (nil, nil) when the id is
// unknown or not a valid id for the backend.
func (s *service) GetUserByID(ctx context.Context, id string) (*User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if store.IsNotFound(err) || store.IsInvalidID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users, oldest first.
func (s *service) ListUsers(ctx context.Context) (_ []*User, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "postbox.list_users")
	var users []*User
	defer func() {
		endSpan(err)
		s.otel.recordQuery(ctx, time.Since(start), "users", len(users), err)
	}()

	users, err = s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Users lists all users when id is empty, otherwise returns the single user.
func (s *service) Users(ctx context.Context, id string) ([]*User, error) {
	if strings.TrimSpace(id) == "" {
		return s.ListUsers(ctx)
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return []*User{user}, nil
}

// lookupEmail resolves a normalized email. Absence is (nil, nil).
func (s *service) lookupEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// resolve returns the user for email, or notFound if there is none.
func (s *service) resolve(ctx context.Context, email string, notFound error) (*User, error) {
	user, err := s.lookupEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound
	}
	return user, nil
}
