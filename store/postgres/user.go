package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/postbox/store"
)

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) toUser() *store.User {
	return &store.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// CreateUser inserts a user. The unique email constraint decides races.
func (s *Store) CreateUser(ctx context.Context, data store.UserData) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	row := userRow{
		ID:        uuid.New().String(),
		Email:     data.Email,
		Name:      data.Name,
		CreatedAt: data.CreatedAtOrNow().Truncate(time.Microsecond),
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, email, name, created_at) VALUES (:id, :email, :name, :created_at)`, s.users)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return nil, fmt.Errorf("insert user: %w", mapError(err))
	}
	return row.toUser(), nil
}

// GetUserByEmail looks up a user by exact email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row userRow
	query := fmt.Sprintf(`SELECT id, email, name, created_at FROM %s WHERE email = $1`, s.users)
	if err := s.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return row.toUser(), nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row userRow
	query := fmt.Sprintf(`SELECT id, email, name, created_at FROM %s WHERE id = $1`, s.users)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return row.toUser(), nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rows []userRow
	query := fmt.Sprintf(`SELECT id, email, name, created_at FROM %s ORDER BY created_at, id`, s.users)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]*store.User, len(rows))
	for i, r := range rows {
		users[i] = r.toUser()
	}
	return users, nil
}
