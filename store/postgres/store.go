// Package postgres provides a PostgreSQL implementation of store.Store.
//
// The schema is three tables: users, messages and message_recipients.
// A message and its recipient rows are written in one transaction, and the
// read flag is flipped with a conditional update so that only one caller
// can observe the unread-to-read transition.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/postbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// PostgreSQL error codes mapped to store errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger

	users      string
	messages   string
	recipients string
}

// New creates a new PostgreSQL store with the provided database connection.
// The connection may use either the lib/pq ("postgres") or the pgx stdlib
// ("pgx") driver. Call Connect() to initialize the schema.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:         db,
		opts:       o,
		logger:     o.logger,
		users:      o.tablePrefix + "users",
		messages:   o.tablePrefix + "messages",
		recipients: o.tablePrefix + "message_recipients",
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// driverName is the name the connection was opened with.
func NewFromDB(db *sql.DB, driverName string, opts ...Option) *Store {
	return New(sqlx.NewDb(db, driverName), opts...)
}

// Connect initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "users", s.users, "messages", s.messages, "recipients", s.recipients)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	tables := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				email VARCHAR(320) NOT NULL UNIQUE,
				name VARCHAR(100) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.users),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				sender_id UUID NOT NULL REFERENCES %s(id),
				subject VARCHAR(255),
				content TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.messages, s.users),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				message_id UUID NOT NULL REFERENCES %s(id),
				recipient_id UUID NOT NULL REFERENCES %s(id),
				position INTEGER NOT NULL,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				read_at TIMESTAMPTZ,
				UNIQUE (message_id, recipient_id),
				CHECK (is_read = (read_at IS NOT NULL))
			)`, s.recipients, s.messages, s.users),
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sender ON %s(sender_id, created_at)`, s.messages, s.messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s(recipient_id, is_read)`, s.recipients, s.recipients),
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapError translates constraint violations into store errors.
func mapError(err error) error {
	switch sqlState(err) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %v", store.ErrDuplicateEntry, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	default:
		return err
	}
}
