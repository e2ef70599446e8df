package postgres

import (
	"context"
	"fmt"

	"github.com/rbaliyan/postbox/store"
)

// UserCounts counts the user's sent, received and unread messages in one query.
func (s *Store) UserCounts(ctx context.Context, userID string) (store.UserCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.UserCounts{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row struct {
		Sent     int64 `db:"sent"`
		Received int64 `db:"received"`
		Unread   int64 `db:"unread"`
	}
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %s WHERE sender_id = $1) AS sent,
			(SELECT COUNT(*) FROM %s WHERE recipient_id = $1) AS received,
			(SELECT COUNT(*) FROM %s WHERE recipient_id = $1 AND NOT is_read) AS unread
	`, s.messages, s.recipients, s.recipients)
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		return store.UserCounts{}, fmt.Errorf("user counts: %w", err)
	}
	return store.UserCounts{Sent: row.Sent, Received: row.Received, Unread: row.Unread}, nil
}

// SystemCounts returns store-wide totals.
func (s *Store) SystemCounts(ctx context.Context) (store.SystemCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.SystemCounts{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row struct {
		Users    int64 `db:"users"`
		Messages int64 `db:"messages"`
		Unread   int64 `db:"unread"`
	}
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %s) AS users,
			(SELECT COUNT(*) FROM %s) AS messages,
			(SELECT COUNT(*) FROM %s WHERE NOT is_read) AS unread
	`, s.users, s.messages, s.recipients)
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		return store.SystemCounts{}, fmt.Errorf("system counts: %w", err)
	}
	return store.SystemCounts{Users: row.Users, Messages: row.Messages, UnreadRecipients: row.Unread}, nil
}
