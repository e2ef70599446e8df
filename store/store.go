// Package store defines the persistence contract for postbox.
//
// A Store owns three record types: users, messages and the per-recipient
// delivery rows of each message. Implementations must guarantee that a
// message and all of its recipient rows become visible together, and that
// the unread-to-read transition of a recipient row happens at most once.
package store

import (
	"context"
	"time"
)

// UserStore provides the user directory.
type UserStore interface {
	// CreateUser inserts a user. The email must already be normalized.
	// Returns ErrDuplicateEntry if the email is taken.
	CreateUser(ctx context.Context, data UserData) (*User, error)
	// GetUserByEmail returns ErrNotFound if no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns ErrNotFound for unknown ids and ErrInvalidID for
	// ids the backend cannot parse.
	GetUserByID(ctx context.Context, id string) (*User, error)
	// ListUsers returns all users ordered by creation time.
	ListUsers(ctx context.Context) ([]*User, error)
}

// MessageStore provides message fan-out and read-state tracking.
type MessageStore interface {
	// CreateMessage inserts the message and one recipient row per entry of
	// data.Recipients in a single atomic unit.
	CreateMessage(ctx context.Context, data MessageData) (*Message, error)
	// GetMessage returns the message with its recipient rows in submission order.
	GetMessage(ctx context.Context, id string) (*Message, error)
	// ListSent returns messages sent by the user, oldest first.
	ListSent(ctx context.Context, senderID string) ([]*Message, error)
	// ListInbox returns the user's received messages, oldest first.
	ListInbox(ctx context.Context, recipientID string, unreadOnly bool) ([]*InboxEntry, error)
	// MarkRead flips the recipient row for (messageID, recipientID) from
	// unread to read. Returns ErrNotFound if no such row exists and
	// ErrAlreadyRead if it was already read.
	MarkRead(ctx context.Context, messageID, recipientID string, at time.Time) (*Recipient, error)
}

// StatsStore provides aggregate counts.
type StatsStore interface {
	// UserCounts returns sent/received/unread counts for one user.
	UserCounts(ctx context.Context, userID string) (UserCounts, error)
	// SystemCounts returns totals across all users.
	SystemCounts(ctx context.Context) (SystemCounts, error)
}

// Store is the full persistence contract.
type Store interface {
	// Connect prepares the backend (schema, indexes).
	Connect(ctx context.Context) error
	// Close releases backend resources owned by the store.
	Close(ctx context.Context) error

	UserStore
	MessageStore
	StatsStore
}
