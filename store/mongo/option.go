package mongo

import (
	"log/slog"
	"time"
)

const (
	DefaultDatabase           = "postbox"
	DefaultUsersCollection    = "users"
	DefaultMessagesCollection = "messages"
	DefaultTimeout            = 10 * time.Second
)

type options struct {
	database           string
	usersCollection    string
	messagesCollection string
	timeout            time.Duration
	logger             *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		database:           DefaultDatabase,
		usersCollection:    DefaultUsersCollection,
		messagesCollection: DefaultMessagesCollection,
		timeout:            DefaultTimeout,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures New.
type Option func(*options)

// WithDatabase overrides DefaultDatabase.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

func WithUsersCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.usersCollection = name
		}
	}
}

// WithMessagesCollection names the collection holding messages with
// their embedded recipient rows.
func WithMessagesCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.messagesCollection = name
		}
	}
}

// WithTimeout bounds each operation.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
