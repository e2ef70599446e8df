package cached

import (
	"log/slog"
	"time"
)

const (
	DefaultTTL       = 10 * time.Minute
	DefaultKeyPrefix = "postbox:user:"
)

type options struct {
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		ttl:       DefaultTTL,
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures New.
type Option func(*options)

// WithTTL sets how long a user stays in Redis after it is read or created.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the id and email keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithLogger receives cache failures, which never fail a call.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
