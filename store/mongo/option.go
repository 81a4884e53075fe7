package mongo

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultDatabase   = "privmsg"
	DefaultCollection = "messages"
	DefaultTimeout    = 10 * time.Second
)

// options holds MongoDB store configuration.
type options struct {
	database   string
	collection string
	timeout    time.Duration
	logger     *slog.Logger
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		database:   DefaultDatabase,
		collection: DefaultCollection,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the MongoDB store.
type Option func(*options)

// WithDatabase sets the database name. Default is "privmsg".
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollection sets the collection name. Default is "messages".
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithTimeout sets the per-operation timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
