package postgres

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTable   = "private_messages"
	DefaultTimeout = 10 * time.Second
)

// options holds PostgreSQL store configuration.
type options struct {
	table   string
	timeout time.Duration
	logger  *slog.Logger
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		table:   DefaultTable,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the PostgreSQL store.
type Option func(*options)

// WithTable sets the table name. Default is "private_messages".
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
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
