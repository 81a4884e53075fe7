package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the default Redis key prefix for unread counters.
const DefaultKeyPrefix = "privmsg:unread:"

// Redis is a Redis-backed counter cell. Counts are plain string integers
// under "<prefix><accountID>", readable by other services sharing the
// Redis instance.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures the Redis counter cell.
type RedisOption func(*Redis)

// WithKeyPrefix sets the Redis key prefix. Default is "privmsg:unread:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis creates a Redis-backed counter cell.
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(accountID string) string {
	return r.prefix + accountID
}

// Set writes the unread count for an account.
func (r *Redis) Set(ctx context.Context, accountID string, count int64) error {
	if err := r.client.Set(ctx, r.key(accountID), count, 0).Err(); err != nil {
		return fmt.Errorf("counter set: %w", err)
	}
	return nil
}

// Get returns the unread count for an account. Missing keys read as zero.
func (r *Redis) Get(ctx context.Context, accountID string) (int64, error) {
	n, err := r.client.Get(ctx, r.key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("counter get: %w", err)
	}
	return n, nil
}
