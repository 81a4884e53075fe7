// Package store defines the storage interface for private messages.
//
// Implementations:
//   - store/memory: in-memory store for testing
//   - store/postgres: PostgreSQL-backed store
//   - store/mongo: MongoDB-backed store
package store

import "context"

// Store is the persistence interface for private messages.
//
// All mutation operations return the updated message so callers can
// inspect the post-write state (for example to detect that both parties
// have deleted a message) without a second round trip.
type Store interface {
	// Connect establishes the connection and prepares schema/indexes.
	Connect(ctx context.Context) error
	// Close releases the connection state.
	Close(ctx context.Context) error

	// Create persists a new message. The PublicID in data must be
	// non-empty and unique; ErrDuplicateEntry is returned on collision.
	Create(ctx context.Context, data MessageData) (Message, error)

	// Get retrieves a message by its internal ID.
	Get(ctx context.Context, id string) (Message, error)

	// GetByPublicID retrieves a message by its public ID.
	GetByPublicID(ctx context.Context, publicID string) (Message, error)

	// SetRead updates the read flag and returns the updated message.
	SetRead(ctx context.Context, id string, read bool) (Message, error)

	// SetDeleted updates one party's delete flag and returns the
	// updated message. byAuthor selects which flag is written.
	SetDeleted(ctx context.Context, id string, byAuthor, deleted bool) (Message, error)

	// HardDelete permanently removes a message.
	HardDelete(ctx context.Context, id string) error

	// CountUnread returns the number of messages for the recipient that
	// are unread and not deleted by the recipient.
	CountUnread(ctx context.Context, recipientID string) (int64, error)

	// ListInbox returns messages received by the account, excluding
	// those the recipient has deleted. Ordered by creation time.
	ListInbox(ctx context.Context, recipientID string, opts ListOptions) (*MessageList, error)

	// ListSent returns messages authored by the account, excluding
	// those the author has deleted. Ordered by creation time.
	ListSent(ctx context.Context, authorID string, opts ListOptions) (*MessageList, error)
}
