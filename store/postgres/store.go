// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/privmsg/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// messageColumns is the column list shared by all SELECT and RETURNING clauses.
const messageColumns = `id, public_id, author_id, recipient_id, subject, body,
	is_read, read_at, deleted_by_author, deleted_by_recipient,
	created_at, updated_at`

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
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

	s.logger.Info("connected to PostgreSQL", "table", s.opts.table)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required table and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			public_id VARCHAR(64) NOT NULL,
			author_id VARCHAR(255) NOT NULL,
			recipient_id VARCHAR(255) NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			deleted_by_author BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_by_recipient BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.opts.table)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Public ID lookups must be unique; collisions surface as ErrDuplicateEntry.
	publicIdx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_public_id ON %s(public_id)`,
		s.opts.table, s.opts.table)
	if _, err := s.db.ExecContext(ctx, publicIdx); err != nil {
		return fmt.Errorf("create public_id index: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_author ON %s(author_id, deleted_by_author, created_at DESC)`, s.opts.table, s.opts.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s(recipient_id, deleted_by_recipient, created_at DESC)`, s.opts.table, s.opts.table),
		// Partial index backing the unread recount query
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_unread ON %s(recipient_id) WHERE NOT is_read AND NOT deleted_by_recipient`, s.opts.table, s.opts.table),
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

// Create persists a new message.
func (s *Store) Create(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.PublicID == "" {
		return nil, store.ErrEmptyPublicID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, public_id, author_id, recipient_id, subject, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING %s
	`, s.opts.table, messageColumns)

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query,
		uuid.New().String(), data.PublicID, data.AuthorID, data.RecipientID,
		data.Subject, data.Body, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Get retrieves a message by internal ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, s.opts.table)
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// GetByPublicID retrieves a message by public ID.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if publicID == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE public_id = $1`, messageColumns, s.opts.table)
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, publicID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message by public id: %w", err)
	}
	return msg, nil
}

// SetRead updates the read flag and returns the updated message.
func (s *Store) SetRead(ctx context.Context, id string, read bool) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_read = $2,
		    read_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, s.opts.table, messageColumns)

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id, read))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("set read: %w", err)
	}
	return msg, nil
}

// SetDeleted updates one party's delete flag and returns the updated message.
func (s *Store) SetDeleted(ctx context.Context, id string, byAuthor, deleted bool) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	column := "deleted_by_recipient"
	if byAuthor {
		column = "deleted_by_author"
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, s.opts.table, column, messageColumns)

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id, deleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("set deleted: %w", err)
	}
	return msg, nil
}

// HardDelete permanently removes a message.
func (s *Store) HardDelete(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.opts.table)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("hard delete: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountUnread returns the unread recount for a recipient.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE recipient_id = $1 AND NOT deleted_by_recipient AND NOT is_read
	`, s.opts.table)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ListInbox returns messages received by the account.
func (s *Store) ListInbox(ctx context.Context, recipientID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, "recipient_id", "deleted_by_recipient", recipientID, opts)
}

// ListSent returns messages authored by the account.
func (s *Store) ListSent(ctx context.Context, authorID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, "author_id", "deleted_by_author", authorID, opts)
}

func (s *Store) list(ctx context.Context, partyColumn, deletedColumn, accountID string, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND NOT %s`,
		s.opts.table, partyColumn, deletedColumn)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, accountID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	order := "DESC"
	if opts.SortOrder == store.SortAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1 AND NOT %s
		ORDER BY created_at %s
		LIMIT $2 OFFSET $3
	`, messageColumns, s.opts.table, partyColumn, deletedColumn, order)

	rows, err := s.db.QueryContext(ctx, query, accountID, opts.Limit+1, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(messages) > opts.Limit
	if hasMore {
		messages = messages[:opts.Limit]
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
