// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/privmsg/store"
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	messages  sync.Map // map[string]*message
	publicIdx sync.Map // map[string]string (publicID -> messageID)
	msgLocks  sync.Map // map[string]*sync.Mutex (per-message locks for mutations)
	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// getMsgLock returns the mutex for a message ID, creating one if needed.
// Uses LoadOrStore for atomic get-or-create.
func (s *Store) getMsgLock(id string) *sync.Mutex {
	lock, _ := s.msgLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// Create persists a new message.
func (s *Store) Create(ctx context.Context, data store.MessageData) (store.Message, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if data.PublicID == "" {
		return nil, store.ErrEmptyPublicID
	}

	now := time.Now().UTC()
	m := &message{
		id:          uuid.New().String(),
		publicID:    data.PublicID,
		authorID:    data.AuthorID,
		recipientID: data.RecipientID,
		subject:     data.Subject,
		body:        data.Body,
		createdAt:   now,
		updatedAt:   now,
	}

	// Reserve the public ID atomically. LoadOrStore returns the existing
	// mapping when another create already claimed this public ID.
	if _, loaded := s.publicIdx.LoadOrStore(m.publicID, m.id); loaded {
		return nil, store.ErrDuplicateEntry
	}

	s.messages.Store(m.id, m)
	return m.clone(), nil
}

// Get retrieves a message by ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	v, ok := s.messages.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.(*message).clone(), nil
}

// GetByPublicID retrieves a message by its public ID.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (store.Message, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if publicID == "" {
		return nil, store.ErrInvalidID
	}

	v, ok := s.publicIdx.Load(publicID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Get(ctx, v.(string))
}

// SetRead sets the read flag of a message.
// Uses per-message locking to prevent concurrent mutation races.
func (s *Store) SetRead(ctx context.Context, id string, read bool) (store.Message, error) {
	return s.mutate(id, func(m *message) {
		m.isRead = read
		if read {
			now := time.Now().UTC()
			m.readAt = &now
		} else {
			m.readAt = nil
		}
	})
}

// SetDeleted sets one party's delete flag.
// Uses per-message locking to prevent concurrent mutation races.
func (s *Store) SetDeleted(ctx context.Context, id string, byAuthor, deleted bool) (store.Message, error) {
	return s.mutate(id, func(m *message) {
		if byAuthor {
			m.deletedByAuthor = deleted
		} else {
			m.deletedByRecipient = deleted
		}
	})
}

// mutate applies fn to a copy of the message under the per-message lock.
func (s *Store) mutate(id string, fn func(*message)) (store.Message, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	lock := s.getMsgLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.messages.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}

	// Copy-on-write: clone, modify, store (atomic within lock)
	m := v.(*message).clone()
	fn(m)
	m.updatedAt = time.Now().UTC()
	s.messages.Store(id, m)

	return m.clone(), nil
}

// HardDelete permanently removes a message.
func (s *Store) HardDelete(ctx context.Context, id string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if id == "" {
		return store.ErrInvalidID
	}

	v, loaded := s.messages.LoadAndDelete(id)
	if !loaded {
		return store.ErrNotFound
	}
	s.publicIdx.Delete(v.(*message).publicID)
	s.msgLocks.Delete(id)
	return nil
}

// CountUnread counts unread messages for the recipient, excluding
// those the recipient has deleted.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}

	var count int64
	s.messages.Range(func(_, v any) bool {
		m := v.(*message)
		if m.recipientID == recipientID && !m.deletedByRecipient && !m.isRead {
			count++
		}
		return true
	})
	return count, nil
}

// ListInbox returns messages received by the account.
func (s *Store) ListInbox(ctx context.Context, recipientID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(func(m *message) bool {
		return m.recipientID == recipientID && !m.deletedByRecipient
	}, opts)
}

// ListSent returns messages authored by the account.
func (s *Store) ListSent(ctx context.Context, authorID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(func(m *message) bool {
		return m.authorID == authorID && !m.deletedByAuthor
	}, opts)
}

func (s *Store) list(match func(*message) bool, opts store.ListOptions) (*store.MessageList, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}

	var all []*message
	s.messages.Range(func(_, v any) bool {
		m := v.(*message)
		if match(m) {
			all = append(all, m)
		}
		return true
	})

	sort.Slice(all, func(i, j int) bool {
		if opts.SortOrder == store.SortAsc {
			return all[i].createdAt.Before(all[j].createdAt)
		}
		return all[i].createdAt.After(all[j].createdAt)
	})

	total := int64(len(all))
	start := opts.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + opts.Limit
	if opts.Limit == 0 {
		end = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	result := all[start:end]
	messages := make([]store.Message, len(result))
	for i, m := range result {
		messages[i] = m.clone()
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  end < len(all),
	}, nil
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
