// Package counter provides unread-counter cell implementations.
//
// A counter cell stores one integer per account: the number of unread,
// not-deleted messages in that account's inbox. Cells are always written
// with full recomputed values, never incremented, so concurrent writers
// converge on a correct count.
package counter

import (
	"context"
	"sync"
)

// Memory is an in-memory counter cell for testing and single-process use.
type Memory struct {
	counts sync.Map // map[string]int64
}

// NewMemory creates a new in-memory counter cell.
func NewMemory() *Memory {
	return &Memory{}
}

// Set writes the unread count for an account.
func (m *Memory) Set(_ context.Context, accountID string, count int64) error {
	m.counts.Store(accountID, count)
	return nil
}

// Get returns the unread count for an account. Unknown accounts read as zero.
func (m *Memory) Get(_ context.Context, accountID string) (int64, error) {
	v, ok := m.counts.Load(accountID)
	if !ok {
		return 0, nil
	}
	return v.(int64), nil
}
