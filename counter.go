package privmsg

import "context"

// CounterStore is an external cell holding one unread count per account.
// The counter subpackage provides in-memory and Redis implementations.
//
// Counts are always written as full recomputed values, never
// incremented. Recomputation is idempotent and safe under concurrent
// mutations: the last full recount wins and is correct for the state it
// observed.
type CounterStore interface {
	// Set writes the unread count for an account.
	Set(ctx context.Context, accountID string, count int64) error
	// Get returns the unread count for an account.
	Get(ctx context.Context, accountID string) (int64, error)
}

// syncUnread recomputes the recipient's unread count from the store and
// writes it to the counter cell. Called after every successful persisted
// mutation that can affect inbox state.
//
// Counter failures never fail the triggering operation; the count is
// repaired by the next resync.
func (s *service) syncUnread(ctx context.Context, accountID string) {
	count, err := s.store.CountUnread(ctx, accountID)
	if err != nil {
		s.logger.Error("unread recount failed", "account_id", accountID, "error", err)
		return
	}
	if err := s.counters.Set(ctx, accountID, count); err != nil {
		s.logger.Error("unread counter write failed", "account_id", accountID, "error", err)
		return
	}
	s.otel.recordUnreadSync(ctx, count)
}
