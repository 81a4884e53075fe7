// Package directory provides Directory implementations.
package directory

import (
	"context"

	"github.com/rbaliyan/privmsg"
)

// Static is a map-based Directory for testing and simple deployments.
// It resolves accounts from in-memory maps keyed by handle and ID.
// Safe for concurrent use (read-only after creation).
type Static struct {
	byHandle map[string]*privmsg.Account
	byID     map[string]*privmsg.Account
}

// NewStatic creates a Static directory from a list of accounts.
// The accounts are copied to prevent external mutation.
func NewStatic(accounts ...*privmsg.Account) *Static {
	s := &Static{
		byHandle: make(map[string]*privmsg.Account, len(accounts)),
		byID:     make(map[string]*privmsg.Account, len(accounts)),
	}
	for _, a := range accounts {
		if a == nil {
			continue
		}
		c := *a
		s.byHandle[c.Handle] = &c
		s.byID[c.ID] = &c
	}
	return s
}

// ResolveHandle returns the account with the given handle.
func (s *Static) ResolveHandle(_ context.Context, handle string) (*privmsg.Account, error) {
	a, ok := s.byHandle[handle]
	if !ok {
		return nil, privmsg.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

// Lookup returns the account with the given ID.
func (s *Static) Lookup(_ context.Context, accountID string) (*privmsg.Account, error) {
	a, ok := s.byID[accountID]
	if !ok {
		return nil, privmsg.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

// Compile-time check
var _ privmsg.Directory = (*Static)(nil)
