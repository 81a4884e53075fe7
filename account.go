package privmsg

import "context"

// Account describes a message participant as known to the directory.
// Notification preferences control which channels the dispatcher uses
// when this account receives a message.
type Account struct {
	// ID is the stable internal account identifier.
	ID string
	// Handle is the public, user-facing name used to address messages.
	Handle string
	// Email is the delivery address for email notifications.
	Email string

	// EmailNotifications enables email delivery on message receipt.
	EmailNotifications bool
	// PushNotifications enables push delivery on message receipt.
	PushNotifications bool
	// PushDestination is the opaque push routing token. Push delivery
	// is skipped when empty, even with PushNotifications enabled.
	PushDestination string
}

// Directory resolves accounts by handle or ID.
// Implementations are provided by the host application; the directory
// subpackage contains a map-backed implementation for testing.
type Directory interface {
	// ResolveHandle returns the account with the given handle, or
	// ErrAccountNotFound when no such account exists.
	ResolveHandle(ctx context.Context, handle string) (*Account, error)

	// Lookup returns the account with the given ID, or
	// ErrAccountNotFound when no such account exists.
	Lookup(ctx context.Context, accountID string) (*Account, error)
}
