package store

import (
	"time"
)

// Message is a read-only view of a persisted private message.
// Messages cannot be directly modified - use the Store mutation
// operations (SetRead, SetDeleted) which return the updated view.
type Message interface {
	GetID() string
	GetPublicID() string
	GetAuthorID() string
	GetRecipientID() string
	GetSubject() string
	GetBody() string
	GetIsRead() bool
	GetReadAt() *time.Time
	GetDeletedByAuthor() bool
	GetDeletedByRecipient() bool
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// MessageData contains data for creating a new message.
// The PublicID must be assigned by the caller before creation;
// stores enforce its uniqueness.
type MessageData struct {
	PublicID    string
	AuthorID    string
	RecipientID string
	Subject     string
	Body        string
}

// SortOrder controls list ordering by creation time.
type SortOrder int

const (
	SortDesc SortOrder = iota // newest first (default)
	SortAsc                   // oldest first
)

// ListOptions controls pagination for list operations.
type ListOptions struct {
	Limit     int
	Offset    int
	SortOrder SortOrder
}

// MessageList represents a paginated list of messages.
type MessageList struct {
	Messages []Message
	Total    int64
	HasMore  bool
}
