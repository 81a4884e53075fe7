package memory

import (
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// message is the internal representation of a stored message.
type message struct {
	id                 string
	publicID           string
	authorID           string
	recipientID        string
	subject            string
	body               string
	isRead             bool
	readAt             *time.Time
	deletedByAuthor    bool
	deletedByRecipient bool
	createdAt          time.Time
	updatedAt          time.Time
}

// clone creates a deep copy of the message.
func (m *message) clone() *message {
	c := &message{
		id:                 m.id,
		publicID:           m.publicID,
		authorID:           m.authorID,
		recipientID:        m.recipientID,
		subject:            m.subject,
		body:               m.body,
		isRead:             m.isRead,
		deletedByAuthor:    m.deletedByAuthor,
		deletedByRecipient: m.deletedByRecipient,
		createdAt:          m.createdAt,
		updatedAt:          m.updatedAt,
	}
	if m.readAt != nil {
		t := *m.readAt
		c.readAt = &t
	}
	return c
}

// Message getters (implements store.Message)
func (m *message) GetID() string               { return m.id }
func (m *message) GetPublicID() string         { return m.publicID }
func (m *message) GetAuthorID() string         { return m.authorID }
func (m *message) GetRecipientID() string      { return m.recipientID }
func (m *message) GetSubject() string          { return m.subject }
func (m *message) GetBody() string             { return m.body }
func (m *message) GetIsRead() bool             { return m.isRead }
func (m *message) GetReadAt() *time.Time       { return m.readAt }
func (m *message) GetDeletedByAuthor() bool    { return m.deletedByAuthor }
func (m *message) GetDeletedByRecipient() bool { return m.deletedByRecipient }
func (m *message) GetCreatedAt() time.Time     { return m.createdAt }
func (m *message) GetUpdatedAt() time.Time     { return m.updatedAt }

// Compile-time check
var _ store.Message = (*message)(nil)
