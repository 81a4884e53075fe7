package postgres

import (
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// message is the scanned row representation of a stored message.
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

// scanner abstracts *sql.Row and *sql.Rows for scanMessage.
type scanner interface {
	Scan(dest ...any) error
}

// scanMessage scans a full message row in column order.
func scanMessage(row scanner) (*message, error) {
	var m message
	err := row.Scan(
		&m.id, &m.publicID, &m.authorID, &m.recipientID,
		&m.subject, &m.body,
		&m.isRead, &m.readAt,
		&m.deletedByAuthor, &m.deletedByRecipient,
		&m.createdAt, &m.updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
