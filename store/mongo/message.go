package mongo

import (
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// messageDoc is the BSON document representation of a stored message.
// Internal IDs are UUID strings, so _id is a plain string rather than
// an ObjectID.
type messageDoc struct {
	ID                 string     `bson:"_id"`
	PublicID           string     `bson:"public_id"`
	AuthorID           string     `bson:"author_id"`
	RecipientID        string     `bson:"recipient_id"`
	Subject            string     `bson:"subject"`
	Body               string     `bson:"body"`
	IsRead             bool       `bson:"is_read"`
	ReadAt             *time.Time `bson:"read_at,omitempty"`
	DeletedByAuthor    bool       `bson:"deleted_by_author"`
	DeletedByRecipient bool       `bson:"deleted_by_recipient"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

// message adapts messageDoc to store.Message.
type message struct {
	doc messageDoc
}

func docToMessage(doc *messageDoc) *message {
	return &message{doc: *doc}
}

// Message getters (implements store.Message)
func (m *message) GetID() string               { return m.doc.ID }
func (m *message) GetPublicID() string         { return m.doc.PublicID }
func (m *message) GetAuthorID() string         { return m.doc.AuthorID }
func (m *message) GetRecipientID() string      { return m.doc.RecipientID }
func (m *message) GetSubject() string          { return m.doc.Subject }
func (m *message) GetBody() string             { return m.doc.Body }
func (m *message) GetIsRead() bool             { return m.doc.IsRead }
func (m *message) GetReadAt() *time.Time       { return m.doc.ReadAt }
func (m *message) GetDeletedByAuthor() bool    { return m.doc.DeletedByAuthor }
func (m *message) GetDeletedByRecipient() bool { return m.doc.DeletedByRecipient }
func (m *message) GetCreatedAt() time.Time     { return m.doc.CreatedAt }
func (m *message) GetUpdatedAt() time.Time     { return m.doc.UpdatedAt }

// Compile-time check
var _ store.Message = (*message)(nil)
