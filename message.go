package privmsg

import (
	"strings"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// Message is a read-only view of a private message.
//
// The internal ID is stable and used for API operations; the public ID
// is the opaque identifier exposed in URLs. The two are never the same
// namespace.
type Message interface {
	// ID is the internal message identifier.
	ID() string
	// PublicID is the opaque URL-safe identifier.
	PublicID() string
	// AuthorID is the sending account's ID.
	AuthorID() string
	// RecipientID is the receiving account's ID.
	RecipientID() string
	// Subject is the message subject line.
	Subject() string
	// Body is the raw message body.
	Body() string
	// IsRead reports whether the recipient has read the message.
	IsRead() bool
	// ReadAt is the read timestamp, nil while unread.
	ReadAt() *time.Time
	// DeletedByAuthor reports the author's delete flag.
	DeletedByAuthor() bool
	// DeletedByRecipient reports the recipient's delete flag.
	DeletedByRecipient() bool
	// CreatedAt is the creation timestamp.
	CreatedAt() time.Time

	// URL is the canonical deep link, "<base>/messages/<publicID>".
	URL() string
	// PlaintextBody is the body rendered as plain text.
	PlaintextBody() string
	// HTMLBody is the body rendered as HTML.
	HTMLBody() string
}

// message wraps a store.Message with service-level rendering and links.
type message struct {
	data store.Message
	svc  *service
}

func (s *service) wrapMessage(data store.Message) Message {
	return &message{data: data, svc: s}
}

func (m *message) ID() string               { return m.data.GetID() }
func (m *message) PublicID() string         { return m.data.GetPublicID() }
func (m *message) AuthorID() string         { return m.data.GetAuthorID() }
func (m *message) RecipientID() string      { return m.data.GetRecipientID() }
func (m *message) Subject() string          { return m.data.GetSubject() }
func (m *message) Body() string             { return m.data.GetBody() }
func (m *message) IsRead() bool             { return m.data.GetIsRead() }
func (m *message) ReadAt() *time.Time       { return m.data.GetReadAt() }
func (m *message) DeletedByAuthor() bool    { return m.data.GetDeletedByAuthor() }
func (m *message) DeletedByRecipient() bool { return m.data.GetDeletedByRecipient() }
func (m *message) CreatedAt() time.Time     { return m.data.GetCreatedAt() }

func (m *message) URL() string {
	return m.svc.messageURL(m.data.GetPublicID())
}

func (m *message) PlaintextBody() string {
	return m.svc.renderer.ToPlainText(m.data.GetBody())
}

func (m *message) HTMLBody() string {
	return m.svc.renderer.ToHTML(m.data.GetBody())
}

// messageURL joins the configured base URL with the message path.
func (s *service) messageURL(publicID string) string {
	return strings.TrimSuffix(s.opts.baseURL, "/") + "/messages/" + publicID
}

// MessageList represents one page of messages.
type MessageList struct {
	Messages []Message
	Total    int64
	HasMore  bool
}

// Compile-time check
var _ Message = (*message)(nil)
