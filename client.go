package privmsg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rbaliyan/privmsg/store"
)

// SendRequest describes a message to send.
// The author is the account the client was created for.
type SendRequest struct {
	// RecipientHandle is the recipient's public handle.
	RecipientHandle string
	// Subject is the subject line, 1 to MaxSubjectLength Unicode characters.
	Subject string
	// Body is the message body, up to MaxBodyLength Unicode characters.
	Body string
}

// Messenger provides message operations for a single account.
// Created via Service.Client(accountID). The account is treated as
// authenticated; authorization against individual messages is enforced
// per operation.
type Messenger interface {
	// Send validates the request, creates the message and triggers
	// counter resync and notification dispatch.
	//
	// Validation failures are returned as FieldErrors covering every
	// violated field at once. When WithEventErrorsFatal is set, the
	// returned error may be an *EventPublishError while the message was
	// still created; the Message return is non-nil in that case.
	Send(ctx context.Context, req SendRequest) (Message, error)

	// Get retrieves a message by its internal ID.
	// Returns ErrUnauthorized if the account is neither author nor
	// recipient, and ErrNotFound if the account has deleted the message.
	Get(ctx context.Context, id string) (Message, error)

	// GetByPublicID retrieves a message by its public ID, with the same
	// visibility rules as Get.
	GetByPublicID(ctx context.Context, publicID string) (Message, error)

	// SetRead sets or clears the read flag. Only the recipient may call
	// this; the author receives ErrUnauthorized.
	SetRead(ctx context.Context, id string, read bool) (Message, error)

	// SetDeleted sets or clears this account's delete flag on the
	// message. The flag written is inferred from the account's role.
	// Once both parties have deleted a message it is permanently
	// removed; subsequent lookups return ErrNotFound.
	SetDeleted(ctx context.Context, id string, deleted bool) (Message, error)

	// Inbox lists messages received by the account, newest first by
	// default, excluding those the account has deleted.
	Inbox(ctx context.Context, opts ListOptions) (*MessageList, error)

	// Sent lists messages authored by the account, newest first by
	// default, excluding those the account has deleted.
	Sent(ctx context.Context, opts ListOptions) (*MessageList, error)

	// UnreadCount returns the account's unread message count from the
	// counter cell.
	UnreadCount(ctx context.Context) (int64, error)
}

// messenger is the default Messenger implementation.
type messenger struct {
	accountID      string
	service        *service
	validAccountID bool // validated once at creation
}

// checkAccess verifies the service is connected and the account ID is valid.
func (m *messenger) checkAccess() error {
	if !m.service.IsConnected() {
		return ErrNotConnected
	}
	if !m.validAccountID {
		return ErrInvalidAccountID
	}
	return nil
}

// maxPublicIDAttempts bounds how many times Send regenerates a public ID
// after a uniqueness collision before giving up.
const maxPublicIDAttempts = 3

func (m *messenger) Send(ctx context.Context, req SendRequest) (msg Message, err error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	s := m.service
	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire send slot: %w", err)
	}
	defer s.sendSem.Release(1)

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.Send",
		attribute.String("privmsg.author_id", m.accountID),
	)
	defer func() {
		s.otel.recordSend(ctx, time.Since(start), err)
		endSpan(err)
	}()

	author, err := s.directory.Lookup(ctx, m.accountID)
	if err != nil {
		return nil, fmt.Errorf("lookup author: %w", err)
	}

	recipient, err := s.validateSendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	created, err := s.createMessage(ctx, store.MessageData{
		AuthorID:    m.accountID,
		RecipientID: recipient.ID,
		Subject:     req.Subject,
		Body:        req.Body,
	})
	if err != nil {
		return nil, err
	}
	msg = s.wrapMessage(created)

	s.logger.Info("message sent",
		"message_id", created.GetID(),
		"public_id", created.GetPublicID(),
		"author_id", m.accountID,
		"recipient_id", recipient.ID)

	// Post-persist side effects. Counter and notification failures are
	// logged inside and never fail the send.
	s.syncUnread(ctx, recipient.ID)
	s.dispatchNotifications(ctx, msg, author, recipient)

	err = publishEvent(ctx, s, s.events.MessageSent, "MessageSent", created.GetID(), MessageSentEvent{
		MessageID:   created.GetID(),
		PublicID:    created.GetPublicID(),
		AuthorID:    m.accountID,
		RecipientID: recipient.ID,
		Subject:     created.GetSubject(),
		SentAt:      created.GetCreatedAt(),
	})
	return msg, err
}

// createMessage assigns a public ID and persists the message, retrying
// with a fresh ID on a uniqueness collision. Generation failure is fatal
// and nothing is persisted.
func (s *service) createMessage(ctx context.Context, data store.MessageData) (store.Message, error) {
	for attempt := 1; ; attempt++ {
		publicID, err := s.publicIDs.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPublicID, err)
		}
		data.PublicID = publicID

		created, err := s.store.Create(ctx, data)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateEntry) {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if attempt >= maxPublicIDAttempts {
			return nil, fmt.Errorf("%w: no unique id after %d attempts", ErrPublicID, attempt)
		}
		s.logger.Warn("public id collision, regenerating", "attempt", attempt)
	}
}

func (m *messenger) Get(ctx context.Context, id string) (msg Message, err error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	s := m.service
	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.Get",
		attribute.String("privmsg.message_id", id),
	)
	defer func() {
		s.otel.recordGet(ctx, time.Since(start), err)
		endSpan(err)
	}()

	data, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := m.authorize(data); err != nil {
		return nil, err
	}
	return s.wrapMessage(data), nil
}

func (m *messenger) GetByPublicID(ctx context.Context, publicID string) (msg Message, err error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	s := m.service
	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.GetByPublicID",
		attribute.String("privmsg.public_id", publicID),
	)
	defer func() {
		s.otel.recordGet(ctx, time.Since(start), err)
		endSpan(err)
	}()

	data, err := s.store.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := m.authorize(data); err != nil {
		return nil, err
	}
	return s.wrapMessage(data), nil
}

// authorize checks that this account may see the message.
// Non-parties get ErrUnauthorized. A party that has deleted the message
// sees it as gone and gets ErrNotFound.
func (m *messenger) authorize(data store.Message) error {
	switch m.accountID {
	case data.GetAuthorID():
		if data.GetDeletedByAuthor() {
			return ErrNotFound
		}
	case data.GetRecipientID():
		if data.GetDeletedByRecipient() {
			return ErrNotFound
		}
	default:
		return ErrUnauthorized
	}
	return nil
}

func (m *messenger) SetRead(ctx context.Context, id string, read bool) (msg Message, err error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	s := m.service
	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.SetRead",
		attribute.String("privmsg.message_id", id),
		attribute.Bool("privmsg.read", read),
	)
	defer func() {
		s.otel.recordUpdate(ctx, time.Since(start), "set_read", err)
		endSpan(err)
	}()

	data, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	// Only the recipient marks messages read or unread.
	if m.accountID != data.GetRecipientID() {
		return nil, ErrUnauthorized
	}
	if data.GetDeletedByRecipient() {
		return nil, ErrNotFound
	}

	updated, err := s.store.SetRead(ctx, id, read)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	removed, err := s.afterPersist(ctx, updated)
	if err != nil {
		return nil, err
	}
	msg = s.wrapMessage(updated)
	if removed {
		return msg, nil
	}

	if read {
		readAt := time.Now().UTC()
		if at := updated.GetReadAt(); at != nil {
			readAt = *at
		}
		err = publishEvent(ctx, s, s.events.MessageRead, "MessageRead", updated.GetID(), MessageReadEvent{
			MessageID: updated.GetID(),
			AccountID: m.accountID,
			ReadAt:    readAt,
		})
	}
	return msg, err
}

func (m *messenger) SetDeleted(ctx context.Context, id string, deleted bool) (msg Message, err error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	s := m.service
	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.SetDeleted",
		attribute.String("privmsg.message_id", id),
		attribute.Bool("privmsg.deleted", deleted),
	)
	defer func() {
		s.otel.recordUpdate(ctx, time.Since(start), "set_deleted", err)
		endSpan(err)
	}()

	data, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	// The flag written is the caller's own; each party controls only
	// its side.
	var byAuthor bool
	switch m.accountID {
	case data.GetAuthorID():
		byAuthor = true
	case data.GetRecipientID():
		byAuthor = false
	default:
		return nil, ErrUnauthorized
	}

	updated, err := s.store.SetDeleted(ctx, id, byAuthor, deleted)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if _, err := s.afterPersist(ctx, updated); err != nil {
		return nil, err
	}
	return s.wrapMessage(updated), nil
}

func (m *messenger) Inbox(ctx context.Context, opts ListOptions) (*MessageList, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	list, err := m.service.store.ListInbox(ctx, m.accountID, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return m.service.wrapMessageList(list), nil
}

func (m *messenger) Sent(ctx context.Context, opts ListOptions) (*MessageList, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	list, err := m.service.store.ListSent(ctx, m.accountID, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return m.service.wrapMessageList(list), nil
}

func (m *messenger) UnreadCount(ctx context.Context) (int64, error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}

	count, err := m.service.counters.Get(ctx, m.accountID)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// wrapMessageList converts a store page into the public representation.
func (s *service) wrapMessageList(list *store.MessageList) *MessageList {
	out := &MessageList{
		Messages: make([]Message, len(list.Messages)),
		Total:    list.Total,
		HasMore:  list.HasMore,
	}
	for i, data := range list.Messages {
		out.Messages[i] = s.wrapMessage(data)
	}
	return out
}

// mapStoreErr translates store sentinel errors into package-level ones.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidID):
		return ErrInvalidID
	case errors.Is(err, store.ErrNotConnected):
		return ErrNotConnected
	case errors.Is(err, store.ErrDuplicateEntry):
		return ErrDuplicateEntry
	default:
		return err
	}
}

// Compile-time check
var _ Messenger = (*messenger)(nil)
