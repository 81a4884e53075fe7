package privmsg

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for message lifecycle events.
const (
	EventNameMessageSent    = "privmsg.message.sent"
	EventNameMessageRead    = "privmsg.message.read"
	EventNameMessageDeleted = "privmsg.message.deleted"
)

// MessageSentEvent is published when a message is created.
type MessageSentEvent struct {
	MessageID   string    `json:"message_id"`
	PublicID    string    `json:"public_id"`
	AuthorID    string    `json:"author_id"`
	RecipientID string    `json:"recipient_id"`
	Subject     string    `json:"subject"`
	SentAt      time.Time `json:"sent_at"`
}

// MessageReadEvent is published when a message is marked as read.
type MessageReadEvent struct {
	MessageID string    `json:"message_id"`
	AccountID string    `json:"account_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageDeletedEvent is published when a message is permanently removed
// after both parties deleted it. Single-party soft deletes do not emit
// this event.
type MessageDeletedEvent struct {
	MessageID string    `json:"message_id"`
	PublicID  string    `json:"public_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageSent.Subscribe(ctx, handler)
//	svc.Events().MessageRead.Subscribe(ctx, handler)
//	svc.Events().MessageDeleted.Subscribe(ctx, handler)
type ServiceEvents struct {
	// MessageSent is published when a message is created.
	MessageSent event.Event[MessageSentEvent]

	// MessageRead is published when a message is marked as read.
	MessageRead event.Event[MessageReadEvent]

	// MessageDeleted is published when a message is permanently removed.
	MessageDeleted event.Event[MessageDeletedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageSent:    event.New[MessageSentEvent](namePrefix + "." + EventNameMessageSent),
		MessageRead:    event.New[MessageReadEvent](namePrefix + "." + EventNameMessageRead),
		MessageDeleted: event.New[MessageDeletedEvent](namePrefix + "." + EventNameMessageDeleted),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageRead); err != nil {
		return fmt.Errorf("register MessageRead: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	return nil
}

// publishEvent publishes ev and applies the configured failure policy.
// With eventErrorsFatal the returned error is an *EventPublishError;
// otherwise failures are reported to the failure handler and swallowed.
func publishEvent[T any](ctx context.Context, s *service, ev event.Event[T], eventName, messageID string, payload T) error {
	err := ev.Publish(ctx, payload)
	if err == nil {
		return nil
	}
	if s.opts.eventErrorsFatal {
		return &EventPublishError{Event: eventName, MessageID: messageID, Err: err}
	}
	s.opts.safeEventPublishFailure(eventName, err)
	return nil
}
