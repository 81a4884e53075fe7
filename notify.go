package privmsg

import (
	"context"
	"fmt"

	"github.com/rbaliyan/privmsg/retry"
)

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Delivery statuses reported to the delivery observer.
const (
	DeliveryDelivered = "delivered"
	DeliverySkipped   = "skipped"
	DeliveryFailed    = "failed"
)

// EmailMessage is the payload handed to the email channel.
type EmailMessage struct {
	To       string // recipient address
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailSender delivers email notifications.
// Implementations are provided by the host application (SMTP, an email
// API, a queue). Errors are logged and swallowed by the dispatcher.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// PushMessage is the payload handed to the push channel.
type PushMessage struct {
	Destination string // opaque routing token from Account.PushDestination
	Title       string
	Body        string // plaintext rendering of the message body
	URL         string // deep link to the message
	URLTitle    string
}

// PushSender delivers push notifications.
type PushSender interface {
	Push(ctx context.Context, msg PushMessage) error
}

// DeliveryResult describes the outcome of one notification channel attempt.
type DeliveryResult struct {
	Channel   string // ChannelEmail or ChannelPush
	Status    string // DeliveryDelivered, DeliverySkipped, or DeliveryFailed
	MessageID string
	Err       error // set when Status is DeliveryFailed
}

// DeliveryObserverFunc receives one DeliveryResult per channel attempt.
type DeliveryObserverFunc func(ctx context.Context, result DeliveryResult)

// dispatchNotifications attempts delivery on each configured channel for
// a newly created message. Channels are independent: a failure on one
// never affects the other, and no failure propagates to the caller.
//
// Email goes out when the recipient has email notifications enabled.
// Push additionally requires a registered push destination.
func (s *service) dispatchNotifications(ctx context.Context, msg Message, author, recipient *Account) {
	title := fmt.Sprintf("%s message from %s: %s", s.opts.appName, author.Handle, msg.Subject())

	if recipient.EmailNotifications && s.opts.email != nil {
		err := retry.Do(ctx, s.opts.notifyRetry, func(ctx context.Context) error {
			return s.opts.email.Send(ctx, EmailMessage{
				To:       recipient.Email,
				Subject:  title,
				TextBody: msg.PlaintextBody() + "\n\n" + msg.URL(),
				HTMLBody: msg.HTMLBody(),
			})
		})
		s.observeDelivery(ctx, msg, ChannelEmail, err)
	} else {
		s.skipDelivery(ctx, msg, ChannelEmail)
	}

	if recipient.PushNotifications && recipient.PushDestination != "" && s.opts.push != nil {
		err := retry.Do(ctx, s.opts.notifyRetry, func(ctx context.Context) error {
			return s.opts.push.Push(ctx, PushMessage{
				Destination: recipient.PushDestination,
				Title:       title,
				Body:        msg.PlaintextBody(),
				URL:         msg.URL(),
				URLTitle:    "Reply to " + author.Handle,
			})
		})
		s.observeDelivery(ctx, msg, ChannelPush, err)
	} else {
		s.skipDelivery(ctx, msg, ChannelPush)
	}
}

func (s *service) observeDelivery(ctx context.Context, msg Message, channel string, err error) {
	result := DeliveryResult{
		Channel:   channel,
		Status:    DeliveryDelivered,
		MessageID: msg.ID(),
	}
	if err != nil {
		result.Status = DeliveryFailed
		result.Err = err
		s.logger.Error("notification delivery failed",
			"channel", channel, "message_id", msg.ID(), "error", err)
	}
	s.otel.recordNotify(ctx, channel, err)
	if s.opts.deliveryObserver != nil {
		s.opts.deliveryObserver(ctx, result)
	}
}

func (s *service) skipDelivery(ctx context.Context, msg Message, channel string) {
	if s.opts.deliveryObserver == nil {
		return
	}
	s.opts.deliveryObserver(ctx, DeliveryResult{
		Channel:   channel,
		Status:    DeliverySkipped,
		MessageID: msg.ID(),
	})
}
