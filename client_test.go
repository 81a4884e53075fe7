package privmsg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/privmsg/retry"
	"github.com/rbaliyan/privmsg/store/memory"
)

// mustSend is a test helper that fails the test if Send fails.
func mustSend(t *testing.T, client Messenger, req SendRequest) Message {
	t.Helper()
	msg, err := client.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	return msg
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := svc.Client("u-alice")
	bob := svc.Client("u-bob")

	t.Run("send message to recipient", func(t *testing.T) {
		msg := mustSend(t, alice, SendRequest{
			RecipientHandle: "bob",
			Subject:         "Hello",
			Body:            "This is a test message",
		})

		if msg.Subject() != "Hello" {
			t.Errorf("expected subject 'Hello', got %q", msg.Subject())
		}
		if msg.Body() != "This is a test message" {
			t.Errorf("expected body 'This is a test message', got %q", msg.Body())
		}
		if msg.AuthorID() != "u-alice" {
			t.Errorf("expected author 'u-alice', got %q", msg.AuthorID())
		}
		if msg.RecipientID() != "u-bob" {
			t.Errorf("expected recipient 'u-bob', got %q", msg.RecipientID())
		}
		if msg.IsRead() {
			t.Error("new message should be unread")
		}

		if msg.PublicID() == "" {
			t.Fatal("expected non-empty public id")
		}
		if len(msg.PublicID()) != DefaultPublicIDLength {
			t.Errorf("expected public id length %d, got %d", DefaultPublicIDLength, len(msg.PublicID()))
		}
		if msg.PublicID() == msg.ID() {
			t.Error("public id must not equal internal id")
		}

		// Author sees it in sent, recipient in inbox
		sent, err := alice.Sent(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("list sent failed: %v", err)
		}
		if len(sent.Messages) != 1 {
			t.Errorf("expected 1 sent message, got %d", len(sent.Messages))
		}

		inbox, err := bob.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("list inbox failed: %v", err)
		}
		if len(inbox.Messages) != 1 {
			t.Errorf("expected 1 inbox message, got %d", len(inbox.Messages))
		}

		// Unread counter resynced for the recipient
		count, err := bob.UnreadCount(ctx)
		if err != nil {
			t.Fatalf("unread count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected unread count 1, got %d", count)
		}
	})

	t.Run("unknown recipient handle", func(t *testing.T) {
		_, err := alice.Send(ctx, SendRequest{
			RecipientHandle: "nobody",
			Subject:         "Hi",
			Body:            "anyone there?",
		})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}

		fieldErrs, ok := AsFieldErrors(err)
		if !ok {
			t.Fatalf("expected FieldErrors, got %T", err)
		}
		if len(fieldErrs) != 1 {
			t.Fatalf("expected 1 field error, got %d", len(fieldErrs))
		}
		fe := fieldErrs.On("recipient_handle")
		if fe == nil {
			t.Fatal("expected error on recipient_handle")
		}
		if fe.Message != "does not exist" {
			t.Errorf("expected message 'does not exist', got %q", fe.Message)
		}
	})

	t.Run("collects all field errors", func(t *testing.T) {
		_, err := alice.Send(ctx, SendRequest{
			RecipientHandle: "nobody",
			Subject:         "   ",
			Body:            strings.Repeat("x", DefaultMaxBodyLength+1),
		})
		fieldErrs, ok := AsFieldErrors(err)
		if !ok {
			t.Fatalf("expected FieldErrors, got %v", err)
		}
		if len(fieldErrs) != 3 {
			t.Fatalf("expected 3 field errors, got %d: %v", len(fieldErrs), fieldErrs)
		}
		for _, field := range []string{"recipient_handle", "subject", "body"} {
			if fieldErrs.On(field) == nil {
				t.Errorf("expected error on %q", field)
			}
		}
	})

	t.Run("nothing persisted on validation failure", func(t *testing.T) {
		before, _ := alice.Sent(ctx, ListOptions{})

		_, err := alice.Send(ctx, SendRequest{
			RecipientHandle: "bob",
			Subject:         "",
			Body:            "body",
		})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}

		after, _ := alice.Sent(ctx, ListOptions{})
		if after.Total != before.Total {
			t.Errorf("message count changed on failed send: %d -> %d", before.Total, after.Total)
		}
	})

	t.Run("send to self is allowed", func(t *testing.T) {
		msg := mustSend(t, alice, SendRequest{
			RecipientHandle: "alice",
			Subject:         "Note to self",
			Body:            "remember",
		})
		if msg.AuthorID() != msg.RecipientID() {
			t.Errorf("expected author == recipient, got %q and %q", msg.AuthorID(), msg.RecipientID())
		}
	})
}

// stubIDGenerator returns a fixed sequence of IDs, then fails.
type stubIDGenerator struct {
	ids []string
	err error
}

func (g *stubIDGenerator) Generate(context.Context) (string, error) {
	if len(g.ids) == 0 {
		if g.err != nil {
			return "", g.err
		}
		return "", errors.New("out of ids")
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id, nil
}

func TestSendPublicID(t *testing.T) {
	ctx := context.Background()

	t.Run("generation failure is fatal", func(t *testing.T) {
		svc := setupTestService(t, WithPublicIDGenerator(&stubIDGenerator{
			err: errors.New("entropy exhausted"),
		}))
		defer svc.Close(ctx)

		alice := svc.Client("u-alice")
		_, err := alice.Send(ctx, SendRequest{
			RecipientHandle: "bob",
			Subject:         "Hi",
			Body:            "body",
		})
		if !errors.Is(err, ErrPublicID) {
			t.Fatalf("expected ErrPublicID, got %v", err)
		}

		// Nothing was persisted
		inbox, _ := svc.Client("u-bob").Inbox(ctx, ListOptions{})
		if len(inbox.Messages) != 0 {
			t.Errorf("expected empty inbox, got %d messages", len(inbox.Messages))
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		svc := setupTestService(t, WithPublicIDGenerator(&stubIDGenerator{
			ids: []string{"same-id", "same-id", "fresh-id"},
		}))
		defer svc.Close(ctx)

		alice := svc.Client("u-alice")
		first := mustSend(t, alice, SendRequest{RecipientHandle: "bob", Subject: "1", Body: "b"})
		if first.PublicID() != "same-id" {
			t.Fatalf("expected public id 'same-id', got %q", first.PublicID())
		}

		// Second send collides once, then succeeds with the fresh ID.
		second := mustSend(t, alice, SendRequest{RecipientHandle: "bob", Subject: "2", Body: "b"})
		if second.PublicID() != "fresh-id" {
			t.Errorf("expected public id 'fresh-id', got %q", second.PublicID())
		}
	})

	t.Run("gives up after exhausting attempts", func(t *testing.T) {
		svc := setupTestService(t, WithPublicIDGenerator(&stubIDGenerator{
			ids: []string{"dup", "dup", "dup", "dup"},
		}))
		defer svc.Close(ctx)

		alice := svc.Client("u-alice")
		mustSend(t, alice, SendRequest{RecipientHandle: "bob", Subject: "1", Body: "b"})

		_, err := alice.Send(ctx, SendRequest{RecipientHandle: "bob", Subject: "2", Body: "b"})
		if !errors.Is(err, ErrPublicID) {
			t.Errorf("expected ErrPublicID after exhausted attempts, got %v", err)
		}
	})
}

func TestGetAuthorization(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := svc.Client("u-alice")
	bob := svc.Client("u-bob")
	carol := svc.Client("u-carol")

	msg := mustSend(t, alice, SendRequest{
		RecipientHandle: "bob",
		Subject:         "Private",
		Body:            "between us",
	})

	t.Run("author can get", func(t *testing.T) {
		got, err := alice.Get(ctx, msg.ID())
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.ID() != msg.ID() {
			t.Errorf("expected id %q, got %q", msg.ID(), got.ID())
		}
	})

	t.Run("recipient can get by public id", func(t *testing.T) {
		got, err := bob.GetByPublicID(ctx, msg.PublicID())
		if err != nil {
			t.Fatalf("get by public id failed: %v", err)
		}
		if got.ID() != msg.ID() {
			t.Errorf("expected id %q, got %q", msg.ID(), got.ID())
		}
	})

	t.Run("third party is rejected", func(t *testing.T) {
		if _, err := carol.Get(ctx, msg.ID()); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := carol.GetByPublicID(ctx, msg.PublicID()); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := alice.Get(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("operations fail when not connected", func(t *testing.T) {
		disconnected, _ := NewService(
			WithStore(memory.New()),
			WithDirectory(testAccounts()),
		)
		client := disconnected.Client("u-alice")
		if _, err := client.Get(ctx, msg.ID()); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if _, err := client.Send(ctx, SendRequest{RecipientHandle: "bob", Subject: "x", Body: "y"}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("invalid account id is rejected", func(t *testing.T) {
		client := svc.Client("bad:account")
		if _, err := client.Get(ctx, msg.ID()); !errors.Is(err, ErrInvalidAccountID) {
			t.Errorf("expected ErrInvalidAccountID, got %v", err)
		}
	})
}

func TestSetRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := svc.Client("u-alice")
	bob := svc.Client("u-bob")

	msg := mustSend(t, alice, SendRequest{
		RecipientHandle: "bob",
		Subject:         "Read me",
		Body:            "body",
	})

	t.Run("author cannot mark read", func(t *testing.T) {
		if _, err := alice.SetRead(ctx, msg.ID(), true); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("recipient marks read", func(t *testing.T) {
		updated, err := bob.SetRead(ctx, msg.ID(), true)
		if err != nil {
			t.Fatalf("set read failed: %v", err)
		}
		if !updated.IsRead() {
			t.Error("expected message to be read")
		}
		if updated.ReadAt() == nil {
			t.Error("expected non-nil ReadAt")
		}

		count, _ := bob.UnreadCount(ctx)
		if count != 0 {
			t.Errorf("expected unread count 0 after read, got %d", count)
		}
	})

	t.Run("recipient marks unread again", func(t *testing.T) {
		updated, err := bob.SetRead(ctx, msg.ID(), false)
		if err != nil {
			t.Fatalf("set unread failed: %v", err)
		}
		if updated.IsRead() {
			t.Error("expected message to be unread")
		}
		if updated.ReadAt() != nil {
			t.Error("expected nil ReadAt after marking unread")
		}

		count, _ := bob.UnreadCount(ctx)
		if count != 1 {
			t.Errorf("expected unread count 1 after unread, got %d", count)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		if _, err := bob.SetRead(ctx, msg.ID(), false); err != nil {
			t.Errorf("repeated set unread failed: %v", err)
		}
	})
}

func TestSetDeleted(t *testing.T) {
	ctx := context.Background()

	newMsg := func(t *testing.T, svc Service) Message {
		t.Helper()
		return mustSend(t, svc.Client("u-alice"), SendRequest{
			RecipientHandle: "bob",
			Subject:         "Ephemeral",
			Body:            "delete me",
		})
	}

	t.Run("author delete hides from author only", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		alice, bob := svc.Client("u-alice"), svc.Client("u-bob")
		msg := newMsg(t, svc)

		if _, err := alice.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		if _, err := alice.Get(ctx, msg.ID()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for author after delete, got %v", err)
		}
		sent, _ := alice.Sent(ctx, ListOptions{})
		if len(sent.Messages) != 0 {
			t.Errorf("expected empty sent list, got %d", len(sent.Messages))
		}

		// Recipient still sees the message
		if _, err := bob.Get(ctx, msg.ID()); err != nil {
			t.Errorf("recipient should still see message, got %v", err)
		}
		count, _ := bob.UnreadCount(ctx)
		if count != 1 {
			t.Errorf("expected unread count 1, got %d", count)
		}
	})

	t.Run("recipient delete updates unread count", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		bob := svc.Client("u-bob")
		msg := newMsg(t, svc)

		if _, err := bob.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		count, _ := bob.UnreadCount(ctx)
		if count != 0 {
			t.Errorf("expected unread count 0 after recipient delete, got %d", count)
		}
	})

	t.Run("delete is reversible before both delete", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		alice := svc.Client("u-alice")
		msg := newMsg(t, svc)

		if _, err := alice.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := alice.SetDeleted(ctx, msg.ID(), false); err != nil {
			t.Fatalf("undelete failed: %v", err)
		}
		if _, err := alice.Get(ctx, msg.ID()); err != nil {
			t.Errorf("expected message visible after undelete, got %v", err)
		}
	})

	t.Run("both parties delete removes permanently, author first", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		alice, bob := svc.Client("u-alice"), svc.Client("u-bob")
		msg := newMsg(t, svc)

		if _, err := alice.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("author delete failed: %v", err)
		}
		if _, err := bob.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("recipient delete failed: %v", err)
		}

		for name, client := range map[string]Messenger{"author": alice, "recipient": bob} {
			if _, err := client.Get(ctx, msg.ID()); !errors.Is(err, ErrNotFound) {
				t.Errorf("%s: expected ErrNotFound after hard delete, got %v", name, err)
			}
		}
		if _, err := bob.GetByPublicID(ctx, msg.PublicID()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound by public id after hard delete, got %v", err)
		}
	})

	t.Run("both parties delete removes permanently, recipient first", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		alice, bob := svc.Client("u-alice"), svc.Client("u-bob")
		msg := newMsg(t, svc)

		if _, err := bob.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("recipient delete failed: %v", err)
		}
		if _, err := alice.SetDeleted(ctx, msg.ID(), true); err != nil {
			t.Fatalf("author delete failed: %v", err)
		}

		if _, err := alice.Get(ctx, msg.ID()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after hard delete, got %v", err)
		}
	})

	t.Run("third party is rejected", func(t *testing.T) {
		svc := setupTestService(t)
		defer svc.Close(ctx)
		msg := newMsg(t, svc)

		carol := svc.Client("u-carol")
		if _, err := carol.SetDeleted(ctx, msg.ID(), true); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := svc.Client("u-alice")
	bob := svc.Client("u-bob")

	for i := 0; i < 5; i++ {
		mustSend(t, alice, SendRequest{
			RecipientHandle: "bob",
			Subject:         fmt.Sprintf("Message %d", i),
			Body:            "body",
		})
	}

	t.Run("paginates inbox", func(t *testing.T) {
		page, err := bob.Inbox(ctx, ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("inbox failed: %v", err)
		}
		if len(page.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(page.Messages))
		}
		if page.Total != 5 {
			t.Errorf("expected total 5, got %d", page.Total)
		}
		if !page.HasMore {
			t.Error("expected HasMore true")
		}

		last, err := bob.Inbox(ctx, ListOptions{Limit: 2, Offset: 4})
		if err != nil {
			t.Fatalf("inbox failed: %v", err)
		}
		if len(last.Messages) != 1 {
			t.Errorf("expected 1 message on last page, got %d", len(last.Messages))
		}
		if last.HasMore {
			t.Error("expected HasMore false on last page")
		}
	})

	t.Run("sent mirrors inbox for the author", func(t *testing.T) {
		sent, err := alice.Sent(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("sent failed: %v", err)
		}
		if sent.Total != 5 {
			t.Errorf("expected total 5, got %d", sent.Total)
		}
	})
}

// fakeEmailSender records email deliveries and optionally fails.
type fakeEmailSender struct {
	mu       sync.Mutex
	sent     []EmailMessage
	attempts int
	err      error
}

func (f *fakeEmailSender) Send(_ context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmailSender) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeEmailSender) messages() []EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EmailMessage(nil), f.sent...)
}

// fakePushSender records push deliveries and optionally fails.
type fakePushSender struct {
	mu     sync.Mutex
	pushed []PushMessage
	err    error
}

func (f *fakePushSender) Push(_ context.Context, msg PushMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, msg)
	return nil
}

func (f *fakePushSender) messages() []PushMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PushMessage(nil), f.pushed...)
}

// deliveryRecorder collects DeliveryResults keyed by channel.
type deliveryRecorder struct {
	mu      sync.Mutex
	results map[string]DeliveryResult
}

func newDeliveryRecorder() *deliveryRecorder {
	return &deliveryRecorder{results: make(map[string]DeliveryResult)}
}

func (r *deliveryRecorder) observe(_ context.Context, result DeliveryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.Channel] = result
}

func (r *deliveryRecorder) get(channel string) (DeliveryResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[channel]
	return res, ok
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to both channels", func(t *testing.T) {
		email := &fakeEmailSender{}
		push := &fakePushSender{}
		recorder := newDeliveryRecorder()
		svc := setupTestService(t,
			WithEmailSender(email),
			WithPushSender(push),
			WithDeliveryObserver(recorder.observe),
			WithAppName("ExampleApp"),
			WithBaseURL("https://example.com/"),
		)
		defer svc.Close(ctx)

		msg := mustSend(t, svc.Client("u-alice"), SendRequest{
			RecipientHandle: "bob",
			Subject:         "Dinner?",
			Body:            "Friday at 7",
		})

		emails := email.messages()
		if len(emails) != 1 {
			t.Fatalf("expected 1 email, got %d", len(emails))
		}
		if emails[0].To != "bob@example.com" {
			t.Errorf("expected email to bob@example.com, got %q", emails[0].To)
		}
		wantTitle := "ExampleApp message from alice: Dinner?"
		if emails[0].Subject != wantTitle {
			t.Errorf("expected subject %q, got %q", wantTitle, emails[0].Subject)
		}

		pushes := push.messages()
		if len(pushes) != 1 {
			t.Fatalf("expected 1 push, got %d", len(pushes))
		}
		if pushes[0].Destination != "push-token-bob" {
			t.Errorf("expected destination 'push-token-bob', got %q", pushes[0].Destination)
		}
		if pushes[0].Title != wantTitle {
			t.Errorf("expected title %q, got %q", wantTitle, pushes[0].Title)
		}
		if pushes[0].URLTitle != "Reply to alice" {
			t.Errorf("expected url title 'Reply to alice', got %q", pushes[0].URLTitle)
		}

		wantURL := "https://example.com/messages/" + msg.PublicID()
		if pushes[0].URL != wantURL {
			t.Errorf("expected url %q, got %q", wantURL, pushes[0].URL)
		}
		if msg.URL() != wantURL {
			t.Errorf("expected Message.URL %q, got %q", wantURL, msg.URL())
		}

		for _, channel := range []string{ChannelEmail, ChannelPush} {
			res, ok := recorder.get(channel)
			if !ok {
				t.Errorf("expected delivery result for %s", channel)
				continue
			}
			if res.Status != DeliveryDelivered {
				t.Errorf("%s: expected status delivered, got %q", channel, res.Status)
			}
		}
	})

	t.Run("email failure never fails send or push", func(t *testing.T) {
		email := &fakeEmailSender{err: errors.New("smtp unreachable")}
		push := &fakePushSender{}
		recorder := newDeliveryRecorder()
		svc := setupTestService(t,
			WithEmailSender(email),
			WithPushSender(push),
			WithDeliveryObserver(recorder.observe),
		)
		defer svc.Close(ctx)

		if _, err := svc.Client("u-alice").Send(ctx, SendRequest{
			RecipientHandle: "bob",
			Subject:         "Hi",
			Body:            "body",
		}); err != nil {
			t.Fatalf("send must succeed despite email failure, got %v", err)
		}

		res, _ := recorder.get(ChannelEmail)
		if res.Status != DeliveryFailed {
			t.Errorf("expected email status failed, got %q", res.Status)
		}
		if res.Err == nil {
			t.Error("expected email result to carry the error")
		}

		if len(push.messages()) != 1 {
			t.Errorf("expected push delivered despite email failure, got %d", len(push.messages()))
		}
	})

	t.Run("failed delivery is attempted once by default", func(t *testing.T) {
		email := &fakeEmailSender{err: errors.New("smtp unreachable")}
		svc := setupTestService(t, WithEmailSender(email))
		defer svc.Close(ctx)

		if _, err := svc.Client("u-alice").Send(ctx, SendRequest{
			RecipientHandle: "bob",
			Subject:         "Hi",
			Body:            "body",
		}); err != nil {
			t.Fatalf("send failed: %v", err)
		}

		// No automatic retries: the failure is recorded and dropped.
		if got := email.attemptCount(); got != 1 {
			t.Errorf("expected 1 delivery attempt, got %d", got)
		}
	})

	t.Run("retries when the host opts in", func(t *testing.T) {
		email := &fakeEmailSender{err: errors.New("smtp unreachable")}
		svc := setupTestService(t,
			WithEmailSender(email),
			WithNotifyRetry(retry.Config{
				MaxRetries:     2,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     time.Millisecond,
			}),
		)
		defer svc.Close(ctx)

		if _, err := svc.Client("u-alice").Send(ctx, SendRequest{
			RecipientHandle: "bob",
			Subject:         "Hi",
			Body:            "body",
		}); err != nil {
			t.Fatalf("send failed: %v", err)
		}

		if got := email.attemptCount(); got != 3 {
			t.Errorf("expected 3 delivery attempts with retries, got %d", got)
		}
	})

	t.Run("respects recipient preferences", func(t *testing.T) {
		email := &fakeEmailSender{}
		push := &fakePushSender{}
		recorder := newDeliveryRecorder()
		svc := setupTestService(t,
			WithEmailSender(email),
			WithPushSender(push),
			WithDeliveryObserver(recorder.observe),
		)
		defer svc.Close(ctx)

		// carol has every notification disabled
		mustSend(t, svc.Client("u-alice"), SendRequest{
			RecipientHandle: "carol",
			Subject:         "Quiet",
			Body:            "no notifications",
		})

		if len(email.messages()) != 0 {
			t.Errorf("expected no email, got %d", len(email.messages()))
		}
		if len(push.messages()) != 0 {
			t.Errorf("expected no push, got %d", len(push.messages()))
		}
		for _, channel := range []string{ChannelEmail, ChannelPush} {
			res, ok := recorder.get(channel)
			if !ok || res.Status != DeliverySkipped {
				t.Errorf("%s: expected skipped result, got %+v", channel, res)
			}
		}
	})

	t.Run("push requires a registered destination", func(t *testing.T) {
		push := &fakePushSender{}
		recorder := newDeliveryRecorder()
		svc := setupTestService(t,
			WithPushSender(push),
			WithDeliveryObserver(recorder.observe),
		)
		defer svc.Close(ctx)

		// alice has email enabled but no push destination
		mustSend(t, svc.Client("u-bob"), SendRequest{
			RecipientHandle: "alice",
			Subject:         "Re",
			Body:            "body",
		})

		if len(push.messages()) != 0 {
			t.Errorf("expected no push without destination, got %d", len(push.messages()))
		}
		if res, _ := recorder.get(ChannelPush); res.Status != DeliverySkipped {
			t.Errorf("expected push skipped, got %q", res.Status)
		}
	})
}
