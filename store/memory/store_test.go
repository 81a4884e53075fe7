package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rbaliyan/privmsg/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return s
}

func createMessage(t *testing.T, s *Store, publicID string) store.Message {
	t.Helper()
	msg, err := s.Create(context.Background(), store.MessageData{
		PublicID:    publicID,
		AuthorID:    "author1",
		RecipientID: "recipient1",
		Subject:     "Test",
		Body:        "Test body",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return msg
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := s.Get(ctx, "any"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	t.Run("assigns id and timestamps", func(t *testing.T) {
		msg := createMessage(t, s, "pub-1")
		if msg.GetID() == "" {
			t.Error("expected non-empty id")
		}
		if msg.GetPublicID() != "pub-1" {
			t.Errorf("expected public id 'pub-1', got %q", msg.GetPublicID())
		}
		if msg.GetCreatedAt().IsZero() {
			t.Error("expected non-zero created at")
		}
		if msg.GetIsRead() {
			t.Error("new message must be unread")
		}
	})

	t.Run("rejects empty public id", func(t *testing.T) {
		_, err := s.Create(ctx, store.MessageData{AuthorID: "a", RecipientID: "b"})
		if !errors.Is(err, store.ErrEmptyPublicID) {
			t.Errorf("expected ErrEmptyPublicID, got %v", err)
		}
	})

	t.Run("rejects duplicate public id", func(t *testing.T) {
		createMessage(t, s, "pub-dup")
		_, err := s.Create(ctx, store.MessageData{
			PublicID:    "pub-dup",
			AuthorID:    "a",
			RecipientID: "b",
		})
		if !errors.Is(err, store.ErrDuplicateEntry) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	msg := createMessage(t, s, "pub-get")

	t.Run("by id", func(t *testing.T) {
		got, err := s.Get(ctx, msg.GetID())
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.GetID() != msg.GetID() {
			t.Errorf("expected id %q, got %q", msg.GetID(), got.GetID())
		}
	})

	t.Run("by public id", func(t *testing.T) {
		got, err := s.GetByPublicID(ctx, "pub-get")
		if err != nil {
			t.Fatalf("get by public id failed: %v", err)
		}
		if got.GetID() != msg.GetID() {
			t.Errorf("expected id %q, got %q", msg.GetID(), got.GetID())
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetByPublicID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		if _, err := s.Get(ctx, ""); !errors.Is(err, store.ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestSetRead(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	msg := createMessage(t, s, "pub-read")

	updated, err := s.SetRead(ctx, msg.GetID(), true)
	if err != nil {
		t.Fatalf("set read failed: %v", err)
	}
	if !updated.GetIsRead() {
		t.Error("expected read flag set")
	}
	if updated.GetReadAt() == nil {
		t.Error("expected read timestamp")
	}

	updated, err = s.SetRead(ctx, msg.GetID(), false)
	if err != nil {
		t.Fatalf("set unread failed: %v", err)
	}
	if updated.GetIsRead() {
		t.Error("expected read flag cleared")
	}
	if updated.GetReadAt() != nil {
		t.Error("expected nil read timestamp")
	}
}

func TestSetDeleted(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	msg := createMessage(t, s, "pub-del")

	updated, err := s.SetDeleted(ctx, msg.GetID(), true, true)
	if err != nil {
		t.Fatalf("set deleted by author failed: %v", err)
	}
	if !updated.GetDeletedByAuthor() || updated.GetDeletedByRecipient() {
		t.Errorf("expected only author flag, got author=%v recipient=%v",
			updated.GetDeletedByAuthor(), updated.GetDeletedByRecipient())
	}

	updated, err = s.SetDeleted(ctx, msg.GetID(), false, true)
	if err != nil {
		t.Fatalf("set deleted by recipient failed: %v", err)
	}
	if !updated.GetDeletedByAuthor() || !updated.GetDeletedByRecipient() {
		t.Error("expected both flags set")
	}
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	msg := createMessage(t, s, "pub-hard")

	if err := s.HardDelete(ctx, msg.GetID()); err != nil {
		t.Fatalf("hard delete failed: %v", err)
	}

	if _, err := s.Get(ctx, msg.GetID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after hard delete, got %v", err)
	}
	if _, err := s.GetByPublicID(ctx, "pub-hard"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected public id index cleaned, got %v", err)
	}

	// Public ID is reusable after removal
	if _, err := s.Create(ctx, store.MessageData{
		PublicID:    "pub-hard",
		AuthorID:    "a",
		RecipientID: "b",
	}); err != nil {
		t.Errorf("expected public id reusable after hard delete, got %v", err)
	}

	if err := s.HardDelete(ctx, msg.GetID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeated hard delete, got %v", err)
	}
}

func TestCountUnread(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	m1 := createMessage(t, s, "pub-c1")
	m2 := createMessage(t, s, "pub-c2")
	createMessage(t, s, "pub-c3")

	count, err := s.CountUnread(ctx, "recipient1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 unread, got %d", count)
	}

	// Read messages do not count
	if _, err := s.SetRead(ctx, m1.GetID(), true); err != nil {
		t.Fatalf("set read failed: %v", err)
	}
	// Messages deleted by the recipient do not count
	if _, err := s.SetDeleted(ctx, m2.GetID(), false, true); err != nil {
		t.Fatalf("set deleted failed: %v", err)
	}

	count, _ = s.CountUnread(ctx, "recipient1")
	if count != 1 {
		t.Errorf("expected 1 unread, got %d", count)
	}

	count, _ = s.CountUnread(ctx, "nobody")
	if count != 0 {
		t.Errorf("expected 0 unread for unknown recipient, got %d", count)
	}
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	for i := 0; i < 4; i++ {
		createMessage(t, s, fmt.Sprintf("pub-list-%d", i))
	}

	t.Run("inbox excludes recipient-deleted", func(t *testing.T) {
		list, err := s.ListInbox(ctx, "recipient1", store.ListOptions{})
		if err != nil {
			t.Fatalf("list inbox failed: %v", err)
		}
		if list.Total != 4 {
			t.Fatalf("expected total 4, got %d", list.Total)
		}

		if _, err := s.SetDeleted(ctx, list.Messages[0].GetID(), false, true); err != nil {
			t.Fatalf("set deleted failed: %v", err)
		}
		list, _ = s.ListInbox(ctx, "recipient1", store.ListOptions{})
		if list.Total != 3 {
			t.Errorf("expected total 3 after delete, got %d", list.Total)
		}
	})

	t.Run("sent excludes author-deleted", func(t *testing.T) {
		list, err := s.ListSent(ctx, "author1", store.ListOptions{})
		if err != nil {
			t.Fatalf("list sent failed: %v", err)
		}
		before := list.Total

		if _, err := s.SetDeleted(ctx, list.Messages[0].GetID(), true, true); err != nil {
			t.Fatalf("set deleted failed: %v", err)
		}
		list, _ = s.ListSent(ctx, "author1", store.ListOptions{})
		if list.Total != before-1 {
			t.Errorf("expected total %d after delete, got %d", before-1, list.Total)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		list, err := s.ListInbox(ctx, "recipient1", store.ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("list inbox failed: %v", err)
		}
		if len(list.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(list.Messages))
		}
		if !list.HasMore {
			t.Error("expected HasMore true")
		}
	})

	t.Run("ascending sort", func(t *testing.T) {
		list, err := s.ListInbox(ctx, "recipient1", store.ListOptions{SortOrder: store.SortAsc})
		if err != nil {
			t.Fatalf("list inbox failed: %v", err)
		}
		for i := 1; i < len(list.Messages); i++ {
			if list.Messages[i].GetCreatedAt().Before(list.Messages[i-1].GetCreatedAt()) {
				t.Error("expected ascending creation time order")
			}
		}
	})
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	msg := createMessage(t, s, "pub-conc")

	// Concurrent flips must not race or lose the message.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(read bool) {
			defer wg.Done()
			if _, err := s.SetRead(ctx, msg.GetID(), read); err != nil {
				t.Errorf("concurrent set read failed: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if _, err := s.Get(ctx, msg.GetID()); err != nil {
		t.Errorf("message lost after concurrent mutations: %v", err)
	}
}
