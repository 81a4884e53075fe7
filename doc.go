// Package privmsg provides a private point-to-point messaging library for Go.
//
// Messages flow between exactly two accounts: an author and a recipient
// resolved from a public handle. The library validates message content,
// assigns each message an opaque URL-safe public identifier, keeps a
// per-account unread counter in sync, and dispatches email and push
// notifications according to recipient preferences. All functionality is
// exposed via interfaces, with pluggable storage backends (MongoDB,
// PostgreSQL, in-memory).
//
// # Basic Usage
//
//	// Create in-memory store for testing
//	store := memory.New()
//
//	// Directory resolving handles to accounts
//	dir := directory.NewStatic(
//	    &privmsg.Account{ID: "u1", Handle: "alice", Email: "alice@example.com", EmailNotifications: true},
//	    &privmsg.Account{ID: "u2", Handle: "bob"},
//	)
//
//	svc, err := privmsg.NewService(
//	    privmsg.WithStore(store),
//	    privmsg.WithDirectory(dir),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect initializes indexes/schema
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// Get a message client for an account
//	client := svc.Client("u1")
//
//	// Send a message
//	msg, err := client.Send(ctx, privmsg.SendRequest{
//	    RecipientHandle: "bob",
//	    Subject:         "Hello",
//	    Body:            "World",
//	})
//
// Validation collects every field failure at once; inspect them with
// AsFieldErrors:
//
//	if fieldErrs, ok := privmsg.AsFieldErrors(err); ok {
//	    for _, fe := range fieldErrs {
//	        fmt.Println(fe.Field, fe.Message)
//	    }
//	}
//
// # Message Lifecycle
//
//   - Send: validate, assign a public ID, persist, resync the unread
//     counter and notify the recipient
//   - Get/GetByPublicID: retrieve a message (parties only)
//   - SetRead: recipient marks a message read or unread
//   - SetDeleted: either party hides the message from their own view;
//     once both parties have deleted it, it is permanently removed
//   - Inbox/Sent: list messages, excluding those the account deleted
//   - UnreadCount: read the account's unread counter
//
// # Storage Backends
//
// The store package provides implementations for:
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - PostgreSQL (store/postgres) - accepts *sql.DB
//   - In-memory (store/memory) - for testing
//
// # Unread Counters
//
// Unread counts live in an external counter cell (counter.NewMemory or
// counter.NewRedis) and are always written as full recomputed values
// after every mutation, never incremented.
//
// # Notifications
//
// Provide EmailSender and PushSender implementations via WithEmailSender
// and WithPushSender. Channels are independent and delivery failures
// never fail the send; observe outcomes with WithDeliveryObserver.
//
// # Events
//
// privmsg provides typed events for message lifecycle notifications.
// Events use the github.com/rbaliyan/event/v3 library which supports
// multiple transports (Redis Streams, NATS, Kafka, in-memory channel).
//
// To enable events, pass WithRedisClient or WithEventTransport when creating the service:
//
//	svc, err := privmsg.NewService(
//	    privmsg.WithStore(store),
//	    privmsg.WithDirectory(dir),
//	    privmsg.WithRedisClient(redisClient),
//	)
//
// Events are automatically registered during Connect(). Access per-service
// events via the Events() method:
//
//	events := svc.Events()
//	events.MessageSent.Subscribe(ctx, handler)
//	events.MessageRead.Subscribe(ctx, handler)
//	events.MessageDeleted.Subscribe(ctx, handler)
//
// Available events:
//   - MessageSent - when a message is sent
//   - MessageRead - when a message is marked as read
//   - MessageDeleted - when a message is permanently deleted
package privmsg
