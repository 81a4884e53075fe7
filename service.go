package privmsg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/privmsg/counter"
	"github.com/rbaliyan/privmsg/store"
	"golang.org/x/sync/semaphore"
)

// Type aliases for commonly used store types.
// These allow users to work with the privmsg package without importing store directly.
type (
	ListOptions = store.ListOptions
	SortOrder   = store.SortOrder
)

// Re-exported sort order constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc
)

// Service manages the private message system (server-side).
// It handles connections to storage and creates per-account clients.
type Service interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections after draining in-flight sends.
	Close(ctx context.Context) error
	// Client returns a message client for the given account.
	// The returned client shares the service's connections.
	// Connection state is checked lazily on each operation; if the
	// service is not connected, operations return ErrNotConnected.
	Client(accountID string) Messenger
	// SyncUnread recomputes an account's unread count from storage and
	// writes it to the counter cell. Normally this happens automatically
	// after every mutation; use this to repair a counter out of band.
	SyncUnread(ctx context.Context, accountID string) error
	// Events returns per-service event instances for subscribing and publishing.
	// Each service has its own events bound to its own event bus, enabling
	// independent event routing and parallel testing.
	Events() *ServiceEvents
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store     store.Store
	directory Directory
	counters  CounterStore
	renderer  Renderer
	publicIDs PublicIDGenerator
	logger    *slog.Logger
	opts      *options
	state     int32 // stateDisconnected, stateConnecting, or stateConnected
	otel      *otelInstrumentation
	sendSem   *semaphore.Weighted // Limits concurrent sends to prevent resource exhaustion
	eventBus  *event.Bus          // Event bus for publishing events
	events    *ServiceEvents      // Per-service event instances
}

// NewService creates a new private message service.
// Call Connect() to establish connections to backends.
//
// A store and a directory are required. The counter cell defaults to an
// in-memory one; production deployments sharing counts across processes
// should provide counter.NewRedis via WithCounterStore.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}
	if o.directory == nil {
		return nil, ErrDirectoryRequired
	}
	if o.counters == nil {
		o.counters = counter.NewMemory()
	}
	if o.renderer == nil {
		o.renderer = plainRenderer{}
	}
	if o.publicIDs == nil {
		o.publicIDs = NewPublicIDGenerator(DefaultPublicIDLength)
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:     o.store,
		directory: o.directory,
		counters:  o.counters,
		renderer:  o.renderer,
		publicIDs: o.publicIDs,
		logger:    o.logger,
		opts:      o,
		otel:      otelInstr,
		sendSem:   semaphore.NewWeighted(int64(o.maxConcurrentSends)),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Use three-state to prevent Client() operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("privmsg service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "privmsg"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	// Per-service events are unique per service instance.
	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// Close closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight send operations to complete (graceful shutdown).
	// After setting state to disconnected, no new sends can start because
	// checkAccess fails. Acquiring all semaphore slots waits out the rest.
	s.logger.Info("waiting for in-flight operations to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.sendSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentSends)); err != nil {
		s.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(int64(s.opts.maxConcurrentSends))
		s.logger.Info("all in-flight operations completed")
	}

	// Close event bus only if using a real transport. The noop bus holds
	// no resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Client returns a message client for the given account.
func (s *service) Client(accountID string) Messenger {
	return &messenger{
		accountID:      accountID,
		service:        s,
		validAccountID: isValidAccountID(accountID),
	}
}

// SyncUnread recomputes an account's unread count and writes it to the
// counter cell.
func (s *service) SyncUnread(ctx context.Context, accountID string) error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	if !isValidAccountID(accountID) {
		return ErrInvalidAccountID
	}

	count, err := s.store.CountUnread(ctx, accountID)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}
	if err := s.counters.Set(ctx, accountID, count); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	s.otel.recordUnreadSync(ctx, count)
	return nil
}

// afterPersist runs the post-write reconciliation that follows every
// successful persisted mutation: when both parties have deleted the
// message it is permanently removed, and the recipient's unread counter
// is resynced in all cases.
//
// The hard delete is absorbing and order-independent; a concurrent
// remove by the other party's mutation is tolerated.
func (s *service) afterPersist(ctx context.Context, msg store.Message) (removed bool, err error) {
	if msg.GetDeletedByAuthor() && msg.GetDeletedByRecipient() {
		if err := s.store.HardDelete(ctx, msg.GetID()); err != nil && !store.IsNotFound(err) {
			return false, fmt.Errorf("hard delete: %w", err)
		}
		removed = true
		s.logger.Info("message removed after deletion by both parties",
			"message_id", msg.GetID())
		if err := publishEvent(ctx, s, s.events.MessageDeleted, "MessageDeleted", msg.GetID(), MessageDeletedEvent{
			MessageID: msg.GetID(),
			PublicID:  msg.GetPublicID(),
			DeletedAt: time.Now().UTC(),
		}); err != nil {
			return true, err
		}
	}

	s.syncUnread(ctx, msg.GetRecipientID())
	return removed, nil
}

// isValidAccountID checks if an account ID is valid.
// Valid account IDs are non-empty and contain only safe characters.
// This prevents counter key injection and other security issues.
func isValidAccountID(accountID string) bool {
	if accountID == "" {
		return false
	}
	// Allow alphanumeric, hyphen, underscore, period, at-sign
	// Disallow: *, :, /, \, spaces, and control characters
	for _, c := range accountID {
		if c == '*' || c == ':' || c == '/' || c == '\\' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}
