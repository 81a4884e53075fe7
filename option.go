package privmsg

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/privmsg/retry"
	"github.com/rbaliyan/privmsg/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// Default message limits
	DefaultMaxSubjectLength = 150   // subject length in Unicode characters
	DefaultMaxBodyLength    = 65536 // body length in Unicode characters

	// Concurrency limits
	DefaultMaxConcurrentSends = 10 // max concurrent send operations per service

	// Shutdown
	DefaultShutdownTimeout = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// DefaultAppName is used in notification titles.
	DefaultAppName = "privmsg"
)

// options holds service configuration.
type options struct {
	store     store.Store
	directory Directory
	counters  CounterStore
	logger    *slog.Logger

	// Notification channels
	email            EmailSender
	push             PushSender
	deliveryObserver DeliveryObserverFunc
	notifyRetry      retry.Config

	// Rendering and links
	renderer Renderer
	baseURL  string
	appName  string

	// Public ID generation
	publicIDs PublicIDGenerator

	// Message limits
	maxSubjectLength int
	maxBodyLength    int

	// Concurrency limits
	maxConcurrentSends int

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool                    // If true, event publishing failures cause the operation to fail
	eventTransport        transport.Transport     // Event transport (optional, uses noop if nil)
	redisClient           redis.UniversalClient   // Redis client for event transport (optional, uses noop if nil)
	onEventPublishFailure EventPublishFailureFunc // Callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "MessageSent"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed to prevent cascading failures.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:             slog.Default(),
		appName:            DefaultAppName,
		notifyRetry:        retry.Config{MaxRetries: 0},
		maxSubjectLength:   DefaultMaxSubjectLength,
		maxBodyLength:      DefaultMaxBodyLength,
		maxConcurrentSends: DefaultMaxConcurrentSends,
		shutdownTimeout:    DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithDirectory sets the account directory (required).
// The directory resolves recipient handles and looks up notification
// preferences for dispatch.
func WithDirectory(d Directory) Option {
	return func(o *options) {
		if d != nil {
			o.directory = d
		}
	}
}

// WithCounterStore sets the external unread counter cell.
// Default is an in-memory cell; use counter.NewRedis for a shared one.
func WithCounterStore(c CounterStore) Option {
	return func(o *options) {
		if c != nil {
			o.counters = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// --- Notification Options ---

// WithEmailSender sets the email notification channel.
// Without a sender, email delivery is skipped for all recipients.
func WithEmailSender(s EmailSender) Option {
	return func(o *options) {
		if s != nil {
			o.email = s
		}
	}
}

// WithPushSender sets the push notification channel.
// Without a sender, push delivery is skipped for all recipients.
func WithPushSender(s PushSender) Option {
	return func(o *options) {
		if s != nil {
			o.push = s
		}
	}
}

// WithDeliveryObserver sets a callback invoked once per notification
// channel attempt with the delivery outcome. Use this for custom
// logging, metrics, or alerting on notification failures.
func WithDeliveryObserver(fn DeliveryObserverFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.deliveryObserver = fn
		}
	}
}

// WithNotifyRetry sets the retry policy for notification delivery.
// By default each channel is attempted exactly once and a failed
// delivery is recorded and dropped. Hosts that want automatic retries
// with backoff opt in here.
func WithNotifyRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.notifyRetry = cfg
	}
}

// --- Rendering and Link Options ---

// WithRenderer sets the body markup renderer used for notification
// payloads and Message.HTMLBody/PlaintextBody.
// Default treats bodies as plain text.
func WithRenderer(r Renderer) Option {
	return func(o *options) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithBaseURL sets the base URL for message deep links,
// e.g. "https://example.com". Message.URL() joins it with
// "/messages/<publicID>".
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithAppName sets the application name used in notification titles.
// Default is "privmsg".
func WithAppName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.appName = name
		}
	}
}

// --- Public ID Options ---

// WithPublicIDGenerator sets a custom public ID generator.
// Default generates random URL-safe short IDs.
func WithPublicIDGenerator(g PublicIDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.publicIDs = g
		}
	}
}

// --- Message Limit Options ---

// WithMaxSubjectLength sets the maximum subject length in Unicode characters.
// Default is 150.
func WithMaxSubjectLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSubjectLength = n
		}
	}
}

// WithMaxBodyLength sets the maximum body length in Unicode characters.
// Default is 65536.
func WithMaxBodyLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyLength = n
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentSends sets the maximum number of concurrent send operations.
// This prevents resource exhaustion when many messages are being sent simultaneously.
// Default is 10.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentSends = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight operations
// during graceful shutdown. When Close() is called, the service waits up to
// this duration for ongoing send operations to complete.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, spans are created for all message operations.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// When enabled, metrics are collected for all message operations.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
// This is a convenience function equivalent to calling
// WithTracing(true) and WithMetrics(true).
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry.
// Default is "privmsg".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures should
// cause the operation to fail. By default, event failures are logged but
// the operation succeeds (the message is still persisted).
//
// Set to true if your application requires guaranteed event delivery,
// for example when events drive critical downstream processes.
// Set to false (default) for fire-and-forget event publishing.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// When provided, events are published via the given transport for reliable delivery.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams for reliable delivery.
// If not provided, a noop transport is used (events are silently dropped).
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// This callback is invoked whenever an event fails to publish (and eventErrorsFatal is false).
// Use this for custom logging, metrics, or alerting on event failures.
//
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// getLimits returns the configured message limits.
func (o *options) getLimits() MessageLimits {
	return MessageLimits{
		MaxSubjectLength: o.maxSubjectLength,
		MaxBodyLength:    o.maxBodyLength,
	}
}
