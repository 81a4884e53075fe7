package privmsg

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/privmsg"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	sendLatency metric.Float64Histogram
	sendCount   metric.Int64Counter
	sendErrors  metric.Int64Counter

	getLatency metric.Float64Histogram
	getCount   metric.Int64Counter
	getErrors  metric.Int64Counter

	updateLatency metric.Float64Histogram
	updateCount   metric.Int64Counter
	updateErrors  metric.Int64Counter

	notifyCount  metric.Int64Counter
	notifyErrors metric.Int64Counter

	unreadSyncCount metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.sendLatency, err = meter.Float64Histogram(
		"privmsg.send.duration",
		metric.WithDescription("Duration of send operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.sendCount, err = meter.Int64Counter(
		"privmsg.send.count",
		metric.WithDescription("Number of messages sent"),
	)
	if err != nil {
		return err
	}

	o.sendErrors, err = meter.Int64Counter(
		"privmsg.send.errors",
		metric.WithDescription("Number of send errors"),
	)
	if err != nil {
		return err
	}

	o.getLatency, err = meter.Float64Histogram(
		"privmsg.get.duration",
		metric.WithDescription("Duration of get operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.getCount, err = meter.Int64Counter(
		"privmsg.get.count",
		metric.WithDescription("Number of get operations"),
	)
	if err != nil {
		return err
	}

	o.getErrors, err = meter.Int64Counter(
		"privmsg.get.errors",
		metric.WithDescription("Number of get errors"),
	)
	if err != nil {
		return err
	}

	o.updateLatency, err = meter.Float64Histogram(
		"privmsg.update.duration",
		metric.WithDescription("Duration of read/delete flag updates"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.updateCount, err = meter.Int64Counter(
		"privmsg.update.count",
		metric.WithDescription("Number of flag updates"),
	)
	if err != nil {
		return err
	}

	o.updateErrors, err = meter.Int64Counter(
		"privmsg.update.errors",
		metric.WithDescription("Number of flag update errors"),
	)
	if err != nil {
		return err
	}

	o.notifyCount, err = meter.Int64Counter(
		"privmsg.notify.count",
		metric.WithDescription("Number of notification delivery attempts"),
	)
	if err != nil {
		return err
	}

	o.notifyErrors, err = meter.Int64Counter(
		"privmsg.notify.errors",
		metric.WithDescription("Number of notification delivery failures"),
	)
	if err != nil {
		return err
	}

	o.unreadSyncCount, err = meter.Int64Counter(
		"privmsg.unread_sync.count",
		metric.WithDescription("Number of unread counter resyncs"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// The returned function records the final error and ends the span.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordSend records send operation metrics.
func (o *otelInstrumentation) recordSend(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.sendLatency.Record(ctx, duration.Seconds())
	o.sendCount.Add(ctx, 1)
	if err != nil {
		o.sendErrors.Add(ctx, 1)
	}
}

// recordGet records get operation metrics.
func (o *otelInstrumentation) recordGet(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.getLatency.Record(ctx, duration.Seconds())
	o.getCount.Add(ctx, 1)
	if err != nil {
		o.getErrors.Add(ctx, 1)
	}
}

// recordUpdate records flag update metrics.
func (o *otelInstrumentation) recordUpdate(ctx context.Context, duration time.Duration, operation string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	o.updateLatency.Record(ctx, duration.Seconds(), attrs)
	o.updateCount.Add(ctx, 1, attrs)
	if err != nil {
		o.updateErrors.Add(ctx, 1, attrs)
	}
}

// recordNotify records notification delivery metrics.
func (o *otelInstrumentation) recordNotify(ctx context.Context, channel string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
	)

	o.notifyCount.Add(ctx, 1, attrs)
	if err != nil {
		o.notifyErrors.Add(ctx, 1, attrs)
	}
}

// recordUnreadSync records a completed unread counter resync.
func (o *otelInstrumentation) recordUnreadSync(ctx context.Context, count int64) {
	if !o.metricsEnabled {
		return
	}
	o.unreadSyncCount.Add(ctx, 1)
}
