// Package dispatch delivers envelopes to their registered handlers.
//
// Each handler invocation is isolated: an error or panic from one handler is
// logged, counted, and reported to an optional failure hook, and the next
// handler still runs. Nothing a handler does escapes Dispatch.
package dispatch

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/metrics"
)

// TracerName is the instrumentation name used for dispatch spans.
const TracerName = "github.com/Iron-Ham/synapse/dispatch"

// SpanName is the name of the span wrapping one envelope's dispatch.
const SpanName = "synapse.dispatch"

// Dispatcher invokes the handlers registered for an envelope's kind.
type Dispatcher struct {
	registry  *event.Registry
	logger    *logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	onFailure func(*errors.HandlerError)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for handler failures.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithFailureHook registers fn to be called for every failed handler
// invocation, after it has been logged.
func WithFailureHook(fn func(*errors.HandlerError)) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// New creates a Dispatcher reading handlers from registry.
func New(registry *event.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   logging.NopLogger(),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("dispatch")
	return d
}

// Dispatch runs every handler registered for env.Kind, in registration
// order. Handlers receive a context carrying env and the delivery mode.
func (d *Dispatcher) Dispatch(ctx context.Context, env event.Envelope, delivery event.Delivery) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("synapse.kind", env.Kind.String()),
			attribute.String("synapse.priority", string(env.Priority)),
			attribute.String("synapse.correlation_id", env.CorrelationID),
			attribute.String("synapse.delivery", delivery.String()),
		),
	)
	defer span.End()

	handlers := d.registry.HandlersFor(env.Kind)
	span.SetAttributes(attribute.Int("synapse.handlers", len(handlers)))

	ctx = event.NewContext(ctx, env, delivery)
	failed := 0
	for _, reg := range handlers {
		if herr := d.invoke(ctx, env, reg); herr != nil {
			failed++
			span.RecordError(herr)
			d.report(env, delivery, herr)
		}
	}

	if failed > 0 {
		span.SetStatus(codes.Error, "handler failures")
	}
	d.metrics.Dispatched(env.Kind.String(), delivery.String(), time.Since(start))
	d.logger.Debug("envelope dispatched",
		logging.KeyKind, env.Kind.String(),
		logging.KeyCorrelation, env.CorrelationID,
		"delivery", delivery.String(),
		"handlers", len(handlers),
		"failed", failed,
	)
}

// invoke calls one handler, converting a returned error or a panic into a
// HandlerError.
func (d *Dispatcher) invoke(ctx context.Context, env event.Envelope, reg event.Registered) *errors.HandlerError {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = reg.Handler(ctx, env) })

	if r := pc.Recovered(); r != nil {
		return errors.NewHandlerPanic(env.Kind.String(), env.Source, reg.ID, r.Value, string(r.Stack)).
			WithCorrelation(env.CorrelationID)
	}
	if err != nil {
		return errors.NewHandlerError(env.Kind.String(), env.Source, reg.ID, err).
			WithCorrelation(env.CorrelationID)
	}
	return nil
}

func (d *Dispatcher) report(env event.Envelope, delivery event.Delivery, herr *errors.HandlerError) {
	log := d.logger.WithCorrelation(env.CorrelationID)
	args := []any{
		logging.KeyKind, env.Kind.String(),
		"source", env.Source,
		"subscription", herr.SubscriptionID,
		"delivery", delivery.String(),
		"error", herr.Cause.Error(),
	}

	reason := "error"
	if herr.Panicked() {
		reason = "panic"
		log.Error("handler panicked", append(args, "stack", herr.Stack)...)
	} else {
		log.Warn("handler returned error", args...)
	}
	d.metrics.HandlerFailed(env.Kind.String(), reason)

	if d.onFailure != nil {
		d.onFailure(herr)
	}
}
