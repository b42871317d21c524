package coordination

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/metrics"
	"github.com/Iron-Ham/synapse/internal/monitor"
)

// coreConfig holds optional collaborators for a Core.
type coreConfig struct {
	logger      *logging.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	rules       []monitor.Rule
	failureHook func(*errors.HandlerError)
}

// Option configures a Core.
type Option func(*coreConfig)

// WithLogger sets the logger shared by every component of the core.
func WithLogger(l *logging.Logger) Option {
	return func(c *coreConfig) { c.logger = l }
}

// WithMetrics registers the core's collectors on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *coreConfig) { c.metrics = m }
}

// WithTracer sets the tracer used for dispatch spans.
// If nil, the global OpenTelemetry provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(c *coreConfig) { c.tracer = t }
}

// WithClock overrides the time source for envelope timestamps, derived-state
// expiry and monitor cooldowns.
func WithClock(now func() time.Time) Option {
	return func(c *coreConfig) { c.now = now }
}

// WithRules appends decision rules for the proactive monitor.
func WithRules(rules ...monitor.Rule) Option {
	return func(c *coreConfig) { c.rules = append(c.rules, rules...) }
}

// WithFailureHook is called after every failed handler invocation, once the
// failure has been logged.
func WithFailureHook(fn func(*errors.HandlerError)) Option {
	return func(c *coreConfig) { c.failureHook = fn }
}
