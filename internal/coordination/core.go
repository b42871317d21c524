package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/synapse/internal/correlation"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/dispatch"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/memory"
	"github.com/Iron-Ham/synapse/internal/metrics"
	"github.com/Iron-Ham/synapse/internal/monitor"
	"github.com/Iron-Ham/synapse/internal/scheduler"
)

// sourceName tags envelopes the core emits on its own behalf.
const sourceName = "coordination_core"

// Config holds the settings for creating a Core. Start from DefaultConfig:
// zero durations select the package defaults, except RuleCooldown where zero
// disables the cooldown.
type Config struct {
	TickInterval time.Duration

	// Snapshots feeds the proactive monitor. A nil source disables the
	// monitor entirely.
	Snapshots       monitor.SnapshotSource
	Executor        monitor.ActionExecutor
	MonitorInterval time.Duration
	ActionDelay     time.Duration
	RuleCooldown    time.Duration
	Subjects        []string

	MaxChains int
}

// DefaultConfig returns a Config with the default timings and no monitor.
func DefaultConfig() Config {
	return Config{
		TickInterval:    scheduler.DefaultInterval,
		MonitorInterval: monitor.DefaultInterval,
		ActionDelay:     monitor.DefaultActionDelay,
		RuleCooldown:    monitor.DefaultCooldown,
		MaxChains:       correlation.DefaultMaxChains,
	}
}

func (c Config) validate() error {
	var errs []error
	if c.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("tick interval must not be negative, got %v", c.TickInterval))
	}
	if c.MonitorInterval < 0 {
		errs = append(errs, fmt.Errorf("monitor interval must not be negative, got %v", c.MonitorInterval))
	}
	if c.ActionDelay < 0 {
		errs = append(errs, fmt.Errorf("action delay must not be negative, got %v", c.ActionDelay))
	}
	if c.RuleCooldown < 0 {
		errs = append(errs, fmt.Errorf("rule cooldown must not be negative, got %v", c.RuleCooldown))
	}
	if c.MaxChains < 0 {
		errs = append(errs, fmt.Errorf("max chains must not be negative, got %d", c.MaxChains))
	}
	return errors.Join(errs...)
}

// Core wires the event pipeline, derived state, learning memory, correlation
// tracking and the proactive monitor for one process. Create it with New;
// there is no global instance.
type Core struct {
	registry   *event.Registry
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	store      *derived.Store
	memory     *memory.Store
	tracker    *correlation.Tracker
	monitor    *monitor.Monitor // nil when no snapshot source is configured

	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a Core. It returns an error only for an invalid Config.
func New(cfg Config, opts ...Option) (*Core, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "coordination: invalid config")
	}

	cc := &coreConfig{}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.logger == nil {
		cc.logger = logging.NopLogger()
	}
	if cc.now == nil {
		cc.now = time.Now
	}

	c := &Core{
		registry: event.NewRegistry(),
		memory:   memory.NewStore(memory.WithClock(cc.now)),
		tracker:  correlation.NewTracker(cfg.MaxChains),
		store:    derived.NewStore(derived.WithClock(cc.now), derived.WithMetrics(cc.metrics)),
		logger:   cc.logger.WithComponent("core"),
		metrics:  cc.metrics,
		now:      cc.now,
	}

	c.dispatcher = dispatch.New(c.registry,
		dispatch.WithLogger(cc.logger),
		dispatch.WithMetrics(cc.metrics),
		dispatch.WithTracer(cc.tracer),
		dispatch.WithFailureHook(cc.failureHook),
	)
	c.scheduler = scheduler.New(c.dispatcher,
		scheduler.WithInterval(cfg.TickInterval),
		scheduler.WithLogger(cc.logger),
		scheduler.WithMetrics(cc.metrics),
	)

	if cfg.Snapshots != nil {
		monOpts := []monitor.Option{
			monitor.WithInterval(cfg.MonitorInterval),
			monitor.WithActionDelay(cfg.ActionDelay),
			monitor.WithCooldown(cfg.RuleCooldown),
			monitor.WithSubjects(cfg.Subjects...),
			monitor.WithRules(cc.rules...),
			monitor.WithClock(cc.now),
			monitor.WithLogger(cc.logger),
			monitor.WithMetrics(cc.metrics),
		}
		if cfg.Executor != nil {
			monOpts = append(monOpts, monitor.WithExecutor(cfg.Executor))
		}
		c.monitor = monitor.New(cfg.Snapshots, c.store, c.Emit, monOpts...)
	}

	return c, nil
}

// Start launches the drain tick and, when configured, the proactive monitor.
// It returns ErrCoreAlreadyStarted on a running core and ErrCoreStopped after
// Shutdown.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errors.ErrCoreStopped
	}
	if c.started {
		return errors.ErrCoreAlreadyStarted
	}
	c.started = true

	c.scheduler.Start(ctx)
	if c.monitor != nil {
		c.monitor.Start(ctx)
	}

	c.logger.Info("core started",
		"tick_interval", c.scheduler.Interval().String(),
		"monitor", c.monitor != nil,
	)
	return nil
}

// Shutdown stops both timers and disarms pending proactive actions. It is
// idempotent. Envelopes emitted afterwards are still buffered but never
// drained.
func (c *Core) Shutdown() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	// Reverse of start order.
	if c.monitor != nil {
		c.monitor.Stop()
	}
	c.scheduler.Stop()

	c.logger.Info("core stopped", "buffered", c.scheduler.Len())
}

// Running reports whether the core has been started and not shut down.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped
}

// Emit stamps env and hands it to the pipeline. It fills in the ID, a zero
// Timestamp, a missing Kind from the payload, and an empty CorrelationID
// (taken from the envelope being handled in ctx, or fresh otherwise). High
// and critical envelopes are dispatched before Emit returns; every envelope
// is also queued for the next drain. The stamped envelope is returned.
func (c *Core) Emit(ctx context.Context, env event.Envelope) event.Envelope {
	if ctx == nil {
		ctx = context.Background()
	}

	env.ID = uuid.NewString()
	if env.Timestamp.IsZero() {
		env.Timestamp = c.now()
	}
	if env.Kind == "" && env.Payload != nil {
		env.Kind = env.Payload.Kind()
	}
	switch {
	case env.Priority == "":
		env.Priority = event.PriorityMedium
	case !env.Priority.Valid():
		c.logger.Warn("unknown priority, using medium",
			logging.KeyKind, env.Kind.String(),
			"priority", string(env.Priority),
			"source", env.Source,
		)
		env.Priority = event.PriorityMedium
	}
	if env.CorrelationID == "" {
		if parent, ok := event.FromContext(ctx); ok {
			env.CorrelationID = c.tracker.Propagate(&parent)
		} else {
			env.CorrelationID = c.tracker.Propagate(nil)
		}
	}

	c.tracker.Record(env)
	c.metrics.Emitted(env.Kind.String(), string(env.Priority))

	if env.Priority.Urgent() {
		c.dispatcher.Dispatch(ctx, env, event.Immediate)
	}
	c.scheduler.Enqueue(env)
	return env
}

// Subscribe registers handler for kind. Registering the same handler twice
// invokes it twice.
func (c *Core) Subscribe(kind event.Kind, handler event.Handler) event.Subscription {
	return c.registry.Subscribe(kind, handler)
}

// SubscribePattern registers handler for every kind matching a glob pattern
// such as "neural_*".
func (c *Core) SubscribePattern(pattern string, handler event.Handler) (event.Subscription, error) {
	return c.registry.SubscribePattern(pattern, handler)
}

// Tick runs one drain pass and returns the number of envelopes dispatched.
// It does nothing after Shutdown.
func (c *Core) Tick() int {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return 0
	}
	return c.scheduler.Tick(context.Background())
}

// QueueLen returns the number of envelopes waiting for the next drain.
func (c *Core) QueueLen() int { return c.scheduler.Len() }

// RecordAlert stores a and announces it with an alert_triggered envelope.
// When called from a handler, the alert inherits the subject and correlation
// ID of the envelope being handled.
func (c *Core) RecordAlert(ctx context.Context, a derived.Alert) derived.Alert {
	parent, hasParent := event.FromContext(ctx)
	if hasParent {
		if a.CorrelationID == "" {
			a.CorrelationID = parent.CorrelationID
		}
		if a.SubjectID == "" {
			a.SubjectID = parent.SubjectID
		}
	}

	a = c.store.RecordAlert(a)
	c.announce(ctx, event.AlertTriggered{
		AlertID:  a.ID,
		Severity: string(a.Severity),
		Title:    a.Title,
	}, a.Priority, a.SubjectID, a.CorrelationID)
	return a
}

// Alerts returns the live alerts in insertion order.
func (c *Core) Alerts() []derived.Alert { return c.store.Alerts() }

// DismissAlert removes an alert. Unknown IDs are ignored.
func (c *Core) DismissAlert(id string) { c.store.DismissAlert(id) }

// RecordRecommendation stores r and announces it with a recommendation_made
// envelope, inheriting subject and correlation from ctx like RecordAlert.
func (c *Core) RecordRecommendation(ctx context.Context, r derived.Recommendation) derived.Recommendation {
	if parent, ok := event.FromContext(ctx); ok {
		if r.CorrelationID == "" {
			r.CorrelationID = parent.CorrelationID
		}
		if r.SubjectID == "" {
			r.SubjectID = parent.SubjectID
		}
	}

	r = c.store.RecordRecommendation(r)
	c.announce(ctx, event.RecommendationMade{
		RecommendationID: r.ID,
		Domain:           r.Domain,
		Confidence:       r.Confidence,
	}, r.Priority, r.SubjectID, r.CorrelationID)
	return r
}

// Recommendations returns the live recommendations in insertion order.
func (c *Core) Recommendations() []derived.Recommendation { return c.store.Recommendations() }

// ExecuteRecommendation executes and removes an actionable recommendation.
// It returns ErrRecommendationNotFound or ErrRecommendationNotActionable
// and leaves the list unchanged on failure.
func (c *Core) ExecuteRecommendation(id string) error {
	r, err := c.store.ExecuteRecommendation(id)
	if err != nil {
		return err
	}
	c.logger.WithCorrelation(r.CorrelationID).Info("recommendation executed",
		"recommendation_id", r.ID,
		"domain", r.Domain,
	)
	return nil
}

// ProactiveActions returns every proactive action in every state.
func (c *Core) ProactiveActions() []derived.ProactiveAction { return c.store.ProactiveActions() }

// CancelAction vetoes a pending proactive action so it never executes.
func (c *Core) CancelAction(id, reason string) error {
	a, err := c.store.CancelAction(id, reason)
	if err != nil {
		return err
	}
	c.logger.WithSubject(a.SubjectID).WithCorrelation(a.CorrelationID).Info("proactive action cancelled",
		"action_id", a.ID,
		"reason", reason,
	)
	return nil
}

// Remember stores value under key, replacing any previous value.
func (c *Core) Remember(key string, value any) { c.memory.Remember(key, value) }

// Recall returns the value last remembered under key.
func (c *Core) Recall(key string) (any, bool) { return c.memory.Recall(key) }

// Memory returns the learning memory.
func (c *Core) Memory() *memory.Store { return c.memory }

// Watch adds a subject to the proactive monitor. It does nothing when the
// monitor is disabled.
func (c *Core) Watch(subjectID string) {
	if c.monitor != nil {
		c.monitor.Watch(subjectID)
	}
}

// Unwatch removes a subject from the proactive monitor.
func (c *Core) Unwatch(subjectID string) {
	if c.monitor != nil {
		c.monitor.Unwatch(subjectID)
	}
}

// RunMonitorCycle runs one proactive monitoring cycle now and returns its
// per-subject reports. It returns nil when the monitor is disabled, a
// cycle is already running or the core has been shut down.
func (c *Core) RunMonitorCycle(ctx context.Context) []monitor.CycleReport {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if c.monitor == nil || stopped {
		return nil
	}
	return c.monitor.RunCycle(ctx)
}

// Chain returns the envelopes recorded for a correlation ID, oldest first.
func (c *Core) Chain(correlationID string) []correlation.Link {
	return c.tracker.Chain(correlationID)
}

func (c *Core) announce(ctx context.Context, p event.Payload, priority event.Priority, subjectID, corrID string) {
	env := event.New(p, priority, sourceName).ForSubject(subjectID).WithCorrelation(corrID)
	c.Emit(ctx, env)
}
