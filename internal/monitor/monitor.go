// Package monitor runs the proactive monitoring loop.
//
// On its own timer, independent of the dispatch tick, the Monitor asks a
// SnapshotSource for the current state of every watched subject, applies its
// decision rules, and for each rule that fires emits a system_proactive
// envelope and optionally schedules a proactive action. Scheduled actions run
// on a timer through an optional ActionExecutor unless they are cancelled
// first.
package monitor

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/synapse/internal/correlation"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/metrics"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultActionDelay = 4 * time.Second
	DefaultCooldown    = time.Minute

	// NoExecutorResult is recorded for actions that ran without an executor.
	NoExecutorResult = "no executor"

	sourceName = "proactive_monitor"
)

// Monitor is the proactive monitoring loop.
type Monitor struct {
	source   SnapshotSource
	store    *derived.Store
	emit     EmitFunc
	executor ActionExecutor
	rules    []Rule

	interval    time.Duration
	actionDelay time.Duration
	cooldown    time.Duration
	now         func() time.Time
	logger      *logging.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	subjects []string
	limiters map[string]*rate.Limiter

	running atomic.Bool

	timersMu sync.Mutex
	timers   map[string]*time.Timer
	execWG   sync.WaitGroup
	baseCtx  context.Context
	halted   bool

	lifecycle sync.Mutex
	stopFunc  context.CancelFunc
	stopped   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the cycle period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithActionDelay sets the delay used when a decision does not specify one.
func WithActionDelay(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.actionDelay = d
		}
	}
}

// WithCooldown sets the minimum time between two firings of the same rule
// for the same subject. Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.cooldown = d
		}
	}
}

// WithExecutor sets the collaborator that carries out proactive actions.
func WithExecutor(e ActionExecutor) Option {
	return func(m *Monitor) { m.executor = e }
}

// WithRules appends decision rules.
func WithRules(rules ...Rule) Option {
	return func(m *Monitor) { m.rules = append(m.rules, rules...) }
}

// WithSubjects watches the given subjects from the start.
func WithSubjects(subjects ...string) Option {
	return func(m *Monitor) {
		for _, s := range subjects {
			if !slices.Contains(m.subjects, s) {
				m.subjects = append(m.subjects, s)
			}
		}
	}
}

// WithClock overrides the time source used for action times and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the monitor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics enables cycle and skipped-tick metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// New creates a Monitor. Actions are recorded in store and envelopes are
// injected through emit.
func New(src SnapshotSource, store *derived.Store, emit EmitFunc, opts ...Option) *Monitor {
	m := &Monitor{
		source:      src,
		store:       store,
		emit:        emit,
		interval:    DefaultInterval,
		actionDelay: DefaultActionDelay,
		cooldown:    DefaultCooldown,
		now:         time.Now,
		logger:      logging.NopLogger(),
		limiters:    make(map[string]*rate.Limiter),
		timers:      make(map[string]*time.Timer),
		baseCtx:     context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("monitor")
	return m
}

// Interval returns the cycle period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Watch adds a subject to the set queried each cycle.
func (m *Monitor) Watch(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.subjects, subjectID) {
		m.subjects = append(m.subjects, subjectID)
	}
}

// Unwatch removes a subject. Its pending actions are left to run.
func (m *Monitor) Unwatch(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = slices.DeleteFunc(m.subjects, func(s string) bool { return s == subjectID })
}

// Subjects returns the watched subjects in the order they were added.
func (m *Monitor) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.subjects)
}

// RunCycle queries every watched subject once and returns a report per
// subject. It returns nil without doing anything when a cycle is already in
// progress.
func (m *Monitor) RunCycle(ctx context.Context) []CycleReport {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.TickSkipped("monitor")
		m.logger.Debug("cycle skipped, previous cycle still running")
		return nil
	}
	defer m.running.Store(false)

	if m.Halted() {
		m.logger.Debug("cycle skipped, monitor stopped")
		return nil
	}

	subjects := m.Subjects()
	reports := make([]CycleReport, 0, len(subjects))
	for _, subject := range subjects {
		reports = append(reports, m.runSubject(ctx, subject))
	}
	return reports
}

func (m *Monitor) runSubject(ctx context.Context, subjectID string) CycleReport {
	log := m.logger.WithSubject(subjectID)
	report := CycleReport{SubjectID: subjectID, State: StateQuerying}

	snap, err := m.querySnapshot(ctx, subjectID)
	if err != nil {
		report.State = StateIdle
		report.Err = errors.NewSnapshotError(subjectID, err)
		m.metrics.MonitorCycle("error")
		log.Warn("snapshot query failed, cycle abandoned", "error", err.Error())
		return report
	}
	if snap.SubjectID == "" {
		snap.SubjectID = subjectID
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = m.now()
	}

	for _, rule := range m.rules {
		decision, fired := m.decide(log, rule, snap)
		if !fired {
			continue
		}
		if !m.allow(subjectID, rule.Name) {
			report.Cooling = append(report.Cooling, rule.Name)
			log.Debug("rule in cooldown", "rule", rule.Name)
			continue
		}
		m.act(ctx, &report, rule.Name, decision)
	}

	if len(report.Emitted) > 0 {
		report.State = StateActionScheduled
		m.metrics.MonitorCycle("action_scheduled")
	} else {
		report.State = StateNoAction
		m.metrics.MonitorCycle("no_action")
	}
	return report
}

// querySnapshot asks the source for a snapshot, turning a panic into an
// error.
func (m *Monitor) querySnapshot(ctx context.Context, subjectID string) (snap Snapshot, err error) {
	var pc panics.Catcher
	pc.Try(func() { snap, err = m.source.CurrentSnapshot(ctx, subjectID) })
	if r := pc.Recovered(); r != nil {
		return Snapshot{}, fmt.Errorf("panic: %v", r.Value)
	}
	return snap, err
}

// decide evaluates one rule. A rule that panics is treated as not firing.
func (m *Monitor) decide(log *logging.Logger, rule Rule, snap Snapshot) (d Decision, fired bool) {
	var pc panics.Catcher
	pc.Try(func() { d, fired = rule.Decide(snap) })
	if r := pc.Recovered(); r != nil {
		log.Error("rule panicked", "rule", rule.Name, "panic", fmt.Sprint(r.Value), "stack", string(r.Stack))
		return Decision{}, false
	}
	return d, fired
}

// act applies one fired decision: schedule the action if requested, then
// emit the system_proactive envelope describing it.
func (m *Monitor) act(ctx context.Context, report *CycleReport, ruleName string, d Decision) {
	priority := d.Priority
	if !priority.Valid() {
		priority = event.PriorityMedium
	}
	corrID := correlation.NewID()

	payload := event.SystemProactive{
		ActionKind: d.ActionKind,
		Rule:       ruleName,
		Title:      d.Title,
	}

	if d.Schedule {
		delay := d.Delay
		if delay <= 0 {
			delay = m.actionDelay
		}
		now := m.now()
		action := m.store.RecordProactiveAction(derived.ProactiveAction{
			Kind:          d.ActionKind,
			Title:         d.Title,
			Description:   d.Description,
			Priority:      priority,
			CreatedAt:     now,
			ExecutionTime: now.Add(delay),
			Rule:          ruleName,
			SubjectID:     report.SubjectID,
			CorrelationID: corrID,
		})
		m.arm(action.ID, delay)
		payload.ActionID = action.ID
		report.Actions = append(report.Actions, action)

		m.logger.WithSubject(report.SubjectID).WithCorrelation(corrID).Info("proactive action scheduled",
			"rule", ruleName,
			"action_id", action.ID,
			"action_kind", d.ActionKind,
			"delay_ms", delay.Milliseconds(),
		)
	}

	env := event.New(payload, priority, sourceName).
		ForSubject(report.SubjectID).
		WithCorrelation(corrID)
	if m.emit != nil {
		env = m.emit(ctx, env)
	}
	report.Emitted = append(report.Emitted, env)
}

func (m *Monitor) allow(subjectID, rule string) bool {
	if m.cooldown <= 0 {
		return true
	}
	key := subjectID + "\x00" + rule

	m.mu.Lock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.cooldown), 1)
		m.limiters[key] = lim
	}
	m.mu.Unlock()

	return lim.AllowN(m.now(), 1)
}

// arm starts the execution timer for a pending action. After Stop the
// action is left pending and no timer is armed.
func (m *Monitor) arm(actionID string, delay time.Duration) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()

	if m.halted {
		m.logger.Debug("action not armed, monitor stopped", "action_id", actionID)
		return
	}
	m.execWG.Add(1)
	m.timers[actionID] = time.AfterFunc(delay, func() {
		defer m.execWG.Done()
		m.timersMu.Lock()
		delete(m.timers, actionID)
		ctx := m.baseCtx
		m.timersMu.Unlock()
		m.execute(ctx, actionID)
	})
}

// PendingTimers returns the number of armed execution timers.
func (m *Monitor) PendingTimers() int {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	return len(m.timers)
}

func (m *Monitor) execute(ctx context.Context, actionID string) {
	action, ok := m.store.ProactiveAction(actionID)
	if !ok {
		return
	}
	log := m.logger.WithSubject(action.SubjectID).WithCorrelation(action.CorrelationID)
	if !action.Pending() {
		log.Debug("proactive action skipped", "action_id", actionID, "state", string(action.State))
		return
	}

	var err error
	if m.executor == nil {
		_, err = m.store.CompleteAction(actionID, NoExecutorResult)
	} else if result, execErr := m.runExecutor(ctx, action); execErr != nil {
		log.Warn("proactive action failed", "action_id", actionID, "error", execErr.Error())
		_, err = m.store.FailAction(actionID, execErr.Error())
	} else {
		_, err = m.store.CompleteAction(actionID, result)
	}

	if err != nil {
		// Cancelled while the executor was running.
		log.Info("proactive action result discarded", "action_id", actionID, "error", err.Error())
		return
	}
	log.Info("proactive action finished", "action_id", actionID)
}

// runExecutor calls the executor, turning a panic into an error.
func (m *Monitor) runExecutor(ctx context.Context, action derived.ProactiveAction) (result string, err error) {
	var pc panics.Catcher
	pc.Try(func() { result, err = m.executor.Execute(ctx, action) })
	if r := pc.Recovered(); r != nil {
		m.logger.WithSubject(action.SubjectID).Error("executor panicked",
			"action_id", action.ID,
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack),
		)
		return "", fmt.Errorf("panic: %v", r.Value)
	}
	return result, err
}

// Halted reports whether Stop has been called since the last Start.
func (m *Monitor) Halted() bool {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	return m.halted
}

// Start launches the cycle loop. It returns immediately; calling Start on a
// running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stopFunc != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.stopFunc = cancel
	m.stopped = make(chan struct{})

	m.timersMu.Lock()
	m.baseCtx = ctx
	m.halted = false
	m.timersMu.Unlock()

	go m.loop(ctx, m.stopped)
}

// Stop ends the cycle loop and disarms every execution timer that has not
// fired yet. Disarmed actions stay pending. Stop waits for running
// executions to finish. Cycles run after Stop do nothing until the next
// Start.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel, stopped := m.stopFunc, m.stopped
	m.stopFunc, m.stopped = nil, nil
	m.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}

	m.timersMu.Lock()
	for id, t := range m.timers {
		if t.Stop() {
			m.execWG.Done()
		}
		delete(m.timers, id)
	}
	m.baseCtx = context.Background()
	m.halted = true
	m.timersMu.Unlock()

	m.execWG.Wait()
}

func (m *Monitor) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}
