// Package scheduler buffers emitted envelopes and drains them in priority
// order on a fixed tick.
//
// A drain pass swaps the buffer out before dispatching, so envelopes emitted
// by handlers during a pass land in the fresh buffer and are dispatched on
// the next tick. Passes never overlap: a tick that fires while the previous
// pass is still running is skipped.
package scheduler

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/metrics"
)

// DefaultInterval is the drain tick used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Dispatcher delivers one envelope to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, env event.Envelope, delivery event.Delivery)
}

// Scheduler is the priority queue in front of the dispatcher.
type Scheduler struct {
	mu     sync.Mutex
	buffer []event.Envelope

	dispatcher Dispatcher
	interval   time.Duration
	logger     *logging.Logger
	metrics    *metrics.Metrics
	draining   atomic.Bool

	lifecycle sync.Mutex
	stopFunc  context.CancelFunc
	stopped   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the drain tick. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables queue depth and skipped-tick metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler that drains into d.
func New(d Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: d,
		interval:   DefaultInterval,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scheduler")
	return s
}

// Enqueue appends env to the buffer.
func (s *Scheduler) Enqueue(env event.Envelope) {
	s.mu.Lock()
	s.buffer = append(s.buffer, env)
	depth := len(s.buffer)
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
}

// Len returns the number of buffered envelopes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Interval returns the configured drain tick.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Tick runs one drain pass and returns the number of envelopes dispatched.
// It returns 0 without draining when another pass is in progress.
func (s *Scheduler) Tick(ctx context.Context) int {
	if !s.draining.CompareAndSwap(false, true) {
		s.metrics.TickSkipped("scheduler")
		s.logger.Debug("drain skipped, previous pass still running")
		return 0
	}
	defer s.draining.Store(false)

	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	s.metrics.SetQueueDepth(s.Len())

	slices.SortStableFunc(batch, compare)

	for _, env := range batch {
		s.dispatcher.Dispatch(ctx, env, event.Scheduled)
	}

	s.logger.Debug("drain complete", "dispatched", len(batch), "deferred", s.Len())
	return len(batch)
}

// compare orders envelopes by priority rank, then by timestamp. Equal keys
// keep their enqueue order because the sort is stable.
func compare(a, b event.Envelope) int {
	if d := a.Priority.Rank() - b.Priority.Rank(); d != 0 {
		return d
	}
	return a.Timestamp.Compare(b.Timestamp)
}

// Start launches the tick loop. It returns immediately; calling Start on a
// running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopFunc != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stopFunc = cancel
	s.stopped = make(chan struct{})

	go s.loop(ctx, s.stopped)
}

// Stop ends the tick loop and waits for an in-flight pass to finish.
// Buffered envelopes are kept. It is safe to call Stop without Start.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	cancel, stopped := s.stopFunc, s.stopped
	s.stopFunc, s.stopped = nil, nil
	s.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (s *Scheduler) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
