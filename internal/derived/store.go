// Package derived holds the state that handlers derive from events: alerts,
// recommendations, and proactive actions.
//
// Each collection is guarded by its own mutex. Alerts expire lazily: an alert
// whose AutoDismiss duration has elapsed is dropped from every read, and the
// backing list is compacted as a side effect.
package derived

import (
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/synapse/internal/metrics"
)

// Store owns the derived-state collections.
type Store struct {
	alerts          alertList
	recommendations recommendationList
	actions         actionList

	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for creation times and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics enables counters for recorded items and action transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string { return uuid.NewString() }
