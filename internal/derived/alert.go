package derived

import (
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/synapse/internal/event"
)

// Severity classifies how an alert should be presented.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeveritySuccess Severity = "success"
)

// Alert is a user-facing notice produced by a handler.
type Alert struct {
	ID            string
	Severity      Severity
	Title         string
	Message       string
	Priority      event.Priority
	CreatedAt     time.Time
	Actions       []string      // Suggested follow-up actions
	Dismissible   bool
	AutoDismiss   time.Duration // Zero means the alert never expires
	CorrelationID string
	SubjectID     string
}

// Expired reports whether the alert's AutoDismiss has elapsed at now.
func (a Alert) Expired(now time.Time) bool {
	return a.AutoDismiss > 0 && now.Sub(a.CreatedAt) >= a.AutoDismiss
}

type alertList struct {
	mu    sync.Mutex
	items []Alert
}

// RecordAlert appends a to the live list, filling in ID and CreatedAt when
// they are empty, and returns the stored alert.
func (s *Store) RecordAlert(a Alert) Alert {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	if a.Priority == "" {
		a.Priority = event.PriorityMedium
	}
	a.Actions = slices.Clone(a.Actions)

	s.alerts.mu.Lock()
	s.alerts.items = append(s.alerts.items, a)
	s.alerts.mu.Unlock()

	s.metrics.DerivedRecorded("alert")
	return a
}

// Alerts returns the live alerts in the order they were recorded. Expired
// alerts are removed from the store.
func (s *Store) Alerts() []Alert {
	now := s.now()

	s.alerts.mu.Lock()
	defer s.alerts.mu.Unlock()

	s.alerts.items = slices.DeleteFunc(s.alerts.items, func(a Alert) bool {
		return a.Expired(now)
	})
	return slices.Clone(s.alerts.items)
}

// DismissAlert removes the alert with id. Unknown ids are ignored.
func (s *Store) DismissAlert(id string) {
	s.alerts.mu.Lock()
	defer s.alerts.mu.Unlock()

	s.alerts.items = slices.DeleteFunc(s.alerts.items, func(a Alert) bool {
		return a.ID == id
	})
}
