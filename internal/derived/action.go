package derived

import (
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
)

// ActionState is the lifecycle state of a proactive action.
type ActionState string

const (
	ActionPending   ActionState = "pending"
	ActionExecuted  ActionState = "executed"
	ActionFailed    ActionState = "failed"
	ActionCancelled ActionState = "cancelled"
)

// ProactiveAction is an action the monitor scheduled for a future time.
// It leaves the pending state exactly once and is never re-armed.
type ProactiveAction struct {
	ID            string
	Kind          string
	Title         string
	Description   string
	Priority      event.Priority
	CreatedAt     time.Time
	ExecutionTime time.Time
	State         ActionState
	Executed      bool
	Result        string
	Rule          string // Decision rule that produced the action
	SubjectID     string
	CorrelationID string
}

// Pending reports whether the action has not yet run.
func (a ProactiveAction) Pending() bool { return a.State == ActionPending }

type actionList struct {
	mu    sync.Mutex
	items []ProactiveAction
}

// RecordProactiveAction stores a as a pending action and returns it.
func (s *Store) RecordProactiveAction(a ProactiveAction) ProactiveAction {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.ExecutionTime.IsZero() {
		a.ExecutionTime = a.CreatedAt
	}
	if a.Priority == "" {
		a.Priority = event.PriorityMedium
	}
	a.State = ActionPending
	a.Executed = false
	a.Result = ""

	s.actions.mu.Lock()
	s.actions.items = append(s.actions.items, a)
	s.actions.mu.Unlock()

	s.metrics.ActionTransition(string(ActionPending))
	return a
}

// ProactiveActions returns every action regardless of state, in recording
// order.
func (s *Store) ProactiveActions() []ProactiveAction {
	s.actions.mu.Lock()
	defer s.actions.mu.Unlock()
	return slices.Clone(s.actions.items)
}

// ProactiveAction returns the action with id.
func (s *Store) ProactiveAction(id string) (ProactiveAction, bool) {
	s.actions.mu.Lock()
	defer s.actions.mu.Unlock()

	i := s.actions.index(id)
	if i < 0 {
		return ProactiveAction{}, false
	}
	return s.actions.items[i], true
}

// CompleteAction marks a pending action as executed with result.
func (s *Store) CompleteAction(id, result string) (ProactiveAction, error) {
	return s.transition(id, ActionExecuted, result)
}

// FailAction marks a pending action as failed; result carries the error.
func (s *Store) FailAction(id, result string) (ProactiveAction, error) {
	return s.transition(id, ActionFailed, result)
}

// CancelAction vetoes a pending action before it runs.
func (s *Store) CancelAction(id, reason string) (ProactiveAction, error) {
	return s.transition(id, ActionCancelled, reason)
}

func (s *Store) transition(id string, to ActionState, result string) (ProactiveAction, error) {
	s.actions.mu.Lock()
	defer s.actions.mu.Unlock()

	i := s.actions.index(id)
	if i < 0 {
		return ProactiveAction{}, errors.Wrapf(errors.ErrActionNotFound, "%s %s", to, id)
	}

	a := &s.actions.items[i]
	if !a.Pending() {
		return *a, errors.Wrapf(errors.ErrActionNotPending, "%s %s (state %s)", to, id, a.State)
	}

	a.State = to
	a.Executed = to == ActionExecuted
	a.Result = result

	s.metrics.ActionTransition(string(to))
	return *a, nil
}

func (l *actionList) index(id string) int {
	return slices.IndexFunc(l.items, func(a ProactiveAction) bool { return a.ID == id })
}
