package monitor

import (
	"context"
	"time"

	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/event"
)

// Snapshot is the current state of one subject as reported by the insight
// collaborator. The monitor reads only the generic fields; Data is passed
// through untouched.
type Snapshot struct {
	SubjectID         string
	TakenAt           time.Time
	RequiresAttention bool
	Signals           map[string]float64
	Flags             map[string]bool
	Data              any
}

// SnapshotSource produces snapshots on demand.
type SnapshotSource interface {
	CurrentSnapshot(ctx context.Context, subjectID string) (Snapshot, error)
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context, subjectID string) (Snapshot, error)

// CurrentSnapshot calls f.
func (f SnapshotFunc) CurrentSnapshot(ctx context.Context, subjectID string) (Snapshot, error) {
	return f(ctx, subjectID)
}

// ActionExecutor carries out a proactive action when its execution time
// arrives. The returned string becomes the action's result.
type ActionExecutor interface {
	Execute(ctx context.Context, action derived.ProactiveAction) (string, error)
}

// ExecutorFunc adapts a function to ActionExecutor.
type ExecutorFunc func(ctx context.Context, action derived.ProactiveAction) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, action derived.ProactiveAction) (string, error) {
	return f(ctx, action)
}

// EmitFunc injects an envelope into the core and returns it as stamped.
type EmitFunc func(ctx context.Context, env event.Envelope) event.Envelope

// CycleState is the state of one subject's monitoring cycle.
type CycleState int

const (
	// StateIdle is the resting state, and the reported state of a cycle that
	// was abandoned because the snapshot query failed.
	StateIdle CycleState = iota
	// StateQuerying means the snapshot source is being asked.
	StateQuerying
	// StateNoAction means no rule fired.
	StateNoAction
	// StateActionScheduled means at least one rule fired.
	StateActionScheduled
)

// String returns a human-readable name for the state.
func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateNoAction:
		return "no_action"
	case StateActionScheduled:
		return "action_scheduled"
	default:
		return "unknown"
	}
}

// CycleReport describes what one cycle did for one subject.
type CycleReport struct {
	SubjectID string
	State     CycleState
	Err       error                     // Set when the cycle was abandoned
	Actions   []derived.ProactiveAction // Actions scheduled this cycle
	Emitted   []event.Envelope          // system_proactive envelopes emitted this cycle
	Cooling   []string                  // Rules that fired but were still in cooldown
}
