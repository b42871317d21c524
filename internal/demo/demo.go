// Package demo provides illustrative collaborators for running the core from
// the command line: a snapshot source fed by scenario files, a small set of
// handlers that turn data into insights, alerts and recommendations, default
// monitor rules, and an executor that only logs.
//
// None of this is meant to be clinically meaningful; it exists so that
// `synapse run` exercises every path through the core.
package demo

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/synapse/internal/coordination"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/monitor"
	"github.com/Iron-Ham/synapse/internal/scenario"
)

const sourceName = "demo_insights"

// SnapshotSource serves snapshots from scenario specs. Subjects without a
// snapshot spec report ErrSnapshotUnavailable.
type SnapshotSource struct {
	mu    sync.RWMutex
	specs map[string]scenario.SnapshotSpec
	now   func() time.Time
}

// NewSnapshotSource creates a source seeded with specs.
func NewSnapshotSource(specs map[string]scenario.SnapshotSpec) *SnapshotSource {
	s := &SnapshotSource{specs: make(map[string]scenario.SnapshotSpec), now: time.Now}
	maps.Copy(s.specs, specs)
	return s
}

// Set replaces the snapshot spec for one subject.
func (s *SnapshotSource) Set(subjectID string, spec scenario.SnapshotSpec) {
	s.mu.Lock()
	s.specs[subjectID] = spec
	s.mu.Unlock()
}

// CurrentSnapshot implements monitor.SnapshotSource.
func (s *SnapshotSource) CurrentSnapshot(ctx context.Context, subjectID string) (monitor.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return monitor.Snapshot{}, err
	}
	s.mu.RLock()
	spec, ok := s.specs[subjectID]
	s.mu.RUnlock()
	if !ok {
		return monitor.Snapshot{}, errors.ErrSnapshotUnavailable
	}
	return monitor.Snapshot{
		SubjectID:         subjectID,
		TakenAt:           s.now(),
		RequiresAttention: spec.RequiresAttention,
		Signals:           maps.Clone(spec.Signals),
		Flags:             maps.Clone(spec.Flags),
		Data:              spec,
	}, nil
}

// Rules returns the monitor rules used by `synapse run`.
func Rules() []monitor.Rule {
	return []monitor.Rule{
		monitor.AttentionRule("breathing_exercise", "Take a two-minute breathing break"),
		monitor.ThresholdRule("fatigue", "fatigue", 0.75, monitor.Decision{
			Schedule:    true,
			ActionKind:  "suggest_rest",
			Title:       "Recovery looks low",
			Description: "Suggest a lighter session today",
			Priority:    event.PriorityHigh,
		}),
		monitor.FlagRule("missed_workout", "missed_workout", monitor.Decision{
			Title: "Workout missed",
		}),
	}
}

// Executor carries out proactive actions by logging them.
type Executor struct {
	logger *logging.Logger
	count  atomic.Int64
}

// NewExecutor creates an Executor. A nil logger discards output.
func NewExecutor(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{logger: logger.WithComponent("demo_executor")}
}

// Execute implements monitor.ActionExecutor.
func (e *Executor) Execute(_ context.Context, a derived.ProactiveAction) (string, error) {
	e.count.Add(1)
	e.logger.WithSubject(a.SubjectID).WithCorrelation(a.CorrelationID).Info("executing proactive action",
		"action_id", a.ID,
		"action_kind", a.Kind,
	)
	return fmt.Sprintf("delivered %s", a.Kind), nil
}

// Executed returns how many actions have been executed.
func (e *Executor) Executed() int64 { return e.count.Load() }

// Stats counts what the demo handlers observed.
type Stats struct {
	Delivered atomic.Int64 // every delivery seen by the wildcard handler
	Immediate atomic.Int64 // deliveries made on the immediate path
}

// Install registers the demo handlers on core:
//
//   - data_updated emits an insight_generated envelope in the same chain
//   - insight_generated records a warning alert when attention is required,
//     otherwise an actionable recommendation
//   - neural_data_received remembers the last signal quality per channel
//   - every kind is counted in the returned Stats
func Install(core *coordination.Core) (*Stats, error) {
	stats := &Stats{}

	core.Subscribe(event.KindDataUpdated, func(ctx context.Context, env event.Envelope) error {
		p, ok := env.Payload.(event.DataUpdated)
		if !ok {
			return fmt.Errorf("unexpected payload %T", env.Payload)
		}
		scores := make(map[string]float64, len(p.Fields))
		attention := false
		for k, v := range p.Fields {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			scores[k] = f
			if baseline, ok := core.Recall("baseline_" + p.Dataset); ok {
				if b, ok := toFloat(baseline); ok && f < b*0.8 {
					attention = true
				}
			}
		}
		core.Emit(ctx, event.New(event.InsightGenerated{
			Topic:             p.Dataset,
			Summary:           fmt.Sprintf("%d %s fields updated", len(scores), p.Dataset),
			RequiresAttention: attention,
			Scores:            scores,
		}, event.PriorityMedium, sourceName).ForSubject(env.SubjectID))
		return nil
	})

	core.Subscribe(event.KindInsightGenerated, func(ctx context.Context, env event.Envelope) error {
		p, ok := env.Payload.(event.InsightGenerated)
		if !ok {
			return fmt.Errorf("unexpected payload %T", env.Payload)
		}
		if p.RequiresAttention {
			core.RecordAlert(ctx, derived.Alert{
				Severity:    derived.SeverityWarning,
				Title:       fmt.Sprintf("%s below baseline", p.Topic),
				Message:     p.Summary,
				Dismissible: true,
				AutoDismiss: 5 * time.Minute,
			})
			return nil
		}
		core.RecordRecommendation(ctx, derived.Recommendation{
			Domain:     p.Topic,
			Title:      fmt.Sprintf("Review your %s trend", p.Topic),
			Confidence: 0.6,
			Actionable: true,
		})
		return nil
	})

	core.Subscribe(event.KindNeuralDataReceived, func(_ context.Context, env event.Envelope) error {
		p, ok := env.Payload.(event.NeuralDataReceived)
		if !ok {
			return fmt.Errorf("unexpected payload %T", env.Payload)
		}
		core.Remember("quality_"+p.Channel, p.Quality)
		return nil
	})

	if _, err := core.SubscribePattern("*", func(ctx context.Context, _ event.Envelope) error {
		stats.Delivered.Add(1)
		if event.DeliveryFromContext(ctx) == event.Immediate {
			stats.Immediate.Add(1)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
