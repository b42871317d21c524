package demo

import (
	"context"
	"testing"

	"github.com/Iron-Ham/synapse/internal/coordination"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/monitor"
	"github.com/Iron-Ham/synapse/internal/scenario"
)

func newCore(t *testing.T) (*coordination.Core, *Stats) {
	t.Helper()
	core, err := coordination.New(coordination.DefaultConfig())
	if err != nil {
		t.Fatalf("coordination.New() error = %v", err)
	}
	t.Cleanup(core.Shutdown)

	stats, err := Install(core)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	return core, stats
}

func TestInstall_BelowBaselineRaisesAlert(t *testing.T) {
	core, stats := newCore(t)
	core.Remember("baseline_hrv", 52)

	root := core.Emit(context.Background(), event.New(event.DataUpdated{
		Dataset: "hrv",
		Fields:  map[string]any{"rmssd": 31.0},
	}, event.PriorityMedium, "sync").ForSubject("u1"))

	core.Tick() // data_updated → insight_generated
	core.Tick() // insight_generated → alert

	alerts := core.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != derived.SeverityWarning || alerts[0].SubjectID != "u1" {
		t.Errorf("alert = %+v", alerts[0])
	}
	if alerts[0].CorrelationID != root.CorrelationID {
		t.Error("alert should belong to the data_updated chain")
	}
	if len(core.Recommendations()) != 0 {
		t.Error("no recommendation expected when attention is required")
	}
	if stats.Delivered.Load() != 2 {
		t.Errorf("Delivered = %d, want 2", stats.Delivered.Load())
	}
}

func TestInstall_WithinBaselineRecommends(t *testing.T) {
	core, _ := newCore(t)
	core.Remember("baseline_sleep", 7)

	core.Emit(context.Background(), event.New(event.DataUpdated{
		Dataset: "sleep",
		Fields:  map[string]any{"hours": 7, "note": "ok"},
	}, event.PriorityMedium, "sync"))
	core.Tick()
	core.Tick()

	recs := core.Recommendations()
	if len(recs) != 1 || !recs[0].Actionable || recs[0].Domain != "sleep" {
		t.Fatalf("Recommendations() = %+v", recs)
	}
	if len(core.Alerts()) != 0 {
		t.Error("no alert expected within baseline")
	}
}

func TestInstall_NeuralQualityRemembered(t *testing.T) {
	core, stats := newCore(t)

	core.Emit(context.Background(), event.New(event.NeuralDataReceived{
		Channel: "eeg",
		Quality: 0.9,
	}, event.PriorityCritical, "neural"))

	if v, ok := core.Recall("quality_eeg"); !ok || v != 0.9 {
		t.Errorf("Recall(quality_eeg) = %v, %v; want 0.9 from the immediate delivery", v, ok)
	}
	if stats.Immediate.Load() != 1 {
		t.Errorf("Immediate = %d, want 1", stats.Immediate.Load())
	}
}

func TestSnapshotSource(t *testing.T) {
	src := NewSnapshotSource(map[string]scenario.SnapshotSpec{
		"u1": {RequiresAttention: true, Signals: map[string]float64{"fatigue": 0.8}},
	})

	snap, err := src.CurrentSnapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CurrentSnapshot() error = %v", err)
	}
	if !snap.RequiresAttention || snap.Signals["fatigue"] != 0.8 || snap.SubjectID != "u1" {
		t.Errorf("snapshot = %+v", snap)
	}

	snap.Signals["fatigue"] = 0
	again, _ := src.CurrentSnapshot(context.Background(), "u1")
	if again.Signals["fatigue"] != 0.8 {
		t.Error("snapshots must not share signal maps")
	}

	if _, err := src.CurrentSnapshot(context.Background(), "ghost"); !errors.Is(err, errors.ErrSnapshotUnavailable) {
		t.Errorf("unknown subject error = %v, want ErrSnapshotUnavailable", err)
	}

	src.Set("ghost", scenario.SnapshotSpec{})
	if _, err := src.CurrentSnapshot(context.Background(), "ghost"); err != nil {
		t.Errorf("after Set, error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.CurrentSnapshot(ctx, "u1"); err == nil {
		t.Error("cancelled context should fail the query")
	}
}

func TestRules(t *testing.T) {
	snap := monitor.Snapshot{
		RequiresAttention: true,
		Signals:           map[string]float64{"fatigue": 0.9},
		Flags:             map[string]bool{"missed_workout": true},
	}

	fired := 0
	for _, r := range Rules() {
		if _, ok := r.Decide(snap); ok {
			fired++
		}
	}
	if fired != 3 {
		t.Errorf("fired %d rules, want 3", fired)
	}

	quiet := monitor.Snapshot{Signals: map[string]float64{"fatigue": 0.2}}
	for _, r := range Rules() {
		if _, ok := r.Decide(quiet); ok {
			t.Errorf("rule %s fired on a quiet snapshot", r.Name)
		}
	}
}

func TestExecutor(t *testing.T) {
	e := NewExecutor(nil)
	result, err := e.Execute(context.Background(), derived.ProactiveAction{ID: "a1", Kind: "suggest_rest"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "delivered suggest_rest" {
		t.Errorf("result = %q", result)
	}
	if e.Executed() != 1 {
		t.Errorf("Executed() = %d, want 1", e.Executed())
	}
}
