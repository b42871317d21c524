// Package internal contains integration tests that verify the packages work
// together: a scenario replayed into a core with the demo collaborators,
// driven by manual ticks and a fake clock.
package internal

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/synapse/internal/coordination"
	"github.com/Iron-Ham/synapse/internal/demo"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/metrics"
	"github.com/Iron-Ham/synapse/internal/monitor"
	"github.com/Iron-Ham/synapse/internal/scenario"
	"github.com/Iron-Ham/synapse/internal/testutil"
)

const recoveryScenario = `
name: recovery
watch: [u1]
memory:
  baseline_hrv: 52
snapshots:
  u1:
    requires_attention: true
    signals: {fatigue: 0.82}
steps:
  - kind: data_updated
    subject: u1
    source: sync
    payload: {dataset: hrv, fields: {rmssd: 31}}
  - after: 30s
    kind: data_updated
    subject: u2
    source: sync
    payload: {dataset: sleep, fields: {hours: 8}}
  - after: 45s
    kind: neural_data_received
    priority: critical
    payload: {channel: eeg, quality: 0.7}
`

func newIntegrationCore(t *testing.T, sc *scenario.Scenario, clock *testutil.Clock) (*coordination.Core, *demo.Stats, *metrics.Metrics) {
	t.Helper()

	m := metrics.New()
	cfg := coordination.DefaultConfig()
	cfg.Snapshots = demo.NewSnapshotSource(sc.Snapshots)
	cfg.Executor = demo.NewExecutor(nil)
	cfg.ActionDelay = time.Hour
	cfg.Subjects = sc.Watch

	core, err := coordination.New(cfg,
		coordination.WithClock(clock.Now),
		coordination.WithMetrics(m),
		coordination.WithRules(demo.Rules()...),
	)
	if err != nil {
		t.Fatalf("coordination.New() error = %v", err)
	}
	t.Cleanup(core.Shutdown)

	stats, err := demo.Install(core)
	if err != nil {
		t.Fatalf("demo.Install() error = %v", err)
	}
	for k, v := range sc.Memory {
		core.Remember(k, v)
	}
	return core, stats, m
}

// TestScenarioReplay replays a scenario through the core and checks every
// kind of derived state it should produce.
func TestScenarioReplay(t *testing.T) {
	sc, err := scenario.Parse([]byte(recoveryScenario))
	if err != nil {
		t.Fatalf("scenario.Parse() error = %v", err)
	}
	clock := testutil.NewClock(time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC))
	core, stats, m := newIntegrationCore(t, sc, clock)

	player := scenario.NewPlayer(sc, scenario.WithSleep(func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}))
	roots, err := player.Play(context.Background(), core)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if len(roots) != 3 {
		t.Fatalf("Play() emitted %d envelopes, want 3", len(roots))
	}

	// The critical envelope was handled before Play returned.
	if q, ok := core.Recall("quality_eeg"); !ok || q != 0.7 {
		t.Errorf("Recall(quality_eeg) = %v, %v; want 0.7", q, ok)
	}

	// data_updated → insight_generated → alert or recommendation
	core.Tick()
	core.Tick()

	alerts := core.Alerts()
	if len(alerts) != 1 || alerts[0].SubjectID != "u1" || alerts[0].Severity != derived.SeverityWarning {
		t.Fatalf("Alerts() = %+v, want one warning for u1", alerts)
	}
	if alerts[0].CorrelationID != roots[0].CorrelationID {
		t.Error("alert should carry the correlation ID of the u1 data update")
	}
	if !alerts[0].CreatedAt.Equal(clock.Now()) {
		t.Errorf("alert CreatedAt = %v, want the fake clock time %v", alerts[0].CreatedAt, clock.Now())
	}

	recs := core.Recommendations()
	if len(recs) != 1 || recs[0].SubjectID != "u2" || recs[0].Domain != "sleep" {
		t.Fatalf("Recommendations() = %+v, want one sleep recommendation for u2", recs)
	}
	if err := core.ExecuteRecommendation(recs[0].ID); err != nil {
		t.Errorf("ExecuteRecommendation() error = %v", err)
	}
	if err := core.ExecuteRecommendation(recs[0].ID); !errors.Is(err, errors.ErrRecommendationNotFound) {
		t.Errorf("second ExecuteRecommendation() error = %v, want ErrRecommendationNotFound", err)
	}

	var kinds []event.Kind
	for _, link := range core.Chain(roots[0].CorrelationID) {
		kinds = append(kinds, link.Kind)
	}
	want := []event.Kind{event.KindDataUpdated, event.KindInsightGenerated, event.KindAlertTriggered}
	if len(kinds) < len(want) {
		t.Fatalf("Chain() kinds = %v, want prefix %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("Chain()[%d] = %s, want %s", i, kinds[i], k)
		}
	}

	// The alert expires after its five minute auto-dismiss window.
	clock.Advance(5 * time.Minute)
	if got := len(core.Alerts()); got != 0 {
		t.Errorf("Alerts() after TTL = %d, want 0", got)
	}

	if stats.Delivered.Load() == 0 {
		t.Error("wildcard handler saw no deliveries")
	}
	if !hasSamples(t, m, "synapse_envelopes_emitted_total") {
		t.Error("emitted counter has no samples")
	}
}

// TestMonitorCycleWithScenarioSnapshots runs the proactive monitor against
// the scenario's snapshots.
func TestMonitorCycleWithScenarioSnapshots(t *testing.T) {
	sc, err := scenario.Parse([]byte(recoveryScenario))
	if err != nil {
		t.Fatalf("scenario.Parse() error = %v", err)
	}
	clock := testutil.NewClock(time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC))
	core, _, m := newIntegrationCore(t, sc, clock)

	proactive := 0
	core.Subscribe(event.KindSystemProactive, func(context.Context, event.Envelope) error {
		proactive++
		return nil
	})

	reports := core.RunMonitorCycle(context.Background())
	if len(reports) != 1 || reports[0].State != monitor.StateActionScheduled {
		t.Fatalf("RunMonitorCycle() = %+v, want one report with scheduled actions", reports)
	}

	actions := core.ProactiveActions()
	if len(actions) != 2 {
		t.Fatalf("ProactiveActions() = %+v, want attention and fatigue actions", actions)
	}
	for _, a := range actions {
		if !a.Pending() || !a.ExecutionTime.Equal(clock.Now().Add(time.Hour)) {
			t.Errorf("action %s: pending=%v execution=%v", a.Kind, a.Pending(), a.ExecutionTime)
		}
	}

	// suggest_rest is high priority and was delivered immediately
	if proactive != 1 {
		t.Errorf("immediate proactive deliveries = %d, want 1", proactive)
	}
	core.Tick()
	if proactive != 3 {
		t.Errorf("proactive deliveries after tick = %d, want 3", proactive)
	}

	if err := core.CancelAction(actions[0].ID, "user declined"); err != nil {
		t.Fatalf("CancelAction() error = %v", err)
	}
	if err := core.CancelAction(actions[0].ID, "again"); !errors.Is(err, errors.ErrActionNotPending) {
		t.Errorf("second CancelAction() error = %v, want ErrActionNotPending", err)
	}

	// Within the cooldown nothing new is scheduled.
	clock.Advance(10 * time.Second)
	core.RunMonitorCycle(context.Background())
	if got := len(core.ProactiveActions()); got != 2 {
		t.Errorf("ProactiveActions() after cooldown cycle = %d, want 2", got)
	}

	if !hasSamples(t, m, "synapse_monitor_cycles_total") {
		t.Error("monitor cycle counter has no samples")
	}
}

func hasSamples(t *testing.T, m *metrics.Metrics, name string) bool {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return true
		}
	}
	return false
}
