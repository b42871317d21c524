// Package coordination provides the Core, the single per-process instance
// that lets independently developed modules talk to each other through
// envelopes instead of direct references.
//
// The Core wires the event pipeline:
//
//	Emit → Scheduler (priority buffer) → Dispatcher → handlers
//
// Plus the state that handlers derive from events:
//
//   - Derived-State Store (alerts, recommendations, proactive actions)
//   - Learning Memory (last value per key)
//   - Correlation Tracker (which envelopes belong to one causal chain)
//
// And the Proactive Monitor, which periodically asks a snapshot source for
// each watched subject's state and schedules proactive actions.
//
// Envelopes with high or critical priority are delivered immediately on
// Emit and are also queued for the next drain, so subscribers may see them
// twice with different delivery modes.
//
// Usage:
//
//	core, err := coordination.New(coordination.DefaultConfig(),
//	    coordination.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	core.Subscribe(event.KindDataUpdated, func(ctx context.Context, env event.Envelope) error {
//	    core.Emit(ctx, event.New(event.InsightGenerated{Topic: "sleep"}, event.PriorityMedium, "insights"))
//	    return nil
//	})
//	if err := core.Start(ctx); err != nil {
//	    return err
//	}
//	defer core.Shutdown()
package coordination
