package monitor

import (
	"time"

	"github.com/Iron-Ham/synapse/internal/event"
)

// Decision is what a rule asks the monitor to do once it fires. A fired rule
// always emits a system_proactive envelope; Schedule additionally records a
// proactive action to run after Delay.
type Decision struct {
	Schedule    bool
	ActionKind  string
	Title       string
	Description string
	Priority    event.Priority // Defaults to medium
	Delay       time.Duration  // Defaults to the monitor's action delay
}

// Rule is an injectable threshold predicate over a snapshot. Decide returns
// false when the rule does not fire.
type Rule struct {
	Name   string
	Decide func(Snapshot) (Decision, bool)
}

// AttentionRule fires whenever the snapshot requires attention and schedules
// an action of the given kind.
func AttentionRule(actionKind, title string) Rule {
	return Rule{
		Name: "attention",
		Decide: func(s Snapshot) (Decision, bool) {
			if !s.RequiresAttention {
				return Decision{}, false
			}
			return Decision{Schedule: true, ActionKind: actionKind, Title: title}, true
		},
	}
}

// ThresholdRule fires when Signals[signal] is at or above threshold. Missing
// signals never fire.
func ThresholdRule(name, signal string, threshold float64, d Decision) Rule {
	return Rule{
		Name: name,
		Decide: func(s Snapshot) (Decision, bool) {
			v, ok := s.Signals[signal]
			if !ok || v < threshold {
				return Decision{}, false
			}
			return d, true
		},
	}
}

// FlagRule fires when Flags[flag] is set.
func FlagRule(name, flag string, d Decision) Rule {
	return Rule{
		Name: name,
		Decide: func(s Snapshot) (Decision, bool) {
			if !s.Flags[flag] {
				return Decision{}, false
			}
			return d, true
		},
	}
}
