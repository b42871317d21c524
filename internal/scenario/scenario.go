// Package scenario loads YAML scenario files and replays them into a Core.
//
// A scenario is a timed list of envelopes plus optional per-subject
// snapshots for the proactive monitor:
//
//	name: morning-recovery
//	watch: [u1]
//	snapshots:
//	  u1:
//	    requires_attention: true
//	    signals: {fatigue: 0.82}
//	steps:
//	  - after: 0s
//	    kind: data_updated
//	    subject: u1
//	    source: sync
//	    payload: {dataset: hrv, fields: {rmssd: 31}}
//	  - after: 1500ms
//	    kind: neural_data_received
//	    priority: critical
//	    payload: {channel: eeg, samples: [0.1, 0.4]}
//
// Offsets are measured from the start of the replay, not from the previous
// step.
package scenario

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/synapse/internal/event"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name      string                  `yaml:"name"`
	Watch     []string                `yaml:"watch"`
	Snapshots map[string]SnapshotSpec `yaml:"snapshots"`
	Memory    map[string]any          `yaml:"memory"`
	Steps     []Step                  `yaml:"steps"`
}

// SnapshotSpec is the state a demo snapshot source reports for one subject.
type SnapshotSpec struct {
	RequiresAttention bool               `yaml:"requires_attention"`
	Signals           map[string]float64 `yaml:"signals"`
	Flags             map[string]bool    `yaml:"flags"`
}

// Step is one envelope to emit.
type Step struct {
	After    time.Duration  `yaml:"after"`
	Kind     string         `yaml:"kind"`
	Priority string         `yaml:"priority"`
	Subject  string         `yaml:"subject"`
	Source   string         `yaml:"source"`
	Payload  map[string]any `yaml:"payload"`
}

// Envelope builds the envelope for this step. An empty priority means
// medium and an empty source means "scenario".
func (s Step) Envelope() (event.Envelope, error) {
	if s.Kind == "" {
		return event.Envelope{}, fmt.Errorf("kind is required")
	}
	kind := event.Kind(s.Kind)

	priority := event.PriorityMedium
	if s.Priority != "" {
		p, ok := event.ParsePriority(s.Priority)
		if !ok {
			return event.Envelope{}, fmt.Errorf("unknown priority %q", s.Priority)
		}
		priority = p
	}

	payload, err := event.PayloadFromMap(kind, s.Payload)
	if err != nil {
		return event.Envelope{}, err
	}

	source := s.Source
	if source == "" {
		source = "scenario"
	}
	return event.New(payload, priority, source).ForSubject(s.Subject), nil
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario document. Steps are stably sorted
// by offset.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario has no steps")
	}
	for i, step := range sc.Steps {
		if step.After < 0 {
			return nil, fmt.Errorf("step %d: negative offset %v", i+1, step.After)
		}
		if _, err := step.Envelope(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	slices.SortStableFunc(sc.Steps, func(a, b Step) int {
		return cmp.Compare(a.After, b.After)
	})
	return &sc, nil
}

// Duration returns the offset of the last step.
func (s *Scenario) Duration() time.Duration {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].After
}

// Emitter receives replayed envelopes. *coordination.Core satisfies it.
type Emitter interface {
	Emit(ctx context.Context, env event.Envelope) event.Envelope
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Player replays a scenario.
type Player struct {
	scenario *Scenario
	sleep    SleepFunc
	onEmit   func(event.Envelope)
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithSleep replaces the wall-clock wait between steps.
func WithSleep(fn SleepFunc) PlayerOption {
	return func(p *Player) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithEmitHook is called with every envelope as returned by the emitter.
func WithEmitHook(fn func(event.Envelope)) PlayerOption {
	return func(p *Player) { p.onEmit = fn }
}

// NewPlayer creates a Player for sc.
func NewPlayer(sc *Scenario, opts ...PlayerOption) *Player {
	p := &Player{scenario: sc, sleep: sleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play emits every step into e at its offset and returns the emitted
// envelopes. It stops early, returning the envelopes emitted so far, when
// ctx is cancelled.
func (p *Player) Play(ctx context.Context, e Emitter) ([]event.Envelope, error) {
	emitted := make([]event.Envelope, 0, len(p.scenario.Steps))
	var elapsed time.Duration

	for i, step := range p.scenario.Steps {
		if err := p.sleep(ctx, step.After-elapsed); err != nil {
			return emitted, err
		}
		elapsed = step.After

		env, err := step.Envelope()
		if err != nil {
			return emitted, fmt.Errorf("step %d: %w", i+1, err)
		}
		env = e.Emit(ctx, env)
		emitted = append(emitted, env)
		if p.onEmit != nil {
			p.onEmit(env)
		}
	}
	return emitted, nil
}
