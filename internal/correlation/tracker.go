// Package correlation assigns correlation identifiers to envelopes and keeps
// a bounded record of which envelopes belong to each causal chain.
package correlation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/synapse/internal/event"
)

const (
	// DefaultMaxChains is the number of chains retained when none is configured.
	DefaultMaxChains = 1000

	// maxLinksPerChain caps a single long-lived chain.
	maxLinksPerChain = 256
)

// NewID returns a fresh correlation identifier.
func NewID() string {
	return uuid.NewString()
}

// Propagate returns the correlation ID a follow-up envelope should carry.
// A nil parent, or a parent without an ID, starts a new chain.
func Propagate(parent *event.Envelope) string {
	if parent != nil && parent.CorrelationID != "" {
		return parent.CorrelationID
	}
	return NewID()
}

// Link is one envelope observed as part of a chain.
type Link struct {
	EnvelopeID string
	Kind       event.Kind
	Source     string
	SubjectID  string
	Priority   event.Priority
	Timestamp  time.Time
}

// Tracker records chains of envelopes by correlation ID. Only the most
// recently started chains are kept; the oldest chain is evicted once the
// limit is reached. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	maxChains int
	chains    map[string][]Link
	order     []string // Correlation IDs in first-seen order
}

// NewTracker creates a Tracker retaining at most maxChains chains.
// A non-positive maxChains uses DefaultMaxChains.
func NewTracker(maxChains int) *Tracker {
	if maxChains <= 0 {
		maxChains = DefaultMaxChains
	}
	return &Tracker{
		maxChains: maxChains,
		chains:    make(map[string][]Link),
	}
}

// Propagate is the method form of the package-level Propagate.
func (t *Tracker) Propagate(parent *event.Envelope) string {
	return Propagate(parent)
}

// Record appends env to its chain. Envelopes without a correlation ID are
// ignored.
func (t *Tracker) Record(env event.Envelope) {
	if env.CorrelationID == "" {
		return
	}

	link := Link{
		EnvelopeID: env.ID,
		Kind:       env.Kind,
		Source:     env.Source,
		SubjectID:  env.SubjectID,
		Priority:   env.Priority,
		Timestamp:  env.Timestamp,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	links, exists := t.chains[env.CorrelationID]
	if !exists {
		t.order = append(t.order, env.CorrelationID)
		for len(t.order) > t.maxChains {
			delete(t.chains, t.order[0])
			t.order = t.order[1:]
		}
	}
	if len(links) >= maxLinksPerChain {
		links = links[1:]
	}
	t.chains[env.CorrelationID] = append(links, link)
}

// Chain returns a copy of the links recorded for id in the order they were
// emitted. It returns nil for unknown or evicted chains.
func (t *Tracker) Chain(id string) []Link {
	t.mu.Lock()
	defer t.mu.Unlock()

	links, ok := t.chains[id]
	if !ok {
		return nil
	}
	out := make([]Link, len(links))
	copy(out, links)
	return out
}

// Len returns the number of chains currently retained.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chains)
}
