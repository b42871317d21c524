package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Handler reacts to an envelope. A returned error is logged by the
// dispatcher and never stops other handlers from running.
//
// ctx carries the envelope being handled (see FromContext), so envelopes
// emitted with it join the same correlation chain.
type Handler func(ctx context.Context, env Envelope) error

// Registered is a handler together with the subscription that added it.
type Registered struct {
	ID      string
	Pattern string // Kind or glob pattern the handler was registered with
	Handler Handler
}

type subscription struct {
	Registered
	matcher glob.Glob // nil for exact-kind subscriptions
}

// Registry maps envelope kinds to ordered handler lists.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	exact    map[Kind][]subscription
	patterns []subscription
	nextID   atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact: make(map[Kind][]subscription),
	}
}

// Subscription is returned by Subscribe and removes the handler when disposed.
type Subscription struct {
	ID       string
	registry *Registry
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s Subscription) Unsubscribe() bool {
	if s.registry == nil {
		return false
	}
	return s.registry.Unsubscribe(s.ID)
}

// Subscribe appends handler to the list for kind. Registering the same
// handler twice means it is invoked twice.
func (r *Registry) Subscribe(kind Kind, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := subscription{Registered: Registered{
		ID:      r.generateID(),
		Pattern: string(kind),
		Handler: handler,
	}}
	r.exact[kind] = append(r.exact[kind], sub)
	return Subscription{ID: sub.ID, registry: r}
}

// SubscribePattern registers handler for every kind matching the glob
// pattern, e.g. "neural_*" or "*". Pattern handlers run after the exact
// handlers for a kind, in registration order.
func (r *Registry) SubscribePattern(pattern string, handler Handler) (Subscription, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return Subscription{}, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub := subscription{
		Registered: Registered{
			ID:      r.generateID(),
			Pattern: pattern,
			Handler: handler,
		},
		matcher: g,
	}
	r.patterns = append(r.patterns, sub)
	return Subscription{ID: sub.ID, registry: r}, nil
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, subs := range r.exact {
		for i, sub := range subs {
			if sub.ID == id {
				r.exact[kind] = append(subs[:i:i], subs[i+1:]...)
				if len(r.exact[kind]) == 0 {
					delete(r.exact, kind)
				}
				return true
			}
		}
	}
	for i, sub := range r.patterns {
		if sub.ID == id {
			r.patterns = append(r.patterns[:i:i], r.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// HandlersFor returns a snapshot of the handlers registered for kind, exact
// subscriptions first. The result is empty, never nil, when nothing matches.
func (r *Registry) HandlersFor(kind Kind) []Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registered, 0, len(r.exact[kind]))
	for _, sub := range r.exact[kind] {
		out = append(out, sub.Registered)
	}
	for _, sub := range r.patterns {
		if sub.matcher.Match(string(kind)) {
			out = append(out, sub.Registered)
		}
	}
	return out
}

// Count returns the total number of active subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := len(r.patterns)
	for _, subs := range r.exact {
		count += len(subs)
	}
	return count
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact = make(map[Kind][]subscription)
	r.patterns = nil
}

func (r *Registry) generateID() string {
	return fmt.Sprintf("sub-%d", r.nextID.Add(1))
}
