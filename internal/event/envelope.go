package event

import (
	"context"
	"strings"
	"time"
)

// Kind identifies the type of an envelope. The set of known kinds is closed
// by the payload types in this package, but collaborators may introduce new
// kinds by emitting a Custom payload.
type Kind string

// Known envelope kinds.
const (
	KindDataUpdated        Kind = "data_updated"
	KindUserAction         Kind = "user_action"
	KindAlertTriggered     Kind = "alert_triggered"
	KindRecommendationMade Kind = "recommendation_made"
	KindInsightGenerated   Kind = "insight_generated"
	KindModalActivated     Kind = "modal_activated"
	KindNeuralDataReceived Kind = "neural_data_received"
	KindSystemProactive    Kind = "system_proactive"
)

// KnownKinds returns every kind that has a dedicated payload type.
func KnownKinds() []Kind {
	return []Kind{
		KindDataUpdated,
		KindUserAction,
		KindAlertTriggered,
		KindRecommendationMade,
		KindInsightGenerated,
		KindModalActivated,
		KindNeuralDataReceived,
		KindSystemProactive,
	}
}

// String returns the kind as a plain string.
func (k Kind) String() string { return string(k) }

// Priority controls the order in which queued envelopes are drained and
// whether an envelope is dispatched immediately on emit.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the sort rank of a priority, lower ranks drain first.
// Unknown priorities rank with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Urgent reports whether envelopes of this priority bypass the queue for
// an immediate dispatch in addition to being queued.
func (p Priority) Urgent() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// ParsePriority normalizes a user-supplied priority string.
// The second return value is false if s is not a known priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Envelope is the record that flows through the coordination core.
//
// Envelopes are passed by value and must not be modified after they have
// been emitted. The core only reads the fields below; Payload is interpreted
// by handlers alone.
type Envelope struct {
	ID            string    // Assigned by the core on emit
	Kind          Kind      // Routing key for subscribers
	Timestamp     time.Time // Creation time, stamped on emit if zero
	SubjectID     string    // User or session the event concerns; empty for system-wide events
	Source        string    // Free-text provenance tag for logs
	Priority      Priority  // Drain order and immediate-dispatch trigger
	CorrelationID string    // Shared by every envelope in one causal chain
	Payload       Payload   // Kind-specific data
}

// New creates an envelope whose kind is taken from the payload.
func New(payload Payload, priority Priority, source string) Envelope {
	return Envelope{
		Kind:     payload.Kind(),
		Priority: priority,
		Source:   source,
		Payload:  payload,
	}
}

// ForSubject returns a copy of e addressed to the given subject.
func (e Envelope) ForSubject(subjectID string) Envelope {
	e.SubjectID = subjectID
	return e
}

// WithCorrelation returns a copy of e carrying the given correlation ID.
func (e Envelope) WithCorrelation(id string) Envelope {
	e.CorrelationID = id
	return e
}

// Delivery describes how a handler is being reached.
type Delivery int

const (
	// Scheduled delivery happens during a scheduler drain pass.
	Scheduled Delivery = iota
	// Immediate delivery happens synchronously inside Emit for urgent envelopes.
	Immediate
)

// String returns a human-readable name for the delivery mode.
func (d Delivery) String() string {
	switch d {
	case Scheduled:
		return "scheduled"
	case Immediate:
		return "immediate"
	default:
		return "unknown"
	}
}

type ctxKey struct{}

type dispatchInfo struct {
	env      Envelope
	delivery Delivery
}

// NewContext returns a context that records env as the envelope currently
// being handled. Emits made with this context inherit its correlation ID.
func NewContext(ctx context.Context, env Envelope, delivery Delivery) context.Context {
	return context.WithValue(ctx, ctxKey{}, dispatchInfo{env: env, delivery: delivery})
}

// FromContext returns the envelope being handled, if any.
func FromContext(ctx context.Context) (Envelope, bool) {
	if ctx == nil {
		return Envelope{}, false
	}
	info, ok := ctx.Value(ctxKey{}).(dispatchInfo)
	return info.env, ok
}

// DeliveryFromContext returns the delivery mode of the envelope being handled.
// It returns Scheduled when ctx was not created by NewContext.
func DeliveryFromContext(ctx context.Context) Delivery {
	if ctx == nil {
		return Scheduled
	}
	info, ok := ctx.Value(ctxKey{}).(dispatchInfo)
	if !ok {
		return Scheduled
	}
	return info.delivery
}
