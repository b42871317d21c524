// Package errors provides centralized error definitions for the Synapse
// coordination core. It defines sentinel errors for invalid operations,
// typed errors for contained failures (handler and monitor errors), and
// classification helpers.
//
// # Error Taxonomy
//
// The core distinguishes four kinds of failure:
//
//   - Handler errors: returned or panicked by a subscriber. Wrapped in
//     [HandlerError], logged, and contained to that one invocation.
//   - Monitor query errors: the snapshot collaborator failed. Wrapped in
//     [SnapshotError]; the monitoring cycle for that subject is abandoned.
//   - Invalid operations: executing a missing or non-actionable recommendation,
//     or transitioning a proactive action twice. Returned as sentinel errors.
//   - Registry misuse: subscribing a handler twice is accepted, not an error.
//
// # Usage
//
//	if err := core.ExecuteRecommendation(id); errors.Is(err, errors.ErrRecommendationNotActionable) {
//	    // leave it in place
//	}
//
//	var herr *errors.HandlerError
//	if errors.As(err, &herr) && herr.Panicked() { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Derived-state sentinel errors
var (
	// ErrRecommendationNotFound indicates that no live recommendation has the given ID.
	ErrRecommendationNotFound = New("recommendation not found")
	// ErrRecommendationNotActionable indicates that the recommendation cannot be executed.
	ErrRecommendationNotActionable = New("recommendation is not actionable")
	// ErrActionNotFound indicates that no proactive action has the given ID.
	ErrActionNotFound = New("proactive action not found")
	// ErrActionNotPending indicates that the proactive action already left the pending state.
	ErrActionNotPending = New("proactive action is not pending")
)

// Core lifecycle sentinel errors
var (
	// ErrCoreAlreadyStarted indicates that Start was called on a running core.
	ErrCoreAlreadyStarted = New("core already started")
	// ErrCoreStopped indicates that the core was shut down and cannot be restarted.
	ErrCoreStopped = New("core stopped")
)

// Collaborator sentinel errors
var (
	// ErrSnapshotUnavailable indicates that the insight collaborator had no snapshot to offer.
	ErrSnapshotUnavailable = New("snapshot unavailable")
	// ErrHandlerPanic marks handler failures that were recovered panics.
	ErrHandlerPanic = New("handler panicked")
)

// -----------------------------------------------------------------------------
// Handler Errors
// -----------------------------------------------------------------------------

// HandlerError describes a single failed handler invocation.
//
// Example:
//
//	err := errors.NewHandlerError("data_updated", "sync", "sub-3", cause)
//	fmt.Println(err) // "handler sub-3 failed for data_updated from sync: <cause>"
type HandlerError struct {
	Kind           string
	Source         string
	SubscriptionID string
	CorrelationID  string
	Cause          error
	Stack          string // Set for recovered panics
	panicked       bool
}

// NewHandlerError creates a HandlerError for an error returned by a handler.
func NewHandlerError(kind, source, subscriptionID string, cause error) *HandlerError {
	return &HandlerError{
		Kind:           kind,
		Source:         source,
		SubscriptionID: subscriptionID,
		Cause:          cause,
	}
}

// NewHandlerPanic creates a HandlerError for a recovered panic.
func NewHandlerPanic(kind, source, subscriptionID string, value any, stack string) *HandlerError {
	return &HandlerError{
		Kind:           kind,
		Source:         source,
		SubscriptionID: subscriptionID,
		Cause:          fmt.Errorf("%w: %v", ErrHandlerPanic, value),
		Stack:          stack,
		panicked:       true,
	}
}

// WithCorrelation sets the correlation ID of the envelope being handled.
func (e *HandlerError) WithCorrelation(id string) *HandlerError {
	e.CorrelationID = id
	return e
}

// Panicked reports whether the handler panicked rather than returning an error.
func (e *HandlerError) Panicked() bool { return e.panicked }

// Severity returns SeverityCritical for panics and SeverityError otherwise.
func (e *HandlerError) Severity() Severity {
	if e.panicked {
		return SeverityCritical
	}
	return SeverityError
}

func (e *HandlerError) Error() string {
	source := e.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("handler %s failed for %s from %s: %v", e.SubscriptionID, e.Kind, source, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// -----------------------------------------------------------------------------
// Snapshot Errors
// -----------------------------------------------------------------------------

// SnapshotError describes a failed snapshot query made by the proactive monitor.
type SnapshotError struct {
	SubjectID string
	Cause     error
}

// NewSnapshotError creates a SnapshotError for the given subject.
func NewSnapshotError(subjectID string, cause error) *SnapshotError {
	return &SnapshotError{SubjectID: subjectID, Cause: cause}
}

func (e *SnapshotError) Error() string {
	if e.SubjectID == "" {
		return fmt.Sprintf("snapshot query failed: %v", e.Cause)
	}
	return fmt.Sprintf("snapshot query failed [subject=%s]: %v", e.SubjectID, e.Cause)
}

func (e *SnapshotError) Unwrap() error { return e.Cause }

// Severity returns SeverityWarning; a failed query only skips one cycle.
func (e *SnapshotError) Severity() Severity { return SeverityWarning }

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that carry no severity of their own.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var sev interface{ Severity() Severity }
	if As(err, &sev) {
		return sev.Severity()
	}
	return SeverityError
}

// IsInvalidOperation reports whether err is one of the explicit failure
// results returned to external callers of the derived-state store.
func IsInvalidOperation(err error) bool {
	return Is(err, ErrRecommendationNotFound) ||
		Is(err, ErrRecommendationNotActionable) ||
		Is(err, ErrActionNotFound) ||
		Is(err, ErrActionNotPending)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
