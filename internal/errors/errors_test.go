package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandlerError(t *testing.T) {
	cause := errors.New("boom")
	err := NewHandlerError("data_updated", "sync", "sub-1", cause).WithCorrelation("c-9")

	if !Is(err, cause) {
		t.Error("HandlerError should unwrap to its cause")
	}
	if err.Panicked() {
		t.Error("returned errors are not panics")
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want error", err.Severity())
	}
	if err.CorrelationID != "c-9" {
		t.Errorf("CorrelationID = %q, want c-9", err.CorrelationID)
	}

	msg := err.Error()
	for _, want := range []string{"sub-1", "data_updated", "sync", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestHandlerPanic(t *testing.T) {
	err := NewHandlerPanic("user_action", "", "sub-2", "nil map", "goroutine 1 [running]")

	if !err.Panicked() {
		t.Error("Panicked() = false, want true")
	}
	if !Is(err, ErrHandlerPanic) {
		t.Error("panic errors should match ErrHandlerPanic")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity = %v, want critical", GetSeverity(err))
	}
	if !strings.Contains(err.Error(), "from unknown") {
		t.Errorf("empty source should render as unknown: %q", err.Error())
	}
}

func TestSnapshotError(t *testing.T) {
	cause := ErrSnapshotUnavailable
	err := NewSnapshotError("u1", cause)

	if !Is(err, ErrSnapshotUnavailable) {
		t.Error("SnapshotError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "subject=u1") {
		t.Errorf("Error() = %q, want subject in message", err.Error())
	}
	if GetSeverity(err) != SeverityWarning {
		t.Errorf("GetSeverity = %v, want warning", GetSeverity(err))
	}

	wrapped := fmt.Errorf("cycle: %w", err)
	var snapErr *SnapshotError
	if !As(wrapped, &snapErr) || snapErr.SubjectID != "u1" {
		t.Error("As should find SnapshotError through wrapping")
	}

	if got := NewSnapshotError("", cause).Error(); strings.Contains(got, "subject=") {
		t.Errorf("empty subject should be omitted: %q", got)
	}
}

func TestGetSeverity(t *testing.T) {
	if GetSeverity(nil) != SeverityDebug {
		t.Error("nil error should have debug severity")
	}
	if GetSeverity(errors.New("plain")) != SeverityError {
		t.Error("plain errors default to error severity")
	}
}

func TestIsInvalidOperation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRecommendationNotFound, true},
		{Wrap(ErrRecommendationNotActionable, "execute rec-1"), true},
		{ErrActionNotFound, true},
		{ErrActionNotPending, true},
		{ErrCoreStopped, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsInvalidOperation(tt.err); got != tt.want {
			t.Errorf("IsInvalidOperation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	err := Wrapf(ErrActionNotFound, "cancel %s", "act-1")
	if err.Error() != "cancel act-1: proactive action not found" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrActionNotFound) {
		t.Error("Wrapf should preserve the chain")
	}
}
