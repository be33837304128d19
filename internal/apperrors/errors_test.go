package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cause := errors.New("disk I/O error")
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{name: "not found", err: fmt.Errorf("session 4: %w", ErrNotFound), kind: ErrNotFound},
		{name: "raw failure", err: cause, kind: ErrStoreUnavailable},
		{name: "already typed", err: New(ErrInvalidInput, "task.add", nil), kind: ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify("op", tc.err)
			if !errors.Is(got, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, got)
			}
		})
	}
	if Classify("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestErrorKeepsCause(t *testing.T) {
	cause := errors.New("locked")
	err := New(ErrStoreUnavailable, "session.open", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected kind to be reachable")
	}
	if got := err.Error(); got != "session.open: store unavailable: locked" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWarning(t *testing.T) {
	if Warn(nil) != nil {
		t.Fatalf("expected nil warning for nil error")
	}
	inner := New(ErrNotFound, "session.close", nil)
	err := fmt.Errorf("stop: %w", Warn(inner))
	if !IsWarning(err) {
		t.Fatalf("expected warning")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped kind")
	}
	if IsWarning(inner) {
		t.Fatalf("plain error reported as warning")
	}
}

func TestInconsistency(t *testing.T) {
	err := error(&Inconsistency{SessionID: 3, InterruptionID: 9, Err: New(ErrStoreUnavailable, "increment", nil)})
	var inc *Inconsistency
	if !errors.As(err, &inc) {
		t.Fatalf("expected inconsistency")
	}
	if inc.SessionID != 3 || inc.InterruptionID != 9 {
		t.Fatalf("unexpected ids: %+v", inc)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected cause kind")
	}
}
