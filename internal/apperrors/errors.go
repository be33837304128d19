// Package apperrors defines the error kinds shared by the timer core and its stores.
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
)

// Error attaches a kind and an operation name to an underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds an Error of the given kind.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify maps a raw store failure to NotFound or StoreUnavailable.
// Errors that already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return New(ErrNotFound, op, nil)
	}
	return New(ErrStoreUnavailable, op, err)
}

// Warning marks an error as non-fatal: the requested transition completed,
// but something along the way needs reporting.
type Warning struct {
	Err error
}

func (w *Warning) Error() string {
	return "warning: " + w.Err.Error()
}

func (w *Warning) Unwrap() error {
	return w.Err
}

// Warn wraps err as a Warning. A nil err stays nil.
func Warn(err error) error {
	if err == nil {
		return nil
	}
	return &Warning{Err: err}
}

// IsWarning reports whether err is non-fatal.
func IsWarning(err error) bool {
	var w *Warning
	return errors.As(err, &w)
}

// Inconsistency reports an interruption that was stored without the matching
// increment of its session's interruption count.
type Inconsistency struct {
	SessionID      int64
	InterruptionID int64
	Err            error
}

func (e *Inconsistency) Error() string {
	return fmt.Sprintf("interruption %d stored but session %d count not incremented: %v", e.InterruptionID, e.SessionID, e.Err)
}

func (e *Inconsistency) Unwrap() error {
	return e.Err
}
