package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindUnavailable
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// StoreError is the single failure type the store surfaces. Repositories and
// handlers branch on Kind, never on driver error strings.
type StoreError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

func NotFound(op string, err error) *StoreError {
	return &StoreError{Kind: KindNotFound, Op: op, Err: err}
}

func Conflict(op string, err error) *StoreError {
	return &StoreError{Kind: KindConflict, Op: op, Err: err}
}

func Unavailable(op string, err error) *StoreError {
	return &StoreError{Kind: KindUnavailable, Op: op, Err: err}
}

func Malformed(op string, err error) *StoreError {
	return &StoreError{Kind: KindMalformed, Op: op, Err: err}
}

func KindOf(err error) Kind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// Classify wraps a raw driver error into the taxonomy. Constraint violations
// become Conflict; everything else from the driver is treated as transient.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "ConstraintValidation"),
		strings.Contains(msg, "already exists"):
		return Conflict(op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Unavailable(op, err)
	default:
		return Unavailable(op, err)
	}
}
