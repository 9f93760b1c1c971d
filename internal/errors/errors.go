// Package errors defines the two error kinds the core distinguishes:
// Runtime (any syscall, IPC or filesystem failure) and Spec (malformed
// or unsupported configuration). Both are always fatal to the current
// operation; Kind only determines how the caller reports and recovers.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error for the purposes of the propagation policy
// described in spec.md section 7.
type Kind int

const (
	// Runtime covers syscall, IPC, and filesystem failures.
	Runtime Kind = iota
	// Spec covers malformed or unsupported configuration.
	Spec
)

func (k Kind) String() string {
	switch k {
	case Runtime:
		return "runtime"
	case Spec:
		return "spec"
	default:
		return "unknown"
	}
}

// Error identifies the failing step, the kind of failure, and the
// underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap annotates err with op and cause, preserving the stack trace
// pkg/errors attaches so logs at the top of the CLI can print it with
// %+v during development.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.Wrap(err, op)}
}

// New builds an Error with no underlying cause, for validation failures
// that don't wrap a syscall error.
func New(kind Kind, op string, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// IsKind reports whether err (or something it wraps) is a *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
