// Package errkind classifies pipeline errors into the closed set that
// drives propagation policy: retry, skip-item, skip-subsystem, or abort.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a closed classification of pipeline error severity.
type Kind int

const (
	// Transient errors are retriable per-operation (I/O, network, timeout).
	Transient Kind = iota
	// Input errors mean a single item is malformed; skip it, continue.
	Input
	// Invariant errors mean a store or identity invariant broke; abort the run.
	Invariant
	// Capability errors mean a subsystem is unavailable (missing credential,
	// disabled feature); skip the subsystem, optionally diagnose.
	Capability
)

// String renders the kind the way diagnostics and logs expect it.
func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Input:
		return "input"
	case Invariant:
		return "invariant"
	case Capability:
		return "capability"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the component/subject
// that raised it, the unit carried in PipelineResult diagnostics.
type Error struct {
	Err       error
	Kind      Kind
	Component string
	Subject   string
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Component, e.Kind, e.Subject, e.Err)
	}

	return fmt.Sprintf("%s[%s]: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified pipeline error.
func New(kind Kind, component, subject string, err error) *Error {
	return &Error{Kind: kind, Component: component, Subject: subject, Err: err}
}

// Wrap is a convenience for fmt.Errorf-style wrapping into a Kind.
func Wrap(kind Kind, component, subject, format string, args ...any) *Error {
	return New(kind, component, subject, fmt.Errorf(format, args...))
}

// IsFatal reports whether kind must terminate the run. Only Invariant is fatal.
func IsFatal(err error) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind == Invariant
	}

	return false
}

// KindOf extracts the Kind of err, defaulting to Invariant for unclassified
// errors so that callers fail closed rather than silently swallow them.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return Invariant
}
