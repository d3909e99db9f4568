// Package simerr is the structured error taxonomy shared by every
// layer of the simulator, from the kernel up through the root package.
// It lives in internal/ rather than at the module root so leaf
// packages (kernel, storage, regfile, ...) can report typed errors
// without importing the root package and creating an import cycle.
package simerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a simulator error into the taxonomy a caller needs
// to react to: ResourceExhaustion is routine and retried by the kernel,
// everything else is fatal and unwinds the run.
type Kind int

const (
	// InvalidArgument: configuration or request violates a documented
	// precondition (address unaligned, size not a power of two,
	// register index out of range). Fatal at construction or at the
	// point the offending request is issued.
	InvalidArgument Kind = iota

	// SecurityViolation: a program attempts an access the MMU does not
	// permit (read non-readable, write non-writable). Fatal for the run.
	SecurityViolation

	// IllegalInstruction: the decoder could not classify the bits.
	// Fatal; the faulting PC is captured in Cycle/Msg.
	IllegalInstruction

	// ProgramTermination: normal (exit code) or abort requested by the
	// program via the action MMIO device. Terminates the run.
	ProgramTermination

	// ResourceExhaustion: buffer full, port lost arbitration, no free
	// context. Non-fatal — surfaced to the kernel as a FAILED process
	// result and retried next cycle. Never escapes as a Go error across
	// a component boundary; kept here only so a single Kind enum
	// covers the whole taxonomy.
	ResourceExhaustion

	// Deadlock: a whole kernel cycle passed in which every runnable
	// process returned FAILED. Fatal with a per-process diagnostic.
	Deadlock

	// SimulationException: any other internal invariant violation.
	// Fatal.
	SimulationException
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case SecurityViolation:
		return "security violation"
	case IllegalInstruction:
		return "illegal instruction"
	case ProgramTermination:
		return "program termination"
	case ResourceExhaustion:
		return "resource exhaustion"
	case Deadlock:
		return "deadlock"
	case SimulationException:
		return "simulation exception"
	default:
		return "unknown"
	}
}

// Error is a structured simulator error carrying the offending
// component path and the kernel cycle at which it was raised.
type Error struct {
	Op        string // operation that failed, e.g. "DCache.Read"
	Component string // dotted component path, e.g. "core[0].dcache"
	Kind      Kind
	Cycle     uint64 // kernel cycle at time of error, 0 if not applicable
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Cycle != 0 {
		parts = append(parts, fmt.Sprintf("cycle=%d", e.Cycle))
	}

	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if len(parts) > 0 {
		return fmt.Sprintf("drisc: %s (%s, kind=%s)", msg, parts[0], e.Kind)
	}
	return fmt.Sprintf("drisc: %s (kind=%s)", msg, e.Kind)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports comparison with another *Error by Kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// New creates a structured error rooted at a component and operation.
func New(component, op string, kind Kind, msg string) *Error {
	return &Error{Component: component, Op: op, Kind: kind, Msg: msg}
}

// NewAtCycle is New with the kernel cycle recorded for diagnostics.
func NewAtCycle(component, op string, kind Kind, cycle uint64, msg string) *Error {
	return &Error{Component: component, Op: op, Kind: kind, Cycle: cycle, Msg: msg}
}

// Wrap wraps an existing error with component/op context, preserving
// Kind if the inner error is itself a structured Error.
func Wrap(component, op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ie, ok := inner.(*Error); ok {
		return &Error{
			Component: component,
			Op:        op,
			Kind:      ie.Kind,
			Cycle:     ie.Cycle,
			Msg:       ie.Msg,
			Inner:     ie.Inner,
		}
	}
	return &Error{
		Component: component,
		Op:        op,
		Kind:      SimulationException,
		Msg:       inner.Error(),
		Inner:     inner,
	}
}

// IsKind reports whether err (or anything it wraps) is a *Error of the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
