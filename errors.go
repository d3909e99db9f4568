// Package drisc is a cycle-accurate microarchitectural simulator for a
// many-core chip built around a data-driven, fine-grain multithreaded
// RISC core (the DRISC core).
package drisc

import "github.com/behrlich/drisc/internal/simerr"

// Kind categorizes a simulator error into the taxonomy a caller needs
// to react to: ResourceExhaustion is routine and retried by the kernel,
// everything else is fatal and unwinds the run. Kind and Error are
// aliases of internal/simerr's types so every layer of the simulator,
// from the kernel up, shares one taxonomy without an import cycle back
// to this package.
type Kind = simerr.Kind

const (
	InvalidArgument     = simerr.InvalidArgument
	SecurityViolation   = simerr.SecurityViolation
	IllegalInstruction  = simerr.IllegalInstruction
	ProgramTermination  = simerr.ProgramTermination
	ResourceExhaustion  = simerr.ResourceExhaustion
	Deadlock            = simerr.Deadlock
	SimulationException = simerr.SimulationException
)

// Error is a structured simulator error carrying the offending
// component path and the kernel cycle at which it was raised.
type Error = simerr.Error

// NewError creates a structured error rooted at a component and operation.
func NewError(component, op string, kind Kind, msg string) *Error {
	return simerr.New(component, op, kind, msg)
}

// NewErrorAtCycle is NewError with the kernel cycle recorded for diagnostics.
func NewErrorAtCycle(component, op string, kind Kind, cycle uint64, msg string) *Error {
	return simerr.NewAtCycle(component, op, kind, cycle, msg)
}

// WrapError wraps an existing error with component/op context, preserving
// Kind if the inner error is itself a structured Error.
func WrapError(component, op string, inner error) *Error {
	return simerr.Wrap(component, op, inner)
}

// IsKind reports whether err (or anything it wraps) is a *Error of the
// given Kind.
func IsKind(err error, kind Kind) bool {
	return simerr.IsKind(err, kind)
}
