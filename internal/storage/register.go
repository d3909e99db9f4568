// Package storage implements the storage primitives every kernel
// process reads and writes: Register, Flag, Buffer, LinkedList, and
// Structure (spec.md §4.2). Every primitive satisfies kernel.Sensor so
// it can drive process wakeup, and kernel.Storage so its identity
// shows up in deadlock dumps and declared-trace validation.
package storage

import "github.com/behrlich/drisc/internal/kernel"

// Register holds zero or one value of type T. Write only succeeds when
// the register is empty; Clear resets it. Both are commit-phase
// mutations and are reported to the owning kernel's trace validator.
type Register[T any] struct {
	id     string
	tracer kernel.Tracer
	full   bool
	value  T
}

// NewRegister creates an empty register identified by id. tracer is
// the kernel the owning process's commit phase runs under; every
// mutating call reports id to it via Touch.
func NewRegister[T any](id string, tracer kernel.Tracer) *Register[T] {
	return &Register[T]{id: id, tracer: tracer}
}

// Identity returns the register's trace identity.
func (r *Register[T]) Identity() string { return r.id }

// NonEmpty reports whether the register currently holds a value.
func (r *Register[T]) NonEmpty() bool { return r.full }

// Empty reports whether the register currently holds no value.
func (r *Register[T]) Empty() bool { return !r.full }

// Read returns the held value and true, or the zero value and false if
// empty.
func (r *Register[T]) Read() (T, bool) {
	return r.value, r.full
}

// Write stores v if the register is empty. Returns false (no-op) if
// already full; callers arbitrate for write ports before calling this,
// so a full register here means a logic error upstream, not routine
// contention.
func (r *Register[T]) Write(v T) bool {
	if r.full {
		return false
	}
	r.value = v
	r.full = true
	r.tracer.Touch(r.id)
	return true
}

// Clear empties the register, discarding any held value.
func (r *Register[T]) Clear() {
	var zero T
	r.value = zero
	r.full = false
	r.tracer.Touch(r.id)
}
