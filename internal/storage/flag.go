package storage

import "github.com/behrlich/drisc/internal/kernel"

// Flag is a boolean register, used for "active"/"ready" signals that
// don't carry a payload (e.g. a pipeline stage's active flag).
type Flag struct {
	id     string
	tracer kernel.Tracer
	value  bool
}

// NewFlag creates a flag with the given initial value.
func NewFlag(id string, tracer kernel.Tracer, initial bool) *Flag {
	return &Flag{id: id, tracer: tracer, value: initial}
}

// Identity returns the flag's trace identity.
func (f *Flag) Identity() string { return f.id }

// NonEmpty reports the flag's current value: a set flag is "non-empty"
// and wakes sensitive processes.
func (f *Flag) NonEmpty() bool { return f.value }

// Get returns the current value.
func (f *Flag) Get() bool { return f.value }

// Set raises the flag.
func (f *Flag) Set() {
	f.value = true
	f.tracer.Touch(f.id)
}

// Clear lowers the flag.
func (f *Flag) Clear() {
	f.value = false
	f.tracer.Touch(f.id)
}
