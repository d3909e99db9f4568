// Package fpu implements the external floating-point unit interface
// from spec.md §6.1: the core enqueues an operation and is handed
// back control immediately; the FPU completes asynchronously and
// writes its result directly into the register file through the
// Destination callback interface, with no ordering guarantee across
// clients.
package fpu

import (
	"math"

	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
)

// Destination is the register-file side of FPU completion: the FPU
// never writes a register cell directly, it asks first (so a since-
// invalidated destination can be dropped) and then delivers.
type Destination interface {
	CheckFPUOutputAvailability(addr regfile.RegAddr) bool
	WriteFPUResult(addr regfile.RegAddr, value uint64) bool
}

// Unit is the interface the Execute stage calls (spec.md §6.1). The
// Reference implementation below completes every FPU op after a fixed
// latency, independent of source/client ordering.
type Unit interface {
	QueueOperation(source string, op isa.FPUOp, size uint32, a, b uint64, dest regfile.RegAddr) bool
}

type pending struct {
	dest       regfile.RegAddr
	value      uint64
	cyclesLeft int
}

// Reference is a single shared FPU with a fixed per-op latency and a
// bounded number of operations in flight. It is itself a kernel
// Process: each tick it advances every in-flight operation and
// delivers any whose latency has elapsed, via dest.
type Reference struct {
	id       string
	dest     Destination
	latency  int
	capacity int
	inflight []pending
}

// NewReference creates an FPU with the given per-operation latency
// (in cycles) and maximum number of outstanding operations.
func NewReference(id string, dest Destination, latency, capacity int) *Reference {
	return &Reference{id: id, dest: dest, latency: latency, capacity: capacity}
}

// Identity returns the unit's trace identity.
func (u *Reference) Identity() string { return u.id }

// NonEmpty reports whether any operation is in flight.
func (u *Reference) NonEmpty() bool { return len(u.inflight) > 0 }

// QueueOperation implements Unit. Returns false (retried next cycle)
// if the FPU is at capacity.
func (u *Reference) QueueOperation(source string, op isa.FPUOp, size uint32, a, b uint64, dest regfile.RegAddr) bool {
	if len(u.inflight) >= u.capacity {
		return false
	}
	u.inflight = append(u.inflight, pending{
		dest:       dest,
		value:      evaluate(op, a, b),
		cyclesLeft: u.latency,
	})
	return true
}

func evaluate(op isa.FPUOp, a, b uint64) uint64 {
	af, bf := fromBits(a), fromBits(b)
	switch op {
	case isa.FPUAdd:
		return toBits(af + bf)
	case isa.FPUSub:
		return toBits(af - bf)
	case isa.FPUMul:
		return toBits(af * bf)
	case isa.FPUDiv:
		return toBits(af / bf)
	default:
		return 0
	}
}

func fromBits(bits uint64) float64 { return math.Float64frombits(bits) }
func toBits(f float64) uint64      { return math.Float64bits(f) }

// Tick advances every in-flight operation one cycle and delivers any
// whose latency has elapsed. Intended to be called once per cycle by
// a kernel.Process owned by the enclosing core, since the FPU itself
// has no Clock of its own in this design — it is driven by whichever
// core's Execute stage feeds it (spec.md notes completion ordering
// across FPU clients is not guaranteed, so a shared FPU never needs
// its own arbitration beyond capacity).
func (u *Reference) Tick() {
	remaining := u.inflight[:0]
	for _, p := range u.inflight {
		p.cyclesLeft--
		if p.cyclesLeft > 0 {
			remaining = append(remaining, p)
			continue
		}
		if !u.dest.CheckFPUOutputAvailability(p.dest) {
			continue // destination gone (killed thread); drop the result
		}
		u.dest.WriteFPUResult(p.dest, p.value)
	}
	u.inflight = remaining
}

var _ kernel.Sensor = (*Reference)(nil)
