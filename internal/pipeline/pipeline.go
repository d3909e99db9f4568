// Package pipeline implements the six-stage instruction pipeline
// (spec.md §4.4): Fetch, Decode, Read+bypass, Execute, Memory,
// Writeback, each a kernel.Process with an input and an output latch.
package pipeline

import (
	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/fpu"
	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/regfile"
)

// Action is a stage's verdict for the instruction it just processed
// (spec.md §4.4.4).
type Action int

const (
	Continue Action = iota
	Flush
	Stall
	Delay
	Idle
)

func (a Action) String() string {
	switch a {
	case Flush:
		return "FLUSH"
	case Stall:
		return "STALL"
	case Delay:
		return "DELAY"
	case Idle:
		return "IDLE"
	default:
		return "CONTINUE"
	}
}

// FetchOut is Fetch's output latch, read by Decode.
type FetchOut struct {
	Valid      bool
	TID        int32
	PC         uint64
	Instr      isa.Instruction
	WantSwitch bool
	KillAfter  bool
}

// DecodeOut is Decode's output latch, read by Read.
type DecodeOut struct {
	Valid   bool
	TID     int32
	PC      uint64
	Decoded isa.Decoded
}

// OperandValue is one resolved (or not-yet-resolved) source operand.
type OperandValue struct {
	State regfile.RegState
	Value uint64
	Addr  regfile.RegAddr
}

// ReadOut is Read's output latch, read by Execute.
type ReadOut struct {
	Valid   bool
	TID     int32
	PC      uint64
	Decoded isa.Decoded
	Src     [2]OperandValue
}

// ExecuteOut is Execute's output latch, read by Memory.
type ExecuteOut struct {
	Valid      bool
	TID        int32
	Action     Action
	Dest       regfile.RegAddr
	DestValid  bool
	Result     uint64
	IsLoad     bool
	IsStore    bool
	MemAddr    uint64
	MemSize    uint32
	SignExtend bool
	StoreData  uint64
	NextPC     uint64
	WantSwitch bool
	KillAfter  bool
}

// MemoryOut is Memory's output latch, read by Writeback.
type MemoryOut struct {
	Valid      bool
	TID        int32
	Dest       regfile.RegAddr
	DestValid  bool
	State      regfile.RegState // FULL (value ready) or PENDING (load in flight)
	Value      uint64
	WantSwitch bool
	KillAfter  bool
}

// Bypass is the ladder Read consults before falling back to the
// register file (spec.md §4.4.3): execute-out, then memory-out, in
// that priority order.
type Bypass struct {
	Execute *ExecuteOut
	Memory  *MemoryOut
}

// Lookup returns the bypassed value for addr, if any stage upstream
// of the register file is about to produce it this cycle.
func (b Bypass) Lookup(addr regfile.RegAddr) (uint64, bool) {
	if b.Execute != nil && b.Execute.Valid && b.Execute.DestValid && b.Execute.Dest == addr {
		return b.Execute.Result, true
	}
	if b.Memory != nil && b.Memory.Valid && b.Memory.DestValid && b.Memory.Dest == addr && b.Memory.State == regfile.Full {
		return b.Memory.Value, true
	}
	return 0, false
}

// Allocator is the family-control surface Execute dispatches to for
// allocate/create/set-property/sync/detach/break (spec.md §4.4.4).
// Kept as a narrow interface so pipeline doesn't need to know whether
// the target family lives on this core or is forwarded over the ring.
type Allocator interface {
	Allocate(ctxClass uint32) (fid uint32, ok bool)
	Create(fid uint32, pc uint64) bool
	SetProperty(fid uint32, prop uint32, value int64) bool
	Sync(fid uint32) bool
	Detach(fid uint32) bool
	Break(fid uint32) bool
}

// FPU is the subset of fpu.Unit Execute needs.
type FPU = fpu.Unit

// ThreadSource is how Fetch finds the next thread to run.
type ThreadSource interface {
	PopReady() (int32, bool)
	Get(tid int32) alloc.Thread
	Set(tid int32, th alloc.Thread)
}

// ICache is the subset of cache.Cache Fetch needs.
type ICache interface {
	Read(addr uint64, waiter cache.Waiter) ([]byte, bool)
}

// DCache is the subset of cache.Cache Memory needs.
type DCache interface {
	Read(addr uint64, waiter cache.Waiter) ([]byte, bool)
	Write(addr uint64, data []byte, tid int32) bool
}

// MMIO is the subset of mmio.IOMatchUnit Memory needs: a load or store
// whose address falls in a registered device's range is routed here
// instead of to DCache (spec.md §6.3).
type MMIO interface {
	InRange(addr uint64) bool
	Read(addr uint64, size uint32, fid uint32, tid int32) (uint64, error)
	Write(addr uint64, size uint32, value uint64, fid uint32, tid int32) error
}

// Halter is the subset of kernel.Kernel Memory needs to stop the run
// when an MMIO device (most notably the action device) signals that
// the program has terminated.
type Halter interface {
	Halt(err error)
}

// InstructionCounter receives one notification per instruction that
// reaches Writeback without suspending (spec.md §7's instruction
// count, backed by the chip Metrics).
type InstructionCounter interface {
	RecordInstruction()
}
