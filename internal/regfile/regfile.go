// Package regfile implements the per-core register file: a typed
// array of tagged-union cells (spec.md §3.3, §4.3) with dedicated and
// arbitrated ports and the writeback wakeup protocol.
package regfile

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/simerr"
)

// RegType distinguishes the integer and floating-point register
// banks; each has its own address space and block size.
type RegType int

const (
	IntReg RegType = iota
	FloatReg
)

func (t RegType) String() string {
	if t == FloatReg {
		return "float"
	}
	return "int"
}

// RegAddr names one register cell.
type RegAddr struct {
	Type  RegType
	Index uint32
}

// RegState is the tag of a register cell's union (spec.md §3.3).
type RegState int

const (
	Empty RegState = iota
	Pending
	Waiting
	Full
)

func (s RegState) String() string {
	switch s {
	case Empty:
		return "EMPTY"
	case Pending:
		return "PENDING"
	case Waiting:
		return "WAITING"
	case Full:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// MemRequest is the optional memory-request metadata an EMPTY, PENDING
// or WAITING cell may carry while a load is outstanding.
type MemRequest struct {
	FID        uint32
	Offset     uint64
	Size       uint8
	SignExtend bool
	NextReg    RegAddr
	HasNextReg bool
}

// RegCell is one register's full state.
type RegCell struct {
	State RegState
	Value uint64
	Req   *MemRequest

	waitHead int32
	waitTail int32
}

// ReadyQueue is the wakeup target for a register file's WAITING-cell
// drain: spec.md §4.3 requires the whole wait-list be moved to the
// allocator's ready queue atomically, or not at all. Implemented by
// internal/alloc's ThreadTable.
type ReadyQueue interface {
	CanAccept(n int) bool
	PushAll(tids []int32)
}

// RegisterFile is the typed register array for one core.
type RegisterFile struct {
	id         string
	tracer     kernel.Tracer
	ready      ReadyQueue
	maxUpdates int

	cells    map[RegAddr]*RegCell
	waitNext []int32 // shared intrusive backing table, indexed by TID

	writesThisCycle int
	touchedThisCycle map[RegAddr]bool
}

// New creates a register file. numThreads sizes the shared wait-list
// backing table (one slot per thread, since a thread can only be
// parked on one register at a time). maxUpdates bounds how many
// distinct cells may be written per cycle.
func New(id string, tracer kernel.Tracer, ready ReadyQueue, numThreads int, maxUpdates int) *RegisterFile {
	waitNext := make([]int32, numThreads)
	for i := range waitNext {
		waitNext[i] = -1
	}
	return &RegisterFile{
		id:         id,
		tracer:     tracer,
		ready:      ready,
		maxUpdates: maxUpdates,
		cells:      make(map[RegAddr]*RegCell),
		waitNext:   waitNext,
	}
}

// Identity returns the register file's trace identity.
func (rf *RegisterFile) Identity() string { return rf.id }

// NonEmpty is always true: the register file is a fixed resource with
// no natural "empty" state of its own; processes are sensitive to
// specific cells' Subscribe/Write activity instead.
func (rf *RegisterFile) NonEmpty() bool { return true }

func (rf *RegisterFile) cell(addr RegAddr) *RegCell {
	c, ok := rf.cells[addr]
	if !ok {
		c = &RegCell{State: Empty, waitHead: -1, waitTail: -1}
		rf.cells[addr] = c
	}
	return c
}

// BeginCycle resets the per-cycle write bookkeeping. Called once per
// kernel cycle before any commit-phase write, by a periodic process
// the owning core wires in ahead of the pipeline's write-back stage.
func (rf *RegisterFile) BeginCycle() {
	rf.writesThisCycle = 0
	rf.touchedThisCycle = nil
}

// Read returns the cell's current state and value. The value is only
// meaningful when State == Full.
func (rf *RegisterFile) Read(addr RegAddr) RegCell {
	return *rf.cell(addr)
}

// Subscribe parks tid on addr's wait-list, transitioning EMPTY or
// PENDING to WAITING, and returns the state the caller observed. If
// the cell is already FULL, no parking occurs and the caller should
// bypass directly from the returned value.
func (rf *RegisterFile) Subscribe(addr RegAddr, tid int32) RegCell {
	c := rf.cell(addr)
	before := *c
	if c.State == Full {
		return before
	}
	c.State = Waiting
	rf.waitPush(c, tid)
	rf.tracer.Touch(rf.id)
	return before
}

// Write stores value into addr. fromMemory must be true to overwrite a
// cell carrying memory-request metadata (spec.md §4.3). Returns
// (true, nil) on success, (false, nil) if the per-cycle update budget
// is exhausted or the WAITING wakeup could not fully drain (both are
// routine, retried next cycle), and a non-nil error only for the
// internal double-write assertion.
func (rf *RegisterFile) Write(addr RegAddr, value uint64, fromMemory bool) (bool, error) {
	if rf.touchedThisCycle[addr] {
		return false, simerr.New(rf.id, "Write", simerr.SimulationException, "double write to the same register cell in one cycle")
	}
	c := rf.cell(addr)
	if c.Req != nil && !fromMemory {
		return false, simerr.New(rf.id, "Write", simerr.InvalidArgument, "write would discard memory-request metadata without from_memory")
	}
	if rf.writesThisCycle >= rf.maxUpdates {
		return false, nil
	}

	if c.State == Waiting {
		pending := rf.waitPeek(c)
		if !rf.ready.CanAccept(len(pending)) {
			return false, nil
		}
		rf.ready.PushAll(pending)
		rf.waitDrain(c)
	}

	c.State = Full
	c.Value = value
	c.Req = nil

	if rf.touchedThisCycle == nil {
		rf.touchedThisCycle = make(map[RegAddr]bool)
	}
	rf.touchedThisCycle[addr] = true
	rf.writesThisCycle++
	rf.tracer.Touch(rf.id)
	return true, nil
}

// Preload directly sets a cell to FULL with value, bypassing the
// per-cycle write budget and trace validation. For use outside the
// kernel's run loop only: boot-time initial register state (argument
// registers, globals) and test fixtures, before any process has run.
func (rf *RegisterFile) Preload(addr RegAddr, value uint64) {
	c := rf.cell(addr)
	c.State = Full
	c.Value = value
	c.Req = nil
}

// Clear resets a consecutive range of registerType cells to EMPTY,
// discarding any value or metadata. Used when a thread is reused.
func (rf *RegisterFile) Clear(t RegType, base uint32, size uint32) {
	for i := uint32(0); i < size; i++ {
		addr := RegAddr{Type: t, Index: base + i}
		c := rf.cell(addr)
		*c = RegCell{State: Empty, waitHead: -1, waitTail: -1}
	}
	rf.tracer.Touch(rf.id)
}

func (rf *RegisterFile) waitPush(c *RegCell, tid int32) {
	rf.waitNext[tid] = -1
	if c.waitTail == -1 {
		c.waitHead = tid
	} else {
		rf.waitNext[c.waitTail] = tid
	}
	c.waitTail = tid
}

func (rf *RegisterFile) waitPeek(c *RegCell) []int32 {
	var out []int32
	for idx := c.waitHead; idx != -1; idx = rf.waitNext[idx] {
		out = append(out, idx)
	}
	return out
}

func (rf *RegisterFile) waitDrain(c *RegCell) {
	idx := c.waitHead
	for idx != -1 {
		next := rf.waitNext[idx]
		rf.waitNext[idx] = -1
		idx = next
	}
	c.waitHead, c.waitTail = -1, -1
}
