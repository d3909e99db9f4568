// Package alloc implements the family and thread tables: fixed-size
// per-core tables of family and thread state, with free lists
// segregated by context class (spec.md §3.1, §3.2, dependency item 4).
package alloc

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/rau"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/behrlich/drisc/internal/simerr"
	"github.com/behrlich/drisc/internal/storage"
)

// FamilyState is a family slot's lifecycle state (spec.md §3.1).
type FamilyState int

const (
	FamilyEmpty FamilyState = iota
	FamilyAllocated
	FamilyCreateQueued
	FamilyCreating
	FamilyIdle
	FamilyActive
	FamilyKilled
)

// RegInfo is one register type's bookkeeping for a family.
type RegInfo struct {
	Globals, Shareds, Locals uint32
	Base, Size               uint32
	LastShareds              uint32
}

// FamilyDeps tracks the dependency counters that gate FreeFamily.
type FamilyDeps struct {
	AllocationDone      bool
	PrevSynchronized    bool
	Detached            bool
	SyncSent            bool
	NumThreadsAllocated int
	NumPendingReads     int
}

// SyncDescriptor names where a family's completion notification lands.
type SyncDescriptor struct {
	PID         uint32
	ExitCodeReg regfile.RegAddr
	DoneFlag    bool
}

// Family is one family table slot.
type Family struct {
	PC                           uint64
	Start, Limit, Step           int64
	Infinite                     bool
	VirtBlockSize, PhysBlockSize uint32
	PlaceSize, NumCores          uint32
	Regs                         [2]RegInfo // indexed by regfile.RegType
	Deps                         FamilyDeps
	Capability                   uint64
	Sync                         SyncDescriptor
	State                        FamilyState
	Context                      rau.Context
}

// FamilyTable is the fixed-size per-core family table.
type FamilyTable struct {
	id       string
	tracer   kernel.Tracer
	families []Family
	ctxOf    []rau.Context
	freeList map[rau.Context]*storage.LinkedList
}

// NewFamilyTable creates a table partitioned into contiguous
// context-class regions sized by counts[Normal], counts[Reserved],
// counts[Exclusive]. Every slot starts on its class's free list.
func NewFamilyTable(id string, tracer kernel.Tracer, counts map[rau.Context]uint32) *FamilyTable {
	total := counts[rau.Normal] + counts[rau.Reserved] + counts[rau.Exclusive]
	ft := &FamilyTable{
		id:       id,
		tracer:   tracer,
		families: make([]Family, total),
		ctxOf:    make([]rau.Context, total),
		freeList: make(map[rau.Context]*storage.LinkedList, 3),
	}
	for _, ctx := range []rau.Context{rau.Normal, rau.Reserved, rau.Exclusive} {
		ft.freeList[ctx] = storage.NewLinkedList(id+".free."+ctx.String(), tracer, int(total))
	}

	idx := uint32(0)
	for _, ctx := range []rau.Context{rau.Normal, rau.Reserved, rau.Exclusive} {
		for i := uint32(0); i < counts[ctx]; i++ {
			ft.ctxOf[idx] = ctx
			ft.freeList[ctx].Append(int32(idx))
			idx++
		}
	}
	return ft
}

// Identity returns the table's trace identity.
func (ft *FamilyTable) Identity() string { return ft.id }

// NonEmpty is always true: the table is a fixed resource.
func (ft *FamilyTable) NonEmpty() bool { return true }

// Get returns a copy of the family slot's state.
func (ft *FamilyTable) Get(fid uint32) Family { return ft.families[fid] }

// Set overwrites a family slot's state.
func (ft *FamilyTable) Set(fid uint32, f Family) {
	ft.families[fid] = f
	ft.tracer.Touch(ft.id)
}

// AllocateFamily pops a slot from ctx's free list and marks it
// ALLOCATED. Returns (0, false) if that class's free list is empty —
// routine, retried next cycle.
func (ft *FamilyTable) AllocateFamily(ctx rau.Context) (uint32, bool) {
	idx, ok := ft.freeList[ctx].Pop()
	if !ok {
		return 0, false
	}
	fid := uint32(idx)
	ft.families[fid] = Family{State: FamilyAllocated, Context: ctx}
	ft.tracer.Touch(ft.id)
	return fid, true
}

// FreeFamily returns a family slot to its context's free list. Fails
// with InvalidArgument if the cleanup precondition (spec.md §3.1) does
// not hold: !Detached && SyncSent && AllocationDone &&
// NumThreadsAllocated==0 && NumPendingReads==0.
func (ft *FamilyTable) FreeFamily(fid uint32) error {
	f := ft.families[fid]
	d := f.Deps
	if d.Detached || !d.SyncSent || !d.AllocationDone || d.NumThreadsAllocated != 0 || d.NumPendingReads != 0 {
		return simerr.New(ft.id, "FreeFamily", simerr.InvalidArgument, "family cleanup precondition not met")
	}
	ctx := ft.ctxOf[fid]
	ft.families[fid] = Family{State: FamilyEmpty}
	ft.freeList[ctx].Push(int32(fid))
	ft.tracer.Touch(ft.id)
	return nil
}
