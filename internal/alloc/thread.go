package alloc

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/rau"
	"github.com/behrlich/drisc/internal/simerr"
	"github.com/behrlich/drisc/internal/storage"
)

// ThreadState is a thread slot's lifecycle state (spec.md §3.2).
type ThreadState int

const (
	ThreadEmpty ThreadState = iota
	ThreadWaiting
	ThreadReady
	ThreadActive
	ThreadRunning
	ThreadSuspended
	ThreadUnused
	ThreadKilled
)

// ThreadRegInfo is one register type's base indices for a thread.
type ThreadRegInfo struct {
	LocalsBase, DependentsBase, SharedsBase uint32
}

// ThreadDeps tracks the dependency counters that gate cleanup.
type ThreadDeps struct {
	Killed           bool
	PrevCleanedUp    bool
	NumPendingWrites int
}

// Thread is one thread table slot.
type Thread struct {
	PC          uint64
	Legacy      bool // PC addressing never skips the per-line control word (spec.md §4.4.1, §6.4 Boot)
	Regs        [2]ThreadRegInfo // indexed by regfile.RegType
	Deps        ThreadDeps
	NextInBlock int32
	CID         int32
	Family      uint32
	State       ThreadState
	Scratch     map[string]uint64 // per-ISA scratch (FPCR, PSR/FSR/Y, LO/HI, ...)
}

// ThreadTable is the fixed-size per-core thread table. It doubles as
// the regfile.ReadyQueue the register file's wakeup protocol drains
// into: ready threads are a LinkedList of TIDs, budgeted per cycle so
// a WAITING-cell write can genuinely fail to drain (spec.md §4.3).
type ThreadTable struct {
	id      string
	tracer  kernel.Tracer
	threads []Thread
	ctxOf   []rau.Context
	empty   map[rau.Context]*storage.LinkedList
	ready   *storage.LinkedList

	maxReadyPerCycle int
	readyBudget      int
}

// NewThreadTable creates a table partitioned into context-class
// regions, plus a shared ready queue fed by PushAll/CanAccept.
func NewThreadTable(id string, tracer kernel.Tracer, counts map[rau.Context]uint32, maxReadyPerCycle int) *ThreadTable {
	total := counts[rau.Normal] + counts[rau.Reserved] + counts[rau.Exclusive]
	tt := &ThreadTable{
		id:               id,
		tracer:           tracer,
		threads:          make([]Thread, total),
		ctxOf:            make([]rau.Context, total),
		empty:            make(map[rau.Context]*storage.LinkedList, 3),
		ready:            storage.NewLinkedList(id+".ready", tracer, int(total)),
		maxReadyPerCycle: maxReadyPerCycle,
		readyBudget:      maxReadyPerCycle,
	}
	for _, ctx := range []rau.Context{rau.Normal, rau.Reserved, rau.Exclusive} {
		tt.empty[ctx] = storage.NewLinkedList(id+".empty."+ctx.String(), tracer, int(total))
	}

	idx := uint32(0)
	for _, ctx := range []rau.Context{rau.Normal, rau.Reserved, rau.Exclusive} {
		for i := uint32(0); i < counts[ctx]; i++ {
			tt.ctxOf[idx] = ctx
			tt.threads[idx] = Thread{State: ThreadUnused}
			tt.empty[ctx].Append(int32(idx))
			idx++
		}
	}
	return tt
}

// Identity returns the table's trace identity.
func (tt *ThreadTable) Identity() string { return tt.id }

// NonEmpty reports whether the ready queue has a thread waiting for
// the pipeline to fetch it.
func (tt *ThreadTable) NonEmpty() bool { return tt.ready.NonEmpty() }

// Get returns a copy of the thread slot's state.
func (tt *ThreadTable) Get(tid int32) Thread { return tt.threads[tid] }

// Set overwrites a thread slot's state.
func (tt *ThreadTable) Set(tid int32, th Thread) {
	tt.threads[tid] = th
	tt.tracer.Touch(tt.id)
}

// PopEmpty pulls a thread id off ctx's empty/unused free list.
func (tt *ThreadTable) PopEmpty(ctx rau.Context) (int32, bool) {
	return tt.empty[ctx].Pop()
}

// PushEmpty returns a cleaned-up thread to its context's free list.
// Fails with InvalidArgument if the cleanup precondition (spec.md
// §3.2: NumPendingWrites == 0) does not hold.
func (tt *ThreadTable) PushEmpty(tid int32) error {
	th := tt.threads[tid]
	if th.Deps.NumPendingWrites != 0 {
		return simerr.New(tt.id, "PushEmpty", simerr.InvalidArgument, "thread has pending writes")
	}
	ctx := tt.ctxOf[tid]
	tt.threads[tid] = Thread{State: ThreadUnused}
	tt.empty[ctx].Append(tid)
	tt.tracer.Touch(tt.id)
	return nil
}

// BeginCycle resets the ready-queue push budget. Called once per
// kernel cycle alongside the register file's own BeginCycle.
func (tt *ThreadTable) BeginCycle() {
	tt.readyBudget = tt.maxReadyPerCycle
}

// CanAccept implements regfile.ReadyQueue: the ready queue can take n
// more threads this cycle only if the push budget covers them.
func (tt *ThreadTable) CanAccept(n int) bool {
	return n <= tt.readyBudget
}

// PushAll implements regfile.ReadyQueue. Callers must have already
// confirmed CanAccept for this set.
func (tt *ThreadTable) PushAll(tids []int32) {
	for _, tid := range tids {
		tt.threads[tid].State = ThreadReady
		tt.ready.Append(tid)
	}
	tt.readyBudget -= len(tids)
	tt.tracer.Touch(tt.id)
}

// PopReady pops the next thread the fetch stage should switch to.
func (tt *ThreadTable) PopReady() (int32, bool) {
	return tt.ready.Pop()
}
