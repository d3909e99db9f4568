package pipeline

import (
	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/behrlich/drisc/internal/storage"
)

// Core wires the six pipeline stages together over their latches. One
// Core exists per simulated processor core; every latch is a
// storage.Register so the kernel's trace validator and two-phase
// commit apply uniformly to stage-to-stage handoff.
type Core struct {
	id string

	decoder   isa.Decoder
	regs      *regfile.RegisterFile
	threads   ThreadSource
	icache    ICache
	dcache    DCache
	mmio      MMIO
	halter    Halter
	fpuUnit   FPU
	allocator Allocator
	metrics   InstructionCounter

	fetchOut   *storage.Register[FetchOut]
	decodeOut  *storage.Register[DecodeOut]
	readOut    *storage.Register[ReadOut]
	executeOut *storage.Register[ExecuteOut]
	memoryOut  *storage.Register[MemoryOut]

	// iMemory provides the raw instruction word for a PC once the
	// I-cache line containing it is FULL. Grounded on spec.md §4.4.1:
	// "extracts the next instruction" from the fetched line.
	iMemory func(line []byte, pc uint64) (isa.Instruction, bool)

	lineSize uint64

	switchPending bool
	currentTID    int32
	haveTID       bool

	// pendingFetch/pendingRead cache the outcome of a stage's fallible,
	// side-effecting acquire-phase work (thread pop, cache probe,
	// register subscribe) so that the commit-phase call for the same
	// cycle only publishes it, instead of repeating the external call
	// and double-applying its side effect.
	pendingFetch     *fetchResult
	pendingRead      *ReadOut
	pendingExecute   *ExecuteOut
	pendingMemory    *memoryResult
	pendingWriteback *writebackResult
}

// memoryResult is the acquire-phase outcome of memoryDelegate, carried
// forward to its own commit call.
type memoryResult struct {
	out     MemoryOut
	isStore bool
}

// writebackResult is the acquire-phase outcome of writebackDelegate,
// carried forward to its own commit call.
type writebackResult struct {
	in      MemoryOut
	suspend bool
	release bool
}

// fetchResult is the acquire-phase outcome of fetchDelegate, carried
// forward to its own commit call.
type fetchResult struct {
	tid          int32
	poppedNewTID bool
	pc           uint64
	instr        isa.Instruction
	mustSwitch   bool
}

// NewCore creates a pipeline core over its collaborators.
func NewCore(
	id string,
	tracer kernel.Tracer,
	decoder isa.Decoder,
	regs *regfile.RegisterFile,
	threads ThreadSource,
	icache ICache,
	dcache DCache,
	mmio MMIO,
	halter Halter,
	fpuUnit FPU,
	allocator Allocator,
	lineSize uint64,
	instrOf func(line []byte, pc uint64) (isa.Instruction, bool),
) *Core {
	return &Core{
		id:         id,
		decoder:    decoder,
		regs:       regs,
		threads:    threads,
		icache:     icache,
		dcache:     dcache,
		mmio:       mmio,
		halter:     halter,
		fpuUnit:    fpuUnit,
		allocator:  allocator,
		fetchOut:   storage.NewRegister[FetchOut](id+".fetch.out", tracer),
		decodeOut:  storage.NewRegister[DecodeOut](id+".decode.out", tracer),
		readOut:    storage.NewRegister[ReadOut](id+".read.out", tracer),
		executeOut: storage.NewRegister[ExecuteOut](id+".execute.out", tracer),
		memoryOut:  storage.NewRegister[MemoryOut](id+".memory.out", tracer),
		iMemory:    instrOf,
		lineSize:   lineSize,
	}
}

// Register installs all six stage processes on k under clock c, and
// returns them in pipeline order for the caller to keep if desired.
func (c *Core) Register(k *kernel.Kernel, clock *kernel.Clock) []*kernel.Process {
	fetch := k.NewProcess(c.id+".fetch", clock, c.fetchDelegate, c.threads.(kernel.Sensor))
	fetch.Declare(c.fetchOut.Identity(), c.id+".threads", c.id+".icache")

	decode := k.NewProcess(c.id+".decode", clock, c.decodeDelegate, c.fetchOut)
	decode.Declare(c.decodeOut.Identity(), c.fetchOut.Identity())

	read := k.NewProcess(c.id+".read", clock, c.readDelegate, c.decodeOut)
	read.Declare(c.readOut.Identity(), c.decodeOut.Identity(), c.id+".regfile")

	execute := k.NewProcess(c.id+".execute", clock, c.executeDelegate, c.readOut)
	execute.Declare(c.executeOut.Identity(), c.readOut.Identity(), c.fetchOut.Identity(), c.decodeOut.Identity(), c.id+".fpu", c.id+".allocator", c.id+".threads")

	memory := k.NewProcess(c.id+".memory", clock, c.memoryDelegate, c.executeOut)
	memory.Declare(c.memoryOut.Identity(), c.executeOut.Identity(), c.id+".dcache", c.id+".threads")

	writeback := k.NewProcess(c.id+".writeback", clock, c.writebackDelegate, c.memoryOut)
	writeback.Declare(c.memoryOut.Identity(), c.id+".regfile", c.id+".threads")

	return []*kernel.Process{fetch, decode, read, execute, memory, writeback}
}

// fetchDelegate implements spec.md §4.4.1.
//
// The thread pop and I-cache probe below are fallible and mutate
// external state (they dequeue a thread, and may allocate a cache
// line), so they must run exactly once per cycle. They run during the
// acquire call (commit == false) and their outcome is cached in
// pendingFetch; the commit call that follows in the same cycle only
// publishes that cached outcome, never repeats the external calls.
func (c *Core) fetchDelegate(commit bool) kernel.Result {
	if commit {
		r := c.pendingFetch
		c.pendingFetch = nil
		c.commitFetch(r)
		return kernel.Success
	}

	if c.fetchOut.NonEmpty() {
		return kernel.Delayed // downstream hasn't drained last cycle's output yet
	}

	tid := c.currentTID
	poppedNew := false
	if !c.haveTID || c.switchPending {
		t, ok := c.threads.PopReady()
		if !ok {
			if c.haveTID {
				return kernel.Delayed // nothing new to switch to; keep running current thread
			}
			return kernel.Failed
		}
		tid = t
		poppedNew = true
	}

	th := c.threads.Get(tid)
	pc := th.PC
	if !th.Legacy && pc%c.lineSize == 0 {
		pc += c.controlWordSize()
	}

	line, ok := c.icache.Read(c.lineAddr(pc), cache.Waiter{TID: tid})
	if !ok {
		return kernel.Failed // miss: stall, retried once the line lands
	}

	instr, ok := c.iMemory(line, pc)
	if !ok {
		return kernel.Failed
	}

	mustSwitch := instr.KillAfter || c.crossesLineEnd(pc)
	if !mustSwitch && instr.WantSwitch {
		mustSwitch = true // spec.md requires >1 ready thread to switch on wantSwitch alone;
		// Core has no visibility into queue depth here, so it defers to
		// the next Fetch's PopReady returning ok=false to mean "stay put".
	}

	c.pendingFetch = &fetchResult{tid: tid, poppedNewTID: poppedNew, pc: pc, instr: instr, mustSwitch: mustSwitch}
	return kernel.Success
}

// commitFetch applies a cached fetchResult: publishes fetchOut and
// updates the issuing thread's PC/state. No external fallible call is
// repeated here.
func (c *Core) commitFetch(r *fetchResult) {
	c.fetchOut.Write(FetchOut{
		Valid:      true,
		TID:        r.tid,
		PC:         r.pc,
		Instr:      r.instr,
		WantSwitch: r.instr.WantSwitch,
		KillAfter:  r.instr.KillAfter,
	})

	th := c.threads.Get(r.tid)
	th.PC = r.pc + 4
	if r.instr.KillAfter {
		th.State = alloc.ThreadKilled
		c.threads.Set(r.tid, th)
		c.haveTID = false
	} else {
		c.threads.Set(r.tid, th)
		if r.poppedNewTID {
			c.currentTID = r.tid
			c.haveTID = true
		}
	}
	c.switchPending = r.mustSwitch
}

// SetMetrics installs the counter Writeback reports retired
// instructions to. Optional: a Core with none just doesn't count.
func (c *Core) SetMetrics(m InstructionCounter) { c.metrics = m }

func (c *Core) controlWordSize() uint64 { return 4 }

func (c *Core) lineAddr(pc uint64) uint64 { return pc - pc%c.lineSize }

func (c *Core) crossesLineEnd(pc uint64) bool {
	return (pc+4)%c.lineSize == 0
}

// decodeDelegate implements spec.md §4.4.2.
func (c *Core) decodeDelegate(commit bool) kernel.Result {
	in, ok := c.fetchOut.Read()
	if !ok {
		return kernel.Delayed
	}
	if c.decodeOut.NonEmpty() {
		return kernel.Failed
	}

	decoded, err := c.decoder.Decode(in.Instr)
	if err != nil {
		// An undecodable word is not reported as an error: the stage
		// returns Failed and retries the same word on every later cycle.
		return kernel.Failed
	}

	if !commit {
		return kernel.Success
	}
	c.fetchOut.Clear()
	c.decodeOut.Write(DecodeOut{Valid: true, TID: in.TID, PC: in.PC, Decoded: decoded})
	return kernel.Success
}

// readDelegate implements spec.md §4.4.3.
//
// regs.Subscribe parks a waiter on a non-FULL source cell, which is a
// fallible, side-effecting call and so must run exactly once per
// cycle; it runs during acquire and its result is cached in
// pendingRead for the matching commit call to publish.
func (c *Core) readDelegate(commit bool) kernel.Result {
	if commit {
		out := c.pendingRead
		c.pendingRead = nil
		c.decodeOut.Clear()
		c.readOut.Write(*out)
		return kernel.Success
	}

	in, ok := c.decodeOut.Read()
	if !ok {
		return kernel.Delayed
	}
	if c.readOut.NonEmpty() {
		return kernel.Failed
	}

	// Execute/Memory's output latches still hold last cycle's values at
	// this point: processes commit in registration order (fetch, decode,
	// read, execute, memory, writeback) within one kernel cycle, so
	// Read's commit runs before Execute/Memory overwrite or clear them.
	var execOut *ExecuteOut
	if v, ok := c.executeOut.Read(); ok {
		execOut = &v
	}
	var memOut *MemoryOut
	if v, ok := c.memoryOut.Read(); ok {
		memOut = &v
	}
	bypass := Bypass{Execute: execOut, Memory: memOut}
	var src [2]OperandValue
	for i := 0; i < 2; i++ {
		if !in.Decoded.SrcValid[i] {
			continue
		}
		addr := in.Decoded.Src[i]
		if v, ok := bypass.Lookup(addr); ok {
			src[i] = OperandValue{State: regfile.Full, Value: v, Addr: addr}
			continue
		}
		cell := c.regs.Subscribe(addr, in.TID)
		src[i] = OperandValue{State: cell.State, Value: cell.Value, Addr: addr}
	}

	c.pendingRead = &ReadOut{Valid: true, TID: in.TID, PC: in.PC, Decoded: in.Decoded, Src: src}
	return kernel.Success
}
