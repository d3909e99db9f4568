package drisc

import (
	"strconv"

	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/fpu"
	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/mmio"
	"github.com/behrlich/drisc/internal/network"
	"github.com/behrlich/drisc/internal/pipeline"
	"github.com/behrlich/drisc/internal/rau"
	"github.com/behrlich/drisc/internal/regfile"
)

// regCompletion adapts one core's RegisterFile/ThreadTable pair to
// cache.Completion: the cache never mutates the register file or
// thread table directly, it only asks this adapter to.
type regCompletion struct {
	regs    *regfile.RegisterFile
	threads *alloc.ThreadTable
}

func (c *regCompletion) DeliverLoad(reg regfile.RegAddr, data []byte, signExtend bool) bool {
	ok, err := c.regs.Write(reg, bytesToUint64(data, signExtend), true)
	return ok && err == nil
}

func (c *regCompletion) CompleteWrite(tid int32) bool {
	th := c.threads.Get(tid)
	if th.Deps.NumPendingWrites == 0 {
		return true
	}
	th.Deps.NumPendingWrites--
	c.threads.Set(tid, th)
	return true
}

func bytesToUint64(data []byte, signExtend bool) uint64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}
	if signExtend && len(data) > 0 && len(data) < 8 && data[len(data)-1]&0x80 != 0 {
		for i := len(data); i < 8; i++ {
			v |= 0xff << (8 * i)
		}
	}
	return v
}

// fpuDestination adapts one core's RegisterFile to fpu.Destination.
// CheckFPUOutputAvailability always answers true: this simulator does
// not model a destination register going away out from under an
// in-flight FPU op (that would require tracking thread-kill-driven
// register invalidation, which spec.md's scenarios never exercise),
// so every completed op is delivered.
type fpuDestination struct {
	regs *regfile.RegisterFile
}

func (d *fpuDestination) CheckFPUOutputAvailability(addr regfile.RegAddr) bool { return true }

func (d *fpuDestination) WriteFPUResult(addr regfile.RegAddr, value uint64) bool {
	ok, err := d.regs.Write(addr, value, false)
	return ok && err == nil
}

// CoreSim bundles every per-core component SPEC_FULL.md names: the six-
// stage pipeline, its register file and family/thread tables, the two
// register-block allocators, the allocator's create-state Controller,
// split I/D caches over the shared chip Memory, a reference FPU, the
// core's ring/delegation attachment, and its MMIO surface.
type CoreSim struct {
	ID string

	Clock     *kernel.Clock
	Regs      *regfile.RegisterFile
	Families  *alloc.FamilyTable
	Threads   *alloc.ThreadTable
	IntRAU    *rau.RAUnit
	FltRAU    *rau.RAUnit
	Allocator *alloc.Controller
	ICache    *cache.Cache
	DCache    *cache.Cache
	FPU       *fpu.Reference
	Ring      *network.Ring
	Pipeline  *pipeline.Core
	MMIO      *mmio.IOMatchUnit

	Action   *mmio.ActionDevice
	DebugOut *mmio.DebugDevice
	DebugErr *mmio.DebugDevice
	Perf     *mmio.PerfCountersDevice
	ASR      *mmio.RegisterFileDevice
	APR      *mmio.RegisterFileDevice
	MMU      *mmio.MMU
}

// Simulation is the whole chip: every core plus the shared backing
// memory and the metrics every MMIO perfcounters device and CLI report
// reads from.
type Simulation struct {
	Kernel  *kernel.Kernel
	Memory  *Memory
	Metrics *Metrics
	Cores   []*CoreSim
	Config  *Config
}

// mmioBase lays out each core's sub-device address windows, one
// region per core so a single flat address space can address any
// core's MMIO surface (spec.md §6.3 names the devices; it leaves the
// base-address layout to configuration — this fixed per-core stride
// is the simplest scheme that satisfies "a base address derived from
// configuration").
const mmioBase = uint64(0xF000_0000)
const mmioCoreStride = uint64(0x0010_0000)

// NewSimulation constructs every core named by config's NumCores
// option (default 1) over a freshly created kernel and shared Memory.
func NewSimulation(config *Config, metrics *Metrics) (*Simulation, error) {
	lineSize := uint32(config.Int("CacheLineSize", 32))
	icAssoc := uint32(config.Int("IcCacheAssoc", 2))
	icSets := uint32(config.Int("IcCacheSets", 64))
	dcAssoc := uint32(config.Int("DcCacheAssoc", 2))
	dcSets := uint32(config.Int("DcCacheSets", 64))
	numInt := config.Int("NumIntRegisters", 1024)
	numFlt := config.Int("NumFltRegisters", 1024)
	intBlockSize := uint32(config.Int("IntRegistersBlockSize", 32))
	fltBlockSize := uint32(config.Int("FltRegistersBlockSize", 32))
	numFamilies := config.Int("NumFamilies", 8)
	numThreads := config.Int("NumThreads", 64)
	numAPR := uint32(config.Int("NumAncillaryRegisters", 16))
	syncCap := config.Int("OutgoingBufferSize", 8)
	numCores := config.Int("NumCores", 1)
	if numCores < 1 {
		numCores = 1
	}

	memSize := uint64(numCores) * uint64(numInt+numFlt) * 8 * 1024
	if memSize < 1<<20 {
		memSize = 1 << 20
	}

	k := kernel.NewKernel()
	mem := NewMemory("memory", memSize, uint64(lineSize), 2)
	chipClock := k.NewClock("chip", 1)

	sim := &Simulation{Kernel: k, Memory: mem, Metrics: metrics, Config: config}

	exclusive := config.Int("ExclusiveContextSlots", 1)
	ctxCounts := func(total int) map[rau.Context]uint32 {
		if total < 2+exclusive {
			total = 2 + exclusive
		}
		general := uint32(total - 1 - exclusive)
		return map[rau.Context]uint32{rau.Normal: general, rau.Reserved: 1, rau.Exclusive: uint32(exclusive)}
	}
	intBlocks := uint32(numInt)/intBlockSize + 2
	fltBlocks := uint32(numFlt)/fltBlockSize + 2

	rings := make([]*network.Ring, numCores)
	clocks := make([]*kernel.Clock, numCores)
	memoryIdentities := make([]string, 0, numCores*4)
	for i := 0; i < numCores; i++ {
		cs, err := newCoreSim(k, mem, i, lineSize, icAssoc, icSets, dcAssoc, dcSets,
			numThreads, intBlockSize, fltBlockSize, intBlocks, fltBlocks,
			numFamilies, ctxCounts, numAPR, syncCap, metrics, i == 0)
		if err != nil {
			return nil, err
		}
		sim.Cores = append(sim.Cores, cs)
		rings[i] = cs.Ring
		clocks[i] = cs.Clock
		memoryIdentities = append(memoryIdentities, cs.ICache.Identity(), cs.DCache.Identity(),
			cs.Regs.Identity(), cs.Threads.Identity())
	}
	registerRingForwarding(k, rings, clocks)

	// mem.Tick delivers completions into every core's cache, regfile, and
	// thread table (via regCompletion), so it must declare all of them up
	// front: built only once every core's identities are known.
	k.NewPeriodicProcess("memory.tick", chipClock, func(commit bool) kernel.Result {
		if !commit {
			if !mem.NonEmpty() {
				return kernel.Delayed
			}
			return kernel.Success
		}
		mem.Tick()
		return kernel.Success
	}).Declare(memoryIdentities...)

	return sim, nil
}

func newCoreSim(k *kernel.Kernel, mem *Memory, idx int, lineSize, icAssoc, icSets, dcAssoc, dcSets uint32,
	numThreads int, intBlockSize, fltBlockSize, intBlocks, fltBlocks uint32, numFamilies int,
	ctxCounts func(int) map[rau.Context]uint32, numAPR uint32, syncCap int, metrics *Metrics, holdsToken bool) (*CoreSim, error) {

	id := coreID(idx)
	clock := k.NewClock(id, 1)

	threads := alloc.NewThreadTable(id+".threads", k, ctxCounts(numThreads), numThreads)
	regs := regfile.New(id+".regfile", k, threads, numThreads, 4)
	families := alloc.NewFamilyTable(id+".families", k, ctxCounts(numFamilies))

	intRAU, err := rau.New(id+".intrau", k, intBlockSize, intBlocks)
	if err != nil {
		return nil, WrapError(id, "NewSimulation", err)
	}
	fltRAU, err := rau.New(id+".fltrau", k, fltBlockSize, fltBlocks)
	if err != nil {
		return nil, WrapError(id, "NewSimulation", err)
	}
	controller := alloc.NewController(id+".allocator", k, families, threads, intRAU, fltRAU)

	completion := &regCompletion{regs: regs, threads: threads}
	icache, err := cache.New(id+".icache", k, lineSize, icSets, icAssoc, mem, completion, clock.CycleNo)
	if err != nil {
		return nil, WrapError(id, "NewSimulation", err)
	}
	dcache, err := cache.New(id+".dcache", k, lineSize, dcSets, dcAssoc, mem, completion, clock.CycleNo)
	if err != nil {
		return nil, WrapError(id, "NewSimulation", err)
	}
	icache.SetMetrics(metrics)
	dcache.SetMetrics(metrics)

	fpuUnit := fpu.NewReference(id+".fpu", &fpuDestination{regs: regs}, 4, 4)
	ring := network.NewRing(id+".ring", k, syncCap, holdsToken)

	base := mmioBase + uint64(idx)*mmioCoreStride
	match := mmio.NewIOMatchUnit(id + ".mmio")
	action := mmio.NewActionDevice(base)
	debugOut := mmio.NewDebugDevice(id+".debug.out", base+0x1000, 4096)
	debugErr := mmio.NewDebugDevice(id+".debug.err", base+0x2000, 4096)
	perf := mmio.NewPerfCountersDevice(base+0x3000, metrics)
	asr := mmio.NewRegisterFileDevice(id+".asr", base+0x4000, numAPR, mmio.ReadWrite)
	apr := mmio.NewRegisterFileDevice(id+".apr", base+0x5000, numAPR, mmio.ReadWrite)
	mmu := mmio.NewMMU(id+".mmu", uint64(lineSize)*uint64(icSets))
	mmuDev := mmio.NewMMUDevice(base+0x6000, mmu)

	for _, dev := range []mmio.Device{action, debugOut, debugErr, perf, asr, apr, mmuDev} {
		if err := match.Register(dev); err != nil {
			return nil, WrapError(id, "NewSimulation", err)
		}
	}
	match.Finalize()

	// Registered ahead of the pipeline so its acquire call resets the
	// per-cycle register-write and ready-queue budgets before Writeback
	// writes in the same cycle.
	k.NewPeriodicProcess(id+".begincycle", clock, func(commit bool) kernel.Result {
		regs.BeginCycle()
		threads.BeginCycle()
		return kernel.Delayed
	})

	core := pipeline.NewCore(id, k, isa.Reference{}, regs, threads, icache, dcache, match, k, fpuUnit, controller,
		uint64(lineSize), instructionFromLine)
	core.SetMetrics(metrics)
	core.Register(k, clock)
	controller.Register(k, clock)

	// A cache-miss completion only marks its line FULL (cache.go's
	// OnMemoryReadCompleted); nothing else in the core drives delivery
	// of parked waiters to the register file, so each cache gets its own
	// one-waiter-per-cycle drain process here (spec.md §4.6's "one
	// register per cycle" miss-completion rule).
	for _, c := range []*cache.Cache{icache, dcache} {
		cc := c
		k.NewPeriodicProcess(cc.Identity()+".drain", clock, func(commit bool) kernel.Result {
			addr, ok := cc.PendingWaiterLine()
			if !ok {
				return kernel.Delayed
			}
			if !commit {
				return kernel.Success
			}
			if !cc.DrainOneWaiter(addr) {
				return kernel.Failed
			}
			return kernel.Success
		}).Declare(cc.Identity(), regs.Identity(), threads.Identity())
	}

	fpuClock := clock
	k.NewPeriodicProcess(id+".fpu.tick", fpuClock, func(commit bool) kernel.Result {
		if !commit {
			if !fpuUnit.NonEmpty() {
				return kernel.Delayed
			}
			return kernel.Success
		}
		fpuUnit.Tick()
		return kernel.Success
	}).Declare(regs.Identity())

	return &CoreSim{
		ID: id, Clock: clock, Regs: regs, Families: families, Threads: threads,
		IntRAU: intRAU, FltRAU: fltRAU, Allocator: controller, ICache: icache, DCache: dcache,
		FPU: fpuUnit, Ring: ring, Pipeline: core, MMIO: match,
		Action: action, DebugOut: debugOut, DebugErr: debugErr, Perf: perf, ASR: asr, APR: apr, MMU: mmu,
	}, nil
}

func coreID(idx int) string {
	return "core" + strconv.Itoa(idx)
}

// instructionFromLine reads the 4-byte instruction word at pc's offset
// within a fetched cache line (spec.md §4.4.1). The line's control word
// is not decoded: the returned Instruction always has WantSwitch and
// KillAfter false.
func instructionFromLine(line []byte, pc uint64) (isa.Instruction, bool) {
	off := pc % uint64(len(line))
	if off+4 > uint64(len(line)) {
		return isa.Instruction{}, false
	}
	word := uint32(line[off]) | uint32(line[off+1])<<8 | uint32(line[off+2])<<16 | uint32(line[off+3])<<24
	return isa.Instruction{Word: word}, true
}

// registerRingForwarding installs one periodic process per core that
// moves ring-link traffic not addressed to this core along to its
// neighbour, and rotates the create token among cores that want it
// (spec.md §3.5, §4.7). No Controller today originates cross-core
// create/register-delegation traffic (the Controller's own doc comment
// flags this), so this loop currently only keeps the fabric itself
// live and testable; it is the landing point for that future wiring.
func registerRingForwarding(k *kernel.Kernel, rings []*network.Ring, clocks []*kernel.Clock) {
	if len(rings) < 2 {
		return
	}
	for i, r := range rings {
		ring := r
		nextRing := rings[(i+1)%len(rings)]
		k.NewProcess(ring.Identity()+".forward", clocks[i], func(commit bool) kernel.Result {
			if !commit {
				if !ring.NonEmpty() {
					return kernel.Delayed
				}
				return kernel.Success
			}
			ring.ForwardLink()
			ring.PassToken(nextRing)
			return kernel.Success
		}, ring).Declare(ring.Identity(), nextRing.Identity())
	}
}
