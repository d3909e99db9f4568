package kernel

import (
	"fmt"
	"strings"

	"github.com/behrlich/drisc/internal/simerr"
)

// Kernel owns every Clock, Process, and Port in a simulation and drives
// the two-phase cycle model described in spec.md §4.1. It is the
// single point of truth for "what cycle is it" and "did this process
// write something it never declared".
type Kernel struct {
	clocks           []*Clock
	processesByClock map[*Clock][]*Process
	ports            []*Port

	currentProcess *Process
	observed       map[*Process]map[string]bool

	fatalErr error
	haltErr  error
}

// NewKernel creates an empty kernel with no clocks or processes.
func NewKernel() *Kernel {
	return &Kernel{processesByClock: make(map[*Clock][]*Process)}
}

// NewClock creates and registers a clock domain on this kernel.
func (k *Kernel) NewClock(name string, frequency uint) *Clock {
	c := NewClock(name, frequency)
	k.clocks = append(k.clocks, c)
	return c
}

// NewProcess registers a process on clock, run whenever any of
// sensitive is non-empty. Call Declare on the result to register the
// storage identities it is allowed to write.
func (k *Kernel) NewProcess(name string, clock *Clock, delegate Delegate, sensitive ...Sensor) *Process {
	p := newProcess(name, clock, delegate, false, sensitive)
	k.processesByClock[clock] = append(k.processesByClock[clock], p)
	return p
}

// NewPeriodicProcess registers a process that runs every cycle of its
// clock regardless of storage state (used by create-token rotation and
// similar always-on housekeeping).
func (k *Kernel) NewPeriodicProcess(name string, clock *Clock, delegate Delegate) *Process {
	p := newProcess(name, clock, delegate, true, nil)
	k.processesByClock[clock] = append(k.processesByClock[clock], p)
	return p
}

// NewPort registers an arbitrated port with a cyclic-rotation priority
// list in the order given.
func (k *Kernel) NewPort(name string, clock *Clock, members ...*Process) *Port {
	p := newPort(name, clock, true, members)
	k.ports = append(k.ports, p)
	return p
}

// NewDedicatedPort registers a port with exactly one owner: owner wins
// whenever it is runnable, no contention possible.
func (k *Kernel) NewDedicatedPort(name string, clock *Clock, owner *Process) *Port {
	p := newPort(name, clock, false, []*Process{owner})
	k.ports = append(k.ports, p)
	return p
}

// Preload runs fn under a permissive pseudo-process so storage writes
// inside it (FamilyTable.Set, ThreadTable.PushAll, RAUnit.Alloc, …)
// don't trip the undeclared-storage check: for boot-time seeding only,
// before Run has started and nothing else could be racing with it.
func (k *Kernel) Preload(fn func()) {
	boot := &Process{name: "kernel.preload", permissive: true}
	prev := k.currentProcess
	k.currentProcess = boot
	fn()
	k.currentProcess = prev
}

// Halt requests a graceful stop of the simulation (e.g. the pipeline
// retired a program-termination instruction). The first call wins; Run
// returns err once the in-flight cycle finishes.
func (k *Kernel) Halt(err error) {
	if k.haltErr == nil {
		k.haltErr = err
	}
}

func (k *Kernel) abort(err error) {
	if k.fatalErr == nil {
		k.fatalErr = err
	}
}

// Run steps every clock domain in frequency-ratio lock step until a
// process signals Halt, a trace violation or deadlock aborts the run,
// or the kernel's reference clock (the first one created) reaches
// maxCycles. maxCycles == 0 means run until halted or aborted.
func (k *Kernel) Run(maxCycles uint64) error {
	if len(k.clocks) == 0 {
		return nil
	}
	masterLCM := k.clocks[0].frequency
	for _, c := range k.clocks[1:] {
		masterLCM = lcm(masterLCM, c.frequency)
	}
	if masterLCM == 0 {
		masterLCM = 1
	}

	var substep uint64
	for {
		if k.fatalErr != nil {
			return k.fatalErr
		}
		if k.haltErr != nil {
			return k.haltErr
		}
		if maxCycles > 0 && k.clocks[0].CycleNo() >= maxCycles {
			return nil
		}
		for _, c := range k.clocks {
			step := masterLCM / c.frequency
			if step == 0 {
				step = 1
			}
			if substep%uint64(step) != 0 {
				continue
			}
			if err := k.stepClock(c); err != nil {
				return err
			}
		}
		substep++
	}
}

// stepClock runs one full acquire/commit cycle for every process on c,
// then ticks c.
func (k *Kernel) stepClock(c *Clock) error {
	procs := k.processesByClock[c]
	if len(procs) == 0 {
		c.tick()
		return nil
	}

	runnable := make(map[*Process]bool, len(procs))
	runnableList := make([]*Process, 0, len(procs))
	for _, p := range procs {
		if p.runnable() {
			runnable[p] = true
			runnableList = append(runnableList, p)
		}
	}

	for _, port := range k.ports {
		if port.clock == c {
			port.resolve(runnable)
		}
	}

	// Acquire phase: commits suppressed, ports already resolved above
	// so Port.Request answers consistently regardless of call order.
	for _, p := range runnableList {
		p.lastResult = p.delegate(false)
	}

	allFailed := len(runnableList) > 0
	for _, p := range runnableList {
		if p.lastResult != Failed {
			allFailed = false
		}
	}
	if allFailed {
		return k.deadlock(c, runnableList)
	}

	// Commit phase: only processes whose acquire succeeded run again.
	for _, p := range runnableList {
		if p.lastResult != Success {
			continue
		}
		k.currentProcess = p
		res := p.delegate(true)
		k.currentProcess = nil
		if k.fatalErr != nil {
			return k.fatalErr
		}
		if res != Success {
			return simerr.NewAtCycle("Kernel", "commit", simerr.SimulationException, c.CycleNo(),
				fmt.Sprintf("process %q returned %s in commit phase after succeeding acquire", p.name, res))
		}
	}

	c.tick()
	return nil
}

// deadlock builds the diagnostic dump spec.md §4.1 requires: the
// stuck processes and the storages each is waiting on.
func (k *Kernel) deadlock(c *Clock, procs []*Process) error {
	var b strings.Builder
	fmt.Fprintf(&b, "deadlock on clock %q at cycle %d: %d process(es) all failed arbitration\n", c.name, c.cycle, len(procs))
	for _, p := range procs {
		fmt.Fprintf(&b, "  %s waiting on:", p.name)
		for _, s := range p.sensitive {
			if st, ok := s.(Storage); ok {
				fmt.Fprintf(&b, " %s", st.Identity())
			}
		}
		b.WriteByte('\n')
	}
	return simerr.NewAtCycle("Kernel", "Run", simerr.Deadlock, c.cycle, b.String())
}
