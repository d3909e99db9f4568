package drisc

import (
	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/rau"
	"github.com/behrlich/drisc/internal/regfile"
)

// Boot builds a Simulation from config and seeds a single bootstrap
// family of one thread on core 0 at runAddress (spec.md §6.4). legacy
// marks the boot thread as a legacy-addressed thread (§4.4.1: PC never
// skips the per-line control word).
//
// Seeding goes straight to FamilyActive/ThreadReady, bypassing
// alloc.Controller's multi-cycle CreateState machine entirely, the same
// way regfile.RegisterFile.Preload bypasses the write-back protocol for
// initial register values: nothing contends for the boot family's
// resources before the first cycle runs, so there is nothing for the
// state machine to arbitrate. The seeding itself runs under
// kernel.Kernel.Preload so the ordinary AllocateFamily/Alloc/PopEmpty/
// Set/PushAll calls don't trip the undeclared-storage check meant for
// the run loop.
func Boot(config *Config, runAddress uint64, legacy bool) (*Simulation, error) {
	metrics := NewMetrics()
	sim, err := NewSimulation(config, metrics)
	if err != nil {
		return nil, err
	}

	core := sim.Cores[0]
	var seedErr error

	sim.Kernel.Preload(func() {
		fid, ok := core.Families.AllocateFamily(rau.Normal)
		if !ok {
			seedErr = NewError("Boot", "Boot", ResourceExhaustion, "no family slot available for the boot family")
			return
		}

		intBlockSize := core.IntRAU.BlockSize()
		fltBlockSize := core.FltRAU.BlockSize()

		intBlock, ok := core.IntRAU.Alloc(intBlockSize, fid, rau.Normal)
		if !ok {
			seedErr = NewError("Boot", "Boot", ResourceExhaustion, "no integer register block available for the boot family")
			return
		}
		fltBlock, ok := core.FltRAU.Alloc(fltBlockSize, fid, rau.Normal)
		if !ok {
			seedErr = NewError("Boot", "Boot", ResourceExhaustion, "no float register block available for the boot family")
			return
		}
		intBase := intBlock * intBlockSize
		fltBase := fltBlock * fltBlockSize

		f := core.Families.Get(fid)
		f.PC = runAddress
		f.Start, f.Limit, f.Step = 0, 1, 1
		f.VirtBlockSize, f.PhysBlockSize = 1, 1
		f.PlaceSize, f.NumCores = 1, 1
		f.Regs[regfile.IntReg] = alloc.RegInfo{Locals: intBlockSize, Base: intBase, Size: intBlockSize}
		f.Regs[regfile.FloatReg] = alloc.RegInfo{Locals: fltBlockSize, Base: fltBase, Size: fltBlockSize}
		f.Deps.AllocationDone = true
		f.Deps.NumThreadsAllocated = 1
		f.State = alloc.FamilyActive
		core.Families.Set(fid, f)

		tid, ok := core.Threads.PopEmpty(rau.Normal)
		if !ok {
			seedErr = NewError("Boot", "Boot", ResourceExhaustion, "no thread slot available for the boot thread")
			return
		}
		th := core.Threads.Get(tid)
		th.PC = runAddress
		th.Legacy = legacy
		th.Family = fid
		th.Regs[regfile.IntReg] = alloc.ThreadRegInfo{LocalsBase: intBase, DependentsBase: intBase, SharedsBase: intBase}
		th.Regs[regfile.FloatReg] = alloc.ThreadRegInfo{LocalsBase: fltBase, DependentsBase: fltBase, SharedsBase: fltBase}
		core.Threads.Set(tid, th)
		core.Threads.PushAll([]int32{tid})

		for _, init := range config.InitRegs {
			core.Regs.Preload(regfile.RegAddr{Type: regfile.IntReg, Index: init.Index}, init.Value)
		}
	})

	if seedErr != nil {
		return nil, seedErr
	}
	return sim, nil
}
