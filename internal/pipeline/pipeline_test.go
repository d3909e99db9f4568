package pipeline

import (
	"testing"

	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/rau"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionString(t *testing.T) {
	assert.Equal(t, "CONTINUE", Continue.String())
	assert.Equal(t, "FLUSH", Flush.String())
	assert.Equal(t, "STALL", Stall.String())
	assert.Equal(t, "DELAY", Delay.String())
	assert.Equal(t, "IDLE", Idle.String())
}

func TestBypassPrefersExecuteOverMemory(t *testing.T) {
	addr := regfile.RegAddr{Type: regfile.IntReg, Index: 3}
	b := Bypass{
		Execute: &ExecuteOut{Valid: true, DestValid: true, Dest: addr, Result: 11},
		Memory:  &MemoryOut{Valid: true, DestValid: true, Dest: addr, State: regfile.Full, Value: 22},
	}
	v, ok := b.Lookup(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(11), v)
}

func TestBypassFallsBackToMemory(t *testing.T) {
	addr := regfile.RegAddr{Type: regfile.IntReg, Index: 3}
	b := Bypass{Memory: &MemoryOut{Valid: true, DestValid: true, Dest: addr, State: regfile.Full, Value: 22}}
	v, ok := b.Lookup(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(22), v)
}

func TestBypassSkipsNonFullMemoryOutput(t *testing.T) {
	addr := regfile.RegAddr{Type: regfile.IntReg, Index: 3}
	b := Bypass{Memory: &MemoryOut{Valid: true, DestValid: true, Dest: addr, State: regfile.Pending}}
	_, ok := b.Lookup(addr)
	assert.False(t, ok)
}

// fakeThreadSource is a one-thread ThreadSource/kernel.Sensor double.
type fakeThreadSource struct {
	threads map[int32]alloc.Thread
	ready   []int32
}

func newFakeThreadSource(tid int32, th alloc.Thread) *fakeThreadSource {
	return &fakeThreadSource{threads: map[int32]alloc.Thread{tid: th}, ready: []int32{tid}}
}

func (f *fakeThreadSource) PopReady() (int32, bool) {
	if len(f.ready) == 0 {
		return 0, false
	}
	tid := f.ready[0]
	f.ready = f.ready[1:]
	return tid, true
}
func (f *fakeThreadSource) Get(tid int32) alloc.Thread   { return f.threads[tid] }
func (f *fakeThreadSource) Set(tid int32, th alloc.Thread) { f.threads[tid] = th }
func (f *fakeThreadSource) NonEmpty() bool                { return len(f.ready) > 0 }
func (f *fakeThreadSource) Identity() string              { return "threads" }

type fixedICache struct{ line []byte }

func (c *fixedICache) Read(addr uint64, w cache.Waiter) ([]byte, bool) { return c.line, true }

type noopDCache struct{}

func (noopDCache) Read(addr uint64, w cache.Waiter) ([]byte, bool) { return nil, true }
func (noopDCache) Write(addr uint64, data []byte, tid int32) bool { return true }

type noopFPU struct{}

func (noopFPU) QueueOperation(source string, op isa.FPUOp, size uint32, a, b uint64, dest regfile.RegAddr) bool {
	return true
}

type noopAllocator struct{}

func (noopAllocator) Allocate(ctxClass uint32) (uint32, bool)               { return 0, true }
func (noopAllocator) Create(fid uint32, pc uint64) bool                    { return true }
func (noopAllocator) SetProperty(fid uint32, prop uint32, value int64) bool { return true }
func (noopAllocator) Sync(fid uint32) bool                                 { return true }
func (noopAllocator) Detach(fid uint32) bool                               { return true }
func (noopAllocator) Break(fid uint32) bool                                { return true }

func encodeAdd(dest, src0, src1 uint32) uint32 {
	return uint32(isa.OpAdd)<<26 | (dest&0x1f)<<21 | (src0&0x1f)<<16 | (src1&0x1f)<<11
}

func TestAddInstructionFlowsThroughAllSixStages(t *testing.T) {
	k := kernel.NewKernel()
	clock := k.NewClock("core0", 1)

	threads := newFakeThreadSource(0, alloc.Thread{PC: 0})
	tt := alloc.NewThreadTable("core0.threads", k, map[rau.Context]uint32{rau.Normal: 1, rau.Reserved: 0, rau.Exclusive: 0}, 4)
	regs := regfile.New("core0.regfile", k, tt, 4, 4)

	// Seed r1=3, r2=4 as already-FULL cells before the run starts.
	regs.Preload(regfile.RegAddr{Type: regfile.IntReg, Index: 1}, 3)
	regs.Preload(regfile.RegAddr{Type: regfile.IntReg, Index: 2}, 4)

	instrWord := encodeAdd(3, 1, 2)
	line := make([]byte, 16)
	icache := &fixedICache{line: line}

	instrOf := func(line []byte, pc uint64) (isa.Instruction, bool) {
		return isa.Instruction{Word: instrWord, KillAfter: true}, true
	}

	core := NewCore("core0", k, isa.Reference{}, regs, threads, icache, noopDCache{}, nil, k, noopFPU{}, noopAllocator{}, 16, instrOf)
	core.Register(k, clock)

	err := k.Run(12)
	require.NoError(t, err)

	cell := regs.Read(regfile.RegAddr{Type: regfile.IntReg, Index: 3})
	assert.Equal(t, regfile.Full, cell.State)
	assert.Equal(t, uint64(7), cell.Value)
}
