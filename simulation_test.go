package drisc

import (
	"testing"

	"github.com/behrlich/drisc/internal/isa"
	"github.com/stretchr/testify/require"
)

// encodeWord packs the reference ISA's fixed-width encoding (isa.Reference):
// opcode[31:26], dest[25:21], src0[20:16], src1[15:11], imm[10:0].
func encodeWord(op isa.Opcode, dest, src0, src1 uint32, imm int64) uint32 {
	return uint32(op)<<26 | (dest&0x1f)<<21 | (src0&0x1f)<<16 | (src1&0x1f)<<11 | (uint32(imm) & 0x7ff)
}

func putWord(buf []byte, off int, w uint32) {
	buf[off] = byte(w)
	buf[off+1] = byte(w >> 8)
	buf[off+2] = byte(w >> 16)
	buf[off+3] = byte(w >> 24)
}

// TestBootSeedsRunnableThread boots a bare config and checks the boot
// thread landed in the expected state without running a single cycle,
// the same split NewSimulation/Boot tests exercise separately elsewhere.
func TestBootSeedsRunnableThread(t *testing.T) {
	cfg := NewConfig()
	sim, err := Boot(cfg, 0, true)
	require.NoError(t, err)

	core := sim.Cores[0]
	tid, ok := core.Threads.PopReady()
	require.True(t, ok, "expected one ready boot thread")

	th := core.Threads.Get(tid)
	require.Equal(t, uint64(0), th.PC)
	require.True(t, th.Legacy)
}

// TestProgramTerminationHaltsRun exercises spec.md's E1-style exit: a
// single store to the action device's address halts Run with a
// ProgramTermination error and latches the requested exit code.
func TestProgramTerminationHaltsRun(t *testing.T) {
	cfg := NewConfig()
	// R1 = core0's action device address, R2 = exit code 0.
	require.NoError(t, cfg.Set("InitRegs", "R1=0xF0000000 R2=0"))

	sim, err := Boot(cfg, 0, true)
	require.NoError(t, err)

	// store R2 -> [R1 + 0]
	program := make([]byte, 32)
	putWord(program, 0, encodeWord(isa.OpStore, 0, 1, 2, 0))
	require.NoError(t, sim.Memory.Poke(0, program))

	runErr := sim.Kernel.Run(500)
	require.Error(t, runErr)
	require.True(t, IsKind(runErr, ProgramTermination), "expected ProgramTermination, got %v", runErr)

	core := sim.Cores[0]
	require.True(t, core.Action.Terminated)
	require.Equal(t, uint64(0), core.Action.ExitCode)
}

// TestProgramTerminationReportsAbortCode mirrors the clean-exit case
// above with a nonzero value, which the action device reports back as
// an abort exit code rather than a clean exit (spec.md §6.3).
func TestProgramTerminationReportsAbortCode(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Set("InitRegs", "R1=0xF0000000 R2=7"))

	sim, err := Boot(cfg, 0, true)
	require.NoError(t, err)

	program := make([]byte, 32)
	putWord(program, 0, encodeWord(isa.OpStore, 0, 1, 2, 0))
	require.NoError(t, sim.Memory.Poke(0, program))

	runErr := sim.Kernel.Run(500)
	require.Error(t, runErr)
	require.True(t, IsKind(runErr, ProgramTermination))

	core := sim.Cores[0]
	require.True(t, core.Action.Terminated)
	require.Equal(t, uint64(7), core.Action.ExitCode)
}
