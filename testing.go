package drisc

import "github.com/behrlich/drisc/internal/regfile"

// RecordingCompletion is a cache.Completion/fpu.Destination double that
// records every delivery instead of writing into a real register file,
// for tests that want to assert on what a core would have received
// without standing up a whole Simulation. Mirrors the teacher's own
// MockBackend: track calls, answer success, never fail.
type RecordingCompletion struct {
	Loads  []RecordedLoad
	Writes []int32
	FPU    []RecordedFPUResult
}

// RecordedLoad is one DeliverLoad call.
type RecordedLoad struct {
	Reg        regfile.RegAddr
	Data       []byte
	SignExtend bool
}

// RecordedFPUResult is one WriteFPUResult call.
type RecordedFPUResult struct {
	Reg   regfile.RegAddr
	Value uint64
}

// DeliverLoad implements cache.Completion.
func (c *RecordingCompletion) DeliverLoad(reg regfile.RegAddr, data []byte, signExtend bool) bool {
	c.Loads = append(c.Loads, RecordedLoad{Reg: reg, Data: append([]byte(nil), data...), SignExtend: signExtend})
	return true
}

// CompleteWrite implements cache.Completion.
func (c *RecordingCompletion) CompleteWrite(tid int32) bool {
	c.Writes = append(c.Writes, tid)
	return true
}

// CheckFPUOutputAvailability implements fpu.Destination.
func (c *RecordingCompletion) CheckFPUOutputAvailability(addr regfile.RegAddr) bool { return true }

// WriteFPUResult implements fpu.Destination.
func (c *RecordingCompletion) WriteFPUResult(addr regfile.RegAddr, value uint64) bool {
	c.FPU = append(c.FPU, RecordedFPUResult{Reg: addr, Value: value})
	return true
}
