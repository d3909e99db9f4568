package mmio

import (
	"github.com/behrlich/drisc/internal/simerr"
)

// ActionDevice is the single write-only word that terminates a run
// (spec.md §6.3, §7 ProgramTermination). Writing 0 is a clean exit
// with code 0; any other value aborts with that value as exit code.
// Grounded on arch/drisc/ActionInterface.cpp's single-word semantics.
type ActionDevice struct {
	base uint64

	// Terminated latches the first write so a caller (Simulation) can
	// observe it and stop the run; the device itself never halts
	// anything directly.
	Terminated bool
	ExitCode   uint64
}

// NewActionDevice creates an action device at base, sized one word.
func NewActionDevice(base uint64) *ActionDevice { return &ActionDevice{base: base} }

func (d *ActionDevice) Name() string     { return "action" }
func (d *ActionDevice) Base() uint64     { return d.base }
func (d *ActionDevice) Size() uint64     { return 8 }
func (d *ActionDevice) Mode() AccessMode { return WriteOnly }

func (d *ActionDevice) Read(offset uint64, size uint32, fid uint32, tid int32) (uint64, error) {
	return 0, simerr.New("mmio.action", "Read", simerr.SecurityViolation, "action device is write-only")
}

func (d *ActionDevice) Write(offset uint64, size uint32, value uint64, fid uint32, tid int32) error {
	d.Terminated = true
	d.ExitCode = value
	return simerr.New("mmio.action", "Write", simerr.ProgramTermination, "program requested termination")
}

// DebugDevice is a byte/word sink appending to an in-memory ring
// buffer (spec.md §6.3 debug out/err). Grounded on IntuitionEngine's
// TerminalHost adapter, simplified here to a bounded byte buffer. The
// output stays in that buffer: neither this device nor cmd/drisc-sim
// forwards it to a terminal.
type DebugDevice struct {
	name     string
	base     uint64
	capacity int
	buf      []byte
}

// NewDebugDevice creates a debug sink named "debug.out" or "debug.err"
// at base, retaining at most capacity bytes (oldest dropped first).
func NewDebugDevice(name string, base uint64, capacity int) *DebugDevice {
	return &DebugDevice{name: name, base: base, capacity: capacity}
}

func (d *DebugDevice) Name() string     { return d.name }
func (d *DebugDevice) Base() uint64     { return d.base }
func (d *DebugDevice) Size() uint64     { return 8 }
func (d *DebugDevice) Mode() AccessMode { return WriteOnly }

func (d *DebugDevice) Read(offset uint64, size uint32, fid uint32, tid int32) (uint64, error) {
	return 0, simerr.New("mmio."+d.name, "Read", simerr.SecurityViolation, "debug device is write-only")
}

func (d *DebugDevice) Write(offset uint64, size uint32, value uint64, fid uint32, tid int32) error {
	for i := uint32(0); i < size; i++ {
		d.buf = append(d.buf, byte(value>>(8*i)))
	}
	if over := len(d.buf) - d.capacity; over > 0 {
		d.buf = d.buf[over:]
	}
	return nil
}

// Drain returns and clears everything written so far.
func (d *DebugDevice) Drain() []byte {
	out := d.buf
	d.buf = nil
	return out
}

// MetricsSource is the subset of the root Metrics type PerfCountersDevice
// serves, kept as an interface so internal/mmio never imports the root
// package (which would import internal/mmio right back).
type MetricsSource interface {
	PerfCounterWords() []uint64
}

// PerfCountersDevice is read-only and serves MetricsSource.PerfCounterWords
// values at fixed word offsets (spec.md §6.3 perfcounters). Grounded on
// arch/drisc/PerfCounters.cpp's fixed counter layout.
type PerfCountersDevice struct {
	base    uint64
	metrics MetricsSource
}

// NewPerfCountersDevice creates a perfcounters device at base backed by
// metrics. Sized to cover whatever PerfCounterWords returns, one word each.
func NewPerfCountersDevice(base uint64, metrics MetricsSource) *PerfCountersDevice {
	return &PerfCountersDevice{base: base, metrics: metrics}
}

func (d *PerfCountersDevice) Name() string     { return "perfcounters" }
func (d *PerfCountersDevice) Base() uint64     { return d.base }
func (d *PerfCountersDevice) Size() uint64     { return uint64(len(d.metrics.PerfCounterWords())) * 8 }
func (d *PerfCountersDevice) Mode() AccessMode { return ReadOnly }

func (d *PerfCountersDevice) Read(offset uint64, size uint32, fid uint32, tid int32) (uint64, error) {
	idx := offset / 8
	vals := d.metrics.PerfCounterWords()
	if idx >= uint64(len(vals)) {
		return 0, simerr.New("mmio.perfcounters", "Read", simerr.InvalidArgument, "counter index out of range")
	}
	return vals[idx], nil
}

func (d *PerfCountersDevice) Write(offset uint64, size uint32, value uint64, fid uint32, tid int32) error {
	return simerr.New("mmio.perfcounters", "Write", simerr.SecurityViolation, "perfcounters device is read-only")
}

// RegisterFileDevice exposes a fixed-size word array at a configured
// base: the ASR (ancillary status) and APR (ancillary property) files
// of spec.md §6.3/§6.4 (NumAncillaryRegisters).
type RegisterFileDevice struct {
	name string
	base uint64
	mode AccessMode
	regs []uint64
}

// NewRegisterFileDevice creates a word-array device of count registers.
func NewRegisterFileDevice(name string, base uint64, count uint32, mode AccessMode) *RegisterFileDevice {
	return &RegisterFileDevice{name: name, base: base, mode: mode, regs: make([]uint64, count)}
}

func (d *RegisterFileDevice) Name() string     { return d.name }
func (d *RegisterFileDevice) Base() uint64     { return d.base }
func (d *RegisterFileDevice) Size() uint64     { return uint64(len(d.regs)) * 8 }
func (d *RegisterFileDevice) Mode() AccessMode { return d.mode }

func (d *RegisterFileDevice) Read(offset uint64, size uint32, fid uint32, tid int32) (uint64, error) {
	idx := offset / 8
	if idx >= uint64(len(d.regs)) {
		return 0, simerr.New("mmio."+d.name, "Read", simerr.InvalidArgument, "register index out of range")
	}
	return d.regs[idx], nil
}

func (d *RegisterFileDevice) Write(offset uint64, size uint32, value uint64, fid uint32, tid int32) error {
	idx := offset / 8
	if idx >= uint64(len(d.regs)) {
		return simerr.New("mmio."+d.name, "Write", simerr.InvalidArgument, "register index out of range")
	}
	d.regs[idx] = value
	return nil
}
