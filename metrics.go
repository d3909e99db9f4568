package drisc

import "sync/atomic"

// CycleBuckets defines the histogram buckets, in kernel cycles, used to
// track how long operations like family creation take to complete.
// Log-spaced from 1 cycle to ~1M cycles.
var CycleBuckets = []uint64{
	1, 4, 16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576,
}

const numCycleBuckets = 11

// Metrics aggregates per-core and chip-wide simulation counters. It backs
// the PerfCounters MMIO device (SPEC_FULL.md §3) and is also read directly
// by tests and cmd/drisc-sim for end-of-run reporting.
type Metrics struct {
	// Pipeline
	InstructionsIssued atomic.Uint64
	InstructionsStalls atomic.Uint64 // cycles a stage returned STALL/DELAY
	PipelineIdleCycles atomic.Uint64

	// Caches (one set of counters shared by I- and D-cache callers:
	// Simulation passes the same Metrics to every cache)
	CacheHits      atomic.Uint64
	CacheMisses    atomic.Uint64
	CacheEvictions atomic.Uint64
	CacheConflicts atomic.Uint64 // evictions of a non-empty, non-LRU-eligible line forced a stall

	// Allocator
	FamiliesCreated    atomic.Uint64
	ThreadsAllocated   atomic.Uint64
	FamilyCreateCycles atomic.Uint64 // cumulative cycles spent in CreateState != INITIAL
	CreateCycleCount   atomic.Uint64
	CreateCycleBuckets [numCycleBuckets]atomic.Uint64

	// Kernel
	CyclesRun      atomic.Uint64
	DeadlockCycles atomic.Uint64
	FailedProcess  atomic.Uint64 // cumulative count of FAILED process results across all processes/cycles
}

// NewMetrics creates a zeroed metrics instance.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordInstruction marks retirement of one instruction.
func (m *Metrics) RecordInstruction() { m.InstructionsIssued.Add(1) }

// RecordCacheAccess records a cache lookup outcome.
func (m *Metrics) RecordCacheAccess(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// RecordEviction records a line eviction, optionally one that had to pick
// a conflicting line because the natural LRU candidate was non-evictable.
func (m *Metrics) RecordEviction(conflict bool) {
	m.CacheEvictions.Add(1)
	if conflict {
		m.CacheConflicts.Add(1)
	}
}

// RecordFamilyCreate records the number of cycles a family spent in the
// create state machine (INITIAL excluded, terminal NOTIFY included).
func (m *Metrics) RecordFamilyCreate(cycles uint64) {
	m.FamiliesCreated.Add(1)
	m.FamilyCreateCycles.Add(cycles)
	m.CreateCycleCount.Add(1)
	for i, bucket := range CycleBuckets {
		if cycles <= bucket {
			m.CreateCycleBuckets[i].Add(1)
		}
	}
}

// RecordThreadAllocated records one thread entering ALLOCATED state.
func (m *Metrics) RecordThreadAllocated() { m.ThreadsAllocated.Add(1) }

// RecordCycle advances the kernel cycle counter and, if deadlocked, the
// deadlock-cycle counter.
func (m *Metrics) RecordCycle(deadlocked bool) {
	m.CyclesRun.Add(1)
	if deadlocked {
		m.DeadlockCycles.Add(1)
	}
}

// RecordProcessFailed records one process returning FAILED in a cycle.
func (m *Metrics) RecordProcessFailed() { m.FailedProcess.Add(1) }

// Snapshot is a point-in-time, non-atomic copy of Metrics for reporting.
type Snapshot struct {
	InstructionsIssued uint64
	CyclesRun          uint64
	IPC                float64 // instructions per cycle

	CacheHits   uint64
	CacheMisses uint64
	HitRate     float64

	CacheEvictions uint64
	CacheConflicts uint64

	FamiliesCreated        uint64
	ThreadsAllocated       uint64
	AvgFamilyCreateCycles  float64
	CreateCycleHistogram   [numCycleBuckets]uint64

	DeadlockCycles uint64
	FailedProcess  uint64
}

// Snapshot takes a consistent-enough snapshot of the metrics for reporting.
// Like the teacher's ublk.Metrics.Snapshot, individual fields may be
// observed slightly out of sync with each other since no global lock is
// taken, which is acceptable for diagnostic output.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		InstructionsIssued: m.InstructionsIssued.Load(),
		CyclesRun:          m.CyclesRun.Load(),
		CacheHits:          m.CacheHits.Load(),
		CacheMisses:        m.CacheMisses.Load(),
		CacheEvictions:     m.CacheEvictions.Load(),
		CacheConflicts:     m.CacheConflicts.Load(),
		FamiliesCreated:    m.FamiliesCreated.Load(),
		ThreadsAllocated:   m.ThreadsAllocated.Load(),
		DeadlockCycles:     m.DeadlockCycles.Load(),
		FailedProcess:      m.FailedProcess.Load(),
	}
	if s.CyclesRun > 0 {
		s.IPC = float64(s.InstructionsIssued) / float64(s.CyclesRun)
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.HitRate = float64(s.CacheHits) / float64(total)
	}
	if n := m.CreateCycleCount.Load(); n > 0 {
		s.AvgFamilyCreateCycles = float64(m.FamilyCreateCycles.Load()) / float64(n)
	}
	for i := 0; i < numCycleBuckets; i++ {
		s.CreateCycleHistogram[i] = m.CreateCycleBuckets[i].Load()
	}
	return s
}

// Reset zeroes all counters. Useful for tests that boot one Simulation and
// run several scenarios against it.
func (m *Metrics) Reset() {
	*m = Metrics{}
}

// PerfCounterWords serves internal/mmio's PerfCountersDevice: a fixed,
// ordered list of raw counter words exposed at consecutive MMIO offsets.
func (m *Metrics) PerfCounterWords() []uint64 {
	return []uint64{
		m.InstructionsIssued.Load(),
		m.InstructionsStalls.Load(),
		m.PipelineIdleCycles.Load(),
		m.CacheHits.Load(),
		m.CacheMisses.Load(),
		m.CacheEvictions.Load(),
		m.CacheConflicts.Load(),
		m.FamiliesCreated.Load(),
		m.ThreadsAllocated.Load(),
		m.CyclesRun.Load(),
		m.DeadlockCycles.Load(),
		m.FailedProcess.Load(),
	}
}
