package drisc

// Package-level Memory implements the external memory interface from
// spec.md §6.2 over a flat byte array: the chip's single backing
// store, shared by every core's I-cache and D-cache MemoryClient.
//
// Grounded on backend.Memory's RAM-over-byte-slice storage, with its
// sharded-lock concurrency dropped (the kernel drives everything from
// one goroutine, so there is never lock contention to shard away) and
// replaced by fpu.Reference's fixed-latency pending-queue pattern: a
// request is accepted immediately and its completion callback fires
// once `Latency` cycles have elapsed, retried on the next cycle if the
// client's callback returns false (spec.md §6.2: "on false, memory
// must retry next cycle").
//
// L2/CDMA coherence is an explicit Non-goal (spec.md §1), so Memory
// never calls OnMemorySnooped/OnMemoryInvalidated: each cache line is
// assumed to belong to exactly one client for the scenarios this
// simulator targets.

import (
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/simerr"
)

type memRequest struct {
	write      bool
	mcid       uint32
	addr       uint64
	cyclesLeft int
}

// Memory is the chip-wide backing store.
type Memory struct {
	id       string
	data     []byte
	clients  []cache.MemoryClient
	latency  int
	lineSize uint64

	pending []memRequest
}

// NewMemory creates a zero-filled backing store of size bytes,
// delivering every read/write completion after latency cycles. Every
// Read request is assumed to span exactly lineSize bytes, matching
// the single configured cache line size every client in this
// simulator shares (spec.md §6.4's single CacheLineSize option).
func NewMemory(id string, size uint64, lineSize uint64, latency int) *Memory {
	if latency < 1 {
		latency = 1
	}
	return &Memory{id: id, data: make([]byte, size), lineSize: lineSize, latency: latency}
}

// Identity returns the memory's trace identity.
func (m *Memory) Identity() string { return m.id }

// NonEmpty reports whether any request is in flight, so Memory's
// driving process only runs when there is work to advance.
func (m *Memory) NonEmpty() bool { return len(m.pending) > 0 }

// RegisterClient implements cache.Memory: each registered client gets
// a stable index (its mcid) used to address it in no other way than
// identity — Memory delivers every completion to whichever client
// issued the matching request, so mcid today is purely a handle the
// client receives back, not a routing key.
func (m *Memory) RegisterClient(client cache.MemoryClient) (uint32, error) {
	m.clients = append(m.clients, client)
	return uint32(len(m.clients) - 1), nil
}

// Read implements cache.Memory: queues a read of one line at
// lineAddr, delivered to mcid's client after Latency cycles.
func (m *Memory) Read(mcid uint32, lineAddr uint64) bool {
	if mcid >= uint32(len(m.clients)) {
		return false
	}
	m.pending = append(m.pending, memRequest{mcid: mcid, addr: lineAddr, cyclesLeft: m.latency})
	return true
}

// Write implements cache.Memory: applies data to the backing store
// immediately (so a subsequent Read sees it) but still defers the
// completion callback by Latency cycles, matching the two-phase
// accept-then-complete contract every memory client expects.
func (m *Memory) Write(mcid uint32, lineAddr uint64, data []byte) bool {
	if mcid >= uint32(len(m.clients)) {
		return false
	}
	if lineAddr+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[lineAddr:], data)
	m.pending = append(m.pending, memRequest{write: true, mcid: mcid, addr: lineAddr, cyclesLeft: m.latency})
	return true
}

// Poke writes data directly into the backing store, bypassing the
// request/latency machinery entirely. For use outside the kernel's
// run loop only: loading a program image at boot, mirroring
// regfile.RegisterFile.Preload's boot-time bypass.
func (m *Memory) Poke(addr uint64, data []byte) error {
	if addr+uint64(len(data)) > uint64(len(m.data)) {
		return simerr.New(m.id, "Poke", simerr.InvalidArgument, "write beyond end of memory")
	}
	copy(m.data[addr:], data)
	return nil
}

// Peek reads size bytes directly from the backing store, bypassing
// the request/latency machinery. For tests and diagnostics.
func (m *Memory) Peek(addr uint64, size uint64) []byte {
	if addr >= uint64(len(m.data)) {
		return nil
	}
	end := addr + size
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	return m.data[addr:end]
}

// Tick advances every in-flight request one cycle and delivers any
// whose latency has elapsed. Intended to be driven once per cycle by
// a kernel.NewPeriodicProcess the owning Simulation registers.
func (m *Memory) Tick() {
	remaining := m.pending[:0]
	for _, r := range m.pending {
		r.cyclesLeft--
		if r.cyclesLeft > 0 {
			remaining = append(remaining, r)
			continue
		}
		client := m.clients[r.mcid]
		if r.write {
			if !client.OnMemoryWriteCompleted(r.addr) {
				r.cyclesLeft = 1 // retry delivery next cycle, per spec.md §6.2
				remaining = append(remaining, r)
			}
			continue
		}
		end := r.addr + m.lineSize
		if end > uint64(len(m.data)) {
			end = uint64(len(m.data))
		}
		data := m.data[r.addr:end]
		if !client.OnMemoryReadCompleted(r.addr, data) {
			r.cyclesLeft = 1
			remaining = append(remaining, r)
		}
	}
	m.pending = remaining
}
