// Package cache implements the set-associative I-cache and D-cache
// line state machine (spec.md §3.4, §4.6): EMPTY/LOADING/INVALID/FULL
// lines, LRU-within-set eviction, and the external memory interface
// from spec.md §6.2.
package cache

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/behrlich/drisc/internal/simerr"
)

// LineState is a cache line's tag (spec.md §3.4).
type LineState int

const (
	LineEmpty LineState = iota
	LineLoading
	LineInvalid
	LineFull
)

func (s LineState) String() string {
	switch s {
	case LineLoading:
		return "LOADING"
	case LineInvalid:
		return "INVALID"
	case LineFull:
		return "FULL"
	default:
		return "EMPTY"
	}
}

// Waiter is one register waiting on a line's read-miss completion.
type Waiter struct {
	TID        int32
	Reg        regfile.RegAddr
	Size       uint32
	SignExtend bool
}

// Line is one cache line slot.
type Line struct {
	Tag        uint64
	Data       []byte
	Valid      []bool
	LastAccess uint64
	State      LineState
	Processing bool
	Waiters    []Waiter

	pendingWriteTIDs []int32
}

// Completion is how a cache reports register-file and thread-table
// side effects of a completed memory operation, without depending on
// internal/alloc or internal/regfile's mutating APIs directly.
type Completion interface {
	DeliverLoad(reg regfile.RegAddr, data []byte, signExtend bool) bool
	CompleteWrite(tid int32) bool
}

// Memory is the external memory interface from spec.md §6.2.
type Memory interface {
	RegisterClient(client MemoryClient) (mcid uint32, err error)
	Read(mcid uint32, lineAddr uint64) bool
	Write(mcid uint32, lineAddr uint64, data []byte) bool
}

// MemoryClient is the callback surface Memory invokes on a registered
// client. Cache implements this.
type MemoryClient interface {
	OnMemoryReadCompleted(addr uint64, data []byte) bool
	OnMemoryWriteCompleted(addr uint64) bool
	OnMemorySnooped(addr uint64, data []byte, mask []bool) bool
	OnMemoryInvalidated(addr uint64) bool
}

// Metrics receives cache access/eviction counts (spec.md §7's per-cache
// perfcounters, backed by the chip Metrics).
type Metrics interface {
	RecordCacheAccess(hit bool)
	RecordEviction(conflict bool)
}

// Cache is one set-associative cache (instruction or data).
type Cache struct {
	id       string
	tracer   kernel.Tracer
	lineSize uint32
	sets     uint32
	assoc    uint32
	lines    [][]Line

	mem        Memory
	mcid       uint32
	completion Completion
	cycle      func() uint64
	metrics    Metrics
}

// SetMetrics installs the counter Read/evict report hit/miss/eviction
// outcomes to. Optional: a Cache with none just doesn't count.
func (c *Cache) SetMetrics(m Metrics) { c.metrics = m }

// New creates a cache over mem, backed by completion for delivering
// load/write completions to the register file and thread table.
// cycle returns the owning core clock's current cycle, used for LRU.
func New(id string, tracer kernel.Tracer, lineSize, sets, assoc uint32, mem Memory, completion Completion, cycle func() uint64) (*Cache, error) {
	c := &Cache{
		id:         id,
		tracer:     tracer,
		lineSize:   lineSize,
		sets:       sets,
		assoc:      assoc,
		lines:      make([][]Line, sets),
		mem:        mem,
		completion: completion,
		cycle:      cycle,
	}
	for s := range c.lines {
		c.lines[s] = make([]Line, assoc)
		for w := range c.lines[s] {
			c.lines[s][w] = Line{
				Data:  make([]byte, lineSize),
				Valid: make([]bool, lineSize),
				State: LineEmpty,
			}
		}
	}
	mcid, err := mem.RegisterClient(c)
	if err != nil {
		return nil, simerr.Wrap(id, "New", err)
	}
	c.mcid = mcid
	return c, nil
}

// Identity returns the cache's trace identity.
func (c *Cache) Identity() string { return c.id }

// NonEmpty is always true: the cache is a fixed resource.
func (c *Cache) NonEmpty() bool { return true }

func (c *Cache) lineAddr(addr uint64) uint64 { return addr - addr%uint64(c.lineSize) }
func (c *Cache) setIndex(addr uint64) uint32 {
	return uint32((addr / uint64(c.lineSize)) % uint64(c.sets))
}
func (c *Cache) tagOf(addr uint64) uint64 { return addr / uint64(c.lineSize) / uint64(c.sets) }

func (c *Cache) find(addr uint64) (set uint32, way int) {
	set = c.setIndex(addr)
	tag := c.tagOf(addr)
	for w := range c.lines[set] {
		l := &c.lines[set][w]
		if l.State != LineEmpty && l.Tag == tag {
			return set, w
		}
	}
	return set, -1
}

// evict picks a victim way in set using the tie-break order from
// spec.md §4.6: invalid lines first, then LRU over FULL lines with no
// pending read/write. Returns -1 if no line is evictable.
func (c *Cache) evict(set uint32) int {
	for w := range c.lines[set] {
		if c.lines[set][w].State == LineInvalid {
			return w
		}
	}
	for w := range c.lines[set] {
		if c.lines[set][w].State == LineEmpty {
			return w
		}
	}
	best := -1
	var bestAccess uint64
	for w := range c.lines[set] {
		l := &c.lines[set][w]
		if l.State != LineFull || len(l.Waiters) > 0 || len(l.pendingWriteTIDs) > 0 {
			continue
		}
		if best == -1 || l.LastAccess < bestAccess {
			best = w
			bestAccess = l.LastAccess
		}
	}
	return best
}

// Read looks up addr. On a hit it returns the line's current bytes
// immediately. On a miss it allocates (evicting if necessary), issues
// an outgoing read, parks waiter on the line, and returns ok=false —
// the caller stalls and the register is woken on completion.
func (c *Cache) Read(addr uint64, waiter Waiter) (data []byte, ok bool) {
	set, way := c.find(addr)
	if way >= 0 && c.lines[set][way].State == LineFull {
		c.lines[set][way].LastAccess = c.cycle()
		c.recordAccess(true)
		return c.lines[set][way].Data, true
	}
	if way >= 0 && c.lines[set][way].State == LineLoading {
		c.lines[set][way].Waiters = append(c.lines[set][way].Waiters, waiter)
		c.tracer.Touch(c.id)
		c.recordAccess(false)
		return nil, false
	}

	way = c.evict(set)
	if way < 0 {
		return nil, false // FAILED: retried next cycle
	}
	c.recordAccess(false)
	if c.lines[set][way].State == LineFull {
		c.recordEviction()
	}
	if !c.mem.Read(c.mcid, c.lineAddr(addr)) {
		return nil, false
	}
	l := &c.lines[set][way]
	*l = Line{
		Tag:     c.tagOf(addr),
		Data:    make([]byte, c.lineSize),
		Valid:   make([]bool, c.lineSize),
		State:   LineLoading,
		Waiters: []Waiter{waiter},
	}
	c.tracer.Touch(c.id)
	return nil, false
}

// Write passes data through to memory. If the line is present and
// FULL it is updated in place; if LOADING the write stalls (returns
// false, retried once the line completes).
func (c *Cache) Write(addr uint64, data []byte, tid int32) bool {
	set, way := c.find(addr)
	if way >= 0 && c.lines[set][way].State == LineLoading {
		return false
	}
	if !c.mem.Write(c.mcid, c.lineAddr(addr), data) {
		return false
	}
	if way >= 0 && c.lines[set][way].State == LineFull {
		l := &c.lines[set][way]
		off := addr % uint64(c.lineSize)
		copy(l.Data[off:], data)
		for i := range data {
			l.Valid[int(off)+i] = true
		}
		l.pendingWriteTIDs = append(l.pendingWriteTIDs, tid)
	}
	c.tracer.Touch(c.id)
	return true
}

// OnMemoryReadCompleted implements MemoryClient: the line transitions
// to FULL. Parked waiters are not delivered here; a kernel process
// calls DrainOneWaiter once per cycle to deliver them one at a time
// (spec.md says "one register per cycle").
func (c *Cache) OnMemoryReadCompleted(addr uint64, data []byte) bool {
	set, way := c.find(addr)
	if way < 0 {
		return true // line was invalidated mid-flight; drop silently
	}
	l := &c.lines[set][way]
	if l.State == LineInvalid {
		*l = Line{State: LineEmpty, Data: make([]byte, c.lineSize), Valid: make([]bool, c.lineSize)}
		return true
	}
	copy(l.Data, data)
	for i := range l.Valid {
		l.Valid[i] = true
	}
	l.State = LineFull
	l.LastAccess = c.cycle()
	c.tracer.Touch(c.id)
	return true
}

// PendingWaiterLine returns the base address of some FULL line that
// still has at least one parked waiter, for a driving process that
// doesn't itself track which addresses are outstanding. Returns
// ok=false once nothing is left to drain.
func (c *Cache) PendingWaiterLine() (addr uint64, ok bool) {
	for set := range c.lines {
		for way := range c.lines[set] {
			l := &c.lines[set][way]
			if l.State == LineFull && len(l.Waiters) > 0 {
				return (l.Tag*uint64(c.sets) + uint64(set)) * uint64(c.lineSize), true
			}
		}
	}
	return 0, false
}

// DrainOneWaiter delivers the value for the oldest pending waiter on
// the line holding addr, if any. Intended to be called once per cycle by the
// core's memory-completion process.
func (c *Cache) DrainOneWaiter(addr uint64) bool {
	set, way := c.find(addr)
	if way < 0 || len(c.lines[set][way].Waiters) == 0 {
		return true
	}
	l := &c.lines[set][way]
	w := l.Waiters[0]
	off := addr % uint64(c.lineSize)
	val := extractValue(l.Data[off:off+uint64(w.Size)], w.SignExtend)
	if !c.completion.DeliverLoad(w.Reg, l.Data[off:off+uint64(w.Size)], w.SignExtend) {
		return false
	}
	_ = val
	l.Waiters = l.Waiters[1:]
	c.tracer.Touch(c.id)
	return true
}

func (c *Cache) recordAccess(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheAccess(hit)
	}
}

func (c *Cache) recordEviction() {
	if c.metrics != nil {
		c.metrics.RecordEviction(false)
	}
}

func extractValue(bytes []byte, signExtend bool) uint64 {
	var v uint64
	for i, b := range bytes {
		v |= uint64(b) << (8 * i)
	}
	if signExtend && len(bytes) < 8 && bytes[len(bytes)-1]&0x80 != 0 {
		for i := len(bytes); i < 8; i++ {
			v |= 0xff << (8 * i)
		}
	}
	return v
}

// OnMemoryWriteCompleted implements MemoryClient: decrements the
// issuing thread's pending-writes counter via Completion.
func (c *Cache) OnMemoryWriteCompleted(addr uint64) bool {
	set, way := c.find(addr)
	if way < 0 {
		return true
	}
	l := &c.lines[set][way]
	if len(l.pendingWriteTIDs) == 0 {
		return true
	}
	tid := l.pendingWriteTIDs[0]
	if !c.completion.CompleteWrite(tid) {
		return false
	}
	l.pendingWriteTIDs = l.pendingWriteTIDs[1:]
	c.tracer.Touch(c.id)
	return true
}

// OnMemorySnooped implements MemoryClient: merges bytes into the line
// and raises their valid bits. Never changes State.
func (c *Cache) OnMemorySnooped(addr uint64, data []byte, mask []bool) bool {
	set, way := c.find(addr)
	if way < 0 {
		return true
	}
	l := &c.lines[set][way]
	off := addr % uint64(c.lineSize)
	for i, m := range mask {
		if m {
			l.Data[int(off)+i] = data[i]
			l.Valid[int(off)+i] = true
		}
	}
	c.tracer.Touch(c.id)
	return true
}

// OnMemoryInvalidated implements MemoryClient: FULL -> EMPTY, LOADING
// -> INVALID (so the eventual response can still be drained).
func (c *Cache) OnMemoryInvalidated(addr uint64) bool {
	set, way := c.find(addr)
	if way < 0 {
		return true
	}
	l := &c.lines[set][way]
	switch l.State {
	case LineFull:
		*l = Line{State: LineEmpty, Data: make([]byte, c.lineSize), Valid: make([]bool, c.lineSize)}
	case LineLoading:
		l.State = LineInvalid
	}
	c.tracer.Touch(c.id)
	return true
}
