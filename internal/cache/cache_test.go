package cache

import (
	"testing"

	"github.com/behrlich/drisc/internal/regfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracer struct{ touches int }

func (f *fakeTracer) Touch(string) { f.touches++ }

type fakeMemory struct {
	client       MemoryClient
	mcid         uint32
	reads        []uint64
	writes       []uint64
	rejectReads  bool
	rejectWrites bool
}

func (m *fakeMemory) RegisterClient(c MemoryClient) (uint32, error) {
	m.client = c
	m.mcid = 1
	return m.mcid, nil
}

func (m *fakeMemory) Read(mcid uint32, lineAddr uint64) bool {
	if m.rejectReads {
		return false
	}
	m.reads = append(m.reads, lineAddr)
	return true
}

func (m *fakeMemory) Write(mcid uint32, lineAddr uint64, data []byte) bool {
	if m.rejectWrites {
		return false
	}
	m.writes = append(m.writes, lineAddr)
	return true
}

type fakeCompletion struct {
	delivered []regfile.RegAddr
	completed []int32
	reject    bool
}

func (f *fakeCompletion) DeliverLoad(reg regfile.RegAddr, data []byte, signExtend bool) bool {
	if f.reject {
		return false
	}
	f.delivered = append(f.delivered, reg)
	return true
}

func (f *fakeCompletion) CompleteWrite(tid int32) bool {
	if f.reject {
		return false
	}
	f.completed = append(f.completed, tid)
	return true
}

func newTestCache(t *testing.T) (*Cache, *fakeMemory, *fakeCompletion) {
	t.Helper()
	mem := &fakeMemory{}
	comp := &fakeCompletion{}
	cycle := uint64(0)
	c, err := New("dcache", &fakeTracer{}, 16, 2, 2, mem, comp, func() uint64 { return cycle })
	require.NoError(t, err)
	return c, mem, comp
}

func TestReadMissAllocatesAndIssuesMemoryRead(t *testing.T) {
	c, mem, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}

	data, ok := c.Read(0x1000, w)
	assert.False(t, ok)
	assert.Nil(t, data)
	require.Len(t, mem.reads, 1)
	assert.Equal(t, uint64(0x1000), mem.reads[0])

	set, way := c.find(0x1000)
	assert.Equal(t, LineLoading, c.lines[set][way].State)
}

func TestReadHitReturnsDataWithoutReissuing(t *testing.T) {
	c, mem, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)
	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))

	data, ok := c.Read(0x1000, w)
	assert.True(t, ok)
	assert.Len(t, data, 16)
	assert.Len(t, mem.reads, 1, "hit must not reissue a memory read")
}

func TestSecondMissOnSameLoadingLineParksWaiterInstead(t *testing.T) {
	c, mem, _ := newTestCache(t)
	w1 := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	w2 := Waiter{TID: 2, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 4}, Size: 4}

	c.Read(0x1000, w1)
	c.Read(0x1000, w2)
	assert.Len(t, mem.reads, 1, "second request on a LOADING line must not reissue")

	set, way := c.find(0x1000)
	assert.Len(t, c.lines[set][way].Waiters, 2)
}

func TestOnMemoryReadCompletedDrainsWaitersOneAtATime(t *testing.T) {
	c, _, comp := newTestCache(t)
	w1 := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	w2 := Waiter{TID: 2, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 4}, Size: 4}
	c.Read(0x1000, w1)
	c.Read(0x1000, w2)

	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))

	require.True(t, c.DrainOneWaiter(0x1000))
	require.Len(t, comp.delivered, 1)
	assert.Equal(t, w1.Reg, comp.delivered[0])

	require.True(t, c.DrainOneWaiter(0x1000))
	require.Len(t, comp.delivered, 2)
	assert.Equal(t, w2.Reg, comp.delivered[1])
}

func TestWriteHitsFullLineUpdatesInPlace(t *testing.T) {
	c, mem, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)
	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))

	ok := c.Write(0x1000, []byte{1, 2, 3, 4}, 7)
	assert.True(t, ok)
	require.Len(t, mem.writes, 1)

	set, way := c.find(0x1000)
	assert.Equal(t, byte(1), c.lines[set][way].Data[0])
}

func TestWriteToLoadingLineStalls(t *testing.T) {
	c, _, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)

	ok := c.Write(0x1000, []byte{1, 2, 3, 4}, 7)
	assert.False(t, ok, "write to a LOADING line must stall")
}

func TestOnMemoryWriteCompletedNotifiesIssuingThread(t *testing.T) {
	c, _, comp := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)
	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))
	require.True(t, c.Write(0x1000, []byte{9}, 42))

	require.True(t, c.OnMemoryWriteCompleted(0x1000))
	require.Len(t, comp.completed, 1)
	assert.Equal(t, int32(42), comp.completed[0])
}

func TestOnMemorySnoopedMergesWithoutChangingState(t *testing.T) {
	c, _, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)
	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))

	mask := make([]bool, 16)
	mask[2] = true
	data := make([]byte, 16)
	data[2] = 0xAB
	require.True(t, c.OnMemorySnooped(0x1000, data, mask))

	set, way := c.find(0x1000)
	assert.Equal(t, LineFull, c.lines[set][way].State)
	assert.Equal(t, byte(0xAB), c.lines[set][way].Data[2])
}

func TestOnMemoryInvalidatedFullLineGoesEmpty(t *testing.T) {
	c, _, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)
	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))

	require.True(t, c.OnMemoryInvalidated(0x1000))
	set, way := c.find(0x1000)
	assert.Equal(t, -1, way, "invalidated FULL line returns to EMPTY and is no longer tagged")
	_ = set
}

func TestOnMemoryInvalidatedLoadingLineBecomesInvalidNotEmpty(t *testing.T) {
	c, _, _ := newTestCache(t)
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x1000, w)

	require.True(t, c.OnMemoryInvalidated(0x1000))
	set, way := c.find(0x1000)
	require.GreaterOrEqual(t, way, 0, "INVALID line keeps its tag so the in-flight response can still land")
	assert.Equal(t, LineInvalid, c.lines[set][way].State)

	require.True(t, c.OnMemoryReadCompleted(0x1000, make([]byte, 16)))
	set, way = c.find(0x1000)
	assert.Equal(t, -1, way, "response to an INVALID line is dropped, not published")
}

func TestEvictionPrefersEmptyOverFull(t *testing.T) {
	c, _, _ := newTestCache(t)
	// Both ways of set 0 get filled (line size 16, 2 sets -> addresses 0 and 32 map to set 0).
	w := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	c.Read(0x0, w)
	require.True(t, c.OnMemoryReadCompleted(0x0, make([]byte, 16)))
	c.Read(0x20, w)
	require.True(t, c.OnMemoryReadCompleted(0x20, make([]byte, 16)))

	set, _ := c.find(0x0)
	assert.Equal(t, 2, len(c.lines[set]))

	// Evict one (simulate an external invalidation) so it becomes the
	// preferred victim over the still-FULL line regardless of LRU order.
	require.True(t, c.OnMemoryInvalidated(0x20))

	way := c.evict(set)
	require.GreaterOrEqual(t, way, 0)
	_, wayOf0x20 := c.find(0x20)
	assert.Equal(t, -1, wayOf0x20)
	_, wayOf0x0 := c.find(0x0)
	assert.NotEqual(t, wayOf0x0, way, "must prefer the empty slot over the still-full line")
}

func TestNoEvictableLineFailsReadWithoutMutating(t *testing.T) {
	c, mem, _ := newTestCache(t)
	w1 := Waiter{TID: 1, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 3}, Size: 4}
	w2 := Waiter{TID: 2, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 4}, Size: 4}
	// Fill both ways of set 0 and leave both LOADING (non-evictable: no
	// FULL/EMPTY/INVALID line available).
	c.Read(0x0, w1)
	c.Read(0x20, w2)
	require.Len(t, mem.reads, 2)

	_, ok := c.Read(0x40, Waiter{TID: 3, Reg: regfile.RegAddr{Type: regfile.IntReg, Index: 5}, Size: 4})
	assert.False(t, ok, "no free or evictable way in the set")
	assert.Len(t, mem.reads, 2, "a failed allocation must not have issued a memory read")
}
