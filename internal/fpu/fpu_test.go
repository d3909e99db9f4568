package fpu

import (
	"math"
	"testing"

	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDest struct {
	available bool
	delivered map[regfile.RegAddr]uint64
}

func newFakeDest(available bool) *fakeDest {
	return &fakeDest{available: available, delivered: map[regfile.RegAddr]uint64{}}
}

func (d *fakeDest) CheckFPUOutputAvailability(addr regfile.RegAddr) bool { return d.available }
func (d *fakeDest) WriteFPUResult(addr regfile.RegAddr, value uint64) bool {
	d.delivered[addr] = value
	return true
}

func TestQueueOperationRespectsCapacity(t *testing.T) {
	dest := newFakeDest(true)
	u := NewReference("fpu0", dest, 2, 1)
	reg := regfile.RegAddr{Type: regfile.FloatReg, Index: 1}

	one, two := math.Float64bits(1), math.Float64bits(2)
	assert.True(t, u.QueueOperation("core0", isa.FPUAdd, 8, one, two, reg))
	assert.False(t, u.QueueOperation("core0", isa.FPUAdd, 8, one, two, reg), "at capacity")
}

func TestTickDeliversAfterLatencyElapses(t *testing.T) {
	dest := newFakeDest(true)
	u := NewReference("fpu0", dest, 2, 4)
	reg := regfile.RegAddr{Type: regfile.FloatReg, Index: 1}
	one, two := math.Float64bits(1), math.Float64bits(2)
	require.True(t, u.QueueOperation("core0", isa.FPUAdd, 8, one, two, reg))

	u.Tick()
	assert.True(t, u.NonEmpty(), "latency not yet elapsed")
	_, delivered := dest.delivered[reg]
	assert.False(t, delivered)

	u.Tick()
	assert.False(t, u.NonEmpty())
	v, delivered := dest.delivered[reg]
	require.True(t, delivered)
	assert.Equal(t, float64(3), math.Float64frombits(v))
}

func TestTickDropsResultWhenDestinationGone(t *testing.T) {
	dest := newFakeDest(false)
	u := NewReference("fpu0", dest, 1, 4)
	reg := regfile.RegAddr{Type: regfile.FloatReg, Index: 1}
	one, two := math.Float64bits(1), math.Float64bits(2)
	require.True(t, u.QueueOperation("core0", isa.FPUAdd, 8, one, two, reg))

	u.Tick()
	assert.False(t, u.NonEmpty())
	_, delivered := dest.delivered[reg]
	assert.False(t, delivered)
}
