package kernel

import (
	"testing"

	"github.com/behrlich/drisc/internal/simerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alwaysNonEmpty is a minimal Storage fake used to keep a process
// runnable across every cycle without pulling in internal/storage.
type alwaysNonEmpty struct{ id string }

func (s *alwaysNonEmpty) NonEmpty() bool  { return true }
func (s *alwaysNonEmpty) Identity() string { return s.id }

func TestPeriodicProcessRunsEveryCycle(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	var ticks int
	k.NewPeriodicProcess("tick", clk, func(commit bool) Result {
		if commit {
			ticks++
		}
		return Success
	})

	require.NoError(t, k.Run(10))
	assert.Equal(t, 10, ticks)
	assert.Equal(t, uint64(10), clk.CycleNo())
}

func TestArbitratedPortRotatesWinner(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	var aWins, bWins int
	var a, b *Process
	var port *Port
	a = k.NewProcess("a", clk, func(commit bool) Result {
		if !port.Request(a) {
			return Failed
		}
		if commit {
			aWins++
		}
		return Success
	}, &alwaysNonEmpty{id: "s"})
	b = k.NewProcess("b", clk, func(commit bool) Result {
		if !port.Request(b) {
			return Failed
		}
		if commit {
			bWins++
		}
		return Success
	}, &alwaysNonEmpty{id: "s"})
	port = k.NewPort("shared", clk, a, b)

	require.NoError(t, k.Run(4))
	// Every cycle has exactly one winner; rotation alternates them.
	assert.Equal(t, 4, aWins+bWins)
	assert.Equal(t, 2, aWins)
	assert.Equal(t, 2, bWins)
}

func TestDedicatedPortAlwaysOwnerWins(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	var owner *Process
	var port *Port
	var runs int
	owner = k.NewProcess("owner", clk, func(commit bool) Result {
		if !port.Request(owner) {
			return Failed
		}
		if commit {
			runs++
		}
		return Success
	}, &alwaysNonEmpty{id: "s"})
	port = k.NewDedicatedPort("dedicated", clk, owner)

	require.NoError(t, k.Run(5))
	assert.Equal(t, 5, runs)
}

func TestDeadlockDetected(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	k.NewProcess("stuck", clk, func(commit bool) Result {
		return Failed
	}, &alwaysNonEmpty{id: "s"})

	err := k.Run(10)
	require.Error(t, err)
	assert.True(t, simerr.IsKind(err, simerr.Deadlock))
}

func TestTraceViolationAborts(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	p := k.NewProcess("writer", clk, func(commit bool) Result {
		if commit {
			k.Touch("undeclared")
		}
		return Success
	}, &alwaysNonEmpty{id: "s"})
	p.Declare("declared")

	err := k.Run(3)
	require.Error(t, err)
	assert.True(t, simerr.IsKind(err, simerr.SimulationException))
}

func TestDeclaredWriteDoesNotAbort(t *testing.T) {
	k := NewKernel()
	clk := k.NewClock("core", 1)

	p := k.NewProcess("writer", clk, func(commit bool) Result {
		if commit {
			k.Touch("declared")
		}
		return Success
	}, &alwaysNonEmpty{id: "s"})
	p.Declare("declared")

	require.NoError(t, k.Run(3))
}

func TestFrequencyRatioStepping(t *testing.T) {
	k := NewKernel()
	fast := k.NewClock("fast", 2)
	slow := k.NewClock("slow", 1)

	k.NewPeriodicProcess("fast-tick", fast, func(commit bool) Result { return Success })
	k.NewPeriodicProcess("slow-tick", slow, func(commit bool) Result { return Success })

	require.NoError(t, k.Run(4))
	assert.Equal(t, uint64(4), fast.CycleNo())
	assert.Equal(t, uint64(2), slow.CycleNo())
}
