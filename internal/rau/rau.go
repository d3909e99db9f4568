// Package rau implements the register allocation unit: a coarse block
// allocator over one physical register bank (spec.md §4.8). A core has
// one RAUnit per register type (integer, floating-point).
package rau

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/simerr"
)

// Context is the requesting context's class. RAUnit reserves one
// extra block apiece for Reserved and Exclusive so a family in one of
// those classes can never be starved purely by NORMAL contention.
type Context int

const (
	Normal Context = iota
	Reserved
	Exclusive
)

func (c Context) String() string {
	switch c {
	case Reserved:
		return "RESERVED"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return "NORMAL"
	}
}

// RAUnit is a first-fit block allocator. blocks[i] is free iff true.
// The last two blocks are never touched by the general first-fit scan:
// they are the dedicated Reserved and Exclusive overflow blocks.
type RAUnit struct {
	id        string
	tracer    kernel.Tracer
	blockSize uint32
	numBlocks uint32

	free map[uint32]bool // block index -> free

	// source records which pool an allocation came from, so Free can
	// return a reserved-pool block to its own pool first rather than
	// the general pool (spec.md §4.8).
	source map[uint32]Context
}

// New creates an allocator over numBlocks blocks of blockSize
// registers each. numBlocks must be at least 3 (general pool plus the
// two reserved overflow blocks); smaller configurations are rejected.
func New(id string, tracer kernel.Tracer, blockSize, numBlocks uint32) (*RAUnit, error) {
	if numBlocks < 3 {
		return nil, simerr.New(id, "New", simerr.InvalidArgument, "RAUnit needs at least 3 blocks (general + reserved + exclusive)")
	}
	free := make(map[uint32]bool, numBlocks)
	for i := uint32(0); i < numBlocks; i++ {
		free[i] = true
	}
	return &RAUnit{
		id:        id,
		tracer:    tracer,
		blockSize: blockSize,
		numBlocks: numBlocks,
		free:      free,
		source:    make(map[uint32]Context),
	}, nil
}

// Identity returns the allocator's trace identity.
func (r *RAUnit) Identity() string { return r.id }

// NonEmpty is always true: the RAUnit is a fixed resource, not a queue.
func (r *RAUnit) NonEmpty() bool { return true }

func (r *RAUnit) reservedBlock(ctx Context) uint32 {
	switch ctx {
	case Reserved:
		return r.numBlocks - 2
	default: // Exclusive
		return r.numBlocks - 1
	}
}

// Alloc reserves the contiguous block run needed to hold size
// registers for family fid under context class ctx. Returns the
// starting block index and true on success, or false if no run is
// available (a routine, retried condition, not an error).
func (r *RAUnit) Alloc(size uint32, fid uint32, ctx Context) (uint32, bool) {
	blocksNeeded := (size + r.blockSize - 1) / r.blockSize
	if blocksNeeded == 0 {
		blocksNeeded = 1
	}
	generalLimit := r.numBlocks - 2

	if start, ok := r.firstFit(0, generalLimit, blocksNeeded); ok {
		r.markAllocated(start, blocksNeeded, Normal)
		return start, true
	}

	if ctx != Normal && blocksNeeded == 1 {
		blk := r.reservedBlock(ctx)
		if r.free[blk] {
			r.markAllocated(blk, 1, ctx)
			return blk, true
		}
	}

	return 0, false
}

func (r *RAUnit) firstFit(from, limit, need uint32) (uint32, bool) {
	run := uint32(0)
	start := from
	for i := from; i < limit; i++ {
		if r.free[i] {
			if run == 0 {
				start = i
			}
			run++
			if run == need {
				return start, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

func (r *RAUnit) markAllocated(start, count uint32, ctx Context) {
	for i := start; i < start+count; i++ {
		r.free[i] = false
		r.source[i] = ctx
	}
	r.tracer.Touch(r.id)
}

// Free releases a block run previously returned by Alloc.
func (r *RAUnit) Free(start, count uint32) {
	for i := start; i < start+count; i++ {
		r.free[i] = true
		delete(r.source, i)
	}
	r.tracer.Touch(r.id)
}

// BlockSize returns the registers-per-block granularity.
func (r *RAUnit) BlockSize() uint32 { return r.blockSize }
