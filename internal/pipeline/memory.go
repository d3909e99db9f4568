package pipeline

import (
	"github.com/behrlich/drisc/internal/cache"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
)

// memoryDelegate implements spec.md §4.4.5.
//
// dcache.Read/Write are fallible and side-effecting (a miss allocates
// a cache line; a store is issued to memory), so they must run
// exactly once per cycle: during acquire, with the outcome cached in
// pendingMemory for the matching commit call to publish. A load or
// store whose address falls inside the core's MMIO window is routed
// to mmio instead of dcache; an error there (most notably the action
// device's program-termination fault) is forwarded to halter.Halt
// rather than treated as a cache miss.
func (c *Core) memoryDelegate(commit bool) kernel.Result {
	if commit {
		r := c.pendingMemory
		c.pendingMemory = nil
		c.executeOut.Clear()
		c.memoryOut.Write(r.out)
		if r.isStore {
			th := c.threads.Get(r.out.TID)
			th.Deps.NumPendingWrites++
			c.threads.Set(r.out.TID, th)
		}
		return kernel.Success
	}

	in, ok := c.executeOut.Read()
	if !ok {
		return kernel.Delayed
	}
	if c.memoryOut.NonEmpty() {
		return kernel.Failed
	}

	out := MemoryOut{
		Valid:      true,
		TID:        in.TID,
		Dest:       in.Dest,
		DestValid:  in.DestValid,
		WantSwitch: in.WantSwitch,
		KillAfter:  in.KillAfter,
	}
	isStore := false

	switch {
	case in.IsLoad && c.mmio != nil && c.mmio.InRange(in.MemAddr):
		th := c.threads.Get(in.TID)
		value, err := c.mmio.Read(in.MemAddr, in.MemSize, th.Family, in.TID)
		if err != nil {
			c.halter.Halt(err)
		}
		out.State = regfile.Full
		out.Value = value
	case in.IsLoad:
		data, hit := c.dcache.Read(in.MemAddr, cache.Waiter{
			TID:        in.TID,
			Reg:        in.Dest,
			Size:       in.MemSize,
			SignExtend: in.SignExtend,
		})
		if !hit {
			out.State = regfile.Pending // parked as PENDING with the load descriptor on the cache's wait list
		} else {
			out.State = regfile.Full
			out.Value = bytesToUint64(data, in.SignExtend)
		}
	case in.IsStore && c.mmio != nil && c.mmio.InRange(in.MemAddr):
		th := c.threads.Get(in.TID)
		if err := c.mmio.Write(in.MemAddr, in.MemSize, in.StoreData, th.Family, in.TID); err != nil {
			c.halter.Halt(err)
		}
		out.DestValid = false
		// Not tracked as a pending write: an MMIO write completes
		// synchronously here, unlike a cache store, which only commits
		// once Memory's completion callback decrements NumPendingWrites.
	case in.IsStore:
		if !c.dcache.Write(in.MemAddr, uint64ToBytes(in.StoreData, in.MemSize), in.TID) {
			return kernel.Failed
		}
		out.DestValid = false
		isStore = true
	default:
		out.State = regfile.Full
		out.Value = in.Result
	}

	c.pendingMemory = &memoryResult{out: out, isStore: isStore}
	return kernel.Success
}

func bytesToUint64(data []byte, signExtend bool) uint64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}
	if signExtend && len(data) < 8 && len(data) > 0 && data[len(data)-1]&0x80 != 0 {
		for i := len(data); i < 8; i++ {
			v |= 0xff << (8 * i)
		}
	}
	return v
}

func uint64ToBytes(v uint64, size uint32) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(v >> (8 * i))
	}
	return out
}
