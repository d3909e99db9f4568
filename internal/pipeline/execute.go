package pipeline

import (
	"github.com/behrlich/drisc/internal/isa"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
)

// executeDelegate implements spec.md §4.4.4.
//
// evaluate dispatches to the FPU and allocator, both fallible and
// side-effecting (they queue/commit real work), so it must run
// exactly once per cycle: during acquire, with the outcome cached in
// pendingExecute for the matching commit call to publish.
func (c *Core) executeDelegate(commit bool) kernel.Result {
	if commit {
		out := c.pendingExecute
		c.pendingExecute = nil
		c.readOut.Clear()
		c.executeOut.Write(*out)
		if out.Action == Flush {
			// Branch resolved: redirect the thread's PC and squash whatever
			// Fetch/Decode already picked up from the now-wrong path this
			// same cycle (they commit ahead of Execute in registration
			// order, so their output latches hold stale entries here).
			th := c.threads.Get(out.TID)
			th.PC = out.NextPC
			c.threads.Set(out.TID, th)
			if c.decodeOut.NonEmpty() {
				c.decodeOut.Clear()
			}
			if c.fetchOut.NonEmpty() {
				c.fetchOut.Clear()
			}
		}
		return kernel.Success
	}

	in, ok := c.readOut.Read()
	if !ok {
		return kernel.Delayed
	}
	if c.executeOut.NonEmpty() {
		return kernel.Failed
	}

	for i := 0; i < 2; i++ {
		if in.Decoded.SrcValid[i] && in.Src[i].State != regfile.Full {
			// Non-full handling (spec.md §4.4.3): forward in EMPTY/WAITING
			// form; the instruction becomes a suspension at Writeback if
			// the state still hasn't resolved.
			out := ExecuteOut{
				Valid:     true,
				TID:       in.TID,
				Action:    Stall,
				Dest:      in.Decoded.Dest,
				DestValid: in.Decoded.DestValid,
			}
			c.pendingExecute = &out
			return kernel.Success
		}
	}

	out, action := c.evaluate(in)
	if action == Delay {
		return kernel.Failed // FPU/allocator rejected; retried next cycle, nothing was queued
	}
	out.Action = action
	out.WantSwitch = in.Decoded.WantSwitch
	out.KillAfter = in.Decoded.KillAfter

	c.pendingExecute = &out
	return kernel.Success
}

func (c *Core) evaluate(in ReadOut) (ExecuteOut, Action) {
	d := in.Decoded
	out := ExecuteOut{Valid: true, TID: in.TID, Dest: d.Dest, DestValid: d.DestValid}
	a, b := in.Src[0].Value, in.Src[1].Value

	switch d.Opcode {
	case isa.OpAdd:
		out.Result = a + b
	case isa.OpSub:
		out.Result = a - b
	case isa.OpMul:
		out.Result = a * b
	case isa.OpAnd:
		out.Result = a & b
	case isa.OpOr:
		out.Result = a | b
	case isa.OpXor:
		out.Result = a ^ b
	case isa.OpShl:
		out.Result = a << (b & 63)
	case isa.OpShr:
		out.Result = a >> (b & 63)
	case isa.OpSetLess:
		if int64(a) < int64(b) {
			out.Result = 1
		}
	case isa.OpBranch:
		out.NextPC = uint64(int64(in.PC) + d.Imm)
		return out, Flush
	case isa.OpBranchIf:
		if a != 0 {
			out.NextPC = uint64(int64(in.PC) + d.Imm)
			return out, Flush
		}
		return out, Continue
	case isa.OpLoad:
		out.IsLoad = true
		out.MemAddr = uint64(int64(a) + d.Imm)
		out.MemSize = d.Size
		out.SignExtend = d.SignExtend
	case isa.OpStore:
		out.IsStore = true
		out.MemAddr = uint64(int64(a) + d.Imm)
		out.MemSize = d.Size
		out.StoreData = b
	case isa.OpFPU:
		if !c.fpuUnit.QueueOperation(c.id, d.FPU, d.Size, a, b, d.Dest) {
			return out, Delay
		}
		out.DestValid = false // Writeback leaves the destination alone; the FPU writes it when the op completes
	case isa.OpGlobal:
		out.Result = uint64(d.Imm)
	case isa.OpAllocate:
		fid, ok := c.allocator.Allocate(uint32(a))
		if !ok {
			return out, Delay
		}
		out.Result = uint64(fid)
	case isa.OpCreate:
		if !c.allocator.Create(uint32(a), uint64(d.Imm)) {
			return out, Delay
		}
	case isa.OpSetProperty:
		if !c.allocator.SetProperty(uint32(a), uint32(b), d.Imm) {
			return out, Delay
		}
	case isa.OpSync:
		if !c.allocator.Sync(uint32(a)) {
			return out, Delay
		}
	case isa.OpDetach:
		if !c.allocator.Detach(uint32(a)) {
			return out, Delay
		}
	case isa.OpBreak:
		if !c.allocator.Break(uint32(a)) {
			return out, Delay
		}
	case isa.OpTerminate, isa.OpNop:
		// no-op
	}
	return out, Continue
}
