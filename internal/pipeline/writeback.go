package pipeline

import (
	"github.com/behrlich/drisc/internal/alloc"
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
)

// writebackDelegate implements spec.md §4.4.6: the five transitions
// are handled by regfile.Write's existing EMPTY/WAITING wakeup
// protocol (internal/regfile), plus the two pipeline-level additions
// only Writeback knows about: suspending a thread when its result
// isn't resolved yet, and releasing a thread on its final,
// kill-and-switch writeback.
//
// regs.Write is fallible and side-effecting (it drains the cell's
// wait-list into the ready queue), so it must run exactly once per
// cycle: during acquire, with the outcome cached in pendingWriteback
// for the matching commit call to finish (clear the latch, suspend or
// release the thread).
func (c *Core) writebackDelegate(commit bool) kernel.Result {
	if commit {
		r := c.pendingWriteback
		c.pendingWriteback = nil
		c.memoryOut.Clear()
		if r.suspend {
			c.suspendThread(r.in.TID)
		} else {
			if c.metrics != nil {
				c.metrics.RecordInstruction()
			}
			if r.release {
				c.releaseThread(r.in.TID)
			}
		}
		return kernel.Success
	}

	in, ok := c.memoryOut.Read()
	if !ok {
		return kernel.Delayed
	}

	if in.DestValid {
		if in.State != regfile.Full {
			// Transition 3: PENDING/WAITING result into EMPTY cell. The
			// load descriptor stays on the cache line's waiter list
			// (internal/cache) and the cell is not changed here; we only
			// suspend the thread at its current PC.
			c.pendingWriteback = &writebackResult{in: in, suspend: true}
			return kernel.Success
		}

		ok, err := c.regs.Write(in.Dest, in.Value, false)
		if err != nil {
			return kernel.Failed
		}
		if !ok {
			return kernel.Failed // ready queue couldn't accept all waiters this cycle; retry
		}
	}

	// Transition 5: final writeback with swch=true, kill=true.
	release := in.KillAfter && in.WantSwitch
	c.pendingWriteback = &writebackResult{in: in, release: release}
	return kernel.Success
}

func (c *Core) suspendThread(tid int32) {
	th := c.threads.Get(tid)
	th.State = alloc.ThreadSuspended
	c.threads.Set(tid, th)
}

func (c *Core) releaseThread(tid int32) {
	th := c.threads.Get(tid)
	th.State = alloc.ThreadKilled
	c.threads.Set(tid, th)
}
