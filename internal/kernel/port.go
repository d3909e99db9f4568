package kernel

// Port arbitrates access to a shared resource among a static priority
// list of processes (spec.md §4.1: "a port has a priority list of
// processes; at most one process wins per cycle... Cyclic arbitration
// rotates winners"). A port with a single member behaves as a
// dedicated port: its owner always wins when runnable, no contention.
//
// Winners are resolved once per tick of the port's clock, before any
// member's acquire-phase delegate runs, from the set of members that
// are runnable that cycle. This keeps the result independent of call
// order within the cycle: Request always answers the same way whether
// asked during the acquire phase or the commit phase.
type Port struct {
	name    string
	clock   *Clock
	members []*Process
	rotate  bool

	rotateFrom int
	winner     *Process
}

// newPort builds a port with members in static priority order. rotate
// enables cyclic arbitration: after a cycle with a winner, the next
// cycle's scan starts just past that winner so no single high-priority
// member can starve the rest.
func newPort(name string, clock *Clock, rotate bool, members []*Process) *Port {
	return &Port{name: name, clock: clock, members: members, rotate: rotate}
}

// Name returns the port's identifier, used in deadlock diagnostics.
func (p *Port) Name() string { return p.name }

// resolve picks this cycle's winner from the members present in
// runnable, honoring the rotation offset, and advances the offset.
func (p *Port) resolve(runnable map[*Process]bool) {
	p.winner = nil
	n := len(p.members)
	if n == 0 {
		return
	}
	start := 0
	if p.rotate {
		start = p.rotateFrom % n
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		m := p.members[idx]
		if runnable[m] {
			p.winner = m
			if p.rotate {
				p.rotateFrom = (idx + 1) % n
			}
			return
		}
	}
}

// Request reports whether process requester won this cycle's
// arbitration. Safe to call in both the acquire and commit phase: the
// winner was already fixed by resolve at the start of the cycle.
func (p *Port) Request(requester *Process) bool {
	return p.winner != nil && p.winner == requester
}

// Owner returns the current cycle's winner, or nil if no member was
// runnable.
func (p *Port) Owner() *Process { return p.winner }
