package kernel

import (
	"fmt"

	"github.com/behrlich/drisc/internal/simerr"
)

// Touch records that the process currently in its commit phase wrote
// to the named storage. Called by internal/storage's mutating methods
// through the Tracer interface.
//
// A write to a storage the process never declared (spec.md invariant
// 6) aborts the run with a SimulationException: undeclared access
// would hide exactly the ordering the trace system exists to rule out.
// Outside a commit phase (no process currently installed) Touch is a
// no-op: several acquire-phase calls are themselves fallible and
// side-effecting by design (a cache miss allocates a line, a ready-pop
// dequeues a thread — see the stage doc comments in internal/pipeline),
// and invariant 6 only constrains what a process's declared *commit*
// writes may touch, not these acquire-time probes.
func (k *Kernel) Touch(identity string) {
	if k.currentProcess == nil {
		return
	}
	p := k.currentProcess
	if !p.mayTouch(identity) {
		k.abort(simerr.New("Kernel", "Touch", simerr.SimulationException,
			fmt.Sprintf("process %q wrote undeclared storage %q", p.name, identity)))
		return
	}
	if k.observed == nil {
		k.observed = make(map[*Process]map[string]bool)
	}
	set := k.observed[p]
	if set == nil {
		set = make(map[string]bool)
		k.observed[p] = set
	}
	set[identity] = true
}
