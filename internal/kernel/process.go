package kernel

// Result is the three-valued outcome of one process invocation, matching
// spec.md §4.1: SUCCESS means real work occurred and commits should be
// applied, DELAYED means nothing to do this cycle, FAILED means resources
// were unavailable and the process must retry next cycle with no commits.
type Result int

const (
	// Delayed: storage was non-empty but the process had nothing to do
	// (e.g. a stage whose input latch is stalled behind it).
	Delayed Result = iota
	// Success: the process did useful work; its commit-phase writes
	// should be applied at the end of the cycle.
	Success
	// Failed: the process wanted to do work but lost arbitration or
	// found a resource full. Retried next cycle, nothing committed.
	Failed
)

func (r Result) String() string {
	switch r {
	case Delayed:
		return "DELAYED"
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Delegate is the function a Process invokes each phase. commit is false
// during the acquire phase (the delegate may call Port.Request to attempt
// arbitration; a fallible call with side effects, such as popping a
// queue, is made here once and its outcome reused in commit) and true during the
// commit phase (only called if the acquire-phase call returned Success;
// the delegate now performs the actual Storage writes, reusing whatever
// it acquired in the acquire phase).
type Delegate func(commit bool) Result

// Process is one named unit of per-cycle work belonging to exactly one
// Clock. It fires in a cycle iff at least one Storage it is Sensitive to
// is non-empty, or it is Periodic.
type Process struct {
	name      string
	clock     *Clock
	delegate  Delegate
	periodic  bool
	sensitive []Sensor

	// declared is the set of storage identities this process is
	// allowed to write during its commit phase (spec.md §4.1's
	// "storage traces"). Populated via Declare at construction time.
	declared map[string]bool

	// permissive marks the unregistered pseudo-process Kernel.Preload
	// runs boot-time seeding under: it may touch any storage, since
	// Preload runs before the run loop starts and nothing could
	// possibly race with it.
	permissive bool

	// lastResult is the acquire-phase outcome for the current cycle,
	// read by the Kernel to decide whether to run the commit phase.
	lastResult Result
}

// Declare records the storage identities this process may write in its
// commit phase. The kernel compares the observed write set against
// this declaration every cycle and aborts the run if a process writes
// something it never declared (spec.md invariant 6).
func (p *Process) Declare(identities ...string) *Process {
	if p.declared == nil {
		p.declared = make(map[string]bool, len(identities))
	}
	for _, id := range identities {
		p.declared[id] = true
	}
	return p
}

func (p *Process) mayTouch(identity string) bool {
	return p.permissive || p.declared[identity]
}

// Sensor reports whether a Storage currently has pending work for a
// Process sensitive to it. Storage implementations satisfy this via
// their own NonEmpty() method.
type Sensor interface {
	NonEmpty() bool
}

// newProcess builds an unregistered process; Kernel.NewProcess/
// NewPeriodicProcess are the public constructors and register it.
func newProcess(name string, clock *Clock, delegate Delegate, periodic bool, sensitive []Sensor) *Process {
	return &Process{name: name, clock: clock, delegate: delegate, periodic: periodic, sensitive: sensitive}
}

// Name returns the process's identifier, used in deadlock diagnostics.
func (p *Process) Name() string { return p.name }

// Clock returns the clock this process belongs to.
func (p *Process) Clock() *Clock { return p.clock }

func (p *Process) runnable() bool {
	if p.periodic {
		return true
	}
	for _, s := range p.sensitive {
		if s.NonEmpty() {
			return true
		}
	}
	return false
}
