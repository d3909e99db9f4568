// Package network implements the ring and delegation fabric that
// connects cores within a place (spec.md §3.5, §4.7): per-core
// link/delegate register pairs, a backwards allocation-response
// channel, an auxiliary sync buffer that breaks the link/delegate
// dependency cycle, and create-token rotation.
package network

import (
	"github.com/behrlich/drisc/internal/kernel"
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/behrlich/drisc/internal/simerr"
	"github.com/behrlich/drisc/internal/storage"
)

// LinkKind tags a ring LinkMessage (spec.md §3.5).
type LinkKind int

const (
	Allocate LinkKind = iota
	BAllocate
	SetProperty
	Create
	Done
	Sync
	Detach
	Break
	Global
)

func (k LinkKind) String() string {
	switch k {
	case Allocate:
		return "ALLOCATE"
	case BAllocate:
		return "BALLOCATE"
	case SetProperty:
		return "SET_PROPERTY"
	case Create:
		return "CREATE"
	case Done:
		return "DONE"
	case Sync:
		return "SYNC"
	case Detach:
		return "DETACH"
	case Break:
		return "BREAK"
	case Global:
		return "GLOBAL"
	default:
		return "UNKNOWN"
	}
}

// RemoteKind tags a point-to-point RemoteMessage: every LinkKind plus
// the two register-delegation kinds only delegation ever carries.
type RemoteKind int

const (
	RemoteAllocate RemoteKind = iota
	RemoteBAllocate
	RemoteSetProperty
	RemoteCreate
	RemoteDone
	RemoteSync
	RemoteDetach
	RemoteBreak
	RemoteGlobal
	RawRegister
	FamRegister
)

// LinkMessage travels one hop between ring neighbours.
type LinkMessage struct {
	Kind     LinkKind
	FID      uint32
	PlaceSrc uint32
	Payload  uint64 // PC, property value, or similar, interpreted by Kind
}

// RemoteMessage is a point-to-point delegation message, addressed by
// core id rather than hop-by-hop.
type RemoteMessage struct {
	Kind        RemoteKind
	FID         uint32
	SrcCore     uint32
	DstCore     uint32
	Reg         regfile.RegAddr // valid for RawRegister/FamRegister
	Value       uint64
	CompletionP uint32 // completion_pid for a register request
}

// AllocResponse travels backwards around the ring, completing a
// family allocation request hop by hop.
type AllocResponse struct {
	CompletionPID uint32
	CompletionReg regfile.RegAddr
	PrevFID       uint32
	NextFID       uint32
	NumCores      uint32
	Exact         bool
}

// SyncInfo is one pending sync notification queued for delegation
// egress, breaking the circular dependency between the ring-link and
// delegation networks (spec.md §4.7).
type SyncInfo struct {
	DstCore  uint32
	PID      uint32
	ExitCode uint64
}

// RemoteRegisterRequest is the payload of a register-forwarding
// request (spec.md §4.7): {fid, kind, addr, completion_reg-or-value}.
type RemoteRegisterRequest struct {
	FID         uint32
	Kind        RemoteKind
	Addr        regfile.RegAddr
	CompletionP uint32
	WriteValue  uint64
	HasValue    bool // true for a parent-shared writeback, false for a read
}

// Ring is one core's attachment point to the ring and delegation
// fabric. Each register pair is a single-slot storage.Register so the
// kernel's two-phase cycle and trace validation apply uniformly.
type Ring struct {
	id     string
	tracer kernel.Tracer

	linkIn       *storage.Register[LinkMessage]
	linkOut      *storage.Register[LinkMessage]
	delegateIn   *storage.Register[RemoteMessage]
	delegateOut  *storage.Register[RemoteMessage]
	allocRespIn  *storage.Register[AllocResponse]
	allocRespOut *storage.Register[AllocResponse]
	syncs        *storage.Buffer[SyncInfo]

	hasToken  bool
	wantToken bool
}

// NewRing creates a core's ring/delegation attachment. syncCapacity
// bounds the auxiliary sync buffer.
func NewRing(id string, tracer kernel.Tracer, syncCapacity int, holdsToken bool) *Ring {
	return &Ring{
		id:           id,
		tracer:       tracer,
		linkIn:       storage.NewRegister[LinkMessage](id+".link.in", tracer),
		linkOut:      storage.NewRegister[LinkMessage](id+".link.out", tracer),
		delegateIn:   storage.NewRegister[RemoteMessage](id+".delegate.in", tracer),
		delegateOut:  storage.NewRegister[RemoteMessage](id+".delegate.out", tracer),
		allocRespIn:  storage.NewRegister[AllocResponse](id+".allocResponse.in", tracer),
		allocRespOut: storage.NewRegister[AllocResponse](id+".allocResponse.out", tracer),
		syncs:        storage.NewBuffer[SyncInfo](id+".syncs", tracer, syncCapacity),
		hasToken:     holdsToken,
	}
}

// Identity returns the ring attachment's trace identity.
func (r *Ring) Identity() string { return r.id }

// NonEmpty reports whether any channel has pending traffic.
func (r *Ring) NonEmpty() bool {
	return r.linkIn.NonEmpty() || r.delegateIn.NonEmpty() || r.allocRespIn.NonEmpty() || r.syncs.NonEmpty()
}

// SendLink places a message on this core's outgoing ring-link slot.
// Fails (ResourceExhaustion, retried next cycle) if the slot is full.
func (r *Ring) SendLink(m LinkMessage) bool { return r.linkOut.Write(m) }

// ReceiveLink drains the incoming ring-link slot, if any.
func (r *Ring) ReceiveLink() (LinkMessage, bool) { return r.linkIn.Read() }

// ForwardLink moves a message from this core's incoming slot into its
// outgoing slot, preserving FIFO order hop-to-hop (spec.md invariant:
// "ring messages preserve FIFO order between any fixed pair"). Callers
// must first check the message is not addressed to this core.
func (r *Ring) ForwardLink() bool {
	m, ok := r.linkIn.Read()
	if !ok {
		return true
	}
	if !r.linkOut.Write(m) {
		return false
	}
	r.linkIn.Clear()
	return true
}

// SendDelegate places a point-to-point message on the outgoing
// delegation slot.
func (r *Ring) SendDelegate(m RemoteMessage) bool { return r.delegateOut.Write(m) }

// ReceiveDelegate drains the incoming delegation slot, if any.
func (r *Ring) ReceiveDelegate() (RemoteMessage, bool) { return r.delegateIn.Read() }

// DeliverDelegate places a point-to-point message directly into this
// ring's incoming delegation slot, the way a neighbour's outgoing hop
// arrives here. Mirrors ForwardLink's role on the link channel: the
// fabric needs an explicit hand-off point between two Ring instances.
// No driving process in this simulator calls it yet (no Controller
// originates cross-core register-delegation traffic today), but it is
// the hook a multi-core dispatch loop wires once one does.
func (r *Ring) DeliverDelegate(m RemoteMessage) bool { return r.delegateIn.Write(m) }

// SendAllocResponse places a response on the backwards channel.
func (r *Ring) SendAllocResponse(resp AllocResponse) bool { return r.allocRespOut.Write(resp) }

// ReceiveAllocResponse drains the incoming backwards-channel slot.
func (r *Ring) ReceiveAllocResponse() (AllocResponse, bool) { return r.allocRespIn.Read() }

// QueueSync enqueues a sync notification for delegation egress.
func (r *Ring) QueueSync(s SyncInfo) bool { return r.syncs.Push(s) }

// DrainSync pops the oldest queued sync notification, if any, ready
// to be handed to SendDelegate.
func (r *Ring) DrainSync() (SyncInfo, bool) { return r.syncs.Pop() }

// HasToken reports whether this core currently holds the create
// token.
func (r *Ring) HasToken() bool { return r.hasToken }

// WantToken marks whether this core wants the token — the token only
// rotates among wanting cores (spec.md §4.7).
func (r *Ring) WantToken(want bool) { r.wantToken = want }

// PassToken gives up the token, offering it to next if next wants it;
// otherwise the token is retained (spec.md: "rotates only among cores
// that want it").
func (r *Ring) PassToken(next *Ring) {
	if !r.hasToken {
		return
	}
	if !next.wantToken {
		return
	}
	r.hasToken = false
	next.hasToken = true
	r.tracer.Touch(r.id)
	next.tracer.Touch(next.id)
}

// ResolveRemoteRegister is the receiving side of register forwarding
// (spec.md §4.7): given the addressed register's current snapshot, it
// decides whether to answer immediately or link the requester onto
// the cell's wait list as a remote waiter. Resolver is supplied by the
// caller (the owning register file), kept here only as documentation
// of the contract every core's dispatch loop follows.
type Resolver interface {
	// Resolve returns (value, true) if addr is FULL, or (0, false) if
	// the requester must be parked as a remote waiter instead.
	Resolve(addr regfile.RegAddr) (uint64, bool)
	// ParkRemoteWaiter subscribes a remote completion to addr's wait
	// list, to be woken the same way a local thread would be.
	ParkRemoteWaiter(addr regfile.RegAddr, completionPID uint32) error
}

// HandleRemoteRegisterRequest implements the contract above, issuing
// either an immediate response via out, or parking the requester.
func HandleRemoteRegisterRequest(res Resolver, out *Ring, req RemoteRegisterRequest) error {
	if req.HasValue {
		// Parent-shared writeback / global forward: no response expected.
		if err := res.ParkRemoteWaiter(req.Addr, req.CompletionP); err != nil {
			return simerr.Wrap("network", "HandleRemoteRegisterRequest", err)
		}
		return nil
	}
	if value, full := res.Resolve(req.Addr); full {
		out.SendDelegate(RemoteMessage{
			Kind:        RawRegister,
			Reg:         req.Addr,
			Value:       value,
			CompletionP: req.CompletionP,
		})
		return nil
	}
	if err := res.ParkRemoteWaiter(req.Addr, req.CompletionP); err != nil {
		return simerr.Wrap("network", "HandleRemoteRegisterRequest", err)
	}
	return nil
}
