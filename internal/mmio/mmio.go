// Package mmio implements the core's memory-mapped I/O surface
// (spec.md §6.3): a set of sub-devices, each declaring a base address,
// size and access mode, dispatched through a single interval map.
// REDESIGN FLAGS §9 asks for "runtime polymorphism over MMIO
// components via a base class" to be restated as a tagged variant of
// devices behind one dispatch unit — IOMatchUnit below is that variant.
package mmio

import (
	"github.com/behrlich/drisc/internal/simerr"
)

// AccessMode is a sub-device's declared permission.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

func (m AccessMode) allowsRead() bool  { return m == ReadOnly || m == ReadWrite }
func (m AccessMode) allowsWrite() bool { return m == WriteOnly || m == ReadWrite }

// Device is one MMIO sub-device (spec.md §6.3): action, MMU, debug
// out/err, perfcounters, ASR file, APR file, and so on. Read/Write
// receive an offset already relative to the device's own base.
type Device interface {
	Name() string
	Base() uint64
	Size() uint64
	Mode() AccessMode
	Read(offset uint64, size uint32, fid uint32, tid int32) (uint64, error)
	Write(offset uint64, size uint32, value uint64, fid uint32, tid int32) error
}

// span is a registered device's address range, kept alongside the
// device so IOMatchUnit can match an address without re-querying Base/Size
// on every dispatch.
type span struct {
	base uint64
	end  uint64 // exclusive
	dev  Device
}

// IOMatchUnit is the interval map from address to device (spec.md
// §6.3, REDESIGN FLAGS §9). Built once at Boot from every sub-device's
// declared base/size, then used to dispatch every MMIO access for the
// lifetime of the run.
type IOMatchUnit struct {
	id    string
	spans []span // kept sorted by base after Finalize
	built bool
}

// NewIOMatchUnit creates an empty match unit. Register every device,
// then call Finalize before the first Read/Write.
func NewIOMatchUnit(id string) *IOMatchUnit {
	return &IOMatchUnit{id: id}
}

// Register adds a device's range to the unit. Returns InvalidArgument
// if the new range overlaps one already registered.
func (u *IOMatchUnit) Register(dev Device) error {
	base, size := dev.Base(), dev.Size()
	if size == 0 {
		return simerr.New(u.id, "Register", simerr.InvalidArgument, "device "+dev.Name()+" has zero size")
	}
	end := base + size
	for _, s := range u.spans {
		if base < s.end && s.base < end {
			return simerr.New(u.id, "Register", simerr.InvalidArgument,
				"device "+dev.Name()+" overlaps "+s.dev.Name())
		}
	}
	u.spans = append(u.spans, span{base: base, end: end, dev: dev})
	u.built = false
	return nil
}

// Finalize sorts the registered spans for lookup. Idempotent.
func (u *IOMatchUnit) Finalize() {
	for i := 1; i < len(u.spans); i++ {
		for j := i; j > 0 && u.spans[j].base < u.spans[j-1].base; j-- {
			u.spans[j], u.spans[j-1] = u.spans[j-1], u.spans[j]
		}
	}
	u.built = true
}

func (u *IOMatchUnit) find(addr uint64) (span, bool) {
	for _, s := range u.spans {
		if addr >= s.base && addr < s.end {
			return s, true
		}
	}
	return span{}, false
}

// InRange reports whether addr falls inside any registered device's
// span, so a caller with both a data cache and an MMIO surface behind
// one address space can route a load/store to whichever one claims it.
func (u *IOMatchUnit) InRange(addr uint64) bool {
	_, ok := u.find(addr)
	return ok
}

// Read dispatches a read to the owning device, or InvalidArgument if
// no device claims addr or the access crosses out of the device's
// range or violates its declared mode.
func (u *IOMatchUnit) Read(addr uint64, size uint32, fid uint32, tid int32) (uint64, error) {
	s, ok := u.find(addr)
	if !ok {
		return 0, simerr.New(u.id, "Read", simerr.InvalidArgument, "no MMIO device at the requested address")
	}
	if addr+uint64(size) > s.end {
		return 0, simerr.New(u.id, "Read", simerr.InvalidArgument, "access crosses device boundary")
	}
	if !s.dev.Mode().allowsRead() {
		return 0, simerr.New(u.id, "Read", simerr.SecurityViolation, "device "+s.dev.Name()+" is not readable")
	}
	v, err := s.dev.Read(addr-s.base, size, fid, tid)
	return v, simerr.Wrap(u.id, "Read", err)
}

// Write dispatches a write to the owning device, subject to the same
// range/mode checks as Read.
func (u *IOMatchUnit) Write(addr uint64, size uint32, value uint64, fid uint32, tid int32) error {
	s, ok := u.find(addr)
	if !ok {
		return simerr.New(u.id, "Write", simerr.InvalidArgument, "no MMIO device at the requested address")
	}
	if addr+uint64(size) > s.end {
		return simerr.New(u.id, "Write", simerr.InvalidArgument, "access crosses device boundary")
	}
	if !s.dev.Mode().allowsWrite() {
		return simerr.New(u.id, "Write", simerr.SecurityViolation, "device "+s.dev.Name()+" is not writable")
	}
	return simerr.Wrap(u.id, "Write", s.dev.Write(addr-s.base, size, value, fid, tid))
}
