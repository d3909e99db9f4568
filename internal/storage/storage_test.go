package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeTracer records touched identities without requiring a live
// kernel commit phase, so storage primitives can be unit-tested in
// isolation.
type fakeTracer struct{ touched []string }

func (f *fakeTracer) Touch(identity string) { f.touched = append(f.touched, identity) }

func TestRegisterWriteReadClear(t *testing.T) {
	tr := &fakeTracer{}
	r := NewRegister[int]("reg0", tr)

	assert.True(t, r.Empty())
	assert.False(t, r.NonEmpty())

	assert.True(t, r.Write(42))
	assert.True(t, r.NonEmpty())
	v, ok := r.Read()
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	assert.False(t, r.Write(7), "write to a full register must fail")

	r.Clear()
	assert.True(t, r.Empty())
	assert.Equal(t, []string{"reg0", "reg0"}, tr.touched)
}

func TestFlagSetClear(t *testing.T) {
	tr := &fakeTracer{}
	f := NewFlag("active", tr, false)
	assert.False(t, f.NonEmpty())

	f.Set()
	assert.True(t, f.Get())
	f.Clear()
	assert.False(t, f.Get())
}

func TestBufferBoundedFIFO(t *testing.T) {
	tr := &fakeTracer{}
	b := NewBuffer[int]("outbox", tr, 2)

	assert.True(t, b.Push(1))
	assert.True(t, b.Push(2))
	assert.False(t, b.Push(3), "push beyond capacity must fail")
	assert.True(t, b.Full())

	v, ok := b.Front()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = b.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, b.Push(3))

	got := []int{}
	for b.NonEmpty() {
		v, _ := b.Pop()
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3}, got)
}

func TestLinkedListPushAppendPop(t *testing.T) {
	tr := &fakeTracer{}
	l := NewLinkedList("waitlist", tr, 4)
	assert.False(t, l.NonEmpty())

	l.Append(0)
	l.Append(1)
	l.Push(2) // pushed to head

	var order []int32
	for l.NonEmpty() {
		idx, _ := l.Pop()
		order = append(order, idx)
	}
	assert.Equal(t, []int32{2, 0, 1}, order)
}

func TestLinkedListDrainAll(t *testing.T) {
	tr := &fakeTracer{}
	l := NewLinkedList("waitlist", tr, 4)
	l.Append(0)
	l.Append(1)
	l.Append(2)

	drained := l.DrainAll()
	assert.Equal(t, []int32{0, 1, 2}, drained)
	assert.False(t, l.NonEmpty())
}

func TestStructureGetSetDelete(t *testing.T) {
	tr := &fakeTracer{}
	s := NewStructure[uint32, string]("familyTable", tr)
	assert.False(t, s.NonEmpty())

	s.Set(1, "fam-1")
	v, ok := s.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "fam-1", v)
	assert.Equal(t, 1, s.Len())

	s.Delete(1)
	assert.Equal(t, 0, s.Len())
	_, ok = s.Get(1)
	assert.False(t, ok)
}
