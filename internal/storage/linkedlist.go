package storage

import "github.com/behrlich/drisc/internal/kernel"

// Nil marks the absence of a next/head/tail index in LinkedList.
const Nil int32 = -1

// LinkedList is an intrusive singly-linked list over a fixed-size
// backing table of int32 indices (thread or family table slots). No
// node is ever allocated: the backing table holds one "next" slot per
// index, so Push/Pop/Append are O(1) with no garbage. Used for
// ready-thread queues and per-register wait-lists.
type LinkedList struct {
	id     string
	tracer kernel.Tracer
	next   []int32
	head   int32
	tail   int32
}

// NewLinkedList creates an empty list whose indices range over
// [0, capacity).
func NewLinkedList(id string, tracer kernel.Tracer, capacity int) *LinkedList {
	next := make([]int32, capacity)
	for i := range next {
		next[i] = Nil
	}
	return &LinkedList{id: id, tracer: tracer, next: next, head: Nil, tail: Nil}
}

// Identity returns the list's trace identity.
func (l *LinkedList) Identity() string { return l.id }

// NonEmpty reports whether the list has at least one element.
func (l *LinkedList) NonEmpty() bool { return l.head != Nil }

// Push inserts idx at the head of the list.
func (l *LinkedList) Push(idx int32) {
	l.next[idx] = l.head
	l.head = idx
	if l.tail == Nil {
		l.tail = idx
	}
	l.tracer.Touch(l.id)
}

// Append inserts idx at the tail of the list.
func (l *LinkedList) Append(idx int32) {
	l.next[idx] = Nil
	if l.tail == Nil {
		l.head = idx
	} else {
		l.next[l.tail] = idx
	}
	l.tail = idx
	l.tracer.Touch(l.id)
}

// Pop removes and returns the head element. Returns (Nil, false) if
// the list is empty.
func (l *LinkedList) Pop() (int32, bool) {
	if l.head == Nil {
		return Nil, false
	}
	idx := l.head
	l.head = l.next[idx]
	if l.head == Nil {
		l.tail = Nil
	}
	l.next[idx] = Nil
	l.tracer.Touch(l.id)
	return idx, true
}

// DrainAll pops every element and returns them in list order. Used by
// the register file's wakeup protocol, which must move an entire
// wait-list to the ready queue atomically or not at all.
func (l *LinkedList) DrainAll() []int32 {
	var out []int32
	for {
		idx, ok := l.Pop()
		if !ok {
			break
		}
		out = append(out, idx)
	}
	return out
}
