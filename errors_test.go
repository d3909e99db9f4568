package drisc

import (
	"errors"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("core[0].dcache", "DCache.Read", InvalidArgument, "unaligned address")

	if err.Op != "DCache.Read" {
		t.Errorf("Expected Op=DCache.Read, got %s", err.Op)
	}
	if err.Kind != InvalidArgument {
		t.Errorf("Expected Kind=InvalidArgument, got %s", err.Kind)
	}

	expected := "drisc: unaligned address (component=core[0].dcache, kind=invalid argument)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorAtCycle(t *testing.T) {
	err := NewErrorAtCycle("core[1].pipeline.decode", "Decode", IllegalInstruction, 4200, "unclassifiable opcode")

	if err.Cycle != 4200 {
		t.Errorf("Expected Cycle=4200, got %d", err.Cycle)
	}
	if err.Kind != IllegalInstruction {
		t.Errorf("Expected Kind=IllegalInstruction, got %s", err.Kind)
	}
}

func TestWrapErrorPreservesKind(t *testing.T) {
	inner := NewError("core[0].alloc", "AllocateFamily", ResourceExhaustion, "family table full")
	wrapped := WrapError("core[0].pipeline.execute", "Execute", inner)

	if wrapped.Kind != ResourceExhaustion {
		t.Errorf("Expected wrapped Kind=ResourceExhaustion, got %s", wrapped.Kind)
	}
	if wrapped.Component != "core[0].pipeline.execute" {
		t.Errorf("Expected Component to be updated to wrapping site, got %s", wrapped.Component)
	}
}

func TestWrapErrorNil(t *testing.T) {
	if WrapError("x", "y", nil) != nil {
		t.Error("expected nil wrap of nil error")
	}
}

func TestIsKind(t *testing.T) {
	err := NewError("core[0].network", "Ring.Push", Deadlock, "outgoing buffer stuck")
	if !IsKind(err, Deadlock) {
		t.Error("expected IsKind(err, Deadlock) to be true")
	}
	if IsKind(err, SecurityViolation) {
		t.Error("expected IsKind(err, SecurityViolation) to be false")
	}

	plain := errors.New("not structured")
	if IsKind(plain, Deadlock) {
		t.Error("expected IsKind on a non-structured error to be false")
	}
}

func TestErrorsAsThroughWrap(t *testing.T) {
	inner := NewError("core[0].regfile", "Write", SimulationException, "double write to cell")
	wrapped := WrapError("core[0].pipeline.writeback", "Writeback", inner)

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to find the structured error")
	}
	if target.Kind != SimulationException {
		t.Errorf("expected Kind=SimulationException, got %s", target.Kind)
	}
}
