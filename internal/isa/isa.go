// Package isa is the external collaborator the Decode pipeline stage
// delegates to (spec.md §4.4.2): a pure translation of an instruction
// word into opcode, operand addresses, and control bits. ISA tables
// live here so the pipeline stays ISA-agnostic.
package isa

import (
	"github.com/behrlich/drisc/internal/regfile"
	"github.com/behrlich/drisc/internal/simerr"
)

// Opcode is a decoded operation class. The reference ISA below covers
// only what the example scenarios exercise (integer arithmetic,
// branches, loads/stores, family-control ops); a real target ISA
// plugs in a different Decoder.
type Opcode int

const (
	OpNop Opcode = iota
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSetLess
	OpLoad
	OpStore
	OpBranch
	OpBranchIf
	OpFPU
	OpAllocate
	OpCreate
	OpSetProperty
	OpSync
	OpDetach
	OpBreak
	OpGlobal
	OpTerminate
)

// FPUOp tags which FPU micro-operation an OpFPU instruction requests.
type FPUOp int

const (
	FPUNone FPUOp = iota
	FPUAdd
	FPUSub
	FPUMul
	FPUDiv
)

// Instruction is the control-word / instruction-word pair Fetch hands
// to Decode: a 2-bit per-instruction control {wantSwitch, killAfter}
// plus the raw instruction word (spec.md §4.4.1).
type Instruction struct {
	Word       uint32
	WantSwitch bool
	KillAfter  bool
}

// Decoded is Decode's pure output (spec.md §4.4.2).
type Decoded struct {
	Opcode     Opcode
	Src        [2]regfile.RegAddr
	SrcValid   [2]bool
	Dest       regfile.RegAddr
	DestValid  bool
	Imm        int64
	ImmValid   bool
	Size       uint32 // operand width in bytes
	SignExtend bool
	FPU        FPUOp
	WantSwitch bool
	KillAfter  bool
}

// Decoder translates one instruction word into a Decoded instruction.
// External collaborator: the pipeline's Decode stage owns none of the
// ISA logic, only the delegate wiring around it.
type Decoder interface {
	Decode(instr Instruction) (Decoded, error)
}

// Reference is a minimal fixed-width encoding sufficient to drive the
// single-core scenarios: bits [31:26] opcode, [25:21] dest, [20:16]
// src0, [15:11] src1, [10:0] signed immediate, used interchangeably as
// an 11-bit literal or ignored depending on Opcode.
type Reference struct{}

// Decode implements Decoder for the reference encoding.
func (Reference) Decode(instr Instruction) (Decoded, error) {
	w := instr.Word
	op := Opcode((w >> 26) & 0x3f)
	dest := regAddr((w >> 21) & 0x1f)
	src0 := regAddr((w >> 16) & 0x1f)
	src1 := regAddr((w >> 11) & 0x1f)
	imm := signExtend11(w & 0x7ff)

	d := Decoded{
		Opcode:     op,
		Dest:       dest,
		Size:       8,
		WantSwitch: instr.WantSwitch,
		KillAfter:  instr.KillAfter,
	}

	switch op {
	case OpNop, OpTerminate, OpSync, OpDetach, OpBreak:
		// no operands
	case OpBranch:
		d.ImmValid = true
		d.Imm = imm
	case OpBranchIf:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.ImmValid = true
		d.Imm = imm
	case OpLoad:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.DestValid = true
		d.ImmValid = true
		d.Imm = imm
	case OpStore:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.Src[1] = src1
		d.SrcValid[1] = true
		d.ImmValid = true
		d.Imm = imm
	case OpFPU:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.Src[1] = src1
		d.SrcValid[1] = true
		d.DestValid = true
		d.FPU = FPUOp((w >> 6) & 0x7)
	case OpAllocate, OpCreate, OpSetProperty, OpGlobal:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.DestValid = true
		d.ImmValid = true
		d.Imm = imm
	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpShr, OpSetLess:
		d.Src[0] = src0
		d.SrcValid[0] = true
		d.Src[1] = src1
		d.SrcValid[1] = true
		d.DestValid = true
	default:
		return Decoded{}, simerr.New("isa.Reference", "Decode", simerr.IllegalInstruction, "unrecognized opcode")
	}
	return d, nil
}

func regAddr(idx uint32) regfile.RegAddr {
	return regfile.RegAddr{Type: regfile.IntReg, Index: idx}
}

func signExtend11(v uint32) int64 {
	if v&0x400 != 0 {
		return int64(v) - 0x800
	}
	return int64(v)
}
