package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(op Opcode, dest, src0, src1 uint32, imm uint32) uint32 {
	return uint32(op)<<26 | (dest&0x1f)<<21 | (src0&0x1f)<<16 | (src1&0x1f)<<11 | (imm & 0x7ff)
}

func TestDecodeArithmeticHasTwoSourcesAndDest(t *testing.T) {
	d, err := Reference{}.Decode(Instruction{Word: encode(OpAdd, 1, 2, 3, 0)})
	require.NoError(t, err)
	assert.Equal(t, OpAdd, d.Opcode)
	assert.True(t, d.SrcValid[0])
	assert.True(t, d.SrcValid[1])
	assert.True(t, d.DestValid)
	assert.Equal(t, uint32(2), d.Src[0].Index)
	assert.Equal(t, uint32(3), d.Src[1].Index)
	assert.Equal(t, uint32(1), d.Dest.Index)
}

func TestDecodeBranchCarriesImmediateOnly(t *testing.T) {
	d, err := Reference{}.Decode(Instruction{Word: encode(OpBranch, 0, 0, 0, 5)})
	require.NoError(t, err)
	assert.True(t, d.ImmValid)
	assert.Equal(t, int64(5), d.Imm)
	assert.False(t, d.SrcValid[0])
}

func TestDecodeNegativeImmediateSignExtends(t *testing.T) {
	d, err := Reference{}.Decode(Instruction{Word: encode(OpBranch, 0, 0, 0, 0x7ff)}) // -1
	require.NoError(t, err)
	assert.Equal(t, int64(-1), d.Imm)
}

func TestDecodeLoadCarriesBaseAndOffset(t *testing.T) {
	d, err := Reference{}.Decode(Instruction{Word: encode(OpLoad, 4, 2, 0, 8)})
	require.NoError(t, err)
	assert.True(t, d.SrcValid[0])
	assert.True(t, d.DestValid)
	assert.Equal(t, int64(8), d.Imm)
}

func TestDecodeFPUCarriesFPUOpField(t *testing.T) {
	word := encode(OpFPU, 1, 2, 3, 0) | uint32(FPUMul)<<6
	d, err := Reference{}.Decode(Instruction{Word: word})
	require.NoError(t, err)
	assert.Equal(t, FPUMul, d.FPU)
}

func TestDecodeIllegalOpcodeIsFatal(t *testing.T) {
	_, err := Reference{}.Decode(Instruction{Word: uint32(0x3f) << 26})
	assert.Error(t, err)
}

func TestDecodeCarriesWantSwitchAndKillAfter(t *testing.T) {
	d, err := Reference{}.Decode(Instruction{Word: encode(OpNop, 0, 0, 0, 0), WantSwitch: true, KillAfter: true})
	require.NoError(t, err)
	assert.True(t, d.WantSwitch)
	assert.True(t, d.KillAfter)
}
