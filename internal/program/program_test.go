package program

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestInstructionString(t *testing.T) {
	tests := []struct {
		ins      Instruction
		expected string
	}{
		{LocalGetOp(3), "local.get 3"},
		{I64ConstOp(-1), "i64.const -1"},
		{BrOp(2), "br 2"},
		{BrTableOp([]uint32{0, 1, 2}), "br_table 0 1 2"},
		{MemoryOp(I64Load32U, 2, 8), "i64.load32_u offset=8"},
		{MemoryOp(I64Store, 3, 0), "i64.store"},
		{Op(I64Extend8S), "i64.extend8_s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.ins.String())
	}
}

func TestDump(t *testing.T) {
	f := &Function{
		Body: []Instruction{
			LocalGetOp(0),
			Op(I64Eqz),
			{Opcode: If, Value: BlockTypeEmpty},
			I64ConstOp(1),
			Op(Return),
			Op(End),
			I64ConstOp(0),
			Op(End),
		},
	}

	expected := "  local.get 0\n" +
		"  i64.eqz\n" +
		"  if\n" +
		"    i64.const 1\n" +
		"    return\n" +
		"  end\n" +
		"  i64.const 0\n" +
		"end\n"
	assert.Equal(t, expected, f.Dump())
}

func TestLocals(t *testing.T) {
	f := &Function{Params: 2, Slots: 5}
	assert.Equal(t, uint32(3), f.Locals())
	assert.True(t, I64Store8.IsMemoryAccess())
	assert.False(t, LocalGet.IsMemoryAccess())
}
