package writer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrowasm/internal/program"
	"github.com/tetratelabs/wazero"
)

func addOneFunction() *program.Function {
	return &program.Function{
		Name:      "add_one",
		Params:    1,
		Slots:     2,
		SlotNames: []string{"rdi", "rax"},
		Body: []program.Instruction{
			program.LocalGetOp(0),
			program.I64ConstOp(1),
			program.Op(program.I64Add),
			program.LocalSetOp(1),
			program.LocalGetOp(1),
			program.Op(program.Return),
			program.Op(program.End),
		},
	}
}

func TestEncodeBody(t *testing.T) {
	body := []program.Instruction{
		program.LocalGetOp(0),
		program.I64ConstOp(-1),
		program.Op(program.I64Add),
		program.MemoryOp(program.I64Load32U, 2, 200),
		program.Op(program.Return),
		program.Op(program.End),
	}

	data, err := EncodeBody(body)
	assert.NoError(t, err)
	expected := []byte{
		0x20, 0x00,             // local.get 0
		0x42, 0x7f,             // i64.const -1
		0x7c,                   // i64.add
		0x35, 0x02, 0xc8, 0x01, // i64.load32_u align=2 offset=200
		0x0f,                   // return
		0x0b,                   // end
	}
	assert.Equal(t, expected, data)
}

func TestEncodeBodyInvalid(t *testing.T) {
	tests := []struct {
		name string
		body []program.Instruction
	}{
		{
			name: "missing end",
			body: []program.Instruction{program.I64ConstOp(0)},
		},
		{
			name: "unbalanced block",
			body: []program.Instruction{
				{Opcode: program.Block, Value: program.BlockTypeEmpty},
				program.Op(program.End),
			},
		},
		{
			name: "branch outside of labels",
			body: []program.Instruction{program.BrOp(1), program.Op(program.End)},
		},
		{
			name: "branch table outside of labels",
			body: []program.Instruction{program.BrTableOp([]uint32{0, 2}), program.Op(program.End)},
		},
		{
			name: "code after end",
			body: []program.Instruction{program.Op(program.End), program.Op(program.Nop)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeBody(tt.body)
			assert.True(t, errors.Is(err, ErrEncodingFailure))
		})
	}
}

func TestModuleExecutes(t *testing.T) {
	ctx := context.Background()
	data, err := New(addOneFunction(), Options{NameSection: true}).Bytes()
	assert.NoError(t, err)

	r := wazero.NewRuntime(ctx)
	defer func() { _ = r.Close(ctx) }()

	mod, err := r.Instantiate(ctx, data)
	assert.NoError(t, err)
	assert.Nil(t, mod.ExportedMemory(MemoryExportName))

	fn := mod.ExportedFunction("add_one")
	assert.NotNil(t, fn)
	results, err := fn.Call(ctx, 41)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{42}, results)
}

func TestModuleMemory(t *testing.T) {
	ctx := context.Background()
	fn := &program.Function{
		Name:       "load",
		Params:     1,
		Slots:      1,
		UsesMemory: true,
		Body: []program.Instruction{
			program.LocalGetOp(0),
			program.Op(program.I32WrapI64),
			program.MemoryOp(program.I64Load, 3, 8),
			program.Op(program.Return),
			program.Op(program.End),
		},
	}
	data, err := New(fn, Options{}).Bytes()
	assert.NoError(t, err)

	r := wazero.NewRuntime(ctx)
	defer func() { _ = r.Close(ctx) }()

	mod, err := r.Instantiate(ctx, data)
	assert.NoError(t, err)

	mem := mod.ExportedMemory(MemoryExportName)
	assert.NotNil(t, mem)
	assert.Equal(t, uint32(65536), mem.Size())
	assert.True(t, mem.WriteUint64Le(24, 0x1122334455667788))

	results, err := mod.ExportedFunction("load").Call(ctx, 16)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{0x1122334455667788}, results)
}

func TestModuleDeterministic(t *testing.T) {
	first, err := New(addOneFunction(), Options{NameSection: true}).Bytes()
	assert.NoError(t, err)
	second, err := New(addOneFunction(), Options{NameSection: true}).Bytes()
	assert.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	stripped, err := New(addOneFunction(), Options{}).Bytes()
	assert.NoError(t, err)
	assert.True(t, len(stripped) < len(first))
}

func TestModuleErrors(t *testing.T) {
	fn := addOneFunction()
	fn.Name = MemoryExportName
	fn.UsesMemory = true
	_, err := New(fn, Options{}).Bytes()
	assert.True(t, errors.Is(err, ErrEncodingFailure))

	fn = addOneFunction()
	fn.Slots = 0
	_, err = New(fn, Options{}).Bytes()
	assert.True(t, errors.Is(err, ErrEncodingFailure))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, New(addOneFunction(), Options{}).Write(&buf))
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, buf.Bytes()[:4])
}
