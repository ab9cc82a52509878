package verification

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/program"
	"github.com/retroenv/retrowasm/internal/writer"
)

func encode(t *testing.T, fn *program.Function) []byte {
	t.Helper()
	data, err := writer.New(fn, writer.Options{}).Bytes()
	assert.NoError(t, err)
	return data
}

// doubleFunction returns 2*param.
func doubleFunction() *program.Function {
	return &program.Function{
		Name:   "double",
		Params: 1,
		Slots:  1,
		Body: []program.Instruction{
			program.LocalGetOp(0),
			program.LocalGetOp(0),
			program.Op(program.I64Add),
			program.Op(program.Return),
			program.Op(program.End),
		},
	}
}

// loadFunction returns the value stored at the address param.
func loadFunction() *program.Function {
	return &program.Function{
		Name:       "load",
		Params:     1,
		Slots:      1,
		UsesMemory: true,
		Body: []program.Instruction{
			program.LocalGetOp(0),
			program.Op(program.I32WrapI64),
			program.MemoryOp(program.I64Load, 3, 0),
			program.Op(program.Return),
			program.Op(program.End),
		},
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	v := New(log.NewTestLogger(t))

	tests := []struct {
		name       string
		fn         *program.Function
		export     string
		params     int
		usesMemory bool
		wantErr    error
	}{
		{
			name:   "valid",
			fn:     doubleFunction(),
			export: "double",
			params: 1,
		},
		{
			name:       "valid with memory",
			fn:         loadFunction(),
			export:     "load",
			params:     1,
			usesMemory: true,
		},
		{
			name:    "missing export",
			fn:      doubleFunction(),
			export:  "triple",
			params:  1,
			wantErr: errMissingExport,
		},
		{
			name:    "parameter count",
			fn:      doubleFunction(),
			export:  "double",
			params:  2,
			wantErr: errSignature,
		},
		{
			name:       "memory expected",
			fn:         doubleFunction(),
			export:     "double",
			params:     1,
			usesMemory: true,
			wantErr:    errMissingMemory,
		},
		{
			name:    "memory unexpected",
			fn:      loadFunction(),
			export:  "load",
			params:  1,
			wantErr: errSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(ctx, encode(t, tt.fn), tt.export, tt.params, tt.usesMemory)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyInvalidModule(t *testing.T) {
	v := New(log.NewTestLogger(t))
	err := v.Verify(context.Background(), []byte{0x00, 0x61, 0x73, 0x6d, 0x02}, "fn", 1, false)
	assert.ErrorContains(t, err, "compiling module")
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()
	v := New(log.NewTestLogger(t))

	result, err := v.Invoke(ctx, encode(t, doubleFunction()), "double", nil, 21)
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), result)

	memory := make([]byte, 16)
	binary.LittleEndian.PutUint64(memory[8:], 0xdeadbeef)
	result, err = v.Invoke(ctx, encode(t, loadFunction()), "load", memory, 8)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), result)

	_, err = v.Invoke(ctx, encode(t, doubleFunction()), "double", memory, 1)
	assert.True(t, errors.Is(err, errMemoryNotExport))

	_, err = v.Invoke(ctx, encode(t, loadFunction()), "load", nil, 1<<20)
	assert.ErrorContains(t, err, "calling function 'load'")
}
