package symbols

import (
	"debug/elf"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/detector"
	"github.com/retroenv/retrowasm/internal/symbols/mocks"
)

var (
	addOne = mocks.Function{
		Name: "add_one",
		Code: []byte{0x89, 0xf8, 0x83, 0xc0, 0x01, 0xc3},
	}
	isPositive = mocks.Function{
		Name: "is_positive",
		Code: []byte{0x31, 0xc0, 0x48, 0x85, 0xff, 0x0f, 0x9f, 0xc0, 0xc3},
	}
	counter = mocks.Function{
		Name:   "counter",
		Code:   []byte{0, 0, 0, 0, 0, 0, 0, 0},
		Object: true,
	}
	imported = mocks.Function{
		Name:      "printf",
		Undefined: true,
	}
	empty = mocks.Function{
		Name:     "empty",
		Code:     []byte{0xc3},
		ZeroSize: true,
	}
)

func TestResolveELF(t *testing.T) {
	tests := []struct {
		name        string
		typ         elf.Type
		textAddress uint64
		function    mocks.Function
		wantAddress uint64
	}{
		{
			name:        "relocatable first function",
			typ:         elf.ET_REL,
			function:    addOne,
			wantAddress: 0,
		},
		{
			name:        "relocatable second function",
			typ:         elf.ET_REL,
			function:    isPositive,
			wantAddress: 6,
		},
		{
			name:        "executable",
			typ:         elf.ET_EXEC,
			textAddress: 0x401000,
			function:    isPositive,
			wantAddress: 0x401006,
		},
		{
			name:        "shared object",
			typ:         elf.ET_DYN,
			textAddress: 0x1100,
			function:    addOne,
			wantAddress: 0x1100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mocks.BuildELF(tt.typ, tt.textAddress, addOne, isPositive, counter, imported)
			r, err := New(log.NewTestLogger(t), data)
			assert.NoError(t, err)
			assert.Equal(t, detector.ELF, r.Format())

			fn, err := r.Resolve(tt.function.Name)
			assert.NoError(t, err)
			assert.Equal(t, tt.function.Name, fn.Name)
			assert.Equal(t, tt.wantAddress, fn.Address)
			assert.Equal(t, tt.function.Code, fn.Code)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	elfData := mocks.BuildELF(elf.ET_REL, 0, addOne, counter, imported)
	machoData := mocks.BuildMachO(0x100000f00, addOne)

	tests := []struct {
		name    string
		data    []byte
		symbol  string
		wantErr error
	}{
		{
			name:    "missing symbol",
			data:    elfData,
			symbol:  "missing",
			wantErr: ErrSymbolNotFound,
		},
		{
			name:    "data object",
			data:    elfData,
			symbol:  "counter",
			wantErr: ErrSymbolNotFound,
		},
		{
			name:    "undefined function",
			data:    elfData,
			symbol:  "printf",
			wantErr: ErrSymbolNotFound,
		},
		{
			name:    "name prefix does not match",
			data:    elfData,
			symbol:  "add",
			wantErr: ErrSymbolNotFound,
		},
		{
			name:    "Mach-O symbols have no size",
			data:    machoData,
			symbol:  "add_one",
			wantErr: ErrSizeUnknown,
		},
		{
			name:    "Mach-O missing symbol",
			data:    machoData,
			symbol:  "missing",
			wantErr: ErrSymbolNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(log.NewTestLogger(t), tt.data)
			assert.NoError(t, err)

			_, err = r.Resolve(tt.symbol)
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}
}

func TestResolveRelocations(t *testing.T) {
	tailCall := mocks.Function{
		Name:        "tail_call",
		Code:        []byte{0x85, 0xff, 0x0f, 0x84, 0x00, 0x00, 0x00, 0x00, 0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3},
		Relocations: []int{4, 9},
	}

	tests := []struct {
		name        string
		typ         elf.Type
		textAddress uint64
		want        []uint64
	}{
		{
			name: "relocatable",
			typ:  elf.ET_REL,
			want: []uint64{10, 15},
		},
		{
			name:        "executable",
			typ:         elf.ET_EXEC,
			textAddress: 0x401000,
			want:        []uint64{0x40100a, 0x40100f},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(log.NewTestLogger(t), mocks.BuildELF(tt.typ, tt.textAddress, addOne, tailCall, isPositive))
			assert.NoError(t, err)

			fn, err := r.Resolve("tail_call")
			assert.NoError(t, err)
			assert.Equal(t, tt.want, fn.Relocations)

			for _, name := range []string{"add_one", "is_positive"} {
				fn, err = r.Resolve(name)
				assert.NoError(t, err)
				assert.Equal(t, 0, len(fn.Relocations))
			}
		})
	}
}

func TestResolveZeroSize(t *testing.T) {
	data := mocks.BuildELF(elf.ET_REL, 0, addOne, empty)
	r, err := New(log.NewTestLogger(t), data)
	assert.NoError(t, err)

	fn, err := r.Resolve("empty")
	assert.NoError(t, err)
	assert.Equal(t, uint64(6), fn.Address)
	assert.Equal(t, 0, len(fn.Code))
}

func TestResolveSectionNotFound(t *testing.T) {
	r := &Resolver{
		logger: log.NewTestLogger(t),
		symbols: []symbol{
			{name: "outside", address: 0x2000, size: 4, sized: true, section: -1},
			{name: "overlapping", address: 0x1002, size: 4, sized: true, section: 0},
		},
		sections: []section{
			{name: ".text", address: 0x1000, executable: true, data: []byte{0x90, 0x90, 0x90, 0xc3}},
			{name: ".data", address: 0x2000, data: []byte{1, 2, 3, 4}},
		},
	}

	for _, name := range []string{"outside", "overlapping"} {
		_, err := r.Resolve(name)
		assert.True(t, errors.Is(err, ErrSectionNotFound))
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := New(log.NewTestLogger(t), []byte("MZ\x90\x00"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestFunctions(t *testing.T) {
	data := mocks.BuildELF(elf.ET_EXEC, 0x401000, isPositive, addOne, counter, imported, isPositive)
	r, err := New(log.NewTestLogger(t), data)
	assert.NoError(t, err)

	expected := []Symbol{
		{Name: "add_one", Address: 0x401009, Size: 6, Sized: true},
		{Name: "is_positive", Address: 0x401000, Size: 9, Sized: true},
	}
	assert.Equal(t, expected, r.Functions())

	r, err = New(log.NewTestLogger(t), mocks.BuildMachO(0x1000, addOne, imported))
	assert.NoError(t, err)
	assert.Equal(t, detector.MachO, r.Format())
	expected = []Symbol{
		{Name: "add_one", Address: 0x1000},
	}
	assert.Equal(t, expected, r.Functions())
}
