// Package writer encodes translated functions as WebAssembly binary modules.
package writer

import (
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/retrowasm/internal/program"
	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
)

// ErrEncodingFailure is returned when a translated function violates an
// invariant of the module format. It indicates a translator bug.
var ErrEncodingFailure = errors.New("module encoding failure")

// MemoryExportName is the export name of the linear memory.
const MemoryExportName = "memory"

// memoryPages is the size of the linear memory in 64 KiB pages.
const memoryPages = 1

// Options of the writer.
type Options struct {
	NameSection bool // include function and local debug names
}

// Writer encodes a single function into a module.
type Writer struct {
	fn      *program.Function
	options Options
}

// New creates a new writer.
func New(fn *program.Function, options Options) *Writer {
	return &Writer{
		fn:      fn,
		options: options,
	}
}

// Bytes returns the encoded module. Identical functions always result in
// identical bytes.
func (w *Writer) Bytes() (result []byte, err error) {
	body, err := EncodeBody(w.fn.Body)
	if err != nil {
		return nil, err
	}

	module, err := w.module(body)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrEncodingFailure, r)
		}
	}()
	return binary.EncodeModule(module), nil
}

// Write writes the encoded module.
func (w *Writer) Write(out io.Writer) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("writing module: %w", err)
	}
	return nil
}

func (w *Writer) module(body []byte) (*wasm.Module, error) {
	fn := w.fn
	if fn.Name == "" {
		return nil, fmt.Errorf("%w: function has no name", ErrEncodingFailure)
	}
	if fn.Slots < fn.Params {
		return nil, fmt.Errorf("%w: %d slots for %d parameters", ErrEncodingFailure, fn.Slots, fn.Params)
	}

	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{
				Params:  valueTypes(fn.Params),
				Results: []wasm.ValueType{wasm.ValueTypeI64},
			},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{
			{
				LocalTypes: valueTypes(fn.Locals()),
				Body:       body,
			},
		},
		ExportSection: []*wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: fn.Name, Index: 0},
		},
	}

	if fn.UsesMemory {
		if fn.Name == MemoryExportName {
			return nil, fmt.Errorf("%w: function name '%s' collides with the memory export", ErrEncodingFailure, fn.Name)
		}
		m.MemorySection = &wasm.Memory{
			Min:          memoryPages,
			Max:          memoryPages,
			IsMaxEncoded: true,
		}
		m.ExportSection = append(m.ExportSection, &wasm.Export{
			Type:  wasm.ExternTypeMemory,
			Name:  MemoryExportName,
			Index: 0,
		})
	}

	if w.options.NameSection {
		m.NameSection = nameSection(fn)
	}
	return m, nil
}

func nameSection(fn *program.Function) *wasm.NameSection {
	locals := make(wasm.NameMap, 0, len(fn.SlotNames))
	for i, name := range fn.SlotNames {
		if name == "" {
			continue
		}
		locals = append(locals, &wasm.NameAssoc{Index: wasm.Index(i), Name: name})
	}

	return &wasm.NameSection{
		FunctionNames: wasm.NameMap{{Index: 0, Name: fn.Name}},
		LocalNames: wasm.IndirectNameMap{
			{Index: 0, NameMap: locals},
		},
	}
}

func valueTypes(count uint32) []wasm.ValueType {
	if count == 0 {
		return nil
	}
	types := make([]wasm.ValueType, count)
	for i := range types {
		types[i] = wasm.ValueTypeI64
	}
	return types
}
