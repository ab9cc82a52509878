// Package program represents a translated WebAssembly function.
package program

import (
	"fmt"
	"strings"
)

// MemArg is the immediate of a memory access.
type MemArg struct {
	Align  uint32 // log2 of the access size
	Offset uint32
}

// Instruction is a single WebAssembly operation with its immediates.
type Instruction struct {
	Opcode Opcode

	// Value holds the constant of i32.const and i64.const, the local index
	// of local instructions and the label depth of br and br_if.
	Value int64
	// Labels holds the br_table label depths, the last one is the default.
	Labels []uint32
	MemArg MemArg
}

// Function is a translated function ready to be encoded into a module.
type Function struct {
	Name       string
	Params     uint32   // number of i64 parameters, stored in the first locals
	Slots      uint32   // number of locals including the parameters
	SlotNames  []string // debug name of every local
	Body       []Instruction
	UsesMemory bool
}

// Locals returns the number of locals that are declared in the function
// body in addition to the parameters.
func (f *Function) Locals() uint32 {
	return f.Slots - f.Params
}

// Op returns an instruction without immediates.
func Op(opcode Opcode) Instruction {
	return Instruction{Opcode: opcode}
}

// LocalGetOp returns a local.get of the given local.
func LocalGetOp(local uint32) Instruction {
	return Instruction{Opcode: LocalGet, Value: int64(local)}
}

// LocalSetOp returns a local.set of the given local.
func LocalSetOp(local uint32) Instruction {
	return Instruction{Opcode: LocalSet, Value: int64(local)}
}

// I64ConstOp returns an i64.const.
func I64ConstOp(value int64) Instruction {
	return Instruction{Opcode: I64Const, Value: value}
}

// BrOp returns a br to the label at the given depth.
func BrOp(depth uint32) Instruction {
	return Instruction{Opcode: Br, Value: int64(depth)}
}

// BrTableOp returns a br_table, the last label is the default.
func BrTableOp(labels []uint32) Instruction {
	return Instruction{Opcode: BrTable, Labels: labels}
}

// MemoryOp returns a load or store with the given alignment and offset.
func MemoryOp(opcode Opcode, align, offset uint32) Instruction {
	return Instruction{Opcode: opcode, MemArg: MemArg{Align: align, Offset: offset}}
}

func (i Instruction) String() string {
	switch {
	case i.Opcode == I32Const, i.Opcode == I64Const:
		return fmt.Sprintf("%s %d", i.Opcode, i.Value)
	case i.Opcode == LocalGet, i.Opcode == LocalSet, i.Opcode == LocalTee,
		i.Opcode == Br, i.Opcode == BrIf:
		return fmt.Sprintf("%s %d", i.Opcode, i.Value)
	case i.Opcode == BrTable:
		labels := make([]string, len(i.Labels))
		for j, l := range i.Labels {
			labels[j] = fmt.Sprint(l)
		}
		return fmt.Sprintf("%s %s", i.Opcode, strings.Join(labels, " "))
	case i.Opcode.IsMemoryAccess():
		if i.MemArg.Offset == 0 {
			return i.Opcode.String()
		}
		return fmt.Sprintf("%s offset=%d", i.Opcode, i.MemArg.Offset)
	default:
		return i.Opcode.String()
	}
}

// Dump returns the body in text format with nested blocks indented.
func (f *Function) Dump() string {
	var sb strings.Builder
	depth := 1
	for _, ins := range f.Body {
		if ins.Opcode == End || ins.Opcode == Else {
			depth--
		}
		sb.WriteString(strings.Repeat("  ", max(depth, 0)))
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
		switch ins.Opcode {
		case Block, Loop, If, Else:
			depth++
		}
	}
	return sb.String()
}
