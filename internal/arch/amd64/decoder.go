package amd64

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/retroenv/retrowasm/internal/instruction"
	"golang.org/x/arch/x86/x86asm"
)

// ErrInvalidEncoding is returned when the bytes at an address do not form a
// valid instruction within the remaining capacity.
var ErrInvalidEncoding = errors.New("invalid instruction encoding")

const decodeMode = 64

// endbr64 is decoded separately as the decoder tables predate CET.
var endbr64 = []byte{0xf3, 0x0f, 0x1e, 0xfa}

// Decode decodes code sequentially from offset 0, tagging every instruction
// with its absolute address based on address.
func Decode(code []byte, address uint64) ([]instruction.Instruction, error) {
	var result []instruction.Instruction

	for offset := 0; offset < len(code); {
		pc := address + uint64(offset)
		remaining := code[offset:]

		if bytes.HasPrefix(remaining, endbr64) {
			result = append(result, instruction.Instruction{
				Address:  pc,
				Size:     len(endbr64),
				Mnemonic: "ENDBR64",
				Class:    instruction.ClassNop,
			})
			offset += len(endbr64)
			continue
		}

		inst, err := x86asm.Decode(remaining, decodeMode)
		if err != nil {
			return nil, fmt.Errorf("%w at 0x%x: %w", ErrInvalidEncoding, pc, err)
		}
		if inst.Op == 0 {
			// truncated and unknown encodings decode to op 0 without an error
			return nil, fmt.Errorf("%w at 0x%x", ErrInvalidEncoding, pc)
		}
		if inst.Len <= 0 || inst.Len > len(remaining) {
			return nil, fmt.Errorf("%w at 0x%x: decoded length %d", ErrInvalidEncoding, pc, inst.Len)
		}

		result = append(result, convert(inst, pc))
		offset += inst.Len
	}

	return result, nil
}

// convert translates a decoded x86asm instruction into the neutral model.
func convert(inst x86asm.Inst, pc uint64) instruction.Instruction {
	class, cond := classify(inst.Op)
	ins := instruction.Instruction{
		Address:   pc,
		Size:      inst.Len,
		Mnemonic:  strings.ToUpper(inst.Op.String()),
		Class:     class,
		Condition: cond,
	}

	for _, arg := range inst.Args {
		if arg == nil {
			break
		}

		switch a := arg.(type) {
		case x86asm.Reg:
			reg := register(a)
			ins.Operands = append(ins.Operands, instruction.Operand{
				Kind:     instruction.RegisterOperand,
				Register: reg,
				Width:    reg.Width,
			})

		case x86asm.Mem:
			ins.Operands = append(ins.Operands, instruction.Operand{
				Kind:   instruction.MemoryOperand,
				Memory: memory(a),
				Width:  inst.MemBytes * 8,
			})

		case x86asm.Imm:
			ins.Operands = append(ins.Operands, instruction.Operand{
				Kind:      instruction.ImmediateOperand,
				Immediate: int64(a),
				Width:     immediateWidth(inst, ins.Operands),
			})

		case x86asm.Rel:
			ins.Target = pc + uint64(inst.Len) + uint64(int64(a))
			ins.HasTarget = true
		}
	}

	return ins
}

// memory converts a memory reference. RIP relative references keep their
// displacement relative to the next instruction.
func memory(m x86asm.Mem) instruction.Memory {
	mem := instruction.Memory{
		Scale:        int(m.Scale),
		Displacement: m.Disp,
	}
	if m.Segment != 0 {
		mem.Segment = strings.ToLower(m.Segment.String())
	}

	switch m.Base {
	case 0:
	case x86asm.RIP, x86asm.EIP:
		mem.RIPRelative = true
	default:
		mem.Base = register(m.Base)
	}
	if m.Index != 0 {
		mem.Index = register(m.Index)
	}
	return mem
}

// immediateWidth returns the width an immediate is applied with, which is
// the width of the preceding operand or the data size of the instruction.
func immediateWidth(inst x86asm.Inst, previous []instruction.Operand) int {
	if len(previous) > 0 && previous[0].Width > 0 {
		return previous[0].Width
	}
	if inst.DataSize > 0 {
		return inst.DataSize
	}
	return 64
}
