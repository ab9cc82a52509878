package translator

import (
	"fmt"
	"math"

	"github.com/retroenv/retrowasm/internal/instruction"
	"github.com/retroenv/retrowasm/internal/program"
)

// valueFunc pushes a single i64 value.
type valueFunc func() error

func (t *translation) emit(ins ...program.Instruction) {
	t.body = append(t.body, ins...)
}

func (t *translation) slot(id instruction.RegisterID) uint32 {
	return uint32(t.alloc.GetOrAllocate(id))
}

// extend extends the low width bits of the i64 value on the stack to
// 64 bits.
func (t *translation) extend(width int, signed bool) {
	switch width {
	case 32:
		if signed {
			t.emit(program.Op(program.I64Extend32S))
		} else {
			t.emit(program.Op(program.I32WrapI64), program.Op(program.I64ExtendI32U))
		}
	case 16:
		if signed {
			t.emit(program.Op(program.I64Extend16S))
		} else {
			t.emit(program.I64ConstOp(0xffff), program.Op(program.I64And))
		}
	case 8:
		if signed {
			t.emit(program.Op(program.I64Extend8S))
		} else {
			t.emit(program.I64ConstOp(0xff), program.Op(program.I64And))
		}
	}
}

// extendImmediate extends the low width bits of an immediate to 64 bits.
func extendImmediate(value int64, width int, signed bool) int64 {
	if width <= 0 || width >= 64 {
		return value
	}
	shift := uint(64 - width)
	if signed {
		return value << shift >> shift
	}
	return int64(uint64(value) << shift >> shift)
}

func (t *translation) readRegister(reg instruction.Register, signed bool) {
	t.emit(program.LocalGetOp(t.slot(reg.ID)))
	t.extend(reg.Width, signed)
}

// writeRegister stores the value into the register following the x86-64
// rules: 32 bit writes zero the upper half, 8 and 16 bit writes keep all
// other bits.
func (t *translation) writeRegister(reg instruction.Register, value valueFunc) error {
	slot := t.slot(reg.ID)

	switch reg.Width {
	case 64:
		if err := value(); err != nil {
			return err
		}

	case 32:
		if err := value(); err != nil {
			return err
		}
		t.emit(program.Op(program.I32WrapI64), program.Op(program.I64ExtendI32U))

	case 8, 16:
		mask := int64(1)<<reg.Width - 1
		if err := value(); err != nil {
			return err
		}
		t.emit(
			program.I64ConstOp(mask),
			program.Op(program.I64And),
			program.LocalGetOp(slot),
			program.I64ConstOp(^mask),
			program.Op(program.I64And),
			program.Op(program.I64Or),
		)

	default:
		return fmt.Errorf("unsupported register width %d", reg.Width)
	}

	t.emit(program.LocalSetOp(slot))
	return nil
}

// readOperand pushes the operand value extended from the operand width.
func (t *translation) readOperand(op instruction.Operand, signed bool) error {
	switch op.Kind {
	case instruction.RegisterOperand:
		t.readRegister(op.Register, signed)

	case instruction.ImmediateOperand:
		t.emit(program.I64ConstOp(extendImmediate(op.Immediate, op.Width, signed)))

	case instruction.MemoryOperand:
		load, align, err := loadOpcode(op.Width, signed)
		if err != nil {
			return err
		}
		offset := t.address(op.Memory)
		t.emit(program.MemoryOp(load, align, offset))
		t.usesMemory = true

	default:
		return fmt.Errorf("unsupported operand kind %d", op.Kind)
	}
	return nil
}

// writeOperand stores the value into a register or memory operand.
func (t *translation) writeOperand(op instruction.Operand, value valueFunc) error {
	switch op.Kind {
	case instruction.RegisterOperand:
		return t.writeRegister(op.Register, value)

	case instruction.MemoryOperand:
		store, align, err := storeOpcode(op.Width)
		if err != nil {
			return err
		}
		offset := t.address(op.Memory)
		if err := value(); err != nil {
			return err
		}
		t.emit(program.MemoryOp(store, align, offset))
		t.usesMemory = true
		return nil

	default:
		return fmt.Errorf("operand %s is not writable", op)
	}
}

// address pushes the i32 linear memory address of a memory operand and
// returns the static offset for the memory instruction.
func (t *translation) address(m instruction.Memory) uint32 {
	offset := t.effectiveAddress(m, true)
	t.emit(program.Op(program.I32WrapI64))
	return offset
}

// effectiveAddress pushes base + index*scale + displacement as i64. If
// useOffset is set a displacement that fits a memory offset is not added
// but returned.
func (t *translation) effectiveAddress(m instruction.Memory, useOffset bool) uint32 {
	disp := m.Displacement
	fitsOffset := useOffset && disp >= 0 && disp <= math.MaxUint32

	pushed := false
	if m.HasBase() {
		t.emit(program.LocalGetOp(t.slot(m.Base.ID)))
		pushed = true
	}
	if m.HasIndex() {
		t.emit(program.LocalGetOp(t.slot(m.Index.ID)))
		if m.Scale > 1 {
			t.emit(program.I64ConstOp(int64(m.Scale)), program.Op(program.I64Mul))
		}
		if pushed {
			t.emit(program.Op(program.I64Add))
		}
		pushed = true
	}

	switch {
	case fitsOffset:
		if !pushed {
			t.emit(program.I64ConstOp(0))
		}
		return uint32(disp)
	case !pushed:
		t.emit(program.I64ConstOp(disp))
	case disp != 0:
		t.emit(program.I64ConstOp(disp), program.Op(program.I64Add))
	}
	return 0
}

func loadOpcode(width int, signed bool) (program.Opcode, uint32, error) {
	switch width {
	case 8:
		if signed {
			return program.I64Load8S, 0, nil
		}
		return program.I64Load8U, 0, nil
	case 16:
		if signed {
			return program.I64Load16S, 1, nil
		}
		return program.I64Load16U, 1, nil
	case 32:
		if signed {
			return program.I64Load32S, 2, nil
		}
		return program.I64Load32U, 2, nil
	case 64:
		return program.I64Load, 3, nil
	default:
		return 0, 0, fmt.Errorf("unsupported memory access width %d", width)
	}
}

func storeOpcode(width int) (program.Opcode, uint32, error) {
	switch width {
	case 8:
		return program.I64Store8, 0, nil
	case 16:
		return program.I64Store16, 1, nil
	case 32:
		return program.I64Store32, 2, nil
	case 64:
		return program.I64Store, 3, nil
	default:
		return 0, 0, fmt.Errorf("unsupported memory access width %d", width)
	}
}
