package translator

import (
	"errors"

	"github.com/retroenv/retrowasm/internal/arch/amd64"
	"github.com/retroenv/retrowasm/internal/cfg"
	"github.com/retroenv/retrowasm/internal/instruction"
	"github.com/retroenv/retrowasm/internal/program"
)

type handler func(t *translation, idx int, ins instruction.Instruction) error

// handlers maps mnemonics to their translation. Conditional sets, moves and
// branches are handled by class.
var handlers = map[string]handler{
	"NOP":     nop,
	"ENDBR64": nop,
	"CALL":    call,
	"RET":     ret,
	"JMP":     nop,

	"MOV":    move,
	"MOVZX":  moveExtend,
	"MOVSX":  moveExtend,
	"MOVSXD": moveExtend,
	"LEA":    lea,
	"CDQE":   cdqe,
	"CDQ":    cdq,
	"CQO":    cqo,

	"ADD":  binary(program.I64Add),
	"SUB":  binary(program.I64Sub),
	"AND":  binary(program.I64And),
	"OR":   binary(program.I64Or),
	"XOR":  binary(program.I64Xor),
	"IMUL": imul,
	"NEG":  neg,
	"NOT":  not,
	"INC":  step(program.I64Add),
	"DEC":  step(program.I64Sub),
	"SHL":  shift(program.I64Shl),
	"SHR":  shift(program.I64ShrU),
	"SAR":  shift(program.I64ShrS),

	"CMP":  compare,
	"TEST": test,

	"UD2": trap,
	"INT": trap,
}

var (
	rax = instruction.Register{ID: amd64.RAX, Name: "rax", Width: 64}
	eax = instruction.Register{ID: amd64.RAX, Name: "eax", Width: 32}
	rdx = instruction.Register{ID: amd64.RDX, Name: "rdx", Width: 64}
	edx = instruction.Register{ID: amd64.RDX, Name: "edx", Width: 32}
)

// instruction translates the instruction at the given index, block is the
// basic block containing it.
func (t *translation) instruction(idx int, block *cfg.Block) error {
	ins := t.instructions[idx]

	if reason, ok := t.flags.errors[idx]; ok {
		return unsupported(ins, "%s", reason)
	}

	var h handler
	switch ins.Class {
	case instruction.ClassConditionalBranch:
		h = conditionalBranch
	case instruction.ClassConditionalSet:
		h = setCondition
	case instruction.ClassConditionalMove:
		h = conditionalMove
	case instruction.ClassStack:
		return unsupported(ins, "stack operations require a stack frame simulation")
	default:
		h = handlers[ins.Mnemonic]
	}
	if h == nil {
		return unsupported(ins, "")
	}

	if ins.IsControlTransfer() {
		if err := checkExit(idx, ins, block); err != nil {
			return err
		}
	} else if ins.Relocated {
		return unsupported(ins, "operand patched by the linker")
	} else if ins.Class != instruction.ClassNop {
		if err := t.checkOperands(ins); err != nil {
			return err
		}
	}

	if err := h(t, idx, ins); err != nil {
		var unsupportedErr *UnsupportedInstructionError
		if errors.As(err, &unsupportedErr) {
			return err
		}
		return unsupported(ins, "%s", err.Error())
	}
	return nil
}

// checkExit rejects branches that leave the function other than by return.
func checkExit(idx int, ins instruction.Instruction, block *cfg.Block) error {
	if block.Last() != idx || block.Kind != cfg.ExternalExit {
		return nil
	}
	switch {
	case !ins.HasTarget:
		return unsupported(ins, "indirect branch")
	case ins.Relocated:
		return unsupported(ins, "branch target patched by the linker")
	}
	return unsupported(ins, "branch to 0x%x outside of the function", ins.Target)
}

// checkOperands rejects registers and memory references that have no
// WebAssembly representation.
func (t *translation) checkOperands(ins instruction.Instruction) error {
	for _, op := range ins.Operands {
		switch op.Kind {
		case instruction.RegisterOperand:
			if err := checkRegister(ins, op.Register); err != nil {
				return err
			}

		case instruction.MemoryOperand:
			m := op.Memory
			switch {
			case m.RIPRelative:
				return unsupported(ins, "rip relative memory access")
			case m.Segment != "":
				return unsupported(ins, "segment override %s", m.Segment)
			}
			for _, reg := range []instruction.Register{m.Base, m.Index} {
				if reg.ID == "" {
					continue
				}
				if t.convention.IsFrameRegister(reg.ID) {
					return unsupported(ins, "stack frame memory access")
				}
				if reg.Width != 64 {
					return unsupported(ins, "address register %s", reg.Name)
				}
			}
		}
	}
	return nil
}

func checkRegister(ins instruction.Instruction, reg instruction.Register) error {
	switch {
	case reg.Width == 0:
		return unsupported(ins, "register %s", reg.Name)
	case reg.High:
		return unsupported(ins, "high byte register %s", reg.Name)
	}
	return nil
}

func expectOperands(ins instruction.Instruction, counts ...int) error {
	for _, count := range counts {
		if len(ins.Operands) == count {
			return nil
		}
	}
	return unsupported(ins, "%d operands", len(ins.Operands))
}

func nop(*translation, int, instruction.Instruction) error {
	return nil
}

// call emits nothing, the callee is not linked.
func call(*translation, int, instruction.Instruction) error {
	return nil
}

func ret(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 0); err != nil {
		return err
	}
	t.emit(program.LocalGetOp(t.slot(t.convention.Return)), program.Op(program.Return))
	return nil
}

func trap(t *translation, _ int, _ instruction.Instruction) error {
	t.emit(program.Op(program.Unreachable))
	return nil
}

func conditionalBranch(_ *translation, _ int, ins instruction.Instruction) error {
	if ins.Condition == instruction.NoCondition {
		return unsupported(ins, "counter based branch")
	}
	return nil
}

func move(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	dst, src := ins.Operands[0], ins.Operands[1]
	return t.writeOperand(dst, func() error {
		return t.readOperand(src, false)
	})
}

func moveExtend(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	dst, src := ins.Operands[0], ins.Operands[1]
	signed := ins.Mnemonic != "MOVZX"
	return t.writeOperand(dst, func() error {
		return t.readOperand(src, signed)
	})
}

func lea(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	dst, src := ins.Operands[0], ins.Operands[1]
	if src.Kind != instruction.MemoryOperand {
		return unsupported(ins, "source is not a memory reference")
	}
	return t.writeOperand(dst, func() error {
		t.effectiveAddress(src.Memory, false)
		return nil
	})
}

func cdqe(t *translation, _ int, _ instruction.Instruction) error {
	return t.writeRegister(rax, func() error {
		t.readRegister(eax, true)
		return nil
	})
}

func cdq(t *translation, _ int, _ instruction.Instruction) error {
	return t.writeRegister(edx, func() error {
		t.readRegister(eax, true)
		t.emit(program.I64ConstOp(63), program.Op(program.I64ShrS))
		return nil
	})
}

func cqo(t *translation, _ int, _ instruction.Instruction) error {
	return t.writeRegister(rdx, func() error {
		t.readRegister(rax, false)
		t.emit(program.I64ConstOp(63), program.Op(program.I64ShrS))
		return nil
	})
}

// binary returns a handler for dst = dst op src.
func binary(opcode program.Opcode) handler {
	return func(t *translation, _ int, ins instruction.Instruction) error {
		if err := expectOperands(ins, 2); err != nil {
			return err
		}
		dst, src := ins.Operands[0], ins.Operands[1]
		return t.writeOperand(dst, func() error {
			if err := t.readOperand(dst, false); err != nil {
				return err
			}
			if err := t.readOperand(src, false); err != nil {
				return err
			}
			t.emit(program.Op(opcode))
			return nil
		})
	}
}

func imul(t *translation, idx int, ins instruction.Instruction) error {
	switch len(ins.Operands) {
	case 2:
		return binary(program.I64Mul)(t, idx, ins)

	case 3:
		dst, src, factor := ins.Operands[0], ins.Operands[1], ins.Operands[2]
		return t.writeOperand(dst, func() error {
			if err := t.readOperand(src, false); err != nil {
				return err
			}
			if err := t.readOperand(factor, false); err != nil {
				return err
			}
			t.emit(program.Op(program.I64Mul))
			return nil
		})

	default:
		return unsupported(ins, "widening multiplication")
	}
}

func neg(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 1); err != nil {
		return err
	}
	dst := ins.Operands[0]
	return t.writeOperand(dst, func() error {
		t.emit(program.I64ConstOp(0))
		if err := t.readOperand(dst, false); err != nil {
			return err
		}
		t.emit(program.Op(program.I64Sub))
		return nil
	})
}

func not(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 1); err != nil {
		return err
	}
	dst := ins.Operands[0]
	return t.writeOperand(dst, func() error {
		if err := t.readOperand(dst, false); err != nil {
			return err
		}
		t.emit(program.I64ConstOp(-1), program.Op(program.I64Xor))
		return nil
	})
}

// step returns a handler for increment and decrement.
func step(opcode program.Opcode) handler {
	return func(t *translation, _ int, ins instruction.Instruction) error {
		if err := expectOperands(ins, 1); err != nil {
			return err
		}
		dst := ins.Operands[0]
		return t.writeOperand(dst, func() error {
			if err := t.readOperand(dst, false); err != nil {
				return err
			}
			t.emit(program.I64ConstOp(1), program.Op(opcode))
			return nil
		})
	}
}

// shift returns a handler for shifts by an immediate or cl. The count is
// masked like the processor does.
func shift(opcode program.Opcode) handler {
	return func(t *translation, _ int, ins instruction.Instruction) error {
		if err := expectOperands(ins, 1, 2); err != nil {
			return err
		}
		dst := ins.Operands[0]
		mask := int64(31)
		if dst.Width == 64 {
			mask = 63
		}

		var count *instruction.Operand
		if len(ins.Operands) == 2 {
			count = &ins.Operands[1]
			if count.Kind == instruction.RegisterOperand && count.Register.ID != amd64.RCX {
				return unsupported(ins, "shift count in %s", count.Register.Name)
			}
		}

		return t.writeOperand(dst, func() error {
			if err := t.readOperand(dst, opcode == program.I64ShrS); err != nil {
				return err
			}
			switch {
			case count == nil:
				t.emit(program.I64ConstOp(1))
			case count.Kind == instruction.ImmediateOperand:
				t.emit(program.I64ConstOp(count.Immediate & mask))
			default:
				if err := t.readOperand(*count, false); err != nil {
					return err
				}
				t.emit(program.I64ConstOp(mask), program.Op(program.I64And))
			}
			t.emit(program.Op(opcode))
			return nil
		})
	}
}

// compare stores the three way comparison result -1, 0 or 1 of the
// operands in the flag slot.
func compare(t *translation, idx int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	a, b := ins.Operands[0], ins.Operands[1]
	signed := t.flags.isSigned(idx)

	greater, less := program.I64GtS, program.I64LtS
	if !signed {
		greater, less = program.I64GtU, program.I64LtU
	}

	for _, opcode := range []program.Opcode{greater, less} {
		if err := t.readOperand(a, signed); err != nil {
			return err
		}
		if err := t.readOperand(b, signed); err != nil {
			return err
		}
		t.emit(program.Op(opcode))
	}
	t.emit(
		program.Op(program.I32Sub),
		program.Op(program.I64ExtendI32S),
		program.LocalSetOp(uint32(t.alloc.GetOrAllocateFlag())),
	)
	return nil
}

// test stores the AND result of the operands in the flag slot. Unsigned
// conditions only need to know whether it is zero.
func test(t *translation, idx int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	a, b := ins.Operands[0], ins.Operands[1]
	signed := t.flags.isSigned(idx)

	if err := t.readOperand(a, signed); err != nil {
		return err
	}
	if err := t.readOperand(b, signed); err != nil {
		return err
	}
	t.emit(program.Op(program.I64And))
	if !signed {
		t.emit(
			program.I64ConstOp(0),
			program.Op(program.I64Ne),
			program.Op(program.I64ExtendI32U),
		)
	}
	t.emit(program.LocalSetOp(uint32(t.alloc.GetOrAllocateFlag())))
	return nil
}

// predicate pushes the i32 result of the condition applied to the flag
// slot.
func (t *translation) predicate(cond instruction.Condition) {
	t.emit(program.LocalGetOp(uint32(t.alloc.GetOrAllocateFlag())))

	var opcode program.Opcode
	switch cond {
	case instruction.Equal:
		t.emit(program.Op(program.I64Eqz))
		return
	case instruction.NotEqual:
		opcode = program.I64Ne
	case instruction.Greater, instruction.Above:
		opcode = program.I64GtS
	case instruction.GreaterOrEqual, instruction.AboveOrEqual, instruction.NotSign:
		opcode = program.I64GeS
	case instruction.Less, instruction.Below, instruction.Sign:
		opcode = program.I64LtS
	default:
		opcode = program.I64LeS
	}
	t.emit(program.I64ConstOp(0), program.Op(opcode))
}

func setCondition(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 1); err != nil {
		return err
	}
	return t.writeOperand(ins.Operands[0], func() error {
		t.predicate(ins.Condition)
		t.emit(program.Op(program.I64ExtendI32U))
		return nil
	})
}

// conditionalMove writes the destination in all cases, so that 32 bit
// destinations are zero extended even if the condition is false.
func conditionalMove(t *translation, _ int, ins instruction.Instruction) error {
	if err := expectOperands(ins, 2); err != nil {
		return err
	}
	dst, src := ins.Operands[0], ins.Operands[1]
	return t.writeOperand(dst, func() error {
		if err := t.readOperand(src, false); err != nil {
			return err
		}
		if err := t.readOperand(dst, false); err != nil {
			return err
		}
		t.predicate(ins.Condition)
		t.emit(program.Op(program.Select))
		return nil
	})
}
