package amd64

import (
	"github.com/retroenv/retrowasm/internal/instruction"
	"golang.org/x/arch/x86/x86asm"
)

// classes maps mnemonics to their instruction class. Mnemonics missing
// from the map are of class other.
var classes = map[x86asm.Op]instruction.Class{
	x86asm.NOP: instruction.ClassNop,

	x86asm.MOV:    instruction.ClassMove,
	x86asm.MOVZX:  instruction.ClassMove,
	x86asm.MOVSX:  instruction.ClassMove,
	x86asm.MOVSXD: instruction.ClassMove,
	x86asm.LEA:    instruction.ClassMove,
	x86asm.CDQE:   instruction.ClassMove,
	x86asm.CDQ:    instruction.ClassMove,
	x86asm.CQO:    instruction.ClassMove,

	x86asm.ADD:  instruction.ClassArithmetic,
	x86asm.SUB:  instruction.ClassArithmetic,
	x86asm.IMUL: instruction.ClassArithmetic,
	x86asm.AND:  instruction.ClassArithmetic,
	x86asm.OR:   instruction.ClassArithmetic,
	x86asm.XOR:  instruction.ClassArithmetic,
	x86asm.NEG:  instruction.ClassArithmetic,
	x86asm.NOT:  instruction.ClassArithmetic,
	x86asm.INC:  instruction.ClassArithmetic,
	x86asm.DEC:  instruction.ClassArithmetic,
	x86asm.SHL:  instruction.ClassArithmetic,
	x86asm.SHR:  instruction.ClassArithmetic,
	x86asm.SAR:  instruction.ClassArithmetic,

	x86asm.CMP:  instruction.ClassCompare,
	x86asm.TEST: instruction.ClassCompare,

	x86asm.JMP:  instruction.ClassBranch,
	x86asm.CALL: instruction.ClassCall,
	x86asm.RET:  instruction.ClassReturn,

	x86asm.PUSH:  instruction.ClassStack,
	x86asm.POP:   instruction.ClassStack,
	x86asm.LEAVE: instruction.ClassStack,
	x86asm.ENTER: instruction.ClassStack,

	x86asm.UD2: instruction.ClassTrap,
	x86asm.INT: instruction.ClassTrap,
	x86asm.HLT: instruction.ClassOther,
}

// conditionalBranches maps conditional jumps to their condition. Jumps that
// test rcx instead of flags map to no condition.
var conditionalBranches = map[x86asm.Op]instruction.Condition{
	x86asm.JE:     instruction.Equal,
	x86asm.JNE:    instruction.NotEqual,
	x86asm.JG:     instruction.Greater,
	x86asm.JGE:    instruction.GreaterOrEqual,
	x86asm.JL:     instruction.Less,
	x86asm.JLE:    instruction.LessOrEqual,
	x86asm.JA:     instruction.Above,
	x86asm.JAE:    instruction.AboveOrEqual,
	x86asm.JB:     instruction.Below,
	x86asm.JBE:    instruction.BelowOrEqual,
	x86asm.JS:     instruction.Sign,
	x86asm.JNS:    instruction.NotSign,
	x86asm.JO:     instruction.Overflow,
	x86asm.JNO:    instruction.NotOverflow,
	x86asm.JP:     instruction.Parity,
	x86asm.JNP:    instruction.NotParity,
	x86asm.JCXZ:   instruction.NoCondition,
	x86asm.JECXZ:  instruction.NoCondition,
	x86asm.JRCXZ:  instruction.NoCondition,
	x86asm.LOOP:   instruction.NoCondition,
	x86asm.LOOPE:  instruction.NoCondition,
	x86asm.LOOPNE: instruction.NoCondition,
}

var conditionalSets = map[x86asm.Op]instruction.Condition{
	x86asm.SETE:  instruction.Equal,
	x86asm.SETNE: instruction.NotEqual,
	x86asm.SETG:  instruction.Greater,
	x86asm.SETGE: instruction.GreaterOrEqual,
	x86asm.SETL:  instruction.Less,
	x86asm.SETLE: instruction.LessOrEqual,
	x86asm.SETA:  instruction.Above,
	x86asm.SETAE: instruction.AboveOrEqual,
	x86asm.SETB:  instruction.Below,
	x86asm.SETBE: instruction.BelowOrEqual,
	x86asm.SETS:  instruction.Sign,
	x86asm.SETNS: instruction.NotSign,
	x86asm.SETO:  instruction.Overflow,
	x86asm.SETNO: instruction.NotOverflow,
	x86asm.SETP:  instruction.Parity,
	x86asm.SETNP: instruction.NotParity,
}

var conditionalMoves = map[x86asm.Op]instruction.Condition{
	x86asm.CMOVE:  instruction.Equal,
	x86asm.CMOVNE: instruction.NotEqual,
	x86asm.CMOVG:  instruction.Greater,
	x86asm.CMOVGE: instruction.GreaterOrEqual,
	x86asm.CMOVL:  instruction.Less,
	x86asm.CMOVLE: instruction.LessOrEqual,
	x86asm.CMOVA:  instruction.Above,
	x86asm.CMOVAE: instruction.AboveOrEqual,
	x86asm.CMOVB:  instruction.Below,
	x86asm.CMOVBE: instruction.BelowOrEqual,
	x86asm.CMOVS:  instruction.Sign,
	x86asm.CMOVNS: instruction.NotSign,
	x86asm.CMOVO:  instruction.Overflow,
	x86asm.CMOVNO: instruction.NotOverflow,
	x86asm.CMOVP:  instruction.Parity,
	x86asm.CMOVNP: instruction.NotParity,
}

// classify returns the class and condition of a mnemonic.
func classify(op x86asm.Op) (instruction.Class, instruction.Condition) {
	if cond, ok := conditionalBranches[op]; ok {
		return instruction.ClassConditionalBranch, cond
	}
	if cond, ok := conditionalSets[op]; ok {
		return instruction.ClassConditionalSet, cond
	}
	if cond, ok := conditionalMoves[op]; ok {
		return instruction.ClassConditionalMove, cond
	}
	if class, ok := classes[op]; ok {
		return class, instruction.NoCondition
	}
	return instruction.ClassOther, instruction.NoCondition
}
