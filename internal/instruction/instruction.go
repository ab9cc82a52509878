// Package instruction contains fundamental types for decoded CPU instructions.
// The types are architecture neutral, architecture packages fill them in.
package instruction

import (
	"fmt"
	"strings"
)

// Class groups mnemonics by their effect on control flow and data.
type Class uint8

// instruction classes.
const (
	ClassOther Class = iota
	ClassNop
	ClassMove
	ClassArithmetic
	ClassCompare
	ClassConditionalBranch
	ClassBranch
	ClassCall
	ClassReturn
	ClassStack
	ClassConditionalSet
	ClassConditionalMove
	ClassTrap
)

var classNames = map[Class]string{
	ClassOther:             "other",
	ClassNop:               "nop",
	ClassMove:              "move",
	ClassArithmetic:        "arithmetic",
	ClassCompare:           "compare",
	ClassConditionalBranch: "conditional branch",
	ClassBranch:            "branch",
	ClassCall:              "call",
	ClassReturn:            "return",
	ClassStack:             "stack",
	ClassConditionalSet:    "conditional set",
	ClassConditionalMove:   "conditional move",
	ClassTrap:              "trap",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Instruction is a decoded instruction tagged with its absolute address.
type Instruction struct {
	Address  uint64
	Size     int
	Mnemonic string // upper case, for example MOV or JNE
	Class    Class

	// Condition is set for conditional branches, sets and moves.
	Condition Condition
	// Operands in destination first order.
	Operands []Operand

	// Target is the absolute destination of a direct branch or call.
	Target    uint64
	HasTarget bool

	// Relocated is set if the linker patches bytes of the instruction,
	// its immediate or branch displacement is not final.
	Relocated bool
}

// IsControlTransfer returns whether the instruction ends a basic block.
func (i Instruction) IsControlTransfer() bool {
	switch i.Class {
	case ClassConditionalBranch, ClassBranch, ClassCall, ClassReturn:
		return true
	default:
		return false
	}
}

// Covers returns whether the address is part of the instruction bytes.
func (i Instruction) Covers(address uint64) bool {
	return address >= i.Address && address < i.Next()
}

// Next returns the address of the following instruction.
func (i Instruction) Next() uint64 {
	return i.Address + uint64(i.Size)
}

func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(i.Mnemonic))
	for j, op := range i.Operands {
		if j == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(op.String())
	}
	if i.HasTarget && len(i.Operands) == 0 {
		fmt.Fprintf(&sb, " 0x%x", i.Target)
	}
	return sb.String()
}
