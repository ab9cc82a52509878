// Package arch contains types used for multi architecture support.
// It acts as a bridge between the translation pipeline and the architecture
// specific code.
package arch

import (
	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/instruction"
)

// Architecture contains architecture specific information.
type Architecture interface {
	// Convention returns the calling convention that maps the parameters and
	// the result of a function to registers.
	Convention() abi.Convention
	// Decode decodes the machine code of a function loaded at address into
	// an instruction sequence.
	Decode(code []byte, address uint64) ([]instruction.Instruction, error)
}
