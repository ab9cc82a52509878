// Package amd64 implements the x86-64 architecture support: instruction
// decoding, the register model and the calling conventions.
package amd64

import (
	"fmt"
	"strings"

	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/arch"
	"github.com/retroenv/retrowasm/internal/instruction"
)

// Calling convention names.
const (
	SystemV = "sysv"
	Win64   = "win64"
)

var frameRegisters = []instruction.RegisterID{RSP, RBP}

// SystemVConvention returns the System V AMD64 integer calling convention.
func SystemVConvention() abi.Convention {
	return abi.Convention{
		Name:       SystemV,
		Parameters: []instruction.RegisterID{RDI, RSI, RDX, RCX, R8, R9},
		Return:     RAX,
		Frame:      frameRegisters,
	}
}

// Win64Convention returns the Microsoft x64 integer calling convention.
func Win64Convention() abi.Convention {
	return abi.Convention{
		Name:       Win64,
		Parameters: []instruction.RegisterID{RCX, RDX, R8, R9},
		Return:     RAX,
		Frame:      frameRegisters,
	}
}

// Convention returns the named calling convention.
func Convention(name string) (abi.Convention, error) {
	switch strings.ToLower(name) {
	case SystemV, "":
		return SystemVConvention(), nil
	case Win64:
		return Win64Convention(), nil
	default:
		return abi.Convention{}, fmt.Errorf("unsupported calling convention '%s'", name)
	}
}

var _ arch.Architecture = (*Arch)(nil)

// Arch implements the x86-64 architecture for the translation pipeline.
type Arch struct {
	convention abi.Convention
}

// New returns a new x86-64 architecture using the given calling convention.
func New(convention abi.Convention) *Arch {
	return &Arch{
		convention: convention,
	}
}

// Convention returns the calling convention used to map parameters.
func (ar *Arch) Convention() abi.Convention {
	return ar.convention
}

// Decode decodes the machine code of a function loaded at address.
func (ar *Arch) Decode(code []byte, address uint64) ([]instruction.Instruction, error) {
	return Decode(code, address)
}
