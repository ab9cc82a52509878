// Package abi describes calling conventions that map function parameters
// and return values to machine registers.
package abi

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrowasm/internal/instruction"
)

var errNoReturnRegister = errors.New("calling convention has no return register")

// Convention is a calling convention for integer parameters and results.
type Convention struct {
	Name string
	// Parameters lists the integer argument registers in argument order.
	Parameters []instruction.RegisterID
	// Return is the integer result register.
	Return instruction.RegisterID
	// Frame lists registers used for stack frames, memory accesses based on
	// them require stack simulation.
	Frame []instruction.RegisterID
}

// WithParameters returns a copy of the convention that passes count integer
// parameters.
func (c Convention) WithParameters(count int) (Convention, error) {
	if count < 0 || count > len(c.Parameters) {
		return Convention{}, fmt.Errorf("parameter count %d out of range 0..%d for %s convention",
			count, len(c.Parameters), c.Name)
	}
	params := make([]instruction.RegisterID, count)
	copy(params, c.Parameters)
	c.Parameters = params
	return c, nil
}

// Validate checks that the convention is usable for translation.
func (c Convention) Validate() error {
	if c.Return == "" {
		return errNoReturnRegister
	}
	seen := make(map[instruction.RegisterID]struct{}, len(c.Parameters))
	for _, reg := range c.Parameters {
		if _, ok := seen[reg]; ok {
			return fmt.Errorf("parameter register %s used twice", reg)
		}
		seen[reg] = struct{}{}
	}
	return nil
}

// IsFrameRegister returns whether the register is used for stack frames.
func (c Convention) IsFrameRegister(reg instruction.RegisterID) bool {
	for _, r := range c.Frame {
		if r == reg {
			return true
		}
	}
	return false
}
