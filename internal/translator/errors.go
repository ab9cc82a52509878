package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/retroenv/retrowasm/internal/instruction"
)

// ErrUnsupportedInstruction is matched by every UnsupportedInstructionError.
var ErrUnsupportedInstruction = errors.New("unsupported instruction")

// UnsupportedInstructionError reports the first instruction in program order
// that can not be translated. The whole function is rejected.
type UnsupportedInstructionError struct {
	Address  uint64
	Mnemonic string
	Reason   string
}

func (e *UnsupportedInstructionError) Error() string {
	msg := fmt.Sprintf("unsupported instruction '%s' at 0x%x", strings.ToLower(e.Mnemonic), e.Address)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is allows matching the error against ErrUnsupportedInstruction.
func (e *UnsupportedInstructionError) Is(target error) bool {
	return target == ErrUnsupportedInstruction
}

func unsupported(ins instruction.Instruction, format string, args ...any) error {
	return &UnsupportedInstructionError{
		Address:  ins.Address,
		Mnemonic: ins.Mnemonic,
		Reason:   fmt.Sprintf(format, args...),
	}
}
