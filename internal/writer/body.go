package writer

import (
	"fmt"
	"math"

	"github.com/retroenv/retrowasm/internal/program"
	"github.com/tetratelabs/wabin/leb128"
)

// EncodeBody encodes the instruction sequence of a function body. The body
// has to be terminated by the end of the function and every branch has to
// target an enclosing label.
func EncodeBody(body []program.Instruction) ([]byte, error) {
	var result []byte
	depth := 1 // function body label

	for i, ins := range body {
		if depth == 0 {
			return nil, fmt.Errorf("%w: instruction %d after the end of the function", ErrEncodingFailure, i)
		}
		result = append(result, byte(ins.Opcode))

		switch ins.Opcode {
		case program.Block, program.Loop, program.If:
			if ins.Value != program.BlockTypeEmpty {
				return nil, fmt.Errorf("%w: unsupported block type 0x%x", ErrEncodingFailure, ins.Value)
			}
			result = append(result, byte(ins.Value))
			depth++

		case program.End:
			depth--

		case program.Br, program.BrIf:
			if ins.Value < 0 || ins.Value >= int64(depth) {
				return nil, fmt.Errorf("%w: branch depth %d outside of %d labels", ErrEncodingFailure, ins.Value, depth)
			}
			result = append(result, leb128.EncodeUint32(uint32(ins.Value))...)

		case program.BrTable:
			if len(ins.Labels) == 0 {
				return nil, fmt.Errorf("%w: branch table without default label", ErrEncodingFailure)
			}
			result = append(result, leb128.EncodeUint32(uint32(len(ins.Labels)-1))...)
			for _, label := range ins.Labels {
				if int(label) >= depth {
					return nil, fmt.Errorf("%w: branch table depth %d outside of %d labels", ErrEncodingFailure, label, depth)
				}
				result = append(result, leb128.EncodeUint32(label)...)
			}

		case program.LocalGet, program.LocalSet, program.LocalTee:
			if ins.Value < 0 || ins.Value > math.MaxUint32 {
				return nil, fmt.Errorf("%w: invalid local index %d", ErrEncodingFailure, ins.Value)
			}
			result = append(result, leb128.EncodeUint32(uint32(ins.Value))...)

		case program.I32Const:
			if ins.Value < math.MinInt32 || ins.Value > math.MaxInt32 {
				return nil, fmt.Errorf("%w: i32 constant %d out of range", ErrEncodingFailure, ins.Value)
			}
			result = append(result, leb128.EncodeInt32(int32(ins.Value))...)

		case program.I64Const:
			result = append(result, leb128.EncodeInt64(ins.Value)...)

		default:
			if ins.Opcode.IsMemoryAccess() {
				result = append(result, leb128.EncodeUint32(ins.MemArg.Align)...)
				result = append(result, leb128.EncodeUint32(ins.MemArg.Offset)...)
			}
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: %d unterminated blocks", ErrEncodingFailure, depth)
	}
	return result, nil
}
