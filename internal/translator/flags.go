package translator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/retroenv/retrowasm/internal/cfg"
	"github.com/retroenv/retrowasm/internal/instruction"
)

// undefinedWriter marks flags that are not set by the function itself.
const undefinedWriter = -1

type flagEffect uint8

const (
	flagsUnchanged flagEffect = iota
	flagsCompare              // cmp or test, representable as a comparison result
	flagsClobbered            // set in a way that can not be represented
)

// flagAnalysis holds the results of the reaching flag writer analysis.
type flagAnalysis struct {
	// signedness of every compare writer, Signed or Unsigned
	signedness map[int]instruction.Signedness
	// reasons of instructions that can not be translated
	errors map[int]string
}

func effectOf(ins instruction.Instruction) flagEffect {
	switch ins.Class {
	case instruction.ClassCompare:
		return flagsCompare
	case instruction.ClassArithmetic:
		if ins.Mnemonic == "NOT" {
			return flagsUnchanged
		}
		return flagsClobbered
	case instruction.ClassCall, instruction.ClassOther, instruction.ClassStack:
		return flagsClobbered
	default:
		return flagsUnchanged
	}
}

func isFlagConsumer(ins instruction.Instruction) bool {
	switch ins.Class {
	case instruction.ClassConditionalBranch, instruction.ClassConditionalSet, instruction.ClassConditionalMove:
		return true
	default:
		return false
	}
}

// analyzeFlags computes for every flag consumer the set of instructions that
// can have set the flags it reads. A consumer is only translatable when all
// of them are compares and agree on the signedness of the comparison.
func analyzeFlags(instructions []instruction.Instruction, g *cfg.Graph) *flagAnalysis {
	fa := &flagAnalysis{
		signedness: make(map[int]instruction.Signedness),
		errors:     make(map[int]string),
	}
	if g.Entry < 0 {
		return fa
	}

	rpo := g.ReversePostOrder()
	in := reachingWriters(instructions, g, rpo)

	demands := make(map[int][]instruction.Signedness)
	for _, id := range rpo {
		current := in[id]
		for _, idx := range g.Blocks[id].Instructions {
			ins := instructions[idx]
			if isFlagConsumer(ins) {
				fa.consume(idx, instructions, current, demands)
			}
			if effectOf(ins) != flagsUnchanged {
				current = []int{idx}
			}
		}
	}

	for writer, signs := range demands {
		fa.resolve(writer, signs)
	}
	return fa
}

// reachingWriters returns for every block the sorted flag writers that
// reach its start.
func reachingWriters(instructions []instruction.Instruction, g *cfg.Graph, rpo []int) [][]int {
	in := make([][]int, len(g.Blocks))
	out := make([][]int, len(g.Blocks))
	computed := make([]bool, len(g.Blocks))

	lastWriter := func(id int) int {
		block := g.Blocks[id].Instructions
		for i := len(block) - 1; i >= 0; i-- {
			if effectOf(instructions[block[i]]) != flagsUnchanged {
				return block[i]
			}
		}
		return undefinedWriter
	}

	for changed := true; changed; {
		changed = false
		for _, id := range rpo {
			var reaching []int
			if id == g.Entry {
				reaching = []int{undefinedWriter}
			}
			for _, pred := range g.Predecessors(id) {
				if computed[pred] {
					reaching = union(reaching, out[pred])
				}
			}

			newOut := reaching
			if w := lastWriter(id); w != undefinedWriter {
				newOut = []int{w}
			}

			if computed[id] && slices.Equal(in[id], reaching) && slices.Equal(out[id], newOut) {
				continue
			}
			in[id] = reaching
			out[id] = newOut
			computed[id] = true
			changed = true
		}
	}
	return in
}

func union(a, b []int) []int {
	result := make([]int, 0, len(a)+len(b))
	result = append(result, a...)
	result = append(result, b...)
	slices.Sort(result)
	return slices.Compact(result)
}

// consume checks a flag consumer against the writers that reach it and
// records the signedness it requires from them.
func (fa *flagAnalysis) consume(idx int, instructions []instruction.Instruction, writers []int,
	demands map[int][]instruction.Signedness) {

	ins := instructions[idx]
	sign := ins.Condition.Signedness()
	if sign == instruction.FlagsOnly {
		fa.errors[idx] = "condition is not representable by a comparison result"
		return
	}

	for _, w := range writers {
		if w == undefinedWriter {
			fa.errors[idx] = "flags are not set by the function on all paths"
			return
		}
		writer := instructions[w]
		if effectOf(writer) != flagsCompare {
			fa.errors[idx] = fmt.Sprintf("flags set by '%s' at 0x%x", strings.ToLower(writer.Mnemonic), writer.Address)
			return
		}
		if sign == instruction.SignBit && writer.Mnemonic != "TEST" {
			fa.errors[idx] = "sign condition after compare"
			return
		}
	}

	for _, w := range writers {
		demands[w] = append(demands[w], sign)
	}
}

// resolve selects the comparison signedness of a compare writer.
func (fa *flagAnalysis) resolve(writer int, signs []instruction.Signedness) {
	var signed, unsigned bool
	for _, sign := range signs {
		switch sign {
		case instruction.Signed, instruction.SignBit:
			signed = true
		case instruction.Unsigned:
			unsigned = true
		}
	}

	if signed && unsigned {
		fa.errors[writer] = "flags are consumed by signed and unsigned conditions"
		return
	}
	if unsigned {
		fa.signedness[writer] = instruction.Unsigned
	} else {
		fa.signedness[writer] = instruction.Signed
	}
}

// isSigned returns whether the compare writer compares signed values.
func (fa *flagAnalysis) isSigned(writer int) bool {
	return fa.signedness[writer] != instruction.Unsigned
}
