// Package cfg partitions a decoded instruction stream into basic blocks and
// connects them to a control flow graph.
package cfg

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/retrowasm/internal/instruction"
)

// ErrBranchIntoInstruction is returned when a branch targets an address
// inside the function that is not the start of a decoded instruction.
var ErrBranchIntoInstruction = errors.New("branch target is not an instruction start")

// Kind describes how control leaves a basic block.
type Kind uint8

// block kinds.
const (
	// FallThrough continues with the next block, also used for calls.
	FallThrough Kind = iota
	// Jump is an unconditional branch to a block of the function.
	Jump
	// Conditional branches to the target or falls through.
	Conditional
	// Return leaves the function.
	Return
	// ExternalExit branches outside of the function or indirectly.
	ExternalExit
	// FallOff is the last block that does not end the function explicitly.
	FallOff
)

var kindNames = map[Kind]string{
	FallThrough:  "fallthrough",
	Jump:         "jump",
	Conditional:  "conditional",
	Return:       "return",
	ExternalExit: "external exit",
	FallOff:      "fall off",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Block is a maximal straight-line run of instructions.
type Block struct {
	ID    int
	Start uint64 // address of the first instruction
	End   uint64 // address following the last instruction

	// Instructions holds indexes into the decoded instruction sequence.
	Instructions []int
	// Successors holds block IDs. Conditional blocks list the fallthrough
	// successor first and the branch target second.
	Successors []int
	Kind       Kind
}

// Last returns the index of the last instruction of the block.
func (b *Block) Last() int {
	return b.Instructions[len(b.Instructions)-1]
}

// Graph is the control flow graph of a single function.
type Graph struct {
	Blocks []*Block // in address order, the block ID is the slice index
	Entry  int

	predecessors [][]int
}

// Build creates the control flow graph of the instruction sequence. The
// first instruction is the function entry.
func Build(instructions []instruction.Instruction) (*Graph, error) {
	g := &Graph{Entry: -1}
	if len(instructions) == 0 {
		return g, nil
	}

	start := instructions[0].Address
	end := instructions[len(instructions)-1].Next()

	addressToIndex := make(map[uint64]int, len(instructions))
	for i, ins := range instructions {
		addressToIndex[ins.Address] = i
	}

	leaders, err := findLeaders(instructions, addressToIndex, start, end)
	if err != nil {
		return nil, err
	}

	g.partition(instructions, leaders)
	g.connect(instructions, start, end)
	g.Entry = 0
	return g, nil
}

// findLeaders returns the set of addresses that start a basic block.
func findLeaders(instructions []instruction.Instruction, addressToIndex map[uint64]int,
	start, end uint64) (set.Set[uint64], error) {

	leaders := set.New[uint64]()
	leaders.Add(start)

	for i, ins := range instructions {
		if !ins.IsControlTransfer() {
			continue
		}
		if i+1 < len(instructions) {
			leaders.Add(instructions[i+1].Address)
		}

		if !isBranch(ins) || !ins.HasTarget || ins.Relocated {
			continue
		}
		if ins.Target < start || ins.Target >= end {
			continue // leaves the function
		}
		if _, ok := addressToIndex[ins.Target]; !ok {
			return nil, fmt.Errorf("%w: branch at 0x%x to 0x%x", ErrBranchIntoInstruction, ins.Address, ins.Target)
		}
		leaders.Add(ins.Target)
	}

	return leaders, nil
}

// partition splits the instructions into contiguous runs between leaders.
func (g *Graph) partition(instructions []instruction.Instruction, leaders set.Set[uint64]) {
	var current *Block
	for i, ins := range instructions {
		if current == nil || leaders.Contains(ins.Address) {
			current = &Block{
				ID:    len(g.Blocks),
				Start: ins.Address,
			}
			g.Blocks = append(g.Blocks, current)
		}
		current.Instructions = append(current.Instructions, i)
		current.End = ins.Next()
	}
}

// connect computes the successor and predecessor edges of all blocks.
func (g *Graph) connect(instructions []instruction.Instruction, start, end uint64) {
	startToBlock := make(map[uint64]int, len(g.Blocks))
	for _, b := range g.Blocks {
		startToBlock[b.Start] = b.ID
	}

	internalTarget := func(ins instruction.Instruction) (int, bool) {
		if !ins.HasTarget || ins.Relocated || ins.Target < start || ins.Target >= end {
			return 0, false
		}
		id, ok := startToBlock[ins.Target]
		return id, ok
	}

	for _, b := range g.Blocks {
		last := instructions[b.Last()]
		next := b.ID + 1
		hasNext := next < len(g.Blocks)

		switch last.Class {
		case instruction.ClassReturn:
			b.Kind = Return

		case instruction.ClassBranch:
			if target, ok := internalTarget(last); ok {
				b.Kind = Jump
				b.Successors = []int{target}
			} else {
				b.Kind = ExternalExit
			}

		case instruction.ClassConditionalBranch:
			target, ok := internalTarget(last)
			switch {
			case ok && hasNext:
				b.Kind = Conditional
				b.Successors = []int{next, target}
			case hasNext:
				b.Kind = ExternalExit
				b.Successors = []int{next}
			case ok:
				b.Kind = ExternalExit
				b.Successors = []int{target}
			default:
				b.Kind = ExternalExit
			}

		default:
			if hasNext {
				b.Kind = FallThrough
				b.Successors = []int{next}
			} else {
				b.Kind = FallOff
			}
		}
	}

	g.predecessors = make([][]int, len(g.Blocks))
	for _, b := range g.Blocks {
		for _, succ := range b.Successors {
			g.predecessors[succ] = append(g.predecessors[succ], b.ID)
		}
	}
}

// Predecessors returns the IDs of all blocks with an edge to the block.
// A block that reaches the block over two edges is listed twice.
func (g *Graph) Predecessors(id int) []int {
	return g.predecessors[id]
}

// IsBranchFree returns whether the graph consists of a single block that
// has no successors.
func (g *Graph) IsBranchFree() bool {
	return len(g.Blocks) == 1 && len(g.Blocks[0].Successors) == 0
}

func isBranch(ins instruction.Instruction) bool {
	return ins.Class == instruction.ClassBranch || ins.Class == instruction.ClassConditionalBranch
}
