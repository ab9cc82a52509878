// Package translator translates decoded x86-64 instructions of a structured
// function into WebAssembly operations.
package translator

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/cfg"
	"github.com/retroenv/retrowasm/internal/instruction"
	"github.com/retroenv/retrowasm/internal/program"
	"github.com/retroenv/retrowasm/internal/regalloc"
	"github.com/retroenv/retrowasm/internal/structurer"
)

// Translator translates functions using a calling convention that maps
// parameters and the return value to registers.
type Translator struct {
	logger     *log.Logger
	convention abi.Convention
}

// translation holds the state of a single function translation.
type translation struct {
	instructions []instruction.Instruction
	graph        *cfg.Graph
	region       *structurer.Region
	convention   abi.Convention

	alloc      *regalloc.Allocator[instruction.RegisterID]
	flags      *flagAnalysis
	stateSlot  uint32
	body       []program.Instruction
	usesMemory bool
}

// New returns a new translator.
func New(logger *log.Logger, convention abi.Convention) *Translator {
	return &Translator{
		logger:     logger,
		convention: convention,
	}
}

// Translate translates the function. Before any code is emitted all
// reachable instructions are checked in address order, the first one that
// can not be translated aborts the translation with an
// UnsupportedInstructionError.
func (tr *Translator) Translate(name string, instructions []instruction.Instruction,
	graph *cfg.Graph, region *structurer.Region) (*program.Function, error) {

	alloc, err := regalloc.New(tr.convention.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("creating register allocator: %w", err)
	}

	t := &translation{
		instructions: instructions,
		graph:        graph,
		region:       region,
		convention:   tr.convention,
		alloc:        alloc,
		flags:        analyzeFlags(instructions, graph),
	}
	if region.Dispatch {
		t.stateSlot = uint32(alloc.GetOrAllocateState())
	}

	if err := t.check(); err != nil {
		return nil, err
	}

	t.body = t.body[:0]
	if err := t.emitNodes(region.Nodes); err != nil {
		return nil, fmt.Errorf("emitting function body: %w", err)
	}
	if len(t.body) == 0 || t.body[len(t.body)-1].Opcode != program.Return {
		t.emit(program.Op(program.Unreachable))
	}
	t.emit(program.Op(program.End))

	fn := &program.Function{
		Name:   name,
		Params: alloc.Params(),
		Slots:  alloc.SlotCount(),
		SlotNames: alloc.Names(func(id instruction.RegisterID) string {
			return string(id)
		}),
		Body:       t.body,
		UsesMemory: t.usesMemory,
	}

	tr.logger.Debug("Translated function",
		log.String("name", name),
		log.Int("instructions", len(instructions)),
		log.Int("operations", len(fn.Body)),
		log.Int("slots", int(fn.Slots)),
		log.Int("loops", region.Loops),
	)
	if region.Dispatch {
		tr.logger.Debug("Irreducible control flow, using dispatch loop", log.String("name", name))
	}
	return fn, nil
}

// check translates all reachable instructions in address order into a
// scratch body, returning the first failure.
func (t *translation) check() error {
	for _, block := range t.graph.Blocks {
		if !t.region.Reachable[block.ID] {
			continue
		}
		for _, idx := range block.Instructions {
			if err := t.instruction(idx, block); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *translation) emitNodes(nodes []structurer.Node) error {
	for _, node := range nodes {
		if err := t.emitNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (t *translation) emitNode(node structurer.Node) error {
	switch n := node.(type) {
	case *structurer.Code:
		block := t.graph.Blocks[n.Block]
		for _, idx := range block.Instructions {
			if err := t.instruction(idx, block); err != nil {
				return err
			}
		}

	case *structurer.Block:
		return t.emitStructured(program.Block, n.Body)

	case *structurer.Loop:
		return t.emitStructured(program.Loop, n.Body)

	case *structurer.If:
		block := t.graph.Blocks[n.Block]
		t.predicate(t.instructions[block.Last()].Condition)
		t.emit(program.Instruction{Opcode: program.If, Value: program.BlockTypeEmpty})
		if err := t.emitNodes(n.Then); err != nil {
			return err
		}
		if len(n.Else) > 0 {
			t.emit(program.Op(program.Else))
			if err := t.emitNodes(n.Else); err != nil {
				return err
			}
		}
		t.emit(program.Op(program.End))

	case *structurer.Branch:
		t.emit(program.BrOp(n.Depth))

	case *structurer.SetState:
		t.emit(program.I64ConstOp(int64(n.Case)), program.LocalSetOp(t.stateSlot))

	case *structurer.Dispatch:
		t.emit(
			program.LocalGetOp(t.stateSlot),
			program.Op(program.I32WrapI64),
			program.BrTableOp(n.Labels),
		)

	case *structurer.Trap:
		t.emit(program.Op(program.Unreachable))

	default:
		return fmt.Errorf("unsupported region node %T", node)
	}
	return nil
}

func (t *translation) emitStructured(opcode program.Opcode, body []structurer.Node) error {
	t.emit(program.Instruction{Opcode: opcode, Value: program.BlockTypeEmpty})
	if err := t.emitNodes(body); err != nil {
		return err
	}
	t.emit(program.Op(program.End))
	return nil
}
