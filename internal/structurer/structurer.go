// Package structurer rebuilds nested block, loop and if/else regions from a
// control flow graph, as WebAssembly only supports structured control flow.
//
// Reducible graphs are structured following the dominator tree: loop
// headers are wrapped in a loop, blocks with multiple forward predecessors
// are placed after a block that is exited by branching to them, and all
// other blocks are nested into their only predecessor. Irreducible graphs
// are emitted as a dispatch loop that selects the next block by a state
// variable.
package structurer

import (
	"errors"
	"fmt"
	"slices"

	"github.com/retroenv/retrowasm/internal/cfg"
)

var errLabelNotInScope = errors.New("branch target label not in scope")

// Region is the structured form of a function.
type Region struct {
	Nodes []Node
	// Reachable marks the blocks that are part of the region. Unreachable
	// blocks are pruned.
	Reachable []bool
	// Dispatch is set when the graph is irreducible and the region is a
	// dispatch loop over a state variable.
	Dispatch bool
	Loops    int
}

type frameKind uint8

const (
	blockFollowedBy frameKind = iota
	loopHeadedBy
	ifThenElse
)

// frame is an enclosing label of the currently emitted code.
type frame struct {
	kind  frameKind
	block int
}

type structurer struct {
	graph       *cfg.Graph
	dominators  *Dominators
	loopHeaders []bool
	mergeNodes  []bool
}

// Structure converts the graph into a region tree.
func Structure(g *cfg.Graph) (*Region, error) {
	region := &Region{
		Reachable: g.Reachable(),
	}
	if g.Entry < 0 {
		return region, nil
	}
	if g.IsBranchFree() {
		region.Nodes = []Node{&Code{Block: g.Entry}}
		if g.Blocks[g.Entry].Kind != cfg.Return {
			region.Nodes = append(region.Nodes, &Trap{})
		}
		return region, nil
	}

	rpo := g.ReversePostOrder()
	s := &structurer{
		graph:       g,
		dominators:  ComputeDominators(g, rpo),
		loopHeaders: make([]bool, len(g.Blocks)),
		mergeNodes:  make([]bool, len(g.Blocks)),
	}

	if !s.classify(rpo) {
		nodes := s.dispatch(rpo)
		region.Nodes = nodes
		region.Dispatch = true
		return region, nil
	}

	for _, header := range s.loopHeaders {
		if header {
			region.Loops++
		}
	}

	nodes, err := s.doTree(g.Entry, nil)
	if err != nil {
		return nil, fmt.Errorf("structuring graph: %w", err)
	}
	region.Nodes = nodes
	return region, nil
}

// classify marks loop headers and merge nodes. It returns false if the
// graph is irreducible, which is the case when a retreating edge targets a
// block that does not dominate the edge source.
func (s *structurer) classify(rpo []int) bool {
	forwardIn := make([]int, len(s.graph.Blocks))

	for _, u := range rpo {
		for _, v := range s.graph.Blocks[u].Successors {
			if s.isBackward(u, v) {
				if !s.dominators.Dominates(v, u) {
					return false
				}
				s.loopHeaders[v] = true
				continue
			}
			forwardIn[v]++
		}
	}

	for id, count := range forwardIn {
		s.mergeNodes[id] = count > 1
	}
	return true
}

func (s *structurer) isBackward(from, to int) bool {
	return s.dominators.rpoIndex[to] <= s.dominators.rpoIndex[from]
}

// mergeChildren returns the merge nodes immediately dominated by the block,
// ordered by decreasing reverse post-order. The first child is placed last
// and therefore gets the outermost block.
func (s *structurer) mergeChildren(id int) []int {
	var children []int
	for _, child := range s.dominators.Children(id) {
		if s.mergeNodes[child] {
			children = append(children, child)
		}
	}
	slices.SortFunc(children, func(a, b int) int {
		return s.dominators.rpoIndex[b] - s.dominators.rpoIndex[a]
	})
	return children
}

// doTree emits the block and all blocks it dominates.
func (s *structurer) doTree(id int, context []frame) ([]Node, error) {
	children := s.mergeChildren(id)

	if !s.loopHeaders[id] {
		return s.nodeWithin(id, children, context)
	}

	body, err := s.nodeWithin(id, children, push(context, frame{kind: loopHeadedBy, block: id}))
	if err != nil {
		return nil, err
	}
	return []Node{&Loop{Body: body}}, nil
}

// nodeWithin emits the block inside of a block for every remaining merge
// child, followed by the code of that merge child.
func (s *structurer) nodeWithin(id int, mergeChildren []int, context []frame) ([]Node, error) {
	if len(mergeChildren) == 0 {
		terminator, err := s.terminator(id, context)
		if err != nil {
			return nil, err
		}
		return append([]Node{&Code{Block: id}}, terminator...), nil
	}

	follower := mergeChildren[0]
	inner, err := s.nodeWithin(id, mergeChildren[1:], push(context, frame{kind: blockFollowedBy, block: follower}))
	if err != nil {
		return nil, err
	}
	followerCode, err := s.doTree(follower, context)
	if err != nil {
		return nil, err
	}
	return append([]Node{&Block{Body: inner}}, followerCode...), nil
}

// terminator emits the control transfer at the end of the block.
func (s *structurer) terminator(id int, context []frame) ([]Node, error) {
	b := s.graph.Blocks[id]

	switch b.Kind {
	case cfg.Return:
		return nil, nil

	case cfg.Jump, cfg.FallThrough:
		return s.doBranch(id, b.Successors[0], context)

	case cfg.Conditional:
		inner := push(context, frame{kind: ifThenElse, block: id})
		taken, err := s.doBranch(id, b.Successors[1], inner)
		if err != nil {
			return nil, err
		}
		notTaken, err := s.doBranch(id, b.Successors[0], inner)
		if err != nil {
			return nil, err
		}
		return []Node{&If{Block: id, Then: taken, Else: notTaken}}, nil

	default:
		return []Node{&Trap{}}, nil
	}
}

// doBranch emits the transfer from one block to another. Loop restarts and
// branches to merge nodes become branches to enclosing labels, all other
// targets are nested in place.
func (s *structurer) doBranch(from, to int, context []frame) ([]Node, error) {
	var kind frameKind
	switch {
	case s.isBackward(from, to):
		kind = loopHeadedBy
	case s.mergeNodes[to]:
		kind = blockFollowedBy
	default:
		return s.doTree(to, context)
	}

	depth, err := labelDepth(context, kind, to)
	if err != nil {
		return nil, fmt.Errorf("branch from block %d to %d: %w", from, to, err)
	}
	return []Node{&Branch{Depth: depth}}, nil
}

// dispatch emits all reachable blocks as cases of a loop:
//
//	loop
//	  block ... block
//	    local.get state
//	    br_table 0 1 ... n-1
//	  end
//	  case 0
//	  ...
//	end
//
// Every case sets the state to its successor and restarts the loop.
func (s *structurer) dispatch(rpo []int) []Node {
	caseOf := make(map[int]int, len(rpo))
	for i, id := range rpo {
		caseOf[id] = i
	}

	n := len(rpo)
	labels := make([]uint32, n+1)
	for i := range n {
		labels[i] = uint32(i)
	}
	labels[n] = uint32(n - 1)

	body := []Node{&Dispatch{Labels: labels}}
	for i, id := range rpo {
		body = []Node{&Block{Body: body}}
		loopDepth := uint32(n - 1 - i)
		body = append(body, s.dispatchCase(id, loopDepth, caseOf)...)
	}

	return []Node{
		&SetState{Case: caseOf[s.graph.Entry]},
		&Loop{Body: body},
	}
}

func (s *structurer) dispatchCase(id int, loopDepth uint32, caseOf map[int]int) []Node {
	b := s.graph.Blocks[id]
	nodes := []Node{&Code{Block: id}}

	next := func(target int, depth uint32) []Node {
		return []Node{&SetState{Case: caseOf[target]}, &Branch{Depth: depth}}
	}

	switch b.Kind {
	case cfg.Return:
	case cfg.Jump, cfg.FallThrough:
		nodes = append(nodes, next(b.Successors[0], loopDepth)...)
	case cfg.Conditional:
		nodes = append(nodes, &If{
			Block: id,
			Then:  next(b.Successors[1], loopDepth+1),
			Else:  next(b.Successors[0], loopDepth+1),
		})
	default:
		nodes = append(nodes, &Trap{})
	}
	return nodes
}

func push(context []frame, f frame) []frame {
	result := make([]frame, len(context)+1)
	copy(result, context)
	result[len(context)] = f
	return result
}

// labelDepth returns the br depth of the innermost matching label.
func labelDepth(context []frame, kind frameKind, block int) (uint32, error) {
	for i := len(context) - 1; i >= 0; i-- {
		if context[i].kind == kind && context[i].block == block {
			return uint32(len(context) - 1 - i), nil
		}
	}
	return 0, errLabelNotInScope
}
