package structurer

import "github.com/retroenv/retrowasm/internal/cfg"

// Dominators holds the dominator tree of the reachable blocks of a graph.
type Dominators struct {
	entry    int
	idom     []int // immediate dominator, -1 for unreachable blocks
	rpoIndex []int // position in reverse post-order, -1 for unreachable blocks
}

// ComputeDominators computes the immediate dominators using the iterative
// algorithm of Cooper, Harvey and Kennedy.
func ComputeDominators(g *cfg.Graph, rpo []int) *Dominators {
	d := &Dominators{
		entry:    g.Entry,
		idom:     make([]int, len(g.Blocks)),
		rpoIndex: make([]int, len(g.Blocks)),
	}
	for i := range d.idom {
		d.idom[i] = -1
		d.rpoIndex[i] = -1
	}
	for i, id := range rpo {
		d.rpoIndex[id] = i
	}
	if len(rpo) == 0 {
		return d
	}

	d.idom[g.Entry] = g.Entry
	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			newIdom := -1
			for _, p := range g.Predecessors(b) {
				if d.idom[p] == -1 {
					continue // unreachable or not processed yet
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = d.intersect(p, newIdom)
				}
			}
			if newIdom != d.idom[b] {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	return d
}

func (d *Dominators) intersect(b1, b2 int) int {
	for b1 != b2 {
		for d.rpoIndex[b1] > d.rpoIndex[b2] {
			b1 = d.idom[b1]
		}
		for d.rpoIndex[b2] > d.rpoIndex[b1] {
			b2 = d.idom[b2]
		}
	}
	return b1
}

// Immediate returns the immediate dominator of the block. The entry block
// is its own immediate dominator, unreachable blocks return -1.
func (d *Dominators) Immediate(id int) int {
	return d.idom[id]
}

// Dominates returns whether every path from the entry to b passes a.
func (d *Dominators) Dominates(a, b int) bool {
	if d.idom[b] == -1 || d.idom[a] == -1 {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == d.entry {
			return false
		}
		b = d.idom[b]
	}
}

// Children returns the blocks immediately dominated by the block, in
// block ID order.
func (d *Dominators) Children(id int) []int {
	var children []int
	for b, idom := range d.idom {
		if idom == id && b != d.entry {
			children = append(children, b)
		}
	}
	return children
}
