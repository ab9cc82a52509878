package cfg

// ReversePostOrder returns the IDs of all blocks reachable from the entry in
// reverse post-order of a depth first search. Successors are visited in
// their listed order, which makes the order deterministic.
func (g *Graph) ReversePostOrder() []int {
	if g.Entry < 0 {
		return nil
	}

	visited := make([]bool, len(g.Blocks))
	postOrder := make([]int, 0, len(g.Blocks))

	type frame struct {
		id   int
		next int // index of the next successor to visit
	}
	stack := []frame{{id: g.Entry}}
	visited[g.Entry] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := g.Blocks[top.id].Successors
		if top.next < len(succs) {
			succ := succs[top.next]
			top.next++
			if !visited[succ] {
				visited[succ] = true
				stack = append(stack, frame{id: succ})
			}
			continue
		}
		postOrder = append(postOrder, top.id)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(postOrder)-1; i < j; i, j = i+1, j-1 {
		postOrder[i], postOrder[j] = postOrder[j], postOrder[i]
	}
	return postOrder
}

// Reachable returns for every block whether it is reachable from the entry.
func (g *Graph) Reachable() []bool {
	reachable := make([]bool, len(g.Blocks))
	for _, id := range g.ReversePostOrder() {
		reachable[id] = true
	}
	return reachable
}
