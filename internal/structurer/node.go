package structurer

// Node is an element of a structured region tree.
type Node interface {
	node()
}

// Code is the straight-line body of a basic block, without its
// terminating branch.
type Code struct {
	Block int
}

// Block is a WebAssembly block, branching to it continues after its end.
type Block struct {
	Body []Node
}

// Loop is a WebAssembly loop, branching to it restarts the body.
type Loop struct {
	Body []Node
}

// If branches on the condition of the terminating conditional branch of a
// basic block. Then is executed when the branch is taken.
type If struct {
	Block int
	Then  []Node
	Else  []Node
}

// Branch is a br to the enclosing label at the given depth.
type Branch struct {
	Depth uint32
}

// SetState stores the case index of the next block of a dispatch loop.
type SetState struct {
	Case int
}

// Dispatch selects the case of a dispatch loop by the stored state.
type Dispatch struct {
	Labels []uint32 // last label is the default
}

// Trap aborts execution, used for paths that leave the function without a
// return.
type Trap struct{}

func (*Code) node()     {}
func (*Block) node()    {}
func (*Loop) node()     {}
func (*If) node()       {}
func (*Branch) node()   {}
func (*SetState) node() {}
func (*Dispatch) node() {}
func (*Trap) node()     {}
