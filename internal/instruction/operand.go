package instruction

import (
	"fmt"
	"strings"
)

// OperandKind defines what an operand refers to.
type OperandKind uint8

// operand kinds.
const (
	RegisterOperand OperandKind = iota + 1
	ImmediateOperand
	MemoryOperand
)

// RegisterID is the identity of a register family, for example "rax" for
// rax, eax, ax and al.
type RegisterID string

// Register is an access to a register family with a given width.
type Register struct {
	ID    RegisterID
	Name  string // name of the accessed register, for example "eax"
	Width int    // access width in bits
	High  bool   // high byte register like ah
}

// Memory describes a memory reference base + index*scale + displacement.
type Memory struct {
	Base         Register // zero value if unused
	Index        Register // zero value if unused
	Scale        int
	Displacement int64
	Segment      string // segment override, empty if none
	RIPRelative  bool
}

// HasBase returns whether a base register is used.
func (m Memory) HasBase() bool {
	return m.Base.ID != ""
}

// HasIndex returns whether an index register is used.
func (m Memory) HasIndex() bool {
	return m.Index.ID != ""
}

// Operand is a register, immediate or memory operand.
type Operand struct {
	Kind      OperandKind
	Register  Register
	Immediate int64
	Memory    Memory
	Width     int // operand width in bits
}

func (o Operand) String() string {
	switch o.Kind {
	case RegisterOperand:
		return o.Register.Name
	case ImmediateOperand:
		return fmt.Sprintf("0x%x", o.Immediate)
	case MemoryOperand:
		return o.Memory.String()
	default:
		return "?"
	}
}

func (m Memory) String() string {
	var parts []string
	if m.RIPRelative {
		parts = append(parts, "rip")
	}
	if m.HasBase() {
		parts = append(parts, m.Base.Name)
	}
	if m.HasIndex() {
		parts = append(parts, fmt.Sprintf("%s*%d", m.Index.Name, m.Scale))
	}
	s := strings.Join(parts, "+")
	switch {
	case m.Displacement < 0:
		s += fmt.Sprintf("-0x%x", -m.Displacement)
	case m.Displacement > 0 || s == "":
		if s != "" {
			s += "+"
		}
		s += fmt.Sprintf("0x%x", m.Displacement)
	}
	if m.Segment != "" {
		return fmt.Sprintf("%s:[%s]", m.Segment, s)
	}
	return "[" + s + "]"
}
