package program

// Opcode is a WebAssembly instruction opcode.
type Opcode byte

// control instructions.
const (
	Unreachable Opcode = 0x00
	Nop         Opcode = 0x01
	Block       Opcode = 0x02
	Loop        Opcode = 0x03
	If          Opcode = 0x04
	Else        Opcode = 0x05
	End         Opcode = 0x0b
	Br          Opcode = 0x0c
	BrIf        Opcode = 0x0d
	BrTable     Opcode = 0x0e
	Return      Opcode = 0x0f
)

// parametric and variable instructions.
const (
	Drop     Opcode = 0x1a
	Select   Opcode = 0x1b
	LocalGet Opcode = 0x20
	LocalSet Opcode = 0x21
	LocalTee Opcode = 0x22
)

// memory instructions.
const (
	I64Load    Opcode = 0x29
	I64Load8S  Opcode = 0x30
	I64Load8U  Opcode = 0x31
	I64Load16S Opcode = 0x32
	I64Load16U Opcode = 0x33
	I64Load32S Opcode = 0x34
	I64Load32U Opcode = 0x35
	I64Store   Opcode = 0x37
	I64Store8  Opcode = 0x3c
	I64Store16 Opcode = 0x3d
	I64Store32 Opcode = 0x3e
)

// numeric instructions.
const (
	I32Const Opcode = 0x41
	I64Const Opcode = 0x42

	I32Eqz Opcode = 0x45

	I64Eqz Opcode = 0x50
	I64Eq  Opcode = 0x51
	I64Ne  Opcode = 0x52
	I64LtS Opcode = 0x53
	I64LtU Opcode = 0x54
	I64GtS Opcode = 0x55
	I64GtU Opcode = 0x56
	I64LeS Opcode = 0x57
	I64LeU Opcode = 0x58
	I64GeS Opcode = 0x59
	I64GeU Opcode = 0x5a

	I32Sub Opcode = 0x6b

	I64Add  Opcode = 0x7c
	I64Sub  Opcode = 0x7d
	I64Mul  Opcode = 0x7e
	I64And  Opcode = 0x83
	I64Or   Opcode = 0x84
	I64Xor  Opcode = 0x85
	I64Shl  Opcode = 0x86
	I64ShrS Opcode = 0x87
	I64ShrU Opcode = 0x88

	I32WrapI64    Opcode = 0xa7
	I64ExtendI32S Opcode = 0xac
	I64ExtendI32U Opcode = 0xad
	I64Extend8S   Opcode = 0xc2
	I64Extend16S  Opcode = 0xc3
	I64Extend32S  Opcode = 0xc4
)

// BlockTypeEmpty is the block type of blocks without parameters and results.
const BlockTypeEmpty = 0x40

var opcodeNames = map[Opcode]string{
	Unreachable: "unreachable",
	Nop:         "nop",
	Block:       "block",
	Loop:        "loop",
	If:          "if",
	Else:        "else",
	End:         "end",
	Br:          "br",
	BrIf:        "br_if",
	BrTable:     "br_table",
	Return:      "return",

	Drop:     "drop",
	Select:   "select",
	LocalGet: "local.get",
	LocalSet: "local.set",
	LocalTee: "local.tee",

	I64Load:    "i64.load",
	I64Load8S:  "i64.load8_s",
	I64Load8U:  "i64.load8_u",
	I64Load16S: "i64.load16_s",
	I64Load16U: "i64.load16_u",
	I64Load32S: "i64.load32_s",
	I64Load32U: "i64.load32_u",
	I64Store:   "i64.store",
	I64Store8:  "i64.store8",
	I64Store16: "i64.store16",
	I64Store32: "i64.store32",

	I32Const: "i32.const",
	I64Const: "i64.const",
	I32Eqz:   "i32.eqz",
	I64Eqz:   "i64.eqz",
	I64Eq:    "i64.eq",
	I64Ne:    "i64.ne",
	I64LtS:   "i64.lt_s",
	I64LtU:   "i64.lt_u",
	I64GtS:   "i64.gt_s",
	I64GtU:   "i64.gt_u",
	I64LeS:   "i64.le_s",
	I64LeU:   "i64.le_u",
	I64GeS:   "i64.ge_s",
	I64GeU:   "i64.ge_u",
	I32Sub:   "i32.sub",
	I64Add:   "i64.add",
	I64Sub:   "i64.sub",
	I64Mul:   "i64.mul",
	I64And:   "i64.and",
	I64Or:    "i64.or",
	I64Xor:   "i64.xor",
	I64Shl:   "i64.shl",
	I64ShrS:  "i64.shr_s",
	I64ShrU:  "i64.shr_u",

	I32WrapI64:    "i32.wrap_i64",
	I64ExtendI32S: "i64.extend_i32_s",
	I64ExtendI32U: "i64.extend_i32_u",
	I64Extend8S:   "i64.extend8_s",
	I64Extend16S:  "i64.extend16_s",
	I64Extend32S:  "i64.extend32_s",
}

// IsMemoryAccess returns whether the opcode loads from or stores to linear
// memory.
func (o Opcode) IsMemoryAccess() bool {
	return o >= I64Load && o <= I64Store32
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "unknown"
}
