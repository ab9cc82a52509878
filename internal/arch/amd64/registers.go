package amd64

import (
	"strings"

	"github.com/retroenv/retrowasm/internal/instruction"
	"golang.org/x/arch/x86/x86asm"
)

// register family identities.
const (
	RAX instruction.RegisterID = "rax"
	RCX instruction.RegisterID = "rcx"
	RDX instruction.RegisterID = "rdx"
	RBX instruction.RegisterID = "rbx"
	RSP instruction.RegisterID = "rsp"
	RBP instruction.RegisterID = "rbp"
	RSI instruction.RegisterID = "rsi"
	RDI instruction.RegisterID = "rdi"
	R8  instruction.RegisterID = "r8"
	R9  instruction.RegisterID = "r9"
	R10 instruction.RegisterID = "r10"
	R11 instruction.RegisterID = "r11"
	R12 instruction.RegisterID = "r12"
	R13 instruction.RegisterID = "r13"
	R14 instruction.RegisterID = "r14"
	R15 instruction.RegisterID = "r15"
)

var families = [16]instruction.RegisterID{
	RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI,
	R8, R9, R10, R11, R12, R13, R14, R15,
}

var (
	regs8 = [16]x86asm.Reg{
		x86asm.AL, x86asm.CL, x86asm.DL, x86asm.BL, x86asm.SPB, x86asm.BPB, x86asm.SIB, x86asm.DIB,
		x86asm.R8B, x86asm.R9B, x86asm.R10B, x86asm.R11B, x86asm.R12B, x86asm.R13B, x86asm.R14B, x86asm.R15B,
	}
	regs16 = [16]x86asm.Reg{
		x86asm.AX, x86asm.CX, x86asm.DX, x86asm.BX, x86asm.SP, x86asm.BP, x86asm.SI, x86asm.DI,
		x86asm.R8W, x86asm.R9W, x86asm.R10W, x86asm.R11W, x86asm.R12W, x86asm.R13W, x86asm.R14W, x86asm.R15W,
	}
	regs32 = [16]x86asm.Reg{
		x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX, x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
		x86asm.R8L, x86asm.R9L, x86asm.R10L, x86asm.R11L, x86asm.R12L, x86asm.R13L, x86asm.R14L, x86asm.R15L,
	}
	regs64 = [16]x86asm.Reg{
		x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX, x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
		x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
	}
	highRegs = [4]x86asm.Reg{x86asm.AH, x86asm.CH, x86asm.DH, x86asm.BH}
)

var names8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// registers maps every general purpose register to its family access.
var registers = buildRegisterTable()

func buildRegisterTable() map[x86asm.Reg]instruction.Register {
	m := make(map[x86asm.Reg]instruction.Register, 68)
	for i, id := range families {
		name := string(id)
		m[regs64[i]] = instruction.Register{ID: id, Name: name, Width: 64}

		var name32, name16 string
		if i < 8 {
			name32 = "e" + name[1:]
			name16 = name[1:]
		} else {
			name32 = name + "d"
			name16 = name + "w"
		}
		m[regs32[i]] = instruction.Register{ID: id, Name: name32, Width: 32}
		m[regs16[i]] = instruction.Register{ID: id, Name: name16, Width: 16}
		m[regs8[i]] = instruction.Register{ID: id, Name: names8[i], Width: 8}
	}
	for i, reg := range highRegs {
		m[reg] = instruction.Register{
			ID:    families[i],
			Name:  strings.ToLower(reg.String()),
			Width: 8,
			High:  true,
		}
	}
	return m
}

// register converts a decoded register. Registers outside the general
// purpose set keep their name as identity and report a zero width.
func register(reg x86asm.Reg) instruction.Register {
	if r, ok := registers[reg]; ok {
		return r
	}
	name := strings.ToLower(reg.String())
	return instruction.Register{ID: instruction.RegisterID(name), Name: name}
}

// IsGeneralPurpose returns whether the register ID names one of the 16
// general purpose register families.
func IsGeneralPurpose(id instruction.RegisterID) bool {
	for _, f := range families {
		if f == id {
			return true
		}
	}
	return false
}
