// Package mocks provides minimal object file builders for testing.
package mocks

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Function is a function symbol to place into a built object file.
type Function struct {
	Name string
	Code []byte

	Object    bool // emit as data object instead of function
	Undefined bool // emit as undefined reference without code
	ZeroSize  bool // emit the symbol without size information

	// Relocations lists offsets into Code of 32-bit fields that the linker
	// patches, emitted as R_X86_64_PLT32 entries in .rela.text.
	Relocations []int
}

const (
	elfHeaderSize  = 64
	elfSectionSize = 64
	elfSymbolSize  = 24
	elfRelaSize    = 24

	textIndex     = 1
	symtabIndex   = 2
	strtabIndex   = 3
	shstrtabIndex = 4
	relaIndex     = 5
	sectionCount  = 6
)

// BuildELF returns an x86-64 ELF64 object of the given type with a single
// .text section containing the code of all defined functions in order.
// For relocatable objects the section is placed at address 0 and the symbol
// and relocation offsets are section relative.
func BuildELF(typ elf.Type, textAddress uint64, functions ...Function) []byte {
	if typ == elf.ET_REL {
		textAddress = 0
	}

	var text []byte
	strtab := []byte{0}
	symtab := make([]elf.Sym64, 1, len(functions)+1)
	var rela []elf.Rela64

	for _, fn := range functions {
		sym := elf.Sym64{
			Name: uint32(len(strtab)),
			Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		}
		strtab = append(strtab, fn.Name...)
		strtab = append(strtab, 0)

		if fn.Object {
			sym.Info = elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT)
		}
		if !fn.Undefined {
			sym.Shndx = textIndex
			sym.Value = textAddress + uint64(len(text))
			if !fn.ZeroSize {
				sym.Size = uint64(len(fn.Code))
			}
			for _, offset := range fn.Relocations {
				rela = append(rela, elf.Rela64{
					Off:    sym.Value + uint64(offset),
					Info:   elf.R_INFO(uint32(len(symtab)), uint32(elf.R_X86_64_PLT32)),
					Addend: -4,
				})
			}
			text = append(text, fn.Code...)
		}
		symtab = append(symtab, sym)
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00.rela.text\x00")

	textOffset := uint64(elfHeaderSize)
	symtabOffset := align(textOffset+uint64(len(text)), 8)
	strtabOffset := symtabOffset + uint64(len(symtab)*elfSymbolSize)
	shstrtabOffset := strtabOffset + uint64(len(strtab))
	relaOffset := align(shstrtabOffset+uint64(len(shstrtab)), 8)
	sectionsOffset := relaOffset + uint64(len(rela)*elfRelaSize)

	header := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     sectionsOffset,
		Ehsize:    elfHeaderSize,
		Shentsize: elfSectionSize,
		Shnum:     sectionCount,
		Shstrndx:  shstrtabIndex,
	}
	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	if typ != elf.ET_REL && len(symtab) > 1 {
		header.Entry = textAddress
	}

	sections := [sectionCount]elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:      textAddress,
			Off:       textOffset,
			Size:      uint64(len(text)),
			Addralign: 16,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_SYMTAB),
			Off:       symtabOffset,
			Size:      uint64(len(symtab) * elfSymbolSize),
			Link:      strtabIndex,
			Info:      1,
			Addralign: 8,
			Entsize:   elfSymbolSize,
		},
		{
			Name:      15,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strtabOffset,
			Size:      uint64(len(strtab)),
			Addralign: 1,
		},
		{
			Name:      23,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrtabOffset,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
		{
			Name:      33,
			Type:      uint32(elf.SHT_RELA),
			Flags:     uint64(elf.SHF_INFO_LINK),
			Off:       relaOffset,
			Size:      uint64(len(rela) * elfRelaSize),
			Link:      symtabIndex,
			Info:      textIndex,
			Addralign: 8,
			Entsize:   elfRelaSize,
		},
	}

	var buf bytes.Buffer
	write(&buf, header)
	buf.Write(text)
	pad(&buf, symtabOffset)
	write(&buf, symtab)
	buf.Write(strtab)
	buf.Write(shstrtab)
	pad(&buf, relaOffset)
	write(&buf, rela)
	pad(&buf, sectionsOffset)
	write(&buf, sections)
	return buf.Bytes()
}

func align(value, alignment uint64) uint64 {
	return (value + alignment - 1) &^ (alignment - 1)
}

func pad(buf *bytes.Buffer, offset uint64) {
	for uint64(buf.Len()) < offset {
		buf.WriteByte(0)
	}
}

func write(buf *bytes.Buffer, data any) {
	// writing fixed size values to a bytes.Buffer can not fail
	_ = binary.Write(buf, binary.LittleEndian, data)
}
