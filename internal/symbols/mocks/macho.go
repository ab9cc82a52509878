package mocks

import (
	"bytes"
	"debug/macho"
)

const (
	machoHeaderSize  = 32
	machoSegmentSize = 72
	machoSectionSize = 80
	machoSymtabSize  = 24
	machoNlistSize   = 16

	machoSectionTypeSection = 0x0e // N_SECT
	machoExternal           = 0x01 // N_EXT
	machoPureInstructions   = 0x80000000
	machoSomeInstructions   = 0x00000400
)

// BuildMachO returns an x86-64 Mach-O 64 object with a single __TEXT,__text
// section at textAddress containing the code of all defined functions.
// Mach-O symbols carry no size information.
func BuildMachO(textAddress uint64, functions ...Function) []byte {
	var text []byte
	strtab := []byte{0}
	var symbols []macho.Nlist64

	for _, fn := range functions {
		sym := macho.Nlist64{
			Name: uint32(len(strtab)),
			Type: machoSectionTypeSection | machoExternal,
			Sect: 1,
		}
		strtab = append(strtab, fn.Name...)
		strtab = append(strtab, 0)

		if fn.Undefined {
			sym.Type = machoExternal
			sym.Sect = 0
		} else {
			sym.Value = textAddress + uint64(len(text))
			text = append(text, fn.Code...)
		}
		symbols = append(symbols, sym)
	}

	commandsSize := uint32(machoSegmentSize + machoSectionSize + machoSymtabSize)
	textOffset := uint32(machoHeaderSize) + commandsSize
	symbolsOffset := uint32(align(uint64(textOffset)+uint64(len(text)), 8))
	strtabOffset := symbolsOffset + uint32(len(symbols)*machoNlistSize)

	header := macho.FileHeader{
		Magic:  macho.Magic64,
		Cpu:    macho.CpuAmd64,
		SubCpu: 3,
		Type:   macho.TypeObj,
		Ncmd:   2,
		Cmdsz:  commandsSize,
	}

	segment := macho.Segment64{
		Cmd:     macho.LoadCmdSegment64,
		Len:     machoSegmentSize + machoSectionSize,
		Addr:    textAddress,
		Memsz:   uint64(len(text)),
		Offset:  uint64(textOffset),
		Filesz:  uint64(len(text)),
		Maxprot: 7,
		Prot:    7,
		Nsect:   1,
	}

	section := macho.Section64{
		Addr:   textAddress,
		Size:   uint64(len(text)),
		Offset: textOffset,
		Flags:  machoPureInstructions | machoSomeInstructions,
	}
	copy(section.Name[:], "__text")
	copy(section.Seg[:], "__TEXT")

	symtab := macho.SymtabCmd{
		Cmd:     macho.LoadCmdSymtab,
		Len:     machoSymtabSize,
		Symoff:  symbolsOffset,
		Nsyms:   uint32(len(symbols)),
		Stroff:  strtabOffset,
		Strsize: uint32(len(strtab)),
	}

	var buf bytes.Buffer
	write(&buf, header)
	write(&buf, uint32(0)) // reserved field of the 64 bit header
	write(&buf, segment)
	write(&buf, section)
	write(&buf, symtab)
	buf.Write(text)
	pad(&buf, uint64(symbolsOffset))
	if len(symbols) > 0 {
		write(&buf, symbols)
	}
	buf.Write(strtab)
	return buf.Bytes()
}
