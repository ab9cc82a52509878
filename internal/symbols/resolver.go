// Package symbols resolves function symbols of object files to their load
// address and machine code.
package symbols

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"sort"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/retrowasm/internal/detector"
)

var (
	// ErrSymbolNotFound is returned when no code symbol has the requested name.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrSizeUnknown is returned when the symbol carries no size metadata.
	ErrSizeUnknown = errors.New("symbol size unknown")
	// ErrSectionNotFound is returned when no executable section contains
	// the function.
	ErrSectionNotFound = errors.New("containing section not found")
	// ErrUnsupportedFormat is returned for unsupported containers and
	// architectures.
	ErrUnsupportedFormat = detector.ErrUnsupportedFormat
)

// Function is the raw machine code of a single function.
type Function struct {
	Name    string
	Address uint64
	Code    []byte

	// Relocations lists the addresses inside the code that the linker
	// patches. The bytes at these addresses are not final.
	Relocations []uint64
}

// Symbol describes a function symbol of the object file.
type Symbol struct {
	Name    string
	Address uint64
	Size    uint64
	Sized   bool // false if the container carries no size metadata
}

type symbol struct {
	name    string
	address uint64
	size    uint64
	sized   bool // size metadata is available
	section int  // index into sections, -1 if unknown
}

type section struct {
	name        string
	address     uint64
	executable  bool
	data        []byte
	relocations []uint64 // sorted absolute addresses
}

// Resolver resolves function symbols of a parsed object file. It only reads
// the data it was created with.
type Resolver struct {
	logger   *log.Logger
	format   detector.Format
	symbols  []symbol
	sections []section
}

// New parses the object file data.
func New(logger *log.Logger, data []byte) (*Resolver, error) {
	format, err := detector.New(logger).Detect(data)
	if err != nil {
		return nil, fmt.Errorf("detecting object file format: %w", err)
	}

	r := &Resolver{
		logger: logger,
		format: format,
	}

	switch format {
	case detector.ELF:
		err = r.parseELF(data)
	case detector.MachO:
		err = r.parseMachO(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Parsed object file",
		log.String("format", string(format)),
		log.Int("sections", len(r.sections)),
		log.Int("functions", len(r.symbols)),
	)
	return r, nil
}

// Format returns the container format of the object file.
func (r *Resolver) Format() detector.Format {
	return r.format
}

// Resolve returns the machine code and load address of the function with
// the exact given name. A symbol with a size of zero resolves to a function
// without code.
func (r *Resolver) Resolve(name string) (Function, error) {
	sym, ok := r.lookup(name)
	if !ok {
		return Function{}, fmt.Errorf("%w: '%s'", ErrSymbolNotFound, name)
	}
	if !sym.sized {
		return Function{}, fmt.Errorf("%w: '%s'", ErrSizeUnknown, name)
	}

	sec, ok := r.containingSection(sym)
	if !ok {
		return Function{}, fmt.Errorf("%w: '%s' at 0x%x with size %d", ErrSectionNotFound, name, sym.address, sym.size)
	}

	start := sym.address - sec.address
	end := start + sym.size
	fn := Function{
		Name:        name,
		Address:     sym.address,
		Code:        sec.data[start:end:end],
		Relocations: sec.relocationsIn(sym.address, sym.size),
	}

	r.logger.Debug("Resolved function",
		log.String("name", name),
		log.Hex("address", sym.address),
		log.Int("size", len(fn.Code)),
		log.Int("relocations", len(fn.Relocations)),
		log.String("section", sec.name),
	)
	return fn, nil
}

// Functions returns all function symbols sorted by name. Names that appear
// multiple times are listed once. Symbols without size metadata, as in
// Mach-O files, are listed unsized and fail to resolve.
func (r *Resolver) Functions() []Symbol {
	seen := set.New[string]()
	var result []Symbol

	for _, sym := range r.symbols {
		if seen.Contains(sym.name) {
			continue
		}
		seen.Add(sym.name)
		result = append(result, Symbol{
			Name:    sym.name,
			Address: sym.address,
			Size:    sym.size,
			Sized:   sym.sized,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// lookup returns the first code symbol with the given name.
func (r *Resolver) lookup(name string) (symbol, bool) {
	for _, sym := range r.symbols {
		if sym.name == name {
			return sym, true
		}
	}
	return symbol{}, false
}

// containingSection returns the executable section that contains the whole
// function. The section referenced by the symbol is preferred, as sections
// of relocatable objects all start at address 0.
func (r *Resolver) containingSection(sym symbol) (section, bool) {
	if sym.section >= 0 && sym.section < len(r.sections) {
		sec := r.sections[sym.section]
		if sec.contains(sym.address, sym.size) {
			return sec, true
		}
	}

	for _, sec := range r.sections {
		if sec.contains(sym.address, sym.size) {
			return sec, true
		}
	}
	return section{}, false
}

func (s section) contains(address, size uint64) bool {
	if !s.executable || address < s.address {
		return false
	}
	offset := address - s.address
	length := uint64(len(s.data))
	return offset <= length && size <= length-offset
}

// relocationsIn returns the relocated addresses in [address, address+size).
func (s section) relocationsIn(address, size uint64) []uint64 {
	first := sort.Search(len(s.relocations), func(i int) bool {
		return s.relocations[i] >= address
	})
	last := sort.Search(len(s.relocations), func(i int) bool {
		return s.relocations[i] >= address+size
	})
	if first == last {
		return nil
	}
	return append([]uint64(nil), s.relocations[first:last]...)
}

func (r *Resolver) parseELF(data []byte) error {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing ELF file: %w", err)
	}
	if f.Machine != elf.EM_X86_64 {
		return fmt.Errorf("%w: ELF machine %s", ErrUnsupportedFormat, f.Machine)
	}

	for _, s := range f.Sections {
		sec := section{
			name:       s.Name,
			address:    s.Addr,
			executable: s.Flags&elf.SHF_ALLOC != 0 && s.Flags&elf.SHF_EXECINSTR != 0,
		}
		if sec.executable && s.Type != elf.SHT_NOBITS {
			sec.data, err = s.Data()
			if err != nil {
				return fmt.Errorf("reading section %s: %w", s.Name, err)
			}
		}
		r.sections = append(r.sections, sec)
	}

	if err := r.parseELFRelocations(f); err != nil {
		return err
	}

	syms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil
		}
		return fmt.Errorf("reading ELF symbols: %w", err)
	}

	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Section == elf.SHN_UNDEF || s.Section >= elf.SHN_LORESERVE || int(s.Section) >= len(r.sections) {
			continue // imported or absolute
		}

		address := s.Value
		if f.Type == elf.ET_REL {
			address += r.sections[s.Section].address
		}
		r.symbols = append(r.symbols, symbol{
			name:    s.Name,
			address: address,
			size:    s.Size,
			sized:   true,
			section: int(s.Section),
		})
	}
	return nil
}

// parseELFRelocations records the relocated addresses of all executable
// sections. Offsets of relocatable objects are section relative, other
// object types use virtual addresses.
func (r *Resolver) parseELFRelocations(f *elf.File) error {
	for _, s := range f.Sections {
		var entrySize uint64
		switch s.Type {
		case elf.SHT_RELA:
			entrySize = elfRelaSize
		case elf.SHT_REL:
			entrySize = elfRelSize
		default:
			continue
		}
		if int(s.Info) >= len(r.sections) || !r.sections[s.Info].executable {
			continue
		}
		if s.Entsize != 0 {
			entrySize = s.Entsize
		}

		data, err := s.Data()
		if err != nil {
			return fmt.Errorf("reading section %s: %w", s.Name, err)
		}

		target := &r.sections[s.Info]
		for offset := uint64(0); offset+entrySize <= uint64(len(data)); offset += entrySize {
			address := f.ByteOrder.Uint64(data[offset:])
			if f.Type == elf.ET_REL {
				address += target.address
			}
			target.relocations = append(target.relocations, address)
		}
	}

	for i := range r.sections {
		relocations := r.sections[i].relocations
		sort.Slice(relocations, func(a, b int) bool { return relocations[a] < relocations[b] })
	}
	return nil
}

// ELF64 relocation entry sizes.
const (
	elfRelaSize = 24
	elfRelSize  = 16
)

// Mach-O nlist type bits and section attributes.
const (
	machoStab               = 0xe0
	machoTypeMask           = 0x0e
	machoTypeSection        = 0x0e
	machoPureInstructions   = 0x80000000
	machoSomeInstructions   = 0x00000400
	machoInstructionsFilter = machoPureInstructions | machoSomeInstructions
)

func (r *Resolver) parseMachO(data []byte) error {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing Mach-O file: %w", err)
	}
	if f.Cpu != macho.CpuAmd64 {
		return fmt.Errorf("%w: Mach-O cpu %s", ErrUnsupportedFormat, f.Cpu)
	}

	for _, s := range f.Sections {
		sec := section{
			name:       s.Seg + "," + s.Name,
			address:    s.Addr,
			executable: s.Flags&machoInstructionsFilter != 0,
		}
		if sec.executable {
			sec.data, err = s.Data()
			if err != nil {
				return fmt.Errorf("reading section %s: %w", sec.name, err)
			}
		}
		r.sections = append(r.sections, sec)
	}

	if f.Symtab == nil {
		return nil
	}
	for _, s := range f.Symtab.Syms {
		if s.Type&machoStab != 0 || s.Type&machoTypeMask != machoTypeSection || s.Sect == 0 {
			continue
		}
		idx := int(s.Sect) - 1
		if idx >= len(r.sections) || !r.sections[idx].executable {
			continue
		}
		r.symbols = append(r.symbols, symbol{
			name:    s.Name,
			address: s.Value,
			section: idx,
		})
	}
	return nil
}
