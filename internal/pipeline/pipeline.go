// Package pipeline orchestrates the translation workflow stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/arch"
	"github.com/retroenv/retrowasm/internal/arch/amd64"
	"github.com/retroenv/retrowasm/internal/cfg"
	"github.com/retroenv/retrowasm/internal/detector"
	"github.com/retroenv/retrowasm/internal/instruction"
	"github.com/retroenv/retrowasm/internal/loader"
	"github.com/retroenv/retrowasm/internal/options"
	"github.com/retroenv/retrowasm/internal/structurer"
	"github.com/retroenv/retrowasm/internal/symbols"
	"github.com/retroenv/retrowasm/internal/translator"
	"github.com/retroenv/retrowasm/internal/verification"
	"github.com/retroenv/retrowasm/internal/writer"
)

var (
	// ErrEmptyFunction is returned for functions without code, there is no
	// instruction that could produce a return value.
	ErrEmptyFunction = errors.New("function has no code")

	errNotLoaded = errors.New("no object file loaded")
)

// Result is a translated function.
type Result struct {
	Name         string
	Address      uint64
	Module       []byte // encoded WebAssembly module
	Digest       uint64 // xxhash of the module
	Instructions int
	Blocks       int
	Loops        int
	Dispatch     bool // irreducible control flow uses a dispatch loop
	UsesMemory   bool
}

// Pipeline orchestrates the complete translation workflow.
type Pipeline struct {
	logger     *log.Logger
	loader     *loader.Loader
	arch       arch.Architecture
	translator *translator.Translator
	verifier   *verification.Verifier
	options    options.Translation

	resolver *symbols.Resolver
}

// New creates a new translation pipeline.
func New(logger *log.Logger, opts options.Translation) *Pipeline {
	return &Pipeline{
		logger:     logger,
		loader:     loader.New(),
		arch:       amd64.New(opts.Convention),
		translator: translator.New(logger, opts.Convention),
		verifier:   verification.New(logger),
		options:    opts,
	}
}

// Load reads and parses the object file. It is the only file access of the
// pipeline, functions are resolved from memory afterwards.
func (p *Pipeline) Load(path string) error {
	data, err := p.loader.Load(path)
	if err != nil {
		return fmt.Errorf("loading object file: %w", err)
	}
	return p.LoadBytes(data)
}

// LoadBytes parses an object file that is already in memory.
func (p *Pipeline) LoadBytes(data []byte) error {
	resolver, err := symbols.New(p.logger, data)
	if err != nil {
		return fmt.Errorf("parsing object file: %w", err)
	}
	p.resolver = resolver
	return nil
}

// Format returns the container format of the loaded object file.
func (p *Pipeline) Format() detector.Format {
	if p.resolver == nil {
		return ""
	}
	return p.resolver.Format()
}

// Functions returns the function symbols of the loaded object file.
func (p *Pipeline) Functions() []symbols.Symbol {
	if p.resolver == nil {
		return nil
	}
	return p.resolver.Functions()
}

// Translate resolves the named function and translates it into a module.
func (p *Pipeline) Translate(ctx context.Context, name string) (*Result, error) {
	if p.resolver == nil {
		return nil, errNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fn, err := p.resolver.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("resolving function: %w", err)
	}
	return p.TranslateFunction(ctx, fn)
}

// TranslateFunction translates the machine code of a resolved function.
func (p *Pipeline) TranslateFunction(ctx context.Context, fn symbols.Function) (*Result, error) {
	if len(fn.Code) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrEmptyFunction, fn.Name)
	}

	instructions, err := p.arch.Decode(fn.Code, fn.Address)
	if err != nil {
		return nil, fmt.Errorf("decoding instructions: %w", err)
	}
	markRelocated(instructions, fn.Relocations)

	graph, err := cfg.Build(instructions)
	if err != nil {
		return nil, fmt.Errorf("building control flow graph: %w", err)
	}

	region, err := structurer.Structure(graph)
	if err != nil {
		return nil, fmt.Errorf("structuring control flow: %w", err)
	}

	translated, err := p.translator.Translate(fn.Name, instructions, graph, region)
	if err != nil {
		return nil, fmt.Errorf("translating instructions: %w", err)
	}

	module, err := writer.New(translated, writer.Options{NameSection: p.options.NameSection}).Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding module: %w", err)
	}

	if p.options.Verify {
		params := len(p.arch.Convention().Parameters)
		if err := p.verifier.Verify(ctx, module, fn.Name, params, translated.UsesMemory); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
	}

	result := &Result{
		Name:         fn.Name,
		Address:      fn.Address,
		Module:       module,
		Digest:       xxhash.Sum64(module),
		Instructions: len(instructions),
		Blocks:       len(graph.Blocks),
		Loops:        region.Loops,
		Dispatch:     region.Dispatch,
		UsesMemory:   translated.UsesMemory,
	}

	p.logger.Debug("Translated function",
		log.String("name", fn.Name),
		log.Hex("address", fn.Address),
		log.Int("instructions", result.Instructions),
		log.Int("blocks", result.Blocks),
		log.Int("size", len(module)),
		log.Hex("digest", result.Digest),
	)
	return result, nil
}

// markRelocated flags all instructions that contain a relocated address.
// Both lists are sorted by address.
func markRelocated(instructions []instruction.Instruction, relocations []uint64) {
	i := 0
	for _, address := range relocations {
		for i < len(instructions) && instructions[i].Next() <= address {
			i++
		}
		if i == len(instructions) {
			return
		}
		if instructions[i].Covers(address) {
			instructions[i].Relocated = true
		}
	}
}
