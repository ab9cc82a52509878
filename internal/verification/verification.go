// Package verification verifies that generated modules are valid and
// executable by a WebAssembly runtime.
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/writer"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

var (
	errMissingExport   = errors.New("function export missing")
	errSignature       = errors.New("unexpected function signature")
	errMissingMemory   = errors.New("memory export missing")
	errResultCount     = errors.New("unexpected result count")
	errMemoryTooSmall  = errors.New("memory too small")
	errMemoryNotExport = errors.New("module does not export memory")
)

// Verifier compiles and executes modules using an interpreter runtime.
type Verifier struct {
	logger *log.Logger
}

// New creates a new module verifier.
func New(logger *log.Logger) *Verifier {
	return &Verifier{
		logger: logger,
	}
}

// Verify compiles the module and checks that it exports the named function
// with params i64 parameters and a single i64 result. If the module uses
// memory it has to be exported as well.
func (v *Verifier) Verify(ctx context.Context, module []byte, name string, params int, usesMemory bool) error {
	r := v.runtime(ctx)
	defer func() { _ = r.Close(ctx) }()

	compiled, err := r.CompileModule(ctx, module)
	if err != nil {
		return fmt.Errorf("compiling module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	fn, ok := compiled.ExportedFunctions()[name]
	if !ok {
		return fmt.Errorf("%w: '%s'", errMissingExport, name)
	}
	if err := checkSignature(fn, params); err != nil {
		return err
	}

	if _, ok := compiled.ExportedMemories()[writer.MemoryExportName]; ok != usesMemory {
		if usesMemory {
			return errMissingMemory
		}
		return fmt.Errorf("%w: unexpected memory export", errSignature)
	}

	v.logger.Debug("Verified module", log.String("name", name), log.Int("size", len(module)))
	return nil
}

// Invoke instantiates the module, copies memory into its linear memory if
// given and calls the exported function with the arguments.
func (v *Verifier) Invoke(ctx context.Context, module []byte, name string, memory []byte,
	args ...uint64) (uint64, error) {

	r := v.runtime(ctx)
	defer func() { _ = r.Close(ctx) }()

	mod, err := r.Instantiate(ctx, module)
	if err != nil {
		return 0, fmt.Errorf("instantiating module: %w", err)
	}

	if memory != nil {
		mem := mod.ExportedMemory(writer.MemoryExportName)
		if mem == nil {
			return 0, errMemoryNotExport
		}
		if !mem.Write(0, memory) {
			return 0, fmt.Errorf("%w: %d bytes", errMemoryTooSmall, len(memory))
		}
	}

	fn := mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("%w: '%s'", errMissingExport, name)
	}

	results, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("calling function '%s': %w", name, err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("%w: %d", errResultCount, len(results))
	}
	return results[0], nil
}

// runtime returns an interpreter runtime, compilation to native code is not
// worth it for a single call.
func (v *Verifier) runtime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
}

func checkSignature(fn api.FunctionDefinition, params int) error {
	paramTypes := fn.ParamTypes()
	if len(paramTypes) != params {
		return fmt.Errorf("%w: %d parameters instead of %d", errSignature, len(paramTypes), params)
	}
	for _, typ := range paramTypes {
		if typ != api.ValueTypeI64 {
			return fmt.Errorf("%w: parameter type %s", errSignature, api.ValueTypeName(typ))
		}
	}

	resultTypes := fn.ResultTypes()
	if len(resultTypes) != 1 || resultTypes[0] != api.ValueTypeI64 {
		return fmt.Errorf("%w: results %v", errSignature, resultTypes)
	}
	return nil
}
