// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/app"
	"github.com/retroenv/retrowasm/internal/cache"
	"github.com/retroenv/retrowasm/internal/options"
	"github.com/retroenv/retrowasm/internal/pipeline"
	"github.com/retroenv/retrowasm/internal/symbols"
)

var errTranslationFailed = errors.New("translation failed")

// ProcessFile handles the complete file processing workflow
func ProcessFile(ctx context.Context, logger *log.Logger, opts options.Program, convention abi.Convention) error {
	return processFile(ctx, logger, opts, convention, os.Stdout)
}

func processFile(ctx context.Context, logger *log.Logger, opts options.Program,
	convention abi.Convention, out io.Writer) error {

	translation := options.NewTranslation(convention)
	translation.NameSection = !opts.Strip
	translation.Verify = opts.Verify

	p := pipeline.New(logger, translation)
	if err := p.Load(opts.Input); err != nil {
		return err
	}

	functions := p.Functions()
	app.PrintInfo(logger, opts, p.Format(), convention, len(functions))

	if opts.List {
		return listFunctions(out, functions)
	}

	names := opts.FunctionNames()
	service := cache.New(logger, p, names...)
	if len(names) == 0 {
		for _, fn := range functions {
			names = append(names, fn.Name)
		}
	}
	if len(names) == 0 {
		logger.Warn("No functions to translate", log.String("file", opts.Input))
		return nil
	}

	if err := service.Warm(ctx, names); err != nil {
		return err
	}
	return writeModules(ctx, logger, service, opts.Output, names)
}

// writeModules writes one module file per function. Failing functions are
// logged and reported as a combined error after all others were written.
func writeModules(ctx context.Context, logger *log.Logger, service *cache.Service,
	outputDir string, names []string) error {

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory %s: %w", outputDir, err)
		}
	}

	failed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := service.Translate(ctx, name)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error("Translating function failed", log.String("name", name), log.Err(err))
			failed++
			continue
		}

		path := GenerateOutputFilename(outputDir, name)
		if err := os.WriteFile(path, result.Module, 0o644); err != nil {
			return fmt.Errorf("writing output file %s: %w", path, err)
		}

		logger.Info("Translated function",
			log.String("name", name),
			log.String("file", path),
			log.Int("size", len(result.Module)),
		)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d functions", errTranslationFailed, failed, len(names))
	}
	return nil
}

func listFunctions(out io.Writer, functions []symbols.Symbol) error {
	for _, fn := range functions {
		size := "unknown"
		if fn.Sized {
			size = strconv.FormatUint(fn.Size, 10)
		}
		if _, err := fmt.Fprintf(out, "%s\t0x%x\t%s\n", fn.Name, fn.Address, size); err != nil {
			return fmt.Errorf("writing function list: %w", err)
		}
	}
	return nil
}

// GenerateOutputFilename generates the module filename for a function.
func GenerateOutputFilename(outputDir, function string) string {
	return filepath.Join(outputDir, function+".wasm")
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	versionString := version
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}

	logger.Info("retrowasm", log.String("version", versionString))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}
