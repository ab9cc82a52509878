// Package cli handles command line interface logic
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/retroenv/retrowasm/internal/arch/amd64"
	"github.com/retroenv/retrowasm/internal/options"
)

// ParseFlags parses command line flags and returns the program options
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || len(args) == 0 {
		return opts, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}

	if err := normalizeOptions(&opts); err != nil {
		return opts, err
	}

	if err := validateOptionCombinations(opts); err != nil {
		return opts, err
	}

	opts.Input = args[0]
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: retrowasm [options] <object file>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after object file, please pass the object file as last argument", arg),
			}
		}
	}
	return nil
}

// normalizeOptions normalizes and validates option values
func normalizeOptions(opts *options.Program) error {
	opts.ABI = strings.ToLower(opts.ABI)

	if opts.ABIConfig == "" {
		validConventions := []string{amd64.SystemV, amd64.Win64}
		valid := false
		for _, name := range validConventions {
			if opts.ABI == name {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unsupported calling convention: %s. Valid options: %s",
				opts.ABI, strings.Join(validConventions, ", "))
		}
	}

	if opts.Params < 0 {
		return fmt.Errorf("invalid parameter count %d", opts.Params)
	}
	return nil
}

// validateOptionCombinations checks for options that can not be combined
func validateOptionCombinations(opts options.Program) error {
	if opts.List && opts.Verify {
		return errors.New("listing functions can not be combined with -verify")
	}
	if opts.List && opts.Functions != "" {
		return errors.New("listing functions can not be combined with -f")
	}
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Output, "o", "", "name of the output directory for the .wasm files, current directory if no name given")
	flags.StringVar(&opts.Functions, "f", "", "comma separated names of the functions to translate, all functions if no name given")
	flags.StringVar(&opts.ABIConfig, "abi-config", "", "name of a .toml file defining a custom calling convention")
	flags.StringVar(&opts.ABI, "abi", amd64.SystemV, "calling convention of the functions (sysv/win64)")
	flags.IntVar(&opts.Params, "params", options.DefaultParameters, "number of integer parameters of the functions")
	flags.BoolVar(&opts.List, "list", false, "list the function symbols of the object file")
	flags.BoolVar(&opts.Strip, "strip", false, "do not include function and register names in the modules")
	flags.BoolVar(&opts.Verify, "verify", false, "verify the generated modules by compiling them with a WebAssembly runtime")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
