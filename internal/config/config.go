// Package config handles application configuration and setup
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/arch/amd64"
	"github.com/retroenv/retrowasm/internal/instruction"
	"github.com/retroenv/retrowasm/internal/options"
)

var errUnknownRegister = errors.New("unknown general purpose register")

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// ConventionFile is the TOML definition of a custom calling convention.
//
//	name = "custom"
//	parameters = ["rdi", "rsi"]
//	return = "rax"
//	frame = ["rsp", "rbp"]
type ConventionFile struct {
	Name       string   `toml:"name"`
	Parameters []string `toml:"parameters"`
	Return     string   `toml:"return"`
	Frame      []string `toml:"frame"`
}

// CreateConvention returns the calling convention selected by the options.
// A convention file takes precedence over the named convention.
func CreateConvention(opts options.Program) (abi.Convention, error) {
	var (
		convention abi.Convention
		err        error
	)
	if opts.ABIConfig != "" {
		convention, err = LoadConvention(opts.ABIConfig)
	} else {
		convention, err = amd64.Convention(opts.ABI)
	}
	if err != nil {
		return abi.Convention{}, err
	}

	convention, err = convention.WithParameters(opts.Params)
	if err != nil {
		return abi.Convention{}, fmt.Errorf("selecting parameters: %w", err)
	}
	return convention, nil
}

// LoadConvention reads a calling convention definition file.
func LoadConvention(path string) (abi.Convention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.Convention{}, fmt.Errorf("reading calling convention file %s: %w", path, err)
	}

	convention, err := ParseConvention(data)
	if err != nil {
		return abi.Convention{}, fmt.Errorf("parsing calling convention file %s: %w", path, err)
	}
	return convention, nil
}

// ParseConvention parses a TOML calling convention definition. Unknown keys
// and registers are rejected. The stack frame registers default to rsp and
// rbp.
func ParseConvention(data []byte) (abi.Convention, error) {
	var file ConventionFile
	meta, err := toml.Decode(string(data), &file)
	if err != nil {
		return abi.Convention{}, fmt.Errorf("decoding toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return abi.Convention{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	convention := abi.Convention{
		Name: file.Name,
	}
	if convention.Name == "" {
		convention.Name = "custom"
	}

	if convention.Parameters, err = registers(file.Parameters); err != nil {
		return abi.Convention{}, fmt.Errorf("parameters: %w", err)
	}

	if file.Return != "" {
		ret, err := registers([]string{file.Return})
		if err != nil {
			return abi.Convention{}, fmt.Errorf("return: %w", err)
		}
		convention.Return = ret[0]
	}

	if file.Frame == nil {
		file.Frame = []string{string(amd64.RSP), string(amd64.RBP)}
	}
	if convention.Frame, err = registers(file.Frame); err != nil {
		return abi.Convention{}, fmt.Errorf("frame: %w", err)
	}

	if err := convention.Validate(); err != nil {
		return abi.Convention{}, fmt.Errorf("validating calling convention: %w", err)
	}
	return convention, nil
}

func registers(names []string) ([]instruction.RegisterID, error) {
	result := make([]instruction.RegisterID, 0, len(names))
	for _, name := range names {
		id := instruction.RegisterID(strings.ToLower(strings.TrimSpace(name)))
		if !amd64.IsGeneralPurpose(id) {
			return nil, fmt.Errorf("%w '%s'", errUnknownRegister, name)
		}
		result = append(result, id)
	}
	return result, nil
}
