// Package options contains the program options.
package options

import (
	"strings"

	"github.com/retroenv/retrowasm/internal/abi"
)

// DefaultParameters is the number of integer parameters of translated
// functions.
const DefaultParameters = 1

// Parameters contains file path options.
type Parameters struct {
	Input     string `arg:"positional" usage:"object file to translate from"`
	Output    string `flag:"o" usage:"output directory for .wasm files (default: current directory)"`
	Functions string `flag:"f" usage:"comma separated function names (default: all functions)"`
	ABIConfig string `flag:"abi-config" usage:"calling convention definition file (.toml)"`
}

// Flags contains behavior options.
type Flags struct {
	ABI    string `flag:"abi" usage:"calling convention: sysv, win64" default:"sysv"`
	Params int    `flag:"params" usage:"number of integer parameters" default:"1"`
	List   bool   `flag:"list" usage:"list function symbols and exit"`
	Strip  bool   `flag:"strip" usage:"omit the name section"`
	Verify bool   `flag:"verify" usage:"verify output by compiling the module"`
	Debug  bool   `flag:"debug" usage:"enable debug logging"`
	Quiet  bool   `flag:"q" usage:"quiet mode"`
}

// Program options of the translator.
type Program struct {
	Parameters
	Flags
}

// FunctionNames returns the function names selected for translation, an
// empty result selects all functions.
func (p Program) FunctionNames() []string {
	var names []string
	for _, name := range strings.Split(p.Functions, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Translation defines options to control the translation of a function.
type Translation struct {
	Convention  abi.Convention // maps parameters and the result to registers
	NameSection bool           // include debug names in the module
	Verify      bool           // compile every module after translation
}

// NewTranslation returns a new options instance with default options.
func NewTranslation(convention abi.Convention) Translation {
	return Translation{
		Convention:  convention,
		NameSection: true,
	}
}
