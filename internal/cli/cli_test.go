package cli

import (
	"errors"
	"os"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrowasm/internal/options"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want options.Program
	}{
		{
			name: "default flags",
			args: []string{"prog", "test.o"},
			want: options.Program{
				Parameters: options.Parameters{Input: "test.o"},
				Flags:      options.Flags{ABI: "sysv", Params: 1},
			},
		},
		{
			name: "functions and output",
			args: []string{"prog", "-f", "add_one,is_positive", "-o", "out", "test.o"},
			want: options.Program{
				Parameters: options.Parameters{Input: "test.o", Output: "out", Functions: "add_one,is_positive"},
				Flags:      options.Flags{ABI: "sysv", Params: 1},
			},
		},
		{
			name: "calling convention",
			args: []string{"prog", "-abi", "WIN64", "-params", "2", "-strip", "test.o"},
			want: options.Program{
				Parameters: options.Parameters{Input: "test.o"},
				Flags:      options.Flags{ABI: "win64", Params: 2, Strip: true},
			},
		},
		{
			name: "calling convention file",
			args: []string{"prog", "-abi-config", "abi.toml", "-abi", "custom", "test.o"},
			want: options.Program{
				Parameters: options.Parameters{Input: "test.o", ABIConfig: "abi.toml"},
				Flags:      options.Flags{ABI: "custom", Params: 1},
			},
		},
		{
			name: "list",
			args: []string{"prog", "-list", "-q", "test.o"},
			want: options.Program{
				Parameters: options.Parameters{Input: "test.o"},
				Flags:      options.Flags{ABI: "sysv", Params: 1, List: true, Quiet: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			t.Cleanup(func() { os.Args = oldArgs })

			os.Args = tt.args

			got, err := ParseFlags()
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		usageError bool
	}{
		{
			name:       "missing object file",
			args:       []string{"prog", "-debug"},
			usageError: true,
		},
		{
			name:       "flag after object file",
			args:       []string{"prog", "test.o", "-debug"},
			usageError: true,
		},
		{
			name: "unknown calling convention",
			args: []string{"prog", "-abi", "cdecl", "test.o"},
		},
		{
			name: "negative parameter count",
			args: []string{"prog", "-params", "-1", "test.o"},
		},
		{
			name: "list and verify",
			args: []string{"prog", "-list", "-verify", "test.o"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			t.Cleanup(func() { os.Args = oldArgs })

			os.Args = tt.args

			_, err := ParseFlags()
			assert.Error(t, err)

			var usageErr *UsageError
			assert.Equal(t, tt.usageError, errors.As(err, &usageErr))
		})
	}
}

func TestValidateOptionCombinations(t *testing.T) {
	tests := []struct {
		name        string
		opts        options.Program
		expectError bool
	}{
		{
			name:        "no conflict",
			opts:        options.Program{},
			expectError: false,
		},
		{
			name:        "verify only",
			opts:        options.Program{Flags: options.Flags{Verify: true}},
			expectError: false,
		},
		{
			name: "list and functions",
			opts: options.Program{
				Parameters: options.Parameters{Functions: "add_one"},
				Flags:      options.Flags{List: true},
			},
			expectError: true,
		},
		{
			name:        "list and verify",
			opts:        options.Program{Flags: options.Flags{List: true, Verify: true}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOptionCombinations(tt.opts)
			if tt.expectError {
				assert.True(t, err != nil)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFunctionNames(t *testing.T) {
	opts := options.Program{Parameters: options.Parameters{Functions: " add_one, ,is_positive,"}}
	assert.Equal(t, []string{"add_one", "is_positive"}, opts.FunctionNames())

	opts.Functions = ""
	assert.Equal(t, 0, len(opts.FunctionNames()))
}
