package detector

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestDetect(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)

	tests := []struct {
		name       string
		data       []byte
		wantFormat Format
		wantErr    bool
	}{
		{
			name:       "ELF64",
			data:       []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0},
			wantFormat: ELF,
		},
		{
			name:    "ELF32",
			data:    []byte{0x7f, 'E', 'L', 'F', 1, 1, 1, 0},
			wantErr: true,
		},
		{
			name:    "truncated ELF",
			data:    []byte{0x7f, 'E', 'L', 'F'},
			wantErr: true,
		},
		{
			name:       "Mach-O 64",
			data:       []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07, 0x00, 0x00, 0x01},
			wantFormat: MachO,
		},
		{
			name:       "Mach-O 64 big endian",
			data:       []byte{0xfe, 0xed, 0xfa, 0xcf},
			wantFormat: MachO,
		},
		{
			name:    "PE",
			data:    []byte{'M', 'Z', 0x90, 0x00},
			wantErr: true,
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Detect(tt.data)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedFormat))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantFormat, got)
		})
	}
}
