// Package detector handles object file container detection.
package detector

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// ErrUnsupportedFormat is returned for containers that are neither ELF nor
// Mach-O.
var ErrUnsupportedFormat = errors.New("unsupported object file format")

// Format is an object file container format.
type Format string

// Supported container formats.
const (
	ELF   Format = "elf"
	MachO Format = "macho"
)

var (
	elfMagic     = []byte{0x7f, 'E', 'L', 'F'}
	machO64Magic = []byte{0xcf, 0xfa, 0xed, 0xfe} // MH_MAGIC_64, little endian
	machO64Swap  = []byte{0xfe, 0xed, 0xfa, 0xcf} // MH_CIGAM_64
)

const (
	elfClassIndex = 4
	elfClass64    = 2
)

// Detector detects the container format of object files.
type Detector struct {
	logger *log.Logger
}

// New creates a new format detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the container format from the magic bytes at the start
// of the data. Only 64 bit containers are supported.
func (d *Detector) Detect(data []byte) (Format, error) {
	format, err := detect(data)
	if err != nil {
		return "", err
	}
	d.logger.Debug("Detected object file format", log.String("format", string(format)))
	return format, nil
}

func detect(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, elfMagic):
		if len(data) <= elfClassIndex || data[elfClassIndex] != elfClass64 {
			return "", fmt.Errorf("%w: 32 bit ELF", ErrUnsupportedFormat)
		}
		return ELF, nil

	case bytes.HasPrefix(data, machO64Magic), bytes.HasPrefix(data, machO64Swap):
		return MachO, nil

	default:
		return "", ErrUnsupportedFormat
	}
}
