// Package loader handles object file loading operations.
package loader

import (
	"fmt"
	"io"
	"os"
)

// Loader handles loading object files from disk.
type Loader struct{}

// New creates a new object file loader.
func New() *Loader {
	return &Loader{}
}

// Load reads the whole object file. It is the only file access of a
// translation run, all functions are resolved from the returned bytes.
func (l *Loader) Load(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return l.LoadFromReader(file)
}

// LoadFromReader reads the object file from a reader.
func (l *Loader) LoadFromReader(reader io.Reader) ([]byte, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading object file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("reading object file: %w", io.ErrUnexpectedEOF)
	}
	return data, nil
}
