package loader

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestLoad(t *testing.T) {
	t.Run("load object file", func(t *testing.T) {
		data := []byte{0x7f, 'E', 'L', 'F', 2}
		tmpFile := createTempFile(t, data)

		loader := New()
		got, err := loader.Load(tmpFile)
		assert.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("error on non-existent file", func(t *testing.T) {
		loader := New()
		_, err := loader.Load("/nonexistent/file.o")
		assert.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("error on empty file", func(t *testing.T) {
		tmpFile := createTempFile(t, nil)

		loader := New()
		_, err := loader.Load(tmpFile)
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
}

func TestLoadFromReader(t *testing.T) {
	data := []byte{0xcf, 0xfa, 0xed, 0xfe}
	loader := New()

	got, err := loader.LoadFromReader(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func createTempFile(t *testing.T, data []byte) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test.o")
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return tmpFile
}
