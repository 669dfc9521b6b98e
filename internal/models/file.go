package models

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileHandle is an opaque reference to the bytes of a chosen file.
// The orchestrator never looks inside; it only forwards the content.
type FileHandle interface {
	// Name is the file name reported in the multipart form.
	Name() string
	// Open returns a fresh reader over the file contents.
	Open() (io.ReadCloser, error)
}

// LocalFile is a FileHandle backed by a path on disk.
type LocalFile struct {
	Path string
}

// NewLocalFile checks that path names a regular file and wraps it.
func NewLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{Path: path}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.Path) }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// MemoryFile is a FileHandle over an in-memory buffer.
type MemoryFile struct {
	FileName string
	Data     []byte
}

func (f *MemoryFile) Name() string { return f.FileName }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
