package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rvcleanup/rv-cleanup/internal/progress"
)

// LocalSink writes the export to a file, replacing it atomically.
type LocalSink struct {
	path     string
	reporter progress.Reporter
}

// NewLocalSink creates a sink for path. reporter sees bytes written.
func NewLocalSink(path string, reporter progress.Reporter) *LocalSink {
	return &LocalSink{path: path, reporter: progress.OrNoOp(reporter)}
}

func (s *LocalSink) Write(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	s.reporter.Start(int64(len(data)), "Saving")
	if _, err := io.Copy(tmp, progress.NewProgressReader(bytes.NewReader(data), s.reporter)); err != nil {
		tmp.Close()
		s.reporter.Error(err)
		return "", fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}
	s.reporter.Finish()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return s.path, nil
	}
	return abs, nil
}
