package logging

import (
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileWriter appends JSON log lines to a size-rotated file.
type FileWriter struct {
	mu   sync.Mutex
	file *lumberjack.Logger
}

// NewFileWriter creates a rotating writer for path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		},
	}
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Write(p)
}

// Close closes the current log file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
