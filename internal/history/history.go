// Package history keeps a CSV log of finished brand uploads under the
// config directory, so operators can see what was merged and when.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/upload"
)

// Entry is one finished upload.
type Entry struct {
	EpisodeID               string
	Time                    time.Time
	Brand                   models.Brand
	File                    string
	Status                  upload.Status
	RowsUploaded            int
	RowsAfterInvalidRemoval int
	InvalidCount            int
	InsertedToBrand         int
	MergeUpdated            int
	MergeInserted           int
	Error                   string
}

var header = []string{
	"EpisodeID", "Time", "Brand", "File", "Status",
	"RowsUploaded", "RowsAfterInvalidRemoval", "InvalidCount", "InsertedToBrand",
	"MergeUpdated", "MergeInserted", "ErrorMessage",
}

// FromSession records a terminal session. fileName is passed separately
// because the session drops its file once the upload resolves.
func FromSession(s upload.Session, fileName string, at time.Time) Entry {
	e := Entry{
		EpisodeID: s.EpisodeID,
		Time:      at.UTC(),
		Brand:     s.Brand,
		File:      fileName,
		Status:    s.Status,
	}
	if s.Result != nil {
		e.RowsUploaded = s.Result.RowsUploaded
		e.RowsAfterInvalidRemoval = s.Result.RowsAfterInvalidRemoval
		e.InvalidCount = s.Result.InvalidCount
		e.InsertedToBrand = s.Result.InsertedToBrand
		e.MergeUpdated, e.MergeInserted = s.Result.MergeCounts()
	}
	if s.Error != nil {
		e.Error = s.Error.Message
	}
	return e
}

// Store reads and appends history entries.
type Store struct {
	path       string
	maxEntries int
	mu         sync.Mutex
}

// NewStore creates a store at path, keeping at most HistoryMaxEntries.
func NewStore(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return &Store{path: absPath, maxEntries: constants.HistoryMaxEntries}, nil
}

// Path returns the history file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns every entry, oldest first. A missing file is empty history.
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) ([]Entry, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

// Append adds e and drops the oldest entries beyond the cap.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}
	return s.saveLocked(entries)
}

func (s *Store) loadLocked() ([]Entry, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	startIdx := 0
	if len(records) > 0 && len(records[0]) > 0 && records[0][0] == header[0] {
		startIdx = 1
	}

	entries := make([]Entry, 0, len(records)-startIdx)
	for _, rec := range records[startIdx:] {
		if len(rec) < len(header) {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, rec[1])
		entries = append(entries, Entry{
			EpisodeID:               rec[0],
			Time:                    ts,
			Brand:                   models.Brand(rec[2]),
			File:                    rec[3],
			Status:                  upload.Status(rec[4]),
			RowsUploaded:            atoi(rec[5]),
			RowsAfterInvalidRemoval: atoi(rec[6]),
			InvalidCount:            atoi(rec[7]),
			InsertedToBrand:         atoi(rec[8]),
			MergeUpdated:            atoi(rec[9]),
			MergeInserted:           atoi(rec[10]),
			Error:                   rec[11],
		})
	}
	return entries, nil
}

func (s *Store) saveLocked(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.EpisodeID,
			e.Time.Format(time.RFC3339),
			string(e.Brand),
			e.File,
			string(e.Status),
			strconv.Itoa(e.RowsUploaded),
			strconv.Itoa(e.RowsAfterInvalidRemoval),
			strconv.Itoa(e.InvalidCount),
			strconv.Itoa(e.InsertedToBrand),
			strconv.Itoa(e.MergeUpdated),
			strconv.Itoa(e.MergeInserted),
			e.Error,
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
