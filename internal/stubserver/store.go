package stubserver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rvcleanup/rv-cleanup/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var errMissingEmailColumn = errors.New("missing 'email' column")

// Store is the in-memory registry behind the stub service.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	master  map[string]*models.MasterRecord
	invalid []models.InvalidRecord
	known   map[string]bool
}

// NewStore creates an empty store. now defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:    now,
		master: make(map[string]*models.MasterRecord),
		known:  make(map[string]bool),
	}
}

// SeedMaster inserts records as-is, replacing existing addresses.
func (s *Store) SeedMaster(records ...models.MasterRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		rec.Email = normalizeEmail(rec.Email)
		s.master[rec.Email] = &rec
	}
}

// SeedInvalid marks addresses as known-invalid.
func (s *Store) SeedInvalid(brand string, emails ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range emails {
		s.addInvalidLocked(normalizeEmail(e), brand)
	}
}

func (s *Store) addInvalidLocked(email, brand string) bool {
	if email == "" || s.known[email] {
		return false
	}
	s.known[email] = true
	s.invalid = append(s.invalid, models.InvalidRecord{Email: email, Brand: brand})
	return true
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

type csvRow map[string]string

// readCSV returns rows keyed by lower-cased header. The email column is required.
func readCSV(r io.Reader) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errMissingEmailColumn
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make([]string, len(header))
	hasEmail := false
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[i] = h
		if h == "email" {
			hasEmail = true
		}
	}
	if !hasEmail {
		return nil, errMissingEmailColumn
	}

	var rows []csvRow
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(csvRow, len(cols))
		for i, v := range rec {
			if i < len(cols) {
				row[cols[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type mergeOutcome struct {
	rowsUploaded    int
	rowsKept        int
	invalid         []string
	insertedToBrand int
	updated         int
	inserted        int
}

// mergeBrand validates rows, drops invalid and known-bad addresses, and
// upserts the rest into the master registry under brand.
func (s *Store) mergeBrand(brand models.Brand, rows []csvRow) mergeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := mergeOutcome{rowsUploaded: len(rows)}
	seen := make(map[string]bool)
	now := s.now().UTC()

	for _, row := range rows {
		email := normalizeEmail(row["email"])
		if !emailPattern.MatchString(email) || s.known[email] {
			out.invalid = append(out.invalid, email)
			continue
		}
		out.rowsKept++
		if seen[email] {
			continue
		}
		seen[email] = true
		out.insertedToBrand++

		rec, exists := s.master[email]
		if exists {
			out.updated++
		} else {
			rec = &models.MasterRecord{Email: email}
			s.master[email] = rec
			out.inserted++
		}
		applyBrand(rec, brand, row)
		rec.LastUpdated = models.Timestamp{Time: now}
	}
	return out
}

func applyBrand(rec *models.MasterRecord, brand models.Brand, row csvRow) {
	if rec.CardNumber == "" {
		rec.CardNumber = row["card_no"]
	}
	if rec.Name == "" {
		rec.Name = row["name"]
	}
	if rec.Phone == "" {
		rec.Phone = row["phone"]
	}
	segment := row["segment"]
	switch brand {
	case models.BrandTonyRomas:
		rec.IsTR = true
		if segment != "" {
			rec.SegmentTR = segment
		}
	case models.BrandManhattanFishMarket:
		rec.IsMFM = true
		if segment != "" {
			rec.SegmentMFM = segment
		}
	case models.BrandNewYorkSteakShack:
		rec.IsNYSS = true
		if segment != "" {
			rec.SegmentNYSS = segment
		}
	}
}

// addInvalid records every distinct address in rows under brand.
func (s *Store) addInvalid(brand string, rows []csvRow) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, row := range rows {
		if s.addInvalidLocked(normalizeEmail(row["email"]), brand) {
			added++
		}
	}
	return added
}

// queryMaster filters and orders the registry, newest first, then by email.
func (s *Store) queryMaster(q models.MasterQuery) ([]models.MasterRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Filters.Search)
	segment := strings.ToLower(string(q.Filters.Segment))
	matched := []models.MasterRecord{}
	for _, rec := range s.master {
		if search != "" && !strings.Contains(rec.Email, search) {
			continue
		}
		switch q.Filters.Brand {
		case models.BrandTonyRomas:
			if !rec.IsTR {
				continue
			}
		case models.BrandManhattanFishMarket:
			if !rec.IsMFM {
				continue
			}
		case models.BrandNewYorkSteakShack:
			if !rec.IsNYSS {
				continue
			}
		}
		if segment != "" &&
			!strings.Contains(strings.ToLower(rec.SegmentTR), segment) &&
			!strings.Contains(strings.ToLower(rec.SegmentMFM), segment) &&
			!strings.Contains(strings.ToLower(rec.SegmentNYSS), segment) {
			continue
		}
		matched = append(matched, *rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastUpdated.Equal(matched[j].LastUpdated.Time) {
			return matched[i].LastUpdated.After(matched[j].LastUpdated.Time)
		}
		return matched[i].Email < matched[j].Email
	})

	total := len(matched)
	if q.FullExport {
		return matched, total
	}
	return window(matched, q.Offset, q.Limit), total
}

func (s *Store) queryInvalid(q models.InvalidQuery, search, brand string) ([]models.InvalidRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(search)
	matched := []models.InvalidRecord{}
	for _, rec := range s.invalid {
		if search != "" && !strings.Contains(rec.Email, search) {
			continue
		}
		if brand != "" && rec.Brand != brand {
			continue
		}
		matched = append(matched, rec)
	}
	return window(matched, q.Offset, q.Limit), len(matched)
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
