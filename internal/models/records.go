package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UploadResult is the merge service's summary of one brand upload.
// Immutable once received.
type UploadResult struct {
	Brand                   string `json:"brand"`
	RowsUploaded            int    `json:"rows_uploaded"`
	RowsAfterInvalidRemoval int    `json:"rows_after_invalid_removal"`
	InvalidCount            int    `json:"invalid_count"`
	InsertedToBrand         int    `json:"inserted_to_brand"`

	// Merge counts are optional in the contract; nil means the service did not report them.
	MergeUpdated  *int `json:"merge_updated,omitempty"`
	MergeInserted *int `json:"merge_inserted,omitempty"`

	// InvalidSample holds up to the first 50 rejected addresses when the service includes them.
	InvalidSample []string `json:"invalid_sample,omitempty"`

	// TransformedFile is the server-side name of the normalized CSV, when reported.
	TransformedFile string `json:"transformed_file,omitempty"`
}

// HasMerge reports whether the service returned a merge result.
func (r *UploadResult) HasMerge() bool {
	return r != nil && (r.MergeUpdated != nil || r.MergeInserted != nil)
}

// MergeCounts returns the merge counts with absent values read as zero.
func (r *UploadResult) MergeCounts() (updated, inserted int) {
	if r == nil {
		return 0, 0
	}
	if r.MergeUpdated != nil {
		updated = *r.MergeUpdated
	}
	if r.MergeInserted != nil {
		inserted = *r.MergeInserted
	}
	return updated, inserted
}

// MasterRecord is one deduplicated row of the master registry.
type MasterRecord struct {
	Email       string    `json:"email"`
	CardNumber  string    `json:"card_no"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	SegmentTR   string    `json:"segment_tr"`
	SegmentMFM  string    `json:"segment_mfm"`
	SegmentNYSS string    `json:"segment_nyss"`
	IsTR        bool      `json:"is_tr"`
	IsMFM       bool      `json:"is_mfm"`
	IsNYSS      bool      `json:"is_nyss"`
	LastUpdated Timestamp `json:"last_updated"`
}

// BrandCodes lists the codes of the brands this address belongs to.
func (r MasterRecord) BrandCodes() []string {
	var codes []string
	if r.IsTR {
		codes = append(codes, BrandTonyRomas.Code())
	}
	if r.IsMFM {
		codes = append(codes, BrandManhattanFishMarket.Code())
	}
	if r.IsNYSS {
		codes = append(codes, BrandNewYorkSteakShack.Code())
	}
	return codes
}

// InvalidRecord is an address rejected by server-side validation.
type InvalidRecord struct {
	Email string `json:"email"`
	Brand string `json:"brand"`
}

// InvalidUploadAck acknowledges an invalid-email list upload.
type InvalidUploadAck struct {
	Status string `json:"status"`
	Brand  string `json:"brand"`
	Added  int    `json:"added"`
}

// MasterFilters are the optional filters of the master registry browser.
type MasterFilters struct {
	Search  string
	Brand   Brand
	Segment Segment
}

// IsZero reports whether no filter is set.
func (f MasterFilters) IsZero() bool {
	return f.Search == "" && f.Brand == "" && f.Segment == ""
}

// MasterQuery is one GET /master-emails request.
type MasterQuery struct {
	Limit      int
	Offset     int
	Filters    MasterFilters
	FullExport bool
}

// MasterPage is a decoded /master-emails response.
type MasterPage struct {
	Records []MasterRecord
	Total   int
}

// InvalidQuery is one GET /invalid-emails request.
type InvalidQuery struct {
	Limit  int
	Offset int
}

// InvalidPage is a decoded /invalid-emails response.
type InvalidPage struct {
	Records []InvalidRecord
	Total   int
}

// Timestamp accepts the service's naive ISO-8601 datetimes as well as RFC 3339.
// Naive values are read as UTC. An unrecognized string decodes as the zero
// time and is kept in Unparsed.
type Timestamp struct {
	time.Time
	unparsed string
}

// Unparsed returns the raw value that could not be read as a time, if any.
func (t Timestamp) Unparsed() string { return t.unparsed }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s with the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		t.unparsed = s
		return nil
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// String formats the timestamp for tables; zero renders as "-".
func (t Timestamp) String() string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
