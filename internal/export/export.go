// Package export writes the filtered master registry to a spreadsheet and
// delivers it to a local path, an S3 bucket or an Azure blob container.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/progress"
)

// Format is the spreadsheet encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx". An empty value infers the format
// from dest's extension and falls back to CSV.
func ParseFormat(s, dest string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "":
		if strings.EqualFold(path.Ext(dest), ".xlsx") {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q (use csv or xlsx)", s)
}

// ContentType is the MIME type sent to object stores.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Columns are the export headers, in the order the registry view shows them.
var Columns = []string{
	"email", "card_no", "name", "phone",
	"segment_tr", "segment_mfm", "segment_nyss",
	"is_tr", "is_mfm", "is_nyss", "brands", "last_updated",
}

func row(rec models.MasterRecord) []string {
	updated := ""
	if !rec.LastUpdated.IsZero() {
		updated = rec.LastUpdated.String()
	}
	return []string{
		rec.Email, rec.CardNumber, rec.Name, rec.Phone,
		rec.SegmentTR, rec.SegmentMFM, rec.SegmentNYSS,
		strconv.FormatBool(rec.IsTR), strconv.FormatBool(rec.IsMFM), strconv.FormatBool(rec.IsNYSS),
		strings.Join(rec.BrandCodes(), " "),
		updated,
	}
}

// MasterLister is the read side of the REST client used by Collect.
type MasterLister interface {
	ListMaster(ctx context.Context, q models.MasterQuery) (*models.MasterPage, error)
}

// Collect fetches every registry row matching filters. It asks for a full
// export first and pages through whatever the service held back.
func Collect(ctx context.Context, client MasterLister, filters models.MasterFilters, reporter progress.Reporter) ([]models.MasterRecord, error) {
	reporter = progress.OrNoOp(reporter)

	page, err := client.ListMaster(ctx, models.MasterQuery{
		Limit:      constants.MaxPageLimit,
		Filters:    filters,
		FullExport: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch master registry: %w", err)
	}

	records := append([]models.MasterRecord(nil), page.Records...)
	total := page.Total
	reporter.Start(int64(total), "Fetching")
	reporter.Update(int64(len(records)))

	for len(records) < total {
		next, err := client.ListMaster(ctx, models.MasterQuery{
			Limit:   constants.MaxPageLimit,
			Offset:  len(records),
			Filters: filters,
		})
		if err != nil {
			reporter.Error(err)
			return nil, fmt.Errorf("failed to fetch rows from offset %d: %w", len(records), err)
		}
		if len(next.Records) == 0 {
			break
		}
		records = append(records, next.Records...)
		reporter.Update(int64(len(records)))
	}
	reporter.Finish()
	return records, nil
}

// Encode renders records in format.
func Encode(records []models.MasterRecord, format Format, reporter progress.Reporter) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatXLSX:
		err = writeXLSX(&buf, records, progress.OrNoOp(reporter))
	case FormatCSV:
		err = writeCSV(&buf, records, progress.OrNoOp(reporter))
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Options controls Run.
type Options struct {
	Filters models.MasterFilters
	Format  Format
	// Reporter receives fetch and encode progress; nil is silent.
	Reporter progress.Reporter
}

// Result summarizes a finished export.
type Result struct {
	Rows     int
	Bytes    int
	Format   Format
	Location string
}

// Run collects, encodes and delivers one export.
func Run(ctx context.Context, client MasterLister, sink Sink, opts Options) (*Result, error) {
	records, err := Collect(ctx, client, opts.Filters, opts.Reporter)
	if err != nil {
		return nil, err
	}
	data, err := Encode(records, opts.Format, opts.Reporter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	location, err := sink.Write(ctx, data, opts.Format.ContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	return &Result{
		Rows:     len(records),
		Bytes:    len(data),
		Format:   opts.Format,
		Location: location,
	}, nil
}
