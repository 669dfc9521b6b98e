package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

// Filter fields accepted by MasterBrowser.SetFilter.
const (
	FilterSearch  = "search"
	FilterBrand   = "brand"
	FilterSegment = "segment"
)

// ErrUnknownFilter is returned by SetFilter for a field it does not know.
var ErrUnknownFilter = errors.New("unknown filter field")

// MasterLister is the slice of the REST client the master browser needs.
type MasterLister interface {
	ListMaster(ctx context.Context, q models.MasterQuery) (*models.MasterPage, error)
}

// MasterBrowser pages through the deduplicated master registry.
type MasterBrowser struct {
	*Browser[models.MasterFilters, models.MasterRecord]
}

// NewMaster creates a master registry browser.
func NewMaster(client MasterLister, opts Options) *MasterBrowser {
	fetch := func(ctx context.Context, f models.MasterFilters, limit, offset int) ([]models.MasterRecord, int, error) {
		page, err := client.ListMaster(ctx, models.MasterQuery{
			Limit:   limit,
			Offset:  offset,
			Filters: f,
		})
		if err != nil {
			return nil, 0, err
		}
		return page.Records, page.Total, nil
	}
	return &MasterBrowser{Browser: New("master", fetch, opts)}
}

// SetFilter edits one pending filter. Empty values clear the filter.
// Brand and segment values must belong to their enumerations.
func (m *MasterBrowser) SetFilter(field, value string) error {
	value = strings.TrimSpace(value)

	switch strings.ToLower(field) {
	case FilterSearch:
		m.EditPending(func(f *models.MasterFilters) { f.Search = value })
	case FilterBrand:
		brand, err := models.ParseBrand(value)
		if err != nil {
			return &api.ValidationError{Field: FilterBrand, Reason: err.Error()}
		}
		m.EditPending(func(f *models.MasterFilters) { f.Brand = brand })
	case FilterSegment:
		seg, err := models.ParseSegment(value)
		if err != nil {
			return &api.ValidationError{Field: FilterSegment, Reason: err.Error()}
		}
		m.EditPending(func(f *models.MasterFilters) { f.Segment = seg })
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFilter, field)
	}
	return nil
}

// ClearFilters empties the pending filters. Call ApplyFilters to fetch.
func (m *MasterBrowser) ClearFilters() {
	m.EditPending(func(f *models.MasterFilters) { *f = models.MasterFilters{} })
}
