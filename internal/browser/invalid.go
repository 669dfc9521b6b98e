package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/events"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

// ErrUploadBusy is returned when an invalid-list upload is already running.
var ErrUploadBusy = errors.New("an invalid-list upload is already in progress")

// InvalidClient is the slice of the REST client the invalid browser needs.
type InvalidClient interface {
	ListInvalid(ctx context.Context, q models.InvalidQuery) (*models.InvalidPage, error)
	UploadInvalidList(ctx context.Context, brand string, file models.FileHandle) (*models.InvalidUploadAck, error)
}

// UploadStatus describes the invalid-list upload flow.
type UploadStatus struct {
	Uploading bool
	Ack       *models.InvalidUploadAck
	Error     *api.ErrorInfo
}

// InvalidBrowser pages through rejected addresses and uploads new
// invalid-email lists. There are no filters.
type InvalidBrowser struct {
	*Browser[struct{}, models.InvalidRecord]
	client InvalidClient

	upMu   sync.Mutex
	upload UploadStatus
}

// NewInvalid creates an invalid-record browser.
func NewInvalid(client InvalidClient, opts Options) *InvalidBrowser {
	fetch := func(ctx context.Context, _ struct{}, limit, offset int) ([]models.InvalidRecord, int, error) {
		page, err := client.ListInvalid(ctx, models.InvalidQuery{Limit: limit, Offset: offset})
		if err != nil {
			return nil, 0, err
		}
		return page.Records, page.Total, nil
	}
	return &InvalidBrowser{
		Browser: New("invalid", fetch, opts),
		client:  client,
	}
}

// UploadStatus returns a copy of the upload flow state.
func (b *InvalidBrowser) UploadStatus() UploadStatus {
	b.upMu.Lock()
	defer b.upMu.Unlock()
	return b.upload
}

// Upload sends an invalid-email list. An empty brand is sent as "Unknown".
// On success the collection is re-fetched from the first page; on failure
// nothing is re-fetched and the error is kept in UploadStatus.
func (b *InvalidBrowser) Upload(ctx context.Context, brand string, file models.FileHandle) (*models.InvalidUploadAck, error) {
	if file == nil {
		return nil, &api.ValidationError{Field: "file", Reason: "a file must be selected"}
	}
	wire := models.BrandUnknown
	if brand != "" {
		parsed, err := models.ParseBrand(brand)
		if err != nil {
			return nil, &api.ValidationError{Field: "brand", Reason: err.Error()}
		}
		if parsed != "" {
			wire = string(parsed)
		}
	}

	b.upMu.Lock()
	if b.upload.Uploading {
		b.upMu.Unlock()
		return nil, ErrUploadBusy
	}
	b.upload = UploadStatus{Uploading: true}
	b.upMu.Unlock()
	b.publishUpload(wire, "started", 0, nil)

	ack, err := b.client.UploadInvalidList(ctx, wire, file)

	b.upMu.Lock()
	b.upload.Uploading = false
	if err != nil {
		info := api.Describe(err, b.clock.Now())
		b.upload.Error = info
		b.upMu.Unlock()
		b.logger.Error().Err(err).Str("brand", wire).Msg("Invalid list upload failed")
		b.publishUpload(wire, "failed", 0, info)
		return nil, err
	}
	b.upload.Ack = ack
	b.upMu.Unlock()

	b.logger.Info().Str("brand", wire).Int("added", ack.Added).Msg("Invalid list uploaded")
	b.publishUpload(wire, "complete", ack.Added, nil)

	b.Reload(ctx)
	return ack, nil
}

func (b *InvalidBrowser) publishUpload(brand, status string, added int, info *api.ErrorInfo) {
	b.bus.Publish(&events.InvalidUploadEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventInvalidUpload, Time: b.clock.Now()},
		Brand:     brand,
		Status:    status,
		Added:     added,
		Error:     info,
	})
}
