// Package upload drives one brand file upload at a time through
// Idle -> Uploading -> Complete|Failed -> Idle, showing a time-based
// progress estimate while the single request is in flight.
package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/events"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/schedule"
)

// Status is the orchestrator state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

var (
	// ErrNotIdle is returned by setters that only apply to an idle session.
	ErrNotIdle = errors.New("upload session is not idle")
	// ErrUploadInProgress is returned while a request is outstanding.
	ErrUploadInProgress = errors.New("an upload is already in progress")
)

// Uploader sends one brand file to the merge service.
type Uploader interface {
	UploadBrandFile(ctx context.Context, brand models.Brand, file models.FileHandle) (*models.UploadResult, error)
}

// Session is a snapshot of the orchestrator state.
type Session struct {
	Brand                     models.Brand
	File                      models.FileHandle
	Status                    Status
	ProgressPercent           float64
	EstimatedSecondsRemaining int
	Result                    *models.UploadResult
	Error                     *api.ErrorInfo
	// EpisodeID identifies the current or last Uploading episode.
	EpisodeID string
}

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	Clock           schedule.Clock
	EstimateSeconds int
	TickInterval    time.Duration
	Bus             *events.EventBus
	Logger          *logging.Logger
}

// Orchestrator owns one upload session. All methods are safe for concurrent use.
type Orchestrator struct {
	client   Uploader
	clock    schedule.Clock
	estimate int
	interval time.Duration
	bus      *events.EventBus
	logger   *logging.Logger

	mu      sync.Mutex
	session Session
	task    *schedule.Task
	done    chan struct{}
}

// New creates an idle orchestrator.
func New(client Uploader, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = schedule.RealClock()
	}
	if opts.EstimateSeconds <= 0 {
		opts.EstimateSeconds = constants.DefaultEstimateSeconds
	}
	if opts.EstimateSeconds > constants.MaxEstimateSeconds {
		opts.EstimateSeconds = constants.MaxEstimateSeconds
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = constants.DefaultTickInterval
	}

	done := make(chan struct{})
	close(done)

	return &Orchestrator{
		client:   client,
		clock:    opts.Clock,
		estimate: opts.EstimateSeconds,
		interval: opts.TickInterval,
		bus:      opts.Bus,
		logger:   logging.OrNop(opts.Logger).Component("upload"),
		session:  Session{Status: StatusIdle},
		done:     done,
	}
}

// EstimateSeconds returns the configured estimate T.
func (o *Orchestrator) EstimateSeconds() int {
	return o.estimate
}

// Snapshot returns a copy of the session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Done returns a channel closed when the current (or last) episode reaches
// a terminal state. Before any Submit it is already closed.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// SelectBrand sets the brand. Only valid while idle.
func (o *Orchestrator) SelectBrand(brand models.Brand) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Status != StatusIdle {
		return ErrNotIdle
	}
	o.session.Brand = brand
	return nil
}

// SelectFile sets the file. Choosing a file after a finished upload
// returns the session to idle first.
func (o *Orchestrator) SelectFile(file models.FileHandle) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.session.Status {
	case StatusUploading:
		return ErrUploadInProgress
	case StatusComplete, StatusFailed:
		o.resetLocked()
	}
	o.session.File = file
	return nil
}

// Acknowledge dismisses a finished upload and returns to idle. The brand is kept.
func (o *Orchestrator) Acknowledge() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.session.Status {
	case StatusUploading:
		return ErrUploadInProgress
	case StatusComplete, StatusFailed:
		o.resetLocked()
	}
	return nil
}

func (o *Orchestrator) resetLocked() {
	old := o.session.Status
	o.session.Status = StatusIdle
	o.session.Result = nil
	o.session.Error = nil
	o.publishStateLocked(old)
}

// validateLocked checks Submit preconditions. It never touches state.
func (o *Orchestrator) validateLocked() error {
	brand := o.session.Brand
	switch {
	case brand == "":
		return &api.ValidationError{Field: "brand", Reason: "a brand must be selected"}
	case !brand.Valid():
		return &api.ValidationError{Field: "brand", Reason: fmt.Sprintf("unknown brand %q", brand)}
	case o.session.File == nil:
		return &api.ValidationError{Field: "file", Reason: "a file must be selected"}
	}
	return nil
}

// Submit starts an upload episode: one request and one estimate ticker.
// Precondition failures return an *api.ValidationError with no state
// change and no network call. The returned channel closes after the
// terminal transition.
func (o *Orchestrator) Submit(ctx context.Context) (<-chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Status == StatusUploading {
		return nil, ErrUploadInProgress
	}
	if err := o.validateLocked(); err != nil {
		o.logger.Debug().Err(err).Msg("Upload rejected")
		return nil, err
	}
	if o.session.Status != StatusIdle {
		return nil, ErrNotIdle
	}

	episode := uuid.NewString()
	brand := o.session.Brand
	file := o.session.File
	done := make(chan struct{})

	old := o.session.Status
	o.session.Status = StatusUploading
	o.session.ProgressPercent = 0
	o.session.EstimatedSecondsRemaining = o.estimate
	o.session.Result = nil
	o.session.Error = nil
	o.session.EpisodeID = episode
	o.done = done

	// Ticks take o.mu, so none can run before this method returns.
	o.task = schedule.Start(o.clock, o.interval, o.estimate, func(k int) {
		o.applyTick(episode, k)
	})
	o.publishStateLocked(old)

	o.logger.Info().
		Str("episode", episode).
		Str("brand", string(brand)).
		Str("file", file.Name()).
		Msg("Upload started")

	go o.run(ctx, episode, brand, file, done)
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context, episode string, brand models.Brand, file models.FileHandle, done chan struct{}) {
	res, err := o.client.UploadBrandFile(ctx, brand, file)
	if err == nil && res == nil {
		err = &api.MalformedResponseError{Op: api.OpUploadBrand, Err: errors.New("empty result")}
	}
	o.resolve(episode, res, err, done)
}

// resolve applies the terminal transition. The ticker is cancelled first,
// so no estimate can land after the outcome.
func (o *Orchestrator) resolve(episode string, res *models.UploadResult, err error, done chan struct{}) {
	o.mu.Lock()
	task := o.task
	if task != nil && o.session.EpisodeID == episode {
		o.task = nil
	} else {
		task = nil
	}
	o.mu.Unlock()

	// Cancel waits for a tick that is about to run, and ticks take o.mu.
	if task != nil {
		task.Cancel()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer close(done)

	if o.session.EpisodeID != episode || o.session.Status != StatusUploading {
		return
	}

	old := o.session.Status
	if err != nil {
		o.session.Status = StatusFailed
		o.session.Error = api.Describe(err, o.clock.Now())
		o.logger.Error().Err(err).Str("episode", episode).Msg("Upload failed")
	} else {
		o.session.Status = StatusComplete
		o.session.Result = res
		o.logger.Info().
			Str("episode", episode).
			Int("rows_uploaded", res.RowsUploaded).
			Int("invalid_count", res.InvalidCount).
			Msg("Upload complete")
	}
	o.session.ProgressPercent = 0
	o.session.EstimatedSecondsRemaining = 0
	o.session.File = nil
	o.publishStateLocked(old)
}

func (o *Orchestrator) applyTick(episode string, k int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.EpisodeID != episode || o.session.Status != StatusUploading {
		return
	}

	percent := math.Min(100, float64(k)*100/float64(o.estimate))
	if percent > o.session.ProgressPercent {
		o.session.ProgressPercent = percent
	}
	remaining := o.estimate - k
	if remaining < 0 {
		remaining = 0
	}
	o.session.EstimatedSecondsRemaining = remaining

	o.bus.Publish(&events.UploadProgressEvent{
		BaseEvent:        events.BaseEvent{EventType: events.EventUploadProgress, Time: o.clock.Now()},
		EpisodeID:        episode,
		Tick:             k,
		Percent:          o.session.ProgressPercent,
		SecondsRemaining: remaining,
	})
}

func (o *Orchestrator) publishStateLocked(old Status) {
	o.bus.Publish(&events.UploadStateEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventUploadState, Time: o.clock.Now()},
		EpisodeID: o.session.EpisodeID,
		Brand:     o.session.Brand,
		OldStatus: string(old),
		NewStatus: string(o.session.Status),
		Result:    o.session.Result,
		Error:     o.session.Error,
	})
}
