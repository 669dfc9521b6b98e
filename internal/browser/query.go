// Package browser provides the paged, filterable views over the merge
// service's read endpoints.
//
// A Browser owns its query state behind one mutex. Every trigger
// (ApplyFilters, NextPage, PrevPage, Refresh) tags its fetch with the next
// RequestSeq; a response is applied only if its tag is still the highest
// issued, so out-of-order completions can never overwrite newer results.
package browser

import (
	"context"
	"sync"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/events"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
	"github.com/rvcleanup/rv-cleanup/internal/schedule"
)

// Fetcher loads one page for the given filters.
type Fetcher[F, R any] func(ctx context.Context, filters F, limit, offset int) (rows []R, total int, err error)

// State is a snapshot of a browser's query state.
type State[F, R any] struct {
	Limit   int
	Offset  int
	Pending F // edited by SetFilter, not yet committed
	Active  F // what the last fetch used
	Total   int
	Rows    []R

	RequestSeq    uint64 // highest tag issued
	AppliedSeq    uint64 // tag of the response currently shown
	AppliedOffset int    // offset Rows were fetched at; lags Offset after a failed page move

	Loading bool
	Error   *api.ErrorInfo
}

// HasNext reports whether a further page exists.
func (s State[F, R]) HasNext() bool {
	return s.Offset+s.Limit < s.Total
}

// HasPrev reports whether an earlier page exists.
func (s State[F, R]) HasPrev() bool {
	return s.Offset > 0
}

// Page returns the 1-based page number of the rows shown and the page count.
func (s State[F, R]) Page() (page, pages int) {
	if s.Limit <= 0 {
		return 1, 1
	}
	page = s.AppliedOffset/s.Limit + 1
	pages = (s.Total + s.Limit - 1) / s.Limit
	if pages < 1 {
		pages = 1
	}
	return page, pages
}

// Options configures a browser.
type Options struct {
	Limit  int
	Clock  schedule.Clock
	Bus    *events.EventBus
	Logger *logging.Logger
}

func (o Options) limit() int {
	switch {
	case o.Limit <= 0:
		return constants.DefaultPageLimit
	case o.Limit > constants.MaxPageLimit:
		return constants.MaxPageLimit
	}
	return o.Limit
}

// Browser is the generic paging and sequencing core.
type Browser[F, R any] struct {
	name   string
	fetch  Fetcher[F, R]
	clock  schedule.Clock
	bus    *events.EventBus
	logger *logging.Logger

	mu       sync.Mutex
	state    State[F, R]
	inflight sync.WaitGroup
}

// New creates a browser named name ("master", "invalid") over fetch.
// Nothing is fetched until the first trigger.
func New[F, R any](name string, fetch Fetcher[F, R], opts Options) *Browser[F, R] {
	if opts.Clock == nil {
		opts.Clock = schedule.RealClock()
	}
	return &Browser[F, R]{
		name:   name,
		fetch:  fetch,
		clock:  opts.Clock,
		bus:    opts.Bus,
		logger: logging.OrNop(opts.Logger).Component("browser." + name),
		state: State[F, R]{
			Limit: opts.limit(),
			Rows:  make([]R, 0),
		},
	}
}

// Snapshot returns a copy of the state. Rows are copied.
func (b *Browser[F, R]) Snapshot() State[F, R] {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	s.Rows = make([]R, len(b.state.Rows))
	copy(s.Rows, b.state.Rows)
	return s
}

// EditPending changes the pending filters in place. It never fetches.
func (b *Browser[F, R]) EditPending(edit func(f *F)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	edit(&b.state.Pending)
}

// ApplyFilters commits the pending filters, resets to the first page and
// fetches. It returns the tag of the issued fetch.
func (b *Browser[F, R]) ApplyFilters(ctx context.Context) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Active = b.state.Pending
	b.state.Offset = 0
	return b.issueLocked(ctx)
}

// NextPage advances one page and fetches. It is a no-op on the last page.
func (b *Browser[F, R]) NextPage(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.HasNext() {
		return false
	}
	b.state.Offset += b.state.Limit
	b.issueLocked(ctx)
	return true
}

// PrevPage moves back one page and fetches. It is a no-op on the first page.
func (b *Browser[F, R]) PrevPage(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.HasPrev() {
		return false
	}
	b.state.Offset = max(0, b.state.Offset-b.state.Limit)
	b.issueLocked(ctx)
	return true
}

// Refresh re-fetches the current page with the active filters.
func (b *Browser[F, R]) Refresh(ctx context.Context) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(ctx)
}

// Load is the initial fetch a view performs when it opens.
func (b *Browser[F, R]) Load(ctx context.Context) uint64 {
	return b.Refresh(ctx)
}

// Reload jumps back to the first page with the active filters and fetches.
func (b *Browser[F, R]) Reload(ctx context.Context) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Offset = 0
	return b.issueLocked(ctx)
}

// Wait blocks until every issued fetch has settled.
func (b *Browser[F, R]) Wait() {
	b.inflight.Wait()
}

func (b *Browser[F, R]) issueLocked(ctx context.Context) uint64 {
	b.state.RequestSeq++
	seq := b.state.RequestSeq
	b.state.Loading = true

	filters := b.state.Active
	limit := b.state.Limit
	offset := b.state.Offset

	b.publish(events.EventQueryLoading, seq, offset, limit, 0, 0, nil)
	b.logger.Debug().
		Uint64("seq", seq).
		Int("offset", offset).
		Int("limit", limit).
		Msg("Fetching page")

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		rows, total, err := b.fetch(ctx, filters, limit, offset)
		b.settle(seq, offset, limit, rows, total, err)
	}()
	return seq
}

func (b *Browser[F, R]) settle(seq uint64, offset, limit int, rows []R, total int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq != b.state.RequestSeq {
		b.logger.Debug().
			Uint64("seq", seq).
			Uint64("latest", b.state.RequestSeq).
			Msg("Discarding superseded response")
		b.publish(events.EventQueryDiscarded, seq, offset, limit, 0, 0, nil)
		return
	}

	b.state.Loading = false
	if err != nil {
		info := api.Describe(err, b.clock.Now())
		b.state.Error = info
		b.logger.Warn().Err(err).Uint64("seq", seq).Msg("Fetch failed")
		b.publish(events.EventQueryFailed, seq, offset, limit, b.state.Total, len(b.state.Rows), info)
		return
	}

	if len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = make([]R, 0)
	}
	b.state.Rows = rows
	b.state.Total = total
	b.state.AppliedSeq = seq
	b.state.AppliedOffset = offset
	b.state.Error = nil
	b.publish(events.EventQueryApplied, seq, offset, limit, total, len(rows), nil)
}

func (b *Browser[F, R]) publish(t events.EventType, seq uint64, offset, limit, total, rows int, info *api.ErrorInfo) {
	b.bus.Publish(&events.QueryEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: b.clock.Now()},
		Browser:   b.name,
		Seq:       seq,
		Offset:    offset,
		Limit:     limit,
		Total:     total,
		Rows:      rows,
		Error:     info,
	})
}
