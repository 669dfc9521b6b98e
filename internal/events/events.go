// Package events fans out state changes from the upload orchestrator and
// the query browsers to whatever view is observing them.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventUploadState    EventType = "upload_state"
	EventUploadProgress EventType = "upload_progress"

	EventQueryLoading   EventType = "query_loading"   // fetch issued
	EventQueryApplied   EventType = "query_applied"   // latest response applied
	EventQueryDiscarded EventType = "query_discarded" // superseded response dropped
	EventQueryFailed    EventType = "query_failed"    // latest fetch failed

	EventInvalidUpload EventType = "invalid_upload"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// UploadStateEvent is a status transition of the upload orchestrator.
type UploadStateEvent struct {
	BaseEvent
	EpisodeID string
	Brand     models.Brand
	OldStatus string
	NewStatus string
	Result    *models.UploadResult
	Error     *api.ErrorInfo
}

// UploadProgressEvent is one applied estimate tick.
type UploadProgressEvent struct {
	BaseEvent
	EpisodeID        string
	Tick             int
	Percent          float64
	SecondsRemaining int
}

// QueryEvent reports the lifecycle of one browser fetch.
type QueryEvent struct {
	BaseEvent
	Browser string // "master" or "invalid"
	Seq     uint64
	Offset  int
	Limit   int
	Total   int
	Rows    int
	Error   *api.ErrorInfo
}

// InvalidUploadEvent reports the invalid-list upload flow.
type InvalidUploadEvent struct {
	BaseEvent
	Brand  string
	Status string // "started", "complete" or "failed"
	Added  int
	Error  *api.ErrorInfo
}

// EventBus fans events out to buffered subscriber channels. Publishing never
// blocks: an event for a full subscriber is dropped and counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    []*subscription
	buffer  int
	closed  bool
	dropped atomic.Int64
}

type subscription struct {
	ch    chan Event
	types map[EventType]struct{} // nil receives everything
}

func (s *subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize events.
func NewEventBus(bufferSize int) *EventBus {
	switch {
	case bufferSize <= 0:
		bufferSize = constants.EventBusDefaultBuffer
	case bufferSize > constants.EventBusMaxBuffer:
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{buffer: bufferSize}
}

// Subscribe returns a channel receiving the listed event types, or every
// event when none are listed. On a closed bus the channel is already closed.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &subscription{ch: make(chan Event, eb.buffer)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	eb.subs = append(eb.subs, sub)
	return sub.ch
}

// Unsubscribe closes ch and stops delivery to it.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, sub := range eb.subs {
		if sub.ch == ch {
			close(sub.ch)
			eb.subs = append(eb.subs[:i], eb.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every interested subscriber. A nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subs {
		if !sub.wants(event.Type()) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subs {
		close(sub.ch)
	}
	eb.subs = nil
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}
