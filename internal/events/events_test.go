package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadProgress)
	bus.Publish(&UploadProgressEvent{
		BaseEvent:        BaseEvent{EventType: EventUploadProgress, Time: time.Now()},
		EpisodeID:        "ep-1",
		Tick:             3,
		Percent:          37.5,
		SecondsRemaining: 5,
	})

	select {
	case received := <-ch:
		progress, ok := received.(*UploadProgressEvent)
		require.True(t, ok)
		assert.Equal(t, 37.5, progress.Percent)
		assert.Equal(t, 5, progress.SecondsRemaining)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_TypeIsolationAndAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	applied := bus.Subscribe(EventQueryApplied)
	settled := bus.Subscribe(EventQueryApplied, EventQueryFailed)
	all := bus.Subscribe()

	bus.Publish(&QueryEvent{BaseEvent: BaseEvent{EventType: EventQueryDiscarded}, Seq: 1})
	bus.Publish(&QueryEvent{BaseEvent: BaseEvent{EventType: EventQueryApplied}, Seq: 2})
	bus.Publish(&QueryEvent{BaseEvent: BaseEvent{EventType: EventQueryFailed}, Seq: 3})

	got := <-applied
	assert.Equal(t, uint64(2), got.(*QueryEvent).Seq)
	assert.Len(t, applied, 0)
	assert.Len(t, settled, 2)
	assert.Len(t, all, 3)
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventUploadState)
	for i := 0; i < 3; i++ {
		bus.Publish(&UploadStateEvent{BaseEvent: BaseEvent{EventType: EventUploadState}})
	}
	assert.EqualValues(t, 2, bus.Dropped())
}

func TestEventBus_CloseAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.Subscribe(EventInvalidUpload)
	kept := bus.Subscribe(EventInvalidUpload)
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	bus.Publish(&InvalidUploadEvent{BaseEvent: BaseEvent{EventType: EventInvalidUpload}, Added: 4})
	ev := <-kept
	assert.Equal(t, 4, ev.(*InvalidUploadEvent).Added)

	bus.Close()
	bus.Close()
	bus.Publish(&InvalidUploadEvent{BaseEvent: BaseEvent{EventType: EventInvalidUpload}})

	late := bus.Subscribe(EventInvalidUpload)
	_, open = <-late
	assert.False(t, open)

	var nilBus *EventBus
	nilBus.Publish(&InvalidUploadEvent{})
}
