package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/specterwire/anomscan/internal/healing"
	"github.com/specterwire/anomscan/internal/metrics"
)

// EventType identifies the kind of scan event.
type EventType string

const (
	EventScanStarted  EventType = "scan_started"
	EventScanProgress EventType = "scan_progress"
	EventFileResult   EventType = "file_result"
	EventScanComplete EventType = "scan_complete"
	EventHealing      EventType = "healing"
)

// Event is one notification on the scan event bus.
type Event struct {
	Type         EventType        `json:"type"`
	TaskID       string           `json:"task_id,omitempty"`
	Path         string           `json:"path,omitempty"`
	Processed    int              `json:"processed,omitempty"`
	Total        int              `json:"total,omitempty"`
	Result       *ScanResult      `json:"result,omitempty"`
	Report       *DirectoryReport `json:"report,omitempty"`
	HealingStage healing.Stage    `json:"healing_stage,omitempty"`
	Healing      *healing.Event   `json:"healing,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// DefaultBusSize is the event buffer used when none is configured.
const DefaultBusSize = 256

// Bus is a bounded, non-blocking event channel. Publishing never stalls a
// worker: when the buffer is full the event is dropped and counted.
type Bus struct {
	ch      chan Event
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewBus creates a Bus with the given buffer size.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBusSize
	}
	return &Bus{ch: make(chan Event, size)}
}

// Events returns the receive side of the bus.
func (b *Bus) Events() <-chan Event { return b.ch }

// Dropped returns how many events were discarded because the buffer was
// full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Publish delivers ev if there is room, otherwise drops it.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
		metrics.RecordEventDropped()
	}
}

// Close closes the event channel. Publish must not be called afterwards.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}

// HealingObserver adapts the bus into a healing lifecycle observer so
// controller events appear on the same stream as scan events.
func (b *Bus) HealingObserver() healing.Observer {
	return func(stage healing.Stage, ev healing.Event) {
		switch stage {
		case healing.StageProgress:
			metrics.RecordHealingAttempt(string(ev.Kind))
		case healing.StageSuccess:
			metrics.RecordHealingOutcome(string(ev.Kind), "success")
		case healing.StageFailure:
			metrics.RecordHealingOutcome(string(ev.Kind), "failure")
		}
		b.Publish(Event{
			Type:         EventHealing,
			HealingStage: stage,
			Healing:      &ev,
		})
	}
}
