package healing

import (
	"sync"
	"time"
)

// State is the coarse backend health classification.
type State string

const (
	// StateHealthy means all probes pass and no unresolved failures exist.
	StateHealthy State = "HEALTHY"
	// StateFunctional means the backend can serve requests but not every
	// capability is available (e.g. offline mode with a working cache).
	StateFunctional State = "FUNCTIONAL"
	// StateDegraded means a recovery sequence was exhausted or a required
	// capability is unavailable.
	StateDegraded State = "DEGRADED"
)

// ErrorSnapshot records the most recent backend error.
type ErrorSnapshot struct {
	Timestamp time.Time
	Message   string
	Path      string
}

// HealingSnapshot records the most recent healing run.
type HealingSnapshot struct {
	Timestamp time.Time
	Kind      Kind
	Message   string
}

// Status is a point-in-time copy of tracker state for diagnostics.
type Status struct {
	State        State
	ErrorCount   int
	HealingCount int
	LastError    *ErrorSnapshot
	LastHealing  *HealingSnapshot
	Uptime       time.Duration
}

// Tracker holds backend health state. It is owned by the backend instance
// and shared by handle with the healing controller; there is no package
// level ambient state.
type Tracker struct {
	mu           sync.Mutex
	state        State
	errorCount   int
	healingCount int
	lastError    *ErrorSnapshot
	lastHealing  *HealingSnapshot
	startedAt    time.Time
}

// NewTracker returns a Tracker in the healthy state.
func NewTracker() *Tracker {
	return &Tracker{
		state:     StateHealthy,
		startedAt: time.Now(),
	}
}

// State returns the current health state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState overwrites the health state.
func (t *Tracker) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// RecordError increments the error counter and stores a snapshot.
func (t *Tracker) RecordError(err error, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorCount++
	snap := &ErrorSnapshot{Timestamp: time.Now(), Path: path}
	if err != nil {
		snap.Message = err.Error()
	}
	t.lastError = snap
}

// RecordHealing increments the healing counter and stores a snapshot.
func (t *Tracker) RecordHealing(kind Kind, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healingCount++
	snap := &HealingSnapshot{Timestamp: time.Now(), Kind: kind}
	if cause != nil {
		snap.Message = cause.Error()
	}
	t.lastHealing = snap
}

// Snapshot returns a copy of the current counters and state.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:        t.state,
		ErrorCount:   t.errorCount,
		HealingCount: t.healingCount,
		LastError:    t.lastError,
		LastHealing:  t.lastHealing,
		Uptime:       time.Since(t.startedAt),
	}
}
