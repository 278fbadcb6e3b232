package healing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable shrinks the default delays so full retry loops run in
// microseconds.
func testTable() Table {
	return DefaultTable().Scaled(1e-6)
}

type eventRecorder struct {
	mu     sync.Mutex
	stages []Stage
	events []Event
}

func (r *eventRecorder) observe(stage Stage, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	r.events = append(r.events, event)
}

func (r *eventRecorder) stageCount(s Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.stages {
		if st == s {
			n++
		}
	}
	return n
}

func (r *eventRecorder) eventsFor(s Stage) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for i, st := range r.stages {
		if st == s {
			out = append(out, r.events[i])
		}
	}
	return out
}

func TestHealRetryCeiling(t *testing.T) {
	table := testTable()

	for kind, strategy := range table {
		t.Run(string(kind), func(t *testing.T) {
			rec := &eventRecorder{}
			tracker := NewTracker()
			c := NewController(table, tracker, WithObserver(rec.observe))

			calls := 0
			ok := c.Heal(context.Background(), kind, errors.New("always broken"),
				func(ctx context.Context, k Kind, cause error) error {
					calls++
					return errors.New("still broken")
				})

			assert.False(t, ok)
			assert.Equal(t, strategy.MaxAttempts, calls,
				"recovery action invocation count")
			assert.Equal(t, 1, rec.stageCount(StageFailure))
			assert.Equal(t, strategy.MaxAttempts, rec.stageCount(StageProgress))
			assert.Equal(t, StateDegraded, tracker.State())
		})
	}
}

func TestHealSucceedsMidway(t *testing.T) {
	rec := &eventRecorder{}
	tracker := NewTracker()
	c := NewController(testTable(), tracker, WithObserver(rec.observe))

	calls := 0
	ok := c.Heal(context.Background(), KindRateLimit, errors.New("429"),
		func(ctx context.Context, k Kind, cause error) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		})

	assert.True(t, ok)
	assert.Equal(t, 3, calls, "no further attempts after success")
	assert.Equal(t, 1, rec.stageCount(StageSuccess))
	assert.Zero(t, rec.stageCount(StageFailure))
	assert.Equal(t, StateHealthy, tracker.State())

	success := rec.eventsFor(StageSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, 3, success[0].Attempt)
}

func TestHealBackoffBounds(t *testing.T) {
	table := testTable()

	for kind, strategy := range table {
		t.Run(string(kind), func(t *testing.T) {
			rec := &eventRecorder{}
			c := NewController(table, NewTracker(), WithObserver(rec.observe))

			c.Heal(context.Background(), kind, errors.New("fail"),
				func(ctx context.Context, k Kind, cause error) error {
					return errors.New("fail")
				})

			progress := rec.eventsFor(StageProgress)
			require.Len(t, progress, strategy.MaxAttempts)

			for i, ev := range progress {
				lower := strategy.BackoffBase
				upper := strategy.BackoffCap
				if strategy.Jitter {
					lower = lower / 2
					upper = upper + upper/2
				}
				assert.GreaterOrEqual(t, ev.Backoff, lower,
					"attempt %d backoff below bound", i+1)
				assert.LessOrEqual(t, ev.Backoff, upper,
					"attempt %d backoff above bound", i+1)
			}
		})
	}
}

func TestHealBackoffSequenceWithoutJitter(t *testing.T) {
	// TOKEN_ERROR has jitter disabled, so delays are exactly
	// min(base * 2^(attempt-1), cap).
	table := Table{
		KindTokenError: {
			MaxAttempts: 4,
			BackoffBase: 1 * time.Microsecond,
			BackoffCap:  5 * time.Microsecond,
			Jitter:      false,
			Description: "token",
		},
	}
	rec := &eventRecorder{}
	c := NewController(table, NewTracker(), WithObserver(rec.observe))

	c.Heal(context.Background(), KindTokenError, errors.New("401"),
		func(ctx context.Context, k Kind, cause error) error {
			return errors.New("still 401")
		})

	progress := rec.eventsFor(StageProgress)
	require.Len(t, progress, 4)
	want := []time.Duration{1, 2, 4, 5} // microseconds, capped at 5
	for i, ev := range progress {
		assert.Equal(t, want[i]*time.Microsecond, ev.Backoff, "attempt %d", i+1)
	}
}

func TestHealRecoveryPanicIsContained(t *testing.T) {
	c := NewController(testTable(), NewTracker())

	calls := 0
	ok := c.Heal(context.Background(), KindGeneralError, errors.New("boom"),
		func(ctx context.Context, k Kind, cause error) error {
			calls++
			if calls == 1 {
				panic("recovery gone wrong")
			}
			return nil
		})

	assert.True(t, ok, "panic on attempt 1 should not prevent attempt 2 succeeding")
	assert.Equal(t, 2, calls)
}

func TestHealContextCancellation(t *testing.T) {
	// Real-scale delays so cancellation fires during the backoff sleep.
	table := Table{
		KindNetworkError: {
			MaxAttempts: 5,
			BackoffBase: 10 * time.Second,
			BackoffCap:  10 * time.Second,
			Jitter:      false,
			Description: "network",
		},
	}
	tracker := NewTracker()
	c := NewController(table, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	done := make(chan bool, 1)
	go func() {
		done <- c.Heal(ctx, KindNetworkError, errors.New("refused"),
			func(ctx context.Context, k Kind, cause error) error {
				calls++
				return nil
			})
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Heal did not observe cancellation")
	}
	assert.Zero(t, calls)
	assert.Equal(t, StateHealthy, tracker.State(),
		"cancellation should not mark the backend degraded")
}

func TestHealNilRecoveryExhausts(t *testing.T) {
	tracker := NewTracker()
	c := NewController(testTable(), tracker)

	ok := c.Heal(context.Background(), KindGeneralError, errors.New("x"), nil)
	assert.False(t, ok)
	assert.Equal(t, StateDegraded, tracker.State())
}

func TestTrackerCounters(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordError(errors.New("e1"), "/tmp/a")
	tracker.RecordError(errors.New("e2"), "/tmp/b")
	tracker.RecordHealing(KindRateLimit, errors.New("429"))

	snap := tracker.Snapshot()
	assert.Equal(t, 2, snap.ErrorCount)
	assert.Equal(t, 1, snap.HealingCount)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "/tmp/b", snap.LastError.Path)
	require.NotNil(t, snap.LastHealing)
	assert.Equal(t, KindRateLimit, snap.LastHealing.Kind)
	assert.GreaterOrEqual(t, snap.Uptime, time.Duration(0))
}

func TestTableLookupFallback(t *testing.T) {
	table := DefaultTable()
	s := table.Lookup(Kind("SOMETHING_NEW"))
	assert.Equal(t, table[KindGeneralError], s)

	empty := Table{}
	s = empty.Lookup(KindRateLimit)
	assert.Equal(t, 3, s.MaxAttempts)
}
