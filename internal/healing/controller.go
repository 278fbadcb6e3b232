package healing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
)

// Stage identifies a point in the healing lifecycle.
type Stage string

const (
	StageStart    Stage = "start"
	StageProgress Stage = "progress"
	StageSuccess  Stage = "success"
	StageFailure  Stage = "failure"
)

// Event carries the details of one healing lifecycle notification.
type Event struct {
	Kind        Kind
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
	Strategy    string
	Cause       error
	Timestamp   time.Time
}

// Observer receives healing lifecycle events. Implementations must not
// block; delivery happens on the worker goroutine running the retry loop.
type Observer func(stage Stage, event Event)

// RecoverFunc performs the kind-specific corrective action for one attempt.
// A nil return reports recovery success.
type RecoverFunc func(ctx context.Context, kind Kind, cause error) error

// healContext tracks one healing run across its attempts.
type healContext struct {
	kind      Kind
	attempts  int
	strategy  Strategy
	startedAt time.Time
	lastErr   error
}

// Controller executes the retry-with-backoff state machine for classified
// backend failures. One controller is shared by all workers; each Heal call
// runs independently and blocks only its caller.
type Controller struct {
	strategies Table
	health     *Tracker
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers a lifecycle event observer.
func WithObserver(obs Observer) Option {
	return func(c *Controller) { c.observer = obs }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a Controller using the given strategy table and
// health tracker. A nil table uses DefaultTable.
func NewController(strategies Table, health *Tracker, opts ...Option) *Controller {
	if strategies == nil {
		strategies = DefaultTable()
	}
	if health == nil {
		health = NewTracker()
	}
	c := &Controller{
		strategies: strategies,
		health:     health,
		logger:     slog.Default().With("component", "healing"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health returns the tracker shared with this controller.
func (c *Controller) Health() *Tracker { return c.health }

// Heal runs the retry loop for a classified failure. It returns true as soon
// as one recovery attempt succeeds, and false after exhausting the policy's
// attempts or when ctx is cancelled. Exhaustion marks the tracker degraded;
// success marks it healthy. Cancellation leaves the state untouched since it
// says nothing about the backend.
func (c *Controller) Heal(ctx context.Context, kind Kind, cause error, recover RecoverFunc) bool {
	strategy := c.strategies.Lookup(kind)
	hc := &healContext{
		kind:      kind,
		strategy:  strategy,
		startedAt: time.Now(),
		lastErr:   cause,
	}

	c.health.RecordHealing(kind, cause)
	c.logger.Warn("self-healing triggered",
		"kind", kind, "strategy", strategy.Description, "cause", cause)

	c.emit(StageStart, Event{
		Kind:        kind,
		MaxAttempts: strategy.MaxAttempts,
		Strategy:    strategy.Description,
		Cause:       cause,
		Timestamp:   time.Now(),
	})

	bo := newBackOff(strategy)
	for attempt := 1; attempt <= strategy.MaxAttempts; attempt++ {
		hc.attempts = attempt
		delay := bo.NextBackOff()

		select {
		case <-ctx.Done():
			c.logger.Info("healing cancelled", "kind", kind, "attempt", attempt)
			c.emit(StageFailure, Event{
				Kind:        kind,
				Attempt:     attempt,
				MaxAttempts: strategy.MaxAttempts,
				Strategy:    strategy.Description,
				Cause:       ctx.Err(),
				Timestamp:   time.Now(),
			})
			return false
		case <-time.After(delay):
		}

		c.emit(StageProgress, Event{
			Kind:        kind,
			Attempt:     attempt,
			MaxAttempts: strategy.MaxAttempts,
			Backoff:     delay,
			Strategy:    strategy.Description,
			Timestamp:   time.Now(),
		})

		err := c.runRecovery(ctx, kind, cause, recover)
		if err == nil {
			c.logger.Info("self-healing succeeded",
				"kind", kind, "attempt", attempt, "elapsed", time.Since(hc.startedAt))
			c.emit(StageSuccess, Event{
				Kind:        kind,
				Attempt:     attempt,
				MaxAttempts: strategy.MaxAttempts,
				Strategy:    strategy.Description,
				Timestamp:   time.Now(),
			})
			c.health.SetState(StateHealthy)
			return true
		}

		hc.lastErr = err
		c.logger.Error("healing attempt failed",
			"kind", kind, "attempt", attempt, "max_attempts", strategy.MaxAttempts, "error", err)
	}

	c.logger.Error("self-healing exhausted",
		"kind", kind, "attempts", strategy.MaxAttempts, "last_error", hc.lastErr)
	c.emit(StageFailure, Event{
		Kind:        kind,
		Attempt:     strategy.MaxAttempts,
		MaxAttempts: strategy.MaxAttempts,
		Strategy:    strategy.Description,
		Cause:       hc.lastErr,
		Timestamp:   time.Now(),
	})
	c.health.SetState(StateDegraded)
	return false
}

// runRecovery invokes the recovery action, converting a panic into an error
// so a misbehaving action cannot take down the worker.
func (c *Controller) runRecovery(ctx context.Context, kind Kind, cause error, fn RecoverFunc) (err error) {
	if fn == nil {
		return fmt.Errorf("no recovery action registered for %s", kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovery action panicked: %v", r)
		}
	}()
	return fn(ctx, kind, cause)
}

func (c *Controller) emit(stage Stage, event Event) {
	if c.observer != nil {
		c.observer(stage, event)
	}
}

// newBackOff builds the delay generator for one healing run. Delays follow
// min(base * 2^(attempt-1), cap); jitter multiplies by uniform [0.5, 1.5).
func newBackOff(s Strategy) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.BackoffBase
	bo.MaxInterval = s.BackoffCap
	bo.Multiplier = 2.0
	bo.MaxElapsedTime = 0
	if s.Jitter {
		bo.RandomizationFactor = 0.5
	} else {
		bo.RandomizationFactor = 0
	}
	bo.Reset()
	return bo
}
