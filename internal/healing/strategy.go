package healing

import "time"

// Strategy is the retry policy for one failure kind.
type Strategy struct {
	MaxAttempts int
	BackoffBase time.Duration // first delay; doubles each attempt
	BackoffCap  time.Duration // upper bound before jitter
	Jitter      bool          // multiply delays by uniform [0.5, 1.5)
	Description string
}

// Table maps failure kinds to their retry policies.
type Table map[Kind]Strategy

// DefaultTable returns the standard per-kind policies. Rate limits back off
// long and often; credential errors fail fast since retrying an invalid key
// rarely helps.
func DefaultTable() Table {
	return Table{
		KindAPITimeout: {
			MaxAttempts: 5,
			BackoffBase: 1500 * time.Millisecond,
			BackoffCap:  30 * time.Second,
			Jitter:      true,
			Description: "API timeout recovery",
		},
		KindRateLimit: {
			MaxAttempts: 8,
			BackoffBase: 2 * time.Second,
			BackoffCap:  60 * time.Second,
			Jitter:      true,
			Description: "Rate limit recovery with exponential backoff",
		},
		KindTokenError: {
			MaxAttempts: 3,
			BackoffBase: 1 * time.Second,
			BackoffCap:  5 * time.Second,
			Jitter:      false,
			Description: "API token validation error recovery",
		},
		KindNetworkError: {
			MaxAttempts: 7,
			BackoffBase: 1700 * time.Millisecond,
			BackoffCap:  45 * time.Second,
			Jitter:      true,
			Description: "Network connection recovery",
		},
		KindServerError: {
			MaxAttempts: 6,
			BackoffBase: 2500 * time.Millisecond,
			BackoffCap:  120 * time.Second,
			Jitter:      true,
			Description: "Server error recovery with extended backoff",
		},
		KindGeneralError: {
			MaxAttempts: 3,
			BackoffBase: 1 * time.Second,
			BackoffCap:  15 * time.Second,
			Jitter:      true,
			Description: "Generic error recovery",
		},
	}
}

// Lookup returns the policy for kind, falling back to the general policy
// when the kind has no entry.
func (t Table) Lookup(kind Kind) Strategy {
	if s, ok := t[kind]; ok {
		return s
	}
	if s, ok := t[KindGeneralError]; ok {
		return s
	}
	return Strategy{
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
		BackoffCap:  15 * time.Second,
		Jitter:      true,
		Description: "Generic error recovery",
	}
}

// Scaled returns a copy of the table with all delays multiplied by factor.
// Used by tests to exercise the full retry loop without real waits.
func (t Table) Scaled(factor float64) Table {
	scaled := make(Table, len(t))
	for kind, s := range t {
		s.BackoffBase = time.Duration(float64(s.BackoffBase) * factor)
		s.BackoffCap = time.Duration(float64(s.BackoffCap) * factor)
		scaled[kind] = s
	}
	return scaled
}
