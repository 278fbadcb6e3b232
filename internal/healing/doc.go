// Package healing implements the self-healing retry state machine for
// backend failures.
//
// A failure is first classified into an error kind, preferring structured
// data (HTTP status, typed failures) over message text. Each kind maps to
// a retry strategy (attempt ceiling, exponential backoff base and cap,
// jitter). The Controller runs the retry loop: wait out the backoff, run
// the kind-specific recovery action, and report lifecycle events to an
// optional observer. A Tracker records the resulting health state along
// with error and healing history.
package healing
