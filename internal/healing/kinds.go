package healing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies a class of backend failure with its own recovery policy.
type Kind string

const (
	KindAPITimeout   Kind = "API_TIMEOUT"
	KindRateLimit    Kind = "RATE_LIMIT"
	KindTokenError   Kind = "TOKEN_ERROR"
	KindNetworkError Kind = "NETWORK_ERROR"
	KindServerError  Kind = "SERVER_ERROR"
	KindGeneralError Kind = "GENERAL_ERROR"
)

// Failure is a structured backend failure. Remote clients should return a
// *Failure so classification can use the HTTP status or a pre-assigned
// category instead of scraping the message text.
type Failure struct {
	Status   int  // HTTP status code, 0 when not applicable
	Category Kind // pre-classified kind, empty when unknown
	Err      error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("backend failure (status %d): %v", f.Status, f.Err)
	}
	return fmt.Sprintf("backend failure: %v", f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err with an HTTP status for classification.
func NewFailure(status int, err error) *Failure {
	return &Failure{Status: status, Err: err}
}

// Classify maps a backend failure to a Kind. Structured information (a
// *Failure in the chain, context deadlines, net.Error timeouts) is preferred;
// substring matching on the message is kept only as a last-resort fallback
// and is known to be incomplete across client library versions.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneralError
	}

	var f *Failure
	if errors.As(err, &f) {
		if f.Category != "" {
			return f.Category
		}
		if kind, ok := classifyStatus(f.Status); ok {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindAPITimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindAPITimeout
		}
		return KindNetworkError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetworkError
	}

	return classifyText(err.Error())
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == 408:
		return KindAPITimeout, true
	case status == 429:
		return KindRateLimit, true
	case status == 401 || status == 403:
		return KindTokenError, true
	case status >= 500 && status < 600:
		return KindServerError, true
	default:
		return KindGeneralError, false
	}
}

// classifyText is the fallback for unstructured errors. Matches are
// priority-ordered; the first hit wins.
func classifyText(msg string) Kind {
	msg = strings.ToLower(msg)

	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindAPITimeout
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return KindRateLimit
	case containsAny(msg, "auth", "key", "unauthorized", "401"):
		return KindTokenError
	case containsAny(msg, "connection", "network", "connect"):
		return KindNetworkError
	case containsAny(msg, "500", "502", "503", "server error"):
		return KindServerError
	default:
		return KindGeneralError
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
