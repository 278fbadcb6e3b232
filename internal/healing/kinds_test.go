package healing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStructured(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "explicit category wins",
			err:  &Failure{Status: 500, Category: KindRateLimit, Err: errors.New("anything")},
			want: KindRateLimit,
		},
		{
			name: "status 429",
			err:  NewFailure(429, errors.New("slow down")),
			want: KindRateLimit,
		},
		{
			name: "status 401",
			err:  NewFailure(401, errors.New("nope")),
			want: KindTokenError,
		},
		{
			name: "status 403",
			err:  NewFailure(403, errors.New("forbidden")),
			want: KindTokenError,
		},
		{
			name: "status 408",
			err:  NewFailure(408, errors.New("request timeout")),
			want: KindAPITimeout,
		},
		{
			name: "status 500",
			err:  NewFailure(500, errors.New("boom")),
			want: KindServerError,
		},
		{
			name: "status 503",
			err:  NewFailure(503, errors.New("unavailable")),
			want: KindServerError,
		},
		{
			name: "wrapped failure is still found",
			err:  fmt.Errorf("submit analysis: %w", NewFailure(429, errors.New("slow down"))),
			want: KindRateLimit,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			want: KindAPITimeout,
		},
		{
			name: "net op error",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")},
			want: KindNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyTextFallback(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"request timed out after 30s", KindAPITimeout},
		{"rate limit exceeded", KindRateLimit},
		{"HTTP 429 too many requests", KindRateLimit},
		{"invalid api key provided", KindTokenError},
		{"unauthorized", KindTokenError},
		{"connection refused", KindNetworkError},
		{"network unreachable", KindNetworkError},
		{"internal server error", KindServerError},
		{"got 502 from upstream", KindServerError},
		{"something unexpected happened", KindGeneralError},
		// Priority ordering: timeout phrasing beats connection phrasing.
		{"connection timed out", KindAPITimeout},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, KindGeneralError, Classify(nil))
}

func TestFailureError(t *testing.T) {
	f := NewFailure(429, errors.New("slow down"))
	assert.Contains(t, f.Error(), "429")
	assert.Contains(t, f.Error(), "slow down")

	inner := errors.New("inner")
	assert.ErrorIs(t, &Failure{Err: inner}, inner)
}
