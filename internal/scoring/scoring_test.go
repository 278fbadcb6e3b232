package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	s := New()

	tests := []struct {
		name         string
		entropy      float64
		backendScore float64
		backendErr   bool
		want         float64
	}{
		{
			name:         "all zero",
			entropy:      0,
			backendScore: 0,
			want:         0,
		},
		{
			name:         "max entropy benign backend",
			entropy:      8,
			backendScore: 0,
			want:         0.3,
		},
		{
			name:         "max everything",
			entropy:      8,
			backendScore: 1,
			want:         1.0,
		},
		{
			name:         "half entropy half backend",
			entropy:      4,
			backendScore: 0.5,
			want:         0.3*0.5 + 0.7*0.5,
		},
		{
			name:         "error floors backend component",
			entropy:      0,
			backendScore: 0.1,
			backendErr:   true,
			want:         0.7 * 0.5,
		},
		{
			name:         "error does not lower a high backend score",
			entropy:      0,
			backendScore: 0.9,
			backendErr:   true,
			want:         0.7 * 0.9,
		},
		{
			name:         "entropy above range is capped",
			entropy:      12,
			backendScore: 0,
			want:         0.3,
		},
		{
			name:         "backend score above range clamps total",
			entropy:      8,
			backendScore: 2.0,
			want:         1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.entropy, tt.backendScore, tt.backendErr)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreAlwaysBounded(t *testing.T) {
	s := NewWithWeights(0.6, 0.9) // deliberately overweight
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 1000; i++ {
		got := s.Score(rng.Float64()*16-4, rng.Float64()*3-1, rng.Intn(2) == 0)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
}
