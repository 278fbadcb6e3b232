// Package scoring combines entropy and backend analysis signals into a
// single bounded anomaly score.
package scoring

import "github.com/specterwire/anomscan/internal/entropy"

// Default component weights. Entropy is a weak signal on its own; the
// backend's content-aware score dominates.
const (
	DefaultEntropyWeight = 0.3
	DefaultBackendWeight = 0.7
)

// ErrorFloor is the minimum backend score applied when the backend payload
// carries an error marker, so failed analyses are never scored as benign.
const ErrorFloor = 0.5

// Scorer computes weighted anomaly scores. The zero value is not usable;
// construct with New.
type Scorer struct {
	entropyWeight float64
	backendWeight float64
}

// New returns a Scorer with the default weights.
func New() *Scorer {
	return &Scorer{
		entropyWeight: DefaultEntropyWeight,
		backendWeight: DefaultBackendWeight,
	}
}

// NewWithWeights returns a Scorer with explicit weights. Non-positive
// weights fall back to the defaults.
func NewWithWeights(entropyWeight, backendWeight float64) *Scorer {
	s := New()
	if entropyWeight > 0 {
		s.entropyWeight = entropyWeight
	}
	if backendWeight > 0 {
		s.backendWeight = backendWeight
	}
	return s
}

// Score combines a file's entropy with the backend-reported anomaly score.
// backendErr indicates the backend payload carried an error marker, which
// floors the backend component at ErrorFloor. The result is clamped to [0,1].
func (s *Scorer) Score(fileEntropy, backendScore float64, backendErr bool) float64 {
	entropyComponent := fileEntropy / entropy.MaxBits
	if entropyComponent > 1 {
		entropyComponent = 1
	}
	if entropyComponent < 0 {
		entropyComponent = 0
	}

	if backendErr && backendScore < ErrorFloor {
		backendScore = ErrorFloor
	}

	return Clamp01(s.entropyWeight*entropyComponent + s.backendWeight*backendScore)
}

// Clamp01 clamps v to the [0,1] range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
