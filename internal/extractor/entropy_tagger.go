package extractor

import (
	"math"

	"github.com/specterwire/anomscan/internal/entropy"
)

// Thresholds control how the entropy tagger classifies files.
type Thresholds struct {
	Encrypted     float64 // above this: likely encrypted
	Compressed    float64 // above this: likely compressed
	High          float64 // above this: notably high entropy
	Low           float64 // below this: repetitive content
	ChunkVariance float64 // chunk stddev above this: uneven entropy
	ChunkSize     int
	MinSize       int64 // files smaller than this are skipped
}

// DefaultThresholds returns the standard classification boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Encrypted:     7.8,
		Compressed:    7.0,
		High:          7.5,
		Low:           3.0,
		ChunkVariance: 0.5,
		ChunkSize:     4096,
		MinSize:       1024,
	}
}

// archiveTypes are formats where very high entropy is expected rather
// than suspicious.
var archiveTypes = map[string]bool{
	".zip": true, ".gz": true, ".xz": true, ".bz2": true, ".7z": true,
	".jpg": true, ".png": true, ".mp3": true, ".mp4": true,
}

// EntropyTagger classifies files by their entropy profile: overall level
// and variance across chunks, which can reveal embedded encrypted or
// hidden regions.
type EntropyTagger struct {
	thresholds Thresholds
}

// NewEntropyTagger returns a tagger with the default thresholds.
func NewEntropyTagger() *EntropyTagger {
	return &EntropyTagger{thresholds: DefaultThresholds()}
}

// NewEntropyTaggerWith returns a tagger with custom thresholds.
func NewEntropyTaggerWith(t Thresholds) *EntropyTagger {
	return &EntropyTagger{thresholds: t}
}

func (e *EntropyTagger) Name() string    { return "entropy" }
func (e *EntropyTagger) Version() string { return "1.0.0" }

// Extract tags the file by entropy level. Files under the minimum size
// are skipped; the chunk pass is the only file read this extractor does.
func (e *EntropyTagger) Extract(path string, fctx Context) (Finding, error) {
	if fctx.FileSize < e.thresholds.MinSize {
		return Finding{}, nil
	}

	overall, chunks, err := entropy.FileChunks(path, e.thresholds.ChunkSize)
	if err != nil {
		return Finding{}, err
	}
	// Prefer the engine's whole-file value when it already computed one.
	if fctx.Entropy > 0 {
		overall = fctx.Entropy
	}

	finding := Finding{
		Details: map[string]any{
			"entropy":        overall,
			"classification": e.classify(overall),
		},
	}

	t := e.thresholds
	switch {
	case overall > t.Encrypted:
		finding.Tags = append(finding.Tags, "likely_encrypted")
	case overall > t.Compressed:
		finding.Tags = append(finding.Tags, "likely_compressed")
	case overall > t.High:
		finding.Tags = append(finding.Tags, "high_entropy")
	case overall < t.Low:
		finding.Tags = append(finding.Tags, "low_entropy")
	}

	if overall > t.Encrypted && !archiveTypes[fctx.FileType] {
		finding.Tags = append(finding.Tags, "suspicious_high_entropy")
	}
	if fctx.FileType == ".py" && overall > 6.5 {
		finding.Tags = append(finding.Tags, "obfuscated_python")
	}

	if len(chunks) > 1 {
		variance := stddev(chunks)
		finding.Details["entropy_variance"] = variance
		if variance > t.ChunkVariance {
			finding.Tags = append(finding.Tags, "high_entropy_variance")
			if anomalousChunks(chunks) {
				finding.Tags = append(finding.Tags, "potential_hidden_data")
			}
		}
	}

	return finding, nil
}

func (e *EntropyTagger) classify(h float64) string {
	t := e.thresholds
	switch {
	case h > t.Encrypted:
		return "encrypted_or_compressed"
	case h > t.Compressed:
		return "likely_compressed"
	case h > t.High:
		return "high"
	case h < t.Low:
		return "low"
	default:
		return "normal"
	}
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// anomalousChunks looks for entropy outliers or sharp jumps between
// adjacent chunks, patterns consistent with embedded or hidden data.
func anomalousChunks(chunks []float64) bool {
	if len(chunks) < 3 {
		return false
	}

	std := stddev(chunks)
	if std < 0.1 {
		return false
	}
	var sum float64
	for _, v := range chunks {
		sum += v
	}
	mean := sum / float64(len(chunks))

	outliers := 0
	for _, v := range chunks {
		if math.Abs(v-mean)/std > 2.5 {
			outliers++
		}
	}
	if outliers > 0 && float64(outliers) < float64(len(chunks))*0.2 {
		return true
	}

	for i := 1; i < len(chunks); i++ {
		if math.Abs(chunks[i]-chunks[i-1]) > 1.5 {
			return true
		}
	}
	return false
}
