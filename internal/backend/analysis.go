package backend

import "time"

// Analysis method markers.
const (
	MethodOnline   = "online"
	MethodOffline  = "offline"
	MethodFallback = "fallback"
)

// Default anomaly scores for degraded outcomes. A neutral score is used
// when metrics simply could not be computed; failed analyses score higher
// so they are never systematically under-flagged.
const (
	NeutralScore = 0.5
	ErrorScore   = 0.7
)

// Analysis is the structured payload produced for one file. Offline
// heuristic fields are zero for online results and vice versa; Error is
// non-empty when the analysis degraded.
type Analysis struct {
	Path          string    `json:"path"`
	FileType      string    `json:"file_type"`
	FileSize      int64     `json:"file_size"`
	Method        string    `json:"analysis_method"`
	AnomalyScore  float64   `json:"anomaly_score"`
	SampleEntropy float64   `json:"sample_entropy,omitempty"`
	Lines         int       `json:"lines,omitempty"`
	Words         int       `json:"words,omitempty"`
	AvgLineLength float64   `json:"avg_line_length,omitempty"`
	CommentLines  int       `json:"comment_lines,omitempty"`
	CommentRatio  float64   `json:"comment_ratio,omitempty"`
	UniqueBytes   int       `json:"unique_bytes,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Concerns      []string  `json:"security_concerns,omitempty"`
	Obfuscated    bool      `json:"obfuscation_detected,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Failed reports whether the payload carries an error marker.
func (a *Analysis) Failed() bool { return a != nil && a.Error != "" }
