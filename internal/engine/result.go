package engine

import (
	"time"

	"github.com/specterwire/anomscan/internal/backend"
)

// ScanResult is the per-file outcome of a scan.
type ScanResult struct {
	Path         string            `json:"path"`
	FileType     string            `json:"file_type"`
	FileSize     int64             `json:"file_size"`
	Entropy      float64           `json:"entropy"`
	AnomalyScore float64           `json:"anomaly_score"`
	Analysis     *backend.Analysis `json:"analysis,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ScanDuration time.Duration     `json:"scan_duration"`
}

// Failed reports whether the file's analysis carried an error marker.
func (r *ScanResult) Failed() bool {
	return r.Analysis != nil && r.Analysis.Failed()
}

// DirectoryReport aggregates every result produced under one task id.
// File tasks get a report too, with a single entry.
type DirectoryReport struct {
	TaskID         string        `json:"task_id"`
	Root           string        `json:"root"`
	TotalFiles     int           `json:"total_files"`
	ProcessedFiles int           `json:"processed_files"`
	SkippedFiles   int           `json:"skipped_files"`
	FailedFiles    int           `json:"failed_files"`
	Results        []*ScanResult `json:"results"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Duration       time.Duration `json:"duration"`
}

// MaxScore returns the highest anomaly score in the report.
func (r *DirectoryReport) MaxScore() float64 {
	var maxScore float64
	for _, result := range r.Results {
		if result.AnomalyScore > maxScore {
			maxScore = result.AnomalyScore
		}
	}
	return maxScore
}
