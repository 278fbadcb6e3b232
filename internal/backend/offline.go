package backend

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/specterwire/anomscan/internal/entropy"
	"github.com/specterwire/anomscan/internal/scoring"
)

// Sample sizes for offline heuristics. Text analysis looks at the first
// 4 KiB; binary entropy uses a larger window since byte histograms need
// more data to stabilize.
const (
	textSampleSize   = 4096
	binarySampleSize = 8192
)

// textExtensions are the types analyzed as text; codeExtensions is the
// subset that also gets comment-ratio heuristics.
var (
	textExtensions = map[string]bool{
		".txt": true, ".md": true, ".py": true, ".js": true, ".html": true,
		".css": true, ".java": true, ".c": true, ".cpp": true, ".h": true,
		".cs": true, ".php": true, ".rb": true, ".go": true, ".rs": true,
		".swift": true, ".kt": true, ".ts": true, ".json": true, ".xml": true,
		".yaml": true, ".yml": true, ".sql": true, ".sh": true, ".bat": true,
		".ps1": true, ".toml": true, ".log": true, ".csv": true,
	}

	codeExtensions = map[string]bool{
		".py": true, ".js": true, ".java": true, ".c": true, ".cpp": true,
		".cs": true, ".php": true, ".rb": true, ".go": true, ".rs": true,
		".swift": true, ".kt": true, ".ts": true, ".sh": true,
	}

	commentMarkers = []string{"#", "//", "/*", "*/", "* "}
)

// offlineAnalyzer computes heuristic analyses without network access.
type offlineAnalyzer struct{}

// Analyze produces a heuristic payload for the file. It never fails: a
// read error yields a payload with a neutral score and the error recorded.
func (o *offlineAnalyzer) Analyze(path, fileType string, fileSize int64) *Analysis {
	result := &Analysis{
		Path:      path,
		FileType:  fileType,
		FileSize:  fileSize,
		Method:    MethodOffline,
		CreatedAt: time.Now(),
	}

	if textExtensions[fileType] {
		o.analyzeText(path, fileType, result)
	} else {
		o.analyzeBinary(path, result)
	}
	return result
}

func (o *offlineAnalyzer) analyzeText(path, fileType string, result *Analysis) {
	sample, err := readSample(path, textSampleSize)
	if err != nil {
		result.Error = err.Error()
		result.AnomalyScore = NeutralScore
		return
	}

	text := string(sample)
	lines := strings.Split(text, "\n")
	result.Lines = len(lines)
	result.Words = len(strings.Fields(text))
	result.AvgLineLength = float64(len(text)) / float64(max(1, result.Lines))
	result.SampleEntropy = entropy.Bytes(sample)

	if codeExtensions[fileType] {
		for _, line := range lines {
			for _, marker := range commentMarkers {
				if strings.Contains(line, marker) {
					result.CommentLines++
					break
				}
			}
		}
		result.CommentRatio = float64(result.CommentLines) / float64(max(1, result.Lines))
		result.AnomalyScore = scoring.Clamp01(result.SampleEntropy / 5.0 * 0.7)
	} else {
		result.AnomalyScore = scoring.Clamp01(result.SampleEntropy / 5.0 * 0.6)
	}
}

func (o *offlineAnalyzer) analyzeBinary(path string, result *Analysis) {
	sample, err := readSample(path, binarySampleSize)
	if err != nil {
		result.Error = err.Error()
		result.AnomalyScore = NeutralScore
		return
	}

	var c entropy.Calculator
	_, _ = c.Write(sample)
	result.SampleEntropy = c.Value()
	result.UniqueBytes = c.UniqueBytes()
	result.AnomalyScore = scoring.Clamp01(result.SampleEntropy / entropy.MaxBits * 0.8)
}

// readSample reads up to limit bytes from the start of the file. Short
// files yield their full contents; the sample never depends on how the
// underlying reads happen to chunk.
func readSample(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}
