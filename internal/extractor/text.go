package extractor

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	// maxTextSize bounds how much content the text extractor will read.
	maxTextSize = 100 * 1024 * 1024

	// longLineThreshold marks unusually long average line length, a
	// common trait of minified or generated payloads.
	longLineThreshold = 120.0
)

// suspiciousPatterns flag content worth a closer look: credential-style
// assignments, embedded URLs and email addresses.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:password|secret|key|token)\s*[=:]\s*['"][^'"]+['"]`),
	regexp.MustCompile(`(?:https?://|ftp://)[^\s/$.?#].[^\s]*`),
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
}

// textTypes are the extensions the text extractor handles.
var textTypes = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".csv": true, ".json": true,
	".xml": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".cfg": true, ".conf": true, ".py": true, ".js": true, ".ts": true,
	".go": true, ".sh": true, ".rb": true, ".php": true, ".html": true,
	".css": true, ".sql": true, ".env": true,
}

// TextExtractor inspects text content for suspicious patterns and shape
// anomalies such as very long lines or binary-like content.
type TextExtractor struct {
	patterns []*regexp.Regexp
}

// NewTextExtractor returns a text extractor with the built-in patterns.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{patterns: suspiciousPatterns}
}

func (e *TextExtractor) Name() string    { return "text" }
func (e *TextExtractor) Version() string { return "1.0.0" }

// Extract reads the file and tags suspicious content. Non-text files and
// files over the size cap are skipped without error.
func (e *TextExtractor) Extract(path string, fctx Context) (Finding, error) {
	if !textTypes[fctx.FileType] {
		return Finding{}, nil
	}
	if fctx.FileSize > maxTextSize {
		return Finding{}, fmt.Errorf("file too large: %d bytes", fctx.FileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Finding{}, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	lineCount := len(strings.Split(content, "\n"))
	wordCount := len(strings.Fields(content))
	avgLineLength := float64(len(content)) / float64(max(lineCount, 1))

	var matches []map[string]any
	for _, pat := range e.patterns {
		for _, loc := range pat.FindAllStringIndex(content, -1) {
			start, end := loc[0], loc[1]
			line := strings.Count(content[:start], "\n") + 1
			lo := max(start-20, 0)
			hi := min(end+20, len(content))
			matches = append(matches, map[string]any{
				"pattern": pat.String(),
				"line":    line,
				"excerpt": content[lo:hi],
			})
		}
	}

	finding := Finding{
		Details: map[string]any{
			"line_count":      lineCount,
			"word_count":      wordCount,
			"avg_line_length": avgLineLength,
		},
	}
	if len(matches) > 0 {
		finding.Tags = append(finding.Tags, "suspicious_content")
		finding.Details["suspicious_matches"] = matches
	}
	if avgLineLength > longLineThreshold {
		finding.Tags = append(finding.Tags, "long_lines")
	}
	if wordCount == 0 && len(content) > 100 {
		finding.Tags = append(finding.Tags, "binary_like")
	}
	return finding, nil
}
