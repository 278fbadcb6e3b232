package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractorSuspiciousContent(t *testing.T) {
	dir := t.TempDir()
	content := "config:\n" +
		"  password = \"hunter2\"\n" +
		"  endpoint: https://evil.example.com/drop\n" +
		"  contact: admin@example.com\n"
	path := writeFile(t, dir, "config.yaml", []byte(content))

	ex := NewTextExtractor()
	finding, err := ex.Extract(path, Context{FileType: ".yaml", FileSize: int64(len(content))})
	require.NoError(t, err)

	assert.Contains(t, finding.Tags, "suspicious_content")
	matches := finding.Details["suspicious_matches"].([]map[string]any)
	require.Len(t, matches, 3, "secret assignment, URL and email each match once")
	assert.Equal(t, 2, matches[0]["line"])
	assert.Contains(t, matches[0]["excerpt"], "hunter2")
}

func TestTextExtractorLongLines(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("a", 500) + "\n"
	path := writeFile(t, dir, "minified.js", []byte(content))

	ex := NewTextExtractor()
	finding, err := ex.Extract(path, Context{FileType: ".js", FileSize: int64(len(content))})
	require.NoError(t, err)
	assert.Contains(t, finding.Tags, "long_lines")
}

func TestTextExtractorBinaryLike(t *testing.T) {
	dir := t.TempDir()
	// Over 100 bytes of content with zero words.
	content := strings.Repeat("\t \n", 50)
	path := writeFile(t, dir, "blob.log", []byte(content))

	ex := NewTextExtractor()
	finding, err := ex.Extract(path, Context{FileType: ".log", FileSize: int64(len(content))})
	require.NoError(t, err)
	assert.Contains(t, finding.Tags, "binary_like")
}

func TestTextExtractorCleanFile(t *testing.T) {
	dir := t.TempDir()
	content := "short notes\nnothing odd here\n"
	path := writeFile(t, dir, "notes.txt", []byte(content))

	ex := NewTextExtractor()
	finding, err := ex.Extract(path, Context{FileType: ".txt", FileSize: int64(len(content))})
	require.NoError(t, err)
	assert.Empty(t, finding.Tags)
	assert.Equal(t, 3, finding.Details["line_count"], "trailing newline yields an empty final line")
	assert.Equal(t, 5, finding.Details["word_count"])
}

func TestTextExtractorSkipsNonText(t *testing.T) {
	ex := NewTextExtractor()
	finding, err := ex.Extract("/nonexistent", Context{FileType: ".exe", FileSize: 10})
	require.NoError(t, err)
	assert.Empty(t, finding.Tags)
	assert.Empty(t, finding.Details)
}

func TestTextExtractorRejectsOversized(t *testing.T) {
	ex := NewTextExtractor()
	_, err := ex.Extract("/nonexistent", Context{FileType: ".txt", FileSize: maxTextSize + 1})
	assert.Error(t, err)
}
