package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type stubExtractor struct {
	name    string
	finding Finding
	err     error
	panics  bool
}

func (s *stubExtractor) Name() string    { return s.name }
func (s *stubExtractor) Version() string { return "0.0.0" }

func (s *stubExtractor) Extract(path string, fctx Context) (Finding, error) {
	if s.panics {
		panic("boom")
	}
	return s.finding, s.err
}

func TestRegistryMergesFindings(t *testing.T) {
	reg := NewRegistry(
		&stubExtractor{name: "a", finding: Finding{
			Tags:    []string{"zeta", "alpha"},
			Details: map[string]any{"k": 1},
		}},
		&stubExtractor{name: "b", finding: Finding{
			Tags: []string{"alpha", "beta"},
		}},
	)

	merged := reg.Run("/tmp/x", Context{})
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, merged.Tags, "deduplicated and sorted")
	assert.Contains(t, merged.Details, "a")
	assert.NotContains(t, merged.Details, "b", "empty details are not namespaced")
}

func TestRegistryIsolatesFailures(t *testing.T) {
	reg := NewRegistry(
		&stubExtractor{name: "broken", err: errors.New("read failed")},
		&stubExtractor{name: "panicky", panics: true},
		&stubExtractor{name: "ok", finding: Finding{Tags: []string{"good"}}},
	)

	merged := reg.Run("/tmp/x", Context{})
	assert.Equal(t, []string{"good"}, merged.Tags)
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"text", "entropy"}, reg.Names())
}
