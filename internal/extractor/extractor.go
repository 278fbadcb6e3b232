// Package extractor provides format-specific content extractors that
// enrich scan results with tags and details.
//
// Extractors are registered statically at startup. Each one is isolated:
// a failing or panicking extractor contributes nothing for that file and
// never aborts the scan.
package extractor

import (
	"fmt"
	"log/slog"
	"sort"
)

// Context carries per-file data already computed by the scan engine so
// extractors can reuse it instead of re-reading the file.
type Context struct {
	FileType string
	FileSize int64
	Entropy  float64
}

// Finding is the output of a single extractor run.
type Finding struct {
	Tags    []string       `json:"tags"`
	Details map[string]any `json:"details,omitempty"`
}

// Extractor analyzes one file and returns tags plus structured details.
type Extractor interface {
	Name() string
	Version() string
	Extract(path string, fctx Context) (Finding, error)
}

// Registry holds a fixed set of extractors.
type Registry struct {
	extractors []Extractor
	logger     *slog.Logger
}

// NewRegistry builds a registry over the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{
		extractors: extractors,
		logger:     slog.Default().With("component", "extractor"),
	}
}

// DefaultRegistry returns the registry with the built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewTextExtractor(), NewEntropyTagger())
}

// Names lists the registered extractors.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.extractors))
	for _, ex := range r.extractors {
		names = append(names, ex.Name())
	}
	return names
}

// Run executes every extractor against path and merges their findings.
// Tags are deduplicated and sorted; details are namespaced by extractor
// name. Individual extractor failures are logged and skipped.
func (r *Registry) Run(path string, fctx Context) Finding {
	merged := Finding{Details: map[string]any{}}
	seen := map[string]bool{}

	for _, ex := range r.extractors {
		finding, err := r.runOne(ex, path, fctx)
		if err != nil {
			r.logger.Warn("extractor failed",
				"extractor", ex.Name(), "path", path, "error", err)
			continue
		}
		for _, tag := range finding.Tags {
			if !seen[tag] {
				seen[tag] = true
				merged.Tags = append(merged.Tags, tag)
			}
		}
		if len(finding.Details) > 0 {
			merged.Details[ex.Name()] = finding.Details
		}
	}

	sort.Strings(merged.Tags)
	return merged
}

func (r *Registry) runOne(ex Extractor, path string, fctx Context) (finding Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extractor panic: %v", rec)
		}
	}()
	return ex.Extract(path, fctx)
}
