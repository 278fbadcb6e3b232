// Package backend provides the resilient analysis backend: a dual-mode
// (offline heuristic / online remote) file analyzer with a staleness-checked
// result cache and a self-healing retry state machine for remote failures.
//
// Analyze never lets a per-file failure escape: every outcome is a payload,
// degraded ones carry an Error field and an elevated anomaly score.
// Availability is prioritized over precision.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/specterwire/anomscan/internal/healing"
	"github.com/specterwire/anomscan/internal/metrics"
)

// DefaultProbeURL is used for basic external reachability checks during
// NETWORK_ERROR recovery and health checks.
const DefaultProbeURL = "https://www.google.com"

// onlineSampleSize bounds the content sent to the remote model.
const onlineSampleSize = 4096

// supportedTypes lists the file extensions eligible for content-aware
// analysis. Anything else still gets entropy-only treatment.
var supportedTypes = []string{
	".txt", ".md", ".py", ".js", ".html", ".css", ".java", ".c", ".cpp",
	".h", ".cs", ".php", ".rb", ".go", ".rs", ".swift", ".kt", ".ts",
	".json", ".xml", ".yaml", ".yml", ".sql", ".sh", ".bat", ".ps1",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt",
	".csv", ".rtf", ".log", ".conf", ".ini", ".cfg", ".toml",
	".htm", ".scss", ".less", ".jsx", ".tsx", ".tsv",
	".dll", ".exe", ".so", ".dylib", ".bin", ".dat",
}

// Config holds backend settings. Zero values select sensible defaults.
type Config struct {
	UseOfflineMode bool
	APIKey         string
	APIBase        string
	AltAPIBase     string // failover endpoint for SERVER_ERROR recovery
	Model          string
	CacheDir       string
	CacheSize      int
	Timeout        time.Duration
	ProbeURL       string
}

// Status extends the health tracker snapshot with backend diagnostics.
type Status struct {
	healing.Status
	OfflineMode    bool
	Initialized    bool
	SupportedTypes int
}

// Backend is the resilient analysis backend. Safe for concurrent use by
// many workers; healing backoffs block only the calling worker.
type Backend struct {
	cfg          Config
	client       RemoteClient
	offline      *offlineAnalyzer
	cache        *Cache
	controller   *healing.Controller
	health       *healing.Tracker
	strategies   healing.Table
	healObserver healing.Observer
	probeHTTP    *http.Client
	logger       *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithClient injects a remote client, replacing the HTTP client built from
// config. Used for failover targets and tests.
func WithClient(client RemoteClient) Option {
	return func(b *Backend) { b.client = client }
}

// WithHealingObserver forwards healing lifecycle events to obs.
func WithHealingObserver(obs healing.Observer) Option {
	return func(b *Backend) { b.healObserver = obs }
}

// WithStrategyTable overrides the healing retry policies.
func WithStrategyTable(table healing.Table) Option {
	return func(b *Backend) { b.strategies = table }
}

// New creates a Backend. In online mode an HTTP client is constructed from
// config unless one is injected; offline mode needs no credentials.
func New(cfg Config, opts ...Option) (*Backend, error) {
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = DefaultProbeURL
	}

	cache, err := NewCache(cfg.CacheSize, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	health := healing.NewTracker()
	b := &Backend{
		cfg:       cfg,
		offline:   &offlineAnalyzer{},
		cache:     cache,
		health:    health,
		probeHTTP: &http.Client{Timeout: 5 * time.Second},
		logger:    slog.Default().With("component", "backend"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.controller = healing.NewController(b.strategies, health,
		healing.WithObserver(b.healObserver))

	if !cfg.UseOfflineMode && b.client == nil {
		client, err := NewHTTPClient(ClientConfig{
			APIKey:  cfg.APIKey,
			APIBase: cfg.APIBase,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init remote client: %w", err)
		}
		b.client = client
	}

	b.logger.Info("backend initialized",
		"offline_mode", cfg.UseOfflineMode,
		"cache_dir", cfg.CacheDir,
		"supported_types", len(supportedTypes))
	return b, nil
}

// Health returns the shared health tracker.
func (b *Backend) Health() *healing.Tracker { return b.health }

// Cache exposes the analysis cache for diagnostics.
func (b *Backend) Cache() *Cache { return b.cache }

// Analyze produces an analysis payload for path. It consults the cache
// unless forceRefresh is set, picks offline or online analysis per
// configuration, and degrades gracefully on every failure: the returned
// payload is never nil and errors never propagate past this boundary.
func (b *Backend) Analyze(ctx context.Context, path string, forceRefresh bool) *Analysis {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &Analysis{
			Path:         path,
			Method:       MethodFallback,
			Error:        "file not found",
			AnomalyScore: NeutralScore,
			CreatedAt:    time.Now(),
		}
	}

	if !forceRefresh {
		if cached, ok := b.cache.Get(path, info); ok {
			metrics.CacheHits.Inc()
			b.logger.Debug("cache hit", "path", path)
			return cached
		}
		metrics.CacheMisses.Inc()
	}

	fileType := strings.ToLower(filepath.Ext(path))
	result := b.analyze(ctx, path, fileType, info.Size())
	result.Path = path
	result.FileType = fileType
	result.FileSize = info.Size()

	// Degraded payloads are never cached; the next request retries once
	// the outage clears instead of serving the stale failure.
	if !result.Failed() {
		b.cache.Put(path, info, result)
	}
	return result
}

func (b *Backend) analyze(ctx context.Context, path, fileType string, size int64) *Analysis {
	if b.cfg.UseOfflineMode || b.client == nil {
		return b.offline.Analyze(path, fileType, size)
	}

	result, err := b.submitOnline(ctx, path)
	if err == nil {
		return result
	}

	b.health.RecordError(err, path)
	kind := healing.Classify(err)
	b.logger.Error("online analysis failed", "path", path, "kind", kind, "error", err)

	if b.controller.Heal(ctx, kind, err, b.recoverAction) {
		b.logger.Info("retrying online analysis after healing", "path", path)
		if result, err = b.submitOnline(ctx, path); err == nil {
			return result
		}
		b.logger.Error("post-healing retry failed", "path", path, "error", err)
		return &Analysis{
			Method:       MethodFallback,
			Error:        err.Error(),
			AnomalyScore: ErrorScore,
			CreatedAt:    time.Now(),
		}
	}

	b.logger.Warn("falling back to offline analysis", "path", path)
	fallback := b.offline.Analyze(path, fileType, size)
	if fallback.Error == "" {
		// Keep the online failure visible on the degraded payload.
		fallback.Error = err.Error()
		if fallback.AnomalyScore < ErrorScore {
			fallback.AnomalyScore = ErrorScore
		}
	}
	return fallback
}

func (b *Backend) submitOnline(ctx context.Context, path string) (*Analysis, error) {
	sample, err := readSample(path, onlineSampleSize)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return b.client.SubmitAnalysis(ctx, path, sample)
}

// recoverAction dispatches the kind-specific corrective action for the
// healing controller.
func (b *Backend) recoverAction(ctx context.Context, kind healing.Kind, cause error) error {
	switch kind {
	case healing.KindAPITimeout, healing.KindGeneralError:
		return b.verifyConnectivity(ctx)
	case healing.KindRateLimit:
		// The backoff itself is the mitigation; the probe only observes
		// whether the limiter has cleared so the backoff keeps extending
		// while requests are still rejected.
		if b.client == nil {
			return nil
		}
		return b.client.Probe(ctx)
	case healing.KindTokenError:
		return b.verifyCredentials(ctx, cause)
	case healing.KindNetworkError:
		return b.checkNetwork(ctx)
	case healing.KindServerError:
		return b.switchEndpoint(ctx)
	default:
		return b.verifyConnectivity(ctx)
	}
}

func (b *Backend) verifyConnectivity(ctx context.Context) error {
	if b.client == nil {
		return errors.New("no remote client configured")
	}
	return b.client.Probe(ctx)
}

func (b *Backend) verifyCredentials(ctx context.Context, cause error) error {
	if b.client == nil {
		return errors.New("no remote client configured")
	}
	err := b.client.Probe(ctx)
	if err != nil && cause != nil {
		msg := strings.ToLower(cause.Error())
		if strings.Contains(msg, "auth") || strings.Contains(msg, "key") ||
			strings.Contains(msg, "unauthorized") {
			b.logger.Error("authentication failure detected, api key may be invalid or expired",
				"error", cause)
		}
	}
	return err
}

func (b *Backend) checkNetwork(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.cfg.ProbeURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.probeHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("network probe: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (b *Backend) switchEndpoint(ctx context.Context) error {
	client, ok := b.client.(*HTTPClient)
	if !ok {
		return errors.New("endpoint switch unsupported for this client")
	}
	if b.cfg.AltAPIBase == "" || b.cfg.AltAPIBase == client.BaseURL() {
		return errors.New("no alternate endpoint configured")
	}
	b.logger.Info("switching to alternate api endpoint", "endpoint", b.cfg.AltAPIBase)
	client.SetBaseURL(b.cfg.AltAPIBase)
	return client.Probe(ctx)
}

// HealthStatus returns the current health snapshot plus backend
// diagnostics.
func (b *Backend) HealthStatus() Status {
	return Status{
		Status:         b.health.Snapshot(),
		OfflineMode:    b.cfg.UseOfflineMode,
		Initialized:    b.client != nil || b.cfg.UseOfflineMode,
		SupportedTypes: len(supportedTypes),
	}
}

// CheckResults reports the outcome of each health probe.
type CheckResults struct {
	CacheDirectory      bool
	NetworkConnectivity bool
	APIConnectivity     bool
	Credentials         bool
}

// RunHealthCheck actively probes cache directory, network and remote
// connectivity, then updates the health state: Healthy when everything
// passes, Functional when the cache works and online connectivity is
// either present or not required, Degraded otherwise.
func (b *Backend) RunHealthCheck(ctx context.Context) CheckResults {
	results := CheckResults{}

	if b.cache.Dir() == "" {
		// No persistence configured; the in-memory cache always works.
		results.CacheDirectory = true
	} else if _, err := os.Stat(b.cache.Dir()); err == nil {
		results.CacheDirectory = true
	}

	results.NetworkConnectivity = b.checkNetwork(ctx) == nil

	if !b.cfg.UseOfflineMode && b.client != nil {
		if err := b.client.Probe(ctx); err == nil {
			results.APIConnectivity = true
			results.Credentials = true
		}
	}

	switch {
	case results.CacheDirectory && results.NetworkConnectivity &&
		(b.cfg.UseOfflineMode || (results.APIConnectivity && results.Credentials)):
		b.health.SetState(healing.StateHealthy)
	case results.CacheDirectory && (b.cfg.UseOfflineMode || results.APIConnectivity):
		b.health.SetState(healing.StateFunctional)
	default:
		b.health.SetState(healing.StateDegraded)
	}

	return results
}
