package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specterwire/anomscan/internal/backend"
	"github.com/specterwire/anomscan/internal/entropy"
	"github.com/specterwire/anomscan/internal/extractor"
	"github.com/specterwire/anomscan/internal/graph"
	"github.com/specterwire/anomscan/internal/metrics"
	"github.com/specterwire/anomscan/internal/scoring"
)

var (
	// ErrStopped is returned when submitting to a stopped engine.
	ErrStopped = errors.New("engine stopped")
	// ErrQueueFull is returned when the task queue has no room.
	ErrQueueFull = errors.New("task queue full")
)

// Config holds engine settings. Zero values select sensible defaults.
type Config struct {
	MaxWorkers  int
	QueueSize   int
	MaxFileSize int64
}

// DefaultMaxFileSize bounds how large a file the engine will scan.
const DefaultMaxFileSize = 100 * 1024 * 1024

// DefaultQueueSize is the task queue capacity used when none is set.
const DefaultQueueSize = 1000

// Engine schedules scan tasks over a bounded worker pool. A single
// dispatch goroutine drains the FIFO queue; per-file work fans out to
// workers. Task bookkeeping uses two independent locks: tasksMu guards
// both state sets so an id is never in active and completed at once,
// resultsMu guards the reports.
type Engine struct {
	cfg      Config
	backend  *backend.Backend
	scorer   *scoring.Scorer
	registry *extractor.Registry
	graph    *graph.Store
	bus      *Bus
	logger   *slog.Logger

	queue chan *ScanTask
	stop  chan struct{}

	runMu   sync.Mutex
	running bool
	stopped bool

	tasksMu   sync.Mutex
	active    map[string]*ScanTask
	completed map[string]struct{}

	resultsMu sync.Mutex
	reports   map[string]*DirectoryReport
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the default extractor registry.
func WithRegistry(registry *extractor.Registry) Option {
	return func(e *Engine) { e.registry = registry }
}

// WithGraph enables recording of scan relationships into the graph store.
func WithGraph(store *graph.Store) Option {
	return func(e *Engine) { e.graph = store }
}

// WithBus attaches an externally created event bus, letting callers wire
// the same bus into the backend's healing observer.
func WithBus(bus *Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithScorer replaces the default anomaly scorer.
func WithScorer(scorer *scoring.Scorer) Option {
	return func(e *Engine) { e.scorer = scorer }
}

// New creates an Engine over the given analysis backend.
func New(cfg Config, be *backend.Backend, opts ...Option) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	e := &Engine{
		cfg:       cfg,
		backend:   be,
		scorer:    scoring.New(),
		registry:  extractor.DefaultRegistry(),
		logger:    slog.Default().With("component", "engine"),
		queue:     make(chan *ScanTask, cfg.QueueSize),
		stop:      make(chan struct{}),
		active:    make(map[string]*ScanTask),
		completed: make(map[string]struct{}),
		reports:   make(map[string]*DirectoryReport),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = NewBus(DefaultBusSize)
	}
	return e
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *Bus { return e.bus }

// Start launches the dispatch goroutine. Calling Start twice is an error.
func (e *Engine) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.running {
		return errors.New("engine already started")
	}
	e.running = true
	go e.dispatch()
	e.logger.Info("engine started",
		"workers", e.cfg.MaxWorkers, "queue_size", e.cfg.QueueSize)
	return nil
}

// Stop signals the dispatcher and rejects new submissions. In-flight
// analyses are not interrupted.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.running = false
	close(e.stop)
	e.logger.Info("engine stopped")
}

// ScanFile enqueues a single-file scan and returns its task id.
func (e *Engine) ScanFile(path string) (string, error) {
	return e.enqueue(&ScanTask{
		Type: TaskFile,
		Path: path,
	})
}

// ScanDirectory enqueues a directory scan and returns its task id.
// Submission never touches the filesystem; enumeration happens when the
// task is dispatched.
func (e *Engine) ScanDirectory(path string, recursive bool, patterns []string) (string, error) {
	return e.enqueue(&ScanTask{
		Type:      TaskDirectory,
		Path:      path,
		Recursive: recursive,
		Patterns:  patterns,
	})
}

func (e *Engine) enqueue(task *ScanTask) (string, error) {
	e.runMu.Lock()
	stopped := e.stopped
	e.runMu.Unlock()
	if stopped {
		return "", ErrStopped
	}

	task.ID = newTaskID()
	task.SubmittedAt = time.Now()

	e.tasksMu.Lock()
	e.active[task.ID] = task
	e.tasksMu.Unlock()

	select {
	case e.queue <- task:
	default:
		e.tasksMu.Lock()
		delete(e.active, task.ID)
		e.tasksMu.Unlock()
		return "", ErrQueueFull
	}

	metrics.UpdateQueueDepth(len(e.queue))
	e.logger.Debug("task enqueued", "task_id", task.ID, "type", task.Type, "path", task.Path)
	return task.ID, nil
}

// dispatch is the single queue consumer. It runs tasks sequentially; the
// parallelism lives inside runTask's worker pool.
func (e *Engine) dispatch() {
	for {
		select {
		case <-e.stop:
			return
		case task := <-e.queue:
			metrics.UpdateQueueDepth(len(e.queue))
			e.runTask(task)
		}
	}
}

func (e *Engine) runTask(task *ScanTask) {
	ctx := context.Background()
	startedAt := time.Now()
	metrics.TasksActive.Inc()
	defer metrics.TasksActive.Dec()

	var files []string
	if task.Type == TaskFile {
		files = []string{task.Path}
	} else {
		var err error
		files, err = e.discoverFiles(task.Path, task.Recursive, task.Patterns)
		if err != nil {
			e.logger.Error("file discovery failed", "task_id", task.ID, "path", task.Path, "error", err)
		}
	}

	total := len(files)
	e.bus.Publish(Event{
		Type:   EventScanStarted,
		TaskID: task.ID,
		Path:   task.Path,
		Total:  total,
	})

	var (
		mu        sync.Mutex
		results   []*ScanResult
		processed atomic.Int32
		skipped   atomic.Int32
		failed    atomic.Int32
	)

	sem := make(chan struct{}, e.cfg.MaxWorkers)
	g, gctx := errgroup.WithContext(ctx)

	for _, path := range files {
		path := path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()
			metrics.WorkersActive.Inc()
			defer metrics.WorkersActive.Dec()

			result, ok := e.scanOne(gctx, path)
			if !ok {
				skipped.Add(1)
				return nil
			}
			if result.Failed() {
				failed.Add(1)
			}

			n := int(processed.Add(1))
			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			e.bus.Publish(Event{
				Type:      EventScanProgress,
				TaskID:    task.ID,
				Path:      path,
				Processed: n,
				Total:     total,
			})
			e.bus.Publish(Event{
				Type:   EventFileResult,
				TaskID: task.ID,
				Path:   path,
				Result: result,
			})
			return nil
		})
	}
	_ = g.Wait()

	completedAt := time.Now()
	report := &DirectoryReport{
		TaskID:         task.ID,
		Root:           task.Path,
		TotalFiles:     total,
		ProcessedFiles: int(processed.Load()),
		SkippedFiles:   int(skipped.Load()),
		FailedFiles:    int(failed.Load()),
		Results:        results,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		Duration:       completedAt.Sub(startedAt),
	}

	e.recordGraph(ctx, task, report)

	// Report first, state second: a completed status can always resolve
	// its report.
	e.resultsMu.Lock()
	e.reports[task.ID] = report
	e.resultsMu.Unlock()

	// One critical section for the active→completed move, so the id is
	// never observable in both sets or in neither. Happens before the
	// completion event fires, so a consumer reacting to it always sees
	// the final state.
	e.tasksMu.Lock()
	delete(e.active, task.ID)
	e.completed[task.ID] = struct{}{}
	e.tasksMu.Unlock()

	if report.FailedFiles > 0 {
		metrics.RecordTaskCompleted("degraded")
	} else {
		metrics.RecordTaskCompleted("ok")
	}

	e.bus.Publish(Event{
		Type:      EventScanComplete,
		TaskID:    task.ID,
		Path:      task.Path,
		Processed: report.ProcessedFiles,
		Total:     report.TotalFiles,
		Report:    report,
	})
	e.logger.Info("scan complete",
		"task_id", task.ID,
		"total", report.TotalFiles,
		"processed", report.ProcessedFiles,
		"skipped", report.SkippedFiles,
		"duration", report.Duration)
}

// scanOne analyzes a single file. The bool return is false when the file
// was skipped (missing, directory, oversized); skipped files don't count
// toward processed. Failures inside analysis still produce a result.
func (e *Engine) scanOne(ctx context.Context, path string) (*ScanResult, bool) {
	info, err := os.Stat(path)
	if err != nil {
		e.logger.Warn("skipping missing file", "path", path, "error", err)
		metrics.RecordFileSkipped("missing")
		return nil, false
	}
	if info.IsDir() {
		metrics.RecordFileSkipped("directory")
		return nil, false
	}
	if info.Size() > e.cfg.MaxFileSize {
		e.logger.Warn("skipping oversized file", "path", path, "size", info.Size())
		metrics.RecordFileSkipped("oversized")
		return nil, false
	}

	start := time.Now()
	fileType := strings.ToLower(filepath.Ext(path))

	fileEntropy, err := entropy.File(path)
	if err != nil {
		e.logger.Warn("entropy read failed", "path", path, "error", err)
		fileEntropy = 0
	}

	analysis := e.backend.Analyze(ctx, path, false)
	metrics.RecordBackendCall(analysis.Method)

	score := e.scorer.Score(fileEntropy, analysis.AnomalyScore, analysis.Failed())

	finding := e.registry.Run(path, extractor.Context{
		FileType: fileType,
		FileSize: info.Size(),
		Entropy:  fileEntropy,
	})
	tags := finding.Tags
	if analysis.Failed() {
		tags = append(tags, "error")
	}

	duration := time.Since(start)
	metrics.RecordFileScanned(analysis.Method, duration)

	return &ScanResult{
		Path:         path,
		FileType:     fileType,
		FileSize:     info.Size(),
		Entropy:      fileEntropy,
		AnomalyScore: score,
		Analysis:     analysis,
		Tags:         tags,
		CreatedAt:    time.Now(),
		ScanDuration: duration,
	}, true
}

// discoverFiles enumerates scan candidates under root. Hidden directories
// are skipped during recursive walks.
func (e *Engine) discoverFiles(root string, recursive bool, patterns []string) ([]string, error) {
	var files []string

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if matchesPatterns(entry.Name(), patterns) {
				files = append(files, filepath.Join(root, entry.Name()))
			}
		}
		return files, nil
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesPatterns(info.Name(), patterns) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// matchesPatterns applies the scanner's simplified pattern language:
// "*" matches everything, "*.ext" matches the suffix, and anything else
// must equal the file name exactly. This is deliberately not full glob
// matching.
func matchesPatterns(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "*"):
			if strings.HasSuffix(name, p[1:]) {
				return true
			}
		case name == p:
			return true
		}
	}
	return false
}

// recordGraph persists the scan's structure: one node per file, contains
// edges from the scan root, and tagged edges for extractor findings.
// Failures are logged, never fatal to the scan.
func (e *Engine) recordGraph(ctx context.Context, task *ScanTask, report *DirectoryReport) {
	if e.graph == nil {
		return
	}

	if err := e.graph.UpsertNode(ctx, task.Path, map[string]any{
		"task_id":         task.ID,
		"total_files":     report.TotalFiles,
		"processed_files": report.ProcessedFiles,
	}); err != nil {
		e.logger.Warn("graph node write failed", "path", task.Path, "error", err)
		return
	}

	for _, result := range report.Results {
		if err := e.graph.UpsertNode(ctx, result.Path, map[string]any{
			"file_type":     result.FileType,
			"file_size":     result.FileSize,
			"entropy":       result.Entropy,
			"anomaly_score": result.AnomalyScore,
		}); err != nil {
			e.logger.Warn("graph node write failed", "path", result.Path, "error", err)
			continue
		}
		if result.Path != task.Path {
			if err := e.graph.UpsertEdge(ctx, graph.Edge{
				Source: task.Path,
				Target: result.Path,
				Type:   graph.EdgeContains,
				Weight: 1.0,
			}); err != nil {
				e.logger.Warn("graph edge write failed", "path", result.Path, "error", err)
			}
		}
		for _, tag := range result.Tags {
			if err := e.graph.UpsertEdge(ctx, graph.Edge{
				Source: result.Path,
				Target: "tag:" + tag,
				Type:   graph.EdgeTagged,
				Weight: result.AnomalyScore,
			}); err != nil {
				e.logger.Warn("graph edge write failed", "path", result.Path, "tag", tag, "error", err)
			}
		}
	}
}

// TaskStatus reports where a task id currently sits. Completed tasks
// include their report.
func (e *Engine) TaskStatus(id string) TaskStatus {
	e.tasksMu.Lock()
	_, done := e.completed[id]
	_, live := e.active[id]
	e.tasksMu.Unlock()

	switch {
	case done:
		e.resultsMu.Lock()
		report := e.reports[id]
		e.resultsMu.Unlock()
		return TaskStatus{ID: id, State: TaskCompleted, Report: report}
	case live:
		return TaskStatus{ID: id, State: TaskActive}
	default:
		return TaskStatus{ID: id, State: TaskUnknown}
	}
}

// ActiveTasks returns the ids of tasks not yet completed, sorted.
func (e *Engine) ActiveTasks() []string {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CompletedTasks returns the ids of finished tasks, sorted.
func (e *Engine) CompletedTasks() []string {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	ids := make([]string, 0, len(e.completed))
	for id := range e.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Report returns the aggregate report for a completed task.
func (e *Engine) Report(id string) (*DirectoryReport, bool) {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	report, ok := e.reports[id]
	return report, ok
}
