package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/specterwire/anomscan/internal/backend"
	"github.com/specterwire/anomscan/internal/config"
	"github.com/specterwire/anomscan/internal/engine"
	"github.com/specterwire/anomscan/internal/graph"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (optional)")
		recursive   = flag.Bool("recursive", true, "recurse into subdirectories")
		jsonOutput  = flag.Bool("json", false, "print results as JSON")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("anomscan\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", graph.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", graph.DriverName)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: anomscan [flags] <path> [path...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Log startup info to stderr (stdout reserved for scan output)
	log.SetOutput(os.Stderr)
	log.Printf("anomscan v%s starting...", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.LogLevel)

	if err := run(cfg, flag.Args(), *recursive, *jsonOutput); err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config, paths []string, recursive, jsonOutput bool) error {
	bus := engine.NewBus(engine.DefaultBusSize)

	be, err := backend.New(backend.Config{
		UseOfflineMode: cfg.UseOfflineMode,
		APIKey:         cfg.APIKey,
		APIBase:        cfg.APIBase,
		AltAPIBase:     cfg.AltAPIBase,
		Model:          cfg.Model,
		CacheDir:       cfg.CacheDir,
		CacheSize:      cfg.CacheSize,
		Timeout:        cfg.Timeout,
	}, backend.WithHealingObserver(bus.HealingObserver()))
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}

	opts := []engine.Option{engine.WithBus(bus)}
	if cfg.GraphPath != "" {
		store, err := graph.Open(cfg.GraphPath)
		if err != nil {
			return fmt.Errorf("open graph store: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, engine.WithGraph(store))
	}

	eng := engine.New(engine.Config{
		MaxWorkers:  cfg.MaxWorkers,
		QueueSize:   cfg.QueueSize,
		MaxFileSize: cfg.MaxFileSize,
	}, be, opts...)
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, be)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pending := make(map[string]bool, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		var taskID string
		if info.IsDir() {
			taskID, err = eng.ScanDirectory(path, recursive, cfg.Patterns)
		} else {
			taskID, err = eng.ScanFile(path)
		}
		if err != nil {
			return fmt.Errorf("submit %s: %w", path, err)
		}
		pending[taskID] = true
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			slog.Warn("interrupted, abandoning pending scans", "pending", len(pending))
			return nil
		case ev := <-bus.Events():
			switch ev.Type {
			case engine.EventScanProgress:
				slog.Debug("progress",
					"task_id", ev.TaskID, "processed", ev.Processed, "total", ev.Total)
			case engine.EventHealing:
				slog.Info("healing",
					"stage", ev.HealingStage, "kind", ev.Healing.Kind,
					"attempt", ev.Healing.Attempt)
			case engine.EventScanComplete:
				if pending[ev.TaskID] {
					delete(pending, ev.TaskID)
					printReport(ev.Report, jsonOutput)
				}
			}
		}
	}
	return nil
}

func printReport(report *engine.DirectoryReport, jsonOutput bool) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Printf("%s: %d/%d files in %s (max score %.2f)\n",
		report.Root, report.ProcessedFiles, report.TotalFiles,
		report.Duration.Round(time.Millisecond), report.MaxScore())
	for _, result := range report.Results {
		flag := " "
		if result.AnomalyScore >= 0.7 {
			flag = "!"
		}
		fmt.Printf("  %s %.2f  %s", flag, result.AnomalyScore, result.Path)
		if len(result.Tags) > 0 {
			fmt.Printf("  [%v]", result.Tags)
		}
		fmt.Println()
	}
}

func serveMetrics(addr string, be *backend.Backend) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := be.HealthStatus()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	slog.Info("metrics listening", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}
