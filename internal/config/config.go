// Package config loads scan engine configuration from YAML files and
// SPECTERWIRE_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the scanner and backend.
type Config struct {
	MaxWorkers      int           `mapstructure:"max_workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	Patterns        []string      `mapstructure:"patterns"`
	AnalysisModules []string      `mapstructure:"analysis_modules"`
	UseOfflineMode  bool          `mapstructure:"use_offline_mode"`
	APIKey          string        `mapstructure:"api_key"`
	APIBase         string        `mapstructure:"api_base"`
	AltAPIBase      string        `mapstructure:"alt_api_base"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheDir        string        `mapstructure:"cache_dir"`
	CacheSize       int           `mapstructure:"cache_size"`
	GraphPath       string        `mapstructure:"graph_path"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	LogLevel        string        `mapstructure:"log_level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		MaxWorkers:      runtime.GOMAXPROCS(0),
		QueueSize:       1000,
		MaxFileSize:     100 * 1024 * 1024,
		Patterns:        []string{"*"},
		AnalysisModules: []string{"text", "entropy"},
		UseOfflineMode:  false,
		Model:           "deepseek-chat",
		Timeout:         120 * time.Second,
		CacheSize:       10000,
		MetricsAddr:     ":9090",
		LogLevel:        "info",
	}
}

// Load reads the configuration from path (optional) and the environment.
// A missing file is not an error; SPECTERWIRE_* variables always apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("max_workers", def.MaxWorkers)
	v.SetDefault("queue_size", def.QueueSize)
	v.SetDefault("max_file_size", def.MaxFileSize)
	v.SetDefault("patterns", def.Patterns)
	v.SetDefault("analysis_modules", def.AnalysisModules)
	v.SetDefault("use_offline_mode", def.UseOfflineMode)
	v.SetDefault("model", def.Model)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("cache_size", def.CacheSize)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("SPECTERWIRE")
	v.AutomaticEnv()
	// AutomaticEnv alone does not pick up keys absent from the file, so
	// bind the ones commonly set only via environment.
	for _, key := range []string{"api_key", "api_base", "alt_api_base",
		"use_offline_mode", "cache_dir", "graph_path", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("anomscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/anomscan")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if !c.UseOfflineMode && c.APIKey == "" {
		return fmt.Errorf("api_key is required unless use_offline_mode is set")
	}
	return nil
}
