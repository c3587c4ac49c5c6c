package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the immutable process configuration. It is loaded once at
// startup and never mutated afterwards.
type Config struct {
	// Scheduler
	MaxConcurrentTasks       int `yaml:"max_concurrent_tasks"`
	TaskCheckIntervalSeconds int `yaml:"task_check_interval_seconds"`
	QueueCapacity            int `yaml:"queue_capacity"`
	GCIntervalMinutes        int `yaml:"gc_interval_minutes"`
	TempFileMaxAgeHours      int `yaml:"temp_file_max_age_hours"`

	// Retention; 0 disables terminal-row deletion.
	TaskRetentionDays int `yaml:"task_retention_days"`

	// Workspace
	WorkspaceBaseDir string `yaml:"workspace_base_dir"`
	TempDir          string `yaml:"temp_dir"`

	// Store
	DatabaseKind string `yaml:"database_kind"`
	DatabaseURL  string `yaml:"database_url"`

	// API
	ListenAddr string `yaml:"listen_addr"`

	// Callbacks
	CallbackTimeoutSeconds int `yaml:"callback_timeout_seconds"`

	// Engines. Analyzer templates are argv slices expanded with the
	// {input}, {output}, {output_dir} and {stem} placeholders.
	LibreOfficePath      string   `yaml:"libreoffice_path"`
	PDFAnalyzerCmd       []string `yaml:"pdf_analyzer_cmd"`
	OCRAnalyzerCmd       []string `yaml:"ocr_analyzer_cmd"`
	EngineTimeoutMinutes int      `yaml:"engine_timeout_minutes"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	LogDir   string `yaml:"log_dir"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		MaxConcurrentTasks:       3,
		TaskCheckIntervalSeconds: 5,
		QueueCapacity:            100,
		GCIntervalMinutes:        30,
		TempFileMaxAgeHours:      24,
		TaskRetentionDays:        0,
		WorkspaceBaseDir:         "/app/task_workspace",
		TempDir:                  "/app/temp_files",
		DatabaseKind:             "sqlite",
		DatabaseURL:              "document_tasks.db",
		ListenAddr:               ":8000",
		CallbackTimeoutSeconds:   30,
		LibreOfficePath:          "libreoffice",
		PDFAnalyzerCmd:           []string{"magic-pdf", "-p", "{input}", "-o", "{output_dir}"},
		OCRAnalyzerCmd:           []string{"magic-pdf", "-p", "{input}", "-o", "{output_dir}"},
		EngineTimeoutMinutes:     30,
		LogLevel:                 "info",
		LogJSON:                  true,
	}
}

// Load reads the YAML file at path over the defaults. A missing path is not
// an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be >= 1, got %d", c.MaxConcurrentTasks)
	}
	if c.TaskCheckIntervalSeconds < 1 {
		return fmt.Errorf("task_check_interval_seconds must be >= 1, got %d", c.TaskCheckIntervalSeconds)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1, got %d", c.QueueCapacity)
	}
	switch c.DatabaseKind {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database_kind must be sqlite or mysql, got %q", c.DatabaseKind)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must not be empty")
	}
	if c.WorkspaceBaseDir == "" {
		return fmt.Errorf("workspace_base_dir must not be empty")
	}
	return nil
}

// TaskCheckInterval returns the fetcher poll interval as a duration.
func (c *Config) TaskCheckInterval() time.Duration {
	return time.Duration(c.TaskCheckIntervalSeconds) * time.Second
}

// GCInterval returns the GC worker interval as a duration.
func (c *Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMinutes) * time.Minute
}

// TempFileMaxAge returns the temp-file pruning age as a duration.
func (c *Config) TempFileMaxAge() time.Duration {
	return time.Duration(c.TempFileMaxAgeHours) * time.Hour
}

// CallbackTimeout returns the callback delivery budget as a duration.
func (c *Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutSeconds) * time.Second
}

// EngineTimeout returns the per-conversion budget as a duration.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.EngineTimeoutMinutes) * time.Minute
}
