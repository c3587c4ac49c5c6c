package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MaxConcurrentTasks)
	assert.Equal(t, 5, cfg.TaskCheckIntervalSeconds)
	assert.Equal(t, "sqlite", cfg.DatabaseKind)
	assert.Equal(t, "/app/task_workspace", cfg.WorkspaceBaseDir)
	assert.Equal(t, 0, cfg.TaskRetentionDays)
	assert.Equal(t, []string{"magic-pdf", "-p", "{input}", "-o", "{output_dir}"}, cfg.PDFAnalyzerCmd)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmill.yaml")
	data := []byte(`
max_concurrent_tasks: 8
task_check_interval_seconds: 2
database_kind: mysql
database_url: "user:pass@tcp(127.0.0.1:3306)/docmill"
workspace_base_dir: /tmp/ws
log_level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.Equal(t, 2*time.Second, cfg.TaskCheckInterval())
	assert.Equal(t, "mysql", cfg.DatabaseKind)
	assert.Equal(t, "/tmp/ws", cfg.WorkspaceBaseDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Minute, cfg.GCInterval())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.MaxConcurrentTasks = 0 },
			wantErr: "max_concurrent_tasks",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.TaskCheckIntervalSeconds = 0 },
			wantErr: "task_check_interval_seconds",
		},
		{
			name:    "unknown database kind",
			mutate:  func(c *Config) { c.DatabaseKind = "postgres" },
			wantErr: "database_kind",
		},
		{
			name:    "empty database url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "database_url",
		},
		{
			name:    "empty workspace dir",
			mutate:  func(c *Config) { c.WorkspaceBaseDir = "" },
			wantErr: "workspace_base_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_tasks: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_tasks")
}
