package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/types"
)

const (
	// DefaultBaseDir is the default root for per-task workspaces.
	DefaultBaseDir = "/app/task_workspace"

	// DefaultTempDir is the default scratch area shared by conversions.
	DefaultTempDir = "/app/temp_files"

	taskDirPrefix = "task_"
)

// Workspace is the on-disk layout for one task: an input directory for
// the fetched source, an output directory for conversion results and a
// temp directory for engine scratch files.
type Workspace struct {
	TaskID    int64
	Root      string
	InputDir  string
	OutputDir string
	TempDir   string
}

// InputPath joins a file name onto the input directory.
func (w *Workspace) InputPath(name string) string {
	return filepath.Join(w.InputDir, name)
}

// OutputPath joins a file name onto the output directory.
func (w *Workspace) OutputPath(name string) string {
	return filepath.Join(w.OutputDir, name)
}

// TempPath joins a file name onto the temp directory.
func (w *Workspace) TempPath(name string) string {
	return filepath.Join(w.TempDir, name)
}

// Manager creates and reclaims task workspaces under a fixed base
// directory, plus the shared temp area.
type Manager struct {
	baseDir string
	tempDir string
}

// NewManager creates a workspace manager rooted at baseDir with scratch
// space at tempDir. Empty arguments fall back to the defaults.
func NewManager(baseDir, tempDir string) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if tempDir == "" {
		tempDir = DefaultTempDir
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Manager{baseDir: baseDir, tempDir: tempDir}, nil
}

// BaseDir returns the workspace root directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// TempDir returns the shared scratch directory.
func (m *Manager) TempDir() string {
	return m.tempDir
}

// Get returns the workspace paths for a task without touching disk.
func (m *Manager) Get(taskID int64) *Workspace {
	root := filepath.Join(m.baseDir, fmt.Sprintf("%s%d", taskDirPrefix, taskID))
	return &Workspace{
		TaskID:    taskID,
		Root:      root,
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
		TempDir:   filepath.Join(root, "temp"),
	}
}

// Create builds the workspace directory tree for a task. Creating an
// existing workspace is harmless; leftover files from a previous
// attempt stay in place so a retry can overwrite them.
func (m *Manager) Create(taskID int64) (*Workspace, error) {
	ws := m.Get(taskID)
	for _, dir := range []string{ws.InputDir, ws.OutputDir, ws.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}
	return ws, nil
}

// Exists reports whether a workspace directory is present for the task.
func (m *Manager) Exists(taskID int64) bool {
	_, err := os.Stat(m.Get(taskID).Root)
	return err == nil
}

// PartialCleanup reclaims the scratch space of a finished task: it
// empties temp/ and removes engine scratch directories under output/
// (any directory whose name contains "temp"). Input and final output
// artifacts are left alone because the download proxy may still serve
// them.
func (m *Manager) PartialCleanup(taskID int64) error {
	ws := m.Get(taskID)

	entries, err := os.ReadDir(ws.TempDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clean workspace temp: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(ws.TempDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clean workspace temp: %w", err)
		}
	}

	entries, err = os.ReadDir(ws.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to clean workspace output: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), "temp") {
			if err := os.RemoveAll(filepath.Join(ws.OutputDir, entry.Name())); err != nil {
				return fmt.Errorf("failed to clean workspace output: %w", err)
			}
		}
	}
	return nil
}

// Remove deletes the entire workspace of a task. Removing a workspace
// that never existed is not an error.
func (m *Manager) Remove(taskID int64) error {
	ws := m.Get(taskID)
	if _, err := os.Stat(ws.Root); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// ListTaskIDs returns the task ids that currently have a workspace
// directory. Entries that do not match the task_<id> pattern are
// ignored.
func (m *Manager) ListTaskIDs() ([]int64, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace base directory: %w", err)
	}

	var ids []int64
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), taskDirPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), taskDirPrefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ModTime returns the last modification time of a task workspace root.
func (m *Manager) ModTime(taskID int64) (time.Time, error) {
	info, err := os.Stat(m.Get(taskID).Root)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// SweepTempFiles deletes files in the shared temp directory older than
// maxAge and returns how many files and bytes were reclaimed. Empty
// subdirectories left behind are removed as well.
func (m *Manager) SweepTempFiles(maxAge time.Duration) (int, int64, error) {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	var freed int64

	err := filepath.WalkDir(m.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk when conversions clean up
			// after themselves.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return nil
		}
		removed++
		freed += info.Size()
		return nil
	})
	if err != nil {
		return removed, freed, fmt.Errorf("failed to sweep temp files: %w", err)
	}

	m.pruneEmptyDirs()
	return removed, freed, nil
}

// pruneEmptyDirs removes empty subdirectories under the temp root,
// leaving the root itself alone.
func (m *Manager) pruneEmptyDirs() {
	var dirs []string
	_ = filepath.WalkDir(m.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != m.tempDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first so nested empties collapse in one pass.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
}

// Stats reports live workspace and temp file usage.
func (m *Manager) Stats() (*types.WorkspaceStats, error) {
	stats := &types.WorkspaceStats{}

	ids, err := m.ListTaskIDs()
	if err != nil {
		return nil, err
	}
	stats.ActiveWorkspaces = len(ids)
	for _, id := range ids {
		size, err := dirSize(m.Get(id).Root)
		if err != nil {
			continue
		}
		stats.WorkspaceBytes += size
	}

	err = filepath.WalkDir(m.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.TempFiles++
		stats.TempBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat temp files: %w", err)
	}
	return stats, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}
