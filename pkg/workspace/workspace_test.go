package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "ws"), filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)
	return m
}

func TestCreateWorkspaceLayout(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create(42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), ws.TaskID)
	assert.Equal(t, filepath.Join(m.BaseDir(), "task_42"), ws.Root)

	for _, dir := range []string{ws.InputDir, ws.OutputDir, ws.TempDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	assert.True(t, m.Exists(42))
	assert.False(t, m.Exists(43))
}

func TestCreateIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create(7)
	require.NoError(t, err)

	// A file from a previous attempt survives re-creation.
	marker := filepath.Join(ws.InputDir, "source.docx")
	require.NoError(t, os.WriteFile(marker, []byte("data"), 0644))

	_, err = m.Create(7)
	require.NoError(t, err)

	_, err = os.Stat(marker)
	assert.NoError(t, err)
}

func TestPartialCleanup(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create(9)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ws.InputPath("in.pdf"), []byte("in"), 0644))
	require.NoError(t, os.WriteFile(ws.TempPath("scratch"), []byte("tmp"), 0644))
	require.NoError(t, os.MkdirAll(ws.TempPath("pages"), 0755))
	require.NoError(t, os.WriteFile(ws.OutputPath("out.md"), []byte("out"), 0644))

	// Engine scratch under output goes away, real artifacts stay.
	scratchDir := ws.OutputPath("analyzer_temp")
	require.NoError(t, os.MkdirAll(scratchDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scratchDir, "page1.png"), []byte("x"), 0644))
	imagesDir := ws.OutputPath("images")
	require.NoError(t, os.MkdirAll(imagesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "fig1.png"), []byte("y"), 0644))

	require.NoError(t, m.PartialCleanup(9))

	// temp/ is emptied but kept.
	entries, err := os.ReadDir(ws.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// input and output artifacts survive.
	_, err = os.Stat(ws.InputPath("in.pdf"))
	assert.NoError(t, err)
	data, err := os.ReadFile(ws.OutputPath("out.md"))
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), data)
	_, err = os.Stat(filepath.Join(imagesDir, "fig1.png"))
	assert.NoError(t, err)

	// scratch dir under output is gone.
	_, err = os.Stat(scratchDir)
	assert.True(t, os.IsNotExist(err))
}

func TestPartialCleanupMissingWorkspace(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.PartialCleanup(404))
}

func TestRemoveWorkspace(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create(5)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "out.md"), []byte("x"), 0644))

	require.NoError(t, m.Remove(5))
	assert.False(t, m.Exists(5))

	// Removing again is a no-op.
	assert.NoError(t, m.Remove(5))
}

func TestListTaskIDs(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(1)
	require.NoError(t, err)
	_, err = m.Create(30)
	require.NoError(t, err)

	// Stray entries are skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(m.BaseDir(), "not_a_task"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(m.BaseDir(), "task_abc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(m.BaseDir(), "task_99"), []byte("file, not dir"), 0644))

	ids, err := m.ListTaskIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 30}, ids)
}

func TestSweepTempFiles(t *testing.T) {
	m := newTestManager(t)

	old := filepath.Join(m.TempDir(), "stale.pdf")
	require.NoError(t, os.WriteFile(old, []byte("0123456789"), 0644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	fresh := filepath.Join(m.TempDir(), "fresh.pdf")
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0644))

	// Stale file inside a subdirectory; the emptied dir goes too.
	sub := filepath.Join(m.TempDir(), "batch_1")
	require.NoError(t, os.MkdirAll(sub, 0755))
	oldNested := filepath.Join(sub, "page.png")
	require.NoError(t, os.WriteFile(oldNested, []byte("abcde"), 0644))
	require.NoError(t, os.Chtimes(oldNested, past, past))

	removed, freed, err := m.SweepTempFiles(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, int64(15), freed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestStats(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create(11)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.OutputDir, "out.md"), []byte("12345"), 0644))

	_, err = m.Create(12)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(m.TempDir(), "scratch.bin"), []byte("123"), 0644))

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveWorkspaces)
	assert.Equal(t, int64(5), stats.WorkspaceBytes)
	assert.Equal(t, 1, stats.TempFiles)
	assert.Equal(t, int64(3), stats.TempBytes)
}
