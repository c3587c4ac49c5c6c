package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/docmill/pkg/engine"
	"github.com/docmill/docmill/pkg/types"
)

func TestScanOutputDirTriggers(t *testing.T) {
	write := func(t *testing.T, dir, rel string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	t.Run("single file has no triggers", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "rep.md")

		files, hasImagesDir, hasJSON, err := scanOutputDir(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"rep.md"}, files)
		assert.False(t, hasImagesDir)
		assert.False(t, hasJSON)
	})

	t.Run("json sidecar triggers directory upload", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "rep.JSON")

		_, _, hasJSON, err := scanOutputDir(dir)
		require.NoError(t, err)
		assert.True(t, hasJSON)
	})

	t.Run("images subdirectory triggers directory upload", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, filepath.Join("images", "fig.png"))

		files, hasImagesDir, _, err := scanOutputDir(dir)
		require.NoError(t, err)
		assert.True(t, hasImagesDir)
		assert.Equal(t, []string{filepath.Join("images", "fig.png")}, files)
	})

	t.Run("files come back sorted by relative path", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "z.md")
		write(t, dir, "a.md")
		write(t, dir, filepath.Join("sub", "m.md"))

		files, _, _, err := scanOutputDir(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md", filepath.Join("sub", "m.md"), "z.md"}, files)
	})

	t.Run("empty directory lists nothing", func(t *testing.T) {
		files, hasImagesDir, hasJSON, err := scanOutputDir(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, files)
		assert.False(t, hasImagesDir)
		assert.False(t, hasJSON)
	})
}

func TestResultSummaryBatchCounts(t *testing.T) {
	task := &types.Task{TaskType: types.TaskTypeBatchPDFToMarkdown}
	result := &engine.ConvertResult{
		Success:        true,
		FilesTotal:     5,
		FilesConverted: 3,
		FilesFailed:    2,
		FailedFiles:    []string{"/in/x.pdf", "/in/y.pdf"},
		MarkdownFiles:  []string{"/out/a.md", "/out/b.md", "/out/c.md"},
	}

	summary := resultSummary(task, result, 3, 900)

	assert.Equal(t, true, summary["success"])
	assert.Equal(t, 3, summary["output_files"])
	assert.Equal(t, int64(900), summary["total_output_bytes"])
	assert.Equal(t, 5, summary["files_total"])
	assert.Equal(t, 3, summary["files_converted"])
	assert.Equal(t, 2, summary["files_failed"])
	assert.Equal(t, []string{"/in/x.pdf", "/in/y.pdf"}, summary["failed_files"])
	assert.Equal(t, 3, summary["markdown_files"])
	assert.NotContains(t, summary, "skipped")
}

func TestResultSummarySingleTask(t *testing.T) {
	task := &types.Task{TaskType: types.TaskTypePDFToMarkdown}
	result := &engine.ConvertResult{Success: true, Skipped: true}

	summary := resultSummary(task, result, 1, 10)

	assert.Equal(t, true, summary["skipped"])
	assert.NotContains(t, summary, "files_total")
}

func TestFetchInputRejectsUnsupportedSources(t *testing.T) {
	rig := newTestRig(t)
	ws, err := rig.spaces.Create(1)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("file_url", func(t *testing.T) {
		_, err := rig.s.fetchInput(ctx, &types.Task{ID: 1, FileURL: "https://cdn.example/doc.pdf"}, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not supported")
	})

	t.Run("no source at all", func(t *testing.T) {
		_, err := rig.s.fetchInput(ctx, &types.Task{ID: 1}, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no input source")
	})

	t.Run("missing local file", func(t *testing.T) {
		_, err := rig.s.fetchInput(ctx, &types.Task{ID: 1, LocalPath: "/nope/missing.pdf"}, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("directory input on a single-file type", func(t *testing.T) {
		dir := t.TempDir()
		_, err := rig.s.fetchInput(ctx, &types.Task{
			ID:        1,
			TaskType:  types.TaskTypePDFToMarkdown,
			LocalPath: dir,
		}, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected a file")
	})
}

func TestCopyFileLeavesSourceIntact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, copyFile(src, dst))

	srcContent, err := os.ReadFile(src)
	require.NoError(t, err)
	dstContent, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, srcContent, dstContent)
}
