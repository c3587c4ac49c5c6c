/*
Package workspace manages the on-disk working directories of conversion tasks.

Every task gets an isolated directory tree under a common base:

	<base>/task_<id>/
	  input/    fetched source document
	  output/   conversion results, uploaded after the engine finishes
	  temp/     engine scratch space

plus a shared temp area for files that outlive a single task (split
batches, intermediate PDFs).

# Lifecycle

  - Create builds the tree before the fetch stage runs; re-creating an
    existing workspace keeps prior files so retries can resume.
  - PartialCleanup runs after a task reaches a terminal state: temp/ is
    emptied and engine scratch directories under output/ (names
    containing "temp") are removed. Input and final artifacts stay,
    because the download proxy may still serve them.
  - Remove reclaims the whole tree; the GC worker calls it only for
    workspaces whose task row no longer exists.
  - SweepTempFiles ages out shared scratch files and prunes emptied
    subdirectories.

# Usage

	m, err := workspace.NewManager(cfg.WorkspaceBaseDir, cfg.TempDir)
	if err != nil {
		return err
	}
	ws, err := m.Create(task.ID)
	// fetch into ws.InputDir, convert into ws.OutputDir
	defer m.PartialCleanup(task.ID)

# Integration Points

  - pkg/scheduler: creates workspaces in the fetch stage, partial-cleans
    in the cleanup stage, removes in the GC stage
  - pkg/engine: reads input from and writes output to workspace paths
  - Stats feeds the workspace gauges exposed over /api/statistics

The manager holds no state besides its two root paths; concurrent use
from multiple workers is safe because each task owns its own subtree.
*/
package workspace
