package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
)

// retentionStatuses are the terminal states old task rows are pruned
// from. Cancelled rows are kept; an operator cancelled them on purpose
// and may still want the record.
var retentionStatuses = []types.TaskStatus{types.TaskStatusCompleted, types.TaskStatusFailed}

// runGC periodically sweeps expired scratch files, orphaned workspaces,
// and, when retention is configured, old terminal task rows.
func (s *Scheduler) runGC() {
	ticker := time.NewTicker(s.cfg.GCInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.collectGarbage()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) collectGarbage() {
	logger := log.WithWorker("gc")
	start := time.Now()

	sweptFiles, sweptBytes, err := s.spaces.SweepTempFiles(s.cfg.TempFileMaxAge())
	if err != nil {
		logger.Warn().Err(err).Msg("Temp file sweep failed")
	}

	orphans := s.removeOrphanWorkspaces(logger)

	prunedRows := 0
	if s.cfg.TaskRetentionDays > 0 {
		prunedRows, err = s.store.DeleteOlderThan(s.cfg.TaskRetentionDays, retentionStatuses)
		if err != nil {
			logger.Warn().Err(err).Msg("Task retention prune failed")
		}
	}

	// Engines churn through large buffers; hand freed pages back to the
	// OS between cycles.
	debug.FreeOSMemory()

	s.broker.Publish(&events.Event{
		Type:    events.EventGCCompleted,
		Message: fmt.Sprintf("GC swept %d temp files, %d orphan workspaces, %d old rows", sweptFiles, orphans, prunedRows),
		Metadata: map[string]string{
			"temp_files":        strconv.Itoa(sweptFiles),
			"temp_bytes":        strconv.FormatInt(sweptBytes, 10),
			"orphan_workspaces": strconv.Itoa(orphans),
			"pruned_rows":       strconv.Itoa(prunedRows),
		},
	})
	logger.Info().
		Int("temp_files", sweptFiles).
		Int64("temp_bytes", sweptBytes).
		Int("orphan_workspaces", orphans).
		Int("pruned_rows", prunedRows).
		Dur("elapsed", time.Since(start)).
		Msg("Garbage collection completed")
}

// removeOrphanWorkspaces deletes workspace directories whose task row no
// longer exists, typically because retention pruned it. Workspaces of
// live tasks are never touched here.
func (s *Scheduler) removeOrphanWorkspaces(logger zerolog.Logger) int {
	ids, err := s.spaces.ListTaskIDs()
	if err != nil {
		logger.Warn().Err(err).Msg("Workspace listing failed")
		return 0
	}

	removed := 0
	for _, id := range ids {
		_, err := s.store.GetTask(id)
		if err == nil || !errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err := s.spaces.Remove(id); err != nil {
			logger.Warn().Err(err).Int64("task_id", id).Msg("Orphan workspace removal failed")
			continue
		}
		removed++
		logger.Debug().Int64("task_id", id).Msg("Orphan workspace removed")
	}
	return removed
}
