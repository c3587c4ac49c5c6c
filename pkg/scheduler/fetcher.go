package scheduler

import (
	"fmt"
	"time"

	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/types"
)

// mergerIdleWait is how long the priority merger sleeps when every
// priority lane is empty.
const mergerIdleWait = 200 * time.Millisecond

// runFetcher polls the store for pending tasks, claims up to the free
// worker budget, and routes each claimed id into its priority lane.
//
// Intake pushes from the API are only a wake-up hint; the store poll is
// the source of truth, so an id dropped from a full intake lane is still
// picked up on the next tick.
func (s *Scheduler) runFetcher() {
	ticker := time.NewTicker(s.cfg.TaskCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.fetchPending()
		case <-s.fabric.Take(queue.LaneIntake):
			s.fetchPending()
		case <-s.stopCh:
			return
		}
	}
}

// fetchPending claims as many pending tasks as the concurrency budget
// allows. Claiming uses a guarded status flip, so a row raced away by
// another instance is skipped silently.
func (s *Scheduler) fetchPending() {
	logger := log.WithWorker("fetcher")

	counts, err := s.store.CountByStatus()
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping fetch cycle, store unavailable")
		return
	}
	budget := s.cfg.MaxConcurrentTasks - counts[types.TaskStatusProcessing]
	if budget <= 0 {
		return
	}

	tasks, err := s.store.PendingForDispatch(budget)
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping fetch cycle, store unavailable")
		return
	}

	for _, task := range tasks {
		claimed, err := s.store.ClaimTask(task.ID)
		if err != nil {
			logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Claim failed, leaving task pending")
			continue
		}
		if !claimed {
			continue
		}

		if !s.fabric.Push(queue.PriorityLane(task.Priority), task.ID, s.stopCh) {
			// Shutting down; the claimed row is repaired by the next
			// start's recovery pass.
			return
		}
		s.broker.Publish(events.TaskEvent(events.EventTaskStarted, task.ID,
			fmt.Sprintf("Task %d claimed for conversion", task.ID)))
		logger.Debug().
			Int64("task_id", task.ID).
			Str("priority", string(task.Priority)).
			Str("task_type", string(task.TaskType)).
			Msg("Task claimed")
	}
}

// runMerger funnels the three priority lanes into the dispatch lane,
// draining high before normal and normal before low. Low priority tasks
// can starve while higher lanes stay busy; callers escape by raising the
// task's priority.
func (s *Scheduler) runMerger() {
	for {
		id, ok := s.nextByPriority()
		if !ok {
			select {
			case <-time.After(mergerIdleWait):
			case <-s.stopCh:
				return
			}
			continue
		}
		if !s.fabric.Push(queue.LaneDispatch, id, s.stopCh) {
			return
		}
	}
}

func (s *Scheduler) nextByPriority() (int64, bool) {
	for _, lane := range []queue.Lane{queue.LaneHigh, queue.LaneNormal, queue.LaneLow} {
		if id, ok := s.fabric.TryTake(lane); ok {
			return id, true
		}
	}
	return 0, false
}
