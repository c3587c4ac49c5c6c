package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/types"
)

// runUpdater performs post-commit bookkeeping for finished tasks,
// completion metrics and lifecycle events, then hands the id to the
// cleanup lane. The terminal status is already durable by the time an id
// arrives here.
func (s *Scheduler) runUpdater() {
	for {
		select {
		case id := <-s.fabric.Take(queue.LaneUpdate):
			s.postCommit(id)
			if !s.fabric.Push(queue.LaneCleanup, id, s.stopCh) {
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) postCommit(id int64) {
	logger := log.WithWorker("updater")

	task, err := s.store.GetTask(id)
	if err != nil {
		logger.Warn().Err(err).Int64("task_id", id).Msg("Post-commit lookup failed")
		return
	}

	switch task.Status {
	case types.TaskStatusCompleted:
		metrics.TasksCompleted.WithLabelValues(string(task.TaskType)).Inc()
		if task.TaskProcessingTime != nil {
			metrics.TaskProcessingSeconds.WithLabelValues(string(task.TaskType)).Observe(*task.TaskProcessingTime)
		}
		s.broker.Publish(events.TaskEvent(events.EventTaskCompleted, id,
			fmt.Sprintf("Task %d completed", id)))
	case types.TaskStatusFailed:
		message := ""
		if task.ErrorMessage != nil {
			message = *task.ErrorMessage
		}
		s.broker.Publish(events.TaskEvent(events.EventTaskFailed, id,
			fmt.Sprintf("Task %d failed: %s", id, message)))
	}
}

// runCleaner clears the scratch areas of finished workspaces, keeping
// inputs and final artifacts on disk, then hands the id to the callback
// lane.
func (s *Scheduler) runCleaner() {
	logger := log.WithWorker("cleaner")
	for {
		select {
		case id := <-s.fabric.Take(queue.LaneCleanup):
			if err := s.spaces.PartialCleanup(id); err != nil {
				logger.Warn().Err(err).Int64("task_id", id).Msg("Workspace cleanup failed")
			}
			if !s.fabric.Push(queue.LaneCallback, id, s.stopCh) {
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

// runCallback delivers the finished task to its callback URL, if it has
// one. Delivery is retried with exponential backoff inside the
// configured callback window; the outcome is recorded on the task but
// never changes its status.
func (s *Scheduler) runCallback() {
	client := &http.Client{Timeout: 10 * time.Second}
	for {
		select {
		case id := <-s.fabric.Take(queue.LaneCallback):
			s.deliverCallback(client, id)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) deliverCallback(client *http.Client, id int64) {
	logger := log.WithWorker("callback")

	task, err := s.store.GetTask(id)
	if err != nil {
		logger.Warn().Err(err).Int64("task_id", id).Msg("Callback lookup failed")
		return
	}
	if task.CallbackURL == "" {
		return
	}

	body, err := json.Marshal(task)
	if err != nil {
		logger.Warn().Err(err).Int64("task_id", id).Msg("Callback payload encoding failed")
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = s.cfg.CallbackTimeout()

	var statusCode int
	operation := func() error {
		req, err := http.NewRequest(http.MethodPost, task.CallbackURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		statusCode = resp.StatusCode
		if resp.StatusCode >= 500 {
			return fmt.Errorf("callback returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not heal on retry.
			return backoff.Permanent(fmt.Errorf("callback returned %d", resp.StatusCode))
		}
		return nil
	}

	err = backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int64("task_id", id).
			Dur("next_attempt_in", wait).
			Msg("Callback attempt failed, will retry")
	})

	patch := map[string]any{"callback_time": time.Now()}
	if statusCode != 0 {
		patch["callback_status_code"] = statusCode
	}
	if err != nil {
		patch["callback_message"] = err.Error()
		metrics.CallbackDeliveries.WithLabelValues("failed").Inc()
		s.broker.Publish(events.TaskEvent(events.EventCallbackFailed, id,
			fmt.Sprintf("Task %d callback to %s failed: %v", id, task.CallbackURL, err)))
		logger.Warn().
			Err(err).
			Int64("task_id", id).
			Str("callback_url", task.CallbackURL).
			Msg("Callback delivery failed")
	} else {
		patch["callback_message"] = "delivered"
		metrics.CallbackDeliveries.WithLabelValues("delivered").Inc()
		s.broker.Publish(events.TaskEvent(events.EventCallbackSent, id,
			fmt.Sprintf("Task %d callback delivered", id)))
		logger.Info().
			Int64("task_id", id).
			Int("status_code", statusCode).
			Msg("Callback delivered")
	}

	// Delivery outcome is informational; a failed write here must not
	// disturb the task's terminal status.
	if err := s.store.UpdateTask(id, patch); err != nil {
		logger.Warn().Err(err).Int64("task_id", id).Msg("Callback record write failed")
	}
}
