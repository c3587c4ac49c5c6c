package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/naming"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
)

const (
	maxCreateFormMemory   = 32 << 20
	retryFailedBatchLimit = 500
	healthProbeTimeout    = 3 * time.Second
)

type taskActionResponse struct {
	TaskID  int64  `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// createTask accepts a multipart form describing one conversion task,
// stores it as pending, and nudges the fetcher.
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCreateFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form: %v", err)
		return
	}

	if f, _, err := r.FormFile("file_upload"); err == nil {
		_ = f.Close()
		writeError(w, http.StatusNotImplemented,
			"direct file upload is not supported, stage the file in the object store and pass bucket_name with file_path")
		return
	}

	req := &types.CreateTaskRequest{
		TaskType:    types.TaskType(r.FormValue("task_type")),
		Priority:    types.TaskPriority(r.FormValue("priority")),
		BucketName:  r.FormValue("bucket_name"),
		FilePath:    r.FormValue("file_path"),
		FileURL:     r.FormValue("file_url"),
		LocalPath:   r.FormValue("local_path"),
		OutputPath:  r.FormValue("output_path"),
		Platform:    r.FormValue("platform"),
		CallbackURL: r.FormValue("callback_url"),
	}
	if raw := r.FormValue("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Params); err != nil {
			writeError(w, http.StatusBadRequest, "params is not valid JSON: %v", err)
			return
		}
	}

	task, err := buildTask(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	id, err := s.store.CreateTask(task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task: %v", err)
		return
	}

	metrics.TasksCreated.WithLabelValues(string(task.TaskType)).Inc()
	s.broker.Publish(events.TaskEvent(events.EventTaskCreated, id,
		fmt.Sprintf("Task %d created (%s)", id, task.TaskType)))
	s.fabric.TryPush(queue.LaneIntake, id)

	s.logger.Info().
		Int64("task_id", id).
		Str("task_type", string(task.TaskType)).
		Str("priority", string(task.Priority)).
		Msg("Task created")

	writeJSON(w, http.StatusOK, taskActionResponse{
		TaskID:  id,
		Status:  string(types.TaskStatusPending),
		Message: fmt.Sprintf("Document conversion task %d created successfully", id),
	})
}

// buildTask validates the request and shapes the pending task row.
func buildTask(req *types.CreateTaskRequest) (*types.Task, error) {
	if req.TaskType == "" {
		return nil, fmt.Errorf("task_type is required")
	}
	if !req.TaskType.IsValid() {
		return nil, fmt.Errorf("invalid task_type %q", req.TaskType)
	}
	if req.Priority == "" {
		req.Priority = types.TaskPriorityNormal
	}
	if !req.Priority.IsValid() {
		return nil, fmt.Errorf("invalid priority %q", req.Priority)
	}
	if req.FileURL != "" {
		return nil, fmt.Errorf("file_url inputs are not supported")
	}

	switch n := req.SourceSpecCount(); {
	case n == 0:
		return nil, fmt.Errorf("an input source is required: bucket_name with file_path, or local_path")
	case n > 1:
		return nil, fmt.Errorf("bucket_name/file_path and local_path are mutually exclusive")
	}
	if req.TaskType.IsBatch() && req.LocalPath == "" {
		return nil, fmt.Errorf("batch tasks require a local_path directory")
	}

	if pattern, ok := req.Params["file_pattern"].(string); ok && pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid file_pattern: %v", err)
		}
	}

	return &types.Task{
		TaskType:   req.TaskType,
		Status:     types.TaskStatusPending,
		Priority:   req.Priority,
		BucketName: req.BucketName,
		// Object keys arrive percent-encoded or mangled by legacy
		// uploaders; repair once here so every later stage sees UTF-8.
		FilePath:      naming.EnsureUTF8(req.FilePath),
		LocalPath:     req.LocalPath,
		OutputPath:    req.OutputPath,
		Params:        req.Params,
		Platform:      req.Platform,
		CallbackURL:   req.CallbackURL,
		MaxRetryCount: types.DefaultMaxRetryCount,
	}, nil
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	task, err := s.store.GetTask(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task %d not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type listTasksResponse struct {
	Tasks  []*types.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	tasks, err := s.store.QueryTasks(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks: %v", err)
		return
	}
	if tasks == nil {
		tasks = []*types.Task{}
	}
	writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks:  tasks,
		Total:  len(tasks),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// filterFromQuery maps list query parameters onto a store filter,
// rejecting unknown enum values instead of silently matching nothing.
func filterFromQuery(q url.Values) (*types.QueryFilter, error) {
	filter := &types.QueryFilter{}

	if v := q.Get("status"); v != "" {
		status := types.TaskStatus(v)
		if !status.IsValid() {
			return nil, fmt.Errorf("invalid status %q", v)
		}
		filter.Status = status
	}
	if v := q.Get("priority"); v != "" {
		priority := types.TaskPriority(v)
		if !priority.IsValid() {
			return nil, fmt.Errorf("invalid priority %q", v)
		}
		filter.Priority = priority
	}
	if v := q.Get("task_type"); v != "" {
		taskType := types.TaskType(v)
		if !taskType.IsValid() {
			return nil, fmt.Errorf("invalid task_type %q", v)
		}
		filter.TaskType = taskType
	}
	filter.Platform = q.Get("platform")

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q", v)
		}
		filter.Offset = n
	}

	filter.Normalize()
	return filter, nil
}

func (s *Server) retryTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	task, err := s.store.GetTask(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task %d not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task: %v", err)
		return
	}

	if task.Status != types.TaskStatusFailed && task.Status != types.TaskStatusCancelled {
		writeError(w, http.StatusBadRequest,
			"task %d is %s, only failed or cancelled tasks can be retried", id, task.Status)
		return
	}

	if err := s.resetForRetry(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset task: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, taskActionResponse{
		TaskID:  id,
		Status:  string(types.TaskStatusPending),
		Message: fmt.Sprintf("Task %d queued for retry", id),
	})
}

// resetForRetry returns a terminal task to pending with a fresh retry
// budget and re-enqueues it.
func (s *Server) resetForRetry(id int64) error {
	patch := map[string]any{
		"status":        string(types.TaskStatusPending),
		"retry_count":   0,
		"error_message": nil,
		"completed_at":  nil,
	}
	if err := s.store.UpdateTask(id, patch); err != nil {
		return err
	}

	s.broker.Publish(events.TaskEvent(events.EventTaskRetried, id,
		fmt.Sprintf("Task %d queued for retry", id)))
	s.fabric.TryPush(queue.LaneIntake, id)
	return nil
}

type retryFailedResponse struct {
	RetriedTaskIDs []int64 `json:"retried_task_ids"`
	Count          int     `json:"count"`
	Message        string  `json:"message"`
}

func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := s.store.TasksByStatus(types.TaskStatusFailed, retryFailedBatchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list failed tasks: %v", err)
		return
	}

	ids := make([]int64, 0, len(failed))
	for _, task := range failed {
		if err := s.resetForRetry(task.ID); err != nil {
			s.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Bulk retry skipped task")
			continue
		}
		ids = append(ids, task.ID)
	}

	s.logger.Info().Int("count", len(ids)).Msg("Failed tasks queued for retry")
	writeJSON(w, http.StatusOK, retryFailedResponse{
		RetriedTaskIDs: ids,
		Count:          len(ids),
		Message:        fmt.Sprintf("%d failed tasks queued for retry", len(ids)),
	})
}

type updateTaskTypeRequest struct {
	TaskType types.TaskType `json:"task_type"`
}

type updateTaskTypeResponse struct {
	TaskID   int64  `json:"task_id"`
	TaskType string `json:"task_type"`
	Message  string `json:"message"`
}

// updateTaskType changes the conversion of a failed task before it is
// retried, for example from pdf_to_markdown to image_to_markdown when a
// scan turned out to have no text layer.
func (s *Server) updateTaskType(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	var req updateTaskTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if !req.TaskType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid task_type %q", req.TaskType)
		return
	}

	task, err := s.store.GetTask(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task %d not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task: %v", err)
		return
	}

	if task.Status != types.TaskStatusFailed {
		writeError(w, http.StatusBadRequest,
			"task %d is %s, only failed tasks can change task_type", id, task.Status)
		return
	}

	if err := s.store.UpdateTask(id, map[string]any{"task_type": string(req.TaskType)}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, updateTaskTypeResponse{
		TaskID:   id,
		TaskType: string(req.TaskType),
		Message:  fmt.Sprintf("Task %d task_type updated to %s", id, req.TaskType),
	})
}

type statisticsResponse struct {
	Tasks     *types.TaskStatistics `json:"tasks"`
	Scheduler *types.SchedulerStats `json:"scheduler"`
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not initialized")
		return
	}

	stats, err := s.store.Statistics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate statistics: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, statisticsResponse{
		Tasks:     stats,
		Scheduler: s.sched.Stats(),
	})
}

type healthResponse struct {
	Status       string                    `json:"status"`
	Timestamp    time.Time                 `json:"timestamp"`
	Scheduler    *types.SchedulerStats     `json:"scheduler"`
	Dependencies map[string]dependencyView `json:"dependencies,omitempty"`
}

type dependencyView struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// healthCheck reports process liveness, queue depths through the
// scheduler snapshot, and the outcome of the registered dependency
// probes. Any failing probe degrades the response to 503.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not initialized")
		return
	}

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Scheduler: s.sched.Stats(),
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		resp.Dependencies = make(map[string]dependencyView, len(s.checks))
		for name, checker := range s.checks {
			result := checker.Check(ctx)
			resp.Dependencies[name] = dependencyView{
				Healthy: result.Healthy,
				Message: result.Message,
				Latency: result.Duration.String(),
			}
			if !result.Healthy {
				resp.Status = "degraded"
			}
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func taskIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}
