package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/convert"
	"github.com/docmill/docmill/pkg/engine"
	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
	"github.com/docmill/docmill/pkg/workspace"
)

// errStoreTransient marks a failed terminal write. The id is re-queued
// without consuming a retry attempt; the conversion itself succeeded or
// was already charged.
var errStoreTransient = errors.New("transient store error")

// runConverter is one conversion worker loop. K of these run in
// parallel, all draining the dispatch lane.
func (s *Scheduler) runConverter(n int) {
	for {
		select {
		case id := <-s.fabric.Take(queue.LaneDispatch):
			s.processTask(id, n)
		case <-s.stopCh:
			return
		}
	}
}

// processTask runs one claimed task through the conversion pipeline and
// routes the outcome: terminal success into the update lane, failures
// into the retry path.
func (s *Scheduler) processTask(id int64, worker int) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer s.total.Add(1)

	logger := log.WithWorker(fmt.Sprintf("convert-%d", worker))

	task, err := s.store.GetTask(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Int64("task_id", id).Msg("Dispatched task no longer exists")
			return
		}
		logger.Warn().Err(err).Int64("task_id", id).Msg("Task load failed, requeueing")
		s.requeue(id)
		return
	}

	if err := s.runPipeline(task); err != nil {
		s.failOrRetry(task, err)
	}
}

// runPipeline executes the worker steps in order: workspace, input
// fetch, conversion, artifact upload, terminal status write, hand-off to
// the post-commit lanes. Any step failing aborts the rest.
func (s *Scheduler) runPipeline(task *types.Task) error {
	t0 := time.Now()
	ctx := context.Background()
	logger := log.WithTaskID(task.ID)
	logger.Info().
		Str("task_type", string(task.TaskType)).
		Str("priority", string(task.Priority)).
		Int("retry_count", task.RetryCount).
		Msg("Conversion started")

	ws, err := s.spaces.Create(task.ID)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	inputPath, err := s.fetchInput(ctx, task, ws)
	if err != nil {
		return err
	}

	result, err := s.dispatcher.Convert(ctx, convert.Request{
		TaskID:    task.ID,
		TaskType:  task.TaskType,
		InputPath: inputPath,
		OutputDir: ws.OutputDir,
		TempDir:   ws.TempDir,
		Params:    task.Params,
	})
	if err != nil {
		return err
	}

	primary, urls, totalBytes, err := s.pushOutputs(ctx, task, ws)
	if err != nil {
		return err
	}

	elapsed := time.Since(t0).Seconds()
	patch := map[string]any{
		"status":               string(types.TaskStatusCompleted),
		"completed_at":         time.Now(),
		"task_processing_time": elapsed,
		"output_url":           primary,
		"s3_urls":              urls,
		"output_path_local":    result.OutputPath,
		"result":               resultSummary(task, result, len(urls), totalBytes),
		"engine_name":          s.dispatcher.EngineName(task.TaskType),
		// Clear the message a failed earlier attempt or a restart
		// recovery left behind.
		"error_message": nil,
	}
	if result.PagesProcessed > 0 {
		patch["pages_processed"] = result.PagesProcessed
	}
	if err := s.store.UpdateTask(task.ID, patch); err != nil {
		return fmt.Errorf("%w: %v", errStoreTransient, err)
	}

	logger.Info().
		Str("output_url", primary).
		Int("artifacts", len(urls)).
		Float64("elapsed_seconds", elapsed).
		Msg("Conversion completed")

	s.fabric.Push(queue.LaneUpdate, task.ID, s.stopCh)
	return nil
}

// fetchInput materializes the task's input document inside the
// workspace and records where it landed. Bucket inputs are downloaded
// under their repaired filename; local files are copied, never moved.
// Local directories feed batch conversions in place.
func (s *Scheduler) fetchInput(ctx context.Context, task *types.Task, ws *workspace.Workspace) (string, error) {
	switch {
	case task.BucketName != "" && task.FilePath != "":
		src := objectstore.DeriveSource(task, s.uploadBucket)
		localPath := ws.InputPath(src.Filename)
		info, err := s.downloads.Download(ctx, task.BucketName, task.FilePath, localPath)
		if err != nil {
			return "", fmt.Errorf("input fetch failed: %w", err)
		}
		if err := s.recordInput(task.ID, localPath, src.Filename, info.Size); err != nil {
			return "", err
		}
		return localPath, nil

	case task.LocalPath != "":
		info, err := os.Stat(task.LocalPath)
		if err != nil {
			return "", fmt.Errorf("local input not found: %s", task.LocalPath)
		}
		if info.IsDir() {
			if !task.TaskType.IsBatch() {
				return "", fmt.Errorf("local input %s is a directory, expected a file", task.LocalPath)
			}
			if err := s.recordInput(task.ID, task.LocalPath, filepath.Base(task.LocalPath), 0); err != nil {
				return "", err
			}
			return task.LocalPath, nil
		}
		dst := ws.InputPath(filepath.Base(task.LocalPath))
		if err := copyFile(task.LocalPath, dst); err != nil {
			return "", fmt.Errorf("failed to copy local input: %w", err)
		}
		if err := s.recordInput(task.ID, dst, filepath.Base(dst), info.Size()); err != nil {
			return "", err
		}
		return dst, nil

	case task.FileURL != "":
		return "", fmt.Errorf("file_url inputs are not supported")

	default:
		return "", fmt.Errorf("task has no input source")
	}
}

func (s *Scheduler) recordInput(id int64, path, name string, size int64) error {
	err := s.store.UpdateTask(id, map[string]any{
		"input_path":      path,
		"file_name":       name,
		"file_size_bytes": size,
	})
	if err != nil {
		return fmt.Errorf("failed to record input metadata: %w", err)
	}
	return nil
}

// pushOutputs stores the conversion artifacts. A lone output file is
// uploaded by itself; anything richer, multiple files, an images
// directory, or any json sidecar, uploads the whole output tree so
// relative references inside the markdown keep resolving.
func (s *Scheduler) pushOutputs(ctx context.Context, task *types.Task, ws *workspace.Workspace) (primary string, urls []string, totalBytes int64, err error) {
	files, hasImagesDir, hasJSON, err := scanOutputDir(ws.OutputDir)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to scan output directory: %w", err)
	}
	if len(files) == 0 {
		return "", nil, 0, fmt.Errorf("conversion produced no output files")
	}

	src := objectstore.DeriveSource(task, s.uploadBucket)
	meta := objectstore.ConversionMetadata{
		TaskID:           task.ID,
		TaskType:         task.TaskType,
		OriginalBucket:   task.BucketName,
		OriginalFilename: src.Filename,
		OriginalFolder:   src.Folder,
	}

	if len(files) > 1 || hasImagesDir || hasJSON {
		prefix := src.OutputPrefix(task.TaskType, task.ID)
		dir, err := s.uploads.UploadDirectory(ctx, ws.OutputDir, s.uploadBucket, prefix, meta)
		if err != nil {
			return "", nil, 0, fmt.Errorf("artifact upload failed: %w", err)
		}
		if len(dir.Uploaded) == 0 {
			return "", nil, 0, fmt.Errorf("artifact upload failed: no files stored")
		}
		return dir.PrimaryURL(), dir.URLs(), dir.TotalSize, nil
	}

	key := src.OutputKey(task.TaskType, task.ID, filepath.Base(files[0]))
	up, err := s.uploads.UploadFile(ctx, filepath.Join(ws.OutputDir, files[0]), s.uploadBucket, key, meta)
	if err != nil {
		return "", nil, 0, fmt.Errorf("artifact upload failed: %w", err)
	}
	return up.URL, []string{up.URL}, up.Size, nil
}

// failOrRetry applies the retry policy after a pipeline failure: charge
// one attempt and return the task to pending while attempts remain,
// otherwise mark it failed and hand it to the post-commit lanes. A
// transient store failure re-queues the id without charging an attempt.
func (s *Scheduler) failOrRetry(task *types.Task, cause error) {
	logger := log.WithTaskID(task.ID)

	if errors.Is(cause, errStoreTransient) {
		logger.Warn().Err(cause).Msg("Terminal write failed, requeueing without retry charge")
		s.requeue(task.ID)
		return
	}

	engErr := engine.Classify(cause)
	message := engErr.Error()
	retryCount := task.RetryCount + 1

	if retryCount < task.MaxRetryCount {
		patch := map[string]any{
			"status":        string(types.TaskStatusPending),
			"retry_count":   retryCount,
			"last_retry_at": time.Now(),
			"error_message": message,
		}
		if err := s.store.UpdateTask(task.ID, patch); err != nil {
			logger.Warn().Err(err).Msg("Retry write failed, requeueing without retry charge")
			s.requeue(task.ID)
			return
		}
		metrics.TaskRetries.Inc()
		s.broker.Publish(events.TaskEvent(events.EventTaskRetried, task.ID,
			fmt.Sprintf("Task %d retry %d/%d: %s", task.ID, retryCount, task.MaxRetryCount, message)))
		logger.Warn().
			Int("retry_count", retryCount).
			Int("max_retry_count", task.MaxRetryCount).
			Str("error_kind", string(engErr.Kind)).
			Str("error", message).
			Msg("Conversion failed, task returned to pending")
		// Wake the fetcher; the next poll covers a full intake lane.
		s.fabric.TryPush(queue.LaneIntake, task.ID)
		return
	}

	patch := map[string]any{
		"status":        string(types.TaskStatusFailed),
		"completed_at":  time.Now(),
		"retry_count":   retryCount,
		"error_message": message,
	}
	if err := s.store.UpdateTask(task.ID, patch); err != nil {
		logger.Warn().Err(err).Msg("Failure write failed, requeueing without retry charge")
		s.requeue(task.ID)
		return
	}
	metrics.TasksFailed.WithLabelValues(string(task.TaskType), string(engErr.Kind)).Inc()
	logger.Error().
		Int("retry_count", retryCount).
		Str("error_kind", string(engErr.Kind)).
		Str("error", message).
		Msg("Task failed permanently")
	s.fabric.Push(queue.LaneUpdate, task.ID, s.stopCh)
}

// requeue puts an id back on the dispatch lane after a short pause so a
// store outage does not spin the worker pool.
func (s *Scheduler) requeue(id int64) {
	select {
	case <-time.After(time.Second):
	case <-s.stopCh:
		return
	}
	s.fabric.Push(queue.LaneDispatch, id, s.stopCh)
}

// resultSummary condenses a conversion result into the task's stored
// result document.
func resultSummary(task *types.Task, result *engine.ConvertResult, artifacts int, totalBytes int64) map[string]any {
	summary := map[string]any{
		"success":            true,
		"output_files":       artifacts,
		"total_output_bytes": totalBytes,
	}
	if result.Skipped {
		summary["skipped"] = true
	}
	if len(result.MarkdownFiles) > 0 {
		summary["markdown_files"] = len(result.MarkdownFiles)
	}
	if len(result.JSONFiles) > 0 {
		summary["json_files"] = len(result.JSONFiles)
	}
	if len(result.ImageFiles) > 0 {
		summary["image_files"] = len(result.ImageFiles)
	}
	if task.TaskType.IsBatch() {
		summary["files_total"] = result.FilesTotal
		summary["files_converted"] = result.FilesConverted
		summary["files_failed"] = result.FilesFailed
		if len(result.FailedFiles) > 0 {
			summary["failed_files"] = result.FailedFiles
		}
	}
	return summary
}

// scanOutputDir lists the regular files under dir as sorted relative
// paths and reports the two directory-upload triggers: an images
// subdirectory or any json sidecar.
func scanOutputDir(dir string) (files []string, hasImagesDir, hasJSON bool, err error) {
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == "images" && p != dir {
				hasImagesDir = true
			}
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		if strings.EqualFold(filepath.Ext(p), ".json") {
			hasJSON = true
		}
		return nil
	})
	if err != nil {
		return nil, false, false, err
	}
	sort.Strings(files)
	return files, hasImagesDir, hasJSON, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
