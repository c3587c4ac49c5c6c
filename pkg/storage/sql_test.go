package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/docmill/pkg/types"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(DialectSQLite, filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)

	procTime := 12.5
	task := &types.Task{
		TaskType:           types.TaskTypePDFToMarkdown,
		Status:             types.TaskStatusPending,
		Priority:           types.TaskPriorityHigh,
		BucketName:         "reports",
		FilePath:           "docs/2024/annual.pdf",
		Platform:           "finance",
		CallbackURL:        "http://callback.local/done",
		Params:             map[string]any{"force_reprocess": true, "dpi": float64(300)},
		S3URLs:             []string{"s3://a/x.md", "s3://a/y.json"},
		Result:             map[string]any{"pages": float64(9)},
		FileName:           "annual.pdf",
		FileSizeBytes:      2048,
		OutputURL:          "s3://a/x.md",
		TaskProcessingTime: &procTime,
		EngineName:         "pdf_analyzer",
		PagesProcessed:     9,
		ErrorMessage:       nil,
	}

	id, err := store.CreateTask(task)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Greater(t, id, int64(0))

	got, err := store.GetTask(id)
	require.NoError(t, err)

	assert.Equal(t, types.TaskTypePDFToMarkdown, got.TaskType)
	assert.Equal(t, types.TaskStatusPending, got.Status)
	assert.Equal(t, types.TaskPriorityHigh, got.Priority)
	assert.Equal(t, "reports", got.BucketName)
	assert.Equal(t, "docs/2024/annual.pdf", got.FilePath)
	assert.Equal(t, "finance", got.Platform)
	assert.Equal(t, "http://callback.local/done", got.CallbackURL)
	assert.Equal(t, map[string]any{"force_reprocess": true, "dpi": float64(300)}, got.Params)
	assert.Equal(t, []string{"s3://a/x.md", "s3://a/y.json"}, got.S3URLs)
	assert.Equal(t, map[string]any{"pages": float64(9)}, got.Result)
	assert.Equal(t, "annual.pdf", got.FileName)
	assert.Equal(t, int64(2048), got.FileSizeBytes)
	assert.Equal(t, "s3://a/x.md", got.OutputURL)
	require.NotNil(t, got.TaskProcessingTime)
	assert.Equal(t, 12.5, *got.TaskProcessingTime)
	assert.Equal(t, "pdf_analyzer", got.EngineName)
	assert.Equal(t, 9, got.PagesProcessed)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, 5*time.Second)
}

func TestCreateTaskDefaults(t *testing.T) {
	store := newTestStore(t)

	task := &types.Task{TaskType: types.TaskTypeOfficeToPDF}
	_, err := store.CreateTask(task)
	require.NoError(t, err)

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusPending, got.Status)
	assert.Equal(t, types.TaskPriorityNormal, got.Priority)
	assert.Equal(t, types.DefaultMaxRetryCount, got.MaxRetryCount)
	assert.Equal(t, 0, got.RetryCount)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTask(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTask(t *testing.T) {
	store := newTestStore(t)

	task := &types.Task{TaskType: types.TaskTypeOfficeToMarkdown}
	_, err := store.CreateTask(task)
	require.NoError(t, err)

	completedAt := time.Now().UTC()
	err = store.UpdateTask(task.ID, map[string]any{
		"status":               types.TaskStatusCompleted,
		"completed_at":         completedAt,
		"output_url":           "s3://bucket/out.md",
		"s3_urls":              []string{"s3://bucket/out.md"},
		"result":               map[string]any{"files": float64(1)},
		"task_processing_time": 3.25,
		"retry_count":          1,
	})
	require.NoError(t, err)

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, got.Status)
	assert.Equal(t, "s3://bucket/out.md", got.OutputURL)
	assert.Equal(t, []string{"s3://bucket/out.md"}, got.S3URLs)
	assert.Equal(t, map[string]any{"files": float64(1)}, got.Result)
	require.NotNil(t, got.TaskProcessingTime)
	assert.Equal(t, 3.25, *got.TaskProcessingTime)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, completedAt, *got.CompletedAt, time.Second)
}

func TestUpdateTaskRejectsUnknownColumn(t *testing.T) {
	store := newTestStore(t)

	task := &types.Task{TaskType: types.TaskTypeOfficeToPDF}
	_, err := store.CreateTask(task)
	require.NoError(t, err)

	err = store.UpdateTask(task.ID, map[string]any{"no_such_column": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_column")
}

func TestUpdateTaskNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateTask(424242, map[string]any{"status": types.TaskStatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTaskStatus(t *testing.T) {
	store := newTestStore(t)

	task := &types.Task{TaskType: types.TaskTypeImageToMarkdown}
	_, err := store.CreateTask(task)
	require.NoError(t, err)

	// Non-terminal status transition leaves completed_at empty.
	err = store.UpdateTaskStatus(task.ID, types.TaskStatusProcessing, nil)
	require.NoError(t, err)
	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusProcessing, got.Status)
	assert.Nil(t, got.CompletedAt)

	// Terminal status stamps completed_at and stores the error.
	err = store.UpdateTaskStatus(task.ID, types.TaskStatusFailed, strPtr("conversion failed: boom"))
	require.NoError(t, err)
	got, err = store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "conversion failed: boom", *got.ErrorMessage)
}

func TestClaimTask(t *testing.T) {
	store := newTestStore(t)

	task := &types.Task{TaskType: types.TaskTypePDFToMarkdown}
	_, err := store.CreateTask(task)
	require.NoError(t, err)

	claimed, err := store.ClaimTask(task.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)

	// Second claim loses the race.
	claimed, err = store.ClaimTask(task.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Claiming a task that does not exist is not an error, just a miss.
	claimed, err = store.ClaimTask(777777)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestPendingForDispatchPriorityOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	create := func(priority types.TaskPriority, offset time.Duration) int64 {
		task := &types.Task{
			TaskType:  types.TaskTypeOfficeToPDF,
			Priority:  priority,
			CreatedAt: base.Add(offset),
			UpdatedAt: base.Add(offset),
		}
		id, err := store.CreateTask(task)
		require.NoError(t, err)
		return id
	}

	lowID := create(types.TaskPriorityLow, 0)
	highLate := create(types.TaskPriorityHigh, 10*time.Minute)
	normalID := create(types.TaskPriorityNormal, 5*time.Minute)
	highEarly := create(types.TaskPriorityHigh, time.Minute)

	tasks, err := store.PendingForDispatch(10)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	order := []int64{tasks[0].ID, tasks[1].ID, tasks[2].ID, tasks[3].ID}
	assert.Equal(t, []int64{highEarly, highLate, normalID, lowID}, order)

	// Limit trims from the back of the dispatch order.
	tasks, err = store.PendingForDispatch(2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, highEarly, tasks[0].ID)
	assert.Equal(t, highLate, tasks[1].ID)
}

func TestQueryTasksFilters(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	mk := func(i int, status types.TaskStatus, taskType types.TaskType, errMsg *string) int64 {
		task := &types.Task{
			TaskType:     taskType,
			Status:       status,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    base.Add(time.Duration(i) * time.Minute),
			ErrorMessage: errMsg,
		}
		id, err := store.CreateTask(task)
		require.NoError(t, err)
		return id
	}

	id1 := mk(1, types.TaskStatusCompleted, types.TaskTypeOfficeToPDF, nil)
	id2 := mk(2, types.TaskStatusFailed, types.TaskTypePDFToMarkdown, strPtr("boom"))
	id3 := mk(3, types.TaskStatusCompleted, types.TaskTypePDFToMarkdown, nil)
	id4 := mk(4, types.TaskStatusPending, types.TaskTypeOfficeToPDF, nil)

	// Newest first without filters.
	all, err := store.QueryTasks(nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, id4, all[0].ID)
	assert.Equal(t, id1, all[3].ID)

	// Status filter.
	completed, err := store.QueryTasks(&types.QueryFilter{Status: types.TaskStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, id3, completed[0].ID)
	assert.Equal(t, id1, completed[1].ID)

	// Task type filter.
	pdfs, err := store.QueryTasks(&types.QueryFilter{TaskType: types.TaskTypePDFToMarkdown})
	require.NoError(t, err)
	require.Len(t, pdfs, 2)

	// Error presence filter.
	hasErr := true
	failed, err := store.QueryTasks(&types.QueryFilter{HasError: &hasErr})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id2, failed[0].ID)

	// Pagination.
	page, err := store.QueryTasks(&types.QueryFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, id2, page[0].ID)
	assert.Equal(t, id1, page[1].ID)

	// Time window.
	cutoff := base.Add(150 * time.Second)
	recent, err := store.QueryTasks(&types.QueryFilter{CreatedAfter: &cutoff})
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestTasksByStatus(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		task := &types.Task{
			TaskType:  types.TaskTypeOfficeToPDF,
			Status:    types.TaskStatusFailed,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		_, err := store.CreateTask(task)
		require.NoError(t, err)
	}

	failed, err := store.TasksByStatus(types.TaskStatusFailed, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 3)
	// Oldest first.
	assert.True(t, failed[0].CreatedAt.Before(failed[2].CreatedAt))

	limited, err := store.TasksByStatus(types.TaskStatusFailed, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := store.TasksByStatus(types.TaskStatusCancelled, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecoverProcessing(t *testing.T) {
	store := newTestStore(t)

	for _, status := range []types.TaskStatus{
		types.TaskStatusProcessing,
		types.TaskStatusProcessing,
		types.TaskStatusPending,
		types.TaskStatusCompleted,
	} {
		_, err := store.CreateTask(&types.Task{TaskType: types.TaskTypeOfficeToPDF, Status: status})
		require.NoError(t, err)
	}

	recovered, err := store.RecoverProcessing("recovered after restart")
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	pending, err := store.TasksByStatus(types.TaskStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	marked := 0
	for _, task := range pending {
		if task.ErrorMessage != nil && *task.ErrorMessage == "recovered after restart" {
			marked++
		}
	}
	assert.Equal(t, 2, marked)

	processing, err := store.TasksByStatus(types.TaskStatusProcessing, 0)
	require.NoError(t, err)
	assert.Empty(t, processing)
}

func TestStatistics(t *testing.T) {
	store := newTestStore(t)

	mk := func(status types.TaskStatus, procTime *float64) {
		_, err := store.CreateTask(&types.Task{
			TaskType:           types.TaskTypePDFToMarkdown,
			Status:             status,
			TaskProcessingTime: procTime,
		})
		require.NoError(t, err)
	}

	two, four := 2.0, 4.0
	mk(types.TaskStatusCompleted, &two)
	mk(types.TaskStatusCompleted, &four)
	mk(types.TaskStatusFailed, nil)
	mk(types.TaskStatusPending, nil)
	mk(types.TaskStatusCancelled, nil)

	stats, err := store.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTasks)
	assert.Equal(t, 1, stats.PendingTasks)
	assert.Equal(t, 0, stats.ProcessingTasks)
	assert.Equal(t, 2, stats.CompletedTasks)
	assert.Equal(t, 1, stats.FailedTasks)
	assert.Equal(t, 1, stats.CancelledTasks)
	assert.Equal(t, 66.67, stats.SuccessRate)
	assert.Equal(t, 3.0, stats.AvgProcessingTimeSecs)
}

func TestStatisticsEmpty(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalTasks)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, 0.0, stats.AvgProcessingTimeSecs)
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	mk := func(status types.TaskStatus, age time.Duration) int64 {
		task := &types.Task{
			TaskType:  types.TaskTypeOfficeToPDF,
			Status:    status,
			CreatedAt: now.Add(-age),
			UpdatedAt: now.Add(-age),
		}
		id, err := store.CreateTask(task)
		require.NoError(t, err)
		return id
	}

	oldCompleted := mk(types.TaskStatusCompleted, 40*24*time.Hour)
	recentCompleted := mk(types.TaskStatusCompleted, 2*24*time.Hour)
	oldPending := mk(types.TaskStatusPending, 40*24*time.Hour)
	oldFailed := mk(types.TaskStatusFailed, 40*24*time.Hour)

	deleted, err := store.DeleteOlderThan(30, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetTask(oldCompleted)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTask(oldFailed)
	assert.ErrorIs(t, err, ErrNotFound)

	// Recent terminal tasks and non-terminal tasks survive.
	_, err = store.GetTask(recentCompleted)
	assert.NoError(t, err)
	_, err = store.GetTask(oldPending)
	assert.NoError(t, err)
}

func TestDeleteOlderThanRejectsNonPositiveDays(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DeleteOlderThan(0, nil)
	assert.Error(t, err)
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)

	for _, status := range []types.TaskStatus{
		types.TaskStatusPending,
		types.TaskStatusPending,
		types.TaskStatusCompleted,
	} {
		_, err := store.CreateTask(&types.Task{TaskType: types.TaskTypeOfficeToPDF, Status: status})
		require.NoError(t, err)
	}

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.TaskStatusPending])
	assert.Equal(t, 1, counts[types.TaskStatusCompleted])
	assert.Equal(t, 0, counts[types.TaskStatusFailed])
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	store, err := NewSQLStore(DialectSQLite, path)
	require.NoError(t, err)
	task := &types.Task{TaskType: types.TaskTypeOfficeToPDF}
	_, err = store.CreateTask(task)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening migrates in place without disturbing existing rows.
	store, err = NewSQLStore(DialectSQLite, path)
	require.NoError(t, err)
	defer store.Close()

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, ExpectedVersion(), version)

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskTypeOfficeToPDF, got.TaskType)
}

func TestUnsupportedDatabaseKind(t *testing.T) {
	_, err := NewSQLStore("postgres", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare dsn", "user:pw@tcp(db:3306)/tasks", "user:pw@tcp(db:3306)/tasks?parseTime=true"},
		{"existing options", "user:pw@tcp(db:3306)/tasks?charset=utf8mb4", "user:pw@tcp(db:3306)/tasks?charset=utf8mb4&parseTime=true"},
		{"already set", "user:pw@tcp(db:3306)/tasks?parseTime=true", "user:pw@tcp(db:3306)/tasks?parseTime=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mysqlDSN(tt.in))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:tasks.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("tasks.db"))
	assert.Equal(t, "file:tasks.db?cache=shared", sqliteDSN("file:tasks.db?cache=shared"))
}
