package storage

import (
	"errors"
	"time"

	"github.com/docmill/docmill/pkg/types"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Store defines the interface for durable task state.
// Implemented by the SQL-backed store (sqlite or mysql).
type Store interface {
	// CreateTask inserts the task with status pending and assigns its id.
	CreateTask(task *types.Task) (int64, error)

	// GetTask returns the task or ErrNotFound.
	GetTask(id int64) (*types.Task, error)

	// UpdateTask applies a partial update; updated_at is refreshed
	// automatically. Returns ErrNotFound when the row is missing.
	UpdateTask(id int64, patch map[string]any) error

	// UpdateTaskStatus transitions the task. started_at is stamped on the
	// transition to processing, completed_at on completed or failed.
	UpdateTaskStatus(id int64, status types.TaskStatus, errorMessage *string) error

	// ClaimTask atomically flips one pending task to processing. Returns
	// false without error when the row is no longer pending.
	ClaimTask(id int64) (bool, error)

	// QueryTasks lists rows matching the filter, newest first.
	QueryTasks(filter *types.QueryFilter) ([]*types.Task, error)

	// TasksByStatus lists up to limit rows in the given status.
	TasksByStatus(status types.TaskStatus, limit int) ([]*types.Task, error)

	// PendingForDispatch returns up to limit pending rows ordered by
	// priority (high first), then creation time.
	PendingForDispatch(limit int) ([]*types.Task, error)

	// RecoverProcessing resets every processing row to pending with the
	// given error message. Returns the number of recovered rows.
	RecoverProcessing(marker string) (int, error)

	// Statistics aggregates per-status totals, the success rate, and the
	// average processing time of completed tasks.
	Statistics() (*types.TaskStatistics, error)

	// DeleteOlderThan removes rows in the given statuses whose created_at
	// is older than the retention window. Returns the number deleted.
	DeleteOlderThan(days int, statuses []types.TaskStatus) (int, error)

	// CountByStatus returns the number of rows per status.
	CountByStatus() (map[types.TaskStatus]int, error)

	// Ping verifies the underlying connection.
	Ping() error

	// Close releases the underlying connection.
	Close() error
}

// nowFunc returns the current time; tests may override it.
var nowFunc = time.Now
