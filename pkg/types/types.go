package types

import (
	"time"
)

// TaskType selects the conversion an engine performs
type TaskType string

const (
	TaskTypeOfficeToPDF      TaskType = "office_to_pdf"
	TaskTypePDFToMarkdown    TaskType = "pdf_to_markdown"
	TaskTypeOfficeToMarkdown TaskType = "office_to_markdown"
	TaskTypeImageToMarkdown  TaskType = "image_to_markdown"

	TaskTypeBatchOfficeToPDF      TaskType = "batch_office_to_pdf"
	TaskTypeBatchPDFToMarkdown    TaskType = "batch_pdf_to_markdown"
	TaskTypeBatchOfficeToMarkdown TaskType = "batch_office_to_markdown"
	TaskTypeBatchImageToMarkdown  TaskType = "batch_image_to_markdown"
)

// ValidTaskTypes returns every accepted task type, single before batch.
func ValidTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeOfficeToPDF,
		TaskTypePDFToMarkdown,
		TaskTypeOfficeToMarkdown,
		TaskTypeImageToMarkdown,
		TaskTypeBatchOfficeToPDF,
		TaskTypeBatchPDFToMarkdown,
		TaskTypeBatchOfficeToMarkdown,
		TaskTypeBatchImageToMarkdown,
	}
}

// IsValid reports whether t is a known task type.
func (t TaskType) IsValid() bool {
	for _, v := range ValidTaskTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// IsBatch reports whether t operates on a directory instead of a single file.
func (t TaskType) IsBatch() bool {
	switch t {
	case TaskTypeBatchOfficeToPDF, TaskTypeBatchPDFToMarkdown,
		TaskTypeBatchOfficeToMarkdown, TaskTypeBatchImageToMarkdown:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a task in this status has finished its lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskPriority orders tasks across the scheduler's priority lanes
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityHigh   TaskPriority = "high"
)

// IsValid reports whether p is a known priority.
func (p TaskPriority) IsValid() bool {
	return p == TaskPriorityLow || p == TaskPriorityNormal || p == TaskPriorityHigh
}

// DefaultMaxRetryCount is applied to new tasks unless the request overrides it.
const DefaultMaxRetryCount = 3

// Task is the durable record of one conversion job. Ids are assigned by the
// store on creation and never reused.
type Task struct {
	ID       int64        `json:"id"`
	TaskType TaskType     `json:"task_type"`
	Status   TaskStatus   `json:"status"`
	Priority TaskPriority `json:"priority"`

	// Source spec: exactly one of (BucketName+FilePath), FileURL, LocalPath
	// is populated.
	BucketName string `json:"bucket_name,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	LocalPath  string `json:"local_path,omitempty"`

	// Optional caller-supplied output location; derived when empty.
	OutputPath string `json:"output_path,omitempty"`

	// Engine hints (force_reprocess, recursive, file_pattern, ...).
	Params map[string]any `json:"params,omitempty"`

	Platform    string `json:"platform,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`

	RetryCount    int `json:"retry_count"`
	MaxRetryCount int `json:"max_retry_count"`

	// Result view, populated by the conversion worker.
	InputPath          string         `json:"input_path,omitempty"`
	OutputPathLocal    string         `json:"output_path_local,omitempty"`
	FileName           string         `json:"file_name,omitempty"`
	FileSizeBytes      int64          `json:"file_size_bytes,omitempty"`
	OutputURL          string         `json:"output_url,omitempty"`
	S3URLs             []string       `json:"s3_urls,omitempty"`
	Result             map[string]any `json:"result,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	TaskProcessingTime *float64       `json:"task_processing_time,omitempty"`

	// Engine view.
	EngineName        string `json:"engine_name,omitempty"`
	PagesProcessed    int    `json:"pages_processed,omitempty"`
	ConversionQuality string `json:"conversion_quality,omitempty"`

	// Callback delivery record. Delivery failures never change Status.
	CallbackStatusCode *int       `json:"callback_status_code,omitempty"`
	CallbackMessage    *string    `json:"callback_message,omitempty"`
	CallbackTime       *time.Time `json:"callback_time,omitempty"`
}

// CreateTaskRequest carries the fields accepted by the create endpoint.
type CreateTaskRequest struct {
	TaskType    TaskType       `json:"task_type"`
	Priority    TaskPriority   `json:"priority"`
	BucketName  string         `json:"bucket_name,omitempty"`
	FilePath    string         `json:"file_path,omitempty"`
	FileURL     string         `json:"file_url,omitempty"`
	LocalPath   string         `json:"local_path,omitempty"`
	OutputPath  string         `json:"output_path,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Platform    string         `json:"platform,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
}

// SourceSpecCount returns how many of the mutually exclusive source specs
// are populated.
func (r *CreateTaskRequest) SourceSpecCount() int {
	n := 0
	if r.BucketName != "" && r.FilePath != "" {
		n++
	}
	if r.FileURL != "" {
		n++
	}
	if r.LocalPath != "" {
		n++
	}
	return n
}

// Query pagination bounds.
const (
	QueryLimitDefault = 20
	QueryLimitMax     = 100
)

// QueryFilter narrows task listings. Zero values mean "no constraint".
type QueryFilter struct {
	Status        TaskStatus
	Priority      TaskPriority
	TaskType      TaskType
	Platform      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	HasResult     *bool
	HasError      *bool
	Limit         int
	Offset        int
}

// Normalize clamps pagination to the accepted bounds.
func (f *QueryFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = QueryLimitDefault
	}
	if f.Limit > QueryLimitMax {
		f.Limit = QueryLimitMax
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// TaskStatistics aggregates store-wide counts for the statistics endpoint.
type TaskStatistics struct {
	TotalTasks            int     `json:"total_tasks"`
	PendingTasks          int     `json:"pending_tasks"`
	ProcessingTasks       int     `json:"processing_tasks"`
	CompletedTasks        int     `json:"completed_tasks"`
	FailedTasks           int     `json:"failed_tasks"`
	CancelledTasks        int     `json:"cancelled_tasks"`
	SuccessRate           float64 `json:"success_rate"`
	AvgProcessingTimeSecs float64 `json:"avg_processing_time"`
}

// WorkspaceStats describes the on-disk footprint of task workspaces.
type WorkspaceStats struct {
	ActiveWorkspaces int   `json:"active_workspaces"`
	WorkspaceBytes   int64 `json:"workspace_bytes"`
	TempFiles        int   `json:"temp_files"`
	TempBytes        int64 `json:"temp_bytes"`
}

// SchedulerStats is the live view of the pipeline reported by health and
// statistics endpoints.
type SchedulerStats struct {
	IsRunning      bool           `json:"is_running"`
	ActiveTasks    int            `json:"active_tasks"`
	TotalProcessed int64          `json:"total_processed"`
	QueueDepths    map[string]int `json:"queue_depths"`
	WorkspaceStats WorkspaceStats `json:"workspace_stats"`
}
