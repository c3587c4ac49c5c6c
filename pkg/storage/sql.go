package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/types"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database kinds.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

const (
	mysqlConnectAttempts = 5
	mysqlConnectDelay    = 5 * time.Second
)

// taskColumns is the canonical SELECT list. scanTask must stay in the
// same order.
const taskColumns = `id, task_type, status, priority, bucket_name, file_path, file_url, local_path,
	output_path, params, platform, callback_url, created_at, updated_at, started_at, completed_at,
	last_retry_at, retry_count, max_retry_count, input_path, output_path_local, file_name,
	file_size_bytes, output_url, s3_urls, result, error_message, task_processing_time, engine_name,
	pages_processed, conversion_quality, callback_status_code, callback_message, callback_time`

// patchColumns lists the columns UpdateTask may touch. updated_at is
// always set by the store itself and id/created_at are immutable.
var patchColumns = map[string]bool{
	"task_type":            true,
	"status":               true,
	"priority":             true,
	"output_path":          true,
	"params":               true,
	"callback_url":         true,
	"started_at":           true,
	"completed_at":         true,
	"last_retry_at":        true,
	"retry_count":          true,
	"max_retry_count":      true,
	"input_path":           true,
	"output_path_local":    true,
	"file_name":            true,
	"file_size_bytes":      true,
	"output_url":           true,
	"s3_urls":              true,
	"result":               true,
	"error_message":        true,
	"task_processing_time": true,
	"engine_name":          true,
	"pages_processed":      true,
	"conversion_quality":   true,
	"callback_status_code": true,
	"callback_message":     true,
	"callback_time":        true,
}

// SQLStore implements Store on database/sql with either a SQLite or a
// MySQL backend. SQLite databases are migrated in place when opened;
// MySQL schemas are managed by the docmill-migrate command and the
// store refuses to start against a stale schema.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens a task store of the given kind. For sqlite the dsn
// is a file path, for mysql a go-sql-driver DSN.
func NewSQLStore(kind, dsn string) (*SQLStore, error) {
	switch kind {
	case DialectSQLite:
		return newSQLiteStore(dsn)
	case DialectMySQL:
		return newMySQLStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported database kind: %s", kind)
	}
}

// OpenForMigration opens the database without running or checking
// migrations, so the docmill-migrate command can inspect any schema
// version. Everything else should use NewSQLStore.
func OpenForMigration(kind, dsn string) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch kind {
	case DialectSQLite:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DialectMySQL:
		db, err = sql.Open("mysql", mysqlDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported database kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", kind, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", kind, err)
	}
	return &SQLStore{db: db, dialect: kind}, nil
}

func newSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &SQLStore{db: db, dialect: DialectSQLite}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", mysqlDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	var pingErr error
	for attempt := 1; attempt <= mysqlConnectAttempts; attempt++ {
		pingErr = db.Ping()
		if pingErr == nil {
			break
		}
		logger := log.WithComponent("storage")
		logger.Warn().
			Err(pingErr).
			Int("attempt", attempt).
			Int("max_attempts", mysqlConnectAttempts).
			Msg("MySQL not reachable, retrying")
		if attempt < mysqlConnectAttempts {
			time.Sleep(mysqlConnectDelay)
		}
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", mysqlConnectAttempts, pingErr)
	}

	s := &SQLStore{db: db, dialect: DialectMySQL}
	version, err := s.MigrationVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	if version != ExpectedVersion() {
		db.Close()
		return nil, fmt.Errorf("database schema version %d does not match expected %d, run docmill-migrate", version, ExpectedVersion())
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *SQLStore) Ping() error {
	return s.db.Ping()
}

// CreateTask inserts a new task row and returns its id. Zero-value
// status, priority, retry limit and timestamps are filled with defaults.
func (s *SQLStore) CreateTask(task *types.Task) (int64, error) {
	now := nowFunc().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = types.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = types.TaskPriorityNormal
	}
	if task.MaxRetryCount == 0 {
		task.MaxRetryCount = types.DefaultMaxRetryCount
	}

	params, err := jsonValue(task.Params)
	if err != nil {
		return 0, fmt.Errorf("failed to encode params: %w", err)
	}
	s3URLs, err := jsonValue(task.S3URLs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode s3_urls: %w", err)
	}
	result, err := jsonValue(task.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to encode result: %w", err)
	}

	res, err := s.db.Exec(`INSERT INTO document_tasks (
		task_type, status, priority, bucket_name, file_path, file_url, local_path,
		output_path, params, platform, callback_url, created_at, updated_at, started_at,
		completed_at, last_retry_at, retry_count, max_retry_count, input_path,
		output_path_local, file_name, file_size_bytes, output_url, s3_urls, result,
		error_message, task_processing_time, engine_name, pages_processed,
		conversion_quality, callback_status_code, callback_message, callback_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskType, task.Status, task.Priority, task.BucketName, task.FilePath,
		task.FileURL, task.LocalPath, task.OutputPath, params, task.Platform,
		task.CallbackURL, task.CreatedAt, task.UpdatedAt, task.StartedAt,
		task.CompletedAt, task.LastRetryAt, task.RetryCount, task.MaxRetryCount,
		task.InputPath, task.OutputPathLocal, task.FileName, task.FileSizeBytes,
		task.OutputURL, s3URLs, result, task.ErrorMessage, task.TaskProcessingTime,
		task.EngineName, task.PagesProcessed, task.ConversionQuality,
		task.CallbackStatusCode, task.CallbackMessage, task.CallbackTime)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read task id: %w", err)
	}
	task.ID = id
	return id, nil
}

// GetTask fetches one task by id, returning ErrNotFound when missing.
func (s *SQLStore) GetTask(id int64) (*types.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM document_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a partial update. Keys must be column names from
// the patchColumns allowlist; params, result and s3_urls values are
// JSON-encoded. updated_at is bumped on every call.
func (s *SQLStore) UpdateTask(id int64, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	set := make([]string, 0, len(patch)+1)
	args := make([]any, 0, len(patch)+2)
	for _, col := range sortedKeys(patch) {
		if !patchColumns[col] {
			return fmt.Errorf("unknown task column: %s", col)
		}
		val := patch[col]
		switch col {
		case "params", "result", "s3_urls":
			var err error
			val, err = jsonValue(val)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", col, err)
			}
		}
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	set = append(set, "updated_at = ?")
	args = append(args, nowFunc().UTC(), id)

	res, err := s.db.Exec(`UPDATE document_tasks SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	if affected == 0 {
		// MySQL reports zero affected rows for no-op updates, so check
		// whether the row exists before calling it missing.
		var one int
		if err := s.db.QueryRow(`SELECT 1 FROM document_tasks WHERE id = ?`, id).Scan(&one); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("failed to update task %d: %w", id, err)
		}
	}
	return nil
}

// UpdateTaskStatus sets the task status. Terminal statuses also record
// completed_at; a non-nil errorMessage is stored alongside.
func (s *SQLStore) UpdateTaskStatus(id int64, status types.TaskStatus, errorMessage *string) error {
	patch := map[string]any{"status": status}
	if errorMessage != nil {
		patch["error_message"] = *errorMessage
	}
	if status.Terminal() {
		patch["completed_at"] = nowFunc().UTC()
	}
	return s.UpdateTask(id, patch)
}

// ClaimTask atomically moves a pending task to processing and stamps
// started_at. It reports false when some other worker won the race or
// the task is no longer pending.
func (s *SQLStore) ClaimTask(id int64) (bool, error) {
	now := nowFunc().UTC()
	res, err := s.db.Exec(`UPDATE document_tasks SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		types.TaskStatusProcessing, now, now, id, types.TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim task %d: %w", id, err)
	}
	return affected == 1, nil
}

// QueryTasks lists tasks matching the filter, newest first.
func (s *SQLStore) QueryTasks(filter *types.QueryFilter) ([]*types.Task, error) {
	f := types.QueryFilter{}
	if filter != nil {
		f = *filter
	}
	f.Normalize()

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.TaskType != "" {
		where = append(where, "task_type = ?")
		args = append(args, f.TaskType)
	}
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, f.CreatedBefore.UTC())
	}
	if f.HasResult != nil {
		if *f.HasResult {
			where = append(where, "result IS NOT NULL")
		} else {
			where = append(where, "result IS NULL")
		}
	}
	if f.HasError != nil {
		if *f.HasError {
			where = append(where, "error_message IS NOT NULL")
		} else {
			where = append(where, "error_message IS NULL")
		}
	}

	query := `SELECT ` + taskColumns + ` FROM document_tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	return s.queryTasks(query, args...)
}

// TasksByStatus lists up to limit tasks in the given status, oldest
// first. A limit of zero or less means no limit.
func (s *SQLStore) TasksByStatus(status types.TaskStatus, limit int) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM document_tasks WHERE status = ? ORDER BY created_at ASC, id ASC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTasks(query, args...)
}

// PendingForDispatch returns pending tasks in dispatch order: high
// priority first, then normal, then low, oldest first within a band.
func (s *SQLStore) PendingForDispatch(limit int) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM document_tasks WHERE status = ?
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, created_at ASC, id ASC
		LIMIT ?`
	return s.queryTasks(query, types.TaskStatusPending, limit)
}

// RecoverProcessing moves every processing task back to pending and
// stores the marker as its error message. Used at startup to requeue
// work orphaned by a crash.
func (s *SQLStore) RecoverProcessing(marker string) (int, error) {
	res, err := s.db.Exec(`UPDATE document_tasks SET status = ?, error_message = ?, updated_at = ?
		WHERE status = ?`,
		types.TaskStatusPending, marker, nowFunc().UTC(), types.TaskStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing tasks: %w", err)
	}
	return int(affected), nil
}

// Statistics aggregates task counts, the completed/failed success rate
// and the average processing time of completed tasks.
func (s *SQLStore) Statistics() (*types.TaskStatistics, error) {
	stats := &types.TaskStatistics{}
	err := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(CASE WHEN status = 'completed' THEN task_processing_time END), 0)
		FROM document_tasks`).Scan(
		&stats.TotalTasks, &stats.PendingTasks, &stats.ProcessingTasks,
		&stats.CompletedTasks, &stats.FailedTasks, &stats.CancelledTasks,
		&stats.AvgProcessingTimeSecs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}

	finished := stats.CompletedTasks + stats.FailedTasks
	if finished > 0 {
		stats.SuccessRate = math.Round(float64(stats.CompletedTasks)/float64(finished)*10000) / 100
	}
	stats.AvgProcessingTimeSecs = math.Round(stats.AvgProcessingTimeSecs*100) / 100
	return stats, nil
}

// DeleteOlderThan removes tasks in the given statuses created more than
// days ago and returns how many rows went away. An empty status list
// defaults to the terminal statuses.
func (s *SQLStore) DeleteOlderThan(days int, statuses []types.TaskStatus) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if len(statuses) == 0 {
		statuses = []types.TaskStatus{types.TaskStatusCompleted, types.TaskStatusFailed, types.TaskStatusCancelled}
	}
	cutoff := nowFunc().UTC().AddDate(0, 0, -days)

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, status := range statuses {
		placeholders[i] = "?"
		args = append(args, status)
	}
	args = append(args, cutoff)

	res, err := s.db.Exec(`DELETE FROM document_tasks WHERE status IN (`+strings.Join(placeholders, ", ")+`) AND created_at < ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return int(affected), nil
}

// CountByStatus returns per-status task counts.
func (s *SQLStore) CountByStatus() (map[types.TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM document_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int)
	for rows.Next() {
		var status types.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to count tasks: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *SQLStore) queryTasks(query string, args ...any) ([]*types.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t            types.Task
		bucketName   sql.NullString
		filePath     sql.NullString
		fileURL      sql.NullString
		localPath    sql.NullString
		outputPath   sql.NullString
		paramsJSON   sql.NullString
		platform     sql.NullString
		callbackURL  sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		lastRetryAt  sql.NullTime
		inputPath    sql.NullString
		outputLocal  sql.NullString
		fileName     sql.NullString
		outputURL    sql.NullString
		s3URLsJSON   sql.NullString
		resultJSON   sql.NullString
		errorMessage sql.NullString
		procTime     sql.NullFloat64
		engineName   sql.NullString
		quality      sql.NullString
		cbStatus     sql.NullInt64
		cbMessage    sql.NullString
		cbTime       sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.TaskType, &t.Status, &t.Priority, &bucketName, &filePath, &fileURL, &localPath,
		&outputPath, &paramsJSON, &platform, &callbackURL, &t.CreatedAt, &t.UpdatedAt, &startedAt,
		&completedAt, &lastRetryAt, &t.RetryCount, &t.MaxRetryCount, &inputPath, &outputLocal,
		&fileName, &t.FileSizeBytes, &outputURL, &s3URLsJSON, &resultJSON, &errorMessage, &procTime,
		&engineName, &t.PagesProcessed, &quality, &cbStatus, &cbMessage, &cbTime)
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.BucketName = bucketName.String
	t.FilePath = filePath.String
	t.FileURL = fileURL.String
	t.LocalPath = localPath.String
	t.OutputPath = outputPath.String
	t.Platform = platform.String
	t.CallbackURL = callbackURL.String
	t.InputPath = inputPath.String
	t.OutputPathLocal = outputLocal.String
	t.FileName = fileName.String
	t.OutputURL = outputURL.String
	t.EngineName = engineName.String
	t.ConversionQuality = quality.String

	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &t.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params for task %d: %w", t.ID, err)
		}
	}
	if s3URLsJSON.Valid && s3URLsJSON.String != "" {
		if err := json.Unmarshal([]byte(s3URLsJSON.String), &t.S3URLs); err != nil {
			return nil, fmt.Errorf("failed to decode s3_urls for task %d: %w", t.ID, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &t.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result for task %d: %w", t.ID, err)
		}
	}

	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if lastRetryAt.Valid {
		v := lastRetryAt.Time
		t.LastRetryAt = &v
	}
	if errorMessage.Valid {
		v := errorMessage.String
		t.ErrorMessage = &v
	}
	if procTime.Valid {
		v := procTime.Float64
		t.TaskProcessingTime = &v
	}
	if cbStatus.Valid {
		v := int(cbStatus.Int64)
		t.CallbackStatusCode = &v
	}
	if cbMessage.Valid {
		v := cbMessage.String
		t.CallbackMessage = &v
	}
	if cbTime.Valid {
		v := cbTime.Time
		t.CallbackTime = &v
	}
	return &t, nil
}

// jsonValue encodes maps and slices to a JSON string for TEXT columns.
// Nil and empty values become SQL NULL; strings pass through untouched.
func jsonValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return val, nil
	case []byte:
		if len(val) == 0 {
			return nil, nil
		}
		return string(val), nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []any:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// sortedKeys keeps generated SQL deterministic for tests and logs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
