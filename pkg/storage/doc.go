/*
Package storage provides SQL-backed persistence for document conversion tasks.

The storage package implements the Store interface on database/sql with two
interchangeable backends, SQLite for single-node deployments and MySQL for
shared installations. The task table is the single source of truth for task
state; every worker hand-off goes through a status transition here, so a
crash at any point can be repaired by re-reading the table.

# Architecture

	┌─────────────────────── SQL STORAGE ────────────────────────┐
	│                                                             │
	│  ┌───────────────────────────────────────────┐             │
	│  │              SQLStore                      │             │
	│  │  - Backend: sqlite3 file or MySQL DSN     │             │
	│  │  - Placeholders: ? on both dialects       │             │
	│  │  - JSON columns: params, s3_urls, result  │             │
	│  └──────────────────┬────────────────────────┘             │
	│                     │                                       │
	│  ┌──────────────────▼────────────────────────┐             │
	│  │           document_tasks table            │             │
	│  │  id, task_type, status, priority,         │             │
	│  │  source fields, workspace paths,          │             │
	│  │  retry counters, output locations,        │             │
	│  │  callback bookkeeping, timestamps         │             │
	│  └──────────────────┬────────────────────────┘             │
	│                     │                                       │
	│  ┌──────────────────▼────────────────────────┐             │
	│  │              Indexes                      │             │
	│  │  (status), (created_at),                  │             │
	│  │  (status, priority, created_at)           │             │
	│  └──────────────────┬────────────────────────┘             │
	│                     │                                       │
	│  ┌──────────────────▼────────────────────────┐             │
	│  │          Schema migrations                │             │
	│  │  dm_db_version tracks applied steps;      │             │
	│  │  sqlite migrates at open, mysql via       │             │
	│  │  the docmill-migrate command              │             │
	│  └───────────────────────────────────────────┘             │
	└─────────────────────────────────────────────────────────────┘

# Core Components

SQLStore:
  - Implements Store on *sql.DB
  - SQLite: single connection, WAL journal, busy timeout
  - MySQL: pooled connections, bounded connect retries at startup
  - Dialect differences isolated to DSN handling and migrations

Migrations:
  - Ordered migrationSteps with per-dialect SQL
  - Applied inside one transaction, version recorded in dm_db_version
  - SQLite databases upgrade in place when opened
  - MySQL refuses to start on a stale schema and points at docmill-migrate

Task lifecycle columns:
  - status drives dispatch: pending -> processing -> completed/failed
  - started_at is stamped by ClaimTask, completed_at by terminal updates
  - retry_count, max_retry_count and last_retry_at carry retry state
  - error_message holds the last failure or the crash recovery marker

# Key Operations

ClaimTask:
  - Single guarded UPDATE, pending to processing
  - The WHERE clause on status makes concurrent claims race-safe;
    exactly one caller sees a row count of 1

PendingForDispatch:
  - Orders by priority band (high, normal, low), then created_at
  - Backed by the (status, priority, created_at) index

RecoverProcessing:
  - Flips every processing row back to pending in one statement
  - Runs once at scheduler startup before any worker spawns, so tasks
    orphaned by a crash re-enter the queue instead of hanging forever

UpdateTask:
  - Partial updates through a column allowlist
  - params, s3_urls and result values are JSON-encoded transparently
  - updated_at is bumped on every write

DeleteOlderThan:
  - Retention sweep over terminal statuses only
  - Pending and processing rows are never eligible

# Usage

Open a store and create a task:

	store, err := storage.NewSQLStore("sqlite", "document_tasks.db")
	if err != nil {
		return err
	}
	defer store.Close()

	task := &types.Task{
		TaskType:   types.TaskTypePDFToMarkdown,
		BucketName: "reports",
		FilePath:   "docs/2024/annual.pdf",
	}
	id, err := store.CreateTask(task)

Claim and complete it:

	claimed, err := store.ClaimTask(id)
	if claimed {
		// ... convert ...
		err = store.UpdateTask(id, map[string]any{
			"status":       types.TaskStatusCompleted,
			"completed_at": time.Now().UTC(),
			"output_url":   outputURL,
		})
	}

MySQL deployments migrate out of band:

	docmill-migrate --database_url 'user:pw@tcp(db:3306)/docmill'

# Integration Points

  - pkg/scheduler: claims, retries and recovery all go through Store
  - pkg/api: task creation, queries, statistics and retry endpoints
  - pkg/health: Ping backs the database health check
  - pkg/metrics: CountByStatus feeds the status gauge collector
  - cmd/docmill-migrate: applies MySQL schema migrations

# Thread Safety

All methods are safe for concurrent use. SQLite serializes writers on a
single pooled connection; MySQL relies on row locks taken by the guarded
UPDATE statements. No state lives outside the database, so multiple
goroutines can share one SQLStore freely.

# See Also

  - pkg/types: Task model and status enums
  - pkg/scheduler: worker pipeline built on these primitives
*/
package storage
