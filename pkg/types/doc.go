/*
Package types defines the core data structures used throughout docmill.

This package contains the fundamental types that represent docmill's domain
model: conversion tasks, their lifecycle states, priorities, query filters,
and the aggregate statistics views served by the API. All other packages
depend on these types for persistence, scheduling, and API responses.

# Core Types

Task lifecycle:
  - Task: durable record of one conversion job
  - TaskType: which conversion an engine performs (office_to_pdf,
    pdf_to_markdown, office_to_markdown, image_to_markdown, batch_*)
  - TaskStatus: pending, processing, completed, failed, cancelled
  - TaskPriority: low, normal, high

Requests and views:
  - CreateTaskRequest: fields accepted by the create endpoint
  - QueryFilter: filter + pagination for task listings
  - TaskStatistics: per-status totals, success rate, average processing time
  - SchedulerStats / WorkspaceStats: live pipeline and disk observability
  - Event: task lifecycle notification for the event broker

# State Machine

Tasks follow a state machine:

	pending → processing → completed
	             ↓
	          pending (retry, retry_count < max)
	             ↓
	           failed (retries exhausted)

Valid transitions:
  - pending → processing (fetcher claims the task)
  - processing → completed (worker succeeded)
  - processing → pending (step failed, retries remain; or crash recovery)
  - processing → failed (retries exhausted)
  - failed|cancelled → pending (explicit retry via API, retry_count reset)

Invariants:
  - completed implies completed_at set, error_message empty, s3_urls non-empty
  - failed implies completed_at set, error_message set,
    retry_count == max_retry_count
  - exactly one source spec (bucket+key, file_url, local_path) is populated
  - an id, once assigned, is never reused

# Design Patterns

Enumeration pattern: all enums are typed string constants with IsValid
helpers, so values round-trip unchanged through JSON, SQL rows, and query
parameters:

	type TaskStatus string
	const (
	    TaskStatusPending    TaskStatus = "pending"
	    TaskStatusProcessing TaskStatus = "processing"
	)

Optional fields use pointers (*time.Time, *string, *int) so that "absent"
and "zero" stay distinguishable in both JSON and SQL NULL columns.

Opaque fields (Params, Result) remain loosely typed maps; they are
JSON-encoded blobs owned by the engines, not interpreted by the scheduler.

# Integration Points

This package integrates with:

  - pkg/storage: persists tasks in the document_tasks table
  - pkg/scheduler: drives the task state machine
  - pkg/api: serializes task views and statistics to clients
  - pkg/convert: reads TaskType and Params to select an engine
  - pkg/events: publishes Event values on lifecycle transitions

# Thread Safety

Types in this package carry no synchronization. The store is the single
source of truth; goroutines exchange task ids and re-read rows rather than
sharing Task pointers across suspension points.
*/
package types
