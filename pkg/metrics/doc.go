/*
Package metrics provides Prometheus instrumentation and health tracking
for the conversion pipeline.

The metrics package exposes counters, gauges and histograms describing
task throughput, queue pressure, callback delivery and workspace usage,
plus a component health registry backing the health, readiness and
liveness endpoints.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │           Prometheus Registry              │          │
	│  │  - Pipeline counters (created/completed/   │          │
	│  │    failed/retried/recovered)               │          │
	│  │  - Processing time histogram               │          │
	│  │  - Queue depth and status gauges           │          │
	│  │  - Callback and API counters               │          │
	│  │  - Workspace footprint gauges              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                     │          │
	│  │  Every 15s:                                │          │
	│  │    store.CountByStatus → tasks_by_status   │          │
	│  │    fabric.Depths       → queue_depth       │          │
	│  │    workspace.Stats     → workspace gauges  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Health Registry                  │          │
	│  │  Components: database, object_store,       │          │
	│  │              scheduler, engines            │          │
	│  │  Endpoints:  /health /ready /live          │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Core Components

Metric Variables:
  - Package-level Prometheus collectors, registered in init
  - Incremented directly by the scheduler, API and callback worker
  - Naming: docmill_<subsystem>_<unit>

Collector:
  - Polls the task store, queue fabric and workspace manager
  - Refreshes state gauges every 15 seconds
  - First collection runs immediately on Start

Timer:
  - Wall-clock helper for histogram observations
  - ObserveDuration / ObserveDurationVec record elapsed seconds

Health Registry:
  - Tracks per-component health with messages
  - GetHealth aggregates overall status
  - GetReadiness gates on database, object_store and scheduler

# Metric Catalog

Pipeline:
  - docmill_tasks_created_total{task_type}
  - docmill_tasks_completed_total{task_type}
  - docmill_tasks_failed_total{task_type,error_kind}
  - docmill_task_retries_total
  - docmill_tasks_recovered_total
  - docmill_task_processing_seconds{task_type}

State:
  - docmill_queue_depth{lane}
  - docmill_tasks_by_status{status}

Delivery:
  - docmill_callback_deliveries_total{outcome}

Workspace:
  - docmill_workspace_bytes
  - docmill_workspaces_active

API:
  - docmill_api_requests_total{method,status}
  - docmill_api_request_duration_seconds{method}

# Usage

Recording a completed conversion:

	timer := metrics.NewTimer()
	// ... run the conversion ...
	timer.ObserveDurationVec(metrics.TaskProcessingSeconds, string(task.TaskType))
	metrics.TasksCompleted.WithLabelValues(string(task.TaskType)).Inc()

Starting the background collector:

	collector := metrics.NewCollector(store, fabric, spaces)
	collector.Start()
	defer collector.Stop()

Tracking component health:

	metrics.RegisterComponent("database", true, "")
	metrics.UpdateComponent("object_store", false, "connection refused")

Serving the endpoints:

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

# Integration Points

This package integrates with:

  - pkg/scheduler: increments pipeline counters and histograms
  - pkg/api: request instrumentation and the /metrics route
  - pkg/health: probe results feed UpdateComponent
  - pkg/storage, pkg/queue, pkg/workspace: polled by the Collector

# Thread Safety

Prometheus collectors are safe for concurrent use. The health registry
is guarded by a RWMutex. The Collector runs in its own goroutine and
owns no shared mutable state beyond the registered metrics.
*/
package metrics
