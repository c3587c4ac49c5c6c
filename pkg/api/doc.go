// Package api exposes the REST facade over the task store and the
// conversion scheduler.
//
// # Architecture
//
// The server is a thin layer: every endpoint reads or writes the store
// and, where a task changes state, nudges the scheduler through the
// intake lane. No task state is cached in the server, so any number of
// requests can race a running pipeline without coordination beyond the
// store's own transactions.
//
//	POST /api/tasks/create        submit one conversion task
//	GET  /api/tasks               list tasks with filters
//	GET  /api/tasks/{id}          fetch one task view
//	POST /api/tasks/{id}/retry    reset a failed or cancelled task
//	POST /api/tasks/retry-failed  bulk reset of failed tasks
//	PUT  /api/tasks/{id}/task-type change the conversion of a failed task
//	GET  /api/statistics          store aggregates plus scheduler snapshot
//	GET  /api/health              liveness, queue depths, dependency probes
//	GET  /api/download/{id}/{filename} stream a stored artifact (redirect=true presigns)
//	GET  /metrics                 prometheus exposition
//	GET  /health /ready /live     process probes from the component registry
//
// # Core Components
//
//   - Server: chi router plus http.Server lifecycle (Start, Shutdown).
//   - buildTask: request validation and shaping of the pending row,
//     including source-spec exclusivity and filename repair.
//   - downloadArtifact: streams objects back through the upload gateway,
//     matching the requested name against s3_urls tails raw or decoded.
//
// # Usage
//
//	srv := api.NewServer(api.Options{
//		Config:    cfg,
//		Store:     store,
//		Scheduler: sched,
//		Fabric:    fabric,
//		Artifacts: uploads,
//		Broker:    broker,
//		Checks: map[string]health.Checker{
//			"database":     health.NewStoreChecker(store),
//			"object_store": health.NewObjectStoreChecker(uploads, bucket),
//		},
//	})
//	go srv.Start()
//	...
//	srv.Shutdown(ctx)
//
// # Integration Points
//
//   - pkg/storage: all task reads and writes.
//   - pkg/queue: intake hints after create and retry.
//   - pkg/scheduler: live stats for health and statistics.
//   - pkg/objectstore: artifact streaming for downloads.
//   - pkg/events: task.created and task.retried notifications.
//   - pkg/metrics: request counters, latency histogram, /metrics handler.
//
// # Thread Safety
//
// Handlers hold no mutable server state; the store and the queue fabric
// provide their own synchronization. The server itself is safe for
// concurrent requests.
package api
