// Package scheduler runs the conversion pipeline: it turns pending task
// rows into finished documents by moving task ids through a fixed chain
// of worker goroutines connected by bounded queues.
//
// # Architecture
//
//	                 ┌──────────┐   high ┌─────────┐
//	 store ──poll──▶ │ Fetcher  │──────▶ │         │
//	                 │ (claim)  │ normal │ Priority│    ┌──────────┐
//	 intake ──hint─▶ │          │──────▶ │ Merger  │───▶│ dispatch │
//	                 └──────────┘   low  │         │    └────┬─────┘
//	                                     └─────────┘         │
//	                               ┌─────────────────────────┘
//	                               ▼
//	                 ┌──────────────────────────┐
//	                 │ Converter × K            │  workspace / download /
//	                 │ (pipeline per task)      │  convert / upload / commit
//	                 └────────────┬─────────────┘
//	                              ▼
//	                 update ──▶ cleanup ──▶ callback        (post-commit)
//	                 gc (periodic): temp sweep, orphans, retention
//
// The store is the single source of truth. Queues carry only task ids;
// a dropped or lost id is re-discovered by the fetcher's next poll, and
// a crash mid-conversion is repaired by the recovery pass that runs at
// Start before any worker spawns.
//
// # Core Components
//
// Fetcher: polls the store on the configured interval, claims pending
// tasks up to the free worker budget with a guarded status flip, and
// pushes claimed ids into their priority lane. API pushes to the intake
// lane only wake it early.
//
// Priority merger: drains high before normal before low into the single
// dispatch lane. Low priority tasks can starve under sustained load;
// the escape hatch is raising the task's priority.
//
// Converter workers: K goroutines, each running one task at a time
// through workspace creation, input fetch, engine dispatch, artifact
// upload, and the terminal status write. Failures feed the retry
// policy: attempts are charged until max_retry_count, then the task
// fails for good. A transient store failure at the terminal write
// re-queues the id without charging an attempt.
//
// Post-commit lanes: the updater publishes completion metrics and
// events, the cleaner clears workspace scratch space, and the callback
// worker delivers the finished task to its callback URL with
// exponential backoff. Callback outcomes are recorded on the task but
// never change its status.
//
// GC: on the configured interval, sweeps expired temp files, removes
// workspaces whose task row is gone, and optionally prunes old terminal
// rows.
//
// # Usage
//
//	sched := scheduler.New(scheduler.Options{
//	    Config:       cfg,
//	    Store:        store,
//	    Fabric:       fabric,
//	    Workspaces:   spaces,
//	    Downloads:    downloadGW,
//	    Uploads:      uploadGW,
//	    UploadBucket: uploadCreds.Bucket,
//	    Dispatcher:   dispatcher,
//	    Broker:       broker,
//	})
//	if err := sched.Start(); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// # Integration Points
//
//   - pkg/storage: task rows, claims, recovery, retention
//   - pkg/queue: the bounded lanes between worker stages
//   - pkg/workspace: per-task directories and scratch sweeps
//   - pkg/objectstore: input downloads and artifact uploads
//   - pkg/convert: engine routing per task type
//   - pkg/events, pkg/metrics: lifecycle visibility
//
// # Thread Safety
//
// Start and Stop are safe to call once each from any goroutine; Stats
// and IsRunning are safe concurrently. Everything else is internal to
// the worker goroutines.
package scheduler
