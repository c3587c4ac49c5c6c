/*
Package health provides dependency probes for the conversion service.

This package implements three checker types: database, object store and
exec. Probes run on an interval, tolerate transient failures via a
retry threshold, and feed the component health registry that backs the
health and readiness endpoints.

# Architecture

	┌─────────────────────────────────────────────────────┐
	│                 Checker Interface                   │
	│  • Check(ctx) Result                                │
	│  • Type() CheckType                                 │
	└────────┬────────────────────────────────────────────┘
	         │
	    ┌────┴─────────┬───────────────┐
	    ▼              ▼               ▼
	┌─────────┐  ┌────────────┐  ┌─────────┐
	│  Store  │  │ObjectStore │  │  Exec   │
	│ Checker │  │  Checker   │  │ Checker │
	└─────────┘  └────────────┘  └─────────┘
	     │             │               │
	     ▼             ▼               ▼
	  db Ping     BucketExists    run binary
	                              (--version)

## Probe Flow

 1. Monitor.Register names each checker (database, object_store, ...)
 2. Monitor.Start probes immediately, then every Interval
 3. Each result updates the per-check Status
 4. Retries consecutive failures flip the check unhealthy
 5. Results mirror into metrics.UpdateComponent
 6. /health and /ready report the aggregated registry

# Checker Types

StoreChecker pings the task database through the storage layer.

ObjectStoreChecker asks the S3 endpoint whether the task bucket exists,
which exercises endpoint reachability, credentials and the bucket in
one round trip.

ExecChecker runs a short command and checks the exit code. Used to
verify the conversion binaries are installed, e.g.:

	health.NewExecChecker([]string{"libreoffice", "--version"})

# Usage

	monitor := health.NewMonitor(health.DefaultConfig())
	monitor.Register("database", health.NewStoreChecker(store))
	monitor.Register("object_store", health.NewObjectStoreChecker(gateway, bucket))
	monitor.Register("engine_renderer", health.NewExecChecker([]string{cfg.LibreOfficePath, "--version"}))
	monitor.Start()
	defer monitor.Stop()

# Integration Points

  - pkg/metrics: probe results update the component registry
  - pkg/storage: StoreChecker wraps Store.Ping
  - pkg/objectstore: ObjectStoreChecker wraps Gateway.BucketExists
  - cmd/docmill: the serve command wires and starts the monitor
*/
package health
