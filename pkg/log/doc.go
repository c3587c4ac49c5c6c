/*
Package log provides structured logging for docmill using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable levels, console output for
interactive use, and an optional dated log file. All logs include timestamps
and support filtering by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Log Levels:
  - Debug: detailed pipeline tracing (queue takes, claim attempts)
  - Info: lifecycle events (task created, completed, recovered)
  - Warn: degraded but continuing (callback retry, skipped claim)
  - Error: failed operations (download failure, engine failure)
  - Fatal: unrecoverable startup errors (process exits)

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer destination (defaults to stdout)
  - Dir: when set, tee JSON logs to <dir>/<yyyymmdd>.log

Context Loggers:
  - WithComponent: add component name to all logs
  - WithTaskID: add the numeric task id
  - WithWorker: add the worker kind (fetcher, merger, cleaner, ...)

# Usage

Initializing the logger:

	import "github.com/docmill/docmill/pkg/log"

	// JSON output (production)
	if err := log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Dir:        "/var/log/docmill",
	}); err != nil {
		// fall back to stderr defaults
	}

	// Console output (development)
	log.Init(log.Config{Level: log.DebugLevel})

Component loggers:

	logger := log.WithComponent("scheduler")
	logger.Info().Int("claimed", n).Msg("claimed pending tasks")

	tl := log.WithTaskID(task.ID)
	tl.Error().Err(err).Msg("conversion failed")

One-off messages go through the global instance:

	log.Logger.Info().Msg("scheduler started")

# Output Format

JSON format (production):

	{"level":"info","component":"fetcher","task_id":42,
	 "time":"2026-05-11T10:30:00Z","message":"task claimed"}

Console format (development):

	10:30AM INF task claimed component=fetcher task_id=42

# Integration Points

Every docmill package logs through this package; pkg/scheduler and pkg/api
create component loggers at construction, the worker pipeline creates a
task-scoped logger per task it processes.
*/
package log
