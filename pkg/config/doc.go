/*
Package config loads and validates the docmill process configuration.

Configuration comes from a YAML file layered over built-in defaults; a
missing file is not an error. The resulting Config is immutable after
startup: every component receives it (or the fields it needs) at
construction and no component mutates it.

Object-store credentials and endpoints are deliberately NOT part of this
file: they come from environment variable chains resolved by
pkg/objectstore, so that the same config file works across deployments.

# Fields

Scheduler:
  - max_concurrent_tasks: size of the conversion worker pool (default 3)
  - task_check_interval_seconds: fetcher poll interval (default 5)
  - queue_capacity: bound for every pipeline channel (default 100)
  - gc_interval_minutes, temp_file_max_age_hours: GC worker cadence
  - task_retention_days: 0 disables terminal-row deletion (default)

Storage:
  - database_kind: sqlite or mysql
  - database_url: file path (sqlite) or DSN (mysql)

Workspace:
  - workspace_base_dir, temp_dir

API:
  - listen_addr (default :8000)

Engines:
  - libreoffice_path, pdf_analyzer_cmd, ocr_analyzer_cmd,
    engine_timeout_minutes

Logging:
  - log_level, log_json, log_dir

# Usage

	cfg, err := config.Load("/etc/docmill/docmill.yaml")
	if err != nil {
		return err
	}
	interval := cfg.TaskCheckInterval()
*/
package config
