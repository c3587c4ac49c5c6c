package storage

import (
	"database/sql"
	"fmt"
)

// migrationStep is one schema version bump, with per-dialect statements.
// Steps are applied in order inside a single transaction; the version
// table records the highest applied step.
type migrationStep struct {
	mysqlUp  []string
	sqliteUp []string
}

// migrationSteps holds the full schema history. Never reorder or edit a
// released step; append a new one instead.
var migrationSteps = []migrationStep{
	// version 1: task table plus dispatch indexes
	{
		mysqlUp: []string{
			`CREATE TABLE IF NOT EXISTS document_tasks (
				id                   BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
				task_type            VARCHAR(32)  NOT NULL,
				status               VARCHAR(16)  NOT NULL DEFAULT 'pending',
				priority             VARCHAR(8)   NOT NULL DEFAULT 'normal',
				bucket_name          VARCHAR(255),
				file_path            TEXT,
				file_url             TEXT,
				local_path           TEXT,
				output_path          TEXT,
				params               TEXT,
				platform             VARCHAR(64),
				callback_url         TEXT,
				created_at           DATETIME(6)  NOT NULL,
				updated_at           DATETIME(6)  NOT NULL,
				started_at           DATETIME(6),
				completed_at         DATETIME(6),
				last_retry_at        DATETIME(6),
				retry_count          INT          NOT NULL DEFAULT 0,
				max_retry_count      INT          NOT NULL DEFAULT 3,
				input_path           TEXT,
				output_path_local    TEXT,
				file_name            VARCHAR(512),
				file_size_bytes      BIGINT       NOT NULL DEFAULT 0,
				output_url           TEXT,
				s3_urls              TEXT,
				result               TEXT,
				error_message        TEXT,
				task_processing_time DOUBLE,
				engine_name          VARCHAR(64),
				pages_processed      INT          NOT NULL DEFAULT 0,
				conversion_quality   VARCHAR(16),
				callback_status_code INT,
				callback_message     TEXT,
				callback_time        DATETIME(6)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE INDEX idx_document_tasks_status ON document_tasks (status)`,
			`CREATE INDEX idx_document_tasks_created_at ON document_tasks (created_at)`,
			`CREATE INDEX idx_document_tasks_dispatch ON document_tasks (status, priority, created_at)`,
		},
		sqliteUp: []string{
			`CREATE TABLE IF NOT EXISTS document_tasks (
				id                   INTEGER PRIMARY KEY AUTOINCREMENT,
				task_type            TEXT    NOT NULL,
				status               TEXT    NOT NULL DEFAULT 'pending',
				priority             TEXT    NOT NULL DEFAULT 'normal',
				bucket_name          TEXT,
				file_path            TEXT,
				file_url             TEXT,
				local_path           TEXT,
				output_path          TEXT,
				params               TEXT,
				platform             TEXT,
				callback_url         TEXT,
				created_at           TIMESTAMP NOT NULL,
				updated_at           TIMESTAMP NOT NULL,
				started_at           TIMESTAMP,
				completed_at         TIMESTAMP,
				last_retry_at        TIMESTAMP,
				retry_count          INTEGER NOT NULL DEFAULT 0,
				max_retry_count      INTEGER NOT NULL DEFAULT 3,
				input_path           TEXT,
				output_path_local    TEXT,
				file_name            TEXT,
				file_size_bytes      INTEGER NOT NULL DEFAULT 0,
				output_url           TEXT,
				s3_urls              TEXT,
				result               TEXT,
				error_message        TEXT,
				task_processing_time REAL,
				engine_name          TEXT,
				pages_processed      INTEGER NOT NULL DEFAULT 0,
				conversion_quality   TEXT,
				callback_status_code INTEGER,
				callback_message     TEXT,
				callback_time        TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_document_tasks_status ON document_tasks (status)`,
			`CREATE INDEX IF NOT EXISTS idx_document_tasks_created_at ON document_tasks (created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_document_tasks_dispatch ON document_tasks (status, priority, created_at)`,
		},
	},
}

// ExpectedVersion is the schema version this build of the code requires.
func ExpectedVersion() int {
	return len(migrationSteps)
}

// MigrationVersion returns the schema version currently recorded in the
// database, or 0 when no migration has run yet.
func (s *SQLStore) MigrationVersion() (int, error) {
	exists, err := s.versionTableExists()
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var version int
	err = s.db.QueryRow(`SELECT version FROM dm_db_version WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the schema up to ExpectedVersion. All pending steps run
// in one transaction, so a failed upgrade leaves the old schema intact.
func (s *SQLStore) Migrate() error {
	if err := s.ensureVersionTable(); err != nil {
		return err
	}
	current, err := s.MigrationVersion()
	if err != nil {
		return err
	}
	target := ExpectedVersion()
	if current == target {
		return nil
	}
	if current > target {
		return fmt.Errorf("schema version %d is newer than this build supports (%d)", current, target)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i := current; i < target; i++ {
		stmts := migrationSteps[i].sqliteUp
		if s.dialect == DialectMySQL {
			stmts = migrationSteps[i].mysqlUp
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration step %d failed: %w", i+1, err)
			}
		}
	}
	if _, err := tx.Exec(`REPLACE INTO dm_db_version (id, version, updated) VALUES (1, ?, ?)`,
		target, nowFunc().UTC().Unix()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) ensureVersionTable() error {
	stmt := `CREATE TABLE IF NOT EXISTS dm_db_version (
		id      INTEGER NOT NULL PRIMARY KEY,
		version INTEGER NOT NULL,
		updated BIGINT  NOT NULL
	)`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}
	return nil
}

func (s *SQLStore) versionTableExists() (bool, error) {
	var query string
	if s.dialect == DialectMySQL {
		query = `SHOW TABLES LIKE 'dm_db_version'`
	} else {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'dm_db_version'`
	}
	var name string
	err := s.db.QueryRow(query).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check version table: %w", err)
	}
	return true, nil
}
