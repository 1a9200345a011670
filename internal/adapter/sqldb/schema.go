package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/adapter/sqldb/dialect"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		compile_test BOOLEAN NOT NULL DEFAULT FALSE,
		validity_script TEXT NOT NULL DEFAULT '',
		full_script TEXT NOT NULL DEFAULT '',
		test_timeout INTEGER NOT NULL DEFAULT 30,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS test_machines (
		id TEXT PRIMARY KEY,
		host TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_contact {{ts}},
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_machines (
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		machine_id TEXT NOT NULL REFERENCES test_machines(id),
		PRIMARY KEY (assignment_id, machine_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submission_files (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		original_name TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		submitter TEXT NOT NULL,
		file_id TEXT NOT NULL REFERENCES submission_files(id),
		state TEXT NOT NULL,
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		modified_at {{ts}} NOT NULL,
		reserved_by TEXT,
		reserved_stage TEXT,
		reservation_id TEXT UNIQUE,
		reserved_until {{ts}},
		version BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_state_created_idx ON submissions (state, created_at)`,
	`CREATE TABLE IF NOT EXISTS submission_test_results (
		id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL REFERENCES submissions(id),
		file_id TEXT NOT NULL REFERENCES submission_files(id),
		stage TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		result TEXT NOT NULL DEFAULT '',
		perf_data TEXT NOT NULL DEFAULT '',
		machine_id TEXT NOT NULL REFERENCES test_machines(id),
		job_id TEXT NOT NULL UNIQUE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS submission_test_results_file_stage_idx ON submission_test_results (file_id, stage)`,
	`CREATE INDEX IF NOT EXISTS submission_test_results_submission_idx ON submission_test_results (submission_id, created_at)`,
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	ts := dialect.TimestampType(db.DriverName())
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, strings.ReplaceAll(stmt, "{{ts}}", ts)); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
