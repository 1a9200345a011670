// Package testutil builds throwaway SQLite stores and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/domain"
)

// Epoch is a fixed start time for fake clocks
var Epoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

// NewDB opens a migrated SQLite database in a temp dir
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "opensubmit.db")
	cfg := &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Url:    fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite", path),
	}

	db, err := sqldb.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqldb.Migrate(context.Background(), db))
	return db
}

// NewStore returns a store over a fresh database
func NewStore(t *testing.T) (*sqldb.Store, *sqlx.DB) {
	t.Helper()
	db := NewDB(t)
	return sqldb.NewStore(db, logging.NewNopLogger()), db
}

// Assignment inserts an assignment with the given stage setup
func Assignment(t *testing.T, store *sqldb.Store, compile bool, validity, full string) *domain.Assignment {
	t.Helper()
	a := &domain.Assignment{
		ID:             uuid.New(),
		Title:          "assignment",
		CompileTest:    compile,
		ValidityScript: validity,
		FullScript:     full,
		TestTimeout:    domain.DefaultTestTimeoutSeconds,
		CreatedAt:      Epoch,
	}
	require.NoError(t, store.Repos().Assignments.Upsert(context.Background(), a))
	return a
}

// Machine inserts an enabled machine
func Machine(t *testing.T, store *sqldb.Store, fingerprint string) *domain.TestMachine {
	t.Helper()
	m := &domain.TestMachine{
		ID:          uuid.New(),
		Host:        "runner.local",
		Fingerprint: fingerprint,
		Enabled:     true,
		CreatedAt:   Epoch,
	}
	require.NoError(t, store.Repos().Machines.Upsert(context.Background(), m))
	return m
}

// Submission inserts a submission with a fresh file in the given state
func Submission(t *testing.T, store *sqldb.Store, assignmentID uuid.UUID, state domain.SubmissionState, createdAt time.Time) *domain.Submission {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()

	file := &domain.SubmissionFile{
		ID:           uuid.New(),
		Path:         "submissions/" + uuid.NewString() + ".zip",
		OriginalName: "solution.zip",
		Checksum:     "abc",
		CreatedAt:    createdAt,
	}
	require.NoError(t, repos.Submissions.CreateFile(ctx, file))

	s := &domain.Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		Submitter:    "student",
		FileID:       file.ID,
		State:        state,
		CreatedAt:    createdAt,
		ModifiedAt:   createdAt,
	}
	require.NoError(t, repos.Submissions.Create(ctx, s))
	return s
}

// Reload reads a submission back from the store
func Reload(t *testing.T, store *sqldb.Store, id uuid.UUID) *domain.Submission {
	t.Helper()
	s, err := store.Repos().Submissions.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}
