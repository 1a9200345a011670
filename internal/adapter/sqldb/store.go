package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/adapter/sqldb/assignmentrepository"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb/machinerepository"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb/resultrepository"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb/submissionrepository"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
)

var _ secondary.Store = (*Store)(nil)

// Store hands out repositories bound to the pool or to a transaction
type Store struct {
	db     *sqlx.DB
	logger primary.Logger
}

func NewStore(db *sqlx.DB, logger primary.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Repos() secondary.Repositories {
	return newRepositories(s.db, s.logger)
}

// WithinTx runs fn in a transaction and commits when fn returns nil
func (s *Store) WithinTx(ctx context.Context, fn func(repos secondary.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if the transaction is committed

	if err := fn(newRepositories(tx, s.logger)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newRepositories(db sqlx.ExtContext, logger primary.Logger) secondary.Repositories {
	return secondary.Repositories{
		Submissions: submissionrepository.NewSubmissionRepository(db, logger),
		Results:     resultrepository.NewResultRepository(db, logger),
		Machines:    machinerepository.NewMachineRepository(db, logger),
		Assignments: assignmentrepository.NewAssignmentRepository(db, logger),
	}
}
