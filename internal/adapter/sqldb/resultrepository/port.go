package resultrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/adapter/sqldb/dialect"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	querybuilder "gitlab.com/opensubmit.net/internal/utils"
)

var _ secondary.ResultRepository = (*ResultRepository)(nil)

// ResultRepository implements the ResultRepository interface with sqlx
type ResultRepository struct {
	db     sqlx.ExtContext
	logger primary.Logger
}

// NewResultRepository creates a new result repository
func NewResultRepository(db sqlx.ExtContext, logger primary.Logger) *ResultRepository {
	return &ResultRepository{
		db:     db,
		logger: logger,
	}
}

const resultColumns = `id, submission_id, file_id, stage, success, result, perf_data, machine_id, job_id, created_at`

// Insert saves a result; results are never updated
func (r *ResultRepository) Insert(ctx context.Context, res *domain.SubmissionTestResult) error {
	tbl := domain.GetTestResultTable()
	query, args := querybuilder.NewQueryBuilder("").
		Insert(tbl.ID, tbl.SubmissionID, tbl.FileID, tbl.Stage, tbl.Success, tbl.Result, tbl.PerfData, tbl.MachineID, tbl.JobID, tbl.CreatedAt).
		Into(tbl.TableName()).
		Values(res.ID, res.SubmissionID, res.FileID, string(res.Stage), res.Success, res.Result, res.PerfData, res.MachineID, res.JobID, res.CreatedAt).
		Build()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		if dialect.IsUniqueViolation(err) {
			return fmt.Errorf("result for job %s already recorded: %w", res.JobID, errs.ErrPersistenceConflict)
		}
		r.logger.Error("Failed to save test result", "jobId", res.JobID, "error", err)
		return fmt.Errorf("failed to save test result: %w", err)
	}
	return nil
}

// GetByJob retrieves the result recorded for a job
func (r *ResultRepository) GetByJob(ctx context.Context, jobID uuid.UUID) (*domain.SubmissionTestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM submission_test_results WHERE job_id = ?`

	var result domain.SubmissionTestResult
	if err := sqlx.GetContext(ctx, r.db, &result, r.db.Rebind(query), jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get test result", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to get test result: %w", err)
	}
	return &result, nil
}

// ListBySubmission returns the result history of a submission
func (r *ResultRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*domain.SubmissionTestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM submission_test_results WHERE submission_id = ? ORDER BY created_at ASC, id ASC`

	results := make([]*domain.SubmissionTestResult, 0)
	if err := sqlx.SelectContext(ctx, r.db, &results, r.db.Rebind(query), submissionID); err != nil {
		r.logger.Error("Failed to list test results", "submissionId", submissionID, "error", err)
		return nil, fmt.Errorf("failed to list test results: %w", err)
	}
	return results, nil
}
