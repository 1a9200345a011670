// Package submissionrepository stores submissions, their files and reservations
package submissionrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	querybuilder "gitlab.com/opensubmit.net/internal/utils"
)

var _ secondary.SubmissionRepository = (*SubmissionRepository)(nil)

// SubmissionRepository implements secondary.SubmissionRepository with sqlx
type SubmissionRepository struct {
	db     sqlx.ExtContext
	logger primary.Logger
}

// NewSubmissionRepository creates a repository bound to a pool or a transaction
func NewSubmissionRepository(db sqlx.ExtContext, logger primary.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

var selectColumns = strings.Join(domain.GetSubmissionTable().Columns(), ", ")

// Create inserts a new submission
func (r *SubmissionRepository) Create(ctx context.Context, s *domain.Submission) error {
	tbl := domain.GetSubmissionTable()
	query, args := querybuilder.NewQueryBuilder("").
		Insert(tbl.ID, tbl.AssignmentID, tbl.Submitter, tbl.FileID, tbl.State, tbl.Notified, tbl.CreatedAt, tbl.ModifiedAt, tbl.Version).
		Into(tbl.TableName()).
		Values(s.ID, s.AssignmentID, s.Submitter, s.FileID, s.State, s.Notified, s.CreatedAt, s.ModifiedAt, s.Version).
		Build()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to create submission", "submissionId", s.ID, "error", err)
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByReservation retrieves the submission reserved under jobID
func (r *SubmissionRepository) GetByReservation(ctx context.Context, jobID uuid.UUID) (*domain.Submission, error) {
	return r.getOne(ctx, "reservation_id = ?", jobID)
}

func (r *SubmissionRepository) getOne(ctx context.Context, where string, arg interface{}) (*domain.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE %s", selectColumns, where)

	var submission domain.Submission
	if err := sqlx.GetContext(ctx, r.db, &submission, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get submission", "error", err)
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

// List returns submissions matching filter, oldest first
func (r *SubmissionRepository) List(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.Submission, error) {
	tbl := domain.GetSubmissionTable()
	qb := querybuilder.NewQueryBuilder("").
		Select(tbl.Columns()...).
		From(tbl.TableName())

	if filter.AssignmentID != nil {
		qb.Where(tbl.AssignmentID+" = ?", *filter.AssignmentID)
	}
	if len(filter.States) > 0 {
		qb.AndGroup(func(g querybuilder.QueryBuilder) {
			for _, state := range filter.States {
				g.Or(tbl.State+" = ?", state)
			}
		})
	}
	qb.OrderBy(tbl.CreatedAt, true).OrderBy(tbl.ID, true).Limit(filter.Limit)

	query, args := qb.Build()
	submissions := make([]*domain.Submission, 0)
	if err := sqlx.SelectContext(ctx, r.db, &submissions, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list submissions", "error", err)
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

// ListCandidates returns dispatchable submissions for machineID in FIFO order.
// A pending stage that already has a result for the current file is not a candidate; re-tests always are.
func (r *SubmissionRepository) ListCandidates(ctx context.Context, machineID uuid.UUID, states []domain.SubmissionState, now time.Time, limit int) ([]*domain.Submission, error) {
	if len(states) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM submissions s
		WHERE s.state IN (?)
		  AND (s.reservation_id IS NULL OR s.reserved_until < ?)
		  AND (
		      NOT EXISTS (SELECT 1 FROM assignment_machines am WHERE am.assignment_id = s.assignment_id)
		      OR EXISTS (SELECT 1 FROM assignment_machines am WHERE am.assignment_id = s.assignment_id AND am.machine_id = ?)
		  )
		  AND (
		      s.state = ?
		      OR NOT EXISTS (
		          SELECT 1 FROM submission_test_results r
		          WHERE r.file_id = s.file_id
		            AND r.stage = CASE s.state WHEN ? THEN ? WHEN ? THEN ? WHEN ? THEN ? END
		      )
		  )
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT ?
	`, prefixed("s.", domain.GetSubmissionTable().Columns()))

	query, args, err := sqlx.In(query, states, now, machineID,
		domain.StateClosedTestPending,
		domain.StateTestCompilePending, string(domain.StageCompile),
		domain.StateTestValidityPending, string(domain.StageValidity),
		domain.StateTestFullPending, string(domain.StageFull),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to expand candidate query: %w", err)
	}

	candidates := make([]*domain.Submission, 0)
	if err := sqlx.SelectContext(ctx, r.db, &candidates, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list dispatch candidates", "machineId", machineID, "error", err)
		return nil, fmt.Errorf("failed to list dispatch candidates: %w", err)
	}
	return candidates, nil
}

// Reserve claims a submission for one machine and stage
func (r *SubmissionRepository) Reserve(ctx context.Context, res domain.Reservation, now time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET reserved_by = ?, reserved_stage = ?, reservation_id = ?, reserved_until = ?,
		    version = version + 1, modified_at = ?
		WHERE id = ? AND version = ? AND state = ?
		  AND (reservation_id IS NULL OR reserved_until < ?)
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		res.MachineID, string(res.Stage), res.JobID, res.Until,
		now,
		res.SubmissionID, res.Version, res.State,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to reserve submission", "submissionId", res.SubmissionID, "error", err)
		return false, fmt.Errorf("failed to reserve submission: %w", err)
	}
	return affectedOne(result)
}

// CompleteReservation applies the outcome of a reserved job
func (r *SubmissionRepository) CompleteReservation(ctx context.Context, id uuid.UUID, version int64, jobID uuid.UUID, next domain.SubmissionState, now time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET state = ?, reserved_by = NULL, reserved_stage = NULL, reservation_id = NULL, reserved_until = NULL,
		    version = version + 1, modified_at = ?
		WHERE id = ? AND version = ? AND reservation_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), next, now, id, version, jobID)
	if err != nil {
		r.logger.Error("Failed to complete reservation", "submissionId", id, "jobId", jobID, "error", err)
		return false, fmt.Errorf("failed to complete reservation: %w", err)
	}
	return affectedOne(result)
}

// UpdateState moves a submission to next and drops any reservation
func (r *SubmissionRepository) UpdateState(ctx context.Context, id uuid.UUID, version int64, next domain.SubmissionState, now time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET state = ?, reserved_by = NULL, reserved_stage = NULL, reservation_id = NULL, reserved_until = NULL,
		    version = version + 1, modified_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), next, now, id, version)
	if err != nil {
		r.logger.Error("Failed to update submission state", "submissionId", id, "error", err)
		return false, fmt.Errorf("failed to update submission state: %w", err)
	}
	return affectedOne(result)
}

// ReplaceFile swaps in a new file and resets the pipeline
func (r *SubmissionRepository) ReplaceFile(ctx context.Context, id uuid.UUID, version int64, fileID uuid.UUID, next domain.SubmissionState, now time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET file_id = ?, state = ?, notified = ?,
		    reserved_by = NULL, reserved_stage = NULL, reservation_id = NULL, reserved_until = NULL,
		    version = version + 1, modified_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), fileID, next, false, now, id, version)
	if err != nil {
		r.logger.Error("Failed to replace submission file", "submissionId", id, "error", err)
		return false, fmt.Errorf("failed to replace submission file: %w", err)
	}
	return affectedOne(result)
}

// ReleaseExpired clears reservations that ended before cutoff
func (r *SubmissionRepository) ReleaseExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE submissions
		SET reserved_by = NULL, reserved_stage = NULL, reservation_id = NULL, reserved_until = NULL,
		    version = version + 1
		WHERE reservation_id IS NOT NULL AND reserved_until < ?
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), cutoff)
	if err != nil {
		r.logger.Error("Failed to release expired reservations", "error", err)
		return 0, fmt.Errorf("failed to release expired reservations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// CreateFile stores a submission file record
func (r *SubmissionRepository) CreateFile(ctx context.Context, f *domain.SubmissionFile) error {
	query := `INSERT INTO submission_files (id, path, original_name, checksum, created_at) VALUES (?, ?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), f.ID, f.Path, f.OriginalName, f.Checksum, f.CreatedAt); err != nil {
		r.logger.Error("Failed to create submission file", "fileId", f.ID, "error", err)
		return fmt.Errorf("failed to create submission file: %w", err)
	}
	return nil
}

// GetFile retrieves a submission file by ID
func (r *SubmissionRepository) GetFile(ctx context.Context, id uuid.UUID) (*domain.SubmissionFile, error) {
	query := `SELECT id, path, original_name, checksum, created_at FROM submission_files WHERE id = ?`

	var file domain.SubmissionFile
	if err := sqlx.GetContext(ctx, r.db, &file, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get submission file", "fileId", id, "error", err)
		return nil, fmt.Errorf("failed to get submission file: %w", err)
	}
	return &file, nil
}

// ListFiles returns every submission file
func (r *SubmissionRepository) ListFiles(ctx context.Context) ([]*domain.SubmissionFile, error) {
	query := `SELECT id, path, original_name, checksum, created_at FROM submission_files ORDER BY created_at ASC`

	files := make([]*domain.SubmissionFile, 0)
	if err := sqlx.SelectContext(ctx, r.db, &files, query); err != nil {
		r.logger.Error("Failed to list submission files", "error", err)
		return nil, fmt.Errorf("failed to list submission files: %w", err)
	}
	return files, nil
}

// UpdateFileChecksum overwrites a stored checksum
func (r *SubmissionRepository) UpdateFileChecksum(ctx context.Context, id uuid.UUID, checksum string) error {
	query, args := querybuilder.NewQueryBuilder("").
		Update("submission_files", querybuilder.UpdateData{"checksum": checksum}).
		Where("id = ?", id).
		Build()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to update file checksum", "fileId", id, "error", err)
		return fmt.Errorf("failed to update file checksum: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("submission file not found: %s", id)
	}
	return nil
}

func affectedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}
