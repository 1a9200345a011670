package assignmentrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	querybuilder "gitlab.com/opensubmit.net/internal/utils"
)

var _ secondary.AssignmentRepository = (*AssignmentRepository)(nil)

// AssignmentRepository reads and writes assignments and their machine affinity
type AssignmentRepository struct {
	db     sqlx.ExtContext
	logger primary.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db sqlx.ExtContext, logger primary.Logger) *AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an assignment, nil if missing
func (r *AssignmentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	query := `
		SELECT id, title, compile_test, validity_script, full_script, test_timeout, created_at
		FROM assignments
		WHERE id = ?
	`

	var assignment domain.Assignment
	if err := sqlx.GetContext(ctx, r.db, &assignment, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get assignment", "assignmentId", id, "error", err)
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

// Upsert creates or updates an assignment; created_at is kept
func (r *AssignmentRepository) Upsert(ctx context.Context, a *domain.Assignment) error {
	tbl := domain.GetAssignmentTable()
	query, args := querybuilder.NewQueryBuilder("").
		Insert(tbl.ID, tbl.Title, tbl.CompileTest, tbl.ValidityScript, tbl.FullScript, tbl.TestTimeout, tbl.CreatedAt).
		Into(tbl.TableName()).
		Values(a.ID, a.Title, a.CompileTest, a.ValidityScript, a.FullScript, a.TestTimeout, a.CreatedAt).
		OnConflict(tbl.ID).
		SetExclude(tbl.Title, tbl.CompileTest, tbl.ValidityScript, tbl.FullScript, tbl.TestTimeout).
		Build()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to save assignment", "assignmentId", a.ID, "error", err)
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// SetMachines replaces the affinity set of an assignment
func (r *AssignmentRepository) SetMachines(ctx context.Context, assignmentID uuid.UUID, machineIDs []uuid.UUID) error {
	query, args := querybuilder.NewQueryBuilder("").
		Delete("assignment_machines").
		Where("assignment_id = ?", assignmentID).
		Build()
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to clear assignment machines", "assignmentId", assignmentID, "error", err)
		return fmt.Errorf("failed to clear assignment machines: %w", err)
	}

	if len(machineIDs) == 0 {
		return nil
	}

	qb := querybuilder.NewQueryBuilder("").
		Insert("assignment_id", "machine_id").
		Into("assignment_machines")
	for _, id := range machineIDs {
		qb.Values(assignmentID, id)
	}
	query, args = qb.OnConflict("assignment_id", "machine_id").DoNothing().Build()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to save assignment machines", "assignmentId", assignmentID, "error", err)
		return fmt.Errorf("failed to save assignment machines: %w", err)
	}
	return nil
}

// Machines returns the affinity set of an assignment
func (r *AssignmentRepository) Machines(ctx context.Context, assignmentID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT machine_id FROM assignment_machines WHERE assignment_id = ? ORDER BY machine_id`

	ids := make([]uuid.UUID, 0)
	if err := sqlx.SelectContext(ctx, r.db, &ids, r.db.Rebind(query), assignmentID); err != nil {
		r.logger.Error("Failed to list assignment machines", "assignmentId", assignmentID, "error", err)
		return nil, fmt.Errorf("failed to list assignment machines: %w", err)
	}
	return ids, nil
}
