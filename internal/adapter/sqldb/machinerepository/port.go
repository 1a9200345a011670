package machinerepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	querybuilder "gitlab.com/opensubmit.net/internal/utils"
)

var _ secondary.MachineRepository = &machineRepo{}

type machineRepo struct {
	db     sqlx.ExtContext
	logger primary.Logger
}

func NewMachineRepository(db sqlx.ExtContext, logger primary.Logger) secondary.MachineRepository {
	return &machineRepo{
		db:     db,
		logger: logger,
	}
}

func (m machineRepo) Get(ctx context.Context, id uuid.UUID) (*domain.TestMachine, error) {
	tbl := domain.GetMachineTable()
	query, args := querybuilder.NewQueryBuilder("").
		Select(tbl.ID, tbl.Host, tbl.Fingerprint, tbl.Config, tbl.Enabled, tbl.LastContact, tbl.CreatedAt).
		From(tbl.TableName()).
		Where(tbl.ID+" = ?", id).
		Build()

	var machine domain.TestMachine
	if err := sqlx.GetContext(ctx, m.db, &machine, m.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		m.logger.Error("Failed to get machine", "machineId", id, "error", err)
		return nil, fmt.Errorf("failed to get machine: %w", err)
	}
	return &machine, nil
}

func (m machineRepo) Upsert(ctx context.Context, machine *domain.TestMachine) error {
	tbl := domain.GetMachineTable()
	query, args := querybuilder.NewQueryBuilder("").
		Insert(tbl.ID, tbl.Host, tbl.Fingerprint, tbl.Config, tbl.Enabled, tbl.LastContact, tbl.CreatedAt).
		Into(tbl.TableName()).
		Values(machine.ID, machine.Host, machine.Fingerprint, machine.Config, machine.Enabled, machine.LastContact, machine.CreatedAt).
		OnConflict(tbl.ID).
		SetExclude(tbl.Host, tbl.Fingerprint, tbl.Config, tbl.LastContact).
		Build()

	if _, err := m.db.ExecContext(ctx, m.db.Rebind(query), args...); err != nil {
		m.logger.Error("Failed to save machine", "machineId", machine.ID, "error", err)
		return fmt.Errorf("failed to save machine: %w", err)
	}
	return nil
}

func (m machineRepo) List(ctx context.Context) ([]*domain.TestMachine, error) {
	tbl := domain.GetMachineTable()
	query, args := querybuilder.NewQueryBuilder("").
		Select(tbl.ID, tbl.Host, tbl.Fingerprint, tbl.Config, tbl.Enabled, tbl.LastContact, tbl.CreatedAt).
		From(tbl.TableName()).
		OrderBy(tbl.CreatedAt, true).
		Build()

	machines := make([]*domain.TestMachine, 0)
	if err := sqlx.SelectContext(ctx, m.db, &machines, m.db.Rebind(query), args...); err != nil {
		m.logger.Error("Failed to list machines", "error", err)
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (m machineRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return m.update(ctx, id, querybuilder.UpdateData{domain.GetMachineTable().Enabled: enabled})
}

func (m machineRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.update(ctx, id, querybuilder.UpdateData{domain.GetMachineTable().LastContact: at})
}

func (m machineRepo) update(ctx context.Context, id uuid.UUID, data querybuilder.UpdateData) error {
	tbl := domain.GetMachineTable()
	query, args := querybuilder.NewQueryBuilder("").
		Update(tbl.TableName(), data).
		Where(tbl.ID+" = ?", id).
		Build()

	result, err := m.db.ExecContext(ctx, m.db.Rebind(query), args...)
	if err != nil {
		m.logger.Error("Failed to update machine", "machineId", id, "error", err)
		return fmt.Errorf("failed to update machine: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("machine %s: %w", id, errs.ErrNotFound)
	}
	return nil
}
