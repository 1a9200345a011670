package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var _ IAssignmentService = (*AssignmentService)(nil)

type AssignmentService struct {
	store  secondary.Store
	clock  clock.Clock
	logger primary.Logger
}

func NewAssignmentService(store secondary.Store, logger primary.Logger) *AssignmentService {
	return &AssignmentService{
		store:  store,
		clock:  clock.Real(),
		logger: logger,
	}
}

func (s *AssignmentService) Upsert(ctx context.Context, a *domain.Assignment) (*AssignmentView, error) {
	if a.ID == uuid.Nil {
		return nil, fmt.Errorf("assignment id is required: %w", errs.ErrInvalidArgument)
	}
	if a.TestTimeout < 0 {
		return nil, fmt.Errorf("negative test timeout: %w", errs.ErrInvalidArgument)
	}
	if a.TestTimeout == 0 {
		a.TestTimeout = domain.DefaultTestTimeoutSeconds
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}

	if err := s.store.Repos().Assignments.Upsert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}
	s.logger.Info("Assignment saved", "assignmentId", a.ID, "stages", a.RequiredStages())
	return s.Get(ctx, a.ID)
}

func (s *AssignmentService) SetMachines(ctx context.Context, id uuid.UUID, machineIDs []uuid.UUID) (*AssignmentView, error) {
	err := s.store.WithinTx(ctx, func(repos secondary.Repositories) error {
		a, err := repos.Assignments.Get(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("assignment %s: %w", id, errs.ErrNotFound)
		}
		for _, machineID := range machineIDs {
			m, err := repos.Machines.Get(ctx, machineID)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("unknown machine %s: %w", machineID, errs.ErrInvalidArgument)
			}
		}
		return repos.Assignments.SetMachines(ctx, id, machineIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set assignment machines: %w", err)
	}

	s.logger.Info("Assignment machines updated", "assignmentId", id, "machines", len(machineIDs))
	return s.Get(ctx, id)
}

func (s *AssignmentService) Get(ctx context.Context, id uuid.UUID) (*AssignmentView, error) {
	repos := s.store.Repos()
	a, err := repos.Assignments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("assignment %s: %w", id, errs.ErrNotFound)
	}

	machines, err := repos.Assignments.Machines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment machines: %w", err)
	}
	return &AssignmentView{Assignment: a, Machines: machines}, nil
}
