package secondary

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

type AssignmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Assignment, error)
	Upsert(ctx context.Context, assignment *domain.Assignment) error

	// SetMachines replaces the affinity set. An empty set lifts the restriction.
	SetMachines(ctx context.Context, assignmentID uuid.UUID, machineIDs []uuid.UUID) error
	Machines(ctx context.Context, assignmentID uuid.UUID) ([]uuid.UUID, error)
}
