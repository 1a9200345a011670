package assignment

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// AssignmentView is an assignment together with its machine affinity
type AssignmentView struct {
	*domain.Assignment
	Machines []uuid.UUID `json:"machines"`
}

// IAssignmentService configures the test stages of assignments
type IAssignmentService interface {
	Upsert(ctx context.Context, assignment *domain.Assignment) (*AssignmentView, error)

	// SetMachines restricts the assignment to the given machines; an empty list lifts the restriction
	SetMachines(ctx context.Context, id uuid.UUID, machineIDs []uuid.UUID) (*AssignmentView, error)

	Get(ctx context.Context, id uuid.UUID) (*AssignmentView, error)
}
