package machine

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// IMachineService is the registry of test machines and the executor authentication gate
type IMachineService interface {
	// Authenticate checks the executor shared secret
	Authenticate(secret string) error

	// Register creates or refreshes a machine from its handshake
	Register(ctx context.Context, registration domain.MachineRegistration) (*domain.TestMachine, error)

	// Get retrieves a machine, errs.ErrNotFound if unknown
	Get(ctx context.Context, id uuid.UUID) (*domain.TestMachine, error)

	// List returns all machines annotated with their online status
	List(ctx context.Context) ([]*domain.TestMachine, error)

	Enable(ctx context.Context, id uuid.UUID) error
	Disable(ctx context.Context, id uuid.UUID) error

	// Touch records a contact from the machine
	Touch(ctx context.Context, machine *domain.TestMachine) error

	// Online lists machines that talked to us within the presence TTL
	Online(ctx context.Context) ([]*domain.MachinePresence, error)
}
