package secondary

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

type MachineRepository interface {
	// Get retrieves a machine by ID, nil if unknown
	Get(ctx context.Context, id uuid.UUID) (*domain.TestMachine, error)

	// Upsert creates a machine or updates host, fingerprint, config and last contact.
	// The enabled flag of an existing machine is kept.
	Upsert(ctx context.Context, machine *domain.TestMachine) error

	// List returns all machines
	List(ctx context.Context) ([]*domain.TestMachine, error)

	// SetEnabled toggles dispatch eligibility
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error

	// Touch records a contact
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MachinePresence tracks which machines talked to us recently
type MachinePresence interface {
	// Touch refreshes the presence record of a machine
	Touch(ctx context.Context, presence *domain.MachinePresence) error

	// Online lists machines whose presence has not expired
	Online(ctx context.Context) ([]*domain.MachinePresence, error)

	// IsOnline reports whether a machine has live presence
	IsOnline(ctx context.Context, id uuid.UUID) (bool, error)
}
