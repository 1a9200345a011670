package machine

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var _ IMachineService = (*MachineService)(nil)

// MachineService implements IMachineService
type MachineService struct {
	store    secondary.Store
	presence secondary.MachinePresence
	secret   string
	clock    clock.Clock
	logger   primary.Logger
}

type Option func(*MachineService)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *MachineService) {
		s.clock = c
	}
}

// NewMachineService creates a new machine service. presence may be nil.
func NewMachineService(
	store secondary.Store,
	presence secondary.MachinePresence,
	cfg *config.ExecutorConfig,
	logger primary.Logger,
	opts ...Option,
) *MachineService {
	s := &MachineService{
		store:    store,
		presence: presence,
		secret:   cfg.SharedSecret,
		clock:    clock.Real(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate compares in constant time; an unset secret rejects everyone
func (s *MachineService) Authenticate(secret string) error {
	if s.secret == "" {
		return errs.ErrAuthenticationFailure
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.secret)) != 1 {
		return errs.ErrAuthenticationFailure
	}
	return nil
}

// Register upserts the machine. A known machine keeps its enabled flag.
func (s *MachineService) Register(ctx context.Context, reg domain.MachineRegistration) (*domain.TestMachine, error) {
	if reg.ID == uuid.Nil {
		return nil, fmt.Errorf("machine id is required: %w", errs.ErrInvalidArgument)
	}
	if reg.Config == "" {
		reg.Config = "{}"
	}

	now := s.clock.Now()
	repos := s.store.Repos()

	s.logger.Info("Registering machine", "machineId", reg.ID, "host", reg.Host)

	machine := &domain.TestMachine{
		ID:          reg.ID,
		Host:        reg.Host,
		Fingerprint: reg.Fingerprint,
		Config:      reg.Config,
		Enabled:     true,
		LastContact: sql.NullTime{Time: now, Valid: true},
		CreatedAt:   now,
	}
	if err := repos.Machines.Upsert(ctx, machine); err != nil {
		return nil, fmt.Errorf("failed to register machine: %w", err)
	}

	saved, err := repos.Machines.Get(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load registered machine: %w", err)
	}
	if saved == nil {
		return nil, fmt.Errorf("machine %s vanished after registration: %w", reg.ID, errs.ErrNotFound)
	}

	saved.Online = s.refreshPresence(ctx, saved, now)
	return saved, nil
}

func (s *MachineService) Get(ctx context.Context, id uuid.UUID) (*domain.TestMachine, error) {
	machine, err := s.store.Repos().Machines.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get machine: %w", err)
	}
	if machine == nil {
		return nil, fmt.Errorf("machine %s: %w", id, errs.ErrNotFound)
	}
	return machine, nil
}

func (s *MachineService) List(ctx context.Context) ([]*domain.TestMachine, error) {
	s.logger.Debug("Listing machines")

	machines, err := s.store.Repos().Machines.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list machines", "error", err)
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}

	online, err := s.Online(ctx)
	if err != nil {
		// listing still works without presence data
		s.logger.Warn("Machine presence unavailable", "error", err)
		return machines, nil
	}

	live := make(map[uuid.UUID]bool, len(online))
	for _, p := range online {
		live[p.ID] = true
	}
	for _, m := range machines {
		m.Online = live[m.ID]
	}
	return machines, nil
}

func (s *MachineService) Enable(ctx context.Context, id uuid.UUID) error {
	return s.setEnabled(ctx, id, true)
}

func (s *MachineService) Disable(ctx context.Context, id uuid.UUID) error {
	return s.setEnabled(ctx, id, false)
}

func (s *MachineService) setEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if err := s.store.Repos().Machines.SetEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("failed to update machine: %w", err)
	}
	s.logger.Info("Machine dispatch eligibility changed", "machineId", id, "enabled", enabled)
	return nil
}

// Touch updates last_contact and presence
func (s *MachineService) Touch(ctx context.Context, machine *domain.TestMachine) error {
	now := s.clock.Now()
	if err := s.store.Repos().Machines.Touch(ctx, machine.ID, now); err != nil {
		return fmt.Errorf("failed to touch machine: %w", err)
	}
	machine.LastContact = sql.NullTime{Time: now, Valid: true}
	machine.Online = s.refreshPresence(ctx, machine, now)
	return nil
}

func (s *MachineService) Online(ctx context.Context) ([]*domain.MachinePresence, error) {
	if s.presence == nil {
		return []*domain.MachinePresence{}, nil
	}
	online, err := s.presence.Online(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online machines: %w", err)
	}
	return online, nil
}

// refreshPresence is best effort; the database stays authoritative
func (s *MachineService) refreshPresence(ctx context.Context, machine *domain.TestMachine, now time.Time) bool {
	if s.presence == nil {
		return false
	}
	err := s.presence.Touch(ctx, &domain.MachinePresence{
		ID:       machine.ID,
		Host:     machine.Host,
		LastSeen: now,
	})
	if err != nil {
		s.logger.Warn("Failed to refresh machine presence", "machineId", machine.ID, "error", err)
		return false
	}
	return true
}
