package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/core/services/lifecycle"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

const candidateBatch = 100

var _ IDispatchService = (*DispatchService)(nil)

// DispatchService implements IDispatchService
type DispatchService struct {
	store     secondary.Store
	artifacts secondary.ArtifactStore
	machines  machine.IMachineService
	cfg       *config.ExecutorConfig
	clock     clock.Clock
	logger    primary.Logger
}

type Option func(*DispatchService)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *DispatchService) {
		s.clock = c
	}
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	store secondary.Store,
	artifacts secondary.ArtifactStore,
	machines machine.IMachineService,
	cfg *config.ExecutorConfig,
	logger primary.Logger,
	opts ...Option,
) *DispatchService {
	s := &DispatchService{
		store:     store,
		artifacts: artifacts,
		machines:  machines,
		cfg:       cfg,
		clock:     clock.Real(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DispatchService) RequestJob(ctx context.Context, machineID uuid.UUID, fingerprint string) (*domain.JobDescriptor, error) {
	m, err := s.machines.Get(ctx, machineID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrRegistrationRequired
		}
		return nil, err
	}

	if !m.Enabled {
		s.logger.Debug("Machine disabled, no job handed out", "machineId", machineID)
		return nil, nil
	}

	if m.Fingerprint != fingerprint {
		s.logger.Info("Machine fingerprint changed, asking for registration", "machineId", machineID)
		return nil, errs.ErrRegistrationRequired
	}

	if err := s.machines.Touch(ctx, m); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	repos := s.store.Repos()
	assignments := make(map[uuid.UUID]*domain.Assignment)

	// Skipped stages and lost races change the candidate set, so a pass that made progress is read again.
	for {
		candidates, err := repos.Submissions.ListCandidates(ctx, machineID, lifecycle.DispatchableStates, now, candidateBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to list dispatch candidates: %w", err)
		}

		progressed := false
		for _, candidate := range candidates {
			stage, ok := lifecycle.PendingStage(candidate.State)
			if !ok {
				continue
			}

			assignment, ok := assignments[candidate.AssignmentID]
			if !ok {
				assignment, err = repos.Assignments.Get(ctx, candidate.AssignmentID)
				if err != nil {
					return nil, fmt.Errorf("failed to get assignment: %w", err)
				}
				assignments[candidate.AssignmentID] = assignment
			}
			if assignment == nil {
				s.logger.Warn("Skipping submission without assignment", "submissionId", candidate.ID)
				continue
			}
			if !assignment.Requires(stage) {
				moved, err := s.skipStage(ctx, repos, candidate, assignment, stage, now)
				if err != nil {
					return nil, err
				}
				progressed = progressed || moved
				continue
			}

			reservation := domain.Reservation{
				SubmissionID: candidate.ID,
				Version:      candidate.Version,
				State:        candidate.State,
				MachineID:    machineID,
				Stage:        stage,
				JobID:        uuid.New(),
				Until:        now.Add(s.cfg.ReservationTimeout),
			}
			won, err := repos.Submissions.Reserve(ctx, reservation, now)
			if err != nil {
				return nil, fmt.Errorf("failed to reserve submission: %w", err)
			}
			if !won {
				s.logger.Debug("Lost reservation race", "submissionId", candidate.ID, "machineId", machineID)
				progressed = true
				continue
			}

			job, err := s.describe(ctx, repos, candidate, assignment, reservation)
			if err != nil {
				return nil, err
			}

			s.logger.Info("Job dispatched",
				"jobId", job.JobID,
				"submissionId", candidate.ID,
				"stage", stage,
				"machineId", machineID)
			return job, nil
		}

		if !progressed {
			return nil, nil
		}
	}
}

// skipStage moves a submission past a stage its assignment no longer requires
func (s *DispatchService) skipStage(
	ctx context.Context,
	repos secondary.Repositories,
	submission *domain.Submission,
	assignment *domain.Assignment,
	stage domain.Stage,
	now time.Time,
) (bool, error) {
	next, err := lifecycle.NextState(assignment, submission.State, stage, true)
	if err != nil {
		return false, err
	}

	moved, err := repos.Submissions.UpdateState(ctx, submission.ID, submission.Version, next, now)
	if err != nil {
		return false, fmt.Errorf("failed to skip stage: %w", err)
	}
	if moved {
		s.logger.Warn("Skipped stage no longer required by the assignment",
			"submissionId", submission.ID, "stage", stage, "state", next)
	}
	return moved, nil
}

func (s *DispatchService) describe(
	ctx context.Context,
	repos secondary.Repositories,
	submission *domain.Submission,
	assignment *domain.Assignment,
	res domain.Reservation,
) (*domain.JobDescriptor, error) {
	file, err := repos.Submissions.GetFile(ctx, submission.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("submission file %s: %w", submission.FileID, errs.ErrNotFound)
	}

	job := &domain.JobDescriptor{
		JobID:            res.JobID,
		SubmissionID:     submission.ID,
		Stage:            res.Stage,
		ArtifactURL:      domain.ArtifactPath(res.JobID),
		ArtifactName:     file.OriginalName,
		ArtifactChecksum: file.Checksum,
		TimeoutSeconds:   assignment.Timeout(),
		ReservedUntil:    res.Until,
	}
	if script := assignment.Script(res.Stage); script != "" {
		job.ScriptURL = domain.ScriptPath(res.JobID)
		job.ScriptName = path.Base(script)
	}
	return job, nil
}

func (s *DispatchService) OpenArtifact(ctx context.Context, machineID, jobID uuid.UUID) (string, io.ReadCloser, error) {
	submission, err := s.heldBy(ctx, machineID, jobID)
	if err != nil {
		return "", nil, err
	}

	file, err := s.store.Repos().Submissions.GetFile(ctx, submission.FileID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get submission file: %w", err)
	}
	if file == nil {
		return "", nil, fmt.Errorf("submission file %s: %w", submission.FileID, errs.ErrNotFound)
	}

	r, err := s.artifacts.Open(ctx, file.Path)
	if err != nil {
		return "", nil, err
	}
	return file.OriginalName, r, nil
}

func (s *DispatchService) OpenScript(ctx context.Context, machineID, jobID uuid.UUID) (string, io.ReadCloser, error) {
	submission, err := s.heldBy(ctx, machineID, jobID)
	if err != nil {
		return "", nil, err
	}

	assignment, err := s.store.Repos().Assignments.Get(ctx, submission.AssignmentID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	stage, _ := submission.ReservedFor()
	if assignment == nil || assignment.Script(stage) == "" {
		return "", nil, fmt.Errorf("no script for job %s: %w", jobID, errs.ErrNotFound)
	}

	script := assignment.Script(stage)
	r, err := s.artifacts.Open(ctx, script)
	if err != nil {
		return "", nil, err
	}
	return path.Base(script), r, nil
}

// heldBy returns the submission reserved under jobID if machineID holds it
func (s *DispatchService) heldBy(ctx context.Context, machineID, jobID uuid.UUID) (*domain.Submission, error) {
	submission, err := s.store.Repos().Submissions.GetByReservation(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reserved submission: %w", err)
	}
	if submission == nil || !submission.ReservedBy.Valid || submission.ReservedBy.UUID != machineID {
		return nil, fmt.Errorf("job %s: %w", jobID, errs.ErrNotFound)
	}
	return submission, nil
}

func (s *DispatchService) ReleaseExpired(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.ResultGrace)
	released, err := s.store.Repos().Submissions.ReleaseExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired reservations: %w", err)
	}
	return released, nil
}
