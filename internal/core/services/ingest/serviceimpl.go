package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/core/services/lifecycle"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/utils/retry"
)

var _ IIngestService = (*IngestService)(nil)

// IngestService implements IIngestService
type IngestService struct {
	store    secondary.Store
	attempts int
	clock    clock.Clock
	logger   primary.Logger
}

type Option func(*IngestService)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *IngestService) {
		s.clock = c
	}
}

// NewIngestService creates a new ingest service
func NewIngestService(store secondary.Store, cfg *config.ExecutorConfig, logger primary.Logger, opts ...Option) *IngestService {
	s := &IngestService{
		store:    store,
		attempts: cfg.RetryAttempts,
		clock:    clock.Real(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *IngestService) SubmitResult(ctx context.Context, machineID uuid.UUID, report domain.ResultReport) error {
	err := retry.OnConflict(ctx, s.attempts, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(repos secondary.Repositories) error {
			return s.apply(ctx, repos, machineID, report)
		})
	})
	if err != nil {
		s.logger.Warn("Result rejected",
			"jobId", report.JobID,
			"machineId", machineID,
			"submissionId", report.SubmissionID,
			"error", err)
		return err
	}
	return nil
}

func (s *IngestService) apply(ctx context.Context, repos secondary.Repositories, machineID uuid.UUID, report domain.ResultReport) error {
	submission, err := repos.Submissions.GetByReservation(ctx, report.JobID)
	if err != nil {
		return fmt.Errorf("failed to get reserved submission: %w", err)
	}
	if submission == nil {
		return s.replayed(ctx, repos, machineID, report)
	}

	stage, _ := submission.ReservedFor()
	if !submission.ReservedBy.Valid || submission.ReservedBy.UUID != machineID ||
		stage != report.Stage || submission.ID != report.SubmissionID {
		return errs.ErrStaleOrUnauthorizedResult
	}

	assignment, err := repos.Assignments.Get(ctx, submission.AssignmentID)
	if err != nil {
		return fmt.Errorf("failed to get assignment: %w", err)
	}
	if assignment == nil {
		return fmt.Errorf("assignment %s: %w", submission.AssignmentID, errs.ErrNotFound)
	}

	next, err := lifecycle.NextState(assignment, submission.State, stage, report.Success)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	result := &domain.SubmissionTestResult{
		ID:           uuid.New(),
		SubmissionID: submission.ID,
		FileID:       submission.FileID,
		Stage:        stage,
		Success:      report.Success,
		Result:       report.Payload,
		PerfData:     report.PerfData,
		MachineID:    machineID,
		JobID:        report.JobID,
		CreatedAt:    now,
	}
	if err := repos.Results.Insert(ctx, result); err != nil {
		return err
	}

	ok, err := repos.Submissions.CompleteReservation(ctx, submission.ID, submission.Version, report.JobID, next, now)
	if err != nil {
		return fmt.Errorf("failed to complete reservation: %w", err)
	}
	if !ok {
		return fmt.Errorf("submission %s changed while recording result: %w", submission.ID, errs.ErrPersistenceConflict)
	}

	s.logger.Info("Result recorded",
		"jobId", report.JobID,
		"submissionId", submission.ID,
		"stage", stage,
		"success", report.Success,
		"state", next)
	return nil
}

// replayed accepts a duplicate delivery of a result that is already stored
func (s *IngestService) replayed(ctx context.Context, repos secondary.Repositories, machineID uuid.UUID, report domain.ResultReport) error {
	existing, err := repos.Results.GetByJob(ctx, report.JobID)
	if err != nil {
		return fmt.Errorf("failed to get recorded result: %w", err)
	}
	if existing == nil {
		return errs.ErrStaleOrUnauthorizedResult
	}
	if existing.MachineID != machineID || existing.Stage != report.Stage ||
		existing.Success != report.Success || existing.SubmissionID != report.SubmissionID {
		return errs.ErrStaleOrUnauthorizedResult
	}

	s.logger.Debug("Duplicate result ignored", "jobId", report.JobID, "machineId", machineID)
	return nil
}
