package submission

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

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

var _ ISubmissionService = (*SubmissionService)(nil)

// SubmissionService implements ISubmissionService
type SubmissionService struct {
	store     secondary.Store
	artifacts secondary.ArtifactStore
	attempts  int
	clock     clock.Clock
	logger    primary.Logger
}

type Option func(*SubmissionService)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *SubmissionService) {
		s.clock = c
	}
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	store secondary.Store,
	artifacts secondary.ArtifactStore,
	cfg *config.ExecutorConfig,
	logger primary.Logger,
	opts ...Option,
) *SubmissionService {
	s := &SubmissionService{
		store:     store,
		artifacts: artifacts,
		attempts:  cfg.RetryAttempts,
		clock:     clock.Real(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SubmissionService) Create(ctx context.Context, assignmentID uuid.UUID, submitter string, fileName string, content io.Reader) (*domain.Submission, error) {
	submitter = strings.TrimSpace(submitter)
	if submitter == "" {
		return nil, fmt.Errorf("submitter is required: %w", errs.ErrInvalidArgument)
	}

	assignment, err := s.assignment(ctx, s.store.Repos(), assignmentID)
	if err != nil {
		return nil, err
	}

	file, err := s.saveFile(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	submission := &domain.Submission{
		ID:           uuid.New(),
		AssignmentID: assignment.ID,
		Submitter:    submitter,
		FileID:       file.ID,
		State:        lifecycle.InitialState(assignment),
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	err = s.store.WithinTx(ctx, func(repos secondary.Repositories) error {
		if err := repos.Submissions.CreateFile(ctx, file); err != nil {
			return err
		}
		return repos.Submissions.Create(ctx, submission)
	})
	if err != nil {
		s.discard(ctx, file)
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.Info("Submission created",
		"submissionId", submission.ID,
		"assignmentId", assignment.ID,
		"state", submission.State)
	return submission, nil
}

func (s *SubmissionService) Resubmit(ctx context.Context, id uuid.UUID, fileName string, content io.Reader) (*domain.Submission, error) {
	// fail early before storing the upload
	current, err := s.load(ctx, s.store.Repos(), id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanResubmit(current.State) {
		return nil, fmt.Errorf("%w: resubmit in state %s", errs.ErrInvalidTransition, current.State)
	}

	file, err := s.saveFile(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, id, "resubmit", func(repos secondary.Repositories, sub *domain.Submission) (bool, error) {
		assignment, err := s.assignment(ctx, repos, sub.AssignmentID)
		if err != nil {
			return false, err
		}
		next, err := lifecycle.Resubmit(assignment, sub.State)
		if err != nil {
			return false, err
		}
		if err := repos.Submissions.CreateFile(ctx, file); err != nil {
			return false, fmt.Errorf("failed to store submission file: %w", err)
		}
		return repos.Submissions.ReplaceFile(ctx, sub.ID, sub.Version, file.ID, next, s.clock.Now())
	})
	if err != nil {
		s.discard(ctx, file)
		return nil, err
	}
	return updated, nil
}

func (s *SubmissionService) Withdraw(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return s.move(ctx, id, "withdraw", func(_ *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
		return lifecycle.Withdraw(state)
	})
}

func (s *SubmissionService) Retest(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return s.move(ctx, id, "retest", lifecycle.Retest)
}

func (s *SubmissionService) StartGrading(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return s.move(ctx, id, "start grading", func(_ *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
		return lifecycle.StartGrading(state)
	})
}

func (s *SubmissionService) FinishGrading(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return s.move(ctx, id, "finish grading", func(_ *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
		return lifecycle.FinishGrading(state)
	})
}

func (s *SubmissionService) Close(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return s.move(ctx, id, "close", func(_ *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
		return lifecycle.Close(state)
	})
}

// move applies a pure state transition with a conditional update
func (s *SubmissionService) move(
	ctx context.Context,
	id uuid.UUID,
	action string,
	next func(*domain.Assignment, domain.SubmissionState) (domain.SubmissionState, error),
) (*domain.Submission, error) {
	return s.transition(ctx, id, action, func(repos secondary.Repositories, sub *domain.Submission) (bool, error) {
		assignment, err := s.assignment(ctx, repos, sub.AssignmentID)
		if err != nil {
			return false, err
		}
		state, err := next(assignment, sub.State)
		if err != nil {
			return false, err
		}
		return repos.Submissions.UpdateState(ctx, sub.ID, sub.Version, state, s.clock.Now())
	})
}

// transition reloads the submission and retries apply while it loses races
func (s *SubmissionService) transition(
	ctx context.Context,
	id uuid.UUID,
	action string,
	apply func(secondary.Repositories, *domain.Submission) (bool, error),
) (*domain.Submission, error) {
	var updated *domain.Submission
	err := retry.OnConflict(ctx, s.attempts, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(repos secondary.Repositories) error {
			sub, err := s.load(ctx, repos, id)
			if err != nil {
				return err
			}
			ok, err := apply(repos, sub)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("submission %s changed concurrently: %w", id, errs.ErrPersistenceConflict)
			}
			updated, err = s.load(ctx, repos, id)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("Submission transition refused", "submissionId", id, "action", action, "error", err)
		return nil, err
	}

	s.logger.Info("Submission transitioned", "submissionId", id, "action", action, "state", updated.State)
	return updated, nil
}

func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionDetails, error) {
	repos := s.store.Repos()
	sub, err := s.load(ctx, repos, id)
	if err != nil {
		return nil, err
	}

	file, err := repos.Submissions.GetFile(ctx, sub.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission file: %w", err)
	}

	results, err := repos.Results.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test results: %w", err)
	}

	return &domain.SubmissionDetails{
		Submission: sub,
		File:       file,
		Results:    results,
	}, nil
}

func (s *SubmissionService) List(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.Submission, error) {
	for _, state := range filter.States {
		if !state.Valid() {
			return nil, fmt.Errorf("unknown state %q: %w", state, errs.ErrInvalidArgument)
		}
	}
	submissions, err := s.store.Repos().Submissions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionService) FixChecksums(ctx context.Context) (int, error) {
	repos := s.store.Repos()
	files, err := repos.Submissions.ListFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list submission files: %w", err)
	}

	fixed := 0
	for _, file := range files {
		sum, err := s.artifacts.Checksum(ctx, file.Path)
		if err != nil {
			s.logger.Warn("Cannot hash submission file", "fileId", file.ID, "path", file.Path, "error", err)
			continue
		}
		if sum == file.Checksum {
			continue
		}
		if err := repos.Submissions.UpdateFileChecksum(ctx, file.ID, sum); err != nil {
			return fixed, fmt.Errorf("failed to update checksum: %w", err)
		}
		s.logger.Info("Checksum updated", "fileId", file.ID, "path", file.Path)
		fixed++
	}
	return fixed, nil
}

func (s *SubmissionService) saveFile(ctx context.Context, fileName string, content io.Reader) (*domain.SubmissionFile, error) {
	if content == nil {
		return nil, fmt.Errorf("file is required: %w", errs.ErrInvalidArgument)
	}
	stored, checksum, err := s.artifacts.Save(ctx, fileName, content)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	return &domain.SubmissionFile{
		ID:           uuid.New(),
		Path:         stored,
		OriginalName: path.Base(stored),
		Checksum:     checksum,
		CreatedAt:    s.clock.Now(),
	}, nil
}

// discard removes an upload whose submission change was rolled back
func (s *SubmissionService) discard(ctx context.Context, file *domain.SubmissionFile) {
	if err := s.artifacts.Remove(ctx, file.Path); err != nil {
		s.logger.Warn("Failed to remove orphaned upload", "path", file.Path, "error", err)
	}
}

func (s *SubmissionService) load(ctx context.Context, repos secondary.Repositories, id uuid.UUID) (*domain.Submission, error) {
	sub, err := repos.Submissions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, errs.ErrNotFound)
	}
	return sub, nil
}

func (s *SubmissionService) assignment(ctx context.Context, repos secondary.Repositories, id uuid.UUID) (*domain.Assignment, error) {
	a, err := repos.Assignments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("assignment %s: %w", id, errs.ErrNotFound)
	}
	return a, nil
}
