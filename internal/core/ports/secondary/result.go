package secondary

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// ResultRepository stores executor results. Records are append-only.
type ResultRepository interface {
	// Insert saves a result. A second result for the same job id fails with errs.ErrPersistenceConflict.
	Insert(ctx context.Context, result *domain.SubmissionTestResult) error

	// GetByJob retrieves the result recorded for a job, nil if none
	GetByJob(ctx context.Context, jobID uuid.UUID) (*domain.SubmissionTestResult, error)

	// ListBySubmission returns the result history of a submission, oldest first
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*domain.SubmissionTestResult, error)
}
