package submission

import (
	"context"
	"io"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// ISubmissionService manages uploads and the staff-driven part of the lifecycle
type ISubmissionService interface {
	// Create stores the upload and starts the test pipeline
	Create(ctx context.Context, assignmentID uuid.UUID, submitter string, fileName string, content io.Reader) (*domain.Submission, error)

	// Resubmit replaces the file and restarts the pipeline. Outstanding jobs become stale.
	Resubmit(ctx context.Context, id uuid.UUID, fileName string, content io.Reader) (*domain.Submission, error)

	Withdraw(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// Retest queues a new full test for a closed submission
	Retest(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	StartGrading(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	FinishGrading(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	Close(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// Get returns the submission with its file and result history
	Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionDetails, error)

	List(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.Submission, error)

	// FixChecksums re-hashes every stored file and returns how many checksums changed
	FixChecksums(ctx context.Context) (int, error)
}
