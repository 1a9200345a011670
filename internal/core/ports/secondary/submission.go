package secondary

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

type SubmissionRepository interface {
	// Create inserts a new submission
	Create(ctx context.Context, submission *domain.Submission) error

	// Get retrieves a submission by ID, nil if missing
	Get(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// GetByReservation retrieves the submission currently reserved under jobID, nil if none
	GetByReservation(ctx context.Context, jobID uuid.UUID) (*domain.Submission, error)

	// List returns submissions matching filter, oldest first
	List(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.Submission, error)

	// ListCandidates returns dispatchable submissions for a machine in FIFO order:
	// in one of states, allowed by assignment affinity, and unreserved or expired at now
	ListCandidates(ctx context.Context, machineID uuid.UUID, states []domain.SubmissionState, now time.Time, limit int) ([]*domain.Submission, error)

	// Reserve claims a submission if it is still at the given version and unreserved or expired at now
	Reserve(ctx context.Context, reservation domain.Reservation, now time.Time) (bool, error)

	// CompleteReservation moves a reserved submission to next and clears the reservation,
	// only if version and reservation id still match
	CompleteReservation(ctx context.Context, id uuid.UUID, version int64, jobID uuid.UUID, next domain.SubmissionState, now time.Time) (bool, error)

	// UpdateState moves a submission to next at the given version and drops any reservation
	UpdateState(ctx context.Context, id uuid.UUID, version int64, next domain.SubmissionState, now time.Time) (bool, error)

	// ReplaceFile points a submission at a new file, resets its state and drops any reservation
	ReplaceFile(ctx context.Context, id uuid.UUID, version int64, fileID uuid.UUID, next domain.SubmissionState, now time.Time) (bool, error)

	// ReleaseExpired clears reservations that ended before cutoff
	ReleaseExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// CreateFile stores a new submission file record
	CreateFile(ctx context.Context, file *domain.SubmissionFile) error

	// GetFile retrieves a submission file, nil if missing
	GetFile(ctx context.Context, id uuid.UUID) (*domain.SubmissionFile, error)

	// ListFiles returns every submission file
	ListFiles(ctx context.Context) ([]*domain.SubmissionFile, error)

	// UpdateFileChecksum overwrites a stored checksum
	UpdateFileChecksum(ctx context.Context, id uuid.UUID, checksum string) error
}
