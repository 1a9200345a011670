package dispatch

import (
	"context"
	"io"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// IDispatchService hands out test jobs to executors
type IDispatchService interface {
	// RequestJob reserves the oldest eligible (submission, stage) for the machine.
	// A nil descriptor with a nil error means there is no work.
	RequestJob(ctx context.Context, machineID uuid.UUID, fingerprint string) (*domain.JobDescriptor, error)

	// OpenArtifact streams the submission file of a job to its reservation holder
	OpenArtifact(ctx context.Context, machineID, jobID uuid.UUID) (string, io.ReadCloser, error)

	// OpenScript streams the stage test script of a job to its reservation holder
	OpenScript(ctx context.Context, machineID, jobID uuid.UUID) (string, io.ReadCloser, error)

	// ReleaseExpired frees reservations whose result grace period has passed
	ReleaseExpired(ctx context.Context) (int64, error)
}
