package ingest

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// IIngestService records executor results and advances submissions
type IIngestService interface {
	// SubmitResult accepts a result from the machine holding the job's reservation.
	// Replaying an already recorded result is a no-op.
	SubmitResult(ctx context.Context, machineID uuid.UUID, report domain.ResultReport) error
}
