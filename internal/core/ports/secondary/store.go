package secondary

import (
	"context"
	"io"
)

// Repositories groups the repositories bound to one connection or transaction
type Repositories struct {
	Submissions SubmissionRepository
	Results     ResultRepository
	Machines    MachineRepository
	Assignments AssignmentRepository
}

// Store is the persistent source of truth
type Store interface {
	// Repos returns repositories that run outside a transaction
	Repos() Repositories

	// WithinTx runs fn in one transaction. fn must only use the repositories it is given.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// ArtifactStore keeps uploaded files and test scripts
type ArtifactStore interface {
	// Save writes content under a new path derived from name and returns the path and checksum
	Save(ctx context.Context, name string, content io.Reader) (path string, checksum string, err error)

	// Open returns a reader for a stored path
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Checksum recomputes the checksum of a stored path
	Checksum(ctx context.Context, path string) (string, error)

	// Remove deletes a stored path; a missing path is not an error
	Remove(ctx context.Context, path string) error
}
