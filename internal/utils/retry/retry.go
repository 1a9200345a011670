// Package retry reruns operations that lost an optimistic-concurrency race.
package retry

import (
	"context"
	"errors"

	"gitlab.com/opensubmit.net/internal/static/errs"
)

// OnConflict calls fn up to attempts times while it fails with errs.ErrPersistenceConflict.
// Any other error, or the last conflict, is returned as is.
func OnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if !errors.Is(err, errs.ErrPersistenceConflict) {
			return err
		}
	}
	return err
}
