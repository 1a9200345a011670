package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/opensubmit.net/internal/static/errs"
)

func TestOnConflict(t *testing.T) {
	boom := errors.New("boom")
	conflict := fmt.Errorf("lost race: %w", errs.ErrPersistenceConflict)

	tests := []struct {
		name      string
		attempts  int
		results   []error
		wantCalls int
		wantErr   error
	}{
		{name: "success first try", attempts: 3, results: []error{nil}, wantCalls: 1},
		{name: "recovers after conflict", attempts: 3, results: []error{conflict, nil}, wantCalls: 2},
		{name: "gives up", attempts: 2, results: []error{conflict, conflict, nil}, wantCalls: 2, wantErr: errs.ErrPersistenceConflict},
		{name: "other errors are not retried", attempts: 3, results: []error{boom, nil}, wantCalls: 1, wantErr: boom},
		{name: "at least one attempt", attempts: 0, results: []error{nil}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := OnConflict(context.Background(), tt.attempts, func(ctx context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOnConflictStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := OnConflict(ctx, 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
