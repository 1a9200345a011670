package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb"
	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/testutil"
)

var testConfig = &config.ExecutorConfig{
	ReservationTimeout: 5 * time.Minute,
	ResultGrace:        time.Minute,
	RetryAttempts:      3,
}

func newTestService(t *testing.T) (*IngestService, *sqldb.Store, *clock.FakeClock) {
	t.Helper()
	store, _ := testutil.NewStore(t)
	fake := clock.Fake(testutil.Epoch)
	return NewIngestService(store, testConfig, logging.NewNopLogger(), WithClock(fake)), store, fake
}

func reserve(t *testing.T, store *sqldb.Store, s *domain.Submission, machineID uuid.UUID, stage domain.Stage) uuid.UUID {
	t.Helper()
	current := testutil.Reload(t, store, s.ID)
	jobID := uuid.New()
	ok, err := store.Repos().Submissions.Reserve(context.Background(), domain.Reservation{
		SubmissionID: s.ID,
		Version:      current.Version,
		State:        current.State,
		MachineID:    machineID,
		Stage:        stage,
		JobID:        jobID,
		Until:        testutil.Epoch.Add(5 * time.Minute),
	}, testutil.Epoch.Add(10*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	return jobID
}

func report(jobID uuid.UUID, s *domain.Submission, stage domain.Stage, success bool) domain.ResultReport {
	return domain.ResultReport{
		JobID:        jobID,
		SubmissionID: s.ID,
		Stage:        stage,
		Success:      success,
		Payload:      "output",
	}
}

func TestSubmitResultAdvancesPipeline(t *testing.T) {
	tests := []struct {
		name     string
		compile  bool
		validity string
		full     string
		state    domain.SubmissionState
		stage    domain.Stage
		success  bool
		want     domain.SubmissionState
	}{
		{"compile passes to validity", true, "v.sh", "", domain.StateTestCompilePending, domain.StageCompile, true, domain.StateTestValidityPending},
		{"compile passes to full when no validity", true, "", "f.sh", domain.StateTestCompilePending, domain.StageCompile, true, domain.StateTestFullPending},
		{"compile fails", true, "v.sh", "", domain.StateTestCompilePending, domain.StageCompile, false, domain.StateTestCompileFailed},
		{"validity passes to grading", false, "v.sh", "", domain.StateTestValidityPending, domain.StageValidity, true, domain.StateGradingPending},
		{"full fails", false, "", "f.sh", domain.StateTestFullPending, domain.StageFull, false, domain.StateTestFullFailed},
		{"retest closes", false, "", "f.sh", domain.StateClosedTestPending, domain.StageFull, false, domain.StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			ctx := context.Background()
			a := testutil.Assignment(t, store, tt.compile, tt.validity, tt.full)
			m := testutil.Machine(t, store, "fp")
			s := testutil.Submission(t, store, a.ID, tt.state, testutil.Epoch)
			jobID := reserve(t, store, s, m.ID, tt.stage)

			require.NoError(t, svc.SubmitResult(ctx, m.ID, report(jobID, s, tt.stage, tt.success)))

			got := testutil.Reload(t, store, s.ID)
			assert.Equal(t, tt.want, got.State)
			assert.False(t, got.ReservationID.Valid)

			stored, err := store.Repos().Results.GetByJob(ctx, jobID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, tt.success, stored.Success)
			assert.Equal(t, s.FileID, stored.FileID)
			assert.Equal(t, "output", stored.Result)
		})
	}
}

func TestSubmitResultRejectsMismatch(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	holder := testutil.Machine(t, store, "fp")
	stranger := testutil.Machine(t, store, "fp")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	jobID := reserve(t, store, s, holder.ID, domain.StageCompile)

	err := svc.SubmitResult(ctx, stranger.ID, report(jobID, s, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	err = svc.SubmitResult(ctx, holder.ID, report(jobID, s, domain.StageFull, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	wrong := *s
	wrong.ID = uuid.New()
	err = svc.SubmitResult(ctx, holder.ID, report(jobID, &wrong, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	err = svc.SubmitResult(ctx, holder.ID, report(uuid.New(), s, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	got := testutil.Reload(t, store, s.ID)
	assert.Equal(t, domain.StateTestCompilePending, got.State)
	assert.Equal(t, jobID, got.ReservationID.UUID)

	history, err := store.Repos().Results.ListBySubmission(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitResultIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	m := testutil.Machine(t, store, "fp")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	jobID := reserve(t, store, s, m.ID, domain.StageCompile)

	require.NoError(t, svc.SubmitResult(ctx, m.ID, report(jobID, s, domain.StageCompile, true)))
	require.NoError(t, svc.SubmitResult(ctx, m.ID, report(jobID, s, domain.StageCompile, true)))

	err := svc.SubmitResult(ctx, m.ID, report(jobID, s, domain.StageCompile, false))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	history, err := store.Repos().Results.ListBySubmission(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, domain.StateGradingPending, testutil.Reload(t, store, s.ID).State)
}

func TestSubmitResultAfterExpiry(t *testing.T) {
	svc, store, fake := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	first := testutil.Machine(t, store, "fp")
	second := testutil.Machine(t, store, "fp")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)

	// expired but not handed out again: still accepted
	jobID := reserve(t, store, s, first.ID, domain.StageCompile)
	fake.Advance(10 * time.Minute)
	require.NoError(t, svc.SubmitResult(ctx, first.ID, report(jobID, s, domain.StageCompile, true)))

	// expired and re-reserved: the old holder is stale
	s2 := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	oldJob := reserve(t, store, s2, first.ID, domain.StageCompile)
	newJob := reserve(t, store, s2, second.ID, domain.StageCompile)

	err := svc.SubmitResult(ctx, first.ID, report(oldJob, s2, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)
	require.NoError(t, svc.SubmitResult(ctx, second.ID, report(newJob, s2, domain.StageCompile, false)))
	assert.Equal(t, domain.StateTestCompileFailed, testutil.Reload(t, store, s2.ID).State)
}

func TestSubmitResultAfterResubmitIsStale(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	m := testutil.Machine(t, store, "fp")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	jobID := reserve(t, store, s, m.ID, domain.StageCompile)

	current := testutil.Reload(t, store, s.ID)
	ok, err := store.Repos().Submissions.ReplaceFile(ctx, s.ID, current.Version, s.FileID, domain.StateTestCompilePending, testutil.Epoch)
	require.NoError(t, err)
	require.True(t, ok)

	err = svc.SubmitResult(ctx, m.ID, report(jobID, s, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)
}

// flakyStore loses the first n transactions to a concurrent writer
type flakyStore struct {
	secondary.Store
	failures int
	calls    int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(repos secondary.Repositories) error) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("simulated: %w", errs.ErrPersistenceConflict)
	}
	return f.Store.WithinTx(ctx, fn)
}

func TestSubmitResultRetriesConflicts(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	m := testutil.Machine(t, store, "fp")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	jobID := reserve(t, store, s, m.ID, domain.StageCompile)

	flaky := &flakyStore{Store: store, failures: 2}
	svc := NewIngestService(flaky, testConfig, logging.NewNopLogger())
	require.NoError(t, svc.SubmitResult(ctx, m.ID, report(jobID, s, domain.StageCompile, true)))
	assert.Equal(t, 3, flaky.calls)

	s2 := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	jobID2 := reserve(t, store, s2, m.ID, domain.StageCompile)
	flaky = &flakyStore{Store: store, failures: 5}
	svc = NewIngestService(flaky, testConfig, logging.NewNopLogger())
	err := svc.SubmitResult(ctx, m.ID, report(jobID2, s2, domain.StageCompile, true))
	assert.ErrorIs(t, err, errs.ErrPersistenceConflict)
	assert.Equal(t, 3, flaky.calls)
}
