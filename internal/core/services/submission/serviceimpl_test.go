package submission

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/filestore"
	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb"
	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/testutil"
)

func newTestService(t *testing.T) (*SubmissionService, *sqldb.Store, string) {
	t.Helper()
	store, _ := testutil.NewStore(t)
	root := t.TempDir()
	logger := logging.NewNopLogger()
	svc := NewSubmissionService(store, filestore.NewLocalStore(root, logger),
		&config.ExecutorConfig{RetryAttempts: 3}, logger, WithClock(clock.Fake(testutil.Epoch)))
	return svc, store, root
}

func TestCreateStartsPipeline(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	tested := testutil.Assignment(t, store, true, "v.sh", "")
	untested := testutil.Assignment(t, store, false, "", "")

	s, err := svc.Create(ctx, tested.ID, "alice", "hello.zip", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateTestCompilePending, s.State)

	s, err = svc.Create(ctx, untested.ID, "bob", "hello.zip", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateSubmitted, s.State)

	details, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, details.File)
	assert.Equal(t, "hello.zip", details.File.OriginalName)
	assert.Len(t, details.File.Checksum, 64)
	assert.Empty(t, details.Results)

	_, err = svc.Create(ctx, uuid.New(), "carol", "x.zip", strings.NewReader("data"))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Create(ctx, tested.ID, "  ", "x.zip", strings.NewReader("data"))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestResubmitInvalidatesReservation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	m := testutil.Machine(t, store, "fp")

	s, err := svc.Create(ctx, a.ID, "alice", "v1.zip", strings.NewReader("v1"))
	require.NoError(t, err)
	ok, err := store.Repos().Submissions.Reserve(ctx, domain.Reservation{
		SubmissionID: s.ID, Version: s.Version, State: s.State, MachineID: m.ID,
		Stage: domain.StageCompile, JobID: uuid.New(), Until: testutil.Epoch.Add(time.Minute),
	}, testutil.Epoch)
	require.NoError(t, err)
	require.True(t, ok)

	updated, err := svc.Resubmit(ctx, s.ID, "v2.zip", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateTestCompilePending, updated.State)
	assert.NotEqual(t, s.FileID, updated.FileID)
	assert.False(t, updated.ReservationID.Valid)
	assert.Greater(t, updated.Version, s.Version+1)
}

func TestResubmitRefusedLeavesNoFile(t *testing.T) {
	svc, store, root := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, false, "", "")
	closed := testutil.Submission(t, store, a.ID, domain.StateClosed, testutil.Epoch)

	filesBefore, err := store.Repos().Submissions.ListFiles(ctx)
	require.NoError(t, err)

	_, err = svc.Resubmit(ctx, closed.ID, "late.zip", strings.NewReader("late"))
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	filesAfter, err := store.Repos().Submissions.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, filesAfter, len(filesBefore))
	assert.Equal(t, closed.FileID, testutil.Reload(t, store, closed.ID).FileID)

	var blobs int
	require.NoError(t, filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			blobs++
		}
		return err
	}))
	assert.Zero(t, blobs)
}

func TestWithdrawAndGradingFlow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, false, "", "full.sh")

	withdrawn := testutil.Submission(t, store, a.ID, domain.StateTestFullFailed, testutil.Epoch)
	got, err := svc.Withdraw(ctx, withdrawn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWithdrawn, got.State)

	_, err = svc.Withdraw(ctx, withdrawn.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	_, err = svc.Resubmit(ctx, withdrawn.ID, "x.zip", strings.NewReader("x"))
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	s := testutil.Submission(t, store, a.ID, domain.StateGradingPending, testutil.Epoch)
	_, err = svc.Close(ctx, s.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	got, err = svc.StartGrading(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGradingInProgress, got.State)

	got, err = svc.FinishGrading(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGradingFinished, got.State)

	got, err = svc.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, got.State)

	got, err = svc.Retest(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosedTestPending, got.State)

	_, err = svc.Withdraw(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, true, "", "")
	b := testutil.Assignment(t, store, true, "", "")
	first := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	testutil.Submission(t, store, a.ID, domain.StateClosed, testutil.Epoch.Add(time.Second))
	testutil.Submission(t, store, b.ID, domain.StateTestCompilePending, testutil.Epoch)

	list, err := svc.List(ctx, domain.SubmissionFilter{AssignmentID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	list, err = svc.List(ctx, domain.SubmissionFilter{
		AssignmentID: &a.ID,
		States:       []domain.SubmissionState{domain.StateTestCompilePending, domain.StateTestCompileFailed},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	list, err = svc.List(ctx, domain.SubmissionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.List(ctx, domain.SubmissionFilter{States: []domain.SubmissionState{"XX"}})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestFixChecksums(t *testing.T) {
	svc, store, root := newTestService(t)
	ctx := context.Background()
	a := testutil.Assignment(t, store, false, "", "")

	s, err := svc.Create(ctx, a.ID, "alice", "hello.zip", strings.NewReader("original"))
	require.NoError(t, err)

	fixed, err := svc.FixChecksums(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)

	details, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	full := filepath.Join(root, filepath.FromSlash(details.File.Path))
	require.NoError(t, os.WriteFile(full, []byte("tampered"), 0o644))

	fixed, err = svc.FixChecksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	after, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, details.File.Checksum, after.File.Checksum)
}
