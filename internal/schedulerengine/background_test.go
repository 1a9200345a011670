package schedulerengine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/opensubmit.net/internal/adapter/filestore"
	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/clock"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/testutil"
)

type countingReleaser struct {
	calls    atomic.Int64
	released int64
	err      error
}

func (c *countingReleaser) ReleaseExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return c.released, c.err
}

func TestSweepExpiredReservations(t *testing.T) {
	releaser := &countingReleaser{released: 2}
	engine := NewSchedulerEngine(&config.SweeperConfig{SweepInterval: time.Second}, releaser, logging.NewNopLogger())
	assert.Equal(t, int64(2), engine.SweepExpiredReservations(context.Background()))

	releaser.err = errors.New("db down")
	assert.Equal(t, int64(0), engine.SweepExpiredReservations(context.Background()))
	assert.Equal(t, int64(2), releaser.calls.Load())
}

func TestSweeperStopsWithContext(t *testing.T) {
	releaser := &countingReleaser{}
	engine := NewSchedulerEngine(&config.SweeperConfig{SweepInterval: 5 * time.Millisecond}, releaser, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	engine.StartReservationSweeper(ctx)

	assert.Eventually(t, func() bool { return releaser.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	engine.Wait()

	after := releaser.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, releaser.calls.Load())
}

func TestSweepLogsReleaseOnce(t *testing.T) {
	store, _ := testutil.NewStore(t)
	presence, _ := testutil.NewPresence(t)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.NewLogger(core)
	fake := clock.Fake(testutil.Epoch)
	cfg := &config.ExecutorConfig{ReservationTimeout: 5 * time.Minute, ResultGrace: time.Minute, RetryAttempts: 3}

	machines := machine.NewMachineService(store, presence, cfg, logger, machine.WithClock(fake))
	svc := dispatch.NewDispatchService(store, filestore.NewLocalStore(t.TempDir(), logger), machines, cfg, logger, dispatch.WithClock(fake))

	a := testutil.Assignment(t, store, true, "", "")
	s := testutil.Submission(t, store, a.ID, domain.StateTestCompilePending, testutil.Epoch)
	m := testutil.Machine(t, store, "fp")
	ok, err := store.Repos().Submissions.Reserve(context.Background(), domain.Reservation{
		SubmissionID: s.ID, Version: s.Version, State: s.State, MachineID: m.ID,
		Stage: domain.StageCompile, JobID: uuid.New(), Until: testutil.Epoch.Add(time.Minute),
	}, testutil.Epoch)
	require.NoError(t, err)
	require.True(t, ok)

	fake.Advance(3 * time.Minute)
	engine := NewSchedulerEngine(&config.SweeperConfig{SweepInterval: time.Second}, svc, logger)
	assert.Equal(t, int64(1), engine.SweepExpiredReservations(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Released expired reservations").Len())
}
