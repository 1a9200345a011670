package tcp

import (
	"context"
	"errors"
	"net"
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
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/core/services/submission"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
	"gitlab.com/opensubmit.net/internal/testutil"
)

const secret = "s3cret"

type fixture struct {
	server      *TCPServer
	store       *sqldb.Store
	machines    *machine.MachineService
	submissions *submission.SubmissionService
}

func newFixture(t *testing.T, opts ...TCPServerOption) *fixture {
	t.Helper()
	store, _ := testutil.NewStore(t)
	presence, _ := testutil.NewPresence(t)
	logger := logging.NewNopLogger()
	fake := clock.Fake(testutil.Epoch)
	cfg := &config.ExecutorConfig{
		SharedSecret:       secret,
		ReservationTimeout: 5 * time.Minute,
		ResultGrace:        time.Minute,
		RetryAttempts:      3,
	}
	artifacts := filestore.NewLocalStore(t.TempDir(), logger)

	machines := machine.NewMachineService(store, presence, cfg, logger, machine.WithClock(fake))
	dispatcher := dispatch.NewDispatchService(store, artifacts, machines, cfg, logger, dispatch.WithClock(fake))
	ingestor := ingest.NewIngestService(store, cfg, logger, ingest.WithClock(fake))

	return &fixture{
		server:      NewTCPServer(machines, dispatcher, ingestor, logger, opts...),
		store:       store,
		machines:    machines,
		submissions: submission.NewSubmissionService(store, artifacts, cfg, logger, submission.WithClock(fake)),
	}
}

// pipe serves one in-memory connection and returns a client for it
func (f *fixture) pipe(t *testing.T, key string) (*Client, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.server.ServeConn(serverSide)
	}()
	t.Cleanup(func() {
		_ = clientSide.Close()
		<-done
	})
	return NewClient(clientSide, key), clientSide
}

func registration(fingerprint string) domain.MachineRegistration {
	return domain.MachineRegistration{ID: uuid.New(), Host: "runner", Fingerprint: fingerprint, Config: `{"os":"linux"}`}
}

func TestFetchRequiresRegistration(t *testing.T) {
	f := newFixture(t)
	client, _ := f.pipe(t, secret)

	_, err := client.FetchJob(context.Background(), "fp")
	assert.ErrorIs(t, err, errs.ErrRegistrationRequired)

	err = client.SubmitResult(context.Background(), domain.ResultReport{JobID: uuid.New()})
	assert.ErrorIs(t, err, errs.ErrRegistrationRequired)
}

func TestRegisterRejectsBadSecret(t *testing.T) {
	f := newFixture(t)
	client, _ := f.pipe(t, "wrong")

	_, err := client.Register(context.Background(), registration("fp"))
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, defs.CodeForbidden, protoErr.Code)
	assert.ErrorIs(t, err, errs.ErrAuthenticationFailure)

	// the server hangs up after a failed authentication
	_, err = client.FetchJob(context.Background(), "fp")
	assert.Error(t, err)
}

func TestRegisterAndHeartbeat(t *testing.T) {
	f := newFixture(t)
	client, _ := f.pipe(t, secret)
	ctx := context.Background()

	reg := registration("fp")
	m, err := client.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, m.ID)
	assert.True(t, m.Enabled)
	assert.Equal(t, 1, f.server.ConnectedMachines())

	require.NoError(t, client.Heartbeat(ctx))
	online, err := f.machines.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, reg.ID, online[0].ID)

	job, err := client.FetchJob(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, job)

	_, err = client.FetchJob(ctx, "other")
	assert.ErrorIs(t, err, errs.ErrRegistrationRequired)
}

func TestJobRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.Assignment(t, f.store, true, "", "")
	sub, err := f.submissions.Create(ctx, a.ID, "alice", "hello.zip", strings.NewReader("zipdata"))
	require.NoError(t, err)

	holder, _ := f.pipe(t, secret)
	_, err = holder.Register(ctx, registration("fp"))
	require.NoError(t, err)
	other, _ := f.pipe(t, secret)
	_, err = other.Register(ctx, registration("fp"))
	require.NoError(t, err)

	job, err := holder.FetchJob(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, sub.ID, job.SubmissionID)
	assert.Equal(t, domain.StageCompile, job.Stage)

	// nothing left for the second machine
	none, err := other.FetchJob(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, none)

	report := domain.ResultReport{JobID: job.JobID, SubmissionID: sub.ID, Stage: domain.StageCompile, Success: true, Payload: "ok"}

	err = other.SubmitResult(ctx, report)
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, defs.CodeStale, protoErr.Code)
	assert.ErrorIs(t, err, errs.ErrStaleOrUnauthorizedResult)

	require.NoError(t, holder.SubmitResult(ctx, report))
	// a retried delivery is acknowledged again
	require.NoError(t, holder.SubmitResult(ctx, report))

	assert.Equal(t, domain.StateGradingPending, testutil.Reload(t, f.store, sub.ID).State)
}

func TestUnknownMessageKeepsConnection(t *testing.T) {
	f := newFixture(t)
	client, conn := f.pipe(t, secret)

	done := make(chan error, 1)
	go func() { done <- connectionmanager.SendMessage(conn, 0x42, nil) }()
	msgType, payload, err := connectionmanager.ReadMessage(conn)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, defs.MsgError, msgType)
	assert.Contains(t, string(payload), "unknown message type")

	_, err = client.Register(context.Background(), registration("fp"))
	assert.NoError(t, err)
}

func TestStopClosesConnections(t *testing.T) {
	f := newFixture(t, WithAddress("127.0.0.1:0"))
	require.NoError(t, f.server.Start())

	ctx := context.Background()
	client, err := Dial(ctx, f.server.Addr().String(), secret)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Register(ctx, registration("fp"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.ConnectedMachines())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.server.Stop(stopCtx))
	assert.Equal(t, 0, f.server.ConnectedMachines())

	_, err = client.FetchJob(ctx, "fp")
	assert.Error(t, err)
}
