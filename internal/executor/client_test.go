package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/domain"
	executorapi "gitlab.com/opensubmit.net/internal/handlers/executor"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

func TestHTTPClientMapsStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, errs.ErrAuthenticationFailure},
		{http.StatusPreconditionRequired, errs.ErrRegistrationRequired},
		{http.StatusConflict, errs.ErrStaleOrUnauthorizedResult},
		{http.StatusServiceUnavailable, errs.ErrPersistenceConflict},
		{http.StatusNotFound, errs.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client, err := NewHTTPClient(server.URL, "s", uuid.New())
			require.NoError(t, err)
			_, err = client.FetchJob(context.Background(), "fp")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPClientSendsHeaders(t *testing.T) {
	machineID := uuid.New()
	var gotSecret, gotMachine string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(executorapi.SecretHeader)
		gotMachine = r.Header.Get(executorapi.MachineIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL+"/", "s3cret", machineID)
	require.NoError(t, err)
	job, err := client.FetchJob(context.Background(), "fp")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, machineID.String(), gotMachine)
}

func TestHTTPClientReportsUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, "s", uuid.New())
	require.NoError(t, err)
	err = client.SubmitResult(context.Background(), domainReport())
	assert.ErrorContains(t, err, "500")
	assert.ErrorContains(t, err, "internal error")
}

func domainReport() domain.ResultReport {
	return domain.ResultReport{JobID: uuid.New(), SubmissionID: uuid.New(), Stage: domain.StageCompile}
}
