package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
	executorapi "gitlab.com/opensubmit.net/internal/handlers/executor"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

// Coordinator is the control channel to the server
type Coordinator interface {
	Register(ctx context.Context, registration domain.MachineRegistration) (*domain.TestMachine, error)
	FetchJob(ctx context.Context, fingerprint string) (*domain.JobDescriptor, error)
	SubmitResult(ctx context.Context, report domain.ResultReport) error
}

// Downloader fetches job files
type Downloader interface {
	Download(ctx context.Context, path string, w io.Writer) error
}

// HTTPClient talks to the executor HTTP API
type HTTPClient struct {
	baseURL   *url.URL
	secret    string
	machineID uuid.UUID
	http      *http.Client
}

var (
	_ Coordinator = (*HTTPClient)(nil)
	_ Downloader  = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL, secret string, machineID uuid.UUID) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	return &HTTPClient{
		baseURL:   u,
		secret:    secret,
		machineID: machineID,
		http:      &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *HTTPClient) Register(ctx context.Context, registration domain.MachineRegistration) (*domain.TestMachine, error) {
	body := executorapi.RegisterMachineRequest{
		ID:          registration.ID,
		Host:        registration.Host,
		Fingerprint: registration.Fingerprint,
	}
	if registration.Config != "" {
		body.Config = json.RawMessage(registration.Config)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/executor/machines", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp)
	}

	var m domain.TestMachine
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode machine: %w", err)
	}
	return &m, nil
}

func (c *HTTPClient) FetchJob(ctx context.Context, fingerprint string) (*domain.JobDescriptor, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/executor/jobs/fetch", executorapi.FetchJobRequest{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var job domain.JobDescriptor
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		return &job, nil
	default:
		return nil, statusError(resp)
	}
}

func (c *HTTPClient) SubmitResult(ctx context.Context, report domain.ResultReport) error {
	path := "/api/executor/jobs/" + report.JobID.String() + "/result"
	resp, err := c.do(ctx, http.MethodPost, path, executorapi.SubmitResultRequest{
		SubmissionID: report.SubmissionID,
		Stage:        report.Stage,
		Success:      report.Success,
		Payload:      report.Payload,
		PerfData:     report.PerfData,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Download streams a job file; path is the URL from the job descriptor
func (c *HTTPClient) Download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to download %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(executorapi.SecretHeader, c.secret)
	if c.machineID != uuid.Nil {
		req.Header.Set(executorapi.MachineIDHeader, c.machineID.String())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	return resp, nil
}

// statusError maps an API status onto the service sentinels
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	var sentinel error
	switch resp.StatusCode {
	case http.StatusForbidden:
		sentinel = errs.ErrAuthenticationFailure
	case http.StatusPreconditionRequired:
		sentinel = errs.ErrRegistrationRequired
	case http.StatusConflict:
		sentinel = errs.ErrStaleOrUnauthorizedResult
	case http.StatusServiceUnavailable:
		sentinel = errs.ErrPersistenceConflict
	case http.StatusNotFound:
		sentinel = errs.ErrNotFound
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %w", resp.StatusCode, sentinel)
}
