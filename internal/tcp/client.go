package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

// ProtocolError is an error frame sent by the coordinator
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("coordinator error %d: %s", e.Code, e.Message)
}

// Unwrap maps protocol codes back onto the service sentinels
func (e *ProtocolError) Unwrap() error {
	switch e.Code {
	case defs.CodeForbidden:
		return errs.ErrAuthenticationFailure
	case defs.CodeStale:
		return errs.ErrStaleOrUnauthorizedResult
	case defs.CodeUnavailable:
		return errs.ErrPersistenceConflict
	case defs.CodeBadRequest:
		return errs.ErrInvalidArgument
	default:
		return nil
	}
}

// Client speaks the executor protocol over a single connection.
// Requests are serialized; each one waits for its reply.
type Client struct {
	conn   net.Conn
	secret string
	mu     sync.Mutex
}

// Dial connects to a coordinator
func Dial(ctx context.Context, address, secret string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return NewClient(conn, secret), nil
}

// NewClient wraps an established connection
func NewClient(conn net.Conn, secret string) *Client {
	return &Client{conn: conn, secret: secret}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Register authenticates the connection and registers the machine
func (c *Client) Register(ctx context.Context, registration domain.MachineRegistration) (*domain.TestMachine, error) {
	data := defs.RegisterData{
		Secret:      c.secret,
		ID:          registration.ID,
		Host:        registration.Host,
		Fingerprint: registration.Fingerprint,
	}
	if registration.Config != "" {
		data.Config = json.RawMessage(registration.Config)
	}

	msgType, payload, err := c.roundTrip(ctx, defs.MsgRegister, data)
	if err != nil {
		return nil, err
	}
	if msgType != defs.MsgRegistered {
		return nil, fmt.Errorf("unexpected reply %d to registration", msgType)
	}

	var m domain.TestMachine
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to decode registration reply: %w", err)
	}
	return &m, nil
}

// Heartbeat marks the machine online without asking for work
func (c *Client) Heartbeat(ctx context.Context) error {
	msgType, _, err := c.roundTrip(ctx, defs.MsgHeartbeat, nil)
	if err != nil {
		return err
	}
	if msgType != defs.MsgAck {
		return fmt.Errorf("unexpected reply %d to heartbeat", msgType)
	}
	return nil
}

// FetchJob returns the next job, or nil when there is nothing to do
func (c *Client) FetchJob(ctx context.Context, fingerprint string) (*domain.JobDescriptor, error) {
	msgType, payload, err := c.roundTrip(ctx, defs.MsgFetch, defs.FetchData{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}

	switch msgType {
	case defs.MsgNoJob:
		return nil, nil
	case defs.MsgJob:
		var job domain.JobDescriptor
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		return &job, nil
	default:
		return nil, fmt.Errorf("unexpected reply %d to fetch", msgType)
	}
}

// SubmitResult reports a finished job
func (c *Client) SubmitResult(ctx context.Context, report domain.ResultReport) error {
	msgType, _, err := c.roundTrip(ctx, defs.MsgResult, defs.ResultData{
		JobID:        report.JobID,
		SubmissionID: report.SubmissionID,
		Stage:        report.Stage,
		Success:      report.Success,
		Payload:      report.Payload,
		PerfData:     report.PerfData,
	})
	if err != nil {
		return err
	}
	if msgType != defs.MsgAck {
		return fmt.Errorf("unexpected reply %d to result", msgType)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, msgType byte, body interface{}) (byte, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defs.IdleTimeout)
	}
	_ = c.conn.SetDeadline(deadline)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	if err := connectionmanager.SendMessage(c.conn, msgType, payload); err != nil {
		return 0, nil, err
	}

	replyType, reply, err := connectionmanager.ReadMessage(c.conn)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read reply: %w", err)
	}

	switch replyType {
	case defs.MsgRegistrationRequired:
		return 0, nil, errs.ErrRegistrationRequired
	case defs.MsgError:
		var data defs.ErrorData
		if err := json.Unmarshal(reply, &data); err != nil {
			return 0, nil, fmt.Errorf("failed to decode error reply: %w", err)
		}
		return 0, nil, &ProtocolError{Code: data.Code, Message: data.Message}
	}
	return replyType, reply, nil
}
