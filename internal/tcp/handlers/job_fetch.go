package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*JobFetchHandler)(nil)

// JobFetchHandler hands the next job to the registered machine
type JobFetchHandler struct {
	DispatchService dispatch.IDispatchService
	Logger          primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *JobFetchHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, machineID *string) error {
	id, ok := boundMachine(machineID)
	if !ok {
		return connectionmanager.SendMessage(conn, defs.MsgRegistrationRequired, nil)
	}

	var fetchData defs.FetchData
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fetchData); err != nil {
			h.Logger.Error("Failed to parse job fetch", "error", err)
			connectionmanager.SendErrorMessage(conn, defs.CodeBadRequest, "invalid fetch data")
			return err
		}
	}

	job, err := h.DispatchService.RequestJob(ctx, id, fetchData.Fingerprint)
	if err != nil {
		if errors.Is(err, errs.ErrRegistrationRequired) {
			return connectionmanager.SendMessage(conn, defs.MsgRegistrationRequired, nil)
		}
		h.Logger.Error("Failed to dispatch job", "machineId", id, "error", err)
		connectionmanager.SendErrorMessage(conn, errorCode(err), "failed to fetch job")
		return nil
	}

	if job == nil {
		return connectionmanager.SendMessage(conn, defs.MsgNoJob, nil)
	}

	h.Logger.Info("Job sent to machine", "jobId", job.JobID, "machineId", id, "stage", job.Stage)
	return connectionmanager.SendJSON(conn, defs.MsgJob, job)
}
