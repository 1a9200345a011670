package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
	"gitlab.com/opensubmit.net/internal/tcp/connectionmanager"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*JobResultHandler)(nil)

// JobResultHandler handles job result messages
type JobResultHandler struct {
	IngestService ingest.IIngestService
	Logger        primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *JobResultHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, machineID *string) error {
	id, ok := boundMachine(machineID)
	if !ok {
		return connectionmanager.SendMessage(conn, defs.MsgRegistrationRequired, nil)
	}

	var resultData defs.ResultData
	if err := json.Unmarshal(payload, &resultData); err != nil {
		h.Logger.Error("Failed to parse job result", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeBadRequest, "invalid job result data")
		return err
	}

	err := h.IngestService.SubmitResult(ctx, id, domain.ResultReport{
		JobID:        resultData.JobID,
		SubmissionID: resultData.SubmissionID,
		Stage:        resultData.Stage,
		Success:      resultData.Success,
		Payload:      resultData.Payload,
		PerfData:     resultData.PerfData,
	})
	if err != nil {
		h.Logger.Error("Failed to handle job result", "jobId", resultData.JobID, "machineId", id, "error", err)
		connectionmanager.SendErrorMessage(conn, errorCode(err), resultMessage(err))
		return nil
	}

	h.Logger.Info("Job result received", "jobId", resultData.JobID, "machineId", id, "success", resultData.Success)
	return connectionmanager.SendJSON(conn, defs.MsgAck, defs.AckData{JobID: resultData.JobID})
}

func resultMessage(err error) string {
	switch {
	case errors.Is(err, errs.ErrStaleOrUnauthorizedResult):
		return "stale result"
	case errors.Is(err, errs.ErrPersistenceConflict):
		return "try again later"
	case errors.Is(err, errs.ErrInvalidArgument):
		return "invalid job result data"
	default:
		return "failed to handle job result"
	}
}

// errorCode maps service errors onto protocol error codes
func errorCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrStaleOrUnauthorizedResult), errors.Is(err, errs.ErrInvalidTransition):
		return defs.CodeStale
	case errors.Is(err, errs.ErrPersistenceConflict):
		return defs.CodeUnavailable
	case errors.Is(err, errs.ErrInvalidArgument):
		return defs.CodeBadRequest
	case errors.Is(err, errs.ErrAuthenticationFailure):
		return defs.CodeForbidden
	default:
		return defs.CodeInternal
	}
}
