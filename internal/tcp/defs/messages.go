package defs

import (
	"encoding/json"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

// Protocol data structures
type (
	// RegisterData authenticates the connection and registers the machine
	RegisterData struct {
		Secret      string          `json:"secret"`
		ID          uuid.UUID       `json:"id"`
		Host        string          `json:"host"`
		Fingerprint string          `json:"fingerprint"`
		Config      json.RawMessage `json:"config,omitempty"`
	}

	// FetchData asks for the next job of the registered machine
	FetchData struct {
		Fingerprint string `json:"fingerprint"`
	}

	// ResultData reports a finished job
	ResultData struct {
		JobID        uuid.UUID    `json:"job_id"`
		SubmissionID uuid.UUID    `json:"submission_id"`
		Stage        domain.Stage `json:"stage"`
		Success      bool         `json:"success"`
		Payload      string       `json:"payload"`
		PerfData     string       `json:"perf_data,omitempty"`
	}

	// AckData confirms a result or heartbeat
	AckData struct {
		JobID uuid.UUID `json:"job_id"`
	}

	// ErrorData represents data sent with error responses
	ErrorData struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)
