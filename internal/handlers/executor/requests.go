package executor

import (
	"encoding/json"

	"github.com/google/uuid"

	"gitlab.com/opensubmit.net/internal/domain"
)

const (
	SecretHeader    = "X-Executor-Secret"
	MachineIDHeader = "X-Machine-ID"

	maxResultBytes = 8 << 20
)

// RegisterMachineRequest is the executor handshake
type RegisterMachineRequest struct {
	ID          uuid.UUID       `json:"id"`
	Host        string          `json:"host"`
	Fingerprint string          `json:"fingerprint"`
	Config      json.RawMessage `json:"config"`
}

// FetchJobRequest asks for the next job
type FetchJobRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// SubmitResultRequest carries the outcome of a job
type SubmitResultRequest struct {
	SubmissionID uuid.UUID    `json:"submission_id"`
	Stage        domain.Stage `json:"stage"`
	Success      bool         `json:"success"`
	Payload      string       `json:"payload"`
	PerfData     string       `json:"perf_data"`
}
