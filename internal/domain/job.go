package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one ordered test phase of an assignment
type Stage string

const (
	StageCompile  Stage = "compile"
	StageValidity Stage = "validity"
	StageFull     Stage = "full"
)

// Stages lists all stages in pipeline order
var Stages = []Stage{StageCompile, StageValidity, StageFull}

func (s Stage) Valid() bool {
	switch s {
	case StageCompile, StageValidity, StageFull:
		return true
	default:
		return false
	}
}

// JobDescriptor is what an executor receives for a reserved (submission, stage)
type JobDescriptor struct {
	JobID            uuid.UUID `json:"job_id"`
	SubmissionID     uuid.UUID `json:"submission_id"`
	Stage            Stage     `json:"stage"`
	ArtifactURL      string    `json:"artifact_url"`
	ArtifactName     string    `json:"artifact_name"`
	ArtifactChecksum string    `json:"artifact_checksum"`
	ScriptURL        string    `json:"script_url,omitempty"`
	ScriptName       string    `json:"script_name,omitempty"`
	TimeoutSeconds   int       `json:"timeout_seconds"`
	ReservedUntil    time.Time `json:"reserved_until"`
}

// ResultReport is a completed job pushed by an executor
type ResultReport struct {
	JobID        uuid.UUID `json:"job_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	Stage        Stage     `json:"stage"`
	Success      bool      `json:"success"`
	Payload      string    `json:"payload"`
	PerfData     string    `json:"perf_data,omitempty"`
}

// Reservation is the claim written by the dispatcher
type Reservation struct {
	SubmissionID uuid.UUID
	Version      int64
	State        SubmissionState
	MachineID    uuid.UUID
	Stage        Stage
	JobID        uuid.UUID
	Until        time.Time
}

// ArtifactPath builds the executor download path for a job's submission file
func ArtifactPath(jobID uuid.UUID) string {
	return "/api/executor/jobs/" + jobID.String() + "/artifact"
}

// ScriptPath builds the executor download path for a job's test script
func ScriptPath(jobID uuid.UUID) string {
	return "/api/executor/jobs/" + jobID.String() + "/script"
}
