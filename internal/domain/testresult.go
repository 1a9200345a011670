package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionTestResult is one immutable executor report for a file and stage
type SubmissionTestResult struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SubmissionID uuid.UUID `db:"submission_id" json:"submission_id"`
	FileID       uuid.UUID `db:"file_id" json:"file_id"`
	Stage        Stage     `db:"stage" json:"stage"`
	Success      bool      `db:"success" json:"success"`
	Result       string    `db:"result" json:"result"`
	PerfData     string    `db:"perf_data" json:"perf_data,omitempty"`
	MachineID    uuid.UUID `db:"machine_id" json:"machine_id"`
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type TestResultTable struct {
	ID           string
	SubmissionID string
	FileID       string
	Stage        string
	Success      string
	Result       string
	PerfData     string
	MachineID    string
	JobID        string
	CreatedAt    string
}

func GetTestResultTable() TestResultTable {
	return TestResultTable{
		ID:           "id",
		SubmissionID: "submission_id",
		FileID:       "file_id",
		Stage:        "stage",
		Success:      "success",
		Result:       "result",
		PerfData:     "perf_data",
		MachineID:    "machine_id",
		JobID:        "job_id",
		CreatedAt:    "created_at",
	}
}

func (TestResultTable) TableName() string {
	return "submission_test_results"
}
