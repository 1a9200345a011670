package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SubmissionState represents the lifecycle state of a submission
type SubmissionState string

const (
	StateReceived            SubmissionState = "R"
	StateWithdrawn           SubmissionState = "W"
	StateSubmitted           SubmissionState = "S"
	StateTestCompilePending  SubmissionState = "PC"
	StateTestCompileFailed   SubmissionState = "FC"
	StateTestValidityPending SubmissionState = "PV"
	StateTestValidityFailed  SubmissionState = "FV"
	StateTestFullPending     SubmissionState = "PF"
	StateTestFullFailed      SubmissionState = "FF"
	StateGradingPending      SubmissionState = "ST"
	StateGradingInProgress   SubmissionState = "GP"
	StateGradingFinished     SubmissionState = "G"
	StateClosed              SubmissionState = "C"
	StateClosedTestPending   SubmissionState = "CT"
)

var stateNames = map[SubmissionState]string{
	StateReceived:            "Received",
	StateWithdrawn:           "Withdrawn",
	StateSubmitted:           "Submitted",
	StateTestCompilePending:  "Compilation test pending",
	StateTestCompileFailed:   "Compilation test failed",
	StateTestValidityPending: "Validity test pending",
	StateTestValidityFailed:  "Validity test failed",
	StateTestFullPending:     "Full test pending",
	StateTestFullFailed:      "All but full test passed, grading pending",
	StateGradingPending:      "All tests passed, grading pending",
	StateGradingInProgress:   "Grading not finished",
	StateGradingFinished:     "Grading finished",
	StateClosed:              "Closed",
	StateClosedTestPending:   "Closed, full test pending",
}

// String returns the human readable state name
func (s SubmissionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return string(s)
}

// Valid reports whether s is a known state code
func (s SubmissionState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// Submission is a student upload moving through the test pipeline.
// The reservation columns mark an in-flight job held by one machine.
type Submission struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AssignmentID  uuid.UUID       `db:"assignment_id" json:"assignment_id"`
	Submitter     string          `db:"submitter" json:"submitter"`
	FileID        uuid.UUID       `db:"file_id" json:"file_id"`
	State         SubmissionState `db:"state" json:"state"`
	Notified      bool            `db:"notified" json:"notified"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ModifiedAt    time.Time       `db:"modified_at" json:"modified_at"`
	ReservedBy    uuid.NullUUID   `db:"reserved_by" json:"-"`
	ReservedStage sql.NullString  `db:"reserved_stage" json:"-"`
	ReservationID uuid.NullUUID   `db:"reservation_id" json:"-"`
	ReservedUntil sql.NullTime    `db:"reserved_until" json:"-"`
	Version       int64           `db:"version" json:"version"`
}

// Reserved reports whether the submission carries a reservation that is still active at now
func (s *Submission) Reserved(now time.Time) bool {
	return s.ReservationID.Valid && s.ReservedUntil.Valid && !s.ReservedUntil.Time.Before(now)
}

// ReservedFor returns the stage of the current reservation, if any
func (s *Submission) ReservedFor() (Stage, bool) {
	if !s.ReservedStage.Valid {
		return "", false
	}
	return Stage(s.ReservedStage.String), true
}

type SubmissionTable struct {
	ID            string
	AssignmentID  string
	Submitter     string
	FileID        string
	State         string
	Notified      string
	CreatedAt     string
	ModifiedAt    string
	ReservedBy    string
	ReservedStage string
	ReservationID string
	ReservedUntil string
	Version       string
}

func GetSubmissionTable() SubmissionTable {
	return SubmissionTable{
		ID:            "id",
		AssignmentID:  "assignment_id",
		Submitter:     "submitter",
		FileID:        "file_id",
		State:         "state",
		Notified:      "notified",
		CreatedAt:     "created_at",
		ModifiedAt:    "modified_at",
		ReservedBy:    "reserved_by",
		ReservedStage: "reserved_stage",
		ReservationID: "reservation_id",
		ReservedUntil: "reserved_until",
		Version:       "version",
	}
}

func (SubmissionTable) TableName() string {
	return "submissions"
}

// Columns lists every submission column in select order
func (t SubmissionTable) Columns() []string {
	return []string{
		t.ID, t.AssignmentID, t.Submitter, t.FileID, t.State, t.Notified, t.CreatedAt,
		t.ModifiedAt, t.ReservedBy, t.ReservedStage, t.ReservationID, t.ReservedUntil, t.Version,
	}
}

// SubmissionFile is an uploaded artifact. It is never modified once tested.
type SubmissionFile struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Path         string    `db:"path" json:"path"`
	OriginalName string    `db:"original_name" json:"original_name"`
	Checksum     string    `db:"checksum" json:"checksum"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SubmissionDetails bundles a submission with its current file and result history
type SubmissionDetails struct {
	Submission *Submission             `json:"submission"`
	File       *SubmissionFile         `json:"file"`
	Results    []*SubmissionTestResult `json:"results"`
}

// SubmissionFilter narrows submission listings
type SubmissionFilter struct {
	AssignmentID *uuid.UUID
	States       []SubmissionState
	Limit        int
}
