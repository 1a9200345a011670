package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTestTimeoutSeconds = 30

// Assignment declares which test stages its submissions go through
type Assignment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	CompileTest    bool      `db:"compile_test" json:"compile_test"`
	ValidityScript string    `db:"validity_script" json:"validity_script"`
	FullScript     string    `db:"full_script" json:"full_script"`
	TestTimeout    int       `db:"test_timeout" json:"test_timeout"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Requires reports whether the assignment runs the given stage
func (a *Assignment) Requires(stage Stage) bool {
	switch stage {
	case StageCompile:
		return a.CompileTest
	case StageValidity:
		return a.ValidityScript != ""
	case StageFull:
		return a.FullScript != ""
	default:
		return false
	}
}

// RequiredStages returns the required stages in pipeline order
func (a *Assignment) RequiredStages() []Stage {
	stages := make([]Stage, 0, len(Stages))
	for _, s := range Stages {
		if a.Requires(s) {
			stages = append(stages, s)
		}
	}
	return stages
}

// Script returns the test script attached for a stage; compile has none
func (a *Assignment) Script(stage Stage) string {
	switch stage {
	case StageValidity:
		return a.ValidityScript
	case StageFull:
		return a.FullScript
	default:
		return ""
	}
}

// Timeout returns the per-job time limit in seconds
func (a *Assignment) Timeout() int {
	if a.TestTimeout <= 0 {
		return DefaultTestTimeoutSeconds
	}
	return a.TestTimeout
}

type AssignmentTable struct {
	ID             string
	Title          string
	CompileTest    string
	ValidityScript string
	FullScript     string
	TestTimeout    string
	CreatedAt      string
}

func GetAssignmentTable() AssignmentTable {
	return AssignmentTable{
		ID:             "id",
		Title:          "title",
		CompileTest:    "compile_test",
		ValidityScript: "validity_script",
		FullScript:     "full_script",
		TestTimeout:    "test_timeout",
		CreatedAt:      "created_at",
	}
}

func (AssignmentTable) TableName() string {
	return "assignments"
}
