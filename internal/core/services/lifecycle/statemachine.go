// Package lifecycle holds the submission state machine. It is pure: callers
// read the current state, ask for the next one, and persist it themselves.
package lifecycle

import (
	"fmt"

	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var pendingByStage = map[domain.Stage]domain.SubmissionState{
	domain.StageCompile:  domain.StateTestCompilePending,
	domain.StageValidity: domain.StateTestValidityPending,
	domain.StageFull:     domain.StateTestFullPending,
}

var failedByPending = map[domain.SubmissionState]domain.SubmissionState{
	domain.StateTestCompilePending:  domain.StateTestCompileFailed,
	domain.StateTestValidityPending: domain.StateTestValidityFailed,
	domain.StateTestFullPending:     domain.StateTestFullFailed,
}

// DispatchableStates are the states the dispatcher hands out work for
var DispatchableStates = []domain.SubmissionState{
	domain.StateTestCompilePending,
	domain.StateTestValidityPending,
	domain.StateTestFullPending,
	domain.StateClosedTestPending,
}

// InitialState is the state of a fresh upload: the first required pending stage, or Submitted
func InitialState(assignment *domain.Assignment) domain.SubmissionState {
	stages := assignment.RequiredStages()
	if len(stages) == 0 {
		return domain.StateSubmitted
	}
	return pendingByStage[stages[0]]
}

// PendingStage returns the stage a state is waiting on
func PendingStage(state domain.SubmissionState) (domain.Stage, bool) {
	switch state {
	case domain.StateTestCompilePending:
		return domain.StageCompile, true
	case domain.StateTestValidityPending:
		return domain.StageValidity, true
	case domain.StateTestFullPending, domain.StateClosedTestPending:
		return domain.StageFull, true
	default:
		return "", false
	}
}

// IsPending reports whether a state waits on an executor
func IsPending(state domain.SubmissionState) bool {
	_, ok := PendingStage(state)
	return ok
}

// NextState applies a stage outcome to state
func NextState(assignment *domain.Assignment, state domain.SubmissionState, stage domain.Stage, success bool) (domain.SubmissionState, error) {
	pending, ok := PendingStage(state)
	if !ok || pending != stage {
		return "", fmt.Errorf("%w: %s result in state %s", errs.ErrInvalidTransition, stage, state)
	}

	// a re-test never changes the grade
	if state == domain.StateClosedTestPending {
		return domain.StateClosed, nil
	}

	if !success {
		return failedByPending[state], nil
	}

	for _, next := range stagesAfter(stage) {
		if assignment.Requires(next) {
			return pendingByStage[next], nil
		}
	}
	return domain.StateGradingPending, nil
}

func stagesAfter(stage domain.Stage) []domain.Stage {
	for i, s := range domain.Stages {
		if s == stage {
			return domain.Stages[i+1:]
		}
	}
	return nil
}

var openForStudent = map[domain.SubmissionState]bool{
	domain.StateReceived:            true,
	domain.StateSubmitted:           true,
	domain.StateTestCompilePending:  true,
	domain.StateTestCompileFailed:   true,
	domain.StateTestValidityPending: true,
	domain.StateTestValidityFailed:  true,
	domain.StateTestFullPending:     true,
	domain.StateTestFullFailed:      true,
	domain.StateGradingPending:      true,
}

// CanWithdraw reports whether the student may still withdraw
func CanWithdraw(state domain.SubmissionState) bool {
	return openForStudent[state]
}

// CanResubmit reports whether a new file may replace the current one
func CanResubmit(state domain.SubmissionState) bool {
	return openForStudent[state]
}

// Withdraw returns Withdrawn if allowed
func Withdraw(state domain.SubmissionState) (domain.SubmissionState, error) {
	if !CanWithdraw(state) {
		return "", fmt.Errorf("%w: cannot withdraw in state %s", errs.ErrInvalidTransition, state)
	}
	return domain.StateWithdrawn, nil
}

// Resubmit returns the state after a new upload
func Resubmit(assignment *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
	if !CanResubmit(state) {
		return "", fmt.Errorf("%w: cannot resubmit in state %s", errs.ErrInvalidTransition, state)
	}
	return InitialState(assignment), nil
}

// Retest schedules a new full test for a closed submission
func Retest(assignment *domain.Assignment, state domain.SubmissionState) (domain.SubmissionState, error) {
	if state != domain.StateClosed {
		return "", fmt.Errorf("%w: cannot re-test in state %s", errs.ErrInvalidTransition, state)
	}
	if !assignment.Requires(domain.StageFull) {
		return "", fmt.Errorf("%w: assignment has no full test", errs.ErrInvalidTransition)
	}
	return domain.StateClosedTestPending, nil
}

// StartGrading moves a fully tested submission into grading
func StartGrading(state domain.SubmissionState) (domain.SubmissionState, error) {
	switch state {
	case domain.StateSubmitted, domain.StateGradingPending:
		return domain.StateGradingInProgress, nil
	default:
		return "", fmt.Errorf("%w: cannot grade in state %s", errs.ErrInvalidTransition, state)
	}
}

// FinishGrading marks grading as done
func FinishGrading(state domain.SubmissionState) (domain.SubmissionState, error) {
	if state != domain.StateGradingInProgress {
		return "", fmt.Errorf("%w: grading not in progress (state %s)", errs.ErrInvalidTransition, state)
	}
	return domain.StateGradingFinished, nil
}

// Close publishes the grade
func Close(state domain.SubmissionState) (domain.SubmissionState, error) {
	if state != domain.StateGradingFinished {
		return "", fmt.Errorf("%w: cannot close in state %s", errs.ErrInvalidTransition, state)
	}
	return domain.StateClosed, nil
}
