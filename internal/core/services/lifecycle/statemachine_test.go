package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var (
	allStages    = &domain.Assignment{CompileTest: true, ValidityScript: "v.py", FullScript: "f.py"}
	noFullTest   = &domain.Assignment{CompileTest: true, ValidityScript: "v.py"}
	onlyFullTest = &domain.Assignment{FullScript: "f.py"}
	noTests      = &domain.Assignment{}
)

func TestInitialState(t *testing.T) {
	assert.Equal(t, domain.StateTestCompilePending, InitialState(allStages))
	assert.Equal(t, domain.StateTestFullPending, InitialState(onlyFullTest))
	assert.Equal(t, domain.StateSubmitted, InitialState(noTests))
	assert.Equal(t, domain.StateTestValidityPending, InitialState(&domain.Assignment{ValidityScript: "v.py"}))
}

func TestNextState(t *testing.T) {
	tests := []struct {
		name       string
		assignment *domain.Assignment
		state      domain.SubmissionState
		stage      domain.Stage
		success    bool
		want       domain.SubmissionState
	}{
		{"compile ok goes to validity", allStages, domain.StateTestCompilePending, domain.StageCompile, true, domain.StateTestValidityPending},
		{"validity ok goes to full", allStages, domain.StateTestValidityPending, domain.StageValidity, true, domain.StateTestFullPending},
		{"full ok goes to grading", allStages, domain.StateTestFullPending, domain.StageFull, true, domain.StateGradingPending},
		{"validity ok skips missing full test", noFullTest, domain.StateTestValidityPending, domain.StageValidity, true, domain.StateGradingPending},
		{"compile ok skips to full", &domain.Assignment{CompileTest: true, FullScript: "f.py"}, domain.StateTestCompilePending, domain.StageCompile, true, domain.StateTestFullPending},
		{"compile failure", allStages, domain.StateTestCompilePending, domain.StageCompile, false, domain.StateTestCompileFailed},
		{"validity failure", allStages, domain.StateTestValidityPending, domain.StageValidity, false, domain.StateTestValidityFailed},
		{"full failure", allStages, domain.StateTestFullPending, domain.StageFull, false, domain.StateTestFullFailed},
		{"re-test success closes", allStages, domain.StateClosedTestPending, domain.StageFull, true, domain.StateClosed},
		{"re-test failure closes", allStages, domain.StateClosedTestPending, domain.StageFull, false, domain.StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextState(tt.assignment, tt.state, tt.stage, tt.success)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStateRejectsMismatchedStage(t *testing.T) {
	_, err := NextState(allStages, domain.StateTestCompilePending, domain.StageValidity, true)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	_, err = NextState(allStages, domain.StateGradingPending, domain.StageFull, true)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestCompileAndValidateOnlyPipeline(t *testing.T) {
	state := InitialState(noFullTest)
	for _, stage := range noFullTest.RequiredStages() {
		var err error
		state, err = NextState(noFullTest, state, stage, true)
		require.NoError(t, err)
		assert.NotEqual(t, domain.StateTestFullPending, state)
	}
	assert.Equal(t, domain.StateGradingPending, state)
}

func TestWithdrawAndResubmit(t *testing.T) {
	for _, s := range []domain.SubmissionState{domain.StateTestValidityFailed, domain.StateTestFullPending, domain.StateGradingPending} {
		got, err := Withdraw(s)
		require.NoError(t, err)
		assert.Equal(t, domain.StateWithdrawn, got)

		got, err = Resubmit(allStages, s)
		require.NoError(t, err)
		assert.Equal(t, domain.StateTestCompilePending, got)
	}

	for _, s := range []domain.SubmissionState{domain.StateWithdrawn, domain.StateClosed, domain.StateGradingInProgress, domain.StateClosedTestPending} {
		_, err := Withdraw(s)
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)
		_, err = Resubmit(allStages, s)
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	}
}

func TestRetest(t *testing.T) {
	got, err := Retest(allStages, domain.StateClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosedTestPending, got)

	_, err = Retest(noFullTest, domain.StateClosed)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	_, err = Retest(allStages, domain.StateGradingFinished)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestGradingFlow(t *testing.T) {
	state, err := StartGrading(domain.StateGradingPending)
	require.NoError(t, err)
	state, err = FinishGrading(state)
	require.NoError(t, err)
	state, err = Close(state)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, state)

	_, err = StartGrading(domain.StateTestFullFailed)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	_, err = Close(domain.StateGradingInProgress)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestPendingStage(t *testing.T) {
	for _, s := range DispatchableStates {
		assert.True(t, IsPending(s), s)
	}
	stage, ok := PendingStage(domain.StateClosedTestPending)
	assert.True(t, ok)
	assert.Equal(t, domain.StageFull, stage)
	assert.False(t, IsPending(domain.StateSubmitted))
}
