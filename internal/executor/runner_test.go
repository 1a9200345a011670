package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/domain"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newRunner(compile ...string) *Runner {
	cfg := &Config{CompileCommand: compile}
	cfg.applyDefaults()
	return NewRunner(cfg, logging.NewNopLogger())
}

func job(stage domain.Stage, timeout int) *domain.JobDescriptor {
	return &domain.JobDescriptor{JobID: uuid.New(), SubmissionID: uuid.New(), Stage: stage, TimeoutSeconds: timeout}
}

func TestRunCompile(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.c"), []byte("int main(){}"), 0o644))

	ok, err := newRunner("sh", "-c", "test -f hello.c && echo compiled $TEST_STAGE").Run(context.Background(), job(domain.StageCompile, 10), dir, "")
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.Contains(t, ok.Output, "compiled compile")
	assert.True(t, strings.HasPrefix(ok.PerfData(), "duration_ms="))

	failed, err := newRunner("sh", "-c", "echo broken >&2; exit 2").Run(context.Background(), job(domain.StageCompile, 10), dir, "")
	require.NoError(t, err)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Output, "broken")
}

func TestRunScriptWithInterpreter(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "validate.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo validating $SUBMISSION_ID\n"), 0o644))

	j := job(domain.StageValidity, 10)
	outcome, err := newRunner().Run(context.Background(), j, dir, script)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.Output, "validating "+j.SubmissionID.String())

	_, err = newRunner().Run(context.Background(), job(domain.StageFull, 10), dir, "")
	assert.Error(t, err)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)
	outcome, err := newRunner("sh", "-c", "exec sleep 5").Run(context.Background(), job(domain.StageCompile, 1), t.TempDir(), "")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Output, "Timeout after 1 seconds")
}

func TestRunMissingCommand(t *testing.T) {
	outcome, err := newRunner("definitely-not-a-real-compiler").Run(context.Background(), job(domain.StageCompile, 5), t.TempDir(), "")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Output)
}

func TestLimitedBuffer(t *testing.T) {
	var b limitedBuffer
	_, _ = b.Write([]byte(strings.Repeat("x", maxOutputBytes-1)))
	_, _ = b.Write([]byte("yz"))
	assert.Equal(t, maxOutputBytes, len(strings.TrimSuffix(b.String(), "\n[output truncated]")))
	assert.True(t, b.truncated)
}
