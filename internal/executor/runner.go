package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/domain"
)

const maxOutputBytes = 1 << 20

// Outcome is the result of running one job
type Outcome struct {
	Success  bool
	Output   string
	Duration time.Duration
}

// PerfData renders the measurements reported with the result
func (o Outcome) PerfData() string {
	return fmt.Sprintf("duration_ms=%d", o.Duration.Milliseconds())
}

// Runner executes a job inside an unpacked submission
type Runner struct {
	compileCommand []string
	interpreters   map[string][]string
	logger         primary.Logger
}

func NewRunner(cfg *Config, logger primary.Logger) *Runner {
	return &Runner{
		compileCommand: cfg.CompileCommand,
		interpreters:   cfg.Interpreters,
		logger:         logger,
	}
}

// Run executes the stage in dir. script is the path of the stage script, empty for the compile stage.
// A failing or timed out command is a failed outcome, not an error.
func (r *Runner) Run(ctx context.Context, job *domain.JobDescriptor, dir, script string) (Outcome, error) {
	args, err := r.command(job.Stage, script)
	if err != nil {
		return Outcome{}, err
	}

	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = domain.DefaultTestTimeoutSeconds * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"SUBMISSION_ID="+job.SubmissionID.String(),
		"TEST_STAGE="+string(job.Stage),
	)
	var output limitedBuffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 5 * time.Second

	r.logger.Info("Running job", "jobId", job.JobID, "stage", job.Stage, "command", strings.Join(args, " "))
	started := time.Now()
	runErr := cmd.Run()
	outcome := Outcome{
		Success:  runErr == nil,
		Output:   output.String(),
		Duration: time.Since(started),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome.Output += fmt.Sprintf("\nTimeout after %d seconds.", int(timeout/time.Second))
	case errors.As(runErr, &exitErr):
	case ctx.Err() != nil:
		return Outcome{}, ctx.Err()
	default:
		// the command could not be started; report it like a failed test
		outcome.Output += "\n" + runErr.Error()
	}
	return outcome, nil
}

func (r *Runner) command(stage domain.Stage, script string) ([]string, error) {
	if stage == domain.StageCompile {
		if len(r.compileCommand) == 0 {
			return nil, errors.New("no compile command configured")
		}
		return append([]string(nil), r.compileCommand...), nil
	}

	if script == "" {
		return nil, fmt.Errorf("no script for %s stage", stage)
	}
	if interpreter, ok := r.interpreters[strings.ToLower(filepath.Ext(script))]; ok && len(interpreter) > 0 {
		return append(append([]string(nil), interpreter...), script), nil
	}
	if err := os.Chmod(script, 0o755); err != nil {
		return nil, fmt.Errorf("failed to make script executable: %w", err)
	}
	return []string{script}, nil
}

// limitedBuffer keeps the first maxOutputBytes of output
type limitedBuffer struct {
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxOutputBytes - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
