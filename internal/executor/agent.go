package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

// Agent runs the fetch, execute and report cycle of one test machine
type Agent struct {
	cfg         *Config
	coordinator Coordinator
	downloader  Downloader
	runner      *Runner
	logger      primary.Logger
	fingerprint string
}

func NewAgent(cfg *Config, coordinator Coordinator, downloader Downloader, runner *Runner, logger primary.Logger) (*Agent, error) {
	fingerprint, err := Fingerprint(cfg.Capabilities)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:         cfg,
		coordinator: coordinator,
		downloader:  downloader,
		runner:      runner,
		logger:      logger,
		fingerprint: fingerprint,
	}, nil
}

// Register announces the machine with its current capabilities
func (a *Agent) Register(ctx context.Context) (*domain.TestMachine, error) {
	config, err := json.Marshal(a.cfg.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capabilities: %w", err)
	}

	m, err := a.coordinator.Register(ctx, domain.MachineRegistration{
		ID:          a.cfg.MachineID,
		Host:        a.cfg.Host,
		Fingerprint: a.fingerprint,
		Config:      string(config),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register machine: %w", err)
	}

	a.logger.Info("Machine registered", "machineId", m.ID, "enabled", m.Enabled)
	return m, nil
}

// RunOnce fetches and runs at most one job. It reports whether a job was run.
func (a *Agent) RunOnce(ctx context.Context) (bool, error) {
	job, err := a.coordinator.FetchJob(ctx, a.fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to fetch job: %w", err)
	}
	if job == nil {
		a.logger.Debug("No job available")
		return false, nil
	}

	a.logger.Info("Job received", "jobId", job.JobID, "submissionId", job.SubmissionID, "stage", job.Stage)
	outcome, err := a.execute(ctx, job)
	if err != nil {
		return true, err
	}

	err = a.coordinator.SubmitResult(ctx, domain.ResultReport{
		JobID:        job.JobID,
		SubmissionID: job.SubmissionID,
		Stage:        job.Stage,
		Success:      outcome.Success,
		Payload:      outcome.Output,
		PerfData:     outcome.PerfData(),
	})
	if errors.Is(err, errs.ErrStaleOrUnauthorizedResult) {
		a.logger.Warn("Result was not accepted", "jobId", job.JobID, "error", err)
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("failed to submit result: %w", err)
	}

	a.logger.Info("Result reported", "jobId", job.JobID, "success", outcome.Success, "duration", outcome.Duration)
	return true, nil
}

// Poll runs jobs until ctx is cancelled, sleeping between empty fetches.
// An unknown or changed machine registers again and carries on.
func (a *Agent) Poll(ctx context.Context) error {
	interval := time.Duration(a.cfg.PollInterval)
	for {
		ran, err := a.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errs.ErrRegistrationRequired):
			if _, regErr := a.Register(ctx); regErr != nil {
				return regErr
			}
			continue
		case errors.Is(err, errs.ErrAuthenticationFailure):
			return err
		case err != nil:
			a.logger.Error("Job cycle failed", "error", err)
		}

		if ran && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (a *Agent) execute(ctx context.Context, job *domain.JobDescriptor) (Outcome, error) {
	workDir, err := os.MkdirTemp(a.cfg.WorkDir, "job-"+job.JobID.String()+"-")
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	downloads := filepath.Join(workDir, "downloads")
	sources := filepath.Join(workDir, "src")
	for _, dir := range []string{downloads, sources} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return Outcome{}, fmt.Errorf("failed to create work directory: %w", err)
		}
	}

	artifact := filepath.Join(downloads, "artifact")
	if err := a.fetchFile(ctx, job.ArtifactURL, artifact); err != nil {
		return Outcome{}, err
	}
	if err := Unpack(artifact, job.ArtifactName, sources); err != nil {
		// a broken upload is the student's problem, not the machine's
		return Outcome{Output: "Could not unpack submission: " + err.Error()}, nil
	}
	dir, err := ContentRoot(sources)
	if err != nil {
		return Outcome{}, err
	}

	var script string
	if job.ScriptURL != "" {
		name := job.ScriptName
		if name == "" {
			name = path.Base(job.ScriptURL)
		}
		downloaded := filepath.Join(downloads, "script")
		if err := a.fetchFile(ctx, job.ScriptURL, downloaded); err != nil {
			return Outcome{}, err
		}
		script = filepath.Join(dir, filepath.Base(name))
		if err := copyFile(downloaded, script, 0o755); err != nil {
			return Outcome{}, err
		}
	}

	return a.runner.Run(ctx, job, dir, script)
}

func (a *Agent) fetchFile(ctx context.Context, url, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if err := a.downloader.Download(ctx, url, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
