package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/executor"
)

const defaultConfigPath = "/etc/opensubmit/executor.yaml"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:          "opensubmit-exec",
		Short:        "test machine agent for the opensubmit coordinator",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path of the executor config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	newLogger := func() *logging.ZapLogger {
		if debug {
			return logging.NewDebugLogger()
		}
		return logging.NewZapLogger()
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "register",
			Short: "announce this machine and its capabilities to the coordinator",
			RunE: func(cmd *cobra.Command, args []string) error {
				logger := newLogger()
				defer logger.Sync()
				return withAgent(cmd.Context(), configPath, logger, func(ctx context.Context, agent *executor.Agent) error {
					m, err := agent.Register(ctx)
					if err != nil {
						return err
					}
					if !m.Enabled {
						fmt.Fprintf(cmd.OutOrStdout(), "machine %s registered; it stays idle until staff enable it\n", m.ID)
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "machine %s registered\n", m.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "fetch and run a single job, then exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				logger := newLogger()
				defer logger.Sync()
				return withAgent(cmd.Context(), configPath, logger, func(ctx context.Context, agent *executor.Agent) error {
					ran, err := agent.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !ran {
						logger.Info("Nothing to do")
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "poll",
			Short: "keep fetching and running jobs until interrupted",
			RunE: func(cmd *cobra.Command, args []string) error {
				logger := newLogger()
				defer logger.Sync()
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return withAgent(ctx, configPath, logger, func(ctx context.Context, agent *executor.Agent) error {
					if _, err := agent.Register(ctx); err != nil {
						return err
					}
					return agent.Poll(ctx)
				})
			},
		},
	)
	return root
}

// withAgent loads the config, persists a newly assigned machine id and connects to the coordinator
func withAgent(ctx context.Context, configPath string, logger primary.Logger, fn func(ctx context.Context, agent *executor.Agent) error) error {
	cfg, err := executor.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config", "path", configPath, "error", err)
		return err
	}
	if cfg.EnsureMachineID() {
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		logger.Info("Assigned new machine id", "machineId", cfg.MachineID)
	}

	coordinator, downloader, closer, err := executor.Connect(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to coordinator", "transport", cfg.Server.Transport, "error", err)
		return err
	}
	defer closeQuietly(closer, logger)

	agent, err := executor.NewAgent(cfg, coordinator, downloader, executor.NewRunner(cfg, logger), logger)
	if err != nil {
		return err
	}

	err = fn(ctx, agent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Executor command failed", "error", err)
		return err
	}
	return nil
}

func closeQuietly(c io.Closer, logger primary.Logger) {
	if err := c.Close(); err != nil {
		logger.Debug("Failed to close coordinator connection", "error", err)
	}
}
