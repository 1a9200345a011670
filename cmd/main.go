package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"gitlab.com/opensubmit.net/internal/adapter/crypto"
	"gitlab.com/opensubmit.net/internal/adapter/filestore"
	"gitlab.com/opensubmit.net/internal/adapter/redis/presenceport"
	"gitlab.com/opensubmit.net/internal/adapter/sqldb"
	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/services/assignment"
	"gitlab.com/opensubmit.net/internal/core/services/dispatch"
	"gitlab.com/opensubmit.net/internal/core/services/ingest"
	"gitlab.com/opensubmit.net/internal/core/services/machine"
	"gitlab.com/opensubmit.net/internal/core/services/submission"
	logger2 "gitlab.com/opensubmit.net/internal/global/logger"
	http2 "gitlab.com/opensubmit.net/internal/http"
	"gitlab.com/opensubmit.net/internal/schedulerengine"
	"gitlab.com/opensubmit.net/internal/tcp"
)

func main() {
	defer logger2.Sync()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var environment string

	root := &cobra.Command{
		Use:           "opensubmit",
		Short:         "coordinator for remote submission testing",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(environment); err != nil {
				return err
			}
			if os.Getenv("DEBUG_MODE") == "true" {
				logger2.UseDebug()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&environment, "env", "", "load <env>.env before reading the configuration")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newMachinesCommand(),
		newFixChecksumsCommand(),
		newTokenCommand(),
	)
	return root
}

// app holds the wired services shared by the commands
type app struct {
	cfg         *config.AppConfig
	db          *sqlx.DB
	redis       *redis.Client
	machines    *machine.MachineService
	dispatch    *dispatch.DispatchService
	ingest      *ingest.IngestService
	submissions *submission.SubmissionService
	assignments *assignment.AssignmentService
	jwt         *crypto.JWTServiceImpl
}

func setupApp(ctx context.Context) (*app, error) {
	logger := logger2.Logger
	sysCfg := config.NewSystemConfig()

	db, err := sqldb.Open(ctx, sysCfg.DatabaseConfig)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     sysCfg.RedisConfig.Url,
		Password: sysCfg.RedisConfig.Password,
		DB:       sysCfg.RedisConfig.DB,
	})

	// SECONDARY PORTS
	store := sqldb.NewStore(db, logger)
	presence := presenceport.NewPresenceRepository(redisClient, sysCfg.RedisConfig.PresenceTTL, logger)
	artifacts := filestore.NewLocalStore(sysCfg.ServerConfig.MediaRoot, logger)

	//services
	machines := machine.NewMachineService(store, presence, sysCfg.ExecutorConfig, logger)
	return &app{
		cfg:         sysCfg,
		db:          db,
		redis:       redisClient,
		machines:    machines,
		dispatch:    dispatch.NewDispatchService(store, artifacts, machines, sysCfg.ExecutorConfig, logger),
		ingest:      ingest.NewIngestService(store, sysCfg.ExecutorConfig, logger),
		submissions: submission.NewSubmissionService(store, artifacts, sysCfg.ExecutorConfig, logger),
		assignments: assignment.NewAssignmentService(store, logger),
		jwt:         crypto.NewJWTService(sysCfg.JwtConfig),
	}, nil
}

func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		logger2.Warn("Failed to close redis client", "error", err)
	}
	if err := a.db.Close(); err != nil {
		logger2.Warn("Failed to close database", "error", err)
	}
}

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP and TCP executor endpoints, the staff API and the reservation sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	logger := logger2.Logger
	logger.Info("Starting opensubmit coordinator")

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := sqldb.Migrate(ctx, a.db); err != nil {
			return err
		}
	}
	if a.cfg.ExecutorConfig.SharedSecret == "" {
		logger.Warn("EXECUTOR_SHARED_SECRET is empty; every executor request will be rejected")
	}

	serviceProvider := http2.NewServiceProvider(a.machines, a.dispatch, a.ingest, a.submissions, a.assignments, a.jwt)

	//server
	tcpServer := tcp.NewTCPServer(a.machines, a.dispatch, a.ingest, logger, tcp.WithAddress(a.cfg.ServerConfig.TCPAddr))
	httpServer := http2.NewServer(a.cfg.ServerConfig.HTTPPort, "opensubmit", *serviceProvider, a.cfg.ExecutorConfig.ConcealAuthFailure, logger)
	if err := httpServer.Init(); err != nil {
		return err
	}
	httpErrs := httpServer.Start(ctx)
	if err := tcpServer.Start(); err != nil {
		return err
	}

	sweeper := schedulerengine.NewSchedulerEngine(a.cfg.SweeperConfig, a.dispatch, logger)
	sweeper.StartReservationSweeper(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-httpErrs:
		serveErr = err
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stop()
	if err := tcpServer.Stop(shutdownCtx); err != nil {
		logger.Error("TCP server did not stop cleanly", "error", err)
	}
	httpServer.Stop(shutdownCtx)
	sweeper.Wait()

	logger.Info("successfully shutdown server")
	if serveErr != nil {
		return fmt.Errorf("http server failed: %w", serveErr)
	}
	return nil
}
