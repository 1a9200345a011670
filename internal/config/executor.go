package config

import (
	"os"
	"time"
)

const (
	DefaultReservationTimeout = 5 * time.Minute
	DefaultResultGrace        = time.Minute
	DefaultRetryAttempts      = 3
)

// ExecutorConfig governs the executor protocol.
// ReservationTimeout bounds how long a machine may hold a job before it is handed out again.
type ExecutorConfig struct {
	SharedSecret       string
	ConcealAuthFailure bool
	ReservationTimeout time.Duration
	ResultGrace        time.Duration
	RetryAttempts      int
}

func NewExecutorConfig() *ExecutorConfig {
	cfg := &ExecutorConfig{
		SharedSecret:       os.Getenv("EXECUTOR_SHARED_SECRET"),
		ConcealAuthFailure: os.Getenv("EXECUTOR_CONCEAL_AUTH_FAILURE") == "true",
		ReservationTimeout: getSecondsEnv("RESERVATION_TIMEOUT_SEC", int(DefaultReservationTimeout/time.Second)),
		ResultGrace:        getSecondsEnv("RESULT_GRACE_SEC", int(DefaultResultGrace/time.Second)),
		RetryAttempts:      getIntEnv("PERSISTENCE_RETRY_ATTEMPTS", DefaultRetryAttempts),
	}
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = DefaultReservationTimeout
	}
	if cfg.ResultGrace < 0 {
		cfg.ResultGrace = 0
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return cfg
}

type SweeperConfig struct {
	SweepInterval time.Duration
}

func NewSweeperConfig() *SweeperConfig {
	interval := getSecondsEnv("SWEEP_INTERVAL_SEC", 30)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SweeperConfig{
		SweepInterval: interval,
	}
}
