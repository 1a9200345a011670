// Package schedulerengine runs the periodic background work of the coordinator.
package schedulerengine

import (
	"context"
	"sync"
	"time"

	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
)

// ReservationReleaser clears reservations past their deadline
type ReservationReleaser interface {
	ReleaseExpired(ctx context.Context) (int64, error)
}

type SchedulerEngine struct {
	SweeperCfg *config.SweeperConfig
	releaser   ReservationReleaser
	logger     primary.Logger
	wg         sync.WaitGroup
}

func NewSchedulerEngine(
	sweeperCfg *config.SweeperConfig,
	releaser ReservationReleaser,
	logger primary.Logger,
) *SchedulerEngine {
	return &SchedulerEngine{
		SweeperCfg: sweeperCfg,
		releaser:   releaser,
		logger:     logger,
	}
}

// StartReservationSweeper sweeps expired reservations until ctx is cancelled
func (s *SchedulerEngine) StartReservationSweeper(ctx context.Context) {
	s.wg.Add(1)
	ticker := time.NewTicker(s.SweeperCfg.SweepInterval)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpiredReservations(ctx)
			}
		}
	}()
}

// Wait blocks until the background loops have returned
func (s *SchedulerEngine) Wait() {
	s.wg.Wait()
}

// SweepExpiredReservations runs one sweep and returns the number of released reservations
func (s *SchedulerEngine) SweepExpiredReservations(ctx context.Context) int64 {
	released, err := s.releaser.ReleaseExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to release expired reservations", "error", err)
		return 0
	}
	if released > 0 {
		s.logger.Info("Released expired reservations", "count", released)
	}
	return released
}
