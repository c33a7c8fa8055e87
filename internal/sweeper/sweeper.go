// Package sweeper closes the sessions of machines that stopped pinging
// altogether, so they are not shown as logged in until their next ping.
package sweeper

import (
	"context"
	"time"

	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
)

// StaleCloser closes sessions whose machine missed its ping window.
type StaleCloser interface {
	CloseStale(ctx context.Context) ([]model.MachineUsage, error)
}

// Service runs the sweep on a fixed interval.
type Service struct {
	interval time.Duration
	closer   StaleCloser
	log      *logger.Logger
}

func NewService(interval time.Duration, closer StaleCloser, log *logger.Logger) *Service {
	return &Service{interval: interval, closer: closer, log: log}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("session sweeper starting", "interval", s.interval)
	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session sweeper shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce runs a single sweep and reports how many sessions it closed.
func (s *Service) SweepOnce(ctx context.Context) int {
	closed, err := s.closer.CloseStale(ctx)
	if err != nil {
		s.log.Error("session sweep failed", "closed", len(closed), "error", err)
		return len(closed)
	}
	if len(closed) > 0 {
		s.log.Info("session sweep finished", "closed", len(closed))
	}
	return len(closed)
}
