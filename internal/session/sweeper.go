package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

// Sweeper periodically removes idle sessions.
type Sweeper struct {
	cron    *cron.Cron
	manager *Manager
	idle    time.Duration
	log     *logger.Logger
}

// NewSweeper schedules Manager.Sweep. schedule is a standard cron
// expression or a descriptor such as "@every 1m".
func NewSweeper(manager *Manager, schedule string, idle time.Duration, log *logger.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		manager: manager,
		idle:    idle,
		log:     log.Named("sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to add sweep job: %w", err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.manager.Sweep(s.idle); n > 0 {
		s.log.Info("swept idle sessions", zap.Int("removed", n), zap.Int("remaining", s.manager.Count()))
	}
}

// Start starts the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running sweep.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
