package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler starts syncs on a cron schedule, skipping ticks while a run is in flight.
type Scheduler struct {
	spec   string
	orch   *Orchestrator
	cron   *cron.Cron
	ctx    context.Context
	logger *zerolog.Logger
}

func NewScheduler(spec string, orch *Orchestrator, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		spec:   spec,
		orch:   orch,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the schedule. Runs are bound to ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info().Msg("Sync schedule is disabled")
		return nil
	}
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.spec, s.trigger); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.spec, err)
	}
	s.logger.Info().Str("schedule", s.spec).Msg("Sync schedule started")
	s.cron.Start()
	return nil
}

// Stop waits for a running trigger to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) trigger() {
	if s.orch.Snapshot().State.Busy() {
		s.logger.Info().Msg("Sync already running, skipping scheduled run")
		return
	}

	s.logger.Info().Msg("Triggering scheduled sync")
	if err := s.orch.StartSync(s.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		s.logger.Error().Err(err).Msg("Failed to start scheduled sync")
	}
}
