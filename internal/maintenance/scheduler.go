// Package maintenance runs scheduled background jobs against the user
// store: releasing expired account lockouts and purging stale password
// reset tokens.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/config"
	"github.com/sekolahku/merit/internal/repository"
)

// jobTimeout bounds a single maintenance run.
const jobTimeout = 30 * time.Second

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	userRepo repository.UserRepository
	cfg      config.MaintenanceConfig
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler with the configured cron entries.
func NewScheduler(userRepo repository.UserRepository, cfg config.MaintenanceConfig, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		userRepo: userRepo,
		cfg:      cfg,
		logger:   logger.With().Str("component", "maintenance").Logger(),
	}

	if _, err := s.cron.AddFunc(cfg.UnlockSchedule, s.runUnlock); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.PurgeSchedule, s.runPurge); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.logger.Info().
		Str("unlock_schedule", s.cfg.UnlockSchedule).
		Str("purge_schedule", s.cfg.PurgeSchedule).
		Msg("maintenance scheduler started")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("maintenance scheduler stopped")
}

func (s *Scheduler) runUnlock() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.userRepo.UnlockExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to release expired lockouts")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("unlocked", n).Msg("released expired lockouts")
	}
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.userRepo.PurgeExpiredResetTokens(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to purge expired reset tokens")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Msg("purged expired reset tokens")
	}
}
