// Package retention deletes idle sessions and their uploads on a schedule.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/sessions"
)

// ArtifactPurger removes everything a session uploaded.
type ArtifactPurger interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// Sweeper runs a cron-scheduled purge of sessions idle past the cutoff.
type Sweeper struct {
	store     sessions.Store
	artifacts ArtifactPurger
	maxIdle   time.Duration
	schedule  string
	logger    *observability.Logger
	metrics   *observability.Metrics

	cron *cron.Cron
}

// NewSweeper wires the sweeper; artifacts may be nil when uploads are
// disabled.
func NewSweeper(store sessions.Store, artifacts ArtifactPurger, maxIdle time.Duration, schedule string,
	logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	if schedule == "" {
		schedule = "0 * * * *"
	}
	return &Sweeper{
		store:     store,
		artifacts: artifacts,
		maxIdle:   maxIdle,
		schedule:  schedule,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the sweep. The first run happens on schedule, not at
// startup, so a restart storm cannot trigger mass deletion.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info(context.Background(), "retention sweeper scheduled",
		"schedule", s.schedule, "max_idle", s.maxIdle.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep deletes every session idle since the cutoff, artifacts first so a
// partial failure never leaves orphaned blobs without a session to find
// them through.
func (s *Sweeper) Sweep(ctx context.Context) (deleted int) {
	cutoff := time.Now().Add(-s.maxIdle)
	ids, err := s.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, "idle session listing failed", "error", err)
		s.countSweep("errors", 1)
		return 0
	}

	for _, id := range ids {
		if s.artifacts != nil {
			if err := s.artifacts.DeleteSession(ctx, id); err != nil {
				s.logger.Error(ctx, "artifact purge failed, session kept", "session_id", id, "error", err)
				s.countSweep("errors", 1)
				continue
			}
		}
		if err := s.store.DeleteSession(ctx, id); err != nil {
			s.logger.Error(ctx, "session delete failed", "session_id", id, "error", err)
			s.countSweep("errors", 1)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info(ctx, "retention sweep complete", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	s.countSweep("sessions_deleted", float64(deleted))
	return deleted
}

func (s *Sweeper) countSweep(result string, n float64) {
	if s.metrics != nil && n > 0 {
		s.metrics.RetentionSweeps.WithLabelValues(result).Add(n)
	}
}
