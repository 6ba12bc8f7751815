package core

// scheduler.go runs background maintenance:
//  1. Evict analysis sessions idle longer than the session TTL
//  2. Purge analysis history older than the retention window
//
// Both jobs are context-aware and stop on shutdown. Failures are logged and
// never stop the scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceConfig holds scheduler intervals.
// Zero values fall back to the defaults noted per field.
type MaintenanceConfig struct {
	SessionSweepInterval time.Duration // default: 5m
	HistoryRetention     time.Duration // default: 30 days
	HistoryCheckInterval time.Duration // default: 1h
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = 5 * time.Minute
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = 30 * 24 * time.Hour
	}
	if c.HistoryCheckInterval <= 0 {
		c.HistoryCheckInterval = time.Hour
	}
	return c
}

// StartMaintenance blocks running the session sweep and history retention
// jobs until ctx is cancelled. The retention job runs once immediately.
func (s *Service) StartMaintenance(ctx context.Context, cfg MaintenanceConfig) {
	cfg = cfg.withDefaults()
	slog.Info("maintenance scheduler started",
		"session_sweep_interval", cfg.SessionSweepInterval,
		"history_retention", cfg.HistoryRetention,
		"history_check_interval", cfg.HistoryCheckInterval,
	)

	s.runRetentionJob(ctx, cfg.HistoryRetention)

	sweep := time.NewTicker(cfg.SessionSweepInterval)
	defer sweep.Stop()
	retention := time.NewTicker(cfg.HistoryCheckInterval)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case <-sweep.C:
			s.runSweepJob()
		case <-retention.C:
			s.runRetentionJob(ctx, cfg.HistoryRetention)
		}
	}
}

// runSweepJob evicts idle sessions.
func (s *Service) runSweepJob() int {
	removed := s.sessions.Sweep()
	if removed > 0 {
		slog.Info("swept idle sessions", "removed", removed, "remaining", s.sessions.Len())
	}
	return removed
}

// runRetentionJob purges history older than retention.
func (s *Service) runRetentionJob(ctx context.Context, retention time.Duration) int64 {
	start := time.Now()
	purged, err := s.history.PurgeOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return 0
	}
	slog.Info("purged analysis history",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
