package jobs

import (
	"context"
	"log/slog"
	"time"

	"podshorts/internal/config"
	"podshorts/internal/metrics"
)

// UploadPruner deletes upload ledger rows older than a cutoff.
type UploadPruner interface {
	DeleteUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	UploadsDeleted int64 `json:"uploadsDeleted"`
}

// CleanupExpiredData deletes old upload ledger rows based on retention
// settings so that the database does not grow without bound.
func CleanupExpiredData(ctx context.Context, cfg config.RetentionConfig, st UploadPruner, now time.Time) (RetentionStats, error) {
	var stats RetentionStats
	if cfg.UploadDays <= 0 {
		return stats, nil
	}

	cutoff := now.UTC().AddDate(0, 0, -cfg.UploadDays)
	n, err := st.DeleteUploadsBefore(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.UploadsDeleted = n
	metrics.RecordRetentionUploads(n)
	return stats, nil
}

// Sweeper runs CleanupExpiredData on a fixed interval.
type Sweeper struct {
	cfg    config.RetentionConfig
	store  UploadPruner
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(cfg config.RetentionConfig, st UploadPruner, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cfg: cfg, store: st, logger: logger, now: time.Now}
}

// Start runs the sweep loop in the current goroutine until ctx is done.
// Callers typically run this in its own goroutine. A sweep runs once at
// start and then every CleanupIntervalMinutes.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.store == nil {
		return
	}

	interval := time.Duration(s.cfg.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	stats, err := CleanupExpiredData(ctx, s.cfg, s.store, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("retention_cleanup_failed", "error", err)
		}
		return
	}
	if stats.UploadsDeleted > 0 {
		s.logger.Info("retention_cleanup", "uploads_deleted", stats.UploadsDeleted)
	}
}
