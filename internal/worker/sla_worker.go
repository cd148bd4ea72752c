package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/persistence"
	"github.com/spec-kit/grievance-portal/internal/service"
)

// SweepLockKey guards the sweep so that one replica runs it at a time.
const SweepLockKey = "sla:sweep:lock"

// Sweeper escalates breached issues.
type Sweeper interface {
	SweepBreaches(ctx context.Context, limit int) (service.SweepResult, error)
}

// SLAWorker runs the breach sweep on a fixed interval.
type SLAWorker struct {
	sweeper  Sweeper
	locks    redis.Cmdable
	interval time.Duration
	batch    int
	owner    string
	logger   *zap.Logger
}

// NewSLAWorker builds a worker. locks may be nil, in which case every
// replica sweeps; escalation stays once per breach episode either way.
func NewSLAWorker(sweeper Sweeper, locks redis.Cmdable, cfg config.IssueConfig, logger *zap.Logger) *SLAWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAWorker{
		sweeper:  sweeper,
		locks:    locks,
		interval: cfg.SweepInterval(),
		batch:    cfg.SLASweepBatchSize,
		owner:    uuid.NewString(),
		logger:   logger.Named("sla_worker"),
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (w *SLAWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sla worker started", zap.Duration("interval", w.interval))
	for {
		if _, _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("sla sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("sla worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. The bool is false when another
// replica held the lock and nothing ran.
func (w *SLAWorker) RunOnce(ctx context.Context) (service.SweepResult, bool, error) {
	if w.locks != nil {
		lock, err := persistence.AcquireLock(ctx, w.locks, SweepLockKey, w.owner, w.lockTTL())
		switch {
		case errors.Is(err, persistence.ErrLockHeld):
			w.logger.Debug("sla sweep skipped; lock held elsewhere")
			return service.SweepResult{}, false, nil
		case err != nil:
			// Redis trouble should not stop escalations.
			w.logger.Warn("sla sweep lock unavailable", zap.Error(err))
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					w.logger.Warn("release sla sweep lock", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	result, err := w.sweeper.SweepBreaches(ctx, w.batch)
	if err != nil {
		return result, true, err
	}
	w.logger.Info("sla sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(start)))
	return result, true, nil
}

func (w *SLAWorker) lockTTL() time.Duration {
	if w.interval < time.Minute {
		return time.Minute
	}
	return w.interval
}
