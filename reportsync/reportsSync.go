package reportsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// ErrImportInProgress rejects a regenerate while a previous one is still
// populating the lookup tables.
var ErrImportInProgress = errors.New("report data import already in progress")

const (
	regenerateLockKey = importOptionPrefix + "regenerate_lock"
	regenerateLockTTL = 5 * time.Second

	RegenerateStartedMessage = "Report table data is being rebuilt. Please allow some time for data to fully populate."
	DeleteStartedMessage     = "Report table data is being deleted."
)

// ReportsSync orchestrates full rebuilds and teardowns of the lookup
// tables through the queued batch engine.
type ReportsSync struct {
	Engine *Engine
	Lock   *redislock.Client
	Logger *logrus.Logger
}

func NewReportsSync(engine *Engine) *ReportsSync {
	return &ReportsSync{
		Engine: engine,
		Lock:   config.GetRedisLock(),
		Logger: config.GetLogger(),
	}
}

// Regenerate queues a full (re)build of every sync type, dependency
// ordered. Returns ErrImportInProgress when an import is already running;
// the check-then-set of the importing flag runs under a short lock lease so
// two racing callers cannot both pass the guard.
func (r *ReportsSync) Regenerate(ctx context.Context, days DayLimit, skipExisting bool) (string, error) {
	if r.Lock != nil {
		lease, err := r.Lock.Obtain(ctx, regenerateLockKey, regenerateLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return "", ErrImportInProgress
		}
		if err != nil {
			return "", fmt.Errorf("regenerate guard: %w", err)
		}
		defer func() { _ = lease.Release(ctx) }()
	}

	state := r.Engine.State
	if state.IsImporting(ctx) {
		return "", ErrImportInProgress
	}
	if err := state.SetImporting(ctx, true); err != nil {
		return "", fmt.Errorf("marking import in progress: %w", err)
	}

	if err := r.resetImportStats(ctx, days, skipExisting); err != nil {
		_ = state.SetImporting(ctx, false)
		return "", err
	}

	payload := importBatchPayload{Days: days.Sentinel(), SkipExisting: skipExisting}
	for _, worker := range r.Engine.Workers {
		var err error
		if dep := worker.Dependency(); dep != "" {
			err = r.Engine.Scheduler.ScheduleAfter(ctx,
				importBatchInitAction(worker.Name()), payload, ImportGroupTag, importDependencyPrefix(dep))
		} else {
			err = r.Engine.Scheduler.ScheduleNow(ctx,
				importBatchInitAction(worker.Name()), payload, ImportGroupTag)
		}
		if err != nil {
			// Roll the flag back; a half-queued run must stay retriable.
			_ = state.SetImporting(ctx, false)
			return "", fmt.Errorf("queueing %s import: %w", worker.Name(), err)
		}
	}

	r.Logger.WithFields(logrus.Fields{
		"days":          days.String(),
		"skip_existing": skipExisting,
	}).Info("report data regenerate queued")

	return RegenerateStartedMessage, nil
}

// resetImportStats zeroes the per-sync counters and drained markers,
// snapshots the totals and widens the watermark to the new horizon. With
// skipExisting the totals count only what remains to import.
func (r *ReportsSync) resetImportStats(ctx context.Context, days DayLimit, skipExisting bool) error {
	state := r.Engine.State
	for _, worker := range r.Engine.Workers {
		if err := state.ClearDrained(ctx, worker.Name()); err != nil {
			return err
		}
		if err := state.SetImportedCount(ctx, worker.Name(), 0); err != nil {
			return err
		}
		total, err := worker.GetTotal(ctx, days, skipExisting)
		if err != nil {
			return fmt.Errorf("counting %s items: %w", worker.Name(), err)
		}
		if err := state.SetTotalCount(ctx, worker.Name(), total); err != nil {
			return err
		}
	}
	return state.AdvanceWatermark(ctx, days)
}

// DeleteAll cancels queued sync work and queues the teardown of every
// lookup table, reverse dependency order so dependents empty first.
func (r *ReportsSync) DeleteAll(ctx context.Context) (string, error) {
	if _, err := r.ClearQueuedActions(ctx); err != nil {
		return "", err
	}

	workers := r.Engine.Workers
	prev := ""
	for i := len(workers) - 1; i >= 0; i-- {
		worker := workers[i]
		var err error
		if prev == "" {
			err = r.Engine.Scheduler.ScheduleNow(ctx,
				deleteBatchInitAction(worker.Name()), nil, ImportGroupTag)
		} else {
			err = r.Engine.Scheduler.ScheduleAfter(ctx,
				deleteBatchInitAction(worker.Name()), nil, ImportGroupTag, deleteDependencyPrefix(prev))
		}
		if err != nil {
			return "", fmt.Errorf("queueing %s delete: %w", worker.Name(), err)
		}
		prev = worker.Name()
	}

	names := make([]string, 0, len(workers))
	for _, worker := range workers {
		names = append(names, worker.Name())
	}
	if err := r.Engine.State.ClearProgress(ctx, names...); err != nil {
		return "", fmt.Errorf("clearing import progress: %w", err)
	}

	r.Logger.Info("report data teardown queued")
	return DeleteStartedMessage, nil
}

// ClearQueuedActions cancels the engine's own queued actions and nothing
// else in the group.
func (r *ReportsSync) ClearQueuedActions(ctx context.Context) (int64, error) {
	cancelled, err := r.Engine.Scheduler.CancelByActionSet(ctx, r.Engine.KnownActions(), ImportGroupTag)
	if err != nil {
		return 0, fmt.Errorf("cancelling queued sync actions: %w", err)
	}
	return cancelled, nil
}

func (r *ReportsSync) IsImporting(ctx context.Context) bool {
	return r.Engine.State.IsImporting(ctx)
}

// ClearStockCountCache drops every cached stock figure; the next dashboard
// read recomputes them from the products table.
func (r *ReportsSync) ClearStockCountCache(ctx context.Context) error {
	return r.Engine.State.Options.Delete(ctx, reports.StockCountCacheKeys()...)
}
