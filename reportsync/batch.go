package reportsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/queue"
	"github.com/sirupsen/logrus"
)

// ImportGroupTag scopes every queued sync action so cancellation never
// touches unrelated queue work.
const ImportGroupTag = "report_import"

const defaultBatchSize = 25

// Worker is the per-sync-type contract of the batch engine. Import and
// Delete must be idempotent: the queue delivers at least once.
type Worker interface {
	Name() string
	// Dependency names the worker whose import must fully drain first,
	// empty when the worker is independent.
	Dependency() string
	// GetItems returns up to limit source ids of the requested page,
	// ascending. With skipExisting the enumeration excludes already
	// imported ids, so it shifts as imports land.
	GetItems(ctx context.Context, limit, page int, days DayLimit, skipExisting bool) ([]int, error)
	// GetTotal counts the ids GetItems would enumerate; with skipExisting
	// it means "remaining to import", matching the enumeration.
	GetTotal(ctx context.Context, days DayLimit, skipExisting bool) (int64, error)
	Import(ctx context.Context, id int) error
	// Delete removes up to batchSize imported rows, lowest ids first, and
	// returns how many were removed.
	Delete(ctx context.Context, batchSize int) (int, error)
	TotalImported(ctx context.Context) (int64, error)
	// CacheContexts lists the report contexts whose cached results are
	// stale after this worker writes.
	CacheContexts() []string
}

func importBatchInitAction(name string) string { return name + "_import_batch_init" }
func importBatchAction(name string) string     { return name + "_import_batch" }
func importSingleAction(name string) string    { return name + "_import_single" }
func deleteBatchInitAction(name string) string { return name + "_delete_batch_init" }
func deleteBatchAction(name string) string     { return name + "_delete_batch" }

// importDependencyPrefix is the depends_on_action prefix that covers the
// whole import chain of a worker, init and batches alike.
func importDependencyPrefix(name string) string { return name + "_import" }

func deleteDependencyPrefix(name string) string { return name + "_delete" }

type importBatchPayload struct {
	Page         int  `json:"page"`
	Days         int  `json:"days"`
	SkipExisting bool `json:"skip_existing"`
}

type importSinglePayload struct {
	Id int `json:"id" validate:"required,gt=0"`
}

// Engine owns the queued batch handlers of every registered sync worker.
type Engine struct {
	Workers   []Worker
	Scheduler queue.Scheduler
	State     *SyncState
	Cache     reports.Cache
	Logger    *logrus.Logger
	BatchSize int
}

func NewEngine(workers []Worker, scheduler queue.Scheduler, state *SyncState) *Engine {
	return &Engine{
		Workers:   workers,
		Scheduler: scheduler,
		State:     state,
		Cache:     reports.RedisCache{},
		Logger:    config.GetLogger(),
		BatchSize: defaultBatchSize,
	}
}

// RegisterHandlers binds every worker's batch actions on the dispatcher.
func (e *Engine) RegisterHandlers(d *queue.Dispatcher) {
	for _, w := range e.Workers {
		worker := w
		d.Register(importBatchInitAction(worker.Name()), func(ctx context.Context, a models.ScheduledAction) error {
			return e.handleImportBatchInit(ctx, worker, a)
		})
		d.Register(importBatchAction(worker.Name()), func(ctx context.Context, a models.ScheduledAction) error {
			return e.handleImportBatch(ctx, worker, a)
		})
		d.Register(importSingleAction(worker.Name()), func(ctx context.Context, a models.ScheduledAction) error {
			return e.handleImportSingle(ctx, worker, a)
		})
		d.Register(deleteBatchInitAction(worker.Name()), func(ctx context.Context, a models.ScheduledAction) error {
			return e.handleDeleteBatchInit(ctx, worker)
		})
		d.Register(deleteBatchAction(worker.Name()), func(ctx context.Context, a models.ScheduledAction) error {
			return e.handleDeleteBatch(ctx, worker)
		})
	}
}

// KnownActions is the full action-name set the engine may have queued.
func (e *Engine) KnownActions() []string {
	var names []string
	for _, w := range e.Workers {
		names = append(names,
			importBatchInitAction(w.Name()),
			importBatchAction(w.Name()),
			importSingleAction(w.Name()),
			deleteBatchInitAction(w.Name()),
			deleteBatchAction(w.Name()),
		)
	}
	return names
}

// ScheduleImportSingle queues a one-record import for the named sync type,
// used when a mutation event arrives for a single source row.
func (e *Engine) ScheduleImportSingle(ctx context.Context, syncName string, id int) error {
	for _, w := range e.Workers {
		if w.Name() == syncName {
			return e.Scheduler.ScheduleNow(ctx, importSingleAction(syncName), importSinglePayload{Id: id}, ImportGroupTag)
		}
	}
	return fmt.Errorf("unknown sync type %q", syncName)
}

func (e *Engine) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return defaultBatchSize
}

func (e *Engine) handleImportBatchInit(ctx context.Context, worker Worker, a models.ScheduledAction) error {
	var p importBatchPayload
	if len(a.Payload) > 0 {
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("%s: decoding init payload: %w", a.ActionName, err)
		}
	}
	p.Page = 1
	return e.Scheduler.ScheduleNow(ctx, importBatchAction(worker.Name()), p, ImportGroupTag)
}

// handleImportBatch imports one page of ids and reschedules while full
// pages keep coming. With skip_existing the next fetch re-requests page 1:
// imported ids drop out of the enumeration, so page 1 is always the next
// unimported slice and the loop converges on an empty page.
func (e *Engine) handleImportBatch(ctx context.Context, worker Worker, a models.ScheduledAction) error {
	var p importBatchPayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return fmt.Errorf("%s: decoding payload: %w", a.ActionName, err)
	}
	if p.Page < 1 {
		p.Page = 1
	}
	days := DayLimitFromSentinel(p.Days)
	limit := e.batchSize()

	ids, err := worker.GetItems(ctx, limit, p.Page, days, p.SkipExisting)
	if err != nil {
		return fmt.Errorf("%s page %d: %w", a.ActionName, p.Page, err)
	}

	started := time.Now()
	for _, id := range ids {
		if err := worker.Import(ctx, id); err != nil {
			return fmt.Errorf("%s importing %d: %w", a.ActionName, id, err)
		}
	}
	e.Logger.WithFields(logrus.Fields{
		"sync":     worker.Name(),
		"page":     p.Page,
		"imported": len(ids),
		"ms":       time.Since(started).Milliseconds(),
	}).Info("import batch done")

	if err := e.bumpImportedCount(ctx, worker); err != nil {
		return err
	}

	if len(ids) == limit {
		next := p
		if p.SkipExisting {
			next.Page = 1
		} else {
			next.Page = p.Page + 1
		}
		return e.Scheduler.ScheduleNow(ctx, importBatchAction(worker.Name()), next, ImportGroupTag)
	}

	// Short page: this worker is drained.
	if err := e.State.MarkDrained(ctx, worker.Name()); err != nil {
		return err
	}
	e.invalidateCaches(worker)
	return e.finishImportIfDrained(ctx)
}

func (e *Engine) handleImportSingle(ctx context.Context, worker Worker, a models.ScheduledAction) error {
	var p importSinglePayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return fmt.Errorf("%s: decoding payload: %w", a.ActionName, err)
	}
	if p.Id <= 0 {
		return fmt.Errorf("%s: id is required", a.ActionName)
	}
	if err := worker.Import(ctx, p.Id); err != nil {
		return fmt.Errorf("%s importing %d: %w", a.ActionName, p.Id, err)
	}
	if err := e.bumpImportedCount(ctx, worker); err != nil {
		return err
	}
	e.invalidateCaches(worker)
	return nil
}

func (e *Engine) handleDeleteBatchInit(ctx context.Context, worker Worker) error {
	return e.Scheduler.ScheduleNow(ctx, deleteBatchAction(worker.Name()), nil, ImportGroupTag)
}

// handleDeleteBatch removes one batch of imported rows and reschedules
// while full batches keep coming.
func (e *Engine) handleDeleteBatch(ctx context.Context, worker Worker) error {
	size := e.batchSize()
	removed, err := worker.Delete(ctx, size)
	if err != nil {
		return fmt.Errorf("%s delete batch: %w", deleteBatchAction(worker.Name()), err)
	}
	e.Logger.WithFields(logrus.Fields{
		"sync":    worker.Name(),
		"removed": removed,
	}).Info("delete batch done")

	if removed == size {
		return e.Scheduler.ScheduleNow(ctx, deleteBatchAction(worker.Name()), nil, ImportGroupTag)
	}

	e.invalidateCaches(worker)
	return e.bumpImportedCount(ctx, worker)
}

// bumpImportedCount re-reads the authoritative imported total instead of
// incrementing, so retried batches cannot drift the counter.
func (e *Engine) bumpImportedCount(ctx context.Context, worker Worker) error {
	imported, err := worker.TotalImported(ctx)
	if err != nil {
		return fmt.Errorf("%s: counting imported: %w", worker.Name(), err)
	}
	return e.State.SetImportedCount(ctx, worker.Name(), imported)
}

// finishImportIfDrained clears the importing flag once every worker has
// seen its terminating short page. Counter equality is not the signal: an
// order without items or a source row deleted mid-import counts toward the
// total but never lands a lookup row.
func (e *Engine) finishImportIfDrained(ctx context.Context) error {
	for _, w := range e.Workers {
		drained, err := e.State.IsDrained(ctx, w.Name())
		if err != nil {
			return err
		}
		if !drained {
			return nil
		}
	}
	return e.State.SetImporting(ctx, false)
}

func (e *Engine) invalidateCaches(worker Worker) {
	if e.Cache == nil {
		return
	}
	for _, contextTag := range worker.CacheContexts() {
		e.Cache.Invalidate(contextTag)
	}
}
