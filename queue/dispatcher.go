package queue

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler processes one claimed action. Returning an error reschedules the
// action with backoff until MaxAttempts.
type Handler func(ctx context.Context, action models.ScheduledAction) error

// blockingStatuses are the dependency states that keep a dependent action
// ineligible: anything that has not reached a terminal state yet.
var blockingStatuses = []string{
	models.ActionStatusPending,
	models.ActionStatusProcessing,
	models.ActionStatusFailed,
}

type Dispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	handlers map[string]Handler
}

func NewDispatcher(db *gorm.DB, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		handlers:       map[string]Handler{},
	}
}

// Register binds a handler to an action name. Not safe to call once Run has
// started.
func (d *Dispatcher) Register(actionName string, handler Handler) {
	if d.handlers == nil {
		d.handlers = map[string]Handler{}
	}
	d.handlers[actionName] = handler
}

func (d *Dispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.ScheduledAction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED, due, and with no unfinished dependency rows
		//   in the same group. depends_on_action is an action-name prefix,
		//   so a chain that reschedules itself under new names keeps its
		//   dependents blocked until the whole chain drains.
		// - PROCESSING but the lock is stale (worker crashed mid-batch),
		//   reclaimed after LockTimeout
		q := tx.
			Where(`
				(
					status IN ?
					AND (run_after IS NULL OR run_after <= ?)
					AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
					AND (
						depends_on_action IS NULL
						OR NOT EXISTS (
							SELECT 1 FROM scheduled_actions AS dep
							WHERE dep.group_tag = scheduled_actions.group_tag
							AND dep.action_name LIKE CONCAT(scheduled_actions.depends_on_action, '%')
							AND dep.status IN ?
						)
					)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.ActionStatusPending, models.ActionStatusFailed}, now, now,
				blockingStatuses, models.ActionStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison actions go terminal instead of looping forever.
			if d.MaxAttempts > 0 && claimed[i].Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].Status = models.ActionStatusDead
				if err := tx.Model(&models.ScheduledAction{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.ActionStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].Status = models.ActionStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			claimed[i].LastError = nil
			if err := tx.Model(&models.ScheduledAction{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          claimed[i].Status,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, action := range claimed {
		if action.Status == models.ActionStatusDead {
			continue
		}
		handler, ok := d.handlers[action.ActionName]
		if !ok {
			d.markFailed(ctx, action, fmt.Errorf("no handler registered for %s", action.ActionName))
			continue
		}
		if err := handler(ctx, action); err != nil {
			d.markFailed(ctx, action, err)
			continue
		}
		d.markDone(ctx, action.ID)
	}
}

func (d *Dispatcher) markDone(ctx context.Context, actionID int) {
	_ = d.DB.WithContext(ctx).Model(&models.ScheduledAction{}).
		Where("id = ?", actionID).
		Updates(map[string]interface{}{
			"status":          models.ActionStatusDone,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *Dispatcher) markFailed(ctx context.Context, action models.ScheduledAction, err error) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if d.MaxAttempts > 0 && action.Attempts >= d.MaxAttempts {
		_ = db.Model(&models.ScheduledAction{}).
			Where("id = ?", action.ID).
			Updates(map[string]interface{}{
				"status":          models.ActionStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "Dispatcher",
				"action":    action.ActionName,
				"group_tag": action.GroupTag,
				"action_id": action.ID,
				"attempt":   action.Attempts,
			}).Error("action moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		return
	}

	next := now.Add(d.backoffDelay(action.Attempts))
	_ = db.Model(&models.ScheduledAction{}).
		Where("id = ?", action.ID).
		Updates(map[string]interface{}{
			"status":          models.ActionStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "Dispatcher",
			"action":          action.ActionName,
			"group_tag":       action.GroupTag,
			"action_id":       action.ID,
			"attempt":         action.Attempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("action failed: " + fmt.Sprintf("%v", err))
	}
}

// backoffDelay doubles the initial backoff per prior attempt, capped at ten
// minutes.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	return backoff
}
