package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"gorm.io/gorm"
)

// Scheduler enqueues background actions. At-least-once delivery; handlers
// must be idempotent. A group tag scopes cancellation so unrelated work is
// never touched.
type Scheduler interface {
	ScheduleNow(ctx context.Context, actionName string, payload interface{}, groupTag string) error
	ScheduleAfter(ctx context.Context, actionName string, payload interface{}, groupTag string, dependsOnAction string) error
	CancelByGroup(ctx context.Context, groupTag string) (int64, error)
	CancelByActionSet(ctx context.Context, actionNames []string, groupTag string) (int64, error)
}

// cancellableStatuses are the states a queued action can still be pulled
// back from. PROCESSING rows are left to finish; terminal rows stay put.
var cancellableStatuses = []string{models.ActionStatusPending, models.ActionStatusFailed}

// Store is the gorm-backed Scheduler over the scheduled_actions table.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) ScheduleNow(ctx context.Context, actionName string, payload interface{}, groupTag string) error {
	return s.schedule(ctx, actionName, payload, groupTag, nil)
}

// ScheduleAfter enqueues an action that stays ineligible while any action
// whose name starts with dependsOnAction in the same group has not
// finished.
func (s *Store) ScheduleAfter(ctx context.Context, actionName string, payload interface{}, groupTag string, dependsOnAction string) error {
	return s.schedule(ctx, actionName, payload, groupTag, &dependsOnAction)
}

func (s *Store) schedule(ctx context.Context, actionName string, payload interface{}, groupTag string, dependsOnAction *string) error {
	if actionName == "" {
		return fmt.Errorf("schedule: action name is required")
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("schedule %s: encoding payload: %w", actionName, err)
		}
		body = b
	}

	now := time.Now().UTC()
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	action := models.ScheduledAction{
		ActionName:      actionName,
		Payload:         body,
		GroupTag:        groupTag,
		DependsOnAction: dependsOnAction,
		Status:          models.ActionStatusPending,
		RunAfter:        &now,
		CorrelationId:   cid,
	}
	if err := s.DB.WithContext(ctx).Create(&action).Error; err != nil {
		return fmt.Errorf("schedule %s: %w", actionName, err)
	}
	return nil
}

// CancelByGroup cancels every still-cancellable action in the group.
func (s *Store) CancelByGroup(ctx context.Context, groupTag string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.ScheduledAction{}).
		Where("group_tag = ?", groupTag).
		Where("status IN ?", cancellableStatuses).
		Updates(map[string]interface{}{
			"status":          models.ActionStatusCancelled,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cancel group %s: %w", groupTag, result.Error)
	}
	return result.RowsAffected, nil
}

// CancelByActionSet cancels only the named actions inside the group, so
// callers owning a known action set never cancel foreign work that happens
// to share the group tag.
func (s *Store) CancelByActionSet(ctx context.Context, actionNames []string, groupTag string) (int64, error) {
	if len(actionNames) == 0 {
		return 0, nil
	}
	result := s.DB.WithContext(ctx).Model(&models.ScheduledAction{}).
		Where("group_tag = ?", groupTag).
		Where("action_name IN ?", actionNames).
		Where("status IN ?", cancellableStatuses).
		Updates(map[string]interface{}{
			"status":          models.ActionStatusCancelled,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cancel actions in group %s: %w", groupTag, result.Error)
	}
	return result.RowsAffected, nil
}
