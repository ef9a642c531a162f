package models

import (
	"time"
)

const (
	ActionStatusPending    = "PENDING"
	ActionStatusProcessing = "PROCESSING"
	ActionStatusDone       = "DONE"
	ActionStatusFailed     = "FAILED"
	ActionStatusDead       = "DEAD"
	ActionStatusCancelled  = "CANCELLED"
)

// ScheduledAction is one queued background job. Dispatch metadata follows
// the outbox pattern: rows are claimed inside a transaction, retried with
// backoff on failure and parked DEAD after max attempts.
type ScheduledAction struct {
	ID              int            `gorm:"primary_key;index:idx_sa_dispatch,priority:3" json:"id"`
	ActionName      string         `gorm:"size:100;not null;index;index:idx_sa_group_action,priority:2" json:"action_name"`
	Payload         []byte         `gorm:"type:blob" json:"payload"`
	GroupTag        string         `gorm:"size:100;not null;index;index:idx_sa_group_action,priority:1" json:"group_tag"`
	DependsOnAction *string        `gorm:"size:100" json:"depends_on_action"`
	Status          string         `gorm:"size:20;index;not null;default:'PENDING';index:idx_sa_dispatch,priority:1" json:"status"`
	RunAfter        *time.Time     `gorm:"index" json:"run_after"`
	Attempts        int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt   *time.Time     `gorm:"index;index:idx_sa_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt        *time.Time     `gorm:"index" json:"locked_at"`
	LockedBy        *string        `gorm:"size:100" json:"locked_by"`
	LastError       *string        `gorm:"type:text" json:"last_error"`
	CorrelationId   string         `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScheduledAction) TableName() string {
	return "scheduled_actions"
}
