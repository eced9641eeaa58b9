package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey provides durable, DB-backed idempotency for save retries:
// a retried save with the same client token must not burn a second quota slot.
// Unique constraint: (user_id, handler_name, token).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	UserId      string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"user_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	Token       string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"token"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
