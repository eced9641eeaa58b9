package models

import (
	"context"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"gorm.io/gorm"
)

// QuotaCounter rate-limits free-tier save operations per calendar month.
// Compute operations are unlimited and never touch this table.
//
// Unique constraint (user_id, route, period) is what makes the
// increment-if-under upsert atomic under concurrency.
type QuotaCounter struct {
	ID     int    `gorm:"primary_key" json:"id"`
	UserId string `gorm:"size:64;not null;index:uniq_quota,unique" json:"user_id"`
	Route  string `gorm:"size:64;not null;index:uniq_quota,unique" json:"route"`
	Period string `gorm:"size:10;not null;index:uniq_quota,unique" json:"period"`
	Count  int64  `gorm:"not null;default:0" json:"count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IncrementQuotaIfUnder atomically increments the counter unless it is already
// at limit. Single statement, so two concurrent saves cannot both observe
// "under quota": MySQL reports rows-affected 1 for a fresh insert, 2 for an
// update that changed the row, and 0 when the IF() left the count alone;
// 0 means the caller lost.
func IncrementQuotaIfUnder(ctx context.Context, db *gorm.DB, userId string, route string, period string, limit int64) (bool, int64, error) {
	if limit <= 0 {
		return false, 0, nil
	}

	res := db.WithContext(ctx).Exec(`
INSERT INTO quota_counters (user_id, route, period, count, created_at, updated_at)
VALUES (?, ?, ?, 1, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    count = IF(count < ?, count + 1, count),
    updated_at = IF(count < ?, NOW(), updated_at)`,
		userId, route, period, limit, limit)
	if res.Error != nil {
		return false, 0, &utils.TransientStoreError{Err: res.Error}
	}
	allowed := res.RowsAffected > 0

	var counter QuotaCounter
	if err := db.WithContext(ctx).
		Where("user_id = ? AND route = ? AND period = ?", userId, route, period).
		First(&counter).Error; err != nil {
		return allowed, 0, &utils.TransientStoreError{Err: err}
	}
	return allowed, counter.Count, nil
}
