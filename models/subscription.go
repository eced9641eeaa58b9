package models

import (
	"context"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"gorm.io/gorm"
)

// Subscription mirrors the billing service's view of a member. This subsystem
// only reads it to resolve the caller's tier.
type Subscription struct {
	ID               int              `gorm:"primary_key" json:"id"`
	UserId           string           `gorm:"size:64;not null;uniqueIndex" json:"userId"`
	Tier             SubscriptionTier `gorm:"size:16;not null;default:free" json:"tier"`
	CurrentPeriodEnd *time.Time       `json:"currentPeriodEnd,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

// EntitlementStore resolves a caller's subscription tier.
type EntitlementStore interface {
	GetTier(ctx context.Context, userId string) SubscriptionTier
}

// GormEntitlementStore is fail-closed on every path: missing row, store
// error, lapsed period, or an unrecognized tier value all resolve to free.
// Masking must never widen because a lookup went sideways.
type GormEntitlementStore struct {
	DB *gorm.DB
}

func (s *GormEntitlementStore) GetTier(ctx context.Context, userId string) SubscriptionTier {
	cacheKey := "tier:" + userId
	var cached string
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		// Cached values went through ParseTier on the way in; re-parse anyway
		// so a corrupted cache entry still fails closed.
		return ParseTier(cached)
	}

	var sub Subscription
	err := s.DB.WithContext(ctx).Where("user_id = ?", userId).First(&sub).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			config.LogError(config.GetLogger(), "subscription.go", "GetTier", "lookup failed, failing closed to free",
				map[string]any{"userId": userId}, err)
		}
		return TierFree
	}
	tier := ParseTier(string(sub.Tier))
	if tier == TierPremium && sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(time.Now()) {
		tier = TierFree
	}
	// Short TTL: a lapsed or upgraded subscription takes effect within minutes
	// without a per-request DB hit on the hot compute path.
	_ = config.SetRedisObject(cacheKey, string(tier), utils.GetCacheLifespan())
	return tier
}
