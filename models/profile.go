package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"gorm.io/gorm"
)

// SpecialPayElection marks the member eligible for one special pay, with an
// optional member-declared monthly amount that overrides the schedule rate
// (members often know their exact SDAP level better than the public tables).
type SpecialPayElection struct {
	Component     PayComponent `json:"component"`
	OverrideCents *int64       `json:"overrideCents,omitempty"`
}

// ProfileSnapshot is the point-in-time copy of profile fields needed to
// resolve rates. It is owned by the caller and never mutated by the engine;
// audits persist their own copy so later profile edits cannot drift a
// historical audit.
type ProfileSnapshot struct {
	Paygrade       Paygrade             `gorm:"size:8" json:"paygrade" binding:"required"`
	LocationCode   string               `gorm:"size:16" json:"locationCode"`
	HasDependents  bool                 `json:"hasDependents"`
	YearsOfService int                  `json:"yearsOfService" binding:"min=0,max=40"`
	SpecialPays    []SpecialPayElection `gorm:"serializer:json;type:json" json:"specialPays"`
}

// yosBands are the "over X years" longevity steps of the pay tables.
var yosBands = []int{2, 3, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30, 32, 34, 36, 38, 40}

// YosBand returns the longevity band for a years-of-service value, zero-padded
// so keys sort lexically ("00", "02", ... "40").
func YosBand(years int) string {
	band := 0
	for _, b := range yosBands {
		if years >= b {
			band = b
		}
	}
	return fmt.Sprintf("%02d", band)
}

// Rate-key builders. One place defines key shapes for both the snapshot
// builder and the seeders.

func (p ProfileSnapshot) BasePayKey() string {
	return utils.SprintKey(p.Paygrade, YosBand(p.YearsOfService))
}

func (p ProfileSnapshot) dependencySuffix() string {
	if p.HasDependents {
		return "DEP"
	}
	return "NODEP"
}

func (p ProfileSnapshot) BAHKey() string {
	return utils.SprintKey(p.LocationCode, p.Paygrade, p.dependencySuffix())
}

// BAHFallbackKey is the non-locality ("DEFAULT") housing rate used when the
// member's MHA has no published entry. Fallback is explicit and logged by the
// resolver; the resulting amount is reported as an estimate.
func (p ProfileSnapshot) BAHFallbackKey() string {
	return utils.SprintKey("DEFAULT", p.Paygrade, p.dependencySuffix())
}

func (p ProfileSnapshot) BASKey() string {
	if p.Paygrade.IsOfficer() {
		return "OFFICER"
	}
	return "ENLISTED"
}

func (p ProfileSnapshot) COLAKey() string {
	return utils.SprintKey(p.LocationCode, p.Paygrade, p.dependencySuffix())
}

func (p ProfileSnapshot) SpecialPayKey() string {
	return string(p.Paygrade)
}

// SpecialPayFallbackKey: flat-rate special pays publish one "ALL" row instead
// of one per paygrade.
const SpecialPayFallbackKey = "ALL"

func (p ProfileSnapshot) Validate() error {
	if !p.Paygrade.Valid() {
		return fmt.Errorf("%w: unknown paygrade %q", utils.ErrorInvalidInput, p.Paygrade)
	}
	if p.YearsOfService < 0 || p.YearsOfService > 40 {
		return fmt.Errorf("%w: years of service out of range", utils.ErrorInvalidInput)
	}
	for _, sp := range p.SpecialPays {
		if !sp.Component.IsSpecialPay() {
			return fmt.Errorf("%w: %q is not a special pay component", utils.ErrorInvalidInput, sp.Component)
		}
		if sp.OverrideCents != nil && *sp.OverrideCents < 0 {
			return fmt.Errorf("%w: special pay override cannot be negative", utils.ErrorInvalidInput)
		}
	}
	return nil
}

// MemberProfile is the persisted profile record backing GetProfile.
type MemberProfile struct {
	ID        int             `gorm:"primary_key" json:"id"`
	UserId    string          `gorm:"size:64;not null;uniqueIndex" json:"userId"`
	Profile   ProfileSnapshot `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ProfileStore supplies profile snapshots; read-only from this subsystem.
type ProfileStore interface {
	GetProfile(ctx context.Context, userId string) (*ProfileSnapshot, error)
}

type GormProfileStore struct {
	DB *gorm.DB
}

func (s *GormProfileStore) GetProfile(ctx context.Context, userId string) (*ProfileSnapshot, error) {
	var record MemberProfile
	err := s.DB.WithContext(ctx).Where("user_id = ?", userId).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, &utils.TransientStoreError{Err: err}
	}
	snapshot := record.Profile
	return &snapshot, nil
}
