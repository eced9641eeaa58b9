package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit is the aggregate root for one member-month reconciliation.
//
// Soft-deleted only: history integrity matters more than storage, and a
// member disputing pay with finance needs the original record intact.
type Audit struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserId string `gorm:"size:64;not null;index:idx_audit_user_month" json:"userId"`

	Month int `gorm:"not null;index:idx_audit_user_month" json:"month"`
	Year  int `gorm:"not null;index:idx_audit_user_month" json:"year"`

	Status AuditStatus `gorm:"size:20;not null;default:draft" json:"status"`

	// Profile fields are snapshotted onto the audit at creation so later
	// profile edits can never drift a historical audit.
	Profile ProfileSnapshot `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`

	// Expected is persisted alongside so the waterfall/export can be served
	// without re-resolving rates. Regenerated on every recompute.
	Expected *ExpectedPaySnapshot `gorm:"serializer:json;type:json" json:"expected,omitempty"`

	// ClonedFromId links a re-audit to its original.
	ClonedFromId *string `gorm:"size:36" json:"clonedFromId,omitempty"`

	LineItems []ActualLineItem `gorm:"foreignKey:AuditId;references:ID" json:"lineItems"`
	Flags     []Flag           `gorm:"foreignKey:AuditId;references:ID" json:"flags"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Audit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
