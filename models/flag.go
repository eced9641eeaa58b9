package models

import "time"

// Flag is one discrepancy finding. Flags are derived data: regenerated as a
// set whenever line items change, never patched row by row. Exactly one flag
// per reconciled component per audit (enforced by uniq_flag).
type Flag struct {
	ID      int    `gorm:"primary_key" json:"id"`
	AuditId string `gorm:"size:36;not null;index:uniq_flag,unique" json:"auditId"`
	UserId  string `gorm:"size:64;not null;index" json:"userId"`

	Component  PayComponent `gorm:"size:30;not null;index:uniq_flag,unique" json:"component"`
	Severity   FlagSeverity `gorm:"size:10;not null" json:"severity"`
	DeltaCents int64        `gorm:"not null" json:"deltaCents"`
	Message    string       `gorm:"size:500;not null" json:"message"`
	Suggestion string       `gorm:"size:500" json:"suggestion"`

	// Unverifiable marks findings where the fault may be in reference data
	// (no rate resolved), not in the member's pay.
	Unverifiable bool `gorm:"not null;default:0" json:"unverifiable"`

	// Exact is false when the expected side is an estimate (fallback or
	// missing rate); the UI must not present the delta as authoritative.
	Exact bool `gorm:"not null;default:1" json:"exact"`

	Resolved bool `gorm:"not null;default:0" json:"resolved"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (f Flag) AbsDeltaCents() int64 {
	if f.DeltaCents < 0 {
		return -f.DeltaCents
	}
	return f.DeltaCents
}
