package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// PayComponent is the canonical taxonomy for reconcilable pay components.
// Everything downstream of the normalizer branches on these, never on raw codes.
type PayComponent string

const (
	PayComponentBasePay PayComponent = "BASE_PAY"
	PayComponentBAH     PayComponent = "BAH"
	PayComponentBAS     PayComponent = "BAS"
	PayComponentCOLA    PayComponent = "COLA"

	// Special / incentive pays. Flat monthly schedules unless noted.
	PayComponentAviationPay PayComponent = "AVIP"
	PayComponentDivePay     PayComponent = "DIVE_PAY"
	PayComponentSDAP        PayComponent = "SDAP"
	PayComponentHFPIDP      PayComponent = "HFP_IDP"
	PayComponentFLPB        PayComponent = "FLPB"
	PayComponentSeaPay      PayComponent = "SEA_PAY"
	PayComponentJumpPay     PayComponent = "JUMP_PAY"

	// PayComponentOther is the total-default bucket for unrecognized raw codes.
	PayComponentOther PayComponent = "OTHER"
)

// EntitlementComponents are the components the expected snapshot builder
// attempts to resolve, in fixed order so derived output is deterministic.
var EntitlementComponents = []PayComponent{
	PayComponentBasePay,
	PayComponentBAH,
	PayComponentBAS,
	PayComponentCOLA,
}

// SpecialPayComponents are resolvable only when the profile is eligible.
var SpecialPayComponents = []PayComponent{
	PayComponentAviationPay,
	PayComponentDivePay,
	PayComponentSDAP,
	PayComponentHFPIDP,
	PayComponentFLPB,
	PayComponentSeaPay,
	PayComponentJumpPay,
}

func (c PayComponent) Valid() bool {
	switch c {
	case PayComponentBasePay, PayComponentBAH, PayComponentBAS, PayComponentCOLA,
		PayComponentAviationPay, PayComponentDivePay, PayComponentSDAP,
		PayComponentHFPIDP, PayComponentFLPB, PayComponentSeaPay,
		PayComponentJumpPay, PayComponentOther:
		return true
	}
	return false
}

func (c PayComponent) IsSpecialPay() bool {
	for _, s := range SpecialPayComponents {
		if s == c {
			return true
		}
	}
	return false
}

type PaySection string

const (
	PaySectionAllowance PaySection = "ALLOWANCE"
	PaySectionDeduction PaySection = "DEDUCTION"
	PaySectionTax       PaySection = "TAX"
	PaySectionAllotment PaySection = "ALLOTMENT"
	PaySectionOther     PaySection = "OTHER"
)

func (s PaySection) Valid() bool {
	switch s {
	case PaySectionAllowance, PaySectionDeduction, PaySectionTax, PaySectionAllotment, PaySectionOther:
		return true
	}
	return false
}

// NeverNegative reports whether an amount in this section can never be
// negative on a real pay record. Allowances are paid, not charged.
func (s PaySection) NeverNegative() bool {
	return s == PaySectionAllowance
}

type FlagSeverity string

const (
	FlagSeverityGreen  FlagSeverity = "green"
	FlagSeverityYellow FlagSeverity = "yellow"
	FlagSeverityRed    FlagSeverity = "red"
)

// Rank orders severities for truncation: red before yellow before green.
func (s FlagSeverity) Rank() int {
	switch s {
	case FlagSeverityRed:
		return 3
	case FlagSeverityYellow:
		return 2
	case FlagSeverityGreen:
		return 1
	}
	return 0
}

type AuditStatus string

const (
	AuditStatusDraft         AuditStatus = "draft"
	AuditStatusComputed      AuditStatus = "computed"
	AuditStatusReadyToSubmit AuditStatus = "ready_to_submit"
)

var ErrInvalidAuditStatus = errors.New("invalid audit status")

// CanTransitionTo encodes the audit state machine:
// draft -> computed -> ready_to_submit; any edit drops computed back to draft;
// ready_to_submit is terminal (further work requires a clone).
func (s AuditStatus) CanTransitionTo(next AuditStatus) bool {
	switch s {
	case AuditStatusDraft:
		return next == AuditStatusComputed
	case AuditStatusComputed:
		return next == AuditStatusDraft || next == AuditStatusReadyToSubmit
	case AuditStatusReadyToSubmit:
		return false
	}
	return false
}

func (s *AuditStatus) Scan(value interface{}) error {
	str, ok := value.(string)
	if !ok {
		if b, ok := value.([]byte); ok {
			str = string(b)
		} else {
			return fmt.Errorf("audit status must be string, got %T", value)
		}
	}
	*s = AuditStatus(str)
	return nil
}

func (s AuditStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// SubscriptionTier controls output fidelity. Masking decisions are made in
// exactly one place (workflow.Mask); everything else stays masking-agnostic.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
	TierStaff   SubscriptionTier = "staff"
)

// ParseTier is fail-closed: anything that is not a recognized premium/staff
// value is treated as free.
func ParseTier(raw string) SubscriptionTier {
	switch SubscriptionTier(raw) {
	case TierPremium:
		return TierPremium
	case TierStaff:
		return TierStaff
	default:
		return TierFree
	}
}

// Unmasked reports whether this tier sees full-fidelity output.
func (t SubscriptionTier) Unmasked() bool {
	return t == TierPremium || t == TierStaff
}

// WarningCode classifies data-quality degradations on an expected snapshot.
// A warned component is an estimate, not an exact number, and the response
// contract must say so.
type WarningCode string

const (
	WarningRateNotFound    WarningCode = "RATE_NOT_FOUND"
	WarningFallbackRate    WarningCode = "FALLBACK_RATE_USED"
	WarningDuplicateRate   WarningCode = "DUPLICATE_RATE_KEY"
	WarningMissingLocation WarningCode = "MISSING_LOCATION_CODE"
)

type Paygrade string

// IsOfficer reports whether a paygrade is an officer grade (O/W prefix).
// Used for the BAS key, which only distinguishes officer vs enlisted.
func (p Paygrade) IsOfficer() bool {
	if len(p) == 0 {
		return false
	}
	return p[0] == 'O' || p[0] == 'W'
}

func (p Paygrade) Valid() bool {
	validPaygrades := map[Paygrade]bool{
		"E-1": true, "E-2": true, "E-3": true, "E-4": true, "E-5": true,
		"E-6": true, "E-7": true, "E-8": true, "E-9": true,
		"W-1": true, "W-2": true, "W-3": true, "W-4": true, "W-5": true,
		"O-1": true, "O-2": true, "O-3": true, "O-4": true, "O-5": true,
		"O-6": true, "O-7": true, "O-8": true, "O-9": true, "O-10": true,
	}
	return validPaygrades[p]
}
