package models

import (
	"fmt"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"github.com/shopspring/decimal"
)

// ActualLineItem is one entry from the member's real pay record after
// normalization. Belongs to exactly one audit; never shared across audits
// (clone copies values into fresh rows).
type ActualLineItem struct {
	ID             int          `gorm:"primary_key" json:"id"`
	AuditId        string       `gorm:"size:36;not null;index" json:"auditId"`
	UserId         string       `gorm:"size:64;not null;index" json:"userId"`
	RawCode        string       `gorm:"size:64;not null" json:"rawCode"`
	RawDescription string       `gorm:"size:255" json:"rawDescription"`
	Component      PayComponent `gorm:"size:30;not null;index" json:"component"`
	Section        PaySection   `gorm:"size:20;not null" json:"section"`
	AmountCents    int64        `gorm:"not null" json:"amountCents"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

// RawLineItemInput is what the client submits: raw code/description as they
// appear on the statement, amount in dollars.
type RawLineItemInput struct {
	Code        string           `json:"code" binding:"required"`
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
}

// NormalizeLineItems canonicalizes raw submissions into the fixed taxonomy.
//
// Unknown raw codes default to OTHER/OTHER and are kept; members must see
// every line they entered, recognized or not. Amount validity fails per item:
// missing always, negative only for sections that are never negative.
func NormalizeLineItems(rawItems []RawLineItemInput) ([]ActualLineItem, error) {
	items := make([]ActualLineItem, 0, len(rawItems))
	for i, raw := range rawItems {
		if raw.Amount == nil {
			return nil, fmt.Errorf("%w: line item %d (%q) has no amount", utils.ErrorInvalidAmount, i, raw.Code)
		}
		component, section := Canonicalize(raw.Code)
		if raw.Amount.IsNegative() && section.NeverNegative() {
			return nil, fmt.Errorf("%w: line item %d (%q) is an allowance and cannot be negative", utils.ErrorInvalidAmount, i, raw.Code)
		}
		items = append(items, ActualLineItem{
			RawCode:        raw.Code,
			RawDescription: raw.Description,
			Component:      component,
			Section:        section,
			AmountCents:    utils.DollarsToCents(*raw.Amount),
		})
	}
	return items, nil
}

// SumByComponent totals normalized amounts per canonical component.
// Only allowance-section items count toward entitlement reconciliation;
// deductions/taxes/allotments belong to the waterfall, not the flags.
func SumByComponent(items []ActualLineItem) map[PayComponent]int64 {
	sums := map[PayComponent]int64{}
	for _, item := range items {
		if item.Section != PaySectionAllowance && item.Section != PaySectionOther {
			continue
		}
		sums[item.Component] += item.AmountCents
	}
	return sums
}
