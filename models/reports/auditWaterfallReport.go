package reports

import (
	"sort"

	"bitbucket.org/milpaydata/lesaudit_backend/models"
)

// WaterfallRow is one line of the full expected-vs-actual breakdown.
// ExpectedCents is nil for sections this subsystem has no reference data for
// (deductions, taxes, allotments): those are carried for completeness, not
// reconciled.
type WaterfallRow struct {
	Component     models.PayComponent `json:"component"`
	Section       models.PaySection   `json:"section"`
	Label         string              `json:"label"`
	ExpectedCents *int64              `json:"expectedCents,omitempty"`
	ActualCents   int64               `json:"actualCents"`
	DeltaCents    *int64              `json:"deltaCents,omitempty"`
	Exact         bool                `json:"exact"`
}

// BuildWaterfall produces the full per-component breakdown: entitlement rows
// from the snapshot (with actual sums folded in), then actual-only allowance
// components, then the pass-through sections grouped by raw code. Pure.
func BuildWaterfall(snapshot *models.ExpectedPaySnapshot, items []models.ActualLineItem) []WaterfallRow {
	actualSums := models.SumByComponent(items)

	var rows []WaterfallRow
	covered := map[models.PayComponent]bool{}

	for _, ec := range snapshot.Components {
		covered[ec.Component] = true
		expected := ec.AmountCents
		actual := actualSums[ec.Component]
		delta := actual - expected
		rows = append(rows, WaterfallRow{
			Component:     ec.Component,
			Section:       models.PaySectionAllowance,
			Label:         string(ec.Component),
			ExpectedCents: &expected,
			ActualCents:   actual,
			DeltaCents:    &delta,
			Exact:         ec.Exact,
		})
	}

	var extras []models.PayComponent
	for component := range actualSums {
		if !covered[component] {
			extras = append(extras, component)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
	for _, component := range extras {
		rows = append(rows, WaterfallRow{
			Component:   component,
			Section:     models.PaySectionAllowance,
			Label:       string(component),
			ActualCents: actualSums[component],
			Exact:       false,
		})
	}

	// Deductions, taxes and allotments: not reconciled, shown as entered.
	type passKey struct {
		section models.PaySection
		raw     string
	}
	passSums := map[passKey]int64{}
	var passKeys []passKey
	for _, item := range items {
		if item.Section == models.PaySectionAllowance || item.Section == models.PaySectionOther {
			continue
		}
		k := passKey{item.Section, item.RawCode}
		if _, ok := passSums[k]; !ok {
			passKeys = append(passKeys, k)
		}
		passSums[k] += item.AmountCents
	}
	sort.Slice(passKeys, func(i, j int) bool {
		if passKeys[i].section != passKeys[j].section {
			return passKeys[i].section < passKeys[j].section
		}
		return passKeys[i].raw < passKeys[j].raw
	})
	for _, k := range passKeys {
		rows = append(rows, WaterfallRow{
			Component:   models.PayComponentOther,
			Section:     k.section,
			Label:       k.raw,
			ActualCents: passSums[k],
			Exact:       true,
		})
	}

	return rows
}
