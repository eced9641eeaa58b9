package reports

import (
	"testing"

	"bitbucket.org/milpaydata/lesaudit_backend/models"
)

func TestBuildWaterfallSectionsAndOrder(t *testing.T) {
	snapshot := &models.ExpectedPaySnapshot{
		Month: 3, Year: 2026,
		Components: []models.ExpectedComponent{
			{Component: models.PayComponentBasePay, AmountCents: 348660, Exact: true},
			{Component: models.PayComponentBAH, AmountCents: 177600, Exact: true},
		},
	}
	items := []models.ActualLineItem{
		{RawCode: "BASE PAY", Component: models.PayComponentBasePay, Section: models.PaySectionAllowance, AmountCents: 348660},
		{RawCode: "BAH", Component: models.PayComponentBAH, Section: models.PaySectionAllowance, AmountCents: 175000},
		{RawCode: "CSP", Component: models.PayComponentSeaPay, Section: models.PaySectionAllowance, AmountCents: 25000},
		{RawCode: "FITW", Component: models.PayComponentOther, Section: models.PaySectionTax, AmountCents: 31245},
		{RawCode: "SGLI", Component: models.PayComponentOther, Section: models.PaySectionDeduction, AmountCents: 3100},
		{RawCode: "SGLI", Component: models.PayComponentOther, Section: models.PaySectionDeduction, AmountCents: 3100},
	}

	rows := BuildWaterfall(snapshot, items)
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d: %+v", len(rows), rows)
	}

	// Snapshot rows carry expected and delta.
	if rows[0].Component != models.PayComponentBasePay || rows[0].ExpectedCents == nil || *rows[0].DeltaCents != 0 {
		t.Fatalf("base pay row: %+v", rows[0])
	}
	if rows[1].Component != models.PayComponentBAH || *rows[1].DeltaCents != -2600 {
		t.Fatalf("BAH row: %+v", rows[1])
	}

	// Actual-only allowance next, with no expected side.
	if rows[2].Component != models.PayComponentSeaPay || rows[2].ExpectedCents != nil || rows[2].Exact {
		t.Fatalf("sea pay row: %+v", rows[2])
	}

	// Pass-through sections last, grouped by raw code, never reconciled.
	if rows[3].Section != models.PaySectionDeduction || rows[3].Label != "SGLI" || rows[3].ActualCents != 6200 {
		t.Fatalf("SGLI row: %+v", rows[3])
	}
	if rows[3].ExpectedCents != nil || rows[3].DeltaCents != nil {
		t.Fatalf("pass-through rows must not carry reconciliation numbers: %+v", rows[3])
	}
	if rows[4].Section != models.PaySectionTax || rows[4].Label != "FITW" {
		t.Fatalf("FITW row: %+v", rows[4])
	}
}
