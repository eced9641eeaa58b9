package workflow

import (
	"reflect"
	"testing"

	"bitbucket.org/milpaydata/lesaudit_backend/models"
)

func TestDraftCopyPreservesInputsNotDerivedState(t *testing.T) {
	original := &models.Audit{
		ID:     "aud-original",
		UserId: "user-1",
		Month:  3,
		Year:   2026,
		Status: models.AuditStatusReadyToSubmit,
		Profile: models.ProfileSnapshot{
			Paygrade:       "E-5",
			LocationCode:   "TX191",
			HasDependents:  true,
			YearsOfService: 4,
		},
		Expected: &models.ExpectedPaySnapshot{Month: 3, Year: 2026},
		LineItems: []models.ActualLineItem{
			{ID: 11, AuditId: "aud-original", UserId: "user-1", RawCode: "BASE PAY", Component: models.PayComponentBasePay, Section: models.PaySectionAllowance, AmountCents: 348660},
			{ID: 12, AuditId: "aud-original", UserId: "user-1", RawCode: "BAH", Component: models.PayComponentBAH, Section: models.PaySectionAllowance, AmountCents: 175000},
		},
		Flags: []models.Flag{
			{ID: 21, AuditId: "aud-original", Component: models.PayComponentBAH, Severity: models.FlagSeverityYellow},
		},
	}

	clone, items := draftCopyOf(original)

	if clone.Status != models.AuditStatusDraft {
		t.Fatalf("clone must start as draft, got %s", clone.Status)
	}
	if clone.Expected != nil || len(clone.Flags) != 0 {
		t.Fatal("derived state must never be cloned; it is regenerated")
	}
	if clone.ClonedFromId == nil || *clone.ClonedFromId != original.ID {
		t.Fatalf("clone must keep lineage: %v", clone.ClonedFromId)
	}
	if !reflect.DeepEqual(clone.Profile, original.Profile) {
		t.Fatalf("profile snapshot must be copied verbatim: %+v", clone.Profile)
	}
	if clone.Month != 3 || clone.Year != 2026 || clone.UserId != "user-1" {
		t.Fatalf("clone header wrong: %+v", clone)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 copied items, got %d", len(items))
	}
	for i, item := range items {
		// Fresh rows: no carried ids, no audit binding until the clone is saved.
		if item.ID != 0 || item.AuditId != "" {
			t.Fatalf("item %d carried persistence identity: %+v", i, item)
		}
		if item.RawCode != original.LineItems[i].RawCode || item.AmountCents != original.LineItems[i].AmountCents {
			t.Fatalf("item %d values not preserved: %+v", i, item)
		}
	}
}
