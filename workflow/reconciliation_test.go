package workflow

import (
	"testing"

	"bitbucket.org/milpaydata/lesaudit_backend/models"
)

// NOTE: These tests are intentionally DB-free. BuildFlags is a pure reducer;
// the semantics under test hold regardless of where snapshot and items came from.

func snapshotWith(components ...models.ExpectedComponent) *models.ExpectedPaySnapshot {
	return &models.ExpectedPaySnapshot{Month: 3, Year: 2026, Components: components}
}

func item(component models.PayComponent, cents int64) models.ActualLineItem {
	return models.ActualLineItem{
		RawCode:     string(component),
		Component:   component,
		Section:     models.PaySectionAllowance,
		AmountCents: cents,
	}
}

func flagFor(t *testing.T, flags []models.Flag, component models.PayComponent) models.Flag {
	t.Helper()
	for _, f := range flags {
		if f.Component == component {
			return f
		}
	}
	t.Fatalf("no flag for %s in %+v", component, flags)
	return models.Flag{}
}

func TestBuildFlagsThreeBandClassification(t *testing.T) {
	snapshot := snapshotWith(
		models.ExpectedComponent{Component: models.PayComponentBasePay, AmountCents: 348660, RateKey: "E-5|04", Exact: true},
		models.ExpectedComponent{Component: models.PayComponentBAH, AmountCents: 180000, RateKey: "TX191|E-5|DEP", Exact: true},
		models.ExpectedComponent{Component: models.PayComponentBAS, AmountCents: 46066, RateKey: "ENLISTED", Exact: true},
	)
	items := []models.ActualLineItem{
		item(models.PayComponentBasePay, 348660), // exact match
		item(models.PayComponentBAH, 175000),     // $50 short, inside BAH yellow band
		item(models.PayComponentBAS, 0),          // stopped entirely
	}

	flags := BuildFlags(snapshot, items)
	if len(flags) != 3 {
		t.Fatalf("expected one flag per component, got %d: %+v", len(flags), flags)
	}

	base := flagFor(t, flags, models.PayComponentBasePay)
	if base.Severity != models.FlagSeverityGreen || base.DeltaCents != 0 {
		t.Fatalf("exact match must be green: %+v", base)
	}

	bah := flagFor(t, flags, models.PayComponentBAH)
	if bah.Severity != models.FlagSeverityYellow || bah.DeltaCents != -5000 {
		t.Fatalf("$50 BAH gap must be yellow with delta -5000: %+v", bah)
	}

	bas := flagFor(t, flags, models.PayComponentBAS)
	if bas.Severity != models.FlagSeverityRed || bas.DeltaCents != -46066 {
		t.Fatalf("stopped BAS must be red: %+v", bas)
	}
}

func TestSeverityIsMonotonicInAbsDelta(t *testing.T) {
	// Sweep deltas both directions; severity rank must never decrease as
	// |delta| grows, and must be sign-symmetric.
	for _, component := range []models.PayComponent{models.PayComponentBasePay, models.PayComponentBAH} {
		prevRank := 0
		for abs := int64(0); abs <= 20000; abs += 50 {
			up := classifySeverity(component, abs)
			down := classifySeverity(component, -abs)
			if up != down {
				t.Fatalf("%s severity not sign-symmetric at %d: %s vs %s", component, abs, up, down)
			}
			if up.Rank() < prevRank {
				t.Fatalf("%s severity rank decreased at |delta|=%d", component, abs)
			}
			prevRank = up.Rank()
		}
	}
}

func TestBuildFlagsUnresolvedComponent(t *testing.T) {
	snapshot := snapshotWith(
		models.ExpectedComponent{Component: models.PayComponentBasePay, AmountCents: 348660, RateKey: "E-5|04", Exact: true},
		models.ExpectedComponent{Component: models.PayComponentSDAP, RateKey: "E-5", Exact: false},
	)
	snapshot.Warnings = []models.DataQualityWarning{
		{Component: models.PayComponentSDAP, Code: models.WarningRateNotFound},
	}

	// Member claims SDAP pay the engine cannot verify: yellow, never red.
	flags := BuildFlags(snapshot, []models.ActualLineItem{
		item(models.PayComponentBasePay, 348660),
		item(models.PayComponentSDAP, 15000),
	})
	sdap := flagFor(t, flags, models.PayComponentSDAP)
	if sdap.Severity != models.FlagSeverityYellow || !sdap.Unverifiable {
		t.Fatalf("unresolved component with actual pay must be an unverifiable yellow: %+v", sdap)
	}

	// Nothing claimed for the unresolved component: no flag at all.
	flags = BuildFlags(snapshot, []models.ActualLineItem{
		item(models.PayComponentBasePay, 348660),
	})
	for _, f := range flags {
		if f.Component == models.PayComponentSDAP {
			t.Fatalf("unresolved component with zero actual must not flag: %+v", f)
		}
	}
}

func TestBuildFlagsExtrasAreUnverifiableAndOrdered(t *testing.T) {
	snapshot := snapshotWith(
		models.ExpectedComponent{Component: models.PayComponentBasePay, AmountCents: 348660, RateKey: "E-5|04", Exact: true},
	)
	items := []models.ActualLineItem{
		item(models.PayComponentBasePay, 348660),
		item(models.PayComponentSeaPay, 25000),
		{RawCode: "XYZ123", Component: models.PayComponentOther, Section: models.PaySectionOther, AmountCents: 4200},
		item(models.PayComponentDivePay, 15000),
	}

	first := BuildFlags(snapshot, items)
	if len(first) != 4 {
		t.Fatalf("expected 4 flags, got %d: %+v", len(first), first)
	}
	// Snapshot components first, then extras sorted by component name.
	wantOrder := []models.PayComponent{
		models.PayComponentBasePay,
		models.PayComponentDivePay,
		models.PayComponentOther,
		models.PayComponentSeaPay,
	}
	for i, want := range wantOrder {
		if first[i].Component != want {
			t.Fatalf("flag[%d] = %s, want %s (%+v)", i, first[i].Component, want, first)
		}
	}
	for _, f := range first[1:] {
		if !f.Unverifiable || f.Severity != models.FlagSeverityYellow {
			t.Fatalf("extra actual-only components must be unverifiable yellows: %+v", f)
		}
	}

	// Map iteration inside must never leak into output order.
	for run := 0; run < 50; run++ {
		again := BuildFlags(snapshot, items)
		for i := range first {
			if again[i].Component != first[i].Component {
				t.Fatalf("run=%d flag order not deterministic", run)
			}
		}
	}
}

func TestBuildFlagsCarriesEstimateMarker(t *testing.T) {
	snapshot := snapshotWith(
		models.ExpectedComponent{Component: models.PayComponentBAH, AmountCents: 163500, RateKey: "DEFAULT|E-5|DEP", Exact: false},
	)
	flags := BuildFlags(snapshot, []models.ActualLineItem{item(models.PayComponentBAH, 163500)})
	bah := flagFor(t, flags, models.PayComponentBAH)
	if bah.Exact {
		t.Fatalf("fallback-based expectation must mark the flag inexact: %+v", bah)
	}
}
