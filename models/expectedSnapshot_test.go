package models

import (
	"context"
	"reflect"
	"testing"
)

func e5Profile() ProfileSnapshot {
	return ProfileSnapshot{
		Paygrade:       "E-5",
		LocationCode:   "TX191",
		HasDependents:  true,
		YearsOfService: 4,
	}
}

func fullRateSource() *MemoryRateSource {
	return &MemoryRateSource{Entries: []RateTableEntry{
		rateEntry(PayComponentBasePay, "E-5|04", "2026-01-01", 348660),
		rateEntry(PayComponentBAH, "TX191|E-5|DEP", "2026-01-01", 177600),
		rateEntry(PayComponentBAH, "DEFAULT|E-5|DEP", "2026-01-01", 163500),
		rateEntry(PayComponentBAS, "ENLISTED", "2026-01-01", 46066),
		rateEntry(PayComponentSDAP, "ALL", "2026-01-01", 7500),
	}}
}

func TestBuildExpectedSnapshotIsDeterministic(t *testing.T) {
	source := fullRateSource()
	profile := e5Profile()
	profile.SpecialPays = []SpecialPayElection{{Component: PayComponentSDAP}}

	first, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(source), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	for run := 0; run < 10; run++ {
		again, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(source), profile, 3, 2026)
		if err != nil {
			t.Fatalf("run=%d BuildExpectedSnapshot: %v", run, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run=%d snapshot not deterministic:\nfirst: %+v\nagain: %+v", run, first, again)
		}
	}

	// Fixed component order: entitlements first, then elected special pays.
	wantOrder := []PayComponent{PayComponentBasePay, PayComponentBAH, PayComponentBAS, PayComponentSDAP}
	if len(first.Components) != len(wantOrder) {
		t.Fatalf("component count: %d, want %d (%+v)", len(first.Components), len(wantOrder), first.Components)
	}
	for i, want := range wantOrder {
		if first.Components[i].Component != want {
			t.Fatalf("component[%d] = %s, want %s", i, first.Components[i].Component, want)
		}
	}
	if len(first.Warnings) != 0 {
		t.Fatalf("clean profile must produce no warnings: %+v", first.Warnings)
	}
}

func TestBuildExpectedSnapshotDegradesPartially(t *testing.T) {
	// Only base pay resolvable: the build still succeeds, with the gaps
	// zeroed and typed warnings attached instead of an error.
	source := &MemoryRateSource{Entries: []RateTableEntry{
		rateEntry(PayComponentBasePay, "E-5|04", "2026-01-01", 348660),
	}}

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(source), e5Profile(), 3, 2026)
	if err != nil {
		t.Fatalf("missing reference rates must degrade, not fail: %v", err)
	}

	base, ok := snapshot.Component(PayComponentBasePay)
	if !ok || base.AmountCents != 348660 || !base.Exact {
		t.Fatalf("base pay: %+v ok=%v", base, ok)
	}
	bah, ok := snapshot.Component(PayComponentBAH)
	if !ok || bah.AmountCents != 0 || bah.Exact {
		t.Fatalf("unresolvable BAH must be zero and inexact: %+v", bah)
	}

	warned := map[PayComponent]WarningCode{}
	for _, w := range snapshot.Warnings {
		warned[w.Component] = w.Code
	}
	if warned[PayComponentBAH] != WarningRateNotFound || warned[PayComponentBAS] != WarningRateNotFound {
		t.Fatalf("expected RATE_NOT_FOUND warnings for BAH and BAS: %+v", snapshot.Warnings)
	}
}

func TestBuildExpectedSnapshotBAHFallback(t *testing.T) {
	profile := e5Profile()
	profile.LocationCode = "ZZ999" // no published entry

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	bah, ok := snapshot.Component(PayComponentBAH)
	if !ok {
		t.Fatal("BAH component missing")
	}
	if bah.AmountCents != 163500 || bah.Exact {
		t.Fatalf("BAH must fall back to the non-locality rate as an estimate: %+v", bah)
	}
	found := false
	for _, w := range snapshot.Warnings {
		if w.Component == PayComponentBAH && w.Code == WarningFallbackRate {
			found = true
		}
	}
	if !found {
		t.Fatalf("fallback use must carry a warning: %+v", snapshot.Warnings)
	}
}

func TestBuildExpectedSnapshotMissingLocation(t *testing.T) {
	profile := e5Profile()
	profile.LocationCode = ""

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	bah, _ := snapshot.Component(PayComponentBAH)
	if bah.AmountCents != 163500 {
		t.Fatalf("no location must use the DEFAULT housing rate: %+v", bah)
	}
	// The number stands in for an unknown duty station, so it is an estimate
	// even though the DEFAULT key resolved directly.
	if bah.Exact {
		t.Fatalf("non-locality housing amount must be inexact: %+v", bah)
	}
	found := false
	for _, w := range snapshot.Warnings {
		if w.Code == WarningMissingLocation {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing location must be surfaced: %+v", snapshot.Warnings)
	}
	// No COLA attempt without a location; absence is not an error.
	if _, ok := snapshot.Component(PayComponentCOLA); ok {
		t.Fatal("COLA must not appear without a duty location")
	}
}

func TestBuildExpectedSnapshotFlatSpecialPayIsExact(t *testing.T) {
	// SDAP publishes a single flat ALL row. Resolving through it is the
	// normal case: exact, no warning.
	profile := e5Profile()
	profile.SpecialPays = []SpecialPayElection{{Component: PayComponentSDAP}}

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	sdap, ok := snapshot.Component(PayComponentSDAP)
	if !ok {
		t.Fatal("SDAP missing")
	}
	if sdap.AmountCents != 7500 || !sdap.Exact || sdap.RateKey != "ALL" {
		t.Fatalf("flat-schedule special pay must resolve exactly via ALL: %+v", sdap)
	}
	for _, w := range snapshot.Warnings {
		if w.Component == PayComponentSDAP {
			t.Fatalf("flat-schedule resolution must not warn: %+v", w)
		}
	}
}

func TestBuildExpectedSnapshotSpecialPayPaygradeRowPreferred(t *testing.T) {
	source := fullRateSource()
	source.Entries = append(source.Entries, rateEntry(PayComponentSDAP, "E-5", "2026-01-01", 15000))
	profile := e5Profile()
	profile.SpecialPays = []SpecialPayElection{{Component: PayComponentSDAP}}

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(source), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	sdap, _ := snapshot.Component(PayComponentSDAP)
	if sdap.AmountCents != 15000 || !sdap.Exact || sdap.RateKey != "E-5" {
		t.Fatalf("paygrade row must win over the ALL row: %+v", sdap)
	}
}

func TestBuildExpectedSnapshotSpecialPayUnpublished(t *testing.T) {
	profile := e5Profile()
	profile.SpecialPays = []SpecialPayElection{{Component: PayComponentDivePay}} // no rows at all

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	dive, ok := snapshot.Component(PayComponentDivePay)
	if !ok || dive.AmountCents != 0 || dive.Exact {
		t.Fatalf("unpublished special pay must degrade to zero inexact: %+v ok=%v", dive, ok)
	}
	found := false
	for _, w := range snapshot.Warnings {
		if w.Component == PayComponentDivePay && w.Code == WarningRateNotFound {
			found = true
		}
	}
	if !found {
		t.Fatalf("unpublished special pay must carry RATE_NOT_FOUND: %+v", snapshot.Warnings)
	}
}

func TestBuildExpectedSnapshotSpecialPayOverrideWins(t *testing.T) {
	override := int64(22500)
	profile := e5Profile()
	profile.SpecialPays = []SpecialPayElection{
		{Component: PayComponentSDAP, OverrideCents: &override},
		{Component: PayComponentSDAP}, // duplicate election is ignored
	}

	snapshot, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), profile, 3, 2026)
	if err != nil {
		t.Fatalf("BuildExpectedSnapshot: %v", err)
	}
	sdap, ok := snapshot.Component(PayComponentSDAP)
	if !ok {
		t.Fatal("SDAP missing")
	}
	if sdap.AmountCents != override || !sdap.Exact || sdap.RateKey != "member-declared" {
		t.Fatalf("member-declared override must replace the schedule rate: %+v", sdap)
	}
	count := 0
	for _, c := range snapshot.Components {
		if c.Component == PayComponentSDAP {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("duplicate elections must collapse to one component, got %d", count)
	}
}

func TestBuildExpectedSnapshotRejectsBadInput(t *testing.T) {
	if _, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), e5Profile(), 13, 2026); err == nil {
		t.Fatal("month 13 must be rejected")
	}
	bad := e5Profile()
	bad.Paygrade = "E-11"
	if _, err := BuildExpectedSnapshot(context.Background(), NewRateResolver(fullRateSource()), bad, 3, 2026); err == nil {
		t.Fatal("unknown paygrade must be rejected")
	}
}
