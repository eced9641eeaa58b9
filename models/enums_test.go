package models

import "testing"

func TestAuditStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AuditStatus
		ok       bool
	}{
		{AuditStatusDraft, AuditStatusComputed, true},
		{AuditStatusDraft, AuditStatusReadyToSubmit, false},
		{AuditStatusComputed, AuditStatusReadyToSubmit, true},
		{AuditStatusComputed, AuditStatusDraft, true},
		{AuditStatusReadyToSubmit, AuditStatusDraft, false},
		{AuditStatusReadyToSubmit, AuditStatusComputed, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Fatalf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestParseTierFailsClosed(t *testing.T) {
	for _, raw := range []string{"", "FREE", "Premium", "gold", "admin", "staff ", "null"} {
		if ParseTier(raw) != TierFree {
			t.Fatalf("ParseTier(%q) must fail closed to free", raw)
		}
	}
	if ParseTier("premium") != TierPremium || ParseTier("staff") != TierStaff {
		t.Fatal("recognized tiers must parse exactly")
	}
	if TierFree.Unmasked() {
		t.Fatal("free tier must never be unmasked")
	}
}

func TestPaygradeOfficerDetection(t *testing.T) {
	if Paygrade("E-5").IsOfficer() || !Paygrade("O-3").IsOfficer() || !Paygrade("W-2").IsOfficer() {
		t.Fatal("officer detection wrong")
	}
}
