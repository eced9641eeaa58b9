package config

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// Severity thresholds and masking policy are business policy, not structural
// constants. Defaults below are the shipped policy; ops can override per
// component without a deploy via env:
//
// - RECON_TOLERANCES_JSON='{"BAH":{"green":2500,"yellow":10000}}'
// - FREE_VISIBLE_FLAG_LIMIT=3
// - FREE_SAVES_PER_PERIOD=3
// - UNVERIFIABLE_COUNTS_TOWARD_LIMIT=true

// SeverityTolerance is the three-band classification for one pay component,
// in minor-currency units against |delta|:
// |delta| <= Green => green, <= Yellow => yellow, else red.
type SeverityTolerance struct {
	GreenCents  int64 `json:"green"`
	YellowCents int64 `json:"yellow"`
}

// defaultTolerance applies to flat entitlements (base pay, BAS, special pays):
// anything over a dollar is worth a look, over $50 is a red.
var defaultTolerance = SeverityTolerance{GreenCents: 100, YellowCents: 5000}

// componentTolerances: location-scoped allowances swing with mid-month rate
// protection and partial-month proration, so they tolerate larger deltas.
var componentTolerances = map[string]SeverityTolerance{
	"BAH":  {GreenCents: 2500, YellowCents: 10000},
	"COLA": {GreenCents: 2500, YellowCents: 10000},
}

var (
	tolOnce     sync.Once
	tolOverride map[string]SeverityTolerance
)

func loadToleranceOverrides() {
	tolOverride = map[string]SeverityTolerance{}
	raw := strings.TrimSpace(os.Getenv("RECON_TOLERANCES_JSON"))
	if raw == "" {
		return
	}
	var parsed map[string]SeverityTolerance
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		GetLogger().Warnf("ignoring malformed RECON_TOLERANCES_JSON: %v", err)
		return
	}
	tolOverride = parsed
}

// ToleranceFor returns the severity bands for a component code.
// Total: unknown components get the flat-entitlement default.
func ToleranceFor(component string) SeverityTolerance {
	tolOnce.Do(loadToleranceOverrides)
	if t, ok := tolOverride[component]; ok {
		return t
	}
	if t, ok := componentTolerances[component]; ok {
		return t
	}
	return defaultTolerance
}

// MaskingPolicy drives the free-tier output gate.
type MaskingPolicy struct {
	// FreeVisibleFlagLimit is the number of flags a free caller may see.
	FreeVisibleFlagLimit int

	// UnverifiableCountsTowardLimit decides whether yellow "unverifiable"
	// flags (missing reference rate) consume free-tier visibility slots.
	// This is a deliberate named policy choice, not derived behavior.
	UnverifiableCountsTowardLimit bool

	// DeltaBucketBoundsCents are the ascending bucket edges used to replace
	// exact deltas in masked output ("under $X", "$X-$Y", "over $Y").
	DeltaBucketBoundsCents []int64
}

func DefaultMaskingPolicy() MaskingPolicy {
	return MaskingPolicy{
		FreeVisibleFlagLimit:          intFromEnv("FREE_VISIBLE_FLAG_LIMIT", 3),
		UnverifiableCountsTowardLimit: boolFromEnv("UNVERIFIABLE_COUNTS_TOWARD_LIMIT", true),
		DeltaBucketBoundsCents:        []int64{2500, 10000},
	}
}

// FreeSavesPerPeriod is the save quota for free-tier members per calendar month.
func FreeSavesPerPeriod() int64 {
	return int64(intFromEnv("FREE_SAVES_PER_PERIOD", 3))
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
