package models

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/milpaydata/lesaudit_backend/utils"
)

// ExpectedComponent is one resolved entitlement amount inside a snapshot.
// Exact is false when the amount came from a fallback key or could not be
// resolved at all; the response contract surfaces estimate vs exact.
type ExpectedComponent struct {
	Component   PayComponent `json:"component"`
	AmountCents int64        `json:"amountCents"`
	RateKey     string       `json:"rateKey"`
	Exact       bool         `json:"exact"`
}

type DataQualityWarning struct {
	Component PayComponent `json:"component"`
	Code      WarningCode  `json:"code"`
	Message   string       `json:"message"`
}

// ExpectedPaySnapshot is the derived "what this member should have been paid"
// record for one (profile, month, year). Immutable; recomputed from scratch,
// never patched. Components keep a fixed deterministic order.
type ExpectedPaySnapshot struct {
	Month      int                  `json:"month"`
	Year       int                  `json:"year"`
	Components []ExpectedComponent  `json:"components"`
	Warnings   []DataQualityWarning `json:"warnings"`
}

// Component returns the expected entry for a component, if the builder
// attempted it.
func (s *ExpectedPaySnapshot) Component(c PayComponent) (ExpectedComponent, bool) {
	for _, ec := range s.Components {
		if ec.Component == c {
			return ec, true
		}
	}
	return ExpectedComponent{}, false
}

func (s *ExpectedPaySnapshot) TotalExpectedCents() int64 {
	var total int64
	for _, ec := range s.Components {
		total += ec.AmountCents
	}
	return total
}

// BuildExpectedSnapshot resolves every supported component for the profile and
// month. Pure: identical inputs (against an identical rate source) always
// produce an identical snapshot.
//
// Failure semantics: a missing rate zeroes that component and attaches a typed
// warning; the build never fails outright for reference-data gaps. Only store
// transport errors propagate.
func BuildExpectedSnapshot(ctx context.Context, resolver *RateResolver, profile ProfileSnapshot, month int, year int) (*ExpectedPaySnapshot, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month out of range", utils.ErrorInvalidInput)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	asOf := utils.AuditMonthStart(month, year)
	snapshot := &ExpectedPaySnapshot{Month: month, Year: year}

	appendResolved := func(component PayComponent, key string, fallbacks ...string) error {
		entry, usedFallback, err := resolver.Resolve(ctx, component, key, asOf, fallbacks...)
		if err != nil {
			if errors.Is(err, utils.ErrorRateNotFound) {
				snapshot.Components = append(snapshot.Components, ExpectedComponent{
					Component: component,
					RateKey:   key,
					Exact:     false,
				})
				snapshot.Warnings = append(snapshot.Warnings, DataQualityWarning{
					Component: component,
					Code:      WarningRateNotFound,
					Message:   fmt.Sprintf("no reference rate for %s (key %s); expected amount degraded to zero", component, key),
				})
				return nil
			}
			return err
		}
		snapshot.Components = append(snapshot.Components, ExpectedComponent{
			Component:   component,
			AmountCents: entry.AmountCents,
			RateKey:     entry.RateKey,
			Exact:       !usedFallback,
		})
		if usedFallback {
			snapshot.Warnings = append(snapshot.Warnings, DataQualityWarning{
				Component: component,
				Code:      WarningFallbackRate,
				Message:   fmt.Sprintf("%s resolved via fallback key %s; treat as an estimate", component, entry.RateKey),
			})
		}
		return nil
	}

	// Special pay schedules either break out per paygrade or publish one flat
	// ALL row. Both are first-class lookups; resolving through ALL is the
	// normal flat-rate case, not a degraded estimate.
	appendSpecialPay := func(component PayComponent) error {
		entry, _, err := resolver.Resolve(ctx, component, profile.SpecialPayKey(), asOf)
		if errors.Is(err, utils.ErrorRateNotFound) {
			entry, _, err = resolver.Resolve(ctx, component, SpecialPayFallbackKey, asOf)
		}
		if err != nil {
			if errors.Is(err, utils.ErrorRateNotFound) {
				snapshot.Components = append(snapshot.Components, ExpectedComponent{
					Component: component,
					RateKey:   profile.SpecialPayKey(),
					Exact:     false,
				})
				snapshot.Warnings = append(snapshot.Warnings, DataQualityWarning{
					Component: component,
					Code:      WarningRateNotFound,
					Message:   fmt.Sprintf("no reference rate for %s (keys %s, %s); expected amount degraded to zero", component, profile.SpecialPayKey(), SpecialPayFallbackKey),
				})
				return nil
			}
			return err
		}
		snapshot.Components = append(snapshot.Components, ExpectedComponent{
			Component:   component,
			AmountCents: entry.AmountCents,
			RateKey:     entry.RateKey,
			Exact:       true,
		})
		return nil
	}

	if err := appendResolved(PayComponentBasePay, profile.BasePayKey()); err != nil {
		return nil, err
	}

	if profile.LocationCode == "" {
		// Housing still gets an estimate from the non-locality table, but the
		// gap is a data-quality problem worth surfacing on its own.
		snapshot.Warnings = append(snapshot.Warnings, DataQualityWarning{
			Component: PayComponentBAH,
			Code:      WarningMissingLocation,
			Message:   "profile has no duty-location code; housing allowance uses the non-locality rate",
		})
		if err := appendResolved(PayComponentBAH, profile.BAHFallbackKey()); err != nil {
			return nil, err
		}
		// The non-locality amount stands in for an unknown duty station; even
		// though the key resolved directly, the number is an estimate.
		if i := len(snapshot.Components) - 1; snapshot.Components[i].Component == PayComponentBAH {
			snapshot.Components[i].Exact = false
		}
	} else {
		if err := appendResolved(PayComponentBAH, profile.BAHKey(), profile.BAHFallbackKey()); err != nil {
			return nil, err
		}
	}

	if err := appendResolved(PayComponentBAS, profile.BASKey()); err != nil {
		return nil, err
	}

	// COLA publishes rates only for high-cost locations; no entry is the
	// normal CONUS case, not a data fault, so the component is simply absent
	// from the snapshot when unresolvable.
	if profile.LocationCode != "" {
		entry, usedFallback, err := resolver.Resolve(ctx, PayComponentCOLA, profile.COLAKey(), asOf)
		if err != nil && !errors.Is(err, utils.ErrorRateNotFound) {
			return nil, err
		}
		if err == nil {
			snapshot.Components = append(snapshot.Components, ExpectedComponent{
				Component:   PayComponentCOLA,
				AmountCents: entry.AmountCents,
				RateKey:     entry.RateKey,
				Exact:       !usedFallback,
			})
		}
	}

	seen := map[PayComponent]bool{}
	for _, election := range profile.SpecialPays {
		if seen[election.Component] {
			continue
		}
		seen[election.Component] = true

		if election.OverrideCents != nil {
			// Member-declared amount wins over the public schedule; members
			// know their own SDAP level / ACIP step better than we do.
			snapshot.Components = append(snapshot.Components, ExpectedComponent{
				Component:   election.Component,
				AmountCents: *election.OverrideCents,
				RateKey:     "member-declared",
				Exact:       true,
			})
			continue
		}
		if err := appendSpecialPay(election.Component); err != nil {
			return nil, err
		}
	}

	return snapshot, nil
}
