package workflow

import (
	"fmt"
	"sort"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"bitbucket.org/milpaydata/lesaudit_backend/models/reports"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
)

// This file is the only place permission-to-see-data decisions are made.
// Everything upstream produces full-fidelity output; Mask rewrites it for the
// caller's tier server-side, before anything leaves the process.

// MaskedFlag is the tier-gated view of one finding. DeltaCents is nil once
// masked; DeltaBucket always carries the coarse range.
type MaskedFlag struct {
	Component    models.PayComponent `json:"component"`
	Severity     models.FlagSeverity `json:"severity"`
	Message      string              `json:"message"`
	Suggestion   string              `json:"suggestion,omitempty"`
	DeltaCents   *int64              `json:"deltaCents,omitempty"`
	DeltaBucket  string              `json:"deltaBucket"`
	Unverifiable bool                `json:"unverifiable"`
	Exact        bool                `json:"exact"`
	Resolved     bool                `json:"resolved"`
}

type AuditSummary struct {
	RedCount          int `json:"redCount"`
	YellowCount       int `json:"yellowCount"`
	GreenCount        int `json:"greenCount"`
	UnverifiableCount int `json:"unverifiableCount"`
	TotalFlags        int `json:"totalFlags"`
}

// MaskedResult is what leaves the server: flags (possibly truncated/bucketed),
// the hidden count for the upgrade prompt, and the waterfall for unmasked
// tiers only.
type MaskedResult struct {
	Tier            models.SubscriptionTier `json:"tier"`
	Flags           []MaskedFlag            `json:"flags"`
	HiddenFlagCount int                     `json:"hiddenFlagCount"`
	Waterfall       []reports.WaterfallRow  `json:"waterfall,omitempty"`
	Summary         AuditSummary            `json:"summary"`
}

// FullView converts engine output into an unmasked result. The exact delta
// and its bucket are both populated; masking later drops the exact value and
// keeps the bucket, so the two can never disagree.
func FullView(flags []models.Flag, waterfall []reports.WaterfallRow, policy config.MaskingPolicy) MaskedResult {
	out := MaskedResult{
		Tier:      models.TierStaff,
		Waterfall: waterfall,
	}
	for _, f := range flags {
		delta := f.DeltaCents
		out.Flags = append(out.Flags, MaskedFlag{
			Component:    f.Component,
			Severity:     f.Severity,
			Message:      f.Message,
			Suggestion:   f.Suggestion,
			DeltaCents:   &delta,
			DeltaBucket:  deltaBucketLabel(f.AbsDeltaCents(), policy.DeltaBucketBoundsCents),
			Unverifiable: f.Unverifiable,
			Exact:        f.Exact,
			Resolved:     f.Resolved,
		})
		switch f.Severity {
		case models.FlagSeverityRed:
			out.Summary.RedCount++
		case models.FlagSeverityYellow:
			out.Summary.YellowCount++
		case models.FlagSeverityGreen:
			out.Summary.GreenCount++
		}
		if f.Unverifiable {
			out.Summary.UnverifiableCount++
		}
	}
	out.Summary.TotalFlags = len(flags)
	return out
}

// Mask rewrites a result for the caller's tier.
//
// Fail-closed: any tier value other than recognized premium/staff is treated
// as free. Idempotent: masking an already-masked result changes nothing.
func Mask(view MaskedResult, tier models.SubscriptionTier, policy config.MaskingPolicy) MaskedResult {
	tier = models.ParseTier(string(tier))

	out := view
	out.Tier = tier
	if tier.Unmasked() {
		return out
	}

	flags := make([]MaskedFlag, len(view.Flags))
	copy(flags, view.Flags)

	// Red before yellow before green; ties by largest |delta|. Already-masked
	// flags carry no exact delta; the stable sort keeps their prior order.
	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].Severity.Rank() != flags[j].Severity.Rank() {
			return flags[i].Severity.Rank() > flags[j].Severity.Rank()
		}
		if flags[i].DeltaCents != nil && flags[j].DeltaCents != nil {
			return absInt64(*flags[i].DeltaCents) > absInt64(*flags[j].DeltaCents)
		}
		return false
	})

	limit := policy.FreeVisibleFlagLimit
	var visible []MaskedFlag
	hidden := 0
	if policy.UnverifiableCountsTowardLimit {
		if len(flags) > limit {
			visible = flags[:limit]
			hidden = len(flags) - limit
		} else {
			visible = flags
		}
	} else {
		// Unverifiable findings ride along without consuming a slot.
		shown := 0
		for _, f := range flags {
			if f.Unverifiable {
				visible = append(visible, f)
				continue
			}
			if shown < limit {
				visible = append(visible, f)
				shown++
			} else {
				hidden++
			}
		}
	}

	for i := range visible {
		// Rewrite before dropping the delta; an already-masked flag (nil
		// delta) keeps its bucketed message, so double-masking is a no-op.
		if visible[i].DeltaCents != nil {
			visible[i].Message = maskedFlagMessage(visible[i])
		}
		visible[i].DeltaCents = nil
		visible[i].Suggestion = ""
	}

	out.Flags = visible
	out.HiddenFlagCount = view.HiddenFlagCount + hidden
	out.Waterfall = nil
	return out
}

// deltaBucketLabel buckets |delta| against ascending bounds, e.g. with bounds
// [2500, 10000]: "under $25.00", "$25.00-$100.00", "over $100.00".
func deltaBucketLabel(absDeltaCents int64, bounds []int64) string {
	if len(bounds) == 0 {
		return ""
	}
	if absDeltaCents < bounds[0] {
		return fmt.Sprintf("under $%s", utils.FormatCents(bounds[0]))
	}
	for i := 1; i < len(bounds); i++ {
		if absDeltaCents < bounds[i] {
			return fmt.Sprintf("$%s-$%s", utils.FormatCents(bounds[i-1]), utils.FormatCents(bounds[i]))
		}
	}
	return fmt.Sprintf("over $%s", utils.FormatCents(bounds[len(bounds)-1]))
}

// maskedFlagMessage rebuilds a flag message from the coarse fields that
// survive masking. The exact delta, expected, and actual amounts never appear;
// only the bucket range does. Caller guarantees DeltaCents is still set.
func maskedFlagMessage(f MaskedFlag) string {
	label := componentLabel(f.Component)
	if f.Unverifiable {
		return fmt.Sprintf("%s could not be verified against a reference rate.", label)
	}
	switch f.Severity {
	case models.FlagSeverityGreen:
		return fmt.Sprintf("%s matches the expected amount within tolerance.", label)
	default:
		direction := "overpaid"
		if *f.DeltaCents < 0 {
			direction = "underpaid"
		}
		return fmt.Sprintf("%s appears %s by %s.", label, direction, f.DeltaBucket)
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
