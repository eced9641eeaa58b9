package workflow

import (
	"fmt"
	"sort"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
)

// BuildFlags diffs an expected snapshot against normalized actual line items
// and emits exactly one flag per reconciled component.
//
// Pure reducer: never mutates its inputs, no store access, deterministic
// output order (snapshot order first, then extra actual-only components by
// name). Safe to re-run any time the inputs change.
func BuildFlags(snapshot *models.ExpectedPaySnapshot, items []models.ActualLineItem) []models.Flag {
	actualSums := models.SumByComponent(items)
	warned := warningIndex(snapshot)

	var flags []models.Flag
	covered := map[models.PayComponent]bool{}

	for _, ec := range snapshot.Components {
		covered[ec.Component] = true
		actual := actualSums[ec.Component]

		if unresolved := warned[ec.Component] == models.WarningRateNotFound; unresolved {
			// The fault is in reference data, not necessarily in the
			// member's pay: unverifiable, never red.
			if actual == 0 {
				// Nothing claimed, nothing verifiable. The snapshot warning
				// already tells the story; a flag would be noise.
				continue
			}
			flags = append(flags, unverifiableFlag(ec.Component, actual))
			continue
		}

		delta := actual - ec.AmountCents
		severity := classifySeverity(ec.Component, delta)
		flags = append(flags, models.Flag{
			Component:    ec.Component,
			Severity:     severity,
			DeltaCents:   delta,
			Message:      flagMessage(ec.Component, severity, delta, ec.AmountCents, actual),
			Suggestion:   flagSuggestion(severity, ec.Component),
			Unverifiable: false,
			Exact:        ec.Exact,
		})
	}

	// Components the member reported pay for that the snapshot never
	// resolved (unknown codes, unelected special pays): unverifiable.
	var extras []models.PayComponent
	for component := range actualSums {
		if !covered[component] {
			extras = append(extras, component)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
	for _, component := range extras {
		flags = append(flags, unverifiableFlag(component, actualSums[component]))
	}

	return flags
}

// classifySeverity maps |delta| to the component's configured three-band
// tolerance. Monotonic in |delta| by construction.
func classifySeverity(component models.PayComponent, deltaCents int64) models.FlagSeverity {
	abs := deltaCents
	if abs < 0 {
		abs = -abs
	}
	tol := config.ToleranceFor(string(component))
	switch {
	case abs <= tol.GreenCents:
		return models.FlagSeverityGreen
	case abs <= tol.YellowCents:
		return models.FlagSeverityYellow
	default:
		return models.FlagSeverityRed
	}
}

func unverifiableFlag(component models.PayComponent, actualCents int64) models.Flag {
	msg := fmt.Sprintf("Received $%s for %s but no reference rate could be resolved; this amount could not be verified.",
		utils.FormatCents(actualCents), componentLabel(component))
	if component == models.PayComponentOther {
		msg = fmt.Sprintf("Unrecognized line items totaling $%s could not be matched to a known pay component.",
			utils.FormatCents(actualCents))
	}
	return models.Flag{
		Component:    component,
		Severity:     models.FlagSeverityYellow,
		DeltaCents:   actualCents,
		Message:      msg,
		Suggestion:   "Check the component code on your statement; if it looks right, the reference tables may be behind.",
		Unverifiable: true,
		Exact:        false,
	}
}

func warningIndex(snapshot *models.ExpectedPaySnapshot) map[models.PayComponent]models.WarningCode {
	idx := map[models.PayComponent]models.WarningCode{}
	for _, w := range snapshot.Warnings {
		// RATE_NOT_FOUND dominates softer warnings for the same component.
		if existing, ok := idx[w.Component]; ok && existing == models.WarningRateNotFound {
			continue
		}
		idx[w.Component] = w.Code
	}
	return idx
}

func flagMessage(component models.PayComponent, severity models.FlagSeverity, deltaCents int64, expectedCents int64, actualCents int64) string {
	label := componentLabel(component)
	switch severity {
	case models.FlagSeverityGreen:
		return fmt.Sprintf("%s matches the expected amount within tolerance ($%s expected, $%s received).",
			label, utils.FormatCents(expectedCents), utils.FormatCents(actualCents))
	default:
		direction := "overpaid"
		if deltaCents < 0 {
			direction = "underpaid"
		}
		abs := deltaCents
		if abs < 0 {
			abs = -abs
		}
		return fmt.Sprintf("%s appears %s by $%s ($%s expected, $%s received).",
			label, direction, utils.FormatCents(abs), utils.FormatCents(expectedCents), utils.FormatCents(actualCents))
	}
}

func flagSuggestion(severity models.FlagSeverity, component models.PayComponent) string {
	switch severity {
	case models.FlagSeverityRed:
		return fmt.Sprintf("Bring this statement and the published %s rate to your finance office; large gaps usually mean a stopped or mis-keyed entitlement.", componentLabel(component))
	case models.FlagSeverityYellow:
		return "Compare against last month's statement; mid-month rate changes and proration commonly explain small gaps."
	default:
		return ""
	}
}

func componentLabel(component models.PayComponent) string {
	labels := map[models.PayComponent]string{
		models.PayComponentBasePay:     "Base pay",
		models.PayComponentBAH:         "Housing allowance (BAH)",
		models.PayComponentBAS:         "Subsistence allowance (BAS)",
		models.PayComponentCOLA:        "Cost-of-living allowance",
		models.PayComponentAviationPay: "Aviation incentive pay",
		models.PayComponentDivePay:     "Dive pay",
		models.PayComponentSDAP:        "Special duty assignment pay",
		models.PayComponentHFPIDP:      "Hostile fire / imminent danger pay",
		models.PayComponentFLPB:        "Foreign language proficiency pay",
		models.PayComponentSeaPay:      "Career sea pay",
		models.PayComponentJumpPay:     "Parachute duty pay",
	}
	if l, ok := labels[component]; ok {
		return l
	}
	return string(component)
}
