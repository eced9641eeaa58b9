package models

import "strings"

// taxonomyEntry binds one canonical component and one section to a raw spelling.
type taxonomyEntry struct {
	Component PayComponent
	Section   PaySection
}

// rawCodeTaxonomy maps known LES raw spellings/abbreviations (as printed on
// statements or typed by members) to the canonical taxonomy. Keys are
// normalized upper-case with collapsed whitespace; lookups go through
// Canonicalize, which is total: anything not present here lands in
// OTHER/OTHER and stays visible as its own line item.
var rawCodeTaxonomy = map[string]taxonomyEntry{
	// Entitlements
	"BASE PAY":     {PayComponentBasePay, PaySectionAllowance},
	"BASIC PAY":    {PayComponentBasePay, PaySectionAllowance},
	"BASEPAY":      {PayComponentBasePay, PaySectionAllowance},
	"BAH":          {PayComponentBAH, PaySectionAllowance},
	"BAH W/DEP":    {PayComponentBAH, PaySectionAllowance},
	"BAH WO/DEP":   {PayComponentBAH, PaySectionAllowance},
	"BAH-DIFF":     {PayComponentBAH, PaySectionAllowance},
	"HOUSING":      {PayComponentBAH, PaySectionAllowance},
	"BAS":          {PayComponentBAS, PaySectionAllowance},
	"SUBSISTENCE":  {PayComponentBAS, PaySectionAllowance},
	"COLA":         {PayComponentCOLA, PaySectionAllowance},
	"OCONUS COLA":  {PayComponentCOLA, PaySectionAllowance},
	"CONUS COLA":   {PayComponentCOLA, PaySectionAllowance},
	"ACIP":         {PayComponentAviationPay, PaySectionAllowance},
	"AVIP":         {PayComponentAviationPay, PaySectionAllowance},
	"FLIGHT PAY":   {PayComponentAviationPay, PaySectionAllowance},
	"DIVE PAY":     {PayComponentDivePay, PaySectionAllowance},
	"DIVER PAY":    {PayComponentDivePay, PaySectionAllowance},
	"SDAP":         {PayComponentSDAP, PaySectionAllowance},
	"SPEC DUTY":    {PayComponentSDAP, PaySectionAllowance},
	"HFP":          {PayComponentHFPIDP, PaySectionAllowance},
	"IDP":          {PayComponentHFPIDP, PaySectionAllowance},
	"HFP/IDP":      {PayComponentHFPIDP, PaySectionAllowance},
	"HOSTILE FIRE": {PayComponentHFPIDP, PaySectionAllowance},
	"FLPB":         {PayComponentFLPB, PaySectionAllowance},
	"FLPP":         {PayComponentFLPB, PaySectionAllowance},
	"LANGUAGE PAY": {PayComponentFLPB, PaySectionAllowance},
	"CSP":          {PayComponentSeaPay, PaySectionAllowance},
	"SEA PAY":      {PayComponentSeaPay, PaySectionAllowance},
	"JUMP PAY":     {PayComponentJumpPay, PaySectionAllowance},
	"HDIP PARA":    {PayComponentJumpPay, PaySectionAllowance},

	// Taxes
	"FITW":         {PayComponentOther, PaySectionTax},
	"FED TAXES":    {PayComponentOther, PaySectionTax},
	"FEDERAL TAX":  {PayComponentOther, PaySectionTax},
	"SITW":         {PayComponentOther, PaySectionTax},
	"STATE TAXES":  {PayComponentOther, PaySectionTax},
	"FICA":         {PayComponentOther, PaySectionTax},
	"FICA-SOC SEC": {PayComponentOther, PaySectionTax},
	"FICA-MED":     {PayComponentOther, PaySectionTax},
	"MEDICARE":     {PayComponentOther, PaySectionTax},

	// Deductions
	"SGLI":            {PayComponentOther, PaySectionDeduction},
	"SGLI FAM/SPOUSE": {PayComponentOther, PaySectionDeduction},
	"AFRH":            {PayComponentOther, PaySectionDeduction},
	"MID-MONTH-PAY":   {PayComponentOther, PaySectionDeduction},
	"MIDMONTH PAY":    {PayComponentOther, PaySectionDeduction},
	"TSP":             {PayComponentOther, PaySectionDeduction},
	"ROTH TSP":        {PayComponentOther, PaySectionDeduction},
	"TRICARE DENTAL":  {PayComponentOther, PaySectionDeduction},
	"DEBT":            {PayComponentOther, PaySectionDeduction},
	"PAY GARNISHMENT": {PayComponentOther, PaySectionDeduction},

	// Allotments
	"ALLOTMENT":      {PayComponentOther, PaySectionAllotment},
	"DISC ALLOTMENT": {PayComponentOther, PaySectionAllotment},
	"SAVINGS ALLOT":  {PayComponentOther, PaySectionAllotment},
	"CHARITY ALLOT":  {PayComponentOther, PaySectionAllotment},
}

// Canonicalize resolves a raw code/description to (component, section).
// Total by construction: unknown inputs default to OTHER/OTHER.
func Canonicalize(rawCode string) (PayComponent, PaySection) {
	key := normalizeRawCode(rawCode)
	if entry, ok := rawCodeTaxonomy[key]; ok {
		return entry.Component, entry.Section
	}
	return PayComponentOther, PaySectionOther
}

func normalizeRawCode(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(strings.TrimSpace(raw))), " ")
}
