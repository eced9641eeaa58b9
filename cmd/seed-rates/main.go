// seed-rates loads a development rate table: 2026 base pay, BAS, a handful of
// BAH housing areas plus the DEFAULT fallback rows, and flat special-pay
// schedules. Amounts are plausible, not authoritative; production rate loads
// come from the published pay tables, not this tool.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-rates
//
// Idempotent: existing (component, key, effective date) rows are left alone.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var effective2026 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type seedRate struct {
	component   models.PayComponent
	key         string
	amountCents int64
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.RateTableEntry{}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate rate table: %v\n", err)
		os.Exit(1)
	}

	rates := basePayRates()
	rates = append(rates, basRates()...)
	rates = append(rates, bahRates()...)
	rates = append(rates, colaRates()...)
	rates = append(rates, specialPayRates()...)

	inserted, err := upsertRates(ctx, db, rates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed rates: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded rate table: %d rows inserted, %d already present (effective %s)\n",
		inserted, len(rates)-inserted, effective2026.Format("2006-01-02"))
}

func upsertRates(ctx context.Context, db *gorm.DB, rates []seedRate) (int, error) {
	inserted := 0
	for _, r := range rates {
		entry := models.RateTableEntry{
			Component:     r.component,
			RateKey:       r.key,
			EffectiveDate: effective2026,
			AmountCents:   r.amountCents,
		}
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return inserted, res.Error
		}
		if res.RowsAffected > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// basePayRates covers the common enlisted and junior officer cells. Keys are
// "<paygrade>|<yos band>"; amounts are monthly cents.
func basePayRates() []seedRate {
	cells := map[string]map[string]int64{
		"E-1": {"00": 208980},
		"E-2": {"00": 234210},
		"E-3": {"00": 246330, "02": 261810, "03": 277650},
		"E-4": {"00": 272820, "02": 286740, "03": 302310, "04": 317610},
		"E-5": {"00": 297570, "02": 317610, "03": 333000, "04": 348660, "06": 373110},
		"E-6": {"04": 380160, "06": 395880, "08": 418860, "10": 432180},
		"E-7": {"08": 462060, "10": 476820, "12": 503100},
		"E-8": {"10": 530220, "12": 544140, "14": 560760},
		"E-9": {"12": 629520, "14": 643710, "16": 661650},
		"O-1": {"00": 363690, "02": 378570, "03": 457650},
		"O-2": {"00": 419040, "02": 477240, "03": 549630},
		"O-3": {"00": 485010, "02": 549810, "04": 596220, "06": 625530},
		"O-4": {"06": 693540, "08": 724950, "10": 749820},
		"O-5": {"10": 803610, "12": 831390, "14": 867240},
	}
	var out []seedRate
	for paygrade, bands := range cells {
		for band, cents := range bands {
			out = append(out, seedRate{models.PayComponentBasePay, paygrade + "|" + band, cents})
		}
	}
	return out
}

func basRates() []seedRate {
	return []seedRate{
		{models.PayComponentBAS, "ENLISTED", 46066},
		{models.PayComponentBAS, "OFFICER", 31727},
	}
}

// bahRates seeds a few real MHA codes with-dependents and without, plus the
// DEFAULT rows the resolver falls back to when a profile has no location.
func bahRates() []seedRate {
	type bahCell struct {
		mha      string
		paygrade string
		dep      int64
		noDep    int64
	}
	cells := []bahCell{
		{"TX191", "E-4", 165300, 131400}, // San Antonio
		{"TX191", "E-5", 177600, 140700},
		{"TX191", "E-6", 189300, 155100},
		{"CA032", "E-5", 338100, 267300}, // San Diego
		{"CA032", "E-6", 357300, 285000},
		{"CA032", "O-3", 401400, 345000},
		{"VA298", "E-5", 225000, 180600}, // Norfolk
		{"VA298", "E-7", 251100, 208200},
		{"WA325", "E-5", 259800, 204300}, // Bremerton
		{"NC090", "E-4", 147900, 116700}, // Fayetteville
		{"NC090", "E-5", 156300, 125400},
	}
	var out []seedRate
	for _, c := range cells {
		out = append(out,
			seedRate{models.PayComponentBAH, c.mha + "|" + c.paygrade + "|DEP", c.dep},
			seedRate{models.PayComponentBAH, c.mha + "|" + c.paygrade + "|NODEP", c.noDep},
		)
	}
	// National-average fallback rows.
	defaults := []bahCell{
		{"DEFAULT", "E-4", 151200, 120300},
		{"DEFAULT", "E-5", 163500, 129900},
		{"DEFAULT", "E-6", 175800, 142800},
		{"DEFAULT", "E-7", 186000, 154500},
		{"DEFAULT", "O-1", 168300, 139200},
		{"DEFAULT", "O-3", 208500, 176400},
	}
	for _, c := range defaults {
		out = append(out,
			seedRate{models.PayComponentBAH, c.mha + "|" + c.paygrade + "|DEP", c.dep},
			seedRate{models.PayComponentBAH, c.mha + "|" + c.paygrade + "|NODEP", c.noDep},
		)
	}
	return out
}

// colaRates only exist for high-cost areas; most CONUS locations legitimately
// have none, which is why the snapshot builder treats absence as normal.
func colaRates() []seedRate {
	return []seedRate{
		{models.PayComponentCOLA, "CA032|E-5|DEP", 18900},
		{models.PayComponentCOLA, "CA032|E-5|NODEP", 14700},
		{models.PayComponentCOLA, "CA032|O-3|DEP", 24300},
		{models.PayComponentCOLA, "HI407|E-5|DEP", 61200},
		{models.PayComponentCOLA, "HI407|E-5|NODEP", 47400},
		{models.PayComponentCOLA, "HI407|E-6|DEP", 66300},
	}
}

// specialPayRates are mostly flat statutory amounts, seeded under the "ALL"
// fallback key with paygrade-specific rows only where the schedule varies.
func specialPayRates() []seedRate {
	return []seedRate{
		{models.PayComponentHFPIDP, "ALL", 22500},
		{models.PayComponentAviationPay, "ALL", 15000},
		{models.PayComponentAviationPay, "O-3", 25000},
		{models.PayComponentAviationPay, "O-4", 66000},
		{models.PayComponentDivePay, "ALL", 15000},
		{models.PayComponentDivePay, "E-6", 24000},
		{models.PayComponentSDAP, "ALL", 7500},
		{models.PayComponentSDAP, "E-6", 15000},
		{models.PayComponentSDAP, "E-7", 22500},
		{models.PayComponentFLPB, "ALL", 10000},
		{models.PayComponentSeaPay, "ALL", 5000},
		{models.PayComponentSeaPay, "E-5", 25000},
		{models.PayComponentSeaPay, "E-6", 32000},
		{models.PayComponentJumpPay, "ALL", 15000},
	}
}
