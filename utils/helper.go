package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// FormatCents renders integer minor-currency units as a dollar string, e.g. 175050 -> "1750.50".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// DollarsToCents converts a decimal dollar amount to integer cents, rounding half away from zero.
func DollarsToCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// PeriodKey returns the quota period bucket for a point in time, e.g. "2026-08".
// Quota periods are calendar months in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// AuditMonthStart returns the first day of an audit month in UTC.
// Rate lookups resolve "as of" this date.
func AuditMonthStart(month int, year int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// GetCacheLifespan is the TTL for read-through caches (entitlement tier).
// CACHE_LIFESPAN is in minutes; defaults to 5.
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 5
	}
	return time.Duration(lifespan) * time.Minute
}

func SprintKey(parts ...any) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "|"
		}
		key += fmt.Sprint(p)
	}
	return key
}
