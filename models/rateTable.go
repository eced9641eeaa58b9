package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"gorm.io/gorm"
)

// RateTableEntry is one published reference rate for one pay component,
// scoped by a component-specific key and an effective date. Entries are
// immutable once published; rate changes are new rows with later effective
// dates, never updates.
//
// Key shapes per component:
// - BASE_PAY: "<paygrade>|<yos band>"            e.g. "E-5|04"
// - BAH/COLA: "<mha>|<paygrade>|DEP|NODEP"       e.g. "TX191|E-5|DEP"
// - BAS:      "ENLISTED" | "OFFICER"
// - special pays: "<paygrade>" with "ALL" as the documented fallback key
type RateTableEntry struct {
	ID            int          `gorm:"primary_key" json:"id"`
	Component     PayComponent `gorm:"size:30;not null;index:uniq_rate,unique" json:"component"`
	RateKey       string       `gorm:"size:64;not null;index:uniq_rate,unique" json:"rateKey"`
	EffectiveDate time.Time    `gorm:"not null;index:uniq_rate,unique" json:"effectiveDate"`
	AmountCents   int64        `gorm:"not null" json:"amountCents"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"createdAt"`
}

// ErrDuplicateRateKey signals a data-integrity fault: two published entries
// share (component, key, effective date). The unique index makes this
// impossible through this codebase; it can only come from manual loads.
var ErrDuplicateRateKey = errors.New("duplicate rate table key for one effective date")

// RateSource is the narrow interface over the rate-table store: date-ranged,
// exact-key lookup. Returns nil when no entry's effective date is <= asOf.
type RateSource interface {
	LookupRate(ctx context.Context, component PayComponent, key string, asOf time.Time) (*RateTableEntry, error)
}

// GormRateSource reads published rates from the database.
type GormRateSource struct {
	DB *gorm.DB
}

func (s *GormRateSource) LookupRate(ctx context.Context, component PayComponent, key string, asOf time.Time) (*RateTableEntry, error) {
	var entry RateTableEntry
	err := s.DB.WithContext(ctx).
		Where("component = ? AND rate_key = ? AND effective_date <= ?", component, key, asOf).
		Order("effective_date DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &utils.TransientStoreError{Err: err}
	}
	return &entry, nil
}

// MemoryRateSource is a deterministic in-memory source for tests and the
// stateless compute path's preloaded fixtures.
type MemoryRateSource struct {
	Entries []RateTableEntry
}

func (s *MemoryRateSource) LookupRate(ctx context.Context, component PayComponent, key string, asOf time.Time) (*RateTableEntry, error) {
	var candidates []RateTableEntry
	for _, e := range s.Entries {
		if e.Component == component && e.RateKey == key && !e.EffectiveDate.After(asOf) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EffectiveDate.After(candidates[j].EffectiveDate)
	})
	if len(candidates) > 1 && candidates[0].EffectiveDate.Equal(candidates[1].EffectiveDate) {
		return &candidates[0], ErrDuplicateRateKey
	}
	return &candidates[0], nil
}

// RateResolver selects the single effective rate per (component, key, asOf)
// with per-build memoization. One resolver is created per snapshot build and
// thrown away; it is not shared across builds, so parallel builds are safe.
type RateResolver struct {
	source RateSource
	cache  map[string]*RateTableEntry
}

func NewRateResolver(source RateSource) *RateResolver {
	return &RateResolver{
		source: source,
		cache:  map[string]*RateTableEntry{},
	}
}

// Resolve returns the entry with the maximum effective date <= asOf for the
// exact key, trying fallbackKeys in order when the primary key has no entry.
// Fallback use is explicit and logged, never silent: production calculations
// must be able to tell an exact rate from a defaulted one.
// Returns (nil, ErrorRateNotFound) when nothing matches even after fallback.
func (r *RateResolver) Resolve(ctx context.Context, component PayComponent, key string, asOf time.Time, fallbackKeys ...string) (*RateTableEntry, bool, error) {
	logger := config.GetLogger()

	entry, err := r.lookupCached(ctx, component, key, asOf)
	if err != nil && !errors.Is(err, ErrDuplicateRateKey) {
		return nil, false, err
	}
	if errors.Is(err, ErrDuplicateRateKey) {
		// Data-integrity fault: keep the deterministic pick but make noise.
		config.LogError(logger, "rateTable.go", "Resolve", "duplicate effective-date entries",
			map[string]any{"component": component, "key": key}, err)
	}
	if entry != nil {
		return entry, false, nil
	}

	for _, fk := range fallbackKeys {
		entry, err = r.lookupCached(ctx, component, fk, asOf)
		if err != nil && !errors.Is(err, ErrDuplicateRateKey) {
			return nil, false, err
		}
		if entry != nil {
			config.LogWarn(logger, "rateTable.go", "Resolve", "fallback rate key used",
				map[string]any{"component": component, "key": key, "fallbackKey": fk}, "resolved via fallback key")
			return entry, true, nil
		}
	}

	return nil, false, utils.ErrorRateNotFound
}

func (r *RateResolver) lookupCached(ctx context.Context, component PayComponent, key string, asOf time.Time) (*RateTableEntry, error) {
	cacheKey := fmt.Sprintf("%s|%s|%s", component, key, asOf.UTC().Format("2006-01-02"))
	if cached, ok := r.cache[cacheKey]; ok {
		return cached, nil
	}
	entry, err := r.source.LookupRate(ctx, component, key, asOf)
	if err != nil && !errors.Is(err, ErrDuplicateRateKey) {
		return nil, err
	}
	r.cache[cacheKey] = entry
	return entry, err
}
