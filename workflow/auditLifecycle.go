package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"bitbucket.org/milpaydata/lesaudit_backend/models/reports"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	saveHandlerName = "AuditSave"
	saveQuotaRoute  = "audit_save"

	// Persistence calls retry transient store errors at most twice.
	maxSaveAttempts = 3
)

// Deps bundles the stores the lifecycle functions need. The reconciliation
// path itself stays pure; only these entry points touch the database.
type Deps struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Rates        models.RateSource
	Entitlements models.EntitlementStore
}

// ComputeOnce runs the full reconciliation pipeline statelessly: nothing is
// persisted, quota is never consulted, and the result is already masked for
// the caller's tier. This is the hot path and must stay cheap: once rates are
// resolved there are no external calls.
func ComputeOnce(ctx context.Context, rates models.RateSource, profile models.ProfileSnapshot, month int, year int, rawItems []models.RawLineItemInput, tier models.SubscriptionTier) (MaskedResult, error) {
	items, err := models.NormalizeLineItems(rawItems)
	if err != nil {
		return MaskedResult{}, err
	}
	resolver := models.NewRateResolver(rates)
	snapshot, err := models.BuildExpectedSnapshot(ctx, resolver, profile, month, year)
	if err != nil {
		return MaskedResult{}, err
	}
	flags := BuildFlags(snapshot, items)
	waterfall := reports.BuildWaterfall(snapshot, items)

	policy := config.DefaultMaskingPolicy()
	return Mask(FullView(flags, waterfall, policy), tier, policy), nil
}

// CreateDraftAudit persists a new draft audit with normalized line items.
// Flags stay absent until the first recompute.
func CreateDraftAudit(ctx context.Context, deps Deps, userId string, month int, year int, profile models.ProfileSnapshot, rawItems []models.RawLineItemInput) (*models.Audit, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month out of range", utils.ErrorInvalidInput)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	items, err := models.NormalizeLineItems(rawItems)
	if err != nil {
		return nil, err
	}

	audit := models.Audit{
		UserId:  userId,
		Month:   month,
		Year:    year,
		Status:  models.AuditStatusDraft,
		Profile: profile,
	}
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&audit).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		for i := range items {
			items[i].AuditId = audit.ID
			items[i].UserId = userId
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return &utils.TransientStoreError{Err: err}
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(deps.Logger, "auditLifecycle.go", "CreateDraftAudit", "persisting draft", map[string]any{"userId": userId}, err)
		return nil, err
	}
	audit.LineItems = items
	return &audit, nil
}

// ReplaceLineItems swaps the audit's line items for a freshly normalized set.
// Any edit moves the audit back to draft and discards stale flags; they are
// derived data and get regenerated on the next recompute.
func ReplaceLineItems(ctx context.Context, deps Deps, auditId string, rawItems []models.RawLineItemInput) (*models.Audit, error) {
	items, err := models.NormalizeLineItems(rawItems)
	if err != nil {
		return nil, err
	}

	var audit models.Audit
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAuditLock(tx, auditId); err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		defer ReleaseAuditLock(tx, auditId)

		if err := loadAudit(tx, auditId, &audit); err != nil {
			return err
		}
		if audit.Status == models.AuditStatusReadyToSubmit {
			return fmt.Errorf("%w: audit is ready_to_submit; clone it to edit", utils.ErrorInvalidStatus)
		}

		if err := tx.Where("audit_id = ?", auditId).Delete(&models.ActualLineItem{}).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		if err := tx.Where("audit_id = ?", auditId).Delete(&models.Flag{}).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		for i := range items {
			items[i].AuditId = audit.ID
			items[i].UserId = audit.UserId
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return &utils.TransientStoreError{Err: err}
			}
		}
		if err := tx.Model(&models.Audit{}).Where("id = ?", auditId).
			Select("Status", "Expected").
			Updates(models.Audit{Status: models.AuditStatusDraft, Expected: nil}).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.Status = models.AuditStatusDraft
	audit.Expected = nil
	audit.LineItems = items
	audit.Flags = nil
	return &audit, nil
}

// RecomputeAudit re-runs snapshot building and reconciliation for a persisted
// audit and transitions draft -> computed. Recomputing an already computed
// audit just regenerates its flags. Serialized per audit: redis lock as a
// cheap first gate, MySQL advisory lock as the real one.
func RecomputeAudit(ctx context.Context, deps Deps, auditId string) (*models.Audit, error) {
	if lock := obtainRedisAuditLock(auditId); lock != nil {
		defer lock.Release(config.GetRedisContext())
	}

	var audit models.Audit
	err := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAuditLock(tx, auditId); err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		defer ReleaseAuditLock(tx, auditId)

		if err := loadAudit(tx, auditId, &audit); err != nil {
			return err
		}
		if audit.Status == models.AuditStatusReadyToSubmit {
			return fmt.Errorf("%w: audit is frozen; clone it to re-audit", utils.ErrorInvalidStatus)
		}

		resolver := models.NewRateResolver(deps.Rates)
		snapshot, err := models.BuildExpectedSnapshot(ctx, resolver, audit.Profile, audit.Month, audit.Year)
		if err != nil {
			return err
		}
		flags := BuildFlags(snapshot, audit.LineItems)
		for i := range flags {
			flags[i].AuditId = audit.ID
			flags[i].UserId = audit.UserId
		}

		if err := tx.Where("audit_id = ?", auditId).Delete(&models.Flag{}).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		if len(flags) > 0 {
			if err := tx.Create(&flags).Error; err != nil {
				return &utils.TransientStoreError{Err: err}
			}
		}
		if err := tx.Model(&models.Audit{}).Where("id = ?", auditId).
			Select("Status", "Expected").
			Updates(models.Audit{Status: models.AuditStatusComputed, Expected: snapshot}).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}

		audit.Status = models.AuditStatusComputed
		audit.Expected = snapshot
		audit.Flags = flags
		return nil
	})
	if err != nil {
		config.LogError(deps.Logger, "auditLifecycle.go", "RecomputeAudit", "recompute", map[string]any{"auditId": auditId}, err)
		return nil, err
	}
	return &audit, nil
}

// SaveAudit transitions computed -> ready_to_submit. Free-tier saves are
// quota-checked against the atomic per-period counter; the increment and the
// status change commit or roll back together, so two concurrent saves can
// never both observe "under quota".
//
// idemToken makes retries safe: a token that already SUCCEEDED returns the
// saved audit without consuming another quota slot.
func SaveAudit(ctx context.Context, deps Deps, userId string, auditId string, idemToken string) (*models.Audit, error) {
	tier := deps.Entitlements.GetTier(ctx, userId)
	if idemToken == "" {
		idemToken = uuid.NewString()
	}

	// The idempotency bracket commits outside the save transaction so the
	// STARTED row survives a rollback. A crash mid-save leaves it behind;
	// the stale window in BeginIdempotency unblocks the token.
	skip, err := BeginIdempotency(deps.DB.WithContext(ctx), userId, saveHandlerName, idemToken)
	if err != nil {
		if errors.Is(err, ErrIdempotencyInProgress) {
			return nil, err
		}
		return nil, &utils.TransientStoreError{Err: err}
	}
	if skip {
		// Earlier attempt with this token already saved; no quota slot burns.
		var audit models.Audit
		if err := loadAudit(deps.DB.WithContext(ctx), auditId, &audit); err != nil {
			return nil, err
		}
		return &audit, nil
	}

	var audit models.Audit
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		lastErr = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := AcquireAuditLock(tx, auditId); err != nil {
				return &utils.TransientStoreError{Err: err}
			}
			defer ReleaseAuditLock(tx, auditId)

			if err := loadAudit(tx, auditId, &audit); err != nil {
				return err
			}

			if audit.Status != models.AuditStatusComputed {
				return fmt.Errorf("%w: only computed audits can be saved (current: %s)", utils.ErrorInvalidStatus, audit.Status)
			}

			if !tier.Unmasked() {
				allowed, count, err := models.IncrementQuotaIfUnder(ctx, tx, userId, saveQuotaRoute, utils.PeriodKey(time.Now()), config.FreeSavesPerPeriod())
				if err != nil {
					return err
				}
				if !allowed {
					config.LogWarn(deps.Logger, "auditLifecycle.go", "SaveAudit", "quota exhausted",
						map[string]any{"userId": userId, "count": count}, "free-tier save rejected")
					return utils.ErrorQuotaExceeded
				}
			}

			if err := tx.Model(&models.Audit{}).Where("id = ?", auditId).
				Update("status", models.AuditStatusReadyToSubmit).Error; err != nil {
				return &utils.TransientStoreError{Err: err}
			}
			if err := MarkIdempotencySucceeded(tx, userId, saveHandlerName, idemToken); err != nil {
				return &utils.TransientStoreError{Err: err}
			}
			audit.Status = models.AuditStatusReadyToSubmit
			return nil
		})

		var transient *utils.TransientStoreError
		if lastErr == nil || !errors.As(lastErr, &transient) {
			break
		}
		if attempt < maxSaveAttempts {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}
	if lastErr != nil {
		// Close the bracket as FAILED so an immediate retry with the same
		// token is not held behind the in-flight window.
		if markErr := MarkIdempotencyFailed(deps.DB.WithContext(ctx), userId, saveHandlerName, idemToken, lastErr); markErr != nil {
			config.LogWarn(deps.Logger, "auditLifecycle.go", "SaveAudit", "marking idempotency failed",
				map[string]any{"auditId": auditId, "token": idemToken}, markErr.Error())
		}
		config.LogError(deps.Logger, "auditLifecycle.go", "SaveAudit", "save", map[string]any{"auditId": auditId}, lastErr)
		return nil, lastErr
	}
	return &audit, nil
}

// CloneAudit creates a fresh draft copying the profile snapshot and line
// items but never the flags, which are always regenerated. This backs the
// "re-audit after talking to finance" workflow without losing the original.
func CloneAudit(ctx context.Context, deps Deps, auditId string) (*models.Audit, error) {
	var clone models.Audit
	err := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.Audit
		if err := loadAudit(tx, auditId, &original); err != nil {
			return err
		}

		var items []models.ActualLineItem
		clone, items = draftCopyOf(&original)
		if err := tx.Create(&clone).Error; err != nil {
			return &utils.TransientStoreError{Err: err}
		}
		for i := range items {
			items[i].AuditId = clone.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return &utils.TransientStoreError{Err: err}
			}
		}
		clone.LineItems = items
		return nil
	})
	if err != nil {
		config.LogError(deps.Logger, "auditLifecycle.go", "CloneAudit", "clone", map[string]any{"auditId": auditId}, err)
		return nil, err
	}
	return &clone, nil
}

// draftCopyOf builds the unsaved clone: profile and line-item values copied
// into fresh records, flags and the computed snapshot left behind, lineage via
// ClonedFromId. Item AuditId is filled in after the clone row gets its id.
func draftCopyOf(original *models.Audit) (models.Audit, []models.ActualLineItem) {
	clone := models.Audit{
		UserId:       original.UserId,
		Month:        original.Month,
		Year:         original.Year,
		Status:       models.AuditStatusDraft,
		Profile:      original.Profile,
		ClonedFromId: &original.ID,
	}
	items := make([]models.ActualLineItem, 0, len(original.LineItems))
	for _, item := range original.LineItems {
		items = append(items, models.ActualLineItem{
			UserId:         original.UserId,
			RawCode:        item.RawCode,
			RawDescription: item.RawDescription,
			Component:      item.Component,
			Section:        item.Section,
			AmountCents:    item.AmountCents,
		})
	}
	return clone, items
}

// DeleteAudit soft-deletes; history is never hard-deleted.
func DeleteAudit(ctx context.Context, deps Deps, auditId string) error {
	res := deps.DB.WithContext(ctx).Where("id = ?", auditId).Delete(&models.Audit{})
	if res.Error != nil {
		return &utils.TransientStoreError{Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// AuditView assembles the tier-gated read model for a persisted audit.
func AuditView(ctx context.Context, deps Deps, auditId string, tier models.SubscriptionTier) (MaskedResult, *models.Audit, error) {
	var audit models.Audit
	if err := loadAudit(deps.DB.WithContext(ctx), auditId, &audit); err != nil {
		return MaskedResult{}, nil, err
	}

	policy := config.DefaultMaskingPolicy()
	var waterfall []reports.WaterfallRow
	if audit.Expected != nil {
		waterfall = reports.BuildWaterfall(audit.Expected, audit.LineItems)
	}
	view := Mask(FullView(audit.Flags, waterfall, policy), tier, policy)
	return view, &audit, nil
}

func loadAudit(tx *gorm.DB, auditId string, dest *models.Audit) error {
	err := tx.Preload("LineItems").Preload("Flags").Where("id = ?", auditId).First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return &utils.TransientStoreError{Err: err}
	}
	return nil
}
