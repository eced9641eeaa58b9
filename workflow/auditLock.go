package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// AcquireAuditLock serializes edits/recomputation per audit across instances
// using MySQL advisory locks, so two concurrent line-item edits cannot race a
// recompute into a lost update.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB (transaction) that will do the mutation.
func AcquireAuditLock(tx *gorm.DB, auditId string) error {
	lockName := fmt.Sprintf("audit:%s", auditId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: audit_id=%s", utils.ErrorAuditLocked, auditId)
	}
	return nil
}

func ReleaseAuditLock(tx *gorm.DB, auditId string) {
	lockName := fmt.Sprintf("audit:%s", auditId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainRedisAuditLock is a best-effort optimization that short-circuits
// obviously concurrent recomputes before they hit the database.
// Reliability must not depend on Redis: AcquireAuditLock on MySQL is the
// real serializer.
func obtainRedisAuditLock(auditId string) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(config.GetRedisContext(), "lock:audit:"+auditId, 10*time.Second, nil)
	if err != nil {
		return nil
	}
	return lock
}
