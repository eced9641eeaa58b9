package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended save
// semantics:
// - the per-period quota increment admits exactly `limit` saves no matter how
//   requests interleave (models the conditional INSERT..ON DUPLICATE KEY UPDATE)
// - retrying with the same idempotency token never consumes a second slot
//
// Full MySQL integration tests belong in an environment that can run docker.

type fakeQuotaStore struct {
	mu        sync.Mutex
	counts    map[string]int64
	succeeded map[string]bool
	failed    map[string]bool
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{
		counts:    map[string]int64{},
		succeeded: map[string]bool{},
		failed:    map[string]bool{},
	}
}

// save models one SaveAudit call: durable idempotency bracket, then the atomic
// conditional increment inside the transaction, with the bracket closed as
// failed when the transaction rolls back.
func (s *fakeQuotaStore) save(userId, period, token string, limit int64) bool {
	return s.saveWithOutcome(userId, period, token, limit, false)
}

func (s *fakeQuotaStore) saveWithOutcome(userId, period, token string, limit int64, txFails bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := userId + "|AuditSave|" + token
	if s.succeeded[idemKey] {
		return true
	}
	delete(s.failed, idemKey)

	quotaKey := userId + "|audit_save|" + period
	if txFails || s.counts[quotaKey] >= limit {
		// Rolled back: no slot consumed, bracket closed for immediate reuse.
		s.failed[idemKey] = true
		return false
	}
	s.counts[quotaKey]++
	s.succeeded[idemKey] = true
	return true
}

func TestQuotaAdmitsExactlyLimitUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		store := newFakeQuotaStore()
		const limit = 3

		var wg sync.WaitGroup
		results := make([]bool, 20)
		for i := 0; i < len(results); i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = store.save("user-1", "2026-03", tokenFor(i), limit)
			}(i)
		}
		wg.Wait()

		admitted := 0
		for _, ok := range results {
			if ok {
				admitted++
			}
		}
		if admitted != limit {
			t.Fatalf("run=%d admitted %d saves, want exactly %d", run, admitted, limit)
		}
	}
}

func TestQuotaRetryWithSameTokenIsFree(t *testing.T) {
	store := newFakeQuotaStore()
	const limit = 1

	if !store.save("user-1", "2026-03", "tok-a", limit) {
		t.Fatal("first save must be admitted")
	}
	// Client retry after a dropped response: same token, must succeed without
	// another slot.
	if !store.save("user-1", "2026-03", "tok-a", limit) {
		t.Fatal("retry with the same token must be admitted")
	}
	if store.counts["user-1|audit_save|2026-03"] != 1 {
		t.Fatalf("retry consumed a second quota slot: %d", store.counts["user-1|audit_save|2026-03"])
	}
	// A genuinely new save is over quota.
	if store.save("user-1", "2026-03", "tok-b", limit) {
		t.Fatal("second distinct save must be rejected at limit 1")
	}
	// Quota is per user and per period.
	if !store.save("user-2", "2026-03", "tok-c", limit) {
		t.Fatal("another user's save must be admitted")
	}
	if !store.save("user-1", "2026-04", "tok-d", limit) {
		t.Fatal("a new period must reset the quota")
	}
}

func TestFailedSaveDoesNotConsumeQuotaAndTokenIsReusable(t *testing.T) {
	store := newFakeQuotaStore()
	const limit = 2

	// The transaction rolls back: nothing committed, token marked failed.
	if store.saveWithOutcome("user-1", "2026-03", "tok-a", limit, true) {
		t.Fatal("a rolled-back save must not report success")
	}
	if store.counts["user-1|audit_save|2026-03"] != 0 {
		t.Fatalf("rolled-back save consumed a slot: %d", store.counts["user-1|audit_save|2026-03"])
	}
	if !store.failed["user-1|AuditSave|tok-a"] {
		t.Fatal("failed attempt must close the idempotency bracket as failed")
	}

	// The same token retries immediately and takes effect exactly once.
	if !store.save("user-1", "2026-03", "tok-a", limit) {
		t.Fatal("retry after a failed attempt must be admitted")
	}
	if store.counts["user-1|audit_save|2026-03"] != 1 {
		t.Fatalf("retry must consume exactly one slot: %d", store.counts["user-1|audit_save|2026-03"])
	}
	if store.failed["user-1|AuditSave|tok-a"] {
		t.Fatal("successful retry must clear the failed marker")
	}
}

func tokenFor(i int) string {
	return "tok-" + string(rune('a'+i))
}
