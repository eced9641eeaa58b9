package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// Error taxonomy for the reconciliation paths.
//
// Compute-path failures degrade partially (a missing rate becomes a warning on
// the snapshot, never a failed audit). Save-path failures are fatal and typed.
var (
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorInvalidInput  = errors.New("invalid input")
	ErrorRateNotFound  = errors.New("reference rate not found")
	ErrorInvalidAmount = errors.New("invalid line item amount")
	ErrorQuotaExceeded = errors.New("save quota exceeded for current period")
	ErrorInvalidStatus = errors.New("operation not allowed in current audit status")
	ErrorAuditLocked   = errors.New("audit is locked by another operation")
)

// TransientStoreError wraps a persistence hiccup that is safe to retry with
// bounded backoff. Surfaced to the caller only after retries are exhausted.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return "transient store error: " + e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error { return e.Err }
