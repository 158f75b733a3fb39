package model

import "errors"

// Sentinel errors shared by LocalStore, SyncQueue and SyncEngine so all
// three layers can classify failures with errors.Is regardless of which
// component first produced them (spec.md §7's failure taxonomy).
var (
	// ErrNetwork is a transient transport failure; retried with backoff.
	ErrNetwork = errors.New("network error")

	// ErrRemoteReject carries a server-side rejection; retried with backoff
	// up to MaxRetries.
	ErrRemoteReject = errors.New("remote rejected write")

	// ErrUnauthenticated aborts the current drain pass without incrementing
	// retry count.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrNotFound means the referenced record is missing; terminal for the
	// item it was raised for.
	ErrNotFound = errors.New("record not found")

	// ErrReceiptNotSynced means a dependent expense's receipt has not yet
	// received a server id; transient.
	ErrReceiptNotSynced = errors.New("receipt not yet synced")

	// ErrStorageQuotaExceeded is a fatal local write-back failure.
	ErrStorageQuotaExceeded = errors.New("local storage quota exceeded")

	// ErrDuplicateKey is returned when a local_id already exists in a
	// collection.
	ErrDuplicateKey = errors.New("duplicate local_id")
)

// RemoteRejectError wraps ErrRemoteReject with the server's verbatim
// message, stored on the record's sync_error field for diagnostics.
type RemoteRejectError struct {
	Message string
}

func (e *RemoteRejectError) Error() string { return e.Message }
func (e *RemoteRejectError) Unwrap() error  { return ErrRemoteReject }
