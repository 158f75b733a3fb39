package jobcache

import (
	"time"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/store"
)

const (
	estimatedBytesPerExpense = 1024
	estimatedBytesPerReceipt = 512 * 1024

	defaultCleanupAge = 7 * 24 * time.Hour
)

// QuotaEstimate is a best-effort local storage usage report. Platform
// quota APIs are out of scope for this core; the estimate below is the
// fallback spec.md §4.F calls for.
type QuotaEstimate struct {
	ExpenseCount   int
	ReceiptCount   int
	EstimatedBytes int64
}

// StorageAccountant estimates local storage usage and reclaims space used
// by records that have already synced.
type StorageAccountant struct {
	store *store.Store
}

func NewStorageAccountant(s *store.Store) *StorageAccountant {
	return &StorageAccountant{store: s}
}

// Estimate reports the best-effort storage usage.
func (a *StorageAccountant) Estimate() (QuotaEstimate, error) {
	var out QuotaEstimate
	var err error
	if out.ExpenseCount, err = a.store.CountExpenses(nil); err != nil {
		return out, err
	}
	if out.ReceiptCount, err = a.store.CountReceipts(nil); err != nil {
		return out, err
	}
	out.EstimatedBytes = int64(out.ExpenseCount)*estimatedBytesPerExpense + int64(out.ReceiptCount)*estimatedBytesPerReceipt
	return out, nil
}

// CleanupResult reports how many records of each kind were reclaimed.
type CleanupResult struct {
	ExpensesRemoved   int
	ReceiptsRemoved   int
	QueueItemsRemoved int
}

// CleanupSynced removes synced records and completed queue items older
// than olderThan (default 7 days per spec.md §4.F). now is passed
// explicitly so callers can use a Clock port.
func (a *StorageAccountant) CleanupSynced(now time.Time, olderThan time.Duration) (CleanupResult, error) {
	if olderThan <= 0 {
		olderThan = defaultCleanupAge
	}

	var result CleanupResult
	var err error

	result.ExpensesRemoved, err = a.store.DeleteExpensesWhere(func(e *model.Expense) bool {
		return e.SyncStatus == model.SyncSynced && now.Sub(e.UpdatedAt) > olderThan
	})
	if err != nil {
		return result, err
	}

	result.ReceiptsRemoved, err = a.store.DeleteReceiptsWhere(func(r *model.Receipt) bool {
		return r.SyncStatus == model.SyncSynced && now.Sub(r.CreatedAt) > olderThan
	})
	if err != nil {
		return result, err
	}

	result.QueueItemsRemoved, err = a.store.DeleteQueueItemsWhere(func(i *model.SyncQueueItem) bool {
		if i.Status != model.QueueCompleted {
			return false
		}
		// An item that succeeded on its first attempt has no LastAttempt;
		// its age is then measured from CreatedAt.
		at := i.CreatedAt
		if i.LastAttempt != nil {
			at = *i.LastAttempt
		}
		return now.Sub(at) > olderThan
	})
	return result, err
}
