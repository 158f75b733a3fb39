package jobcache

import (
	"time"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/store"
)

// StaleCounts reports, per collection, how many records are stuck: a
// record is stale when its sync_status is pending or failed and it is
// older than the configured threshold (spec.md §4.F).
type StaleCounts struct {
	Expenses int
	Receipts int
}

// StaleScanner reports stuck records; it never modifies state.
type StaleScanner struct {
	store      *store.Store
	staleAfter time.Duration
}

func NewStaleScanner(s *store.Store, staleAfter time.Duration) *StaleScanner {
	return &StaleScanner{store: s, staleAfter: staleAfter}
}

func isStuck(status model.SyncStatus) bool {
	return status == model.SyncPending || status == model.SyncFailed
}

// Scan counts stale expenses and receipts as of now.
func (s *StaleScanner) Scan(now time.Time) (StaleCounts, error) {
	var counts StaleCounts
	var err error

	counts.Expenses, err = s.store.CountExpenses(func(e *model.Expense) bool {
		return isStuck(e.SyncStatus) && now.Sub(e.CreatedAt) > s.staleAfter
	})
	if err != nil {
		return counts, err
	}

	counts.Receipts, err = s.store.CountReceipts(func(r *model.Receipt) bool {
		return isStuck(r.SyncStatus) && now.Sub(r.CreatedAt) > s.staleAfter
	})
	return counts, err
}
