// Package queue implements SyncQueue (spec.md §4.B): a thin projection
// over the local store's sync_queue collection.
package queue

import (
	"time"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/store"
)

type Queue struct {
	store *store.Store
	now   func() time.Time
}

func New(s *store.Store, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{store: s, now: now}
}

// Enqueue inserts a new pending item for (itemType, localID) at the given
// priority. If a non-terminal item already exists for that pair it is
// returned unchanged instead of creating a duplicate — this implements the
// enqueue-time de-duplication resolved in SPEC_FULL.md §12 for the Open
// Question in spec.md §9, and is what makes invariant §3.4 hold without
// trusting every caller.
func (q *Queue) Enqueue(itemType model.ItemType, localID string, priority int) (*model.SyncQueueItem, error) {
	existing, err := q.store.QueueItemByTypeAndLocalID(itemType, localID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	item := &model.SyncQueueItem{
		Type:       itemType,
		LocalID:    localID,
		Priority:   priority,
		Status:     model.QueuePending,
		RetryCount: 0,
		CreatedAt:  q.now(),
	}
	if err := q.store.AddQueueItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// PendingSortedByPriorityDesc returns every pending item ordered by
// priority descending, stable on insertion order within a priority
// (spec.md §4.B); receipts therefore precede expenses.
func (q *Queue) PendingSortedByPriorityDesc() ([]*model.SyncQueueItem, error) {
	return q.store.QueueItemsByStatus(model.QueuePending)
}

// MarkPatch is the set of fields Mark may update on a queue item.
type MarkPatch struct {
	Status      *model.QueueStatus
	RetryCount  *int
	LastAttempt *time.Time
	Error       *string
}

// Mark applies a partial update to a queue item by id.
func (q *Queue) Mark(itemID string, patch MarkPatch) error {
	fields := map[string]any{}
	if patch.Status != nil {
		fields["status"] = string(*patch.Status)
	}
	if patch.RetryCount != nil {
		fields["retryCount"] = *patch.RetryCount
	}
	if patch.LastAttempt != nil {
		fields["lastAttempt"] = patch.LastAttempt.Format(time.RFC3339Nano)
	}
	if patch.Error != nil {
		fields["lastError"] = *patch.Error
	}
	return q.store.UpdateQueueItem(itemID, fields)
}

// Get returns a queue item by id, or nil if absent.
func (q *Queue) Get(itemID string) (*model.SyncQueueItem, error) {
	return q.store.GetQueueItem(itemID)
}

// Stats reports the queue depth by status, backing SyncEngine.queue_stats().
type Stats struct {
	Pending   int
	Syncing   int
	Completed int
	Failed    int
}

func (q *Queue) Stats() (Stats, error) {
	var s Stats
	var err error
	if s.Pending, err = q.store.CountQueueItems(func(i *model.SyncQueueItem) bool { return i.Status == model.QueuePending }); err != nil {
		return s, err
	}
	if s.Syncing, err = q.store.CountQueueItems(func(i *model.SyncQueueItem) bool { return i.Status == model.QueueSyncing }); err != nil {
		return s, err
	}
	if s.Completed, err = q.store.CountQueueItems(func(i *model.SyncQueueItem) bool { return i.Status == model.QueueCompleted }); err != nil {
		return s, err
	}
	if s.Failed, err = q.store.CountQueueItems(func(i *model.SyncQueueItem) bool { return i.Status == model.QueueFailed }); err != nil {
		return s, err
	}
	return s, nil
}
