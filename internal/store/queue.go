package store

import (
	bolt "go.etcd.io/bbolt"

	"github.com/fieldsync/core/internal/model"
)

// AddQueueItem inserts a new queue item, assigning it a monotonic id.
func (s *Store) AddQueueItem(item *model.SyncQueueItem) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		if item.ID == "" {
			id, err := sequenceID(tx, bucketSyncQueue)
			if err != nil {
				return err
			}
			item.ID = id
		}
		data, err := marshal(item)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(item.ID), data); err != nil {
			return err
		}
		return putIndexEntry(tx, idxQueueByStatus, "", string(item.Status), item.ID)
	})
	return classifyWriteErr(err)
}

func (s *Store) GetQueueItem(id string) (*model.SyncQueueItem, error) {
	var out *model.SyncQueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncQueue).Get([]byte(id))
		if data == nil {
			return nil
		}
		var item model.SyncQueueItem
		if err := unmarshal(data, &item); err != nil {
			return err
		}
		out = &item
		return nil
	})
	return out, err
}

func (s *Store) UpdateQueueItem(id string, patch map[string]any) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		data := b.Get([]byte(id))
		if data == nil {
			return model.ErrNotFound
		}
		var before model.SyncQueueItem
		if err := unmarshal(data, &before); err != nil {
			return err
		}
		merged, err := applyPatch(data, patch)
		if err != nil {
			return err
		}
		var after model.SyncQueueItem
		if err := unmarshal(merged, &after); err != nil {
			return err
		}
		if err := b.Put([]byte(id), merged); err != nil {
			return err
		}
		if before.Status != after.Status {
			return putIndexEntry(tx, idxQueueByStatus, string(before.Status), string(after.Status), id)
		}
		return nil
	})
	return classifyWriteErr(err)
}

// QueueItemsByStatus returns queue items for status ordered by priority
// descending, insertion order within a priority class (spec.md §4.B).
func (s *Store) QueueItemsByStatus(status model.QueueStatus) ([]*model.SyncQueueItem, error) {
	var out []*model.SyncQueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanIndex(tx, idxQueueByStatus, string(status), func(id string) error {
			data := tx.Bucket(bucketSyncQueue).Get([]byte(id))
			if data == nil {
				return nil
			}
			var item model.SyncQueueItem
			if err := unmarshal(data, &item); err != nil {
				return err
			}
			out = append(out, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Index insertion order is id lexical order (monotonic sequence), which
	// already matches creation order; stable-sort by priority descending.
	stableSortByPriorityDesc(out)
	return out, nil
}

func stableSortByPriorityDesc(items []*model.SyncQueueItem) {
	// Simple stable insertion sort: queue depth is small (on-device scale),
	// and stability w.r.t. insertion order must be preserved exactly.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && items[j-1].Priority < items[j].Priority {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}

// QueueItemByTypeAndLocalID finds the (at most one) non-terminal item for
// a (type, local_id) pair, enforcing invariant §3.4 at enqueue time.
func (s *Store) QueueItemByTypeAndLocalID(itemType model.ItemType, localID string) (*model.SyncQueueItem, error) {
	var found *model.SyncQueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSyncQueue).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item model.SyncQueueItem
			if err := unmarshal(v, &item); err != nil {
				return err
			}
			if item.Type == itemType && item.LocalID == localID && !item.Status.Terminal() {
				cp := item
				found = &cp
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) CountQueueItems(predicate func(*model.SyncQueueItem) bool) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSyncQueue).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item model.SyncQueueItem
			if err := unmarshal(v, &item); err != nil {
				return err
			}
			if predicate == nil || predicate(&item) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteQueueItemsWhere(predicate func(*model.SyncQueueItem) bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		c := b.Cursor()
		var toDelete []*model.SyncQueueItem
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item model.SyncQueueItem
			if err := unmarshal(v, &item); err != nil {
				return err
			}
			if predicate(&item) {
				cp := item
				toDelete = append(toDelete, &cp)
			}
		}
		for _, item := range toDelete {
			if err := b.Delete([]byte(item.ID)); err != nil {
				return err
			}
			_ = deleteIndexEntry(tx, idxQueueByStatus, string(item.Status), item.ID)
			removed++
		}
		return nil
	})
	return removed, classifyWriteErr(err)
}
