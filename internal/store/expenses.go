package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/fieldsync/core/internal/model"
)

// AddExpense inserts a new expense. Fails with ErrDuplicateKey if
// LocalID already exists (spec.md §4.A).
func (s *Store) AddExpense(e *model.Expense) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExpenses)
		if b.Get([]byte(e.LocalID)) != nil {
			return model.ErrDuplicateKey
		}
		data, err := marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(e.LocalID), data); err != nil {
			return err
		}
		if err := putIndexEntry(tx, idxExpensesBySyncStatus, "", string(e.SyncStatus), e.LocalID); err != nil {
			return err
		}
		jobOrder := ""
		if e.JobOrderID != nil {
			jobOrder = *e.JobOrderID
		}
		return putIndexEntry(tx, idxExpensesByJobOrder, "", jobOrder, e.LocalID)
	})
	return classifyWriteErr(err)
}

// GetExpense returns nil, nil if absent.
func (s *Store) GetExpense(localID string) (*model.Expense, error) {
	var out *model.Expense
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExpenses).Get([]byte(localID))
		if data == nil {
			return nil
		}
		var e model.Expense
		if err := unmarshal(data, &e); err != nil {
			return err
		}
		out = &e
		return nil
	})
	return out, err
}

// UpdateExpense applies a partial field patch, keyed by JSON field name, to
// the stored record. Fails with ErrNotFound if absent (spec.md §4.A).
func (s *Store) UpdateExpense(localID string, patch map[string]any) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExpenses)
		data := b.Get([]byte(localID))
		if data == nil {
			return model.ErrNotFound
		}

		var before model.Expense
		if err := unmarshal(data, &before); err != nil {
			return err
		}

		merged, err := applyPatch(data, patch)
		if err != nil {
			return err
		}
		var after model.Expense
		if err := unmarshal(merged, &after); err != nil {
			return err
		}

		if err := b.Put([]byte(localID), merged); err != nil {
			return err
		}

		if before.SyncStatus != after.SyncStatus {
			if err := putIndexEntry(tx, idxExpensesBySyncStatus, string(before.SyncStatus), string(after.SyncStatus), localID); err != nil {
				return err
			}
		}
		beforeJob, afterJob := "", ""
		if before.JobOrderID != nil {
			beforeJob = *before.JobOrderID
		}
		if after.JobOrderID != nil {
			afterJob = *after.JobOrderID
		}
		if beforeJob != afterJob {
			if err := putIndexEntry(tx, idxExpensesByJobOrder, beforeJob, afterJob, localID); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyWriteErr(err)
}

// ExpensesByStatus returns all expenses whose SyncStatus is one of statuses.
func (s *Store) ExpensesByStatus(statuses ...model.SyncStatus) ([]*model.Expense, error) {
	var out []*model.Expense
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, status := range statuses {
			err := scanIndex(tx, idxExpensesBySyncStatus, string(status), func(localID string) error {
				data := tx.Bucket(bucketExpenses).Get([]byte(localID))
				if data == nil {
					return nil
				}
				var e model.Expense
				if err := unmarshal(data, &e); err != nil {
					return err
				}
				out = append(out, &e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// ExpensesByJobOrder returns all expenses linked to jobOrderID.
func (s *Store) ExpensesByJobOrder(jobOrderID string) ([]*model.Expense, error) {
	var out []*model.Expense
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanIndex(tx, idxExpensesByJobOrder, jobOrderID, func(localID string) error {
			data := tx.Bucket(bucketExpenses).Get([]byte(localID))
			if data == nil {
				return nil
			}
			var e model.Expense
			if err := unmarshal(data, &e); err != nil {
				return err
			}
			out = append(out, &e)
			return nil
		})
	})
	return out, err
}

// AllExpenses returns every expense, with an optional limit (0 = unbounded).
func (s *Store) AllExpenses(limit int) ([]*model.Expense, error) {
	var out []*model.Expense
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketExpenses).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e model.Expense
			if err := unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// CountExpenses counts records matching predicate (nil predicate counts all).
func (s *Store) CountExpenses(predicate func(*model.Expense) bool) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketExpenses).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e model.Expense
			if err := unmarshal(v, &e); err != nil {
				return err
			}
			if predicate == nil || predicate(&e) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// DeleteExpensesWhere removes every expense matching predicate, used only
// by storage utilities (StorageAccountant cleanup).
func (s *Store) DeleteExpensesWhere(predicate func(*model.Expense) bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExpenses)
		c := b.Cursor()
		var toDelete []*model.Expense
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e model.Expense
			if err := unmarshal(v, &e); err != nil {
				return err
			}
			if predicate(&e) {
				cp := e
				toDelete = append(toDelete, &cp)
			}
		}
		for _, e := range toDelete {
			if err := b.Delete([]byte(e.LocalID)); err != nil {
				return err
			}
			_ = deleteIndexEntry(tx, idxExpensesBySyncStatus, string(e.SyncStatus), e.LocalID)
			jobOrder := ""
			if e.JobOrderID != nil {
				jobOrder = *e.JobOrderID
			}
			_ = deleteIndexEntry(tx, idxExpensesByJobOrder, jobOrder, e.LocalID)
			removed++
		}
		return nil
	})
	return removed, classifyWriteErr(err)
}

// applyPatch merges patch keys onto the JSON document in data, returning
// the merged bytes. Keys in patch with value nil delete that field.
func applyPatch(data []byte, patch map[string]any) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal patched record: %w", err)
	}
	return merged, nil
}
