package store

import (
	bolt "go.etcd.io/bbolt"

	"github.com/fieldsync/core/internal/model"
)

// AddReceipt persists the receipt's metadata and its image bytes in the
// same transaction. The image is excluded from the metadata JSON
// (model.Receipt.Image is tagged json:"-" so it never leaks into logs or
// dumps of the record) and instead stored raw in bucketReceiptBlobs keyed
// by local_id, so a write either durably commits both or neither.
func (s *Store) AddReceipt(r *model.Receipt) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		if b.Get([]byte(r.LocalID)) != nil {
			return model.ErrDuplicateKey
		}
		data, err := marshal(r)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(r.LocalID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketReceiptBlobs).Put([]byte(r.LocalID), r.Image); err != nil {
			return err
		}
		return putIndexEntry(tx, idxReceiptsBySyncStatus, "", string(r.SyncStatus), r.LocalID)
	})
	return classifyWriteErr(err)
}

func (s *Store) GetReceipt(localID string) (*model.Receipt, error) {
	var out *model.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReceipts).Get([]byte(localID))
		if data == nil {
			return nil
		}
		var r model.Receipt
		if err := unmarshal(data, &r); err != nil {
			return err
		}
		r.Image = loadReceiptBlob(tx, localID)
		out = &r
		return nil
	})
	return out, err
}

// loadReceiptBlob reads a receipt's image bytes and copies them out of the
// transaction's memory-mapped page, since bolt's Get result is only valid
// until the enclosing transaction ends.
func loadReceiptBlob(tx *bolt.Tx, localID string) []byte {
	raw := tx.Bucket(bucketReceiptBlobs).Get([]byte(localID))
	if raw == nil {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func (s *Store) UpdateReceipt(localID string, patch map[string]any) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		data := b.Get([]byte(localID))
		if data == nil {
			return model.ErrNotFound
		}
		var before model.Receipt
		if err := unmarshal(data, &before); err != nil {
			return err
		}
		merged, err := applyPatch(data, patch)
		if err != nil {
			return err
		}
		var after model.Receipt
		if err := unmarshal(merged, &after); err != nil {
			return err
		}
		if err := b.Put([]byte(localID), merged); err != nil {
			return err
		}
		if before.SyncStatus != after.SyncStatus {
			return putIndexEntry(tx, idxReceiptsBySyncStatus, string(before.SyncStatus), string(after.SyncStatus), localID)
		}
		return nil
	})
	return classifyWriteErr(err)
}

func (s *Store) ReceiptsByStatus(statuses ...model.SyncStatus) ([]*model.Receipt, error) {
	var out []*model.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, status := range statuses {
			err := scanIndex(tx, idxReceiptsBySyncStatus, string(status), func(localID string) error {
				data := tx.Bucket(bucketReceipts).Get([]byte(localID))
				if data == nil {
					return nil
				}
				var r model.Receipt
				if err := unmarshal(data, &r); err != nil {
					return err
				}
				r.Image = loadReceiptBlob(tx, localID)
				out = append(out, &r)
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

func (s *Store) AllReceipts(limit int) ([]*model.Receipt, error) {
	var out []*model.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceipts).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r model.Receipt
			if err := unmarshal(v, &r); err != nil {
				return err
			}
			r.Image = loadReceiptBlob(tx, string(k))
			out = append(out, &r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) CountReceipts(predicate func(*model.Receipt) bool) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceipts).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r model.Receipt
			if err := unmarshal(v, &r); err != nil {
				return err
			}
			if predicate == nil || predicate(&r) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteReceiptsWhere(predicate func(*model.Receipt) bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		c := b.Cursor()
		var toDelete []*model.Receipt
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r model.Receipt
			if err := unmarshal(v, &r); err != nil {
				return err
			}
			if predicate(&r) {
				cp := r
				toDelete = append(toDelete, &cp)
			}
		}
		for _, r := range toDelete {
			if err := b.Delete([]byte(r.LocalID)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketReceiptBlobs).Delete([]byte(r.LocalID)); err != nil {
				return err
			}
			_ = deleteIndexEntry(tx, idxReceiptsBySyncStatus, string(r.SyncStatus), r.LocalID)
			removed++
		}
		return nil
	})
	return removed, classifyWriteErr(err)
}
