package store

import (
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/fieldsync/core/internal/model"
)

// BulkPutJobOrders upserts a batch of cached job orders, used only by
// JobCache.refresh (spec.md §4.A).
func (s *Store) BulkPutJobOrders(orders []*model.CachedJobOrder) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobOrders)
		for _, o := range orders {
			data, err := marshal(o)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(o.JobOrderID), data); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyWriteErr(err)
}

func (s *Store) GetJobOrder(jobOrderID string) (*model.CachedJobOrder, error) {
	var out *model.CachedJobOrder
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobOrders).Get([]byte(jobOrderID))
		if data == nil {
			return nil
		}
		var o model.CachedJobOrder
		if err := unmarshal(data, &o); err != nil {
			return err
		}
		out = &o
		return nil
	})
	return out, err
}

// SearchJobOrders performs a case-insensitive substring match over job
// number and customer name, returning up to limit results (spec.md §4.F).
func (s *Store) SearchJobOrders(query string, limit int) ([]*model.CachedJobOrder, error) {
	needle := strings.ToLower(query)
	var out []*model.CachedJobOrder
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobOrders).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var o model.CachedJobOrder
			if err := unmarshal(v, &o); err != nil {
				return err
			}
			if strings.Contains(strings.ToLower(o.JobNumber), needle) ||
				strings.Contains(strings.ToLower(o.Customer), needle) {
				out = append(out, &o)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) AllJobOrders() ([]*model.CachedJobOrder, error) {
	var out []*model.CachedJobOrder
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobOrders).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var o model.CachedJobOrder
			if err := unmarshal(v, &o); err != nil {
				return err
			}
			out = append(out, &o)
		}
		return nil
	})
	return out, err
}

func (s *Store) CountJobOrders() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketJobOrders).Stats().KeyN
		return nil
	})
	return n, err
}

// DeleteJobOrdersWhere removes cached job orders matching predicate, used
// by JobCache.Clear.
func (s *Store) DeleteJobOrdersWhere(predicate func(*model.CachedJobOrder) bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobOrders)
		c := b.Cursor()
		var toDelete []string
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var o model.CachedJobOrder
			if err := unmarshal(v, &o); err != nil {
				return err
			}
			if predicate(&o) {
				toDelete = append(toDelete, o.JobOrderID)
			}
		}
		for _, id := range toDelete {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, classifyWriteErr(err)
}
