// Package jobcache implements JobCache, StaleScanner and StorageAccountant
// (spec.md §4.F): the on-device cache of active job orders used for
// offline lookup, a scanner that reports records stuck in flight, and a
// best-effort local-storage housekeeper.
package jobcache

import (
	"context"
	"time"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/ports"
	"github.com/fieldsync/core/internal/store"
)

// JobCache keeps a bounded, searchable local copy of active job orders.
type JobCache struct {
	store      *store.Store
	records    ports.RecordStore
	clock      ports.Clock
	pageLimit  int
	staleAfter time.Duration

	lastRefresh time.Time
}

func New(s *store.Store, records ports.RecordStore, clock ports.Clock, pageLimit int, staleAfter time.Duration) *JobCache {
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &JobCache{store: s, records: records, clock: clock, pageLimit: pageLimit, staleAfter: staleAfter}
}

// Refresh fetches active job orders from the remote store, bounded to
// pageLimit rows, and upserts them into the local cache.
func (c *JobCache) Refresh(ctx context.Context) (int, error) {
	rows, err := c.records.Select(ctx, "job_orders", map[string]any{"status": "active"}, c.pageLimit)
	if err != nil {
		return 0, err
	}

	orders := make([]*model.CachedJobOrder, 0, len(rows))
	now := c.clock.Now()
	for _, row := range rows {
		order := &model.CachedJobOrder{CachedAt: now}
		if v, ok := row["job_order_id"].(string); ok {
			order.JobOrderID = v
		}
		if v, ok := row["job_number"].(string); ok {
			order.JobNumber = v
		}
		if v, ok := row["customer"].(string); ok {
			order.Customer = v
		}
		if v, ok := row["origin"].(string); ok {
			order.Origin = v
		}
		if v, ok := row["destination"].(string); ok {
			order.Destination = v
		}
		if v, ok := row["latitude"].(float64); ok {
			order.Latitude = &v
		}
		if v, ok := row["longitude"].(float64); ok {
			order.Longitude = &v
		}
		orders = append(orders, order)
	}

	if err := c.store.BulkPutJobOrders(orders); err != nil {
		return 0, err
	}
	c.lastRefresh = now
	return len(orders), nil
}

// Search performs a case-insensitive substring match over job number and
// customer name, returning up to 20 results per spec.md §4.F.
func (c *JobCache) Search(query string) ([]*model.CachedJobOrder, error) {
	return c.store.SearchJobOrders(query, 20)
}

// Clear empties the cache.
func (c *JobCache) Clear() (int, error) {
	return c.store.DeleteJobOrdersWhere(func(*model.CachedJobOrder) bool { return true })
}

// Count reports the number of cached job orders.
func (c *JobCache) Count() (int, error) {
	return c.store.CountJobOrders()
}

// IsStale reports whether the cache has not been refreshed within
// staleAfter of now.
func (c *JobCache) IsStale(now time.Time) bool {
	if c.lastRefresh.IsZero() {
		return true
	}
	return now.Sub(c.lastRefresh) > c.staleAfter
}
