package pgrecordstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldsync/core/internal/ports"
)

// MemStore is an in-memory RecordStore used by cmd/fieldsync when
// DATABASE_URL is unset, so the demo CLI runs without a real Postgres
// instance.
type MemStore struct {
	mu     sync.Mutex
	seq    int
	tables map[string][]map[string]any
}

func NewMemStore() *MemStore {
	return &MemStore{tables: map[string][]map[string]any{}}
}

func (m *MemStore) Insert(ctx context.Context, table string, row map[string]any) (ports.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	localID, _ := row["local_id"].(string)
	for _, existing := range m.tables[table] {
		if existing["local_id"] == localID && localID != "" {
			id, _ := existing["id"].(string)
			for k, v := range row {
				existing[k] = v
			}
			return ports.InsertResult{ID: id}, nil
		}
	}

	m.seq++
	id := fmt.Sprintf("mem-%d", m.seq)
	cp := make(map[string]any, len(row)+1)
	for k, v := range row {
		cp[k] = v
	}
	cp["id"] = id
	m.tables[table] = append(m.tables[table], cp)
	return ports.InsertResult{ID: id}, nil
}

func (m *MemStore) Select(ctx context.Context, table string, filter map[string]any, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []map[string]any
	for _, row := range m.tables[table] {
		if matches(row, filter) {
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func matches(row, filter map[string]any) bool {
	for k, v := range filter {
		if row[k] != v {
			return false
		}
	}
	return true
}

// MemBlobStore is an in-memory BlobStore for the same demo path.
type MemBlobStore struct {
	mu   sync.Mutex
	blobs map[string][]byte
}

func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: map[string][]byte{}}
}

func (b *MemBlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return "mem://" + key, nil
}

func (b *MemBlobStore) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}
