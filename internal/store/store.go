// Package store implements the local durable store (SPEC_FULL.md §4.A):
// typed, indexed, transactional access to the four on-device collections
// over an embedded BoltDB file, mirroring the teacher corpus's own
// BoltDB-backed storage layer.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/fieldsync/core/internal/model"
)

var (
	bucketExpenses     = []byte("expenses")
	bucketReceipts     = []byte("receipts")
	bucketReceiptBlobs = []byte("receipt_blobs")
	bucketSyncQueue    = []byte("sync_queue")
	bucketJobOrders    = []byte("job_orders")

	// Secondary index buckets, keyed "<indexed value>\x00<local_id>" -> nil,
	// so range/prefix scans avoid a full collection scan. Only the four
	// attributes below are indexed; every other lookup (created_at,
	// server_id, queue type/local_id, job order fields) scans the whole
	// collection.
	idxExpensesBySyncStatus  = []byte("idx_expenses_sync_status")
	idxExpensesByJobOrder    = []byte("idx_expenses_job_order")
	idxReceiptsBySyncStatus  = []byte("idx_receipts_sync_status")
	idxQueueByStatus         = []byte("idx_sync_queue_status")
)

// Store is the embedded on-device database. It is the sole authority over
// on-device state (spec.md §5): nothing outside this package mutates the
// underlying bucket bytes directly.
type Store struct {
	db     *bolt.DB
	log    zerolog.Logger
}

// Open opens (creating if necessary) the BoltDB file at path and ensures
// every collection and index bucket exists.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	buckets := [][]byte{
		bucketExpenses, bucketReceipts, bucketReceiptBlobs, bucketSyncQueue, bucketJobOrders,
		idxExpensesBySyncStatus, idxExpensesByJobOrder, idxReceiptsBySyncStatus, idxQueueByStatus,
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, log: log.With().Str("component", "localstore").Logger()}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// classifyWriteErr maps low-level BoltDB failures onto the spec's
// StorageQuotaExceeded failure kind: any file-level *os.PathError (which is
// how a full disk surfaces), a closed database, or a non-writable
// transaction. Every other error is returned unchanged.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if err == bolt.ErrDatabaseNotOpen || err == bolt.ErrTxNotWritable {
		return fmt.Errorf("%w: %v", model.ErrStorageQuotaExceeded, err)
	}
	if pathErr, ok := err.(*os.PathError); ok {
		return fmt.Errorf("%w: %v", model.ErrStorageQuotaExceeded, pathErr)
	}
	return err
}

func indexKey(value, localID string) []byte {
	return []byte(value + "\x00" + localID)
}

// putIndexEntry replaces this record's entry in an index bucket, removing
// any stale entry under a different indexed value first.
func putIndexEntry(tx *bolt.Tx, idxBucket []byte, oldValue, newValue, localID string) error {
	b := tx.Bucket(idxBucket)
	if oldValue != "" && oldValue != newValue {
		_ = b.Delete(indexKey(oldValue, localID))
	}
	if newValue != "" {
		return b.Put(indexKey(newValue, localID), nil)
	}
	return nil
}

func deleteIndexEntry(tx *bolt.Tx, idxBucket []byte, value, localID string) error {
	if value == "" {
		return nil
	}
	return tx.Bucket(idxBucket).Delete(indexKey(value, localID))
}

// scanIndex iterates every local_id stored under the given indexed value.
func scanIndex(tx *bolt.Tx, idxBucket []byte, value string, fn func(localID string) error) error {
	b := tx.Bucket(idxBucket)
	prefix := []byte(value + "\x00")
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		localID := string(k[len(prefix):])
		if err := fn(localID); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// sequenceID generates a monotonically increasing id for records that need
// one beyond their local_id (queue item ids), mirroring BoltDB's own
// NextSequence helper.
func sequenceID(tx *bolt.Tx, bucket []byte) (string, error) {
	b := tx.Bucket(bucket)
	seq, err := b.NextSequence()
	if err != nil {
		return "", err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return fmt.Sprintf("q-%x", buf), nil
}

func marshal(v any) ([]byte, error) { return json.Marshal(v) }
func unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
