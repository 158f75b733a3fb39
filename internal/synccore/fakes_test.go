package synccore

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsync/core/internal/ports"
)

// fakeAuth is a static AuthContext; set user to nil to simulate a signed
// out device.
type fakeAuth struct {
	user *ports.User
}

func (f *fakeAuth) CurrentUser(ctx context.Context) (*ports.User, error) {
	return f.user, nil
}

// fakeConnectivity never transitions on its own; tests flip online
// directly. Subscribe discards the callbacks it is given.
type fakeConnectivity struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeConnectivity) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeConnectivity) Subscribe(onOnline, onOffline func()) func() {
	return func() {}
}

// fakeClock is a manual clock: Now() is fixed unless advanced, Sleep
// returns immediately so tests never actually wait out backoff windows.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

// fakeRecordStore inserts into an in-memory table map and can be primed to
// fail the next insert into a given table with a given error.
type fakeRecordStore struct {
	mu        sync.Mutex
	nextID    int
	rows      map[string][]map[string]any
	failNext  map[string]error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{rows: map[string][]map[string]any{}, failNext: map[string]error{}}
}

func (r *fakeRecordStore) FailNextInsert(table string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext[table] = err
}

func (r *fakeRecordStore) Insert(ctx context.Context, table string, row map[string]any) (ports.InsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext[table]; err != nil {
		delete(r.failNext, table)
		return ports.InsertResult{}, err
	}
	r.nextID++
	id := itoa(r.nextID)
	r.rows[table] = append(r.rows[table], row)
	return ports.InsertResult{ID: id}, nil
}

func (r *fakeRecordStore) Select(ctx context.Context, table string, filter map[string]any, limit int) ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.rows[table]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return "srv-" + string(digits)
}

// fakeBlobStore records every Put/Remove call, including the actual bytes
// handed to Put so tests can catch a payload silently going missing
// upstream (e.g. a receipt losing its image before it ever reaches here).
type fakeBlobStore struct {
	mu       sync.Mutex
	puts     []string
	putData  map[string][]byte
	removed  []string
	failPut  error
	failNext bool
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return "", b.failPut
	}
	b.puts = append(b.puts, key)
	if b.putData == nil {
		b.putData = map[string][]byte{}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.putData[key] = cp
	return "blob://" + key, nil
}

func (b *fakeBlobStore) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, key)
	return nil
}
