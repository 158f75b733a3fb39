package synccore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsync/core/internal/backoff"
	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/ports"
	"github.com/fieldsync/core/internal/queue"
	"github.com/fieldsync/core/internal/store"
)

type testRig struct {
	store   *store.Store
	queue   *queue.Queue
	engine  *Engine
	auth    *fakeAuth
	conn    *fakeConnectivity
	clock   *fakeClock
	records *fakeRecordStore
	blobs   *fakeBlobStore
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "fieldsync.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	q := queue.New(s, nil)
	auth := &fakeAuth{user: &ports.User{UserID: "user-1"}}
	conn := &fakeConnectivity{online: true}
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	records := newFakeRecordStore()
	blobs := &fakeBlobStore{}

	cfg := Config{Backoff: backoff.Policy{Base: time.Millisecond, Max: 10 * time.Millisecond, MaxJitter: 0}, MaxRetries: 3, RetrySweep: time.Hour}
	e := New(s, q, cfg, auth, conn, clock, records, blobs, zerolog.Nop())
	t.Cleanup(e.Shutdown)

	return &testRig{store: s, queue: q, engine: e, auth: auth, conn: conn, clock: clock, records: records, blobs: blobs}
}

// runDrainSync runs one drain pass synchronously, bypassing Trigger's
// goroutine, so assertions can run immediately after.
func (r *testRig) runDrainSync(t *testing.T) {
	t.Helper()
	if !r.engine.acquireInFlight() {
		t.Fatal("engine already in flight")
	}
	defer r.engine.releaseInFlight()
	r.engine.drain(context.Background())
}

func TestDrainSyncsReceiptBeforeExpense(t *testing.T) {
	r := newTestRig(t)

	wantImage := []byte("jpeg-bytes-not-actually-a-jpeg")
	receipt := &model.Receipt{LocalID: "rcp1", OriginalFilename: "a.jpg", Image: wantImage, SyncStatus: model.SyncPending}
	if err := r.store.AddReceipt(receipt); err != nil {
		t.Fatalf("add receipt: %v", err)
	}
	expense := &model.Expense{LocalID: "exp1", IsOverhead: true, SyncStatus: model.SyncPending, ReceiptLocalID: strPtr("rcp1")}
	if err := r.store.AddExpense(expense); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	if _, err := r.queue.Enqueue(model.ItemExpense, "exp1", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue expense: %v", err)
	}
	if _, err := r.queue.Enqueue(model.ItemReceipt, "rcp1", model.ReceiptPriority); err != nil {
		t.Fatalf("enqueue receipt: %v", err)
	}

	// One pass: the receipt is dispatched first, so by the time the expense
	// runs its receipt already has a server id and both items complete.
	r.runDrainSync(t)

	gotReceipt, err := r.store.GetReceipt("rcp1")
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if gotReceipt.SyncStatus != model.SyncSynced || gotReceipt.ServerID == nil {
		t.Fatalf("expected receipt synced with a server id, got %+v", gotReceipt)
	}

	if len(r.blobs.puts) != 1 {
		t.Fatalf("expected exactly one blob upload, got %v", r.blobs.puts)
	}
	if uploaded := r.blobs.putData[r.blobs.puts[0]]; string(uploaded) != string(wantImage) {
		t.Fatalf("expected the receipt's image bytes to reach BlobStore.Put, got %q", uploaded)
	}

	gotExpense, err := r.store.GetExpense("exp1")
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if gotExpense.SyncStatus != model.SyncSynced || gotExpense.ServerID == nil {
		t.Fatalf("expected expense synced with a server id, got %+v", gotExpense)
	}

	stats, err := r.queue.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 2 || stats.Pending != 0 {
		t.Fatalf("expected both items completed, got %+v", stats)
	}
}

func TestSyncExpenseFailsTransientlyWhenReceiptUnsynced(t *testing.T) {
	r := newTestRig(t)

	receipt := &model.Receipt{LocalID: "rcp1", OriginalFilename: "a.jpg", Image: []byte("jpeg-bytes"), SyncStatus: model.SyncPending}
	if err := r.store.AddReceipt(receipt); err != nil {
		t.Fatalf("add receipt: %v", err)
	}
	expense := &model.Expense{LocalID: "exp1", IsOverhead: true, SyncStatus: model.SyncPending, ReceiptLocalID: strPtr("rcp1")}
	if err := r.store.AddExpense(expense); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	// Enqueue only the expense; its receipt has no server_id yet.
	if _, err := r.queue.Enqueue(model.ItemExpense, "exp1", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r.runDrainSync(t)

	item, err := r.queue.Get(mustSingleItemID(t, r))
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != model.QueuePending || item.RetryCount != 1 {
		t.Fatalf("expected item still pending with retry_count=1, got %+v", item)
	}
}

func TestUnauthenticatedAbortsPassWithoutRetryIncrement(t *testing.T) {
	r := newTestRig(t)
	r.auth.user = nil

	expense := &model.Expense{LocalID: "exp1", IsOverhead: true, SyncStatus: model.SyncPending}
	if err := r.store.AddExpense(expense); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if _, err := r.queue.Enqueue(model.ItemExpense, "exp1", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	events := make(chan Status, 4)
	unsubscribe := r.engine.Subscribe(func(s Status) { events <- s })
	defer unsubscribe()

	r.runDrainSync(t)

	item, err := r.queue.Get(mustSingleItemID(t, r))
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != model.QueuePending || item.RetryCount != 0 {
		t.Fatalf("expected item reverted to pending with no retry increment, got %+v", item)
	}
	if s := awaitErrorStatus(t, events); s.ErrKind != "unauthenticated" {
		t.Fatalf("expected unauthenticated error status, got %+v", s)
	}
}

func TestEmitsStatusErrorOnTransientFailure(t *testing.T) {
	r := newTestRig(t)

	expense := &model.Expense{LocalID: "exp1", IsOverhead: true, SyncStatus: model.SyncPending}
	if err := r.store.AddExpense(expense); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if _, err := r.queue.Enqueue(model.ItemExpense, "exp1", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	events := make(chan Status, 4)
	unsubscribe := r.engine.Subscribe(func(s Status) { events <- s })
	defer unsubscribe()

	r.records.FailNextInsert("expenses", model.ErrNetwork)
	r.runDrainSync(t)

	if s := awaitErrorStatus(t, events); s.ErrKind != "network" {
		t.Fatalf("expected network error status, got %+v", s)
	}
}

func TestEmitsStatusErrorOnTerminalFailure(t *testing.T) {
	r := newTestRig(t)

	// No matching expense record was ever stored for this local_id, so
	// sync_expense's load step fails with a terminal NotFound on the very
	// first attempt.
	if _, err := r.queue.Enqueue(model.ItemExpense, "missing-exp", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	events := make(chan Status, 4)
	unsubscribe := r.engine.Subscribe(func(s Status) { events <- s })
	defer unsubscribe()

	r.runDrainSync(t)

	item, err := r.queue.Get(mustSingleItemID(t, r))
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != model.QueueFailed {
		t.Fatalf("expected item failed terminally on first attempt, got %+v", item)
	}
	if s := awaitErrorStatus(t, events); s.ErrKind != "not_found" {
		t.Fatalf("expected not_found error status, got %+v", s)
	}
}

// awaitErrorStatus drains events until a Status::Error is seen (syncing
// statuses precede it in the same pass) or the test times out.
func awaitErrorStatus(t *testing.T, events chan Status) Status {
	t.Helper()
	for {
		select {
		case s := <-events:
			if s.Kind == StatusError {
				return s
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for Status::Error")
		}
	}
}

func TestItemFailsTerminallyAtMaxRetries(t *testing.T) {
	r := newTestRig(t)

	expense := &model.Expense{LocalID: "exp1", IsOverhead: true, SyncStatus: model.SyncPending}
	if err := r.store.AddExpense(expense); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if _, err := r.queue.Enqueue(model.ItemExpense, "exp1", model.ExpensePriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < r.engine.cfg.MaxRetries; i++ {
		r.records.FailNextInsert("expenses", model.ErrNetwork)
		r.runDrainSync(t)
	}

	item, err := r.queue.Get(mustSingleItemID(t, r))
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != model.QueueFailed {
		t.Fatalf("expected item failed after exhausting retries, got %+v", item)
	}

	gotExpense, err := r.store.GetExpense("exp1")
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if gotExpense.SyncStatus != model.SyncFailed {
		t.Fatalf("expected expense marked failed, got %+v", gotExpense)
	}
}

func TestBlobRolledBackOnInsertFailure(t *testing.T) {
	r := newTestRig(t)

	wantImage := []byte("jpeg-bytes-not-actually-a-jpeg")
	receipt := &model.Receipt{LocalID: "rcp1", OriginalFilename: "a.jpg", Image: wantImage, SyncStatus: model.SyncPending}
	if err := r.store.AddReceipt(receipt); err != nil {
		t.Fatalf("add receipt: %v", err)
	}
	if _, err := r.queue.Enqueue(model.ItemReceipt, "rcp1", model.ReceiptPriority); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r.records.FailNextInsert("receipts", model.ErrRemoteReject)
	r.runDrainSync(t)

	if len(r.blobs.puts) != 1 {
		t.Fatalf("expected one blob upload attempt, got %v", r.blobs.puts)
	}
	if uploaded := r.blobs.putData[r.blobs.puts[0]]; string(uploaded) != string(wantImage) {
		t.Fatalf("expected the receipt's actual image bytes to be uploaded, got %q", uploaded)
	}
	if len(r.blobs.removed) != 1 {
		t.Fatalf("expected the uploaded blob to be rolled back, got %v", r.blobs.removed)
	}
}

func TestDrainEmitsIdleImmediatelyWhenOffline(t *testing.T) {
	r := newTestRig(t)
	r.conn.online = false

	events := make(chan Status, 4)
	unsubscribe := r.engine.Subscribe(func(s Status) { events <- s })
	defer unsubscribe()

	r.engine.Trigger(context.Background())

	select {
	case s := <-events:
		if s.Kind != StatusIdle {
			t.Fatalf("expected Idle status while offline, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Idle status")
	}
}

func strPtr(s string) *string { return &s }

func mustSingleItemID(t *testing.T, r *testRig) string {
	t.Helper()
	items, err := r.store.QueueItemsByStatus(model.QueuePending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) == 1 {
		return items[0].ID
	}
	items, err = r.store.QueueItemsByStatus(model.QueueFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) == 1 {
		return items[0].ID
	}
	t.Fatalf("expected exactly one pending or failed item")
	return ""
}
