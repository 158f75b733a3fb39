package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fieldsync/core/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "fieldsync.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddExpenseDuplicateKey(t *testing.T) {
	s := openTestStore(t)

	e := &model.Expense{LocalID: "e1", SyncStatus: model.SyncPending, IsOverhead: true}
	if err := s.AddExpense(e); err != nil {
		t.Fatalf("first add: %v", err)
	}

	err := s.AddExpense(&model.Expense{LocalID: "e1", SyncStatus: model.SyncPending, IsOverhead: true})
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestUpdateExpenseNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateExpense("missing", map[string]any{"syncStatus": "synced"}); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestExpensesByStatusIndex(t *testing.T) {
	s := openTestStore(t)

	for i, status := range []model.SyncStatus{model.SyncPending, model.SyncPending, model.SyncSynced} {
		e := &model.Expense{
			LocalID:    string(rune('a' + i)),
			SyncStatus: status,
			IsOverhead: true,
		}
		if err := s.AddExpense(e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	pending, err := s.ExpensesByStatus(model.SyncPending)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending expenses, got %d", len(pending))
	}

	// Move one to synced and confirm the index follows the transition.
	if err := s.UpdateExpense("a", map[string]any{"syncStatus": "synced"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	pending, err = s.ExpensesByStatus(model.SyncPending)
	if err != nil {
		t.Fatalf("by status after update: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending expense after transition, got %d", len(pending))
	}
}

func TestQueueItemsByStatusPriorityOrder(t *testing.T) {
	s := openTestStore(t)

	items := []*model.SyncQueueItem{
		{Type: model.ItemExpense, LocalID: "exp1", Priority: model.ExpensePriority, Status: model.QueuePending},
		{Type: model.ItemReceipt, LocalID: "rcp1", Priority: model.ReceiptPriority, Status: model.QueuePending},
		{Type: model.ItemExpense, LocalID: "exp2", Priority: model.ExpensePriority, Status: model.QueuePending},
	}
	for _, it := range items {
		if err := s.AddQueueItem(it); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	sorted, err := s.QueueItemsByStatus(model.QueuePending)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(sorted) != 3 {
		t.Fatalf("expected 3 items, got %d", len(sorted))
	}
	if sorted[0].LocalID != "rcp1" {
		t.Fatalf("expected receipt first (higher priority), got %s", sorted[0].LocalID)
	}
	if sorted[1].LocalID != "exp1" || sorted[2].LocalID != "exp2" {
		t.Fatalf("expected insertion order within priority class, got %v", []string{sorted[1].LocalID, sorted[2].LocalID})
	}
}

func TestQueueItemByTypeAndLocalIDSkipsTerminal(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddQueueItem(&model.SyncQueueItem{Type: model.ItemExpense, LocalID: "e1", Priority: 1, Status: model.QueueCompleted}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	found, err := s.QueueItemByTypeAndLocalID(model.ItemExpense, "e1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no non-terminal item, got %+v", found)
	}
}

func TestAddReceiptPersistsImageBytes(t *testing.T) {
	s := openTestStore(t)

	want := []byte("jpeg-bytes-not-actually-a-jpeg")
	r := &model.Receipt{LocalID: "r1", Image: want, SyncStatus: model.SyncPending}
	if err := s.AddReceipt(r); err != nil {
		t.Fatalf("add receipt: %v", err)
	}

	got, err := s.GetReceipt("r1")
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if got == nil || string(got.Image) != string(want) {
		t.Fatalf("expected image bytes to round-trip, got %+v", got)
	}

	all, err := s.AllReceipts(0)
	if err != nil {
		t.Fatalf("all receipts: %v", err)
	}
	if len(all) != 1 || string(all[0].Image) != string(want) {
		t.Fatalf("expected AllReceipts to include image bytes, got %+v", all)
	}
}

func TestDeleteReceiptsWhereRemovesImageBytes(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddReceipt(&model.Receipt{LocalID: "r1", Image: []byte("data"), SyncStatus: model.SyncSynced}); err != nil {
		t.Fatalf("add receipt: %v", err)
	}

	removed, err := s.DeleteReceiptsWhere(func(r *model.Receipt) bool { return true })
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if err := s.AddReceipt(&model.Receipt{LocalID: "r1", Image: []byte("new-data"), SyncStatus: model.SyncPending}); err != nil {
		t.Fatalf("re-add after delete: %v", err)
	}
	got, err := s.GetReceipt("r1")
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if string(got.Image) != "new-data" {
		t.Fatalf("expected the re-added receipt's own image, got %q (stale blob not cleaned up?)", got.Image)
	}
}

func TestSearchJobOrdersCaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	if err := s.BulkPutJobOrders([]*model.CachedJobOrder{
		{JobOrderID: "j1", JobNumber: "J-100", Customer: "Acme Shipping"},
		{JobOrderID: "j2", JobNumber: "J-200", Customer: "Other Co"},
	}); err != nil {
		t.Fatalf("bulk put: %v", err)
	}

	results, err := s.SearchJobOrders("acme", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].JobOrderID != "j1" {
		t.Fatalf("expected j1, got %+v", results)
	}
}
