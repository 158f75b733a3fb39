// Package appapi wires LocalStore, SyncQueue and SyncEngine together
// behind the "ports exposed" surface from spec.md §6:
// saveExpenseLocally, saveReceiptLocally, getLocalExpenses. It is the
// single call site both cmd/fieldsync and internal/httpfacade use so
// every entrypoint shares the same enqueue-then-trigger behavior.
package appapi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/ports"
	"github.com/fieldsync/core/internal/queue"
	"github.com/fieldsync/core/internal/store"
	"github.com/fieldsync/core/internal/synccore"
)

// App is the application-level facade over the sync core.
type App struct {
	Store  *store.Store
	Queue  *queue.Queue
	Engine *synccore.Engine
	Conn   ports.Connectivity
}

// ExpenseForm is the caller-supplied subset of Expense fields; local_id,
// sync bookkeeping and timestamps are assigned here, matching spec.md
// §6's saveExpenseLocally(form, receipt_local_id?) contract.
type ExpenseForm struct {
	AmountMinorUnits int64
	Category         model.Category
	Description      *string
	VendorName       *string
	VendorID         *string
	JobOrderID       *string
	IsOverhead       bool
	ExpenseDate      string
	ExpenseTime      *string
	GPS              *model.GPSFix
}

// SaveExpenseLocally inserts a new Expense, enqueues it at priority 1,
// and triggers the engine if the device is online.
func (a *App) SaveExpenseLocally(ctx context.Context, form ExpenseForm, receiptLocalID *string) (*model.Expense, error) {
	now := time.Now()
	expense := &model.Expense{
		LocalID:          uuid.NewString(),
		AmountMinorUnits: form.AmountMinorUnits,
		Category:         form.Category,
		Description:      form.Description,
		VendorName:       form.VendorName,
		VendorID:         form.VendorID,
		JobOrderID:       form.JobOrderID,
		IsOverhead:       form.IsOverhead,
		ExpenseDate:      form.ExpenseDate,
		ExpenseTime:      form.ExpenseTime,
		GPS:              form.GPS,
		ReceiptLocalID:   receiptLocalID,
		ApprovalStatus:   model.ApprovalDraft,
		SyncStatus:       model.SyncPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := a.Store.AddExpense(expense); err != nil {
		return nil, err
	}
	if _, err := a.Queue.Enqueue(model.ItemExpense, expense.LocalID, model.ExpensePriority); err != nil {
		return nil, err
	}
	if a.Conn.IsOnline() {
		a.Engine.Trigger(ctx)
	}
	return expense, nil
}

// ReceiptForm is the caller-supplied subset of Receipt fields.
type ReceiptForm struct {
	Image            []byte
	OriginalFilename string
	MimeType         string
	ImageWidth       int
	ImageHeight      int
	OCR              *model.OCRArtifact
}

// SaveReceiptLocally inserts a new Receipt, enqueues it at priority 2, and
// triggers the engine if online. Image compression is the caller's
// responsibility (out of scope for this core, per spec.md §6).
func (a *App) SaveReceiptLocally(ctx context.Context, form ReceiptForm) (*model.Receipt, error) {
	receipt := &model.Receipt{
		LocalID:          uuid.NewString(),
		Image:            form.Image,
		OriginalFilename: form.OriginalFilename,
		FileSize:         int64(len(form.Image)),
		MimeType:         form.MimeType,
		ImageWidth:       form.ImageWidth,
		ImageHeight:      form.ImageHeight,
		OCR:              form.OCR,
		SyncStatus:       model.SyncPending,
		CreatedAt:        time.Now(),
	}

	if err := a.Store.AddReceipt(receipt); err != nil {
		return nil, err
	}
	if _, err := a.Queue.Enqueue(model.ItemReceipt, receipt.LocalID, model.ReceiptPriority); err != nil {
		return nil, err
	}
	if a.Conn.IsOnline() {
		a.Engine.Trigger(ctx)
	}
	return receipt, nil
}

// ExpenseQuery mirrors the filters in spec.md §6's getLocalExpenses.
type ExpenseQuery struct {
	SyncStatus *model.SyncStatus
	JobOrderID *string
	Limit      int
}

// GetLocalExpenses returns locally stored expenses matching query.
func (a *App) GetLocalExpenses(query ExpenseQuery) ([]*model.Expense, error) {
	switch {
	case query.JobOrderID != nil:
		return a.Store.ExpensesByJobOrder(*query.JobOrderID)
	case query.SyncStatus != nil:
		return a.Store.ExpensesByStatus(*query.SyncStatus)
	default:
		return a.Store.AllExpenses(query.Limit)
	}
}
