// Package model defines the on-device record types synchronized between
// the field-expense client and the remote record store.
package model

import "time"

// Category is the closed set of expense categories.
type Category string

const (
	CategoryFuel          Category = "fuel"
	CategoryLodging       Category = "lodging"
	CategoryMeals         Category = "meals"
	CategorySupplies      Category = "supplies"
	CategoryTolls         Category = "tolls"
	CategoryParking       Category = "parking"
	CategoryEquipmentHire Category = "equipment_hire"
	CategoryOther         Category = "other"
)

// SyncStatus is the per-record sync lifecycle.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// ApprovalStatus is opaque pass-through state; the core never branches on it.
type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// GPSFix is an optional device location sample attached to an expense.
type GPSFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Expense is the core monetary record. Exactly one of JobOrderID / IsOverhead
// must hold for any non-draft expense (invariant §3.6).
type Expense struct {
	LocalID  string  `json:"localId"`
	ServerID *string `json:"serverId,omitempty"`

	AmountMinorUnits int64    `json:"amountMinorUnits"`
	Category         Category `json:"category"`
	Description      *string  `json:"description,omitempty"`

	VendorName *string `json:"vendorName,omitempty"`
	VendorID   *string `json:"vendorId,omitempty"`

	JobOrderID *string `json:"jobOrderId,omitempty"`
	IsOverhead bool     `json:"isOverhead"`

	ExpenseDate string  `json:"expenseDate"` // ISO-8601 date
	ExpenseTime *string `json:"expenseTime,omitempty"`

	GPS *GPSFix `json:"gps,omitempty"`

	ReceiptLocalID *string `json:"receiptLocalId,omitempty"`

	ApprovalStatus ApprovalStatus `json:"approvalStatus"`

	SyncStatus   SyncStatus `json:"syncStatus"`
	SyncError    string     `json:"syncError,omitempty"`
	SyncAttempts int        `json:"syncAttempts"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastAttempt  *time.Time `json:"lastAttempt,omitempty"`
}

// HasValidJobLink reports whether invariant §3.6 holds: exactly one of
// JobOrderID set / IsOverhead true.
func (e *Expense) HasValidJobLink() bool {
	hasJob := e.JobOrderID != nil && *e.JobOrderID != ""
	return hasJob != e.IsOverhead // XOR
}
