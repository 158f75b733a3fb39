// Package readmerge implements ReadMerger (spec.md §4.E): a pure function
// that dedups a local record set against a remote page fetched under
// whatever filter the caller applied, so a user sees both synced server
// data and their own still-in-flight local work without duplicates.
package readmerge

import (
	"sort"

	"github.com/fieldsync/core/internal/model"
)

// Source tags where a merged row came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
)

// DisplayExpense is one row of the merged, sorted view.
type DisplayExpense struct {
	Source  Source
	Expense model.Expense
}

// RemoteExpense is a row returned by RecordStore.Select("expenses", ...):
// the server's shape, echoing the client's local_id when it was supplied
// on insert.
type RemoteExpense struct {
	LocalID string
	Expense model.Expense
}

// MergeExpenses implements the dedup rule from spec.md §4.E:
//  1. S = the set of local_ids present in remote.
//  2. Every remote row is emitted, tagged "server".
//  3. Every local row whose local_id is not in S and whose sync_status is
//     not "synced" is emitted, tagged "local" — a local row with a
//     local_id the server already echoed is assumed to be the same record
//     the server just returned.
//
// Results are sorted descending by expense date, ties broken by
// descending created_at.
func MergeExpenses(local []model.Expense, remote []RemoteExpense) []DisplayExpense {
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		if r.LocalID != "" {
			seen[r.LocalID] = struct{}{}
		}
	}

	out := make([]DisplayExpense, 0, len(remote)+len(local))
	for _, r := range remote {
		out = append(out, DisplayExpense{Source: SourceServer, Expense: r.Expense})
	}
	for _, l := range local {
		if _, ok := seen[l.LocalID]; ok {
			continue
		}
		if l.SyncStatus == model.SyncSynced {
			continue
		}
		out = append(out, DisplayExpense{Source: SourceLocal, Expense: l})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Expense, out[j].Expense
		if a.ExpenseDate != b.ExpenseDate {
			return a.ExpenseDate > b.ExpenseDate
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

// DisplayReceipt and RemoteReceipt mirror the expense shapes for receipts;
// the merge rule is identical.
type DisplayReceipt struct {
	Source  Source
	Receipt model.Receipt
}

type RemoteReceipt struct {
	LocalID string
	Receipt model.Receipt
}

// MergeReceipts applies the same dedup rule as MergeExpenses, sorted
// descending by created_at (receipts carry no expense_date of their own).
func MergeReceipts(local []model.Receipt, remote []RemoteReceipt) []DisplayReceipt {
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		if r.LocalID != "" {
			seen[r.LocalID] = struct{}{}
		}
	}

	out := make([]DisplayReceipt, 0, len(remote)+len(local))
	for _, r := range remote {
		out = append(out, DisplayReceipt{Source: SourceServer, Receipt: r.Receipt})
	}
	for _, l := range local {
		if _, ok := seen[l.LocalID]; ok {
			continue
		}
		if l.SyncStatus == model.SyncSynced {
			continue
		}
		out = append(out, DisplayReceipt{Source: SourceLocal, Receipt: l})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Receipt.CreatedAt.After(out[j].Receipt.CreatedAt)
	})
	return out
}
