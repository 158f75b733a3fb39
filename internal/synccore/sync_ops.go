package synccore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldsync/core/internal/model"
)

// derivedPath builds the remote blob key for a receipt image, namespaced
// by user so two devices never collide on the same path.
func derivedPath(userID, filename string) string {
	return fmt.Sprintf("receipts/%s/%s", userID, filename)
}

// syncReceipt implements spec.md §4.D's sync_receipt(local_id): upload the
// image, then insert the record; on insert failure, best-effort remove the
// uploaded blob to avoid an orphaned object outliving its record.
func (e *Engine) syncReceipt(ctx context.Context, localID string) error {
	receipt, err := e.store.GetReceipt(localID)
	if err != nil {
		return fmt.Errorf("load receipt %s: %w", localID, err)
	}
	if receipt == nil {
		return fmt.Errorf("receipt %s: %w", localID, model.ErrNotFound)
	}

	user, err := e.auth.CurrentUser(ctx)
	if err != nil || user == nil {
		return model.ErrUnauthenticated
	}

	storagePath, err := e.blobs.Put(ctx, derivedPath(user.UserID, receipt.OriginalFilename), receipt.Image)
	if err != nil {
		return fmt.Errorf("upload receipt blob: %w", classifyPortErr(err))
	}

	row := map[string]any{
		"user_id":           user.UserID,
		"storage_path":      storagePath,
		"original_filename": receipt.OriginalFilename,
		"file_size":         receipt.FileSize,
		"mime_type":         receipt.MimeType,
		"image_width":       receipt.ImageWidth,
		"image_height":      receipt.ImageHeight,
		"local_id":          receipt.LocalID,
		"sync_status":       "synced",
	}
	if receipt.OCR != nil {
		row["ocr_raw_text"] = receipt.OCR.RawText
		row["ocr_confidence"] = receipt.OCR.Confidence
		row["extracted_amount"] = receipt.OCR.ExtractedAmount
		row["extracted_vendor_name"] = receipt.OCR.ExtractedVendorName
		row["extracted_date"] = receipt.OCR.ExtractedDate
	}

	result, err := e.records.Insert(ctx, "receipts", row)
	if err != nil {
		// Best-effort rollback: remove the uploaded blob so it does not
		// outlive a record that was never inserted; a failed removal is
		// only logged.
		if rmErr := e.blobs.Remove(ctx, storagePath); rmErr != nil {
			e.log.Warn().Err(rmErr).Str("storage_path", storagePath).Msg("best-effort blob rollback failed")
		}
		return fmt.Errorf("insert receipt record: %w", classifyPortErr(err))
	}

	serverID := result.ID
	patch := map[string]any{"serverId": serverID, "syncStatus": "synced", "syncError": ""}
	if err := e.store.UpdateReceipt(localID, patch); err != nil {
		return fmt.Errorf("writeback receipt %s: %w", localID, err)
	}
	return nil
}

// syncExpense implements spec.md §4.D's sync_expense(local_id), including
// the dependent-receipt ordering check in step 3.
func (e *Engine) syncExpense(ctx context.Context, localID string) error {
	expense, err := e.store.GetExpense(localID)
	if err != nil {
		return fmt.Errorf("load expense %s: %w", localID, err)
	}
	if expense == nil {
		return fmt.Errorf("expense %s: %w", localID, model.ErrNotFound)
	}

	user, err := e.auth.CurrentUser(ctx)
	if err != nil || user == nil {
		return model.ErrUnauthenticated
	}

	var receiptServerID *string
	if expense.ReceiptLocalID != nil && *expense.ReceiptLocalID != "" {
		receipt, err := e.store.GetReceipt(*expense.ReceiptLocalID)
		if err != nil {
			return fmt.Errorf("load linked receipt: %w", err)
		}
		if receipt == nil || receipt.ServerID == nil {
			return model.ErrReceiptNotSynced
		}
		receiptServerID = receipt.ServerID
	}

	row := map[string]any{
		"user_id":         user.UserID,
		"amount":          expense.AmountMinorUnits,
		"category":        string(expense.Category),
		"description":     expense.Description,
		"vendor_name":     expense.VendorName,
		"vendor_id":       expense.VendorID,
		"job_order_id":    expense.JobOrderID,
		"is_overhead":     expense.IsOverhead,
		"expense_date":    expense.ExpenseDate,
		"expense_time":    expense.ExpenseTime,
		"receipt_id":      receiptServerID,
		"local_id":        expense.LocalID,
		"sync_status":     "synced",
		"approval_status": "draft",
	}
	if expense.GPS != nil {
		row["gps_latitude"] = expense.GPS.Latitude
		row["gps_longitude"] = expense.GPS.Longitude
		row["gps_accuracy"] = expense.GPS.Accuracy
	}

	result, err := e.records.Insert(ctx, "expenses", row)
	if err != nil {
		return fmt.Errorf("insert expense record: %w", classifyPortErr(err))
	}

	serverID := result.ID
	patch := map[string]any{"serverId": serverID, "syncStatus": "synced", "syncError": ""}
	if err := e.store.UpdateExpense(localID, patch); err != nil {
		return fmt.Errorf("writeback expense %s: %w", localID, err)
	}
	return nil
}

// classifyPortErr maps a RecordStore/BlobStore error into the engine's
// failure taxonomy (spec.md §7). An error that already wraps
// ErrRemoteReject, ErrUnauthenticated or ErrNetwork is returned unchanged;
// any other error is reported as ErrNetwork.
func classifyPortErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrRemoteReject) || errors.Is(err, model.ErrUnauthenticated) || errors.Is(err, model.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrNetwork, err)
}
