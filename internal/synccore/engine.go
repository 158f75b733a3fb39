// Package synccore implements SyncEngine, the stateful drain loop that
// pushes queued expenses and receipts to the remote record store
// (spec.md §4.D). It is single-threaded from its own perspective: only one
// drain pass runs at a time, guarded by inFlight.
package synccore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsync/core/internal/backoff"
	"github.com/fieldsync/core/internal/metrics"
	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/ports"
	"github.com/fieldsync/core/internal/queue"
	"github.com/fieldsync/core/internal/store"
)

// Config carries the engine's tunables, sourced from internal/config.
type Config struct {
	Backoff        backoff.Policy
	MaxRetries     int
	RetrySweep     time.Duration
}

// DefaultConfig matches spec.md §6's defaults.
var DefaultConfig = Config{
	Backoff:    backoff.Default,
	MaxRetries: 5,
	RetrySweep: 5 * time.Minute,
}

// Engine is the SyncEngine. Construct with New and call Shutdown when done.
type Engine struct {
	store   *store.Store
	queue   *queue.Queue
	cfg     Config
	auth    ports.AuthContext
	conn    ports.Connectivity
	clock   ports.Clock
	records ports.RecordStore
	blobs   ports.BlobStore
	log     zerolog.Logger
	metrics metrics.Recorder

	inFlightMu sync.Mutex
	inFlight   bool

	listenersMu    sync.RWMutex
	listeners      map[int]Listener
	nextListenerID int

	historyMu    sync.Mutex
	errorHistory []ErrorEntry

	unsubscribeConn func()
	stopSweep       chan struct{}
	sweepDone       chan struct{}
}

func New(
	s *store.Store,
	q *queue.Queue,
	cfg Config,
	auth ports.AuthContext,
	conn ports.Connectivity,
	clock ports.Clock,
	records ports.RecordStore,
	blobs ports.BlobStore,
	log zerolog.Logger,
) *Engine {
	e := &Engine{
		store:     s,
		queue:     q,
		cfg:       cfg,
		auth:      auth,
		conn:      conn,
		clock:     clock,
		records:   records,
		blobs:     blobs,
		log:       log.With().Str("component", "sync_engine").Logger(),
		metrics:   metrics.Noop{},
		listeners: make(map[int]Listener),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	e.unsubscribeConn = conn.Subscribe(
		func() { e.Trigger(context.Background()) },
		func() {},
	)
	go e.periodicSweep()
	return e
}

// SetMetrics installs a metrics.Recorder; call before the engine starts
// handling traffic. Defaults to a no-op recorder.
func (e *Engine) SetMetrics(m metrics.Recorder) {
	if m != nil {
		e.metrics = m
	}
}

// Subscribe registers a listener for Status events and returns an
// unsubscribe function.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.listenersMu.Lock()
	id := e.nextListenerID
	e.nextListenerID++
	e.listeners[id] = l
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

// emit dispatches a Status event to every listener without blocking the
// drain loop; a listener panic is recovered and logged, never propagated
// (grounded on the non-blocking emitEvent pattern in memoNexus's sync
// engine).
func (e *Engine) emit(s Status) {
	e.listenersMu.RLock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.listenersMu.RUnlock()

	for _, l := range ls {
		l := l
		go func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Interface("panic", r).Msg("status listener panicked")
				}
			}()
			l(s)
		}()
	}
}

func (e *Engine) recordError(itemKey, operation string, err error) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.errorHistory = append(e.errorHistory, ErrorEntry{ItemKey: itemKey, Operation: operation, Message: err.Error()})
	if len(e.errorHistory) > maxErrorHistory {
		e.errorHistory = e.errorHistory[len(e.errorHistory)-maxErrorHistory:]
	}
}

// ErrorHistory returns a snapshot of the most recent item failures.
func (e *Engine) ErrorHistory() []ErrorEntry {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	out := make([]ErrorEntry, len(e.errorHistory))
	copy(out, e.errorHistory)
	return out
}

// QueueStats reports current queue depth by status.
func (e *Engine) QueueStats() (queue.Stats, error) {
	return e.queue.Stats()
}

// Trigger requests a drain pass. Non-blocking: it returns immediately,
// running the actual pass on its own goroutine, and is a no-op if a pass
// is already in flight or the device is offline (spec.md §4.D).
func (e *Engine) Trigger(ctx context.Context) {
	if !e.conn.IsOnline() {
		e.emit(idleStatus())
		return
	}
	if !e.acquireInFlight() {
		return
	}
	go func() {
		defer e.releaseInFlight()
		e.drain(ctx)
	}()
}

func (e *Engine) acquireInFlight() bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	if e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Engine) releaseInFlight() {
	e.inFlightMu.Lock()
	e.inFlight = false
	e.inFlightMu.Unlock()
}

// ManualRetry runs the periodic-retry sweep once, on demand.
func (e *Engine) ManualRetry(ctx context.Context) {
	e.sweepOnce(ctx)
}

// Shutdown stops timers, clears listeners, and unregisters the
// connectivity callback. It does not abort an in-flight drain pass; that
// pass runs to completion and its final emit is simply unheard.
func (e *Engine) Shutdown() {
	close(e.stopSweep)
	<-e.sweepDone
	if e.unsubscribeConn != nil {
		e.unsubscribeConn()
	}
	e.listenersMu.Lock()
	e.listeners = map[int]Listener{}
	e.listenersMu.Unlock()
}

func (e *Engine) periodicSweep() {
	defer close(e.sweepDone)
	ticker := time.NewTicker(e.cfg.RetrySweep)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopSweep:
			return
		case <-ticker.C:
			e.sweepOnce(context.Background())
		}
	}
}

// sweepOnce implements the periodic retry sweep (spec.md §4.D): for every
// pending item with retry_count >= 1, check eligibility and trigger() a
// drain if anything has become eligible. Skipped entirely when offline or
// a pass is already in flight.
func (e *Engine) sweepOnce(ctx context.Context) {
	if !e.conn.IsOnline() {
		return
	}
	e.inFlightMu.Lock()
	busy := e.inFlight
	e.inFlightMu.Unlock()
	if busy {
		return
	}

	items, err := e.queue.PendingSortedByPriorityDesc()
	if err != nil {
		e.log.Error().Err(err).Msg("sweep: failed to read pending queue items")
		return
	}
	now := e.clock.Now()
	for _, item := range items {
		if item.RetryCount < 1 || item.LastAttempt == nil {
			continue
		}
		if e.cfg.Backoff.IsEligible(*item.LastAttempt, item.RetryCount, now) {
			e.Trigger(ctx)
			return
		}
	}
}

// drain runs one full pass over the pending queue, per spec.md §4.D steps
// 1-7. It assumes the caller already holds the in-flight guard.
func (e *Engine) drain(ctx context.Context) {
	e.emit(syncingStatus(0, 0))

	items, err := e.queue.PendingSortedByPriorityDesc()
	if err != nil {
		e.emit(errorStatus("internal", err.Error()))
		return
	}
	n := len(items)

	for i, item := range items {
		e.emit(syncingStatus(i+1, n))

		fresh, err := e.queue.Get(item.ID)
		if err != nil {
			e.log.Error().Err(err).Str("item", item.ID).Msg("failed to re-read queue item")
			continue
		}
		if fresh == nil || fresh.Status != model.QueuePending {
			continue // raced with another trigger; invariant preserved
		}

		if fresh.RetryCount >= 1 && fresh.LastAttempt != nil {
			eligibleAt := e.cfg.Backoff.EligibleAt(*fresh.LastAttempt, fresh.RetryCount)
			if d := eligibleAt.Sub(e.clock.Now()); d > 0 {
				if err := e.clock.Sleep(ctx, d); err != nil {
					return // cancellation signal
				}
			}
		}

		syncing := model.QueueSyncing
		if err := e.queue.Mark(fresh.ID, queue.MarkPatch{Status: &syncing}); err != nil {
			e.log.Error().Err(err).Str("item", fresh.ID).Msg("failed to mark item syncing")
			continue
		}

		e.metrics.IncSyncAttempt(string(fresh.Type))

		var syncErr error
		switch fresh.Type {
		case model.ItemReceipt:
			syncErr = e.syncReceipt(ctx, fresh.LocalID)
		case model.ItemExpense:
			syncErr = e.syncExpense(ctx, fresh.LocalID)
		default:
			syncErr = fmt.Errorf("unknown queue item type %q", fresh.Type)
		}

		if syncErr == nil {
			e.completeItem(fresh)
			continue
		}

		e.metrics.IncSyncFailure(string(fresh.Type))
		if abort := e.handleItemFailure(fresh, syncErr); abort {
			return
		}
	}

	e.reportQueueDepth()
	e.emit(idleStatus())
}

func (e *Engine) reportQueueDepth() {
	stats, err := e.queue.Stats()
	if err != nil {
		return
	}
	e.metrics.SetQueueDepth(stats.Pending, stats.Syncing, stats.Completed, stats.Failed)
}

func (e *Engine) completeItem(item *model.SyncQueueItem) {
	completed := model.QueueCompleted
	if err := e.queue.Mark(item.ID, queue.MarkPatch{Status: &completed}); err != nil {
		e.log.Error().Err(err).Str("item", item.ID).Msg("failed to mark item completed")
	}
}

// classifyErrKind maps a sync failure onto the short kind label spec.md §7's
// taxonomy gives it, for Status::Error's ErrKind field. Checked in order of
// specificity since some sentinels (e.g. RemoteRejectError) wrap others.
func classifyErrKind(err error) string {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStorageQuotaExceeded):
		return "storage_quota_exceeded"
	case errors.Is(err, model.ErrReceiptNotSynced):
		return "receipt_not_synced"
	case errors.Is(err, model.ErrRemoteReject):
		return "remote_reject"
	case errors.Is(err, model.ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}

// handleItemFailure classifies a sync_receipt/sync_expense failure per the
// taxonomy in spec.md §7, applies the corresponding queue/record transition,
// and emits a Status::Error event once per failure (spec.md §8 scenario 4).
// It returns true when the whole pass must abort (an Unauthenticated
// failure).
func (e *Engine) handleItemFailure(item *model.SyncQueueItem, syncErr error) (abort bool) {
	e.recordError(item.Key(), string(item.Type), syncErr)
	e.log.Warn().Err(syncErr).Str("item", item.ID).Str("type", string(item.Type)).Msg("sync item failed")
	e.emit(errorStatus(classifyErrKind(syncErr), syncErr.Error()))

	if errors.Is(syncErr, model.ErrUnauthenticated) {
		// Abort the whole pass without touching retry_count; the item was
		// marked syncing before dispatch, so put it back to pending so the
		// next trigger() picks it up once a user is authenticated again.
		pending := model.QueuePending
		if err := e.queue.Mark(item.ID, queue.MarkPatch{Status: &pending}); err != nil {
			e.log.Error().Err(err).Msg("failed to revert item to pending after unauthenticated abort")
		}
		return true
	}

	terminal := errors.Is(syncErr, model.ErrNotFound) || errors.Is(syncErr, model.ErrStorageQuotaExceeded)
	retryCount := item.RetryCount + 1

	if terminal || retryCount >= e.cfg.MaxRetries {
		failed := model.QueueFailed
		msg := syncErr.Error()
		if err := e.queue.Mark(item.ID, queue.MarkPatch{Status: &failed, RetryCount: &retryCount, Error: &msg}); err != nil {
			e.log.Error().Err(err).Msg("failed to mark item failed")
		}
		e.markRecordTerminal(item, model.SyncFailed, syncErr.Error())
		return false
	}

	pending := model.QueuePending
	now := e.clock.Now()
	msg := syncErr.Error()
	if err := e.queue.Mark(item.ID, queue.MarkPatch{Status: &pending, RetryCount: &retryCount, LastAttempt: &now, Error: &msg}); err != nil {
		e.log.Error().Err(err).Msg("failed to mark item pending for retry")
	}
	e.markRecordSyncError(item, syncErr.Error(), retryCount, now)
	return false
}

func (e *Engine) markRecordTerminal(item *model.SyncQueueItem, status model.SyncStatus, message string) {
	patch := map[string]any{"syncStatus": string(status), "syncError": message}
	switch item.Type {
	case model.ItemReceipt:
		_ = e.store.UpdateReceipt(item.LocalID, patch)
	case model.ItemExpense:
		_ = e.store.UpdateExpense(item.LocalID, patch)
	}
}

func (e *Engine) markRecordSyncError(item *model.SyncQueueItem, message string, attempts int, now time.Time) {
	patch := map[string]any{
		"syncError":    message,
		"syncAttempts": attempts,
		"lastAttempt":  now.Format(time.RFC3339Nano),
	}
	switch item.Type {
	case model.ItemReceipt:
		_ = e.store.UpdateReceipt(item.LocalID, patch)
	case model.ItemExpense:
		_ = e.store.UpdateExpense(item.LocalID, patch)
	}
}
