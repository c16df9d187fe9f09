// Package syncengine implements the encrypted cross-device record log:
// a boot sequence that replays any crash-interrupted outgoing change,
// a subscription loop that watches for remote writes, and a
// single-consumer main loop that serializes pull, push, and backoff
// so at most one sync round runs at a time.
package syncengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Engine runs the sync lifecycle against a Client, Storage, Signer,
// and Handler. Only one Start/Stop cycle may be in flight at a time.
type Engine struct {
	cfg *Config

	pushTrigger    chan RecordID
	pullTrigger    chan struct{}
	backoffTrigger chan time.Duration

	backoffMu sync.Mutex
	backoff   *backoffHandle

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

type backoffHandle struct {
	startedAt time.Time
	duration  time.Duration
	cancel    context.CancelFunc
}

// New builds an Engine from cfg.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:            cfg,
		pushTrigger:    make(chan RecordID, 64),
		pullTrigger:    make(chan struct{}, 1),
		backoffTrigger: make(chan time.Duration, 16),
	}, nil
}

// Start runs the boot sequence synchronously and then launches the subscribe and sync loops in the
// background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	if err := e.ensureOutgoingRecordCommitted(ctx); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("syncengine: boot: %w", err)
	}
	if _, err := e.pullSyncOnceLocal(ctx); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("syncengine: boot: %w", err)
	}

	e.running = true
	e.quit = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(2)
	go e.subscribeLoop(ctx)
	go e.syncLoop(ctx)
	return nil
}

// Stop signals both background loops to exit and waits for them.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	quit := e.quit
	e.mu.Unlock()

	close(quit)
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

// TriggerPush signals that record id has a new local outgoing change
// ready to push. Non-blocking: a full trigger channel means a push
// round is already pending, which will pick up every queued change
// once it runs.
func (e *Engine) TriggerPush(id RecordID) {
	select {
	case e.pushTrigger <- id:
	default:
		log.Warnf("push trigger channel full, dropping signal for %s", id)
	}
}

func (e *Engine) signalPull() {
	select {
	case e.pullTrigger <- struct{}{}:
	default:
	}
}

// ensureOutgoingRecordCommitted replays the latest pending outgoing
// change to the relational app layer, covering a crash between
// persisting the change and applying it to app state.
func (e *Engine) ensureOutgoingRecordCommitted(ctx context.Context) error {
	change, err := e.cfg.Storage.GetLatestOutgoingChange(ctx)
	if err != nil {
		return fmt.Errorf("get latest outgoing change: %w", err)
	}
	if change == nil {
		log.Debugf("no pending outgoing change to commit")
		return nil
	}

	log.Debugf("committing latest pending outgoing change for record %s, revision %d",
		change.Change.ID, change.Change.Revision)
	return e.cfg.Handler.OnReplayOutgoingChange(*change)
}

func (e *Engine) subscribeLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		e.subscribeOnce(ctx)

		select {
		case <-e.quit:
			return
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			log.Debugf("re-establishing update subscription after disconnection")
		}
	}
}

func (e *Engine) subscribeOnce(ctx context.Context) {
	log.Debugf("subscribing to real-time sync update stream")
	stream, err := e.cfg.Client.ListenChanges(ctx)
	if err != nil {
		log.Errorf("failed to establish update subscription: %v", err)
		return
	}

	for {
		select {
		case <-e.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		notification, err := stream.Recv()
		if err != nil {
			log.Errorf("error receiving notification: %v", err)
			return
		}

		if notification.ClientID != "" && notification.ClientID == e.cfg.ClientID {
			log.Debugf("ignoring notification for ourselves")
			continue
		}
		e.signalPull()
	}
}

func (e *Engine) syncLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		var incomingCount, outgoingCount *uint32

		select {
		case <-e.quit:
			return
		case <-ctx.Done():
			return

		case <-e.pullTrigger:
			log.Debugf("received incoming sync notification")
			count, err := e.pullSyncOnce(ctx)
			if err != nil {
				log.Errorf("failed to sync once: %v", err)
			} else {
				incomingCount = count
			}

		case d := <-e.backoffTrigger:
			incomingCount, outgoingCount = e.handleBackoff(ctx, d)

		case id := <-e.pushTrigger:
			incomingCount, outgoingCount = e.handlePush(ctx, id)
		}

		if incomingCount != nil || outgoingCount != nil {
			if err := e.cfg.Handler.OnSyncCompleted(incomingCount, outgoingCount); err != nil {
				log.Errorf("failed to notify of real-time sync completion: %v", err)
			}
		}
	}
}

func (e *Engine) handleBackoff(ctx context.Context, lastBackoff time.Duration) (*uint32, *uint32) {
	lastBackoff = e.coalesceBackoff(lastBackoff)

	log.Debugf("backoff trigger received, waiting before next sync attempt")
	incomingCount, err := e.pullSyncOnce(ctx)
	if err != nil {
		log.Errorf("failed to pull sync once in backoff mode: %v", err)
		incomingCount = nil
	}

	outgoingCount, err := e.pushSyncOnce(ctx)
	if err != nil {
		log.Errorf("failed to push sync once in backoff mode: %v", err)
		e.scheduleBackoff(time.Duration(float64(lastBackoff) * 1.5))
		return nil, nil
	}

	log.Debugf("backoff sync attempt succeeded, resuming normal operation")
	return incomingCount, outgoingCount
}

// coalesceBackoff drains every already-queued backoff request and
// returns the minimum duration among them and lastBackoff, avoiding
// piling up redundant sync attempts.
func (e *Engine) coalesceBackoff(lastBackoff time.Duration) time.Duration {
	for {
		select {
		case d := <-e.backoffTrigger:
			if d < lastBackoff {
				lastBackoff = d
			}
		default:
			return lastBackoff
		}
	}
}

func (e *Engine) handlePush(ctx context.Context, id RecordID) (*uint32, *uint32) {
	log.Debugf("received sync trigger for record id %s", id)

	var incomingCount *uint32
	select {
	case <-e.pullTrigger:
		count, err := e.pullSyncOnce(ctx)
		if err != nil {
			log.Errorf("failed to sync once: %v", err)
		} else {
			incomingCount = count
		}
	default:
	}

	outgoingCount, err := e.pushSyncOnce(ctx)
	if err != nil {
		log.Errorf("failed to sync once: %v", err)
		e.scheduleBackoff(time.Second)
		return nil, nil
	}

	log.Debugf("push sync attempt succeeded")
	return incomingCount, outgoingCount
}

// scheduleBackoff arranges for d to be sent on backoffTrigger after it
// elapses, unless an unexpired existing backoff will fire sooner than
// d — a new shorter backoff replaces a longer pending one, and an
// already-expired backoff never blocks a new one.
func (e *Engine) scheduleBackoff(d time.Duration) {
	now := time.Now()

	e.backoffMu.Lock()
	defer e.backoffMu.Unlock()

	if e.backoff != nil {
		elapsed := now.Sub(e.backoff.startedAt)
		remaining := e.backoff.duration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if remaining > 0 && remaining < d {
			log.Debugf("existing backoff of %s still in effect (remaining %s), not scheduling new backoff of %s",
				e.backoff.duration, remaining, d)
			return
		}
		e.backoff.cancel()
		log.Debugf("new backoff of %s is shorter than existing backoff of %s (remaining %s), replacing it",
			d, e.backoff.duration, remaining)
	}

	log.Debugf("scheduling backoff trigger in %s", d)
	backoffCtx, cancel := context.WithCancel(context.Background())
	e.backoff = &backoffHandle{startedAt: now, duration: d, cancel: cancel}

	go func() {
		select {
		case <-time.After(d):
			select {
			case e.backoffTrigger <- d:
			case <-e.quit:
			}
		case <-backoffCtx.Done():
		case <-e.quit:
		}
	}()
}

// pushSyncOnce pages through pending outgoing changes in batches of
// syncBatchSize until none remain, pushing each to the sync server.
func (e *Engine) pushSyncOnce(ctx context.Context) (*uint32, error) {
	log.Debugf("push syncing once")

	var total uint32
	for {
		changes, err := e.cfg.Storage.GetPendingOutgoingChanges(ctx, syncBatchSize)
		if err != nil {
			return nil, fmt.Errorf("get pending outgoing changes: %w", err)
		}
		if len(changes) == 0 {
			break
		}

		for _, change := range changes {
			if err := e.pushSyncRecord(ctx, change); err != nil {
				return nil, err
			}
			total++
		}
	}

	if total == 0 {
		return nil, nil
	}
	return &total, nil
}

func (e *Engine) pushSyncRecord(ctx context.Context, change OutgoingChange) error {
	base, err := e.cfg.Storage.GetRecord(ctx, change.Change.ID)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}
	var baseRecord Record
	if base != nil {
		baseRecord = *base
	}
	record := change.Merge(baseRecord)

	log.Debugf("pushing outgoing record %s, revision %d to remote", record.ID, record.Revision)
	wire, err := encryptRecord(e.cfg.Signer, record)
	if err != nil {
		return err
	}
	if _, err := e.cfg.Client.SetRecord(ctx, wire); err != nil {
		return fmt.Errorf("set record: %w", err)
	}

	log.Debugf("completing outgoing record %s, revision %d", record.ID, record.Revision)
	if err := e.cfg.Storage.CompleteOutgoingSync(ctx, record); err != nil {
		return fmt.Errorf("complete outgoing sync: %w", err)
	}
	return nil
}

// pullSyncOnce fetches every change since the last applied revision,
// inserts them as incoming records ordered by revision, then drains
// them into app state via pullSyncOnceLocal.
func (e *Engine) pullSyncOnce(ctx context.Context) (*uint32, error) {
	log.Debugf("pull syncing once")

	sinceRevision, err := e.cfg.Storage.GetLastRevision(ctx)
	if err != nil {
		return nil, fmt.Errorf("get last revision: %w", err)
	}

	wireRecords, err := e.cfg.Client.ListChanges(ctx, sinceRevision)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	sort.Slice(wireRecords, func(i, j int) bool {
		return wireRecords[i].Revision < wireRecords[j].Revision
	})

	if len(wireRecords) > 0 {
		records := make([]Record, len(wireRecords))
		for i, wr := range wireRecords {
			rec, err := decryptRecord(e.cfg.Signer, wr)
			if err != nil {
				return nil, err
			}
			records[i] = rec
		}
		if err := e.cfg.Storage.InsertIncomingRecords(ctx, records); err != nil {
			return nil, fmt.Errorf("insert incoming records: %w", err)
		}
	}

	count, err := e.pullSyncOnceLocal(ctx)
	if err != nil {
		return nil, err
	}
	return &count, nil
}

// pullSyncOnceLocal drains every already-fetched incoming record into
// app state: rebase pending outgoing records above it, apply it to
// sync state, invoke the app callback, and only then delete it. A
// crash between applying and deleting replays the same record on next
// boot.
func (e *Engine) pullSyncOnceLocal(ctx context.Context) (uint32, error) {
	var count uint32
	for {
		incoming, err := e.cfg.Storage.GetIncomingRecords(ctx, syncBatchSize)
		if err != nil {
			return count, fmt.Errorf("get incoming records: %w", err)
		}
		if len(incoming) == 0 {
			return count, nil
		}

		for _, change := range incoming {
			rev := change.NewState.Revision

			log.Debugf("rebasing pending outgoing records to above revision %d", rev)
			if err := e.cfg.Storage.RebasePendingOutgoingRecords(ctx, rev); err != nil {
				return count, fmt.Errorf("rebase pending outgoing records: %w", err)
			}

			log.Debugf("updating sync state from incoming record %s, revision %d", change.NewState.ID, rev)
			if err := e.cfg.Storage.UpdateRecordFromIncoming(ctx, change.NewState); err != nil {
				return count, fmt.Errorf("update record from incoming: %w", err)
			}

			log.Debugf("invoking app callback for incoming record %s, revision %d", change.NewState.ID, rev)
			if err := e.cfg.Handler.OnIncomingChange(change); err != nil {
				return count, fmt.Errorf("incoming change handler: %w", err)
			}

			log.Debugf("removing incoming record after processing completion %s, revision %d", change.NewState.ID, rev)
			if err := e.cfg.Storage.DeleteIncomingRecord(ctx, change.NewState); err != nil {
				return count, fmt.Errorf("delete incoming record: %w", err)
			}

			count++
		}
	}
}
