package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClient is a minimal Client used by engine tests; each method's
// behavior is configured per test via its function and stream fields.
type fakeClient struct {
	mu sync.Mutex

	listChangesFn func(ctx context.Context, since uint64) ([]WireRecord, error)
	setRecordFn   func(ctx context.Context, rec WireRecord) (SetRecordResult, error)
	stream        ChangeStream

	setRecordCalls []WireRecord
}

func (c *fakeClient) ListenChanges(context.Context) (ChangeStream, error) {
	if c.stream != nil {
		return c.stream, nil
	}
	return &fakeChangeStream{}, nil
}

func (c *fakeClient) ListChanges(ctx context.Context, since uint64) ([]WireRecord, error) {
	if c.listChangesFn != nil {
		return c.listChangesFn(ctx, since)
	}
	return nil, nil
}

func (c *fakeClient) SetRecord(ctx context.Context, rec WireRecord) (SetRecordResult, error) {
	c.mu.Lock()
	c.setRecordCalls = append(c.setRecordCalls, rec)
	c.mu.Unlock()
	if c.setRecordFn != nil {
		return c.setRecordFn(ctx, rec)
	}
	return SetRecordResult{Status: SetRecordStatusSuccess}, nil
}

func (c *fakeClient) calls() []WireRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WireRecord(nil), c.setRecordCalls...)
}

// fakeChangeStream yields queued notifications, then returns errAfter
// if set, or errTestStreamClosed otherwise, once the queue drains.
type fakeChangeStream struct {
	mu            sync.Mutex
	notifications []ChangeNotification
	errAfter      error
}

// Recv returns queued notifications first, then an error (errAfter if
// set, otherwise a default closed-stream error). It never blocks,
// since subscribeLoop only sleeps between attempts in its own select
// against the engine's quit channel.
func (s *fakeChangeStream) Recv() (ChangeNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notifications) > 0 {
		n := s.notifications[0]
		s.notifications = s.notifications[1:]
		return n, nil
	}
	if s.errAfter != nil {
		return ChangeNotification{}, s.errAfter
	}
	return ChangeNotification{}, errTestStreamClosed
}

type handlerCall struct {
	kind   string
	change interface{}
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []handlerCall

	onIncomingErr error
	onReplayErr   error
}

func (h *fakeHandler) OnIncomingChange(change IncomingChange) error {
	h.mu.Lock()
	h.calls = append(h.calls, handlerCall{kind: "incoming", change: change})
	h.mu.Unlock()
	return h.onIncomingErr
}

func (h *fakeHandler) OnReplayOutgoingChange(change OutgoingChange) error {
	h.mu.Lock()
	h.calls = append(h.calls, handlerCall{kind: "replay", change: change})
	h.mu.Unlock()
	return h.onReplayErr
}

func (h *fakeHandler) OnSyncCompleted(incoming, outgoing *uint32) error {
	h.mu.Lock()
	h.calls = append(h.calls, handlerCall{kind: "completed"})
	h.mu.Unlock()
	return nil
}

func (h *fakeHandler) kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.kind
	}
	return out
}

func newTestEngine(t *testing.T, client *fakeClient, storage *InMemoryStorage, handler *fakeHandler) *Engine {
	t.Helper()
	e, err := New(&Config{
		Client:   client,
		Storage:  storage,
		Signer:   testSigner(t, 0x21),
		Handler:  handler,
		ClientID: "this-client",
	})
	require.NoError(t, err)
	return e
}

// TestEnsureOutgoingRecordCommittedReplaysLatestPendingChange checks
// that boot invokes the relational callback exactly once with the
// latest pending outgoing change before any new push/pull.
func TestEnsureOutgoingRecordCommittedReplaysLatestPendingChange(t *testing.T) {
	storage := NewInMemoryStorage()
	change := OutgoingChange{Change: RecordChange{
		ID:            RecordID{Type: "x", DataID: "1"},
		Revision:      3,
		UpdatedFields: map[string]string{"a": `"v"`},
	}}
	storage.EnqueueOutgoing(change)

	handler := &fakeHandler{}
	e := newTestEngine(t, &fakeClient{}, storage, handler)

	require.NoError(t, e.ensureOutgoingRecordCommitted(context.Background()))
	require.Equal(t, []string{"replay"}, handler.kinds())
	require.Equal(t, change, handler.calls[0].change)
}

func TestEnsureOutgoingRecordCommittedNoPendingChange(t *testing.T) {
	storage := NewInMemoryStorage()
	handler := &fakeHandler{}
	e := newTestEngine(t, &fakeClient{}, storage, handler)

	require.NoError(t, e.ensureOutgoingRecordCommitted(context.Background()))
	require.Empty(t, handler.kinds())
}

func TestPullSyncOnceLocalRebasesAppliesThenDeletes(t *testing.T) {
	storage := NewInMemoryStorage()
	storage.EnqueueOutgoing(OutgoingChange{Change: RecordChange{
		ID:       RecordID{Type: "x", DataID: "1"},
		Revision: 1,
	}})
	require.NoError(t, storage.InsertIncomingRecords(context.Background(), []Record{{
		ID:       RecordID{Type: "x", DataID: "1"},
		Revision: 6,
	}}))

	handler := &fakeHandler{}
	e := newTestEngine(t, &fakeClient{}, storage, handler)

	count, err := e.pullSyncOnceLocal(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)
	require.Equal(t, []string{"incoming"}, handler.kinds())

	pending, err := storage.GetPendingOutgoingChanges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, uint64(7), pending[0].Change.Revision, "rebase must move pending revision above the incoming revision")

	remaining, err := storage.GetIncomingRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, remaining)

	rev, err := storage.GetLastRevision(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(6), rev)
}

func TestPullSyncOnceLocalLeavesIncomingRecordOnHandlerFailure(t *testing.T) {
	storage := NewInMemoryStorage()
	require.NoError(t, storage.InsertIncomingRecords(context.Background(), []Record{{
		ID:       RecordID{Type: "x", DataID: "1"},
		Revision: 6,
	}}))

	handler := &fakeHandler{onIncomingErr: errTestHandler}
	e := newTestEngine(t, &fakeClient{}, storage, handler)

	_, err := e.pullSyncOnceLocal(context.Background())
	require.Error(t, err)

	remaining, err := storage.GetIncomingRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "a crash/failure between applying and deleting must leave the incoming record for replay")
}

func TestPushSyncOnceEncryptsPushesAndCompletes(t *testing.T) {
	storage := NewInMemoryStorage()
	storage.EnqueueOutgoing(OutgoingChange{Change: RecordChange{
		ID:            RecordID{Type: "payment", DataID: "1"},
		Revision:      1,
		UpdatedFields: map[string]string{"amount": "1000"},
	}})

	client := &fakeClient{}
	handler := &fakeHandler{}
	e := newTestEngine(t, client, storage, handler)

	count, err := e.pushSyncOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, count)
	require.Equal(t, uint32(1), *count)
	require.Len(t, client.calls(), 1)

	pending, err := storage.GetPendingOutgoingChanges(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stored, err := storage.GetRecord(context.Background(), RecordID{Type: "payment", DataID: "1"})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "1000", stored.Data["amount"])
}

func TestPushSyncOnceClientFailureLeavesChangePending(t *testing.T) {
	storage := NewInMemoryStorage()
	storage.EnqueueOutgoing(OutgoingChange{Change: RecordChange{
		ID:       RecordID{Type: "payment", DataID: "1"},
		Revision: 1,
	}})

	client := &fakeClient{setRecordFn: func(context.Context, WireRecord) (SetRecordResult, error) {
		return SetRecordResult{}, errTestNetwork
	}}
	e := newTestEngine(t, client, storage, &fakeHandler{})

	_, err := e.pushSyncOnce(context.Background())
	require.ErrorIs(t, err, errTestNetwork)

	pending, err := storage.GetPendingOutgoingChanges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestPushSyncOnceNoPendingChangesReturnsNilCount(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})

	count, err := e.pushSyncOnce(context.Background())
	require.NoError(t, err)
	require.Nil(t, count)
}

func TestPullSyncOnceOrdersByRevisionAndDecrypts(t *testing.T) {
	storage := NewInMemoryStorage()
	s := testSigner(t, 0x22)

	recA := Record{ID: RecordID{Type: "x", DataID: "a"}, Revision: 7, Data: map[string]string{"v": "1"}}
	recB := Record{ID: RecordID{Type: "x", DataID: "b"}, Revision: 6, Data: map[string]string{"v": "2"}}
	wireA, err := encryptRecord(s, recA)
	require.NoError(t, err)
	wireB, err := encryptRecord(s, recB)
	require.NoError(t, err)

	client := &fakeClient{listChangesFn: func(context.Context, uint64) ([]WireRecord, error) {
		return []WireRecord{wireA, wireB}, nil
	}}
	e, err := New(&Config{Client: client, Storage: storage, Signer: s, Handler: &fakeHandler{}, ClientID: "c"})
	require.NoError(t, err)

	count, err := e.pullSyncOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, count)
	require.Equal(t, uint32(2), *count)

	rev, err := storage.GetLastRevision(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), rev)
}

// TestScheduleBackoffKeepsExistingWhenItFiresSooner covers the branch
// where the existing backoff's remaining time is shorter than the
// newly requested duration: the existing one is left in place since it
// will fire first anyway.
func TestScheduleBackoffKeepsExistingWhenItFiresSooner(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})
	e.quit = make(chan struct{})
	defer close(e.quit)

	e.scheduleBackoff(time.Millisecond)
	firstDuration := e.backoff.duration

	e.scheduleBackoff(time.Hour)
	require.Equal(t, firstDuration, e.backoff.duration, "a request longer than the existing backoff's remaining time must not replace it")
}

// TestScheduleBackoffReplacesWithShorterDuration covers the branch
// where the new request would fire sooner than the existing backoff's
// remaining time: it replaces the existing one.
func TestScheduleBackoffReplacesWithShorterDuration(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})
	e.quit = make(chan struct{})
	defer close(e.quit)

	e.scheduleBackoff(time.Hour)
	e.scheduleBackoff(time.Millisecond)
	require.Equal(t, time.Millisecond, e.backoff.duration)
}

func TestCoalesceBackoffReturnsMinimumQueuedDuration(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})
	e.backoffTrigger <- 5 * time.Second
	e.backoffTrigger <- 1 * time.Second
	e.backoffTrigger <- 3 * time.Second

	got := e.coalesceBackoff(10 * time.Second)
	require.Equal(t, time.Second, got)
}

func TestStartRunsBootSequenceBeforeBackgroundLoops(t *testing.T) {
	storage := NewInMemoryStorage()
	replay := OutgoingChange{Change: RecordChange{ID: RecordID{Type: "x", DataID: "1"}, Revision: 3}}
	storage.EnqueueOutgoing(replay)
	require.NoError(t, storage.InsertIncomingRecords(context.Background(), []Record{{
		ID: RecordID{Type: "y", DataID: "2"}, Revision: 1,
	}}))

	handler := &fakeHandler{}
	e := newTestEngine(t, &fakeClient{}, storage, handler)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	kinds := handler.kinds()
	require.GreaterOrEqual(t, len(kinds), 2)
	require.Equal(t, "replay", kinds[0], "ensure_outgoing_record_committed must run first")
	require.Equal(t, "incoming", kinds[1], "pull_sync_once_local must run before the background loops start")
}

func TestStartRejectsConcurrentStart(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	require.ErrorIs(t, e.Start(context.Background()), ErrAlreadyRunning)
}

func TestStopWithoutStartReturnsErrNotRunning(t *testing.T) {
	storage := NewInMemoryStorage()
	e := newTestEngine(t, &fakeClient{}, storage, &fakeHandler{})
	require.ErrorIs(t, e.Stop(), ErrNotRunning)
}

func TestTriggerPushDrivesPushSyncOnceThroughMainLoop(t *testing.T) {
	storage := NewInMemoryStorage()
	client := &fakeClient{}
	handler := &fakeHandler{}
	e := newTestEngine(t, client, storage, handler)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	storage.EnqueueOutgoing(OutgoingChange{Change: RecordChange{
		ID:            RecordID{Type: "payment", DataID: "1"},
		Revision:      1,
		UpdatedFields: map[string]string{"amount": "500"},
	}})
	e.TriggerPush(RecordID{Type: "payment", DataID: "1"})

	require.Eventually(t, func() bool {
		return len(client.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeOnceIgnoresOwnClientIDAndForwardsOthers(t *testing.T) {
	storage := NewInMemoryStorage()
	stream := &fakeChangeStream{
		notifications: []ChangeNotification{
			{ClientID: "this-client"},
			{ClientID: "other-client"},
		},
		errAfter: errTestStreamClosed,
	}
	client := &fakeClient{stream: stream}
	e := newTestEngine(t, client, storage, &fakeHandler{})

	e.subscribeOnce(context.Background())

	require.Len(t, e.pullTrigger, 1, "only the non-self notification should trigger a pull")
}

var (
	errTestHandler      = testError("handler failure")
	errTestNetwork      = testError("network failure")
	errTestStreamClosed = testError("stream closed")
)

type testError string

func (e testError) Error() string { return string(e) }
