package syncengine

import "context"

// Storage is the capability interface the engine needs from the local
// persistence layer for the sync log. A concrete implementation backs this with the storage
// package's relational store; InMemoryStorage below is the reference
// implementation tests exercise against.
type Storage interface {
	// GetLatestOutgoingChange returns the most recently created
	// pending outgoing change, if any, so boot can replay it before
	// starting the loops.
	GetLatestOutgoingChange(ctx context.Context) (*OutgoingChange, error)

	// GetPendingOutgoingChanges pages through outgoing changes not yet
	// pushed, oldest first, up to limit at a time.
	GetPendingOutgoingChanges(ctx context.Context, limit int) ([]OutgoingChange, error)

	// CompleteOutgoingSync atomically removes the pending outgoing row
	// for record.ID and upserts record as the new local sync state.
	CompleteOutgoingSync(ctx context.Context, record Record) error

	// InsertIncomingRecords stores freshly pulled records as pending
	// incoming rows, to be drained by PullSyncOnceLocal.
	InsertIncomingRecords(ctx context.Context, records []Record) error

	// GetIncomingRecords pages through pending incoming records, up to
	// limit at a time, pairing each with its previously known local
	// state if any.
	GetIncomingRecords(ctx context.Context, limit int) ([]IncomingChange, error)

	// RebasePendingOutgoingRecords bumps every pending outgoing
	// change's revision to aboveRevision+1 if it is not already
	// higher, since an incoming remote change at that revision now
	// supersedes whatever revision the outgoing change assumed.
	RebasePendingOutgoingRecords(ctx context.Context, aboveRevision uint64) error

	// UpdateRecordFromIncoming applies an incoming record's state to
	// local sync storage without removing its pending incoming row.
	UpdateRecordFromIncoming(ctx context.Context, record Record) error

	// DeleteIncomingRecord removes a pending incoming row once its
	// app-state callback has completed.
	DeleteIncomingRecord(ctx context.Context, record Record) error

	// GetLastRevision returns the highest revision applied to local
	// sync state, the starting point for the next pull.
	GetLastRevision(ctx context.Context) (uint64, error)

	// GetRecord returns the current local sync state for id, if any.
	// PushSyncOnce uses it to merge an outgoing change's updated
	// fields onto the record's last known state before encrypting and
	// pushing (mirrors the get-by-id half of the payment/deposit CRUD
	// surface this interface follows elsewhere).
	GetRecord(ctx context.Context, id RecordID) (*Record, error)
}
