package syncengine

// RecordID names one synced record: a logical type plus the
// caller-assigned id of the specific row within that type.
type RecordID struct {
	Type   string
	DataID string
}

// String renders the id the way it appears over the wire.
func (id RecordID) String() string {
	return id.Type + ":" + id.DataID
}

// Record is the decrypted, app-visible form of one synced row.
type Record struct {
	ID            RecordID
	Revision      uint64
	SchemaVersion string
	Data          map[string]string // each value is itself a JSON-encoded scalar/object
}

// RecordChange is a named, partial update to a Record: Revision is
// the revision this change targets (the record's *next* revision once
// applied), and Parent, when set, is the revision this change was
// derived from locally before any remote rebase.
type RecordChange struct {
	ID            RecordID
	SchemaVersion string
	UpdatedFields map[string]string
	Revision      uint64
	Parent        *uint64
}

// OutgoingChange is a RecordChange not yet pushed to the sync server.
type OutgoingChange struct {
	Change RecordChange
}

// Merge folds Change.UpdatedFields over base (the record's last known
// state in local sync storage, or a zero Record for a brand-new one)
// to produce the record that push_sync_once actually ships.
func (c OutgoingChange) Merge(base Record) Record {
	merged := Record{
		ID:            c.Change.ID,
		Revision:      c.Change.Revision,
		SchemaVersion: c.Change.SchemaVersion,
		Data:          make(map[string]string, len(base.Data)+len(c.Change.UpdatedFields)),
	}
	for k, v := range base.Data {
		merged.Data[k] = v
	}
	for k, v := range c.Change.UpdatedFields {
		merged.Data[k] = v
	}
	return merged
}

// IncomingChange is a record pulled from the sync server but not yet
// applied to local app state. OldState is the previously known local
// state for the same record id, if any — callers may use it to
// compute a diff for their own change-notification surface.
type IncomingChange struct {
	NewState Record
	OldState *Record
}

// Handler is the capability interface the sync engine invokes as it
// drains incoming and replays outgoing changes. Implementations live in the relational
// app layer above this package and must be idempotent: the engine
// replays the same incoming record across a crash between applying it
// to sync state and deleting its incoming row.
type Handler interface {
	OnIncomingChange(change IncomingChange) error
	OnReplayOutgoingChange(change OutgoingChange) error
	OnSyncCompleted(incomingCount, outgoingCount *uint32) error
}
