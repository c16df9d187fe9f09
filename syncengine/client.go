package syncengine

import "context"

// WireRecord is the encrypted, wire-level representation of a Record:
// Data is the ECIES ciphertext of the record's JSON-encoded Data map.
type WireRecord struct {
	ID            string
	Revision      uint64
	SchemaVersion string
	Data          []byte
}

// SetRecordStatus discriminates the server's response to a push.
type SetRecordStatus uint8

const (
	SetRecordStatusSuccess SetRecordStatus = iota
	SetRecordStatusConflict
)

// SetRecordResult is the sync server's response to pushing one record.
type SetRecordResult struct {
	Status      SetRecordStatus
	NewRevision uint64
}

// ChangeNotification is one message on the listen_changes stream.
// ClientID, when non-empty, names the client that produced the
// change; the subscribe loop uses it to ignore the wallet's own
// writes.
type ChangeNotification struct {
	ClientID string
}

// ChangeStream is the receive half of the listen_changes RPC. Recv
// returns io.EOF-like (nil, nil) semantics are not used here: a
// closed stream is signaled by a non-nil error.
type ChangeStream interface {
	Recv() (ChangeNotification, error)
}

// Client is the capability interface the engine needs from the sync
// server's RPC surface.
type Client interface {
	// ListenChanges opens a server-streaming subscription that
	// delivers a notification for every record write visible to this
	// identity, across every client.
	ListenChanges(ctx context.Context) (ChangeStream, error)

	// ListChanges returns every record revision greater than
	// sinceRevision.
	ListChanges(ctx context.Context, sinceRevision uint64) ([]WireRecord, error)

	// SetRecord pushes one encrypted record to the sync server.
	SetRecord(ctx context.Context, record WireRecord) (SetRecordResult, error)
}
