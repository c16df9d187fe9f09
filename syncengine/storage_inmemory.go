package syncengine

import (
	"context"
	"sync"
)

// InMemoryStorage is a Storage implementation holding the sync log
// purely in process memory, suitable for wiring tests. It implements
// only the sync log, not the wallet's full storage.Store.
type InMemoryStorage struct {
	mu sync.Mutex

	outgoing []OutgoingChange // pending, oldest first
	incoming []IncomingChange // pending, oldest first
	records  map[string]Record
	lastRev  uint64
}

// NewInMemoryStorage creates an empty InMemoryStorage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{records: make(map[string]Record)}
}

// EnqueueOutgoing appends change to the pending outgoing queue, for
// seeding tests and for the relational app layer to call when it
// records a local write.
func (s *InMemoryStorage) EnqueueOutgoing(change OutgoingChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = append(s.outgoing, change)
}

func (s *InMemoryStorage) GetLatestOutgoingChange(_ context.Context) (*OutgoingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outgoing) == 0 {
		return nil, nil
	}
	latest := s.outgoing[len(s.outgoing)-1]
	return &latest, nil
}

func (s *InMemoryStorage) GetPendingOutgoingChanges(_ context.Context, limit int) ([]OutgoingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.outgoing) {
		limit = len(s.outgoing)
	}
	out := make([]OutgoingChange, limit)
	copy(out, s.outgoing[:limit])
	return out, nil
}

func (s *InMemoryStorage) CompleteOutgoingSync(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.outgoing[:0:0]
	for _, c := range s.outgoing {
		if c.Change.ID != record.ID {
			filtered = append(filtered, c)
		}
	}
	s.outgoing = filtered
	s.records[record.ID.String()] = record
	return nil
}

func (s *InMemoryStorage) InsertIncomingRecords(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		var old *Record
		if existing, ok := s.records[r.ID.String()]; ok {
			existingCopy := existing
			old = &existingCopy
		}
		s.incoming = append(s.incoming, IncomingChange{NewState: r, OldState: old})
	}
	return nil
}

func (s *InMemoryStorage) GetIncomingRecords(_ context.Context, limit int) ([]IncomingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.incoming) {
		limit = len(s.incoming)
	}
	out := make([]IncomingChange, limit)
	copy(out, s.incoming[:limit])
	return out, nil
}

func (s *InMemoryStorage) RebasePendingOutgoingRecords(_ context.Context, aboveRevision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.outgoing {
		if c.Change.Revision <= aboveRevision {
			s.outgoing[i].Change.Revision = aboveRevision + 1
		}
	}
	return nil
}

func (s *InMemoryStorage) UpdateRecordFromIncoming(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID.String()] = record
	if record.Revision > s.lastRev {
		s.lastRev = record.Revision
	}
	return nil
}

func (s *InMemoryStorage) DeleteIncomingRecord(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.incoming[:0:0]
	for _, c := range s.incoming {
		if !(c.NewState.ID == record.ID && c.NewState.Revision == record.Revision) {
			filtered = append(filtered, c)
		}
	}
	s.incoming = filtered
	return nil
}

func (s *InMemoryStorage) GetLastRevision(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRev, nil
}

func (s *InMemoryStorage) GetRecord(_ context.Context, id RecordID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id.String()]; ok {
		rCopy := r
		return &rCopy, nil
	}
	return nil, nil
}

var _ Storage = (*InMemoryStorage)(nil)
