// Package tree models the leaf — a persistent, UTXO-like record held
// under an aggregate FROST key — and the reservation mechanism that is
// the only way code may take leaves out of "available" while a
// transfer or optimization round is in flight.
package tree

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/sparkwallet/spark/keys"
)

// NodeStatus is the lifecycle state of a Node.
type NodeStatus uint8

const (
	StatusCreating NodeStatus = iota
	StatusAvailable
	StatusTransferLocked
	StatusSplitted
)

// Node is a persistent record for one leaf.
type Node struct {
	ID           string
	TreeID       string
	ParentNodeID string // empty when this node is a tree root

	Value uint64 // sats

	NodeTx   *wire.MsgTx
	RefundTx *wire.MsgTx // nil until a refund has been co-signed
	Vout     uint32

	VerifyingPublicKey      keys.PublicKey
	OwnerIdentityPublicKey  keys.PublicKey
	SigningKeyshareMetadata SigningKeyshareMetadata

	Status NodeStatus
}

// SigningKeyshareMetadata records which operator polynomial produced
// this leaf's current signing shares, so a later transfer's key
// rotation can be audited against it.
type SigningKeyshareMetadata struct {
	Threshold uint32
	OperatorIdentifiers []uint32
}

// ReservationPurpose discriminates why a set of leaves was pulled out
// of "available".
type ReservationPurpose uint8

const (
	PurposeTransfer ReservationPurpose = iota
	PurposeOptimization
)

// Reservation is a scoped claim on a set of leaf ids. Cancel restores
// the leaves to available; Finalize consumes them permanently (they
// no longer exist once the swap/transfer/optimization that reserved
// them commits).
type Reservation struct {
	ID      string
	LeafIDs []string
	Purpose ReservationPurpose
}

// Service is the capability interface the rest of the core depends on
// to read and mutate the local leaf set. A concrete implementation
// talks to the operator pool/coordinator for anything that needs
// consensus and to local Storage for anything that is purely a cache
// of the coordinator's view.
type Service interface {
	// ListLeaves returns every leaf currently considered available
	// (not under an active reservation).
	ListLeaves(ctx context.Context) ([]Node, error)

	// SelectLeaves reserves exactly the leaves named by leafIDs for
	// purpose, failing if any of them is already reserved.
	SelectLeaves(ctx context.Context, leafIDs []string, purpose ReservationPurpose) (Reservation, error)

	// ReserveAll reserves every currently available leaf for purpose,
	// used by the optimizer, which needs the entire set as its
	// working input.
	ReserveAll(ctx context.Context, purpose ReservationPurpose) (Reservation, []Node, error)

	// InsertLeaves adds newly created leaves (e.g. a swap's outputs)
	// to the local view immediately, without waiting for a full
	// refresh.
	InsertLeaves(ctx context.Context, leaves []Node) error

	// RemoveLeaves drops leaves from the local view, e.g. after they
	// are consumed by a swap or transferred away.
	RemoveLeaves(ctx context.Context, leafIDs []string) error

	// CancelReservation restores a reservation's leaves to available.
	CancelReservation(ctx context.Context, reservationID string) error

	// FinalizeReservation permanently consumes a reservation's leaves.
	FinalizeReservation(ctx context.Context, reservationID string) error

	// RefreshLeaves discards the local view and re-fetches the full
	// leaf set from the coordinator; used after an interrupted
	// operation may have left local state stale.
	RefreshLeaves(ctx context.Context) ([]Node, error)
}

// InMemoryService is a Service implementation holding leaves and
// reservations purely in process memory, suitable for wiring tests and
// for wrapping a coordinator RPC client that has no local cache of its
// own. A persistent deployment instead backs Service with the storage
// package and a coordinator client; InMemoryService is the reference
// implementation the optimizer and transfer tests exercise against.
type InMemoryService struct {
	mu           sync.Mutex
	leaves       map[string]Node
	reservations map[string]Reservation
	reserved     map[string]string // leafID -> reservationID
	nextID       uint64
}

// NewInMemoryService creates an InMemoryService seeded with leaves.
func NewInMemoryService(leaves []Node) *InMemoryService {
	s := &InMemoryService{
		leaves:       make(map[string]Node, len(leaves)),
		reservations: make(map[string]Reservation),
		reserved:     make(map[string]string),
	}
	for _, l := range leaves {
		s.leaves[l.ID] = l
	}
	return s
}

func (s *InMemoryService) ListLeaves(_ context.Context) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Node, 0, len(s.leaves))
	for id, leaf := range s.leaves {
		if _, reserved := s.reserved[id]; reserved {
			continue
		}
		out = append(out, leaf)
	}
	return out, nil
}

func (s *InMemoryService) SelectLeaves(_ context.Context, leafIDs []string, purpose ReservationPurpose) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range leafIDs {
		if _, ok := s.leaves[id]; !ok {
			return Reservation{}, ErrLeafNotFound
		}
		if _, reserved := s.reserved[id]; reserved {
			return Reservation{}, ErrLeafAlreadyReserved
		}
	}

	return s.reserveLocked(leafIDs, purpose), nil
}

func (s *InMemoryService) ReserveAll(_ context.Context, purpose ReservationPurpose) (Reservation, []Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	var nodes []Node
	for id, leaf := range s.leaves {
		if _, reserved := s.reserved[id]; reserved {
			continue
		}
		ids = append(ids, id)
		nodes = append(nodes, leaf)
	}

	return s.reserveLocked(ids, purpose), nodes, nil
}

func (s *InMemoryService) reserveLocked(leafIDs []string, purpose ReservationPurpose) Reservation {
	s.nextID++
	res := Reservation{
		ID:      reservationID(s.nextID),
		LeafIDs: append([]string(nil), leafIDs...),
		Purpose: purpose,
	}
	s.reservations[res.ID] = res
	for _, id := range leafIDs {
		s.reserved[id] = res.ID
	}
	return res
}

func (s *InMemoryService) InsertLeaves(_ context.Context, leaves []Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leaves {
		s.leaves[l.ID] = l
	}
	return nil
}

func (s *InMemoryService) RemoveLeaves(_ context.Context, leafIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range leafIDs {
		delete(s.leaves, id)
		delete(s.reserved, id)
	}
	return nil
}

func (s *InMemoryService) CancelReservation(_ context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	for _, id := range res.LeafIDs {
		delete(s.reserved, id)
	}
	delete(s.reservations, reservationID)
	return nil
}

func (s *InMemoryService) FinalizeReservation(_ context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[reservationID]
	if !ok {
		return ErrReservationNotFound
	}
	for _, id := range res.LeafIDs {
		delete(s.leaves, id)
		delete(s.reserved, id)
	}
	delete(s.reservations, reservationID)
	return nil
}

func (s *InMemoryService) RefreshLeaves(ctx context.Context) ([]Node, error) {
	return s.ListLeaves(ctx)
}

func reservationID(n uint64) string {
	const prefix = "reservation-"
	digits := make([]byte, 0, 20)
	if n == 0 {
		digits = append(digits, '0')
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return prefix + string(digits)
}

var _ Service = (*InMemoryService)(nil)
