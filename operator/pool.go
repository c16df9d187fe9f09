// Package operator models the pool of statechain operators a Spark
// wallet coordinates with: a stable, ordered set of N operators, one
// of which is designated coordinator for protocol-initiation RPCs.
package operator

import (
	"context"
	"fmt"

	"github.com/sparkwallet/spark/keys"
)

// Client is the capability interface each operator exposes. This
// module never generates concrete gRPC stubs since no .proto
// definition is available, but every caller in this module is written
// against this interface so a transport can be plugged in without
// touching business logic.
type Client interface {
	// GenerateDepositAddress requests a cooperative deposit address
	// and its proof-of-possession bundle.
	GenerateDepositAddress(ctx context.Context, req DepositAddressRequest) (DepositAddressResponse, error)

	// QueryUnusedDepositAddresses lists previously generated deposit
	// addresses this identity has not yet funded.
	QueryUnusedDepositAddresses(ctx context.Context, identityPublicKey keys.PublicKey) ([]DepositAddressResponse, error)

	// QueryStaticDepositAddresses lists the identity's static deposit
	// addresses.
	QueryStaticDepositAddresses(ctx context.Context, identityPublicKey keys.PublicKey) ([]StaticDepositAddress, error)

	// StartDepositTreeCreation anchors a new leaf tree root to an
	// on-chain funding transaction.
	StartDepositTreeCreation(ctx context.Context, req StartDepositTreeCreationRequest) (StartDepositTreeCreationResponse, error)

	// GetSigningCommitments requests FROST nonce commitments for a
	// batch of signing jobs.
	GetSigningCommitments(ctx context.Context, signingJobIDs []string) (map[string]SigningCommitmentBundle, error)

	// FinalizeNodeSignatures submits final aggregated signatures for
	// the given intent (creation or transfer) and returns the
	// resulting persistent tree nodes.
	FinalizeNodeSignatures(ctx context.Context, req FinalizeNodeSignaturesRequest) (FinalizeNodeSignaturesResponse, error)

	// StartTransfer begins a send-path transfer.
	StartTransfer(ctx context.Context, req StartTransferRequest) (StartTransferResponse, error)

	// FinalizeTransfer marks a transfer completed after the receiver
	// has claimed every leaf.
	FinalizeTransfer(ctx context.Context, transferID string) error

	// ClaimTransferTweakKeys submits the receiver's per-leaf claim key
	// tweaks.
	ClaimTransferTweakKeys(ctx context.Context, req ClaimTransferTweakKeysRequest) error

	// ClaimTransferSignRefunds requests partial signatures for the
	// receiver's newly rotated refund transactions.
	ClaimTransferSignRefunds(ctx context.Context, req ClaimTransferSignRefundsRequest) (map[string][]byte, error)

	// QueryAllTransfers pages through transfers visible to this
	// identity, optionally filtered by type.
	QueryAllTransfers(ctx context.Context, req QueryTransfersRequest) (QueryTransfersResponse, error)

	// QueryPendingTransfers is a convenience filter over
	// QueryAllTransfers for transfers awaiting claim by this identity.
	QueryPendingTransfers(ctx context.Context, identityPublicKey keys.PublicKey) (QueryTransfersResponse, error)

	// InitiateUtxoSwap starts a static-deposit refund or claim swap
	// against the coordinator.
	InitiateUtxoSwap(ctx context.Context, req InitiateUtxoSwapRequest) (InitiateUtxoSwapResponse, error)
}

// DepositAddressRequest and DepositAddressResponse carry the
// cooperative deposit address RPC payload.
type DepositAddressRequest struct {
	UserSigningPublicKey keys.PublicKey
	LeafID               string
}

type DepositAddressResponse struct {
	Address            string
	LeafID             string
	UserSigningPublicKey keys.PublicKey
	VerifyingPublicKey keys.PublicKey
	ProofOfPossession  []byte
	OperatorSignatures map[uint32][]byte
}

// StaticDepositAddress is a reusable address unlocked by a single
// deterministic wallet-owned key.
type StaticDepositAddress struct {
	Address    string
	Index      uint32
	PublicKey  keys.PublicKey
}

// SigningCommitmentBundle is one operator's FROST nonce commitment
// for a given signing job.
type SigningCommitmentBundle struct {
	Hiding  keys.PublicKey
	Binding keys.PublicKey
}

// SigningJob names one transaction the wallet wants FROST-signed, by
// its sighash and the leaf whose aggregate key must sign it.
type SigningJob struct {
	JobID        string
	LeafID       string
	VerifyingKey keys.PublicKey
	SigHash      [32]byte
}

// StartDepositTreeCreationRequest is the anchor request of §4.3 step 3.
type StartDepositTreeCreationRequest struct {
	LeafID       string
	FundingTxHex string
	Vout         uint32
	RootTxHex    string
	RefundTxHex  string
}

type StartDepositTreeCreationResponse struct {
	TreeID        string
	RootJobID     string
	RefundJobID   string
	Participants  []ParticipantInfo
}

// ParticipantInfo is an operator's FROST commitment for one signing
// job, keyed by the job it belongs to.
type ParticipantInfo struct {
	JobID      string
	Identifier uint32
	Commitment SigningCommitmentBundle
}

// FinalizeNodeSignaturesRequest carries the final aggregated Schnorr
// signatures for every signing job in an intent.
type FinalizeNodeSignaturesRequest struct {
	Intent     NodeSignatureIntent
	Signatures map[string][]byte // jobID -> aggregated signature
}

type NodeSignatureIntent uint8

const (
	IntentCreation NodeSignatureIntent = iota
	IntentTransfer
)

type FinalizeNodeSignaturesResponse struct {
	NodeIDs []string
}

// StartTransferRequest/Response model the send-path §4.4 step 6 RPC.
type StartTransferRequest struct {
	TransferID        string
	OwnerPublicKey    keys.PublicKey
	ReceiverPublicKey keys.PublicKey
	LeafIDs           []string
	KeyTweakPackage   map[uint32][]byte // operator identifier -> ECIES ciphertext
	UserSignature     []byte
}

type StartTransferResponse struct {
	TransferID string
}

// ClaimTransferTweakKeysRequest carries one operator's share of the
// receiver's claim key tweaks (§4.4 step 4).
type ClaimTransferTweakKeysRequest struct {
	TransferID      string
	OperatorID      uint32
	LeafKeyTweaks   map[string][]byte // leaf id -> serialized ClaimLeafKeyTweak
}

// ClaimTransferSignRefundsRequest asks for partial signatures over the
// receiver's newly built refund transactions.
type ClaimTransferSignRefundsRequest struct {
	TransferID string
	SigningJobs []SigningJob
}

// QueryTransfersRequest supports paging and a type filter per the
// supplemented transfer query surface.
type QueryTransfersRequest struct {
	IdentityPublicKey keys.PublicKey
	Types             []TransferType
	Limit             int
	Offset            int
}

type TransferType uint8

const (
	TransferTypeTransfer TransferType = iota
	TransferTypeCounterSwap
)

type TransferSummary struct {
	ID                string
	SenderPublicKey   keys.PublicKey
	ReceiverPublicKey keys.PublicKey
	Status            string
	Leaves            []TransferLeafSummary
}

// TransferLeafSummary is one leaf's transportable claim material
// within a pending transfer: enough for the receiver to verify the
// sender's authorization and decrypt the rotated signing key, without
// needing any other RPC round trip.
type TransferLeafSummary struct {
	LeafID          string
	TreeID          string
	Value           uint64
	SenderSignature []byte
	SecretCipher    []byte
}

type QueryTransfersResponse struct {
	Transfers []TransferSummary
	Total     int
}

// InitiateUtxoSwapRequest starts a static-deposit refund/claim swap.
type InitiateUtxoSwapRequest struct {
	Txid       string
	Vout       uint32
	RefundTxHex string
	SigningJob SigningJob
}

type InitiateUtxoSwapResponse struct {
	TransferID   string
	Participants []ParticipantInfo
}

// Operator is one member of the statechain operator pool.
type Operator struct {
	// ID is the operator's position in the pool, 0..n-1.
	ID uint32

	// Identifier is the fixed FROST scalar this operator signs and
	// holds Shamir shares under; by protocol convention this is ID+1
	// so that identifier 0 is never used (it would make the
	// Lagrange-coefficient denominator degenerate).
	Identifier uint32

	IdentityPublicKey keys.PublicKey
	Client            Client
}

// Pool is the ordered, stable set of operators a wallet talks to.
type Pool struct {
	operators       []Operator
	coordinatorIdx  int
}

// NewPool builds a Pool from operators in stable order and designates
// operators[coordinatorIdx] as coordinator. The caller must pass
// operators already sorted by ID; every fan-out in this module
// (transfer, deposit) depends on that order matching the order used
// when splitting secrets, since share i corresponds to identifier i+1.
func NewPool(operators []Operator, coordinatorIdx int) (*Pool, error) {
	if len(operators) == 0 {
		return nil, fmt.Errorf("operator pool: at least one operator required")
	}
	if coordinatorIdx < 0 || coordinatorIdx >= len(operators) {
		return nil, fmt.Errorf("operator pool: coordinator index %d out of range", coordinatorIdx)
	}
	for i, op := range operators {
		if op.Identifier != uint32(i)+1 {
			return nil, fmt.Errorf(
				"operator pool: operator %d has identifier %d, expected %d",
				i, op.Identifier, i+1,
			)
		}
	}

	out := make([]Operator, len(operators))
	copy(out, operators)

	return &Pool{operators: out, coordinatorIdx: coordinatorIdx}, nil
}

// Len returns the number of operators in the pool.
func (p *Pool) Len() int {
	return len(p.operators)
}

// Coordinator returns the single operator that fronts
// protocol-initiation RPCs on behalf of the pool.
func (p *Pool) Coordinator() Operator {
	return p.operators[p.coordinatorIdx]
}

// AllOperators returns every operator in stable, ascending-ID order.
func (p *Pool) AllOperators() []Operator {
	out := make([]Operator, len(p.operators))
	copy(out, p.operators)
	return out
}

// NonCoordinatorOperators returns every operator except the
// coordinator, in stable order.
func (p *Pool) NonCoordinatorOperators() []Operator {
	out := make([]Operator, 0, len(p.operators)-1)
	for i, op := range p.operators {
		if i == p.coordinatorIdx {
			continue
		}
		out = append(out, op)
	}
	return out
}

// OperatorByIdentifier looks up an operator by its fixed FROST
// identifier (not its pool index).
func (p *Pool) OperatorByIdentifier(identifier uint32) (Operator, error) {
	for _, op := range p.operators {
		if op.Identifier == identifier {
			return op, nil
		}
	}
	return Operator{}, fmt.Errorf("%w: %d", ErrUnknownOperator, identifier)
}
