package transfer

import (
	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/tree"
)

// Status is a transfer's position in the fixed send/claim state
// machine. Transfers are never mutated after
// StatusCompleted.
type Status uint8

const (
	StatusDraft Status = iota
	StatusSenderInitiated
	StatusSenderKeyTweaked
	StatusReceiverKeyTweaking
	StatusReceiverKeyTweaked
	StatusCompleted
	StatusCancelled
)

// TransferLeaf is one leaf's entry within a Transfer: the leaf itself,
// the sender's authorization signature over
// leaf_id||transfer_id||secret_cipher, and the secret_cipher bundle
// (ECIES of the Encrypted-form new signing key, addressed to the
// receiver).
type TransferLeaf struct {
	LeafID          string
	Leaf            tree.Node
	SenderSignature []byte
	SecretCipher    []byte
}

// Transfer is the atomic reassignment of a set of leaves from sender
// to receiver by key rotation.
type Transfer struct {
	ID                string
	SenderPublicKey   keys.PublicKey
	ReceiverPublicKey keys.PublicKey
	Status            Status
	Leaves            []TransferLeaf
}

// SendLeafKeyTweak is what one operator receives for one leaf during
// the send path: its own Feldman-verifiable share
// of the tweak, the public points of every operator's share (so any
// operator can cross-check the others), the secret_cipher, the
// sender's per-leaf authorization signature, and the refund
// signature once step 3 has produced it.
type SendLeafKeyTweak struct {
	LeafID            string
	SecretShareTweak  signer.VerifiableShare
	PubkeySharesTweak map[uint32][33]byte
	SecretCipher      []byte
	Signature         []byte
	RefundSignature   []byte
}

// ClaimLeafKeyTweak is the receiver-side analogue of SendLeafKeyTweak,
// submitted during claim_transfer_tweak_keys.
type ClaimLeafKeyTweak struct {
	LeafID            string
	SecretShareTweak  signer.VerifiableShare
	PubkeySharesTweak map[uint32][33]byte
	Signature         []byte
}

// RefundTxBuilder constructs the next refund transaction for a leaf
// during a transfer, paying to newOwnerKey with sequence encoding the
// next-step relative locktime. Concrete
// construction (fee/witness/script details) belongs to the onchain
// package; the transfer state machine only needs the resulting
// unsigned transaction and its sighash.
type RefundTxBuilder interface {
	BuildRefundTx(leaf tree.Node, newOwnerKey keys.PublicKey, sequence uint32) (RefundTxTemplate, error)
}

// RefundTxTemplate is an unsigned refund transaction plus the sighash
// the FROST round must sign.
type RefundTxTemplate struct {
	TxHex   string
	SigHash [32]byte
}
