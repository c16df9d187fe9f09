package onchain

import "github.com/btcsuite/btcd/wire"

// Sequence policy for the two transaction kinds this package builds:
//
//   - A root tx's single input is final: it has nothing to time out,
//     so it signals RBF opt-out (BIP 125) and nothing more.
//   - A refund tx's input carries a BIP 68 block-based relative
//     locktime, so the node output only becomes unilaterally
//     exitable once it has aged that many blocks on chain. Each
//     transfer step installs a new refund tx with a shorter relative
//     locktime than the one it replaces, so the most recently
//     rotated owner's path always matures first.
const (
	// RootSequence is the sequence for a root tx's funding input.
	RootSequence = wire.MaxTxInSequenceNum - 1

	// InitialRefundSequence is the relative locktime, in blocks,
	// installed on a leaf's first refund tx at deposit time.
	InitialRefundSequence uint32 = 100

	// sequenceStep is how many blocks each transfer step shortens the
	// relative locktime by.
	sequenceStep uint32 = 10

	// minRefundSequence is the shortest relative locktime a refund tx
	// may carry; once a leaf reaches it, NextSequence refuses to go
	// further and the leaf must be refreshed on chain.
	minRefundSequence uint32 = 10
)

// NextSequence returns the relative-locktime sequence the next refund
// tx in a transfer chain should carry, one step shorter than current.
func NextSequence(current uint32) (uint32, error) {
	if current <= minRefundSequence {
		return 0, ErrSequenceExhausted
	}
	next := current - sequenceStep
	if next < minRefundSequence {
		next = minRefundSequence
	}
	return next, nil
}
