package onchain

import "errors"

var (
	// ErrSequenceExhausted is returned by NextSequence once a refund
	// path's relative locktime can no longer be shortened; the leaf
	// must be refreshed (re-deposited or split) before it transfers
	// again.
	ErrSequenceExhausted = errors.New("onchain: refund sequence exhausted")

	// ErrNoOutputs is returned when a transaction is requested for a
	// node that carries no on-chain transaction yet.
	ErrNoOutputs = errors.New("onchain: node has no outputs")

	// ErrVoutOutOfRange is returned when a node's recorded output
	// index does not exist on its transaction.
	ErrVoutOutOfRange = errors.New("onchain: vout out of range")
)
