package onchain

import (
	"encoding/hex"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/transfer"
	"github.com/sparkwallet/spark/tree"
)

// RefundTxBuilder implements transfer.RefundTxBuilder by spending a
// leaf's current node output into a fresh refund tx under the new
// owner's key.
type RefundTxBuilder struct{}

// NewRefundTxBuilder returns a ready-to-use RefundTxBuilder.
func NewRefundTxBuilder() *RefundTxBuilder {
	return &RefundTxBuilder{}
}

// BuildRefundTx implements transfer.RefundTxBuilder.
func (b *RefundTxBuilder) BuildRefundTx(leaf tree.Node, newOwnerKey keys.PublicKey, sequence uint32) (transfer.RefundTxTemplate, error) {
	outpoint, err := NodeOutpoint(leaf.NodeTx, leaf.Vout)
	if err != nil {
		return transfer.RefundTxTemplate{}, err
	}

	tx, err := BuildRefundTx(outpoint, leaf.NodeTx.TxOut[leaf.Vout].Value, newOwnerKey, sequence)
	if err != nil {
		return transfer.RefundTxTemplate{}, err
	}

	sigHash, err := SigHash(tx)
	if err != nil {
		return transfer.RefundTxTemplate{}, err
	}

	txBytes, err := SerializeTx(tx)
	if err != nil {
		return transfer.RefundTxTemplate{}, err
	}

	return transfer.RefundTxTemplate{
		TxHex:   hex.EncodeToString(txBytes),
		SigHash: sigHash,
	}, nil
}

var _ transfer.RefundTxBuilder = (*RefundTxBuilder)(nil)
