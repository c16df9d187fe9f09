// Package onchain builds and hashes the Bitcoin transactions the rest
// of the module needs signed by the operator pool's FROST round: the
// root/refund pair that anchors a new leaf, the rotated refund tx each
// transfer step installs, and a static deposit's on-chain refund. It
// also exposes a PSBT template for external wallets to fund a deposit
// address from.
package onchain

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sparkwallet/spark/keys"
)

// SerializeTx returns tx's wire serialization.
func SerializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("onchain: serialize tx: %w", err)
	}
	return buf.Bytes(), nil
}

// SigHash is the message the operator pool's FROST round signs for
// any transaction this package builds: the double-SHA256 of the full
// serialized transaction. Spark leaves are spent by a single FROST
// signature binding the whole transaction rather than a BIP 341
// sighash over a specific input, since every node and refund
// transaction this protocol builds has exactly one input.
func SigHash(tx *wire.MsgTx) ([32]byte, error) {
	buf, err := SerializeTx(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return chainhash.DoubleHashH(buf), nil
}

// BuildRootTx builds the unsigned root transaction that spends a
// confirmed deposit output, paying its full value to a taproot output
// under the leaf's aggregate verifying key.
func BuildRootTx(fundingOutpoint wire.OutPoint, fundingValue int64, verifyingKey keys.PublicKey) (*wire.MsgTx, error) {
	outScript, err := TaprootOutputScript(verifyingKey)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&fundingOutpoint, nil, nil)
	txIn.Sequence = RootSequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(fundingValue, outScript))
	return tx, nil
}

// BuildRefundTx builds the unsigned refund transaction that spends a
// node output, carrying a BIP 68 relative-locktime sequence, paying
// its full value (no fee: refund txs are never meant to be broadcast
// cooperatively) to a taproot output under destKey alone.
func BuildRefundTx(nodeOutpoint wire.OutPoint, nodeValue int64, destKey keys.PublicKey, sequence uint32) (*wire.MsgTx, error) {
	outScript, err := TaprootOutputScript(destKey)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&nodeOutpoint, nil, nil)
	txIn.Sequence = sequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(nodeValue, outScript))
	return tx, nil
}

// BuildStaticDepositRefundTx builds the unsigned transaction that
// sends a static deposit UTXO's value, minus feeSats, to destScript.
// Unlike a node's refund tx this one pays onward to an arbitrary
// destination the caller chooses, not back to a derived taproot key,
// so the caller supplies the finished scriptPubKey directly.
func BuildStaticDepositRefundTx(utxo wire.OutPoint, utxoValueSats int64, destScript []byte, feeSats int64) (*wire.MsgTx, error) {
	credit := utxoValueSats - feeSats
	if credit <= 0 {
		return nil, fmt.Errorf("onchain: fee %d exceeds utxo value %d", feeSats, utxoValueSats)
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&utxo, nil, nil)
	txIn.Sequence = RootSequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(credit, destScript))
	return tx, nil
}

// NodeOutpoint returns the outpoint a leaf's current on-chain
// transaction and vout describe, validating that vout actually names
// one of its outputs.
func NodeOutpoint(tx *wire.MsgTx, vout uint32) (wire.OutPoint, error) {
	if tx == nil || len(tx.TxOut) == 0 {
		return wire.OutPoint{}, ErrNoOutputs
	}
	if int(vout) >= len(tx.TxOut) {
		return wire.OutPoint{}, ErrVoutOutOfRange
	}
	return wire.OutPoint{Hash: tx.TxHash(), Index: vout}, nil
}
