package onchain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// FundingPSBTTemplate builds an unsigned PSBT paying amountSats to
// destScript (a cooperative deposit address's scriptPubKey), for an
// external wallet — hardware, software, or an exchange withdrawal
// flow — to add its own inputs and change output to and sign. This
// package never holds the user's on-chain UTXO set itself; it only
// hands callers a correctly shaped funding target and lets whatever
// wallet holds the spendable coins fund and sign it.
func FundingPSBTTemplate(destScript []byte, amountSats int64) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(amountSats, destScript))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("onchain: build funding psbt: %w", err)
	}
	return pkt, nil
}

// AddWitnessUTXO records prevOut as the witness UTXO for input idx of
// pkt, the information a signer needs to compute a taproot sighash
// without fetching the previous transaction itself.
func AddWitnessUTXO(pkt *psbt.Packet, idx int, prevOut *wire.TxOut) error {
	if idx < 0 || idx >= len(pkt.Inputs) {
		return fmt.Errorf("onchain: input index %d out of range", idx)
	}
	pkt.Inputs[idx].WitnessUtxo = prevOut
	return nil
}
