package onchain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/sparkwallet/spark/keys"
)

// TaprootOutputScript builds the scriptPubKey that pays directly to
// verifyingKey as a taproot key-path-spend output. Spark's aggregate
// FROST keys serve as the output key itself rather than as
// an internal key under the usual BIP 341 output-key tweak, since
// there is no script path to commit to and the group already
// negotiates output-key parity during key generation.
func TaprootOutputScript(verifyingKey keys.PublicKey) ([]byte, error) {
	pub, err := verifyingKey.ToBTCEC()
	if err != nil {
		return nil, fmt.Errorf("onchain: parse verifying key: %w", err)
	}

	script, err := txscript.PayToTaprootScript(pub)
	if err != nil {
		return nil, fmt.Errorf("onchain: build taproot script: %w", err)
	}
	return script, nil
}

// DecodeAddressScript parses a cooperative deposit address string
// against params and returns its scriptPubKey, so the caller can
// confirm an on-chain funding output actually pays the address the
// operator pool returned.
func DecodeAddressScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("onchain: decode address: %w", err)
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, fmt.Errorf("onchain: build script for address: %w", err)
	}
	return script, nil
}
