package signer

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// scalarSub computes (a - b) mod n as a 32-byte big-endian scalar.
func scalarSub(a, b *btcec.PrivateKey) []byte {
	sa := modNScalar(a)
	sb := modNScalar(b)

	var negB secp256k1.ModNScalar
	negB.NegateVal(&sb)

	var diff secp256k1.ModNScalar
	diff.Add2(&sa, &negB)

	out := diff.Bytes()
	return out[:]
}

func modNScalar(priv *btcec.PrivateKey) secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	b := priv.Serialize()
	s.SetByteSlice(b)
	return s
}
