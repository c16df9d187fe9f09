// Adaptor signature helpers for the counter-swap path (SPEC_FULL §3):
// a FROST aggregate signature produced with an adaptor point baked in
// (signer.FrostAggregateRequest.AdaptorPoint) is intentionally invalid
// until the adaptor secret is added back in. These helpers move
// between the two forms and let a counterparty validate an adaptor
// signature without learning the secret.
package transfer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sparkwallet/spark/keys"
)

// GenerateAdaptorFromSignature offsets a valid 64-byte BIP-340
// signature by adaptorSecret, producing the adaptor (pre-signature)
// form: (R, s - t). The R component is unchanged; only the scalar is
// shifted.
func GenerateAdaptorFromSignature(validSig []byte, adaptorSecret [32]byte) ([]byte, error) {
	return offsetSignature(validSig, adaptorSecret, false)
}

// ApplyAdaptorToSignature reverses GenerateAdaptorFromSignature:
// given an adaptor signature and the revealed secret, produces the
// valid signature (R, s + t).
func ApplyAdaptorToSignature(adaptorSig []byte, adaptorSecret [32]byte) ([]byte, error) {
	return offsetSignature(adaptorSig, adaptorSecret, true)
}

func offsetSignature(sig []byte, secret [32]byte, add bool) ([]byte, error) {
	if len(sig) != 64 {
		return nil, fmt.Errorf("%w: signature must be 64 bytes, got %d", ErrInvalidAdaptorSignature, len(sig))
	}

	var s secp256k1.ModNScalar
	sBytes := [32]byte{}
	copy(sBytes[:], sig[32:])
	if overflow := s.SetBytes(&sBytes); overflow != 0 {
		return nil, fmt.Errorf("%w: scalar overflow", ErrInvalidAdaptorSignature)
	}

	var t secp256k1.ModNScalar
	if overflow := t.SetBytes(&secret); overflow != 0 {
		return nil, fmt.Errorf("%w: adaptor secret overflow", ErrInvalidAdaptorSignature)
	}
	if !add {
		t.Negate()
	}

	s.Add(&t)
	out := make([]byte, 64)
	copy(out[:32], sig[:32])
	sOut := s.Bytes()
	copy(out[32:], sOut[:])
	return out, nil
}

// ValidateOutboundAdaptorSignature checks that adaptorSig is a valid
// pre-signature for message under verifyingKey, offset by
// adaptorPoint: s*G + adaptorPoint == R + e*verifyingKey, without
// requiring the adaptor secret.
func ValidateOutboundAdaptorSignature(verifyingKey keys.PublicKey, message [32]byte, adaptorSig []byte, adaptorPoint keys.PublicKey) error {
	if len(adaptorSig) != 64 {
		return fmt.Errorf("%w: signature must be 64 bytes", ErrInvalidAdaptorSignature)
	}

	rPub, err := schnorr.ParsePubKey(adaptorSig[:32])
	if err != nil {
		return fmt.Errorf("%w: bad R: %v", ErrInvalidAdaptorSignature, err)
	}
	var sBytes [32]byte
	copy(sBytes[:], adaptorSig[32:])
	var s secp256k1.ModNScalar
	if overflow := s.SetBytes(&sBytes); overflow != 0 {
		return fmt.Errorf("%w: scalar overflow", ErrInvalidAdaptorSignature)
	}

	vk, err := verifyingKey.ToBTCEC()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdaptorSignature, err)
	}
	// BIP-340 verifies against the even-Y point with vk's x coordinate.
	vk, err = schnorr.ParsePubKey(schnorr.SerializePubKey(vk))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdaptorSignature, err)
	}
	adaptor, err := adaptorPoint.ToBTCEC()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdaptorSignature, err)
	}

	challengeBytes := chainhash.TaggedHash(
		chainhash.TagBIP0340Challenge,
		schnorr.SerializePubKey(rPub),
		schnorr.SerializePubKey(vk),
		message[:],
	)
	var e secp256k1.ModNScalar
	e.SetByteSlice(challengeBytes[:])

	// lhs = s*G + adaptorPoint
	var sG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &sG)
	var adaptorJ secp256k1.JacobianPoint
	adaptor.AsJacobian(&adaptorJ)
	var lhs secp256k1.JacobianPoint
	secp256k1.AddNonConst(&sG, &adaptorJ, &lhs)
	lhs.ToAffine()

	// rhs = R + e*verifyingKey
	var rJ secp256k1.JacobianPoint
	rPub.AsJacobian(&rJ)
	var vkJ, eVk secp256k1.JacobianPoint
	vk.AsJacobian(&vkJ)
	secp256k1.ScalarMultNonConst(&e, &vkJ, &eVk)
	var rhs secp256k1.JacobianPoint
	secp256k1.AddNonConst(&rJ, &eVk, &rhs)
	rhs.ToAffine()

	if lhs.X != rhs.X || lhs.Y != rhs.Y {
		return ErrInvalidAdaptorSignature
	}
	return nil
}

// SigHashFromTx computes the double-SHA256 of a transaction's
// serialized form, used as the message FROST signs for refund and
// swap transactions.
func SigHashFromTx(tx *wire.MsgTx) ([32]byte, error) {
	var buf []byte
	w := &sliceWriter{buf: buf}
	if err := tx.Serialize(w); err != nil {
		return [32]byte{}, fmt.Errorf("sighash from tx: %w", err)
	}
	return chainhash.DoubleHashH(w.buf), nil
}

type sliceWriter struct{ buf []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
