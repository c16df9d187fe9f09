package signer

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sparkwallet/spark/keys"
)

// VerifiableShare is one Shamir share of a secret scalar, accompanied
// by the Feldman commitments to the sharing polynomial's coefficients.
// Every share produced by the same SplitSecretWithProofs call carries
// byte-identical Commitments; any holder can check its own share
// against them without trusting the dealer.
type VerifiableShare struct {
	// Identifier is the x-coordinate the share was evaluated at; for
	// operator pool shares this is the operator's FROST identifier
	// (i+1).
	Identifier uint32

	// Value is f(Identifier) mod n, the share itself.
	Value [32]byte

	// Commitments[k] = G * coefficient_k, for k in 0..threshold.
	// Commitments[0] is the commitment to the secret itself.
	Commitments [][33]byte
}

// PublicPoint returns the share's public point, f(Identifier)*G,
// recomputed independently from the commitments (not from Value) so
// callers can cross-check Value against it.
func (v VerifiableShare) PublicPoint() (*btcec.PublicKey, error) {
	x := new(secp256k1.ModNScalar).SetInt(uint32(v.Identifier))

	var acc secp256k1.JacobianPoint
	acc.X.SetInt(0)
	acc.Y.SetInt(0)
	acc.Z.SetInt(0)

	xPow := new(secp256k1.ModNScalar).SetInt(1)

	for k, commitment := range v.Commitments {
		pub, err := btcec.ParsePubKey(commitment[:])
		if err != nil {
			return nil, fmt.Errorf("parse commitment %d: %w", k, err)
		}

		var term secp256k1.JacobianPoint
		pub.AsJacobian(&term)
		secp256k1.ScalarMultNonConst(xPow, &term, &term)
		secp256k1.AddNonConst(&acc, &term, &acc)

		xPow.Mul(x)
	}

	acc.ToAffine()
	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}

// Verify checks that Value is consistent with Commitments.
func (v VerifiableShare) Verify() error {
	expected, err := v.PublicPoint()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrShareVerificationFailed, err)
	}

	var y secp256k1.ModNScalar
	value := v.Value
	if overflow := y.SetBytes(&value); overflow != 0 {
		return fmt.Errorf("%w: share value overflows curve order", ErrShareVerificationFailed)
	}
	priv := secp256k1.NewPrivateKey(&y)
	actual := priv.PubKey()

	if !actual.IsEqual(expected) {
		return ErrShareVerificationFailed
	}
	return nil
}

// SplitSecretWithProofs performs a Shamir split of secret into n
// verifiable shares recoverable from any threshold of them. secret
// must be an Encrypted PrivateKeySource (or the output of
// SubtractPrivateKeys, which is always Encrypted); Derived sources are
// rejected since they must never leave the Signer in any transportable
// form.
func (s *Signer) SplitSecretWithProofs(secret keys.PrivateKeySource, threshold, n uint32) ([]VerifiableShare, error) {
	if secret.Kind == keys.SourceDerived {
		return nil, ErrDerivedKeyNotTransportable
	}
	if threshold == 0 || threshold > n {
		return nil, fmt.Errorf("%w: threshold=%d n=%d", ErrInvalidThreshold, threshold, n)
	}

	priv, err := s.resolvePrivateKey(secret)
	if err != nil {
		return nil, fmt.Errorf("split secret: %w", err)
	}

	coeffs := make([]secp256k1.ModNScalar, threshold)
	coeffs[0] = modNScalar(priv)
	for i := uint32(1); i < threshold; i++ {
		r, err := randScalar()
		if err != nil {
			return nil, fmt.Errorf("split secret: %w", err)
		}
		coeffs[i] = r
	}

	commitments := make([][33]byte, threshold)
	for i, c := range coeffs {
		coeff := c
		pub := secp256k1.NewPrivateKey(&coeff).PubKey()
		copy(commitments[i][:], pub.SerializeCompressed())
	}

	shares := make([]VerifiableShare, n)
	for j := uint32(1); j <= n; j++ {
		x := new(secp256k1.ModNScalar).SetInt(j)

		y := new(secp256k1.ModNScalar).SetInt(0)
		xPow := new(secp256k1.ModNScalar).SetInt(1)
		for _, c := range coeffs {
			coeff := c
			term := new(secp256k1.ModNScalar).Set(xPow)
			term.Mul(&coeff)
			y.Add(term)
			xPow.Mul(x)
		}

		shares[j-1] = VerifiableShare{
			Identifier:  j,
			Value:       y.Bytes(),
			Commitments: commitments,
		}
	}

	return shares, nil
}

// randScalar draws a uniformly random nonzero scalar mod the curve
// order.
func randScalar() (secp256k1.ModNScalar, error) {
	for {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return secp256k1.ModNScalar{}, fmt.Errorf("read random scalar: %w", err)
		}
		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return s, nil
		}
	}
}
