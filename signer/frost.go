package signer

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sparkwallet/spark/keys"
)

// NonceHandle names one FROST nonce pair generated by this Signer. It
// is single-use: SignFrost rejects a handle it has already consumed.
type NonceHandle [16]byte

// FrostCommitment is the hiding/binding nonce commitment pair a
// participant contributes to a FROST signing round, plus the
// encrypted form of the raw nonces (the only form they take outside
// the Signer).
type FrostCommitment struct {
	Hiding           keys.PublicKey
	Binding          keys.PublicKey
	NoncesCiphertext []byte
}

type nonceSecret struct {
	hiding  secp256k1.ModNScalar
	binding secp256k1.ModNScalar
	used    bool
}

// GenerateFrostSigningCommitments produces a fresh nonce pair for one
// FROST signing round. The returned NoncesCiphertext is self-sealed
// (ECIES to this wallet's own identity key) purely so the raw scalars
// never sit in a caller-visible struct in plaintext; SignFrost still
// requires the matching in-memory handle, so a replayed ciphertext
// without its handle cannot be used to re-sign.
func (s *Signer) GenerateFrostSigningCommitments() (FrostCommitment, NonceHandle, error) {
	hiding, err := randScalar()
	if err != nil {
		return FrostCommitment{}, NonceHandle{}, fmt.Errorf("generate nonce: %w", err)
	}
	binding, err := randScalar()
	if err != nil {
		return FrostCommitment{}, NonceHandle{}, fmt.Errorf("generate nonce: %w", err)
	}

	var handle NonceHandle
	if _, err := rand.Read(handle[:]); err != nil {
		return FrostCommitment{}, NonceHandle{}, fmt.Errorf("generate nonce handle: %w", err)
	}

	var raw [64]byte
	hb, bb := hiding.Bytes(), binding.Bytes()
	copy(raw[:32], hb[:])
	copy(raw[32:], bb[:])

	ciphertext, err := s.EciesEncrypt(raw[:], s.identityPub)
	if err != nil {
		return FrostCommitment{}, NonceHandle{}, fmt.Errorf("seal nonce: %w", err)
	}

	s.mu.Lock()
	s.nonces[handle] = &nonceSecret{hiding: hiding, binding: binding}
	s.mu.Unlock()

	hidingPub := keys.NewFromBTCEC(secp256k1.NewPrivateKey(&hiding).PubKey())
	bindingPub := keys.NewFromBTCEC(secp256k1.NewPrivateKey(&binding).PubKey())

	return FrostCommitment{
		Hiding:           hidingPub,
		Binding:          bindingPub,
		NoncesCiphertext: ciphertext,
	}, handle, nil
}

// ParticipantCommitment pairs a FROST identifier with its commitment,
// used both for the binding-factor transcript and for Lagrange
// interpolation of the signer set.
type ParticipantCommitment struct {
	Identifier uint32
	Commitment FrostCommitment
}

// FrostSignRequest carries everything SignFrost needs to produce this
// wallet's partial signature share.
type FrostSignRequest struct {
	Message        [32]byte
	VerifyingKey   keys.PublicKey
	Secret         keys.PrivateKeySource
	SelfIdentifier uint32
	NonceHandle    NonceHandle
	// AllParticipants must include the caller's own identifier and
	// commitment, in addition to every operator's; it is used, in
	// stable sorted order, both to derive binding factors and to
	// compute the caller's Lagrange coefficient.
	AllParticipants []ParticipantCommitment
	// AdaptorPoint, if set, offsets the group commitment so the
	// resulting aggregate signature is only valid once the adaptor
	// point's discrete log is revealed.
	AdaptorPoint *keys.PublicKey
}

// SignFrost produces this wallet's partial Schnorr signature share for
// one FROST signing round. The nonce handle is consumed; a second call
// with the same handle fails with ErrNonceHandleReused.
func (s *Signer) SignFrost(req FrostSignRequest) ([32]byte, error) {
	var zero [32]byte

	s.mu.Lock()
	secret, ok := s.nonces[req.NonceHandle]
	if !ok {
		s.mu.Unlock()
		return zero, ErrNonceHandleUnknown
	}
	if secret.used {
		s.mu.Unlock()
		return zero, ErrNonceHandleReused
	}
	secret.used = true
	s.mu.Unlock()

	priv, err := s.resolvePrivateKey(req.Secret)
	if err != nil {
		return zero, fmt.Errorf("sign frost: %w", err)
	}
	secretScalar := modNScalar(priv)

	groupR, bindingFactors, err := computeGroupCommitment(req.Message, req.AllParticipants, req.AdaptorPoint)
	if err != nil {
		return zero, fmt.Errorf("sign frost: %w", err)
	}

	challenge, err := computeChallenge(groupR, req.VerifyingKey, req.Message)
	if err != nil {
		return zero, fmt.Errorf("sign frost: %w", err)
	}

	lambda, err := lagrangeCoefficient(req.SelfIdentifier, req.AllParticipants)
	if err != nil {
		return zero, fmt.Errorf("sign frost: %w", err)
	}

	rho, ok := bindingFactors[req.SelfIdentifier]
	if !ok {
		return zero, fmt.Errorf("sign frost: self identifier %d missing from participant set", req.SelfIdentifier)
	}

	vk, err := req.VerifyingKey.ToBTCEC()
	if err != nil {
		return zero, fmt.Errorf("sign frost: %w", err)
	}

	// BIP-340 signs against the even-Y lift of both the nonce point and
	// the verifying key, so a participant whose actual R or P has odd Y
	// must negate the corresponding scalar contribution before it enters
	// z; every participant reaches the same decision independently since
	// groupR and vk are recomputed from the shared transcript.
	hiding, binding := secret.hiding, secret.binding
	if groupR.Y.IsOdd() {
		hiding.Negate()
		binding.Negate()
	}
	if isOddY(vk) {
		secretScalar.Negate()
	}

	// z = hiding_nonce + rho*binding_nonce + lambda*c*secret (mod n)
	var term1 secp256k1.ModNScalar
	term1.Mul2(&rho, &binding)

	var term2 secp256k1.ModNScalar
	term2.Mul2(&lambda, &challenge)
	term2.Mul(&secretScalar)

	z := new(secp256k1.ModNScalar).Set(&hiding)
	z.Add(&term1)
	z.Add(&term2)

	return z.Bytes(), nil
}

// isOddY reports whether pub's affine Y-coordinate is odd, the
// condition under which BIP-340 requires negating the scalar that
// produced it before it contributes to a signature.
func isOddY(pub *btcec.PublicKey) bool {
	var j secp256k1.JacobianPoint
	pub.AsJacobian(&j)
	return j.Y.IsOdd()
}

// FrostAggregateRequest carries every participant's partial signature
// share plus the transcript needed to recompute the group commitment
// and challenge independently, so aggregation never has to trust the
// caller's bookkeeping of R.
type FrostAggregateRequest struct {
	Message         [32]byte
	VerifyingKey    keys.PublicKey
	AllParticipants []ParticipantCommitment
	Shares          map[uint32][32]byte
	AdaptorPoint    *keys.PublicKey
}

// AggregateFrost combines every participant's partial signature share
// into a single BIP-340 Schnorr signature. If AdaptorPoint was set
// during signing, the result is an adaptor signature: it verifies only
// after the adaptor point's discrete log is added back in (see
// transfer.ApplyAdaptorToSignature).
func (s *Signer) AggregateFrost(req FrostAggregateRequest) ([]byte, error) {
	groupR, _, err := computeGroupCommitment(req.Message, req.AllParticipants, req.AdaptorPoint)
	if err != nil {
		return nil, fmt.Errorf("aggregate frost: %w", err)
	}

	z := new(secp256k1.ModNScalar).SetInt(0)
	for _, p := range req.AllParticipants {
		share, ok := req.Shares[p.Identifier]
		if !ok {
			return nil, fmt.Errorf("%w: missing share for identifier %d", ErrInvalidSignatureShare, p.Identifier)
		}
		var si secp256k1.ModNScalar
		share := share
		if overflow := si.SetBytes(&share); overflow != 0 {
			return nil, fmt.Errorf("%w: share overflow for identifier %d", ErrInvalidSignatureShare, p.Identifier)
		}
		z.Add(&si)
	}

	rBytes := schnorr.SerializePubKey(btcec.NewPublicKey(&groupR.X, &groupR.Y))
	zBytes := z.Bytes()

	sig := make([]byte, 64)
	copy(sig[:32], rBytes)
	copy(sig[32:], zBytes[:])

	// When no adaptor point is involved the result must be a valid
	// BIP-340 signature against the verifying key; an adaptor
	// signature only becomes valid once the offset is applied, so
	// skip verification in that case.
	if req.AdaptorPoint == nil {
		vk, err := req.VerifyingKey.ToBTCEC()
		if err != nil {
			return nil, fmt.Errorf("aggregate frost: %w", err)
		}
		parsed, err := schnorr.ParseSignature(sig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignatureShare, err)
		}
		if !parsed.Verify(req.Message[:], vk) {
			return nil, ErrInvalidSignatureShare
		}
	}

	return sig, nil
}

// computeGroupCommitment derives each participant's binding factor
// from the full transcript (FROST RFC's "rho" values) and sums
// Hiding_i + rho_i*Binding_i into the group nonce commitment R,
// optionally offset by an adaptor point.
func computeGroupCommitment(
	message [32]byte,
	participants []ParticipantCommitment,
	adaptorPoint *keys.PublicKey,
) (*btcec.JacobianPoint, map[uint32]secp256k1.ModNScalar, error) {
	sorted := append([]ParticipantCommitment(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identifier < sorted[j].Identifier })

	transcript := bytes.NewBuffer(nil)
	transcript.Write(message[:])
	for _, p := range sorted {
		transcript.Write(p.Commitment.Hiding.Bytes())
		transcript.Write(p.Commitment.Binding.Bytes())
	}
	baseTranscript := transcript.Bytes()

	factors := make(map[uint32]secp256k1.ModNScalar, len(sorted))

	var acc secp256k1.JacobianPoint
	acc.X.SetInt(0)
	acc.Y.SetInt(0)
	acc.Z.SetInt(0)

	for _, p := range sorted {
		h := sha256.New()
		h.Write([]byte("spark-frost-binding-factor"))
		var idBytes [4]byte
		idBytes[0] = byte(p.Identifier >> 24)
		idBytes[1] = byte(p.Identifier >> 16)
		idBytes[2] = byte(p.Identifier >> 8)
		idBytes[3] = byte(p.Identifier)
		h.Write(idBytes[:])
		h.Write(baseTranscript)
		digest := h.Sum(nil)

		var rho secp256k1.ModNScalar
		rho.SetByteSlice(digest)
		factors[p.Identifier] = rho

		hidingPub, err := p.Commitment.Hiding.ToBTCEC()
		if err != nil {
			return nil, nil, fmt.Errorf("parse hiding commitment: %w", err)
		}
		bindingPub, err := p.Commitment.Binding.ToBTCEC()
		if err != nil {
			return nil, nil, fmt.Errorf("parse binding commitment: %w", err)
		}

		var hidingJ, bindingJ secp256k1.JacobianPoint
		hidingPub.AsJacobian(&hidingJ)
		bindingPub.AsJacobian(&bindingJ)
		secp256k1.ScalarMultNonConst(&rho, &bindingJ, &bindingJ)

		secp256k1.AddNonConst(&acc, &hidingJ, &acc)
		secp256k1.AddNonConst(&acc, &bindingJ, &acc)
	}

	if adaptorPoint != nil {
		adaptorPub, err := adaptorPoint.ToBTCEC()
		if err != nil {
			return nil, nil, fmt.Errorf("parse adaptor point: %w", err)
		}
		var adaptorJ secp256k1.JacobianPoint
		adaptorPub.AsJacobian(&adaptorJ)
		secp256k1.AddNonConst(&acc, &adaptorJ, &acc)
	}

	acc.ToAffine()
	return &acc, factors, nil
}

// computeChallenge is the BIP-340 challenge e = H(R.x || P.x || m)
// under the "BIP0340/challenge" tag.
func computeChallenge(groupR *btcec.JacobianPoint, verifyingKey keys.PublicKey, message [32]byte) (secp256k1.ModNScalar, error) {
	var e secp256k1.ModNScalar

	vk, err := verifyingKey.ToBTCEC()
	if err != nil {
		return e, fmt.Errorf("parse verifying key: %w", err)
	}

	rBytes := schnorr.SerializePubKey(btcec.NewPublicKey(&groupR.X, &groupR.Y))
	pBytes := schnorr.SerializePubKey(vk)

	digest := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rBytes, pBytes, message[:])
	e.SetByteSlice(digest[:])

	return e, nil
}

// lagrangeCoefficient computes the Lagrange basis coefficient for
// identifier within the signer set named by participants, evaluated at
// x=0 (i.e. the coefficient that reconstructs f(0) from the
// participants' shares f(identifier)).
func lagrangeCoefficient(identifier uint32, participants []ParticipantCommitment) (secp256k1.ModNScalar, error) {
	var result secp256k1.ModNScalar
	result.SetInt(1)

	xi := new(secp256k1.ModNScalar).SetInt(identifier)

	found := false
	for _, p := range participants {
		if p.Identifier == identifier {
			found = true
			continue
		}
		xj := new(secp256k1.ModNScalar).SetInt(p.Identifier)

		var numerator secp256k1.ModNScalar
		numerator.Set(xj)

		var denominator secp256k1.ModNScalar
		denominator.Set(xj)
		var negXi secp256k1.ModNScalar
		negXi.NegateVal(xi)
		denominator.Add(&negXi)
		if denominator.IsZero() {
			return result, fmt.Errorf("duplicate participant identifier %d", p.Identifier)
		}
		denominator.InverseNonConst()

		numerator.Mul(&denominator)
		result.Mul(&numerator)
	}

	if !found {
		return result, fmt.Errorf("identifier %d not present in participant set", identifier)
	}

	return result, nil
}
