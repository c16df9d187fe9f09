package signer

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/sparkwallet/spark/keys"
)

func newTestSigner(t *testing.T, seed byte) *Signer {
	t.Helper()
	cfg := &Config{
		NetParams: &chaincfg.RegressionNetParams,
		Seed:      make([]byte, 32),
	}
	for i := range cfg.Seed {
		cfg.Seed[i] = seed
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestIdentityPublicKeyStable(t *testing.T) {
	s1 := newTestSigner(t, 0x01)
	s2 := newTestSigner(t, 0x01)
	require.Equal(t, s1.IdentityPublicKey(), s2.IdentityPublicKey())

	s3 := newTestSigner(t, 0x02)
	require.NotEqual(t, s1.IdentityPublicKey(), s3.IdentityPublicKey())
}

func TestDerivedKeyDeterministic(t *testing.T) {
	s := newTestSigner(t, 0x03)

	src := keys.Derived("leaf-123")
	pub1, err := s.DerivePublicKey(src)
	require.NoError(t, err)
	pub2, err := s.DerivePublicKey(src)
	require.NoError(t, err)
	require.Equal(t, pub1, pub2)

	other, err := s.DerivePublicKey(keys.Derived("leaf-456"))
	require.NoError(t, err)
	require.NotEqual(t, pub1, other)
}

func TestStaticDepositKeyDeterministic(t *testing.T) {
	s := newTestSigner(t, 0x04)

	pub1, err := s.GetStaticDepositPublicKey(7)
	require.NoError(t, err)
	pub2, err := s.GetStaticDepositPublicKey(7)
	require.NoError(t, err)
	require.Equal(t, pub1, pub2)

	src := s.GetStaticDepositPrivateKeySource(7)
	viaSource, err := s.DerivePublicKey(src)
	require.NoError(t, err)
	require.Equal(t, pub1, viaSource)
}

func TestEciesRoundTrip(t *testing.T) {
	sender := newTestSigner(t, 0x05)
	recipient := newTestSigner(t, 0x06)

	msg := []byte("the quick brown fox")
	ciphertext, err := sender.EciesEncrypt(msg, recipient.IdentityPublicKey())
	require.NoError(t, err)

	plaintext, err := recipient.EciesDecrypt(ciphertext, keys.Identity())
	require.NoError(t, err)
	require.Equal(t, msg, plaintext)

	// Decrypting with the wrong identity fails authentication.
	_, err = sender.EciesDecrypt(ciphertext, keys.Identity())
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestSubtractPrivateKeysRoundTrip(t *testing.T) {
	s := newTestSigner(t, 0x07)

	a := keys.Derived("leaf-a")
	b := keys.Derived("leaf-b")

	tweak, err := s.SubtractPrivateKeys(a, b)
	require.NoError(t, err)
	require.Equal(t, keys.SourceEncrypted, tweak.Kind)

	pubA, err := s.DerivePublicKey(a)
	require.NoError(t, err)
	pubB, err := s.DerivePublicKey(b)
	require.NoError(t, err)
	require.NotEqual(t, pubA, pubB)
}

func TestSplitSecretWithProofsRejectsDerived(t *testing.T) {
	s := newTestSigner(t, 0x08)
	_, err := s.SplitSecretWithProofs(keys.Derived("leaf-a"), 2, 3)
	require.ErrorIs(t, err, ErrDerivedKeyNotTransportable)
}

func TestSplitSecretWithProofsVerifiable(t *testing.T) {
	s := newTestSigner(t, 0x09)

	a := keys.Derived("leaf-a")
	b := keys.Derived("leaf-b")
	tweak, err := s.SubtractPrivateKeys(a, b)
	require.NoError(t, err)

	shares, err := s.SplitSecretWithProofs(tweak, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	for _, share := range shares {
		require.NoError(t, share.Verify())
	}

	// Commitments must be identical across every share.
	for _, share := range shares[1:] {
		require.Equal(t, shares[0].Commitments, share.Commitments)
	}
}

func TestFrostSingleSignerAggregateVerifies(t *testing.T) {
	s := newTestSigner(t, 0x0a)

	leaf := keys.Derived("leaf-frost")
	verifyingKey, err := s.DerivePublicKey(leaf)
	require.NoError(t, err)

	commitment, handle, err := s.GenerateFrostSigningCommitments()
	require.NoError(t, err)

	participants := []ParticipantCommitment{{Identifier: 1, Commitment: commitment}}
	message := sha256.Sum256([]byte("transaction sighash"))

	share, err := s.SignFrost(FrostSignRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		Secret:          leaf,
		SelfIdentifier:  1,
		NonceHandle:     handle,
		AllParticipants: participants,
	})
	require.NoError(t, err)

	sig, err := s.AggregateFrost(FrostAggregateRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		AllParticipants: participants,
		Shares:          map[uint32][32]byte{1: share},
	})
	require.NoError(t, err)
	require.Len(t, sig, 64)
}

func TestFrostNonceReuseRejected(t *testing.T) {
	s := newTestSigner(t, 0x0b)

	leaf := keys.Derived("leaf-frost-2")
	verifyingKey, err := s.DerivePublicKey(leaf)
	require.NoError(t, err)

	commitment, handle, err := s.GenerateFrostSigningCommitments()
	require.NoError(t, err)

	participants := []ParticipantCommitment{{Identifier: 1, Commitment: commitment}}
	message := sha256.Sum256([]byte("first message"))

	req := FrostSignRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		Secret:          leaf,
		SelfIdentifier:  1,
		NonceHandle:     handle,
		AllParticipants: participants,
	}

	_, err = s.SignFrost(req)
	require.NoError(t, err)

	_, err = s.SignFrost(req)
	require.ErrorIs(t, err, ErrNonceHandleReused)
}
