package transfer

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/tree"
)

func testSigner(t *testing.T, seed byte) *signer.Signer {
	t.Helper()
	cfg := &signer.Config{
		NetParams: &chaincfg.RegressionNetParams,
		Seed:      make([]byte, 32),
	}
	for i := range cfg.Seed {
		cfg.Seed[i] = seed
	}
	s, err := signer.New(cfg)
	require.NoError(t, err)
	return s
}

func testPool(t *testing.T, n int) *operator.Pool {
	t.Helper()
	ops := make([]operator.Operator, n)
	for i := range ops {
		ops[i] = operator.Operator{ID: uint32(i), Identifier: uint32(i) + 1}
	}
	pool, err := operator.NewPool(ops, 0)
	require.NoError(t, err)
	return pool
}

type noopRefundTxBuilder struct{}

func (noopRefundTxBuilder) BuildRefundTx(tree.Node, keys.PublicKey, uint32) (RefundTxTemplate, error) {
	return RefundTxTemplate{}, nil
}

// --- canonical payload tests ---

func TestLeafAuthPayloadBindsSecretCipher(t *testing.T) {
	s := testSigner(t, 0x10)

	secretCipher := []byte{1, 2, 3, 4, 5}
	payload := leafAuthPayload("leaf-1", "transfer-1", secretCipher)
	sig, err := s.SignECDSA(payload, keys.Identity())
	require.NoError(t, err)

	pub, err := s.IdentityPublicKey().ToBTCEC()
	require.NoError(t, err)

	require.True(t, verifyECDSAOverPayload(t, sig, payload, pub))

	mutated := append([]byte(nil), secretCipher...)
	mutated[0] ^= 0xff
	tamperedPayload := leafAuthPayload("leaf-1", "transfer-1", mutated)
	require.False(t, verifyECDSAOverPayload(t, sig, tamperedPayload, pub))
}

func verifyECDSAOverPayload(t *testing.T, sig, payload []byte, pub *btcec.PublicKey) bool {
	t.Helper()
	parsed, err := ecdsa.ParseDERSignature(sig)
	require.NoError(t, err)
	digest := sha256Sum(payload)
	return parsed.Verify(digest[:], pub)
}

func TestPackageSigningPayloadIsOrderIndependent(t *testing.T) {
	a := map[uint32][]byte{3: []byte("c"), 1: []byte("a"), 2: []byte("b")}
	b := map[uint32][]byte{1: []byte("a"), 2: []byte("b"), 3: []byte("c")}

	transferID := "0196f2d3-0000-7000-8000-000000000001"
	payloadA, err := packageSigningPayload(transferID, a)
	require.NoError(t, err)
	payloadB, err := packageSigningPayload(transferID, b)
	require.NoError(t, err)
	require.Equal(t, payloadA, payloadB)
}

func TestEncodeLeafTweaksIsDeterministic(t *testing.T) {
	commitment := [33]byte{0x02}
	tweak := SendLeafKeyTweak{
		LeafID: "leaf-1",
		SecretShareTweak: signer.VerifiableShare{
			Identifier:  1,
			Commitments: [][33]byte{commitment},
		},
		PubkeySharesTweak: map[uint32][33]byte{2: {0x03}, 1: {0x02}},
		SecretCipher:      []byte("cipher"),
		Signature:         []byte("sig"),
	}

	first := encodeLeafTweaks([]SendLeafKeyTweak{tweak})
	second := encodeLeafTweaks([]SendLeafKeyTweak{tweak})
	require.Equal(t, first, second)
}

// --- adaptor signature tests ---

func TestAdaptorSignatureRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := keys.NewFromBTCEC(priv.PubKey())

	var message [32]byte
	copy(message[:], []byte("deterministic-test-message-3210"))

	validSig, err := schnorr.Sign(priv, message[:])
	require.NoError(t, err)

	var adaptorSecret [32]byte
	copy(adaptorSecret[:], []byte("adaptor-secret-material-12345678"))
	adaptorPriv := secpPrivFromBytes(adaptorSecret)
	adaptorPoint := keys.NewFromBTCEC(adaptorPriv.PubKey())

	adaptorSig, err := GenerateAdaptorFromSignature(validSig.Serialize(), adaptorSecret)
	require.NoError(t, err)

	// The adaptor form must not itself verify as a standard Schnorr
	// signature (it is intentionally invalid until completed).
	parsedAdaptor, err := schnorr.ParseSignature(adaptorSig)
	require.NoError(t, err)
	require.False(t, parsedAdaptor.Verify(message[:], priv.PubKey()))

	// It does validate as a pre-signature against the adaptor point.
	require.NoError(t, ValidateOutboundAdaptorSignature(pub, message, adaptorSig, adaptorPoint))

	// Revealing the secret completes it back to the original valid
	// signature.
	completed, err := ApplyAdaptorToSignature(adaptorSig, adaptorSecret)
	require.NoError(t, err)
	require.Equal(t, validSig.Serialize(), completed)
}

func secpPrivFromBytes(b [32]byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(b[:])
	return priv
}

// --- send/claim plumbing tests ---

func TestSendLeavesRejectsEmptySet(t *testing.T) {
	svc := &Service{cfg: &Config{}}
	_, err := svc.SendLeaves(context.Background(), keys.PublicKey{}, nil)
	require.ErrorIs(t, err, ErrEmptyLeafSet)
}

func TestClaimOnceRejectsForgedSenderSignature(t *testing.T) {
	receiver := testSigner(t, 0x20)
	pool := testPool(t, 2)

	svc, err := New(&Config{
		Signer:          receiver,
		Pool:            pool,
		Tree:            tree.NewInMemoryService(nil),
		RefundTxBuilder: noopRefundTxBuilder{},
	})
	require.NoError(t, err)

	var senderPub keys.PublicKey
	senderPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	senderPub = keys.NewFromBTCEC(senderPriv.PubKey())

	pending := Transfer{
		ID:              "transfer-1",
		SenderPublicKey: senderPub,
		Leaves: []TransferLeaf{
			{
				LeafID:          "leaf-1",
				SenderSignature: []byte("not-a-real-signature"),
				SecretCipher:    []byte("cipher"),
			},
		},
	}

	_, err = svc.claimOnce(context.Background(), pending)
	require.ErrorIs(t, err, ErrSenderSignatureInvalid)
}

func TestClaimOnceRejectsEmptyLeafSet(t *testing.T) {
	receiver := testSigner(t, 0x21)
	pool := testPool(t, 2)
	svc, err := New(&Config{
		Signer:          receiver,
		Pool:            pool,
		Tree:            tree.NewInMemoryService(nil),
		RefundTxBuilder: noopRefundTxBuilder{},
	})
	require.NoError(t, err)

	_, err = svc.claimOnce(context.Background(), Transfer{ID: "transfer-1"})
	require.ErrorIs(t, err, ErrNoLeavesToClaim)
}

func TestDefaultClaimConfigAppliedWhenZero(t *testing.T) {
	cfg := &Config{
		Signer:          testSigner(t, 0x22),
		Pool:            testPool(t, 1),
		Tree:            tree.NewInMemoryService(nil),
		RefundTxBuilder: noopRefundTxBuilder{},
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultClaimConfig(), cfg.Claim)
	require.Equal(t, uint32(1), cfg.Threshold)
}

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}
