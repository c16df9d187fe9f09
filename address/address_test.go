package address

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/network"
)

func mustParsePubKey(t *testing.T, hexKey string) keys.PublicKey {
	t.Helper()
	raw, err := hex.DecodeString(hexKey)
	require.NoError(t, err)
	pub, err := keys.ParsePublicKey(raw)
	require.NoError(t, err)
	return pub
}

// fakeSigner is a real Schnorr signer backed by an in-memory key, used
// wherever a test needs a valid invoice signature but isn't pinning a
// literal signed string.
type fakeSigner struct {
	priv *btcec.PrivateKey
	pub  keys.PublicKey
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub, err := keys.ParsePublicKey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)
	return &fakeSigner{priv: priv, pub: pub}
}

func (s *fakeSigner) IdentityPublicKey() keys.PublicKey { return s.pub }

func (s *fakeSigner) SignHashSchnorr(hash [32]byte, _ keys.PrivateKeySource) ([]byte, error) {
	sig, err := schnorr.Sign(s.priv, hash[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

func TestAddressRoundtrip(t *testing.T) {
	pub := mustParsePubKey(t, "02739cbcc636ca0eefe988c223ea5c5744946b6b89122de1be9f5e42b05e301b4d")
	addr := New(pub, network.Regtest, nil)

	encoded, err := addr.EncodeAddress()
	require.NoError(t, err)
	require.Equal(t, "sparkrt1pgssyuuuhnrrdjswal5c3s3rafw9w3y5dd4cjy3duxlf7hjzkp0rqx6dc0nltx", encoded)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, parsed)

	legacy, err := Parse("sprt1pgssyuuuhnrrdjswal5c3s3rafw9w3y5dd4cjy3duxlf7hjzkp0rqx6dj6mrhu")
	require.NoError(t, err)
	require.Equal(t, addr, legacy)
}

func TestSatsInvoiceParseFromLiteral(t *testing.T) {
	const literal = "sparkrt1pgss8cf4gru7ece2ryn8ym3vm3yz8leeend2589m7svq2mgv0xncfyx8zf8ssqgjzqqe5pmwfwyh9u4u6wgrepzk7j6j5prdv4kk7v3pqdur4y4c5nlcyr7lksm4mhrhdzakas9yt8gz4levtnfe49sgkqknywstpzxd8hk8qcgvp7x22q3qxz8gqudyp7rmuglc2axjqnlzz7d047gndmxff6ud02fvdgasdsq2en2aah6g52rq4qq7peler4s4d85s7prhm6sqzqj7gvc9nlzucy4yfh206fyqpk9zez"

	addr, err := Parse(literal)
	require.NoError(t, err)

	require.Equal(t, network.Regtest, addr.Network)
	require.True(t, addr.IsInvoice())

	inv := addr.Invoice
	require.Equal(t, PaymentSats, inv.PaymentKind)
	require.NotNil(t, inv.SatsPayment.Amount)
	require.Equal(t, uint64(1000), *inv.SatsPayment.Amount)

	require.NotNil(t, inv.ExpiryTime)
	require.Equal(t, int64(1761061260), inv.ExpiryTime.Unix())

	require.NotNil(t, inv.Memo)
	require.Equal(t, "memo", *inv.Memo)

	require.NotNil(t, inv.SenderPublicKey)
	wantSender := mustParsePubKey(t, "03783a92b8a4ff820fdfb4375ddc7768bb6ec0a459d02aff2c5cd39a9608b02d32")
	require.Equal(t, wantSender, *inv.SenderPublicKey)
}

func TestEncodeInvoiceThenParseSatsRoundtrip(t *testing.T) {
	signer := newFakeSigner(t)
	memo := "coffee"
	sender := signer.IdentityPublicKey()
	expiry := time.Unix(1700000000, 0).UTC()
	amount := uint64(21000)

	inv := &Invoice{
		ID:              uuid.New(),
		Version:         1,
		Memo:            &memo,
		SenderPublicKey: &sender,
		ExpiryTime:      &expiry,
		PaymentKind:     PaymentSats,
		SatsPayment:     SatsPayment{Amount: &amount},
	}
	addr := New(signer.IdentityPublicKey(), network.Mainnet, inv)

	encoded, err := addr.EncodeInvoice(signer)
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.IdentityPublicKey, parsed.IdentityPublicKey)
	require.Equal(t, addr.Network, parsed.Network)
	require.True(t, parsed.IsInvoice())
	require.Equal(t, PaymentSats, parsed.Invoice.PaymentKind)
	require.Equal(t, amount, *parsed.Invoice.SatsPayment.Amount)
	require.Equal(t, inv.ID, parsed.Invoice.ID)
}

func TestEncodeInvoiceThenParseTokensRoundtrip(t *testing.T) {
	signer := newFakeSigner(t)

	var rawTokenID [32]byte
	_, err := rand.Read(rawTokenID[:])
	require.NoError(t, err)
	tokenID, err := encodeTokenIdentifier(rawTokenID[:], network.Testnet)
	require.NoError(t, err)

	amount := uint128.From64(5_000_000)
	inv := &Invoice{
		ID:          uuid.New(),
		Version:     1,
		PaymentKind: PaymentTokens,
		TokensPayment: TokensPayment{
			TokenIdentifier: &tokenID,
			Amount:          &amount,
		},
	}
	addr := New(signer.IdentityPublicKey(), network.Testnet, inv)

	encoded, err := addr.EncodeInvoice(signer)
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, PaymentTokens, parsed.Invoice.PaymentKind)
	require.Equal(t, tokenID, *parsed.Invoice.TokensPayment.TokenIdentifier)
	require.True(t, amount.Equals(*parsed.Invoice.TokensPayment.Amount))
}

func TestEncodeInvoiceRejectsWrongSigner(t *testing.T) {
	owner := newFakeSigner(t)
	other := newFakeSigner(t)

	amount := uint64(1)
	inv := &Invoice{
		ID:          uuid.New(),
		Version:     1,
		PaymentKind: PaymentSats,
		SatsPayment: SatsPayment{Amount: &amount},
	}
	addr := New(owner.IdentityPublicKey(), network.Mainnet, inv)

	_, err := addr.EncodeInvoice(other)
	require.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestEncodeAddressRejectsInvoice(t *testing.T) {
	signer := newFakeSigner(t)
	amount := uint64(1)
	inv := &Invoice{
		ID:          uuid.New(),
		Version:     1,
		PaymentKind: PaymentSats,
		SatsPayment: SatsPayment{Amount: &amount},
	}
	addr := New(signer.IdentityPublicKey(), network.Mainnet, inv)

	_, err := addr.EncodeAddress()
	require.ErrorIs(t, err, ErrAddressIsInvoice)
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	signer := newFakeSigner(t)
	amount := uint64(42)
	inv := &Invoice{
		ID:          uuid.New(),
		Version:     1,
		PaymentKind: PaymentSats,
		SatsPayment: SatsPayment{Amount: &amount},
	}
	addr := New(signer.IdentityPublicKey(), network.Mainnet, inv)

	encoded, err := addr.EncodeInvoice(signer)
	require.NoError(t, err)

	hrp, data, _, err := bech32Decode(encoded)
	require.NoError(t, err)
	raw, err := convertBits(data, 5, 8, false)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	grouped, err := convertBits(raw, 8, 5, true)
	require.NoError(t, err)
	tampered, err := bech32Encode(hrp, grouped)
	require.NoError(t, err)

	_, err = Parse(tampered)
	require.Error(t, err)
}

func TestParseRejectsUnknownHRP(t *testing.T) {
	grouped, err := convertBits([]byte{1, 2, 3}, 8, 5, true)
	require.NoError(t, err)
	encoded, err := bech32Encode("notreal", grouped)
	require.NoError(t, err)

	_, err = Parse(encoded)
	require.Error(t, err)
}

func TestParseRejectsLegacyBech32Encoding(t *testing.T) {
	// Construct a legacy bech32 (not bech32m) string with a valid HRP
	// and checksum; Parse must reject it since addresses are always
	// bech32m.
	data, err := convertBits([]byte{1, 2, 3}, 8, 5, true)
	require.NoError(t, err)
	payload := append([]byte{}, data...)
	checksum := bech32CreateChecksum("spark", payload, encodingBech32)
	combined := append(payload, checksum...)

	var sb []byte
	sb = append(sb, []byte("spark1")...)
	for _, v := range combined {
		sb = append(sb, bech32Charset[v])
	}

	_, err = Parse(string(sb))
	require.ErrorIs(t, err, ErrNotBech32m)
}

func TestVariableLengthBEProperty(t *testing.T) {
	require.Equal(t, []byte{}, toVariableLengthBE(uint128.Zero))
	require.Equal(t, []byte{1}, toVariableLengthBE(uint128.From64(1)))
	require.Equal(t, []byte{1, 0}, toVariableLengthBE(uint128.From64(256)))

	for _, v := range []uint64{0, 1, 2, 255, 256, 65535, 1 << 40} {
		want := uint128.From64(v)
		got, err := fromVariableLengthBE(toVariableLengthBE(want))
		require.NoError(t, err)
		require.True(t, want.Equals(got))
	}

	_, err := fromVariableLengthBE(make([]byte, 17))
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestInvoiceHashChangesWithEachField(t *testing.T) {
	baseMemo := "hello"
	amount := uint64(100)
	expiry := time.Unix(1700000000, 0).UTC()
	sender := mustParsePubKey(t, "03783a92b8a4ff820fdfb4375ddc7768bb6ec0a459d02aff2c5cd39a9608b02d32")

	build := func(mutate func(*Invoice)) SparkAddress {
		memo := baseMemo
		amt := amount
		exp := expiry
		snd := sender
		inv := &Invoice{
			ID:              uuid.MustParse("018f5a3e-3b4a-7b7a-8a8a-0123456789ab"),
			Version:         1,
			Memo:            &memo,
			SenderPublicKey: &snd,
			ExpiryTime:      &exp,
			PaymentKind:     PaymentSats,
			SatsPayment:     SatsPayment{Amount: &amt},
		}
		mutate(inv)
		pub := mustParsePubKey(t, "02739cbcc636ca0eefe988c223ea5c5744946b6b89122de1be9f5e42b05e301b4d")
		return New(pub, network.Regtest, inv)
	}

	base := build(func(*Invoice) {})
	baseHash, err := computeInvoiceHash(base)
	require.NoError(t, err)

	variants := []func(*Invoice){
		func(i *Invoice) { m := "goodbye"; i.Memo = &m },
		func(i *Invoice) { v := uint64(101); i.SatsPayment.Amount = &v },
		func(i *Invoice) { e := expiry.Add(time.Second); i.ExpiryTime = &e },
		func(i *Invoice) {
			k := newFakeSigner(t).IdentityPublicKey()
			i.SenderPublicKey = &k
		},
	}

	for _, mutate := range variants {
		addr := build(mutate)
		h, err := computeInvoiceHash(addr)
		require.NoError(t, err)
		require.NotEqual(t, baseHash, h)
	}

	otherNetwork := build(func(*Invoice) {})
	otherNetwork.Network = network.Testnet
	h, err := computeInvoiceHash(otherNetwork)
	require.NoError(t, err)
	require.NotEqual(t, baseHash, h)
}
