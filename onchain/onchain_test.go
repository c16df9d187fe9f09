package onchain

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/tree"
)

func newTestKey(t *testing.T) keys.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return keys.NewFromBTCEC(priv.PubKey())
}

func TestTaprootOutputScriptIsPayToTaproot(t *testing.T) {
	pub := newTestKey(t)
	script, err := TaprootOutputScript(pub)
	require.NoError(t, err)
	require.Len(t, script, 34)
	require.Equal(t, byte(0x51), script[0]) // OP_1
	require.Equal(t, byte(0x20), script[1]) // 32-byte push
}

func TestBuildRootTxSpendsFundingOutputInFull(t *testing.T) {
	pub := newTestKey(t)
	outpoint := wire.OutPoint{Index: 0}

	tx, err := BuildRootTx(outpoint, 100_000, pub)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, outpoint, tx.TxIn[0].PreviousOutPoint)
	require.Equal(t, RootSequence, tx.TxIn[0].Sequence)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, int64(100_000), tx.TxOut[0].Value)
}

func TestBuildRefundTxCarriesRequestedSequence(t *testing.T) {
	pub := newTestKey(t)
	outpoint := wire.OutPoint{Index: 1}

	tx, err := BuildRefundTx(outpoint, 50_000, pub, InitialRefundSequence)
	require.NoError(t, err)
	require.Equal(t, InitialRefundSequence, tx.TxIn[0].Sequence)
	require.Equal(t, int64(50_000), tx.TxOut[0].Value)
}

func TestSigHashIsDeterministicAndInputSensitive(t *testing.T) {
	pub := newTestKey(t)
	outpoint := wire.OutPoint{Index: 0}

	txA, err := BuildRefundTx(outpoint, 1000, pub, 50)
	require.NoError(t, err)
	txB, err := BuildRefundTx(outpoint, 1000, pub, 50)
	require.NoError(t, err)
	txC, err := BuildRefundTx(outpoint, 1000, pub, 40)
	require.NoError(t, err)

	hashA, err := SigHash(txA)
	require.NoError(t, err)
	hashB, err := SigHash(txB)
	require.NoError(t, err)
	hashC, err := SigHash(txC)
	require.NoError(t, err)

	require.Equal(t, hashA, hashB)
	require.NotEqual(t, hashA, hashC)
}

func TestNextSequenceStepsDownToFloorThenExhausts(t *testing.T) {
	seq := InitialRefundSequence
	var err error
	for i := 0; i < 20; i++ {
		seq, err = NextSequence(seq)
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrSequenceExhausted)
}

func TestBuildStaticDepositRefundTxRejectsFeeExceedingValue(t *testing.T) {
	_, err := BuildStaticDepositRefundTx(wire.OutPoint{}, 1000, []byte{0x51}, 2000)
	require.Error(t, err)
}

func TestBuildStaticDepositRefundTxCreditsRemainder(t *testing.T) {
	tx, err := BuildStaticDepositRefundTx(wire.OutPoint{}, 1000, []byte{0x51}, 300)
	require.NoError(t, err)
	require.Equal(t, int64(700), tx.TxOut[0].Value)
}

func TestNodeOutpointValidatesVout(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	_, err := NodeOutpoint(tx, 1)
	require.ErrorIs(t, err, ErrVoutOutOfRange)

	out, err := NodeOutpoint(tx, 0)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), out.Hash)
}

func TestRefundTxBuilderBuildsTemplateFromLeaf(t *testing.T) {
	verifyingKey := newTestKey(t)
	newOwnerKey := newTestKey(t)

	rootTx, err := BuildRootTx(wire.OutPoint{Index: 0}, 20_000, verifyingKey)
	require.NoError(t, err)

	leaf := tree.Node{
		ID:                 "leaf-1",
		NodeTx:             rootTx,
		Vout:               0,
		VerifyingPublicKey: verifyingKey,
	}

	builder := NewRefundTxBuilder()
	template, err := builder.BuildRefundTx(leaf, newOwnerKey, InitialRefundSequence)
	require.NoError(t, err)
	require.NotEmpty(t, template.TxHex)
	require.NotEqual(t, [32]byte{}, template.SigHash)
}

func TestDecodeAddressScriptMatchesTaprootOutputScript(t *testing.T) {
	pub := newTestKey(t)
	want, err := TaprootOutputScript(pub)
	require.NoError(t, err)

	params := &chaincfg.RegressionNetParams
	addr, err := btcutil.NewAddressTaproot(pub.Bytes()[1:], params)
	require.NoError(t, err)

	got, err := DecodeAddressScript(addr.EncodeAddress(), params)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeAddressScriptRejectsGarbage(t *testing.T) {
	_, err := DecodeAddressScript("not-an-address", &chaincfg.RegressionNetParams)
	require.Error(t, err)
}

func TestFundingPSBTTemplatePaysDestination(t *testing.T) {
	pub := newTestKey(t)
	script, err := TaprootOutputScript(pub)
	require.NoError(t, err)

	pkt, err := FundingPSBTTemplate(script, 25_000)
	require.NoError(t, err)
	require.Len(t, pkt.UnsignedTx.TxOut, 1)
	require.Equal(t, int64(25_000), pkt.UnsignedTx.TxOut[0].Value)
	require.Len(t, pkt.Inputs, 0)

	require.Error(t, AddWitnessUTXO(pkt, 0, nil))
}
