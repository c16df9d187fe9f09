package syncengine

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/sparkwallet/spark/signer"
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

func TestEncryptDecryptRecordRoundTrip(t *testing.T) {
	s := testSigner(t, 0x11)
	record := Record{
		ID:            RecordID{Type: "payment", DataID: "abc"},
		Revision:      4,
		SchemaVersion: "1.0.0",
		Data:          map[string]string{"amount": "1000", "label": `"coffee"`},
	}

	wire, err := encryptRecord(s, record)
	require.NoError(t, err)
	require.Equal(t, "payment:abc", wire.ID)
	require.Equal(t, uint64(4), wire.Revision)

	decoded, err := decryptRecord(s, wire)
	require.NoError(t, err)
	require.Equal(t, record.ID, decoded.ID)
	require.Equal(t, record.Revision, decoded.Revision)
	require.Equal(t, record.SchemaVersion, decoded.SchemaVersion)
	require.Equal(t, record.Data, decoded.Data)
}

func TestDecryptRecordPropagatesDecryptionFailure(t *testing.T) {
	s := testSigner(t, 0x12)
	_, err := decryptRecord(s, WireRecord{ID: "x:1", Data: []byte("not a valid ciphertext")})
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestRecordIDStringFormat(t *testing.T) {
	id := RecordID{Type: "payment", DataID: "abc"}
	require.Equal(t, "payment:abc", id.String())
}
