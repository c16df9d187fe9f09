package transfer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
)

// leafAuthPayload builds the per-leaf transfer authorization payload:
// leaf_id || transfer_id || secret_cipher. Any single-byte mutation of
// secretCipher must invalidate a signature made over this payload.
func leafAuthPayload(leafID string, transferID string, secretCipher []byte) []byte {
	out := make([]byte, 0, len(leafID)+len(transferID)+len(secretCipher))
	out = append(out, leafID...)
	out = append(out, transferID...)
	out = append(out, secretCipher...)
	return out
}

// commitmentAuthPayload builds the claim-path authorization payload
// signed once per leaf: leaf_id || transfer_id ||
// the Feldman commitments to the claim tweak's sharing polynomial,
// which every operator's share carries identically.
func commitmentAuthPayload(leafID, transferID string, commitments [][33]byte) []byte {
	out := []byte(leafID)
	out = append(out, transferID...)
	for _, c := range commitments {
		out = append(out, c[:]...)
	}
	return out
}

// packageSigningPayload builds the transfer-package authorization
// payload:
//
//	transfer_id_bytes || sorted-by-key(hex(identifier)+":"+ciphertext+";")
//
// transfer_id_bytes is the transfer id's raw 16 bytes (the UUID string
// with its dashes stripped and hex-decoded), and each key is the
// operator's FROST identifier serialized the way the identifier scalar
// itself is: 32 bytes big-endian, hex-encoded. Determinism requires
// iterating keyTweakPackage in ascending identifier order; any other
// order breaks operator-side verification.
func packageSigningPayload(transferID string, keyTweakPackage map[uint32][]byte) ([]byte, error) {
	idBytes, err := hex.DecodeString(strings.ReplaceAll(transferID, "-", ""))
	if err != nil {
		return nil, fmt.Errorf("package signing payload: decode transfer id: %w", err)
	}

	identifiers := make([]uint32, 0, len(keyTweakPackage))
	for id := range keyTweakPackage {
		identifiers = append(identifiers, id)
	}
	sort.Slice(identifiers, func(i, j int) bool { return identifiers[i] < identifiers[j] })

	out := append([]byte(nil), idBytes...)
	for _, id := range identifiers {
		out = append(out, hex.EncodeToString(identifierBytes(id))...)
		out = append(out, ':')
		out = append(out, keyTweakPackage[id]...)
		out = append(out, ';')
	}
	return out, nil
}

// identifierBytes serializes a FROST participant identifier the same
// way the underlying scalar would be: 32 bytes, big-endian.
func identifierBytes(id uint32) []byte {
	var s secp256k1.ModNScalar
	s.SetInt(id)
	b := s.Bytes()
	return b[:]
}

// encodeLeafTweaks deterministically serializes the list of
// SendLeafKeyTweak destined for one operator. Field layout is fixed
// (not a library default) per the design note on byte-layout
// determinism: count, then per entry leaf_id length-prefixed, the
// share identifier/value/commitments, the sorted pubkey share map,
// secret_cipher, signature, and optional refund_signature.
func encodeLeafTweaks(tweaks []SendLeafKeyTweak) []byte {
	var out []byte
	out = appendUint32(out, uint32(len(tweaks)))
	for _, t := range tweaks {
		out = appendBytes(out, []byte(t.LeafID))
		out = appendUint32(out, t.SecretShareTweak.Identifier)
		out = append(out, t.SecretShareTweak.Value[:]...)
		out = appendUint32(out, uint32(len(t.SecretShareTweak.Commitments)))
		for _, c := range t.SecretShareTweak.Commitments {
			out = append(out, c[:]...)
		}

		ids := sortedShareIDs(t.PubkeySharesTweak)
		out = appendUint32(out, uint32(len(ids)))
		for _, id := range ids {
			out = appendUint32(out, id)
			point := t.PubkeySharesTweak[id]
			out = append(out, point[:]...)
		}

		out = appendBytes(out, t.SecretCipher)
		out = appendBytes(out, t.Signature)
		out = appendBytes(out, t.RefundSignature)
	}
	return out
}

// sortedShareIDs returns a map's keys in ascending order, the
// iteration order every deterministic tweak encoding relies on.
func sortedShareIDs(m map[uint32][33]byte) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func appendBytes(out []byte, b []byte) []byte {
	out = appendUint32(out, uint32(len(b)))
	return append(out, b...)
}

// newTransferID mints a UUIDv7 transfer identifier, time-ordered so
// storage indexes on it sort naturally.
func newTransferID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// crypto/rand failure; uuid.New falls back to a v4 random id
		// rather than leaving the transfer unidentifiable.
		return uuid.New().String()
	}
	return id.String()
}
