// Package keys defines the compressed secp256k1 public key type and
// the PrivateKeySource sum type that the rest of the module passes
// around instead of raw private key material.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PublicKeySize is the length in bytes of a compressed secp256k1
// point.
const PublicKeySize = 33

// PublicKey is a 33-byte compressed secp256k1 public key.
type PublicKey [PublicKeySize]byte

// ParsePublicKey parses a 33-byte compressed public key, validating
// that it lies on the curve.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKeyLength, len(b))
	}
	if _, err := btcec.ParsePubKey(b); err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(pk[:], b)
	return pk, nil
}

// ToBTCEC returns the btcec representation, for use with the
// btcec/ecdsa/schnorr packages.
func (p PublicKey) ToBTCEC() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(p[:])
}

// Bytes returns the raw 33 compressed bytes.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, p[:])
	return out
}

func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the all-zero placeholder used by the
// invoice hash construction when a field is absent.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// NewFromBTCEC converts a btcec public key into the compressed form
// used throughout this module.
func NewFromBTCEC(pub *btcec.PublicKey) PublicKey {
	var out PublicKey
	copy(out[:], pub.SerializeCompressed())
	return out
}

// PrivateKeySourceKind discriminates the two members of the
// PrivateKeySource sum type.
type PrivateKeySourceKind uint8

const (
	// SourceDerived marks a key deterministically re-derivable from
	// the wallet seed plus a node id; it is never transported to any
	// other party, including operators.
	SourceDerived PrivateKeySourceKind = iota

	// SourceEncrypted marks a randomly generated key held only in
	// ECIES-encrypted form under the owner's identity key; this is
	// the only form that may be transported to a recipient (who then
	// re-encrypts it under their own identity key).
	SourceEncrypted
)

// PrivateKeySource is a handle to private key material that never
// carries the material itself outside of the Signer. A Derived source
// names the node id the Signer re-derives from the wallet seed; an
// Encrypted source carries ciphertext that only the Signer holding the
// matching identity key can open.
type PrivateKeySource struct {
	Kind       PrivateKeySourceKind
	NodeID     string // valid when Kind == SourceDerived
	Ciphertext []byte // valid when Kind == SourceEncrypted
}

// Derived builds a PrivateKeySource referencing a deterministically
// re-derivable key.
func Derived(nodeID string) PrivateKeySource {
	return PrivateKeySource{Kind: SourceDerived, NodeID: nodeID}
}

// Identity builds the PrivateKeySource naming the wallet's own
// long-term identity key, the implicit recipient of sync records and
// of per-leaf transfer secret ciphers.
func Identity() PrivateKeySource {
	return PrivateKeySource{Kind: SourceDerived, NodeID: ""}
}

// Encrypted builds a PrivateKeySource wrapping ciphertext produced by
// Signer.EciesEncrypt under the owning identity key.
func Encrypted(ciphertext []byte) PrivateKeySource {
	out := make([]byte, len(ciphertext))
	copy(out, ciphertext)
	return PrivateKeySource{Kind: SourceEncrypted, Ciphertext: out}
}

func (s PrivateKeySource) String() string {
	switch s.Kind {
	case SourceDerived:
		return fmt.Sprintf("derived(%s)", s.NodeID)
	case SourceEncrypted:
		return fmt.Sprintf("encrypted(%d bytes)", len(s.Ciphertext))
	default:
		return "unknown-private-key-source"
	}
}
