package signer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// deriveAtPath walks purpose' / coinType' / family' / 0 / index from the
// master key, hardening the first three levels as BIP43/44 require.
func (s *Signer) deriveAtPath(family, index uint32) (*hdkeychain.ExtendedKey, error) {
	key := s.masterKey

	for _, hardened := range []uint32{Purpose, DefaultCoinType, family} {
		var err error
		key, err = key.Derive(hdkeychain.HardenedKeyStart + hardened)
		if err != nil {
			return nil, fmt.Errorf("derive hardened level: %w", err)
		}
	}

	key, err := key.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive change level: %w", err)
	}

	key, err = key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive index level: %w", err)
	}

	return key, nil
}

// nodeIndex turns an opaque node id into a deterministic, non-hardened
// derivation index by hashing it. Collisions are immaterial: two node
// ids landing on the same index just derive the same key, which would
// only matter if the caller reused a node id for two purposes, which
// the rest of this module never does (static-deposit keys share the
// leaf family but use their own "static-deposit/" node-id prefix).
func nodeIndex(nodeID string) uint32 {
	sum := sha256.Sum256([]byte(nodeID))
	// Mask off the top bit so the index never collides with the
	// hardened range, keeping this a plain (non-hardened) derivation.
	return binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff
}

// deriveForNode derives the extended key for a Derived PrivateKeySource
// bound to family and nodeID.
func (s *Signer) deriveForNode(family uint32, nodeID string) (*hdkeychain.ExtendedKey, error) {
	return s.deriveAtPath(family, nodeIndex(nodeID))
}

// derivedPrivKey resolves a Derived PrivateKeySource all the way down
// to the btcec private key it names.
func (s *Signer) derivedPrivKey(family uint32, nodeID string) (*btcec.PrivateKey, error) {
	key, err := s.deriveForNode(family, nodeID)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}
