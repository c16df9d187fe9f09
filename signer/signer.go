// Package signer implements the Signer capability described in the
// core design: it owns the wallet's identity key, its derived leaf and
// static-deposit keys, and every cryptographic primitive (ECDSA,
// Schnorr, ECIES, FROST, Shamir/Feldman secret splitting) the rest of
// the wallet needs without ever handing raw private material outside
// this package.
package signer

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/sparkwallet/spark/keys"
)

// Signer is the concrete, capability-complete implementation of the
// core's Signer contract.
type Signer struct {
	cfg *Config

	masterKey *hdkeychain.ExtendedKey

	identityPriv *btcec.PrivateKey
	identityPub  keys.PublicKey

	mu     sync.Mutex
	nonces map[NonceHandle]*nonceSecret
}

// New creates a Signer from cfg. The identity key is always family
// FamilyIdentity, index 0 — the single long-term key the wallet is
// addressed by.
func New(cfg *Config) (*Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	masterKey, err := hdkeychain.NewMaster(cfg.Seed, cfg.NetParams)
	if err != nil {
		return nil, fmt.Errorf("signer: create master key: %w", err)
	}

	s := &Signer{
		cfg:       cfg,
		masterKey: masterKey,
		nonces:    make(map[NonceHandle]*nonceSecret),
	}

	identityKey, err := s.deriveAtPath(FamilyIdentity, 0)
	if err != nil {
		return nil, fmt.Errorf("signer: derive identity key: %w", err)
	}
	s.identityPriv, err = identityKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("signer: identity private key: %w", err)
	}
	s.identityPub = keys.NewFromBTCEC(s.identityPriv.PubKey())

	return s, nil
}

// IdentityPublicKey returns the compressed public key bound to the
// wallet's long-term identity.
func (s *Signer) IdentityPublicKey() keys.PublicKey {
	return s.identityPub
}

// DerivePublicKey returns the public key named by source without
// touching any private material beyond what is necessary to compute
// it; pure given the wallet seed.
func (s *Signer) DerivePublicKey(source keys.PrivateKeySource) (keys.PublicKey, error) {
	priv, err := s.resolvePrivateKey(source)
	if err != nil {
		return keys.PublicKey{}, err
	}
	return keys.NewFromBTCEC(priv.PubKey()), nil
}

// resolvePrivateKey is the single choke point that turns a
// PrivateKeySource into usable key material; every signing and
// decryption path goes through it so Derived/Encrypted handling never
// drifts apart.
func (s *Signer) resolvePrivateKey(source keys.PrivateKeySource) (*btcec.PrivateKey, error) {
	switch source.Kind {
	case keys.SourceDerived:
		// The empty node id names the wallet's own identity key
		// (keys.Identity()); every other node id is namespaced by
		// string content (plain leaf ids vs. the "static-deposit/"
		// prefix), so a single derivation family is sufficient and
		// keeps derivation a pure function of (seed, node id).
		if source.NodeID == "" {
			return s.identityPriv, nil
		}
		return s.derivedPrivKey(FamilyLeaf, source.NodeID)
	case keys.SourceEncrypted:
		plaintext, err := decryptWithKey(source.Ciphertext, s.identityPriv)
		if err != nil {
			return nil, err
		}
		priv, _ := btcec.PrivKeyFromBytes(plaintext)
		return priv, nil
	default:
		return nil, fmt.Errorf("signer: unknown private key source kind %d", source.Kind)
	}
}

// SignECDSA produces a deterministic ECDSA signature (RFC6979) over
// msg using the key named by source.
func (s *Signer) SignECDSA(msg []byte, source keys.PrivateKeySource) ([]byte, error) {
	priv, err := s.resolvePrivateKey(source)
	if err != nil {
		return nil, fmt.Errorf("sign ecdsa: %w", err)
	}
	sig := ecdsa.Sign(priv, hashForSigning(msg))
	return sig.Serialize(), nil
}

// SignECDSARecoverable produces a recoverable ECDSA signature (65
// bytes: recovery id || r || s) over msg.
func (s *Signer) SignECDSARecoverable(msg []byte, source keys.PrivateKeySource) ([]byte, error) {
	priv, err := s.resolvePrivateKey(source)
	if err != nil {
		return nil, fmt.Errorf("sign ecdsa recoverable: %w", err)
	}
	return ecdsa.SignCompact(priv, hashForSigning(msg), true), nil
}

// SignHashSchnorr produces a BIP-340 Schnorr signature over a
// caller-supplied 32-byte hash (the caller is responsible for hashing
// its message appropriately; this lets invoice signing and FROST
// refund signing share the same entry point).
func (s *Signer) SignHashSchnorr(hash [32]byte, source keys.PrivateKeySource) ([]byte, error) {
	priv, err := s.resolvePrivateKey(source)
	if err != nil {
		return nil, fmt.Errorf("sign schnorr: %w", err)
	}
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("sign schnorr: %w", err)
	}
	return sig.Serialize(), nil
}

// hashForSigning is the fixed single-round hash ECDSA operations apply
// to their input; callers that need a specific digest (e.g. a sighash)
// pass it in pre-hashed via SignHashSchnorr instead.
func hashForSigning(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:]
}

// SubtractPrivateKeys computes a - b mod n, returning the difference as a
// new PrivateKeySource. The result is never a Derived source (it names
// no node id of its own); it is held as an Encrypted source under this
// wallet's own identity key until it is either split via
// SplitSecretWithProofs or discarded.
func (s *Signer) SubtractPrivateKeys(a, b keys.PrivateKeySource) (keys.PrivateKeySource, error) {
	privA, err := s.resolvePrivateKey(a)
	if err != nil {
		return keys.PrivateKeySource{}, fmt.Errorf("subtract keys: %w", err)
	}
	privB, err := s.resolvePrivateKey(b)
	if err != nil {
		return keys.PrivateKeySource{}, fmt.Errorf("subtract keys: %w", err)
	}

	diff := scalarSub(privA, privB)
	defer zero(diff)

	ciphertext, err := s.EciesEncrypt(diff, s.identityPub)
	if err != nil {
		return keys.PrivateKeySource{}, fmt.Errorf("subtract keys: seal tweak: %w", err)
	}

	return keys.Encrypted(ciphertext), nil
}

// GetStaticDepositPrivateKeySource returns the Derived source for the
// static-deposit key at index. It is derived in the same leaf family
// as per-leaf keys, under the node id "static-deposit/<index>".
func (s *Signer) GetStaticDepositPrivateKeySource(index uint32) keys.PrivateKeySource {
	return keys.Derived(staticDepositNodeID(index))
}

// GetStaticDepositPublicKey returns the public key for the
// static-deposit index.
func (s *Signer) GetStaticDepositPublicKey(index uint32) (keys.PublicKey, error) {
	priv, err := s.derivedPrivKey(FamilyLeaf, staticDepositNodeID(index))
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("static deposit pubkey: %w", err)
	}
	return keys.NewFromBTCEC(priv.PubKey()), nil
}

func staticDepositNodeID(index uint32) string {
	return fmt.Sprintf("static-deposit/%d", index)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
