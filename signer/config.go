package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Purpose is the BIP43 purpose this module derives identity, leaf, and
// static-deposit keys under. The exact value just needs to stay fixed
// across runs of the same wallet.
const Purpose = 350

// DefaultCoinType is Bitcoin's BIP44 coin type.
const DefaultCoinType = 0

// Key families partition the single HD tree into independent index
// spaces. All Derived PrivateKeySources other than the identity key itself live
// under FamilyLeaf; they are further namespaced by the content of
// their node id string (plain leaf ids vs. the "static-deposit/"
// prefix used by GetStaticDepositPrivateKeySource).
const (
	FamilyIdentity uint32 = 0
	FamilyLeaf     uint32 = 1
)

// Config configures a Signer.
type Config struct {
	// NetParams selects the BIP32 version bytes used for extended
	// keys; it has no bearing on which Bitcoin network leaves are
	// anchored to.
	NetParams *chaincfg.Params

	// Seed is the wallet master seed. Required.
	Seed []byte

	// NodeKeyStore is an optional store for the mapping from opaque
	// node ids to derivation indices. The Signer does not consult or
	// update it: node keys are always derived from a hash of the id.
	NodeKeyStore NodeKeyStore
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("signer: config is required")
	}
	if len(c.Seed) == 0 {
		return fmt.Errorf("signer: seed is required")
	}
	if c.NetParams == nil {
		return fmt.Errorf("signer: network params required")
	}
	return nil
}

// NodeKeyStore persists auxiliary state the Signer needs to remain
// deterministic across restarts. Spark's node ids are opaque strings
// (leaf ids, UUIDs), so no index bookkeeping is strictly required
// today, but the hook lets a future incremental-index scheme be
// swapped in without changing callers.
type NodeKeyStore interface {
	MarkDerived(nodeID string) error
}
