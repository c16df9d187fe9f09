package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sparkwallet/spark/deposit"
	"github.com/sparkwallet/spark/network"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/optimizer"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/storage"
	"github.com/sparkwallet/spark/syncengine"
	"github.com/sparkwallet/spark/tree"
)

// Storage is the full local persistence surface a Wallet depends on:
// the payment/deposit/settings store plus the sync engine's own
// relational log, satisfied by a single storage/sqlite.DB connection.
type Storage interface {
	storage.Store
	syncengine.Storage
}

// ChainSource is the capability interface a Wallet uses to broadcast
// funding transactions and poll for deposit confirmations, satisfied
// by chain/mempool.Source. Optional: a wallet whose caller already
// owns broadcast and confirmation tracking can leave this nil.
type ChainSource interface {
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) error
	TxConfirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)
}

// Config wires a Wallet to its collaborators. Everything reachable
// from an operator RPC or persisted locally is handed in already
// constructed; Config only owns the wallet's own master seed and the
// tuning knobs that have sane defaults.
type Config struct {
	Network network.Network
	Seed    []byte

	Pool    *operator.Pool
	SSP     deposit.SSPClient
	Storage Storage

	SyncClient syncengine.Client
	ClientID   string

	// Tree is the in-process leaf inventory shared by deposit, transfer,
	// and optimizer. Defaults to an empty tree.NewInMemoryService when
	// nil; callers that need leaves to persist across restarts must
	// supply their own tree.Service backed by Storage.
	Tree tree.Service

	RefundMinFeeSats uint64
	Threshold        uint32
	Optimization     optimizer.OptimizationOptions

	// NodeKeyStore persists signer key-derivation bookkeeping across
	// restarts. Optional; defaults to a no-op store.
	NodeKeyStore signer.NodeKeyStore

	// Chain is the on-chain broadcast/confirmation backend. Optional;
	// BroadcastFundingTransaction and WaitForDepositConfirmation return
	// ErrChainSourceRequired when left nil.
	Chain ChainSource

	// DepositPollInterval controls how often WaitForDepositConfirmation
	// re-checks confirmation depth. Defaults to 30 seconds.
	DepositPollInterval time.Duration
}

func (c *Config) Validate() error {
	if len(c.Seed) == 0 {
		return fmt.Errorf("wallet: seed is required")
	}
	if c.Pool == nil {
		return fmt.Errorf("wallet: operator pool is required")
	}
	if c.SSP == nil {
		return fmt.Errorf("wallet: ssp client is required")
	}
	if c.Storage == nil {
		return fmt.Errorf("wallet: storage is required")
	}
	if c.SyncClient == nil {
		return fmt.Errorf("wallet: sync client is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("wallet: client id is required")
	}
	if c.Tree == nil {
		c.Tree = tree.NewInMemoryService(nil)
	}
	if c.Optimization == (optimizer.OptimizationOptions{}) {
		c.Optimization = optimizer.DefaultOptimizationOptions()
	}
	if c.NodeKeyStore == nil {
		c.NodeKeyStore = noopNodeKeyStore{}
	}
	if c.DepositPollInterval <= 0 {
		c.DepositPollInterval = 30 * time.Second
	}
	return nil
}

// noopNodeKeyStore is the default signer.NodeKeyStore for wallets that
// don't need stable node-id-to-index bookkeeping across restarts.
type noopNodeKeyStore struct{}

func (noopNodeKeyStore) MarkDerived(nodeID string) error { return nil }
