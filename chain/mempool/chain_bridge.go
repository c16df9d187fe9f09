package mempool

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// SourceConfig holds configuration for the Source.
type SourceConfig struct {
	// Client is the mempool.space API client.
	Client *Client

	// PollInterval is how often to poll for new blocks/confirmations.
	// Default: 30 seconds
	PollInterval time.Duration

	// CacheSize is the initial capacity of the block caches. It does not
	// bound them: block hashes are capped at 100 entries and block
	// timestamps at 1000.
	// Default: 100
	CacheSize int

	// CacheTTL is how long cached items are valid.
	// Default: 60 seconds
	CacheTTL time.Duration
}

// DefaultSourceConfig returns default configuration.
func DefaultSourceConfig(client *Client) *SourceConfig {
	return &SourceConfig{
		Client:       client,
		PollInterval: 30 * time.Second,
		CacheSize:    100,
		CacheTTL:     60 * time.Second,
	}
}

// Source is the wallet's view of the Bitcoin network, backed by the
// mempool.space REST API: current height, block headers, fee
// estimates, transaction broadcast, and deposit confirmation polling.
// The deposit and wallet packages depend on this through their own
// narrow capability interfaces rather than this concrete type.
type Source struct {
	cfg *SourceConfig

	cache *cache

	confNotifier  *confirmationNotifier
	epochNotifier *epochNotifier

	started bool
	mu      sync.RWMutex
}

// NewSource creates a new chain Source.
func NewSource(cfg *SourceConfig) *Source {
	if cfg == nil {
		cfg = DefaultSourceConfig(nil)
	}

	return &Source{
		cfg:           cfg,
		cache:         newCache(cfg.CacheSize, cfg.CacheTTL),
		confNotifier:  newConfirmationNotifier(cfg.Client, cfg.PollInterval),
		epochNotifier: newEpochNotifier(cfg.Client, cfg.PollInterval),
	}
}

// Start starts the chain source's background pollers.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true

	s.confNotifier.Start()
	s.epochNotifier.Start()

	return nil
}

// Stop stops the chain source's background pollers.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.confNotifier.Stop()
	s.epochNotifier.Stop()

	s.started = false

	return nil
}

// CurrentHeight returns the current blockchain height.
func (s *Source) CurrentHeight(ctx context.Context) (uint32, error) {
	if height, ok := s.cache.getHeight(); ok {
		return height, nil
	}

	height, err := s.cfg.Client.GetCurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("mempool: get current height: %w", err)
	}

	s.cache.setHeight(height)

	return height, nil
}

// GetBlockHash returns the hash of the block at the given height.
func (s *Source) GetBlockHash(ctx context.Context, height int64) (chainhash.Hash, error) {
	if hash, ok := s.cache.getBlockHash(uint32(height)); ok {
		return hash, nil
	}

	hashStr, err := s.cfg.Client.GetBlockHash(ctx, height)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("mempool: get block hash: %w", err)
	}

	hashBytes, err := hex.DecodeString(hashStr)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("mempool: decode block hash: %w", err)
	}

	hash, err := chainhash.NewHash(hashBytes)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("mempool: parse block hash: %w", err)
	}

	s.cache.setBlockHash(uint32(height), *hash)

	return *hash, nil
}

// GetBlockHeaderByHeight returns the block header for the given height.
func (s *Source) GetBlockHeaderByHeight(ctx context.Context, height int64) (*wire.BlockHeader, error) {
	hash, err := s.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}

	blockResp, err := s.cfg.Client.GetBlock(ctx, hash.String())
	if err != nil {
		return nil, fmt.Errorf("mempool: get block: %w", err)
	}

	prevHashBytes, err := hex.DecodeString(blockResp.PreviousBlockHash)
	if err != nil {
		return nil, fmt.Errorf("mempool: decode prev hash: %w", err)
	}
	prevHash, err := chainhash.NewHash(prevHashBytes)
	if err != nil {
		return nil, fmt.Errorf("mempool: parse prev hash: %w", err)
	}

	merkleBytes, err := hex.DecodeString(blockResp.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("mempool: decode merkle root: %w", err)
	}
	merkleRoot, err := chainhash.NewHash(merkleBytes)
	if err != nil {
		return nil, fmt.Errorf("mempool: parse merkle root: %w", err)
	}

	return &wire.BlockHeader{
		Version:    blockResp.Version,
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleRoot,
		Timestamp:  time.Unix(blockResp.Timestamp, 0),
		Bits:       blockResp.Bits,
		Nonce:      blockResp.Nonce,
	}, nil
}

// PublishTransaction broadcasts a transaction to the network. The
// wallet uses it, through its ChainSource interface, to broadcast
// deposit funding transactions.
func (s *Source) PublishTransaction(ctx context.Context, tx *wire.MsgTx) error {
	return s.cfg.Client.BroadcastTransaction(ctx, tx)
}

// EstimateFeeRateSatPerVByte estimates a fee rate in sat/vB for the
// given confirmation target, the unit onchain.BuildStaticDepositRefundTx
// and the deposit/transfer fee knobs expect.
func (s *Source) EstimateFeeRateSatPerVByte(ctx context.Context, confTarget uint32) (uint64, error) {
	fees, err := s.cfg.Client.GetFeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("mempool: get fee estimates: %w", err)
	}

	var feeRate int64
	switch {
	case confTarget <= 1:
		feeRate = fees.FastestFee
	case confTarget <= 3:
		feeRate = fees.HalfHourFee
	case confTarget <= 6:
		feeRate = fees.HourFee
	case confTarget <= 12:
		feeRate = fees.EconomyFee
	default:
		feeRate = fees.MinimumFee
	}
	if feeRate < 0 {
		feeRate = 0
	}

	return uint64(feeRate), nil
}

// TxConfirmations returns the number of confirmations txid currently
// has, or 0 if it is unconfirmed. A txid unknown to the backing API is
// reported as an error.
func (s *Source) TxConfirmations(ctx context.Context, txid chainhash.Hash) (uint32, error) {
	tx, err := s.cfg.Client.GetTransaction(ctx, txid.String())
	if err != nil {
		return 0, fmt.Errorf("mempool: get transaction: %w", err)
	}
	if !tx.Status.Confirmed {
		return 0, nil
	}

	height, err := s.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}

	confs := int64(height) - tx.Status.BlockHeight + 1
	if confs < 0 {
		confs = 0
	}
	return uint32(confs), nil
}

// VerifyBlock confirms that header is the block actually on-chain at
// height, guarding against a stale or forged header being used to
// short-circuit a confirmation wait.
func (s *Source) VerifyBlock(ctx context.Context, header wire.BlockHeader, height uint32) error {
	hash, err := s.GetBlockHash(ctx, int64(height))
	if err != nil {
		return fmt.Errorf("mempool: get block hash: %w", err)
	}

	headerHash := header.BlockHash()
	if !bytes.Equal(hash[:], headerHash[:]) {
		return fmt.Errorf("mempool: block hash mismatch: expected %s, got %s", hash, headerHash)
	}

	return nil
}

// RegisterConfirmation registers for a notification once txid reaches
// numConfs confirmations.
func (s *Source) RegisterConfirmation(ctx context.Context, txid chainhash.Hash, numConfs, heightHint uint32) (*ConfirmationEvent, error) {
	return s.confNotifier.Register(ctx, txid, numConfs, heightHint)
}

// RegisterBlockEpoch subscribes to new-block notifications.
func (s *Source) RegisterBlockEpoch(ctx context.Context) (chan int32, chan error) {
	return s.epochNotifier.Register(ctx)
}
