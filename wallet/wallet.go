package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sparkwallet/spark/address"
	"github.com/sparkwallet/spark/deposit"
	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/onchain"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/optimizer"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/storage"
	"github.com/sparkwallet/spark/syncengine"
	"github.com/sparkwallet/spark/transfer"
	"github.com/sparkwallet/spark/tree"
)

// Wallet is the composition root wiring a signer, the operator pool,
// and the leaf, transfer, optimizer, and sync-engine services into a
// single self-custodial client, the way a caller otherwise wiring
// each package's Config by hand would.
type Wallet struct {
	cfg *Config

	signer   *signer.Signer
	tree     tree.Service
	deposit  *deposit.Service
	transfer *transfer.Service
	optimize *optimizer.Optimizer
	sync     *syncengine.Engine
}

// New builds a Wallet from cfg, constructing the signer from cfg.Seed
// and wiring every collaborator package together.
func New(cfg *Config) (*Wallet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}

	netParams, err := cfg.Network.ChainParams()
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}

	sgnr, err := signer.New(&signer.Config{
		NetParams:    netParams,
		Seed:         cfg.Seed,
		NodeKeyStore: cfg.NodeKeyStore,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: build signer: %w", err)
	}

	depositSvc, err := deposit.New(&deposit.Config{
		Network:          cfg.Network,
		Signer:           sgnr,
		Pool:             cfg.Pool,
		Tree:             cfg.Tree,
		SSP:              cfg.SSP,
		RefundMinFeeSats: cfg.RefundMinFeeSats,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: build deposit service: %w", err)
	}

	transferSvc, err := transfer.New(&transfer.Config{
		Signer:          sgnr,
		Pool:            cfg.Pool,
		Tree:            cfg.Tree,
		RefundTxBuilder: onchain.NewRefundTxBuilder(),
		Threshold:       cfg.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: build transfer service: %w", err)
	}

	optimizeSvc, err := optimizer.New(&optimizer.Config{
		Swapper: transferSvc,
		Tree:    cfg.Tree,
		Options: cfg.Optimization,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: build optimizer: %w", err)
	}

	syncSvc, err := syncengine.New(&syncengine.Config{
		Client:   cfg.SyncClient,
		Storage:  cfg.Storage,
		Signer:   sgnr,
		Handler:  newSyncHandler(cfg.Storage),
		ClientID: cfg.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: build sync engine: %w", err)
	}

	return &Wallet{
		cfg:      cfg,
		signer:   sgnr,
		tree:     cfg.Tree,
		deposit:  depositSvc,
		transfer: transferSvc,
		optimize: optimizeSvc,
		sync:     syncSvc,
	}, nil
}

// IdentityPublicKey returns the wallet's stable identity key.
func (w *Wallet) IdentityPublicKey() keys.PublicKey {
	return w.signer.IdentityPublicKey()
}

// GenerateDepositAddress requests a fresh cooperative deposit address
// for leafID from the operator pool.
func (w *Wallet) GenerateDepositAddress(ctx context.Context, userSigningKey keys.PublicKey, leafID string) (operator.DepositAddressResponse, error) {
	return w.deposit.GenerateDepositAddress(ctx, userSigningKey, leafID)
}

// CompleteDeposit builds the root/refund transaction pair for a
// confirmed funding transaction and registers the new leaf with the
// operator pool, given resp from a prior GenerateDepositAddress call.
func (w *Wallet) CompleteDeposit(ctx context.Context, leafID string, fundingTx *wire.MsgTx, vout uint32, resp operator.DepositAddressResponse) (tree.Node, error) {
	netParams, err := w.cfg.Network.ChainParams()
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: %w", err)
	}
	depositScript, err := onchain.DecodeAddressScript(resp.Address, netParams)
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: %w", err)
	}
	if int(vout) >= len(fundingTx.TxOut) {
		return tree.Node{}, ErrFundingOutputNotFound
	}

	fundingOutpoint, err := onchain.NodeOutpoint(fundingTx, vout)
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: %w", err)
	}
	fundingValue := fundingTx.TxOut[vout].Value

	rootTx, err := onchain.BuildRootTx(fundingOutpoint, fundingValue, resp.VerifyingPublicKey)
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: build root tx: %w", err)
	}
	rootOutpoint, err := onchain.NodeOutpoint(rootTx, 0)
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: %w", err)
	}
	refundTx, err := onchain.BuildRefundTx(rootOutpoint, rootTx.TxOut[0].Value, resp.UserSigningPublicKey, onchain.InitialRefundSequence)
	if err != nil {
		return tree.Node{}, fmt.Errorf("wallet: build refund tx: %w", err)
	}

	return w.deposit.StartDepositTreeCreation(ctx, leafID, fundingTx, vout, depositScript, resp.VerifyingPublicKey, rootTx, refundTx)
}

// BroadcastFundingTransaction publishes fundingTx through the
// configured chain source, for callers that want the wallet rather
// than their own transport to handle broadcast.
func (w *Wallet) BroadcastFundingTransaction(ctx context.Context, fundingTx *wire.MsgTx) error {
	if w.cfg.Chain == nil {
		return ErrChainSourceRequired
	}
	return w.cfg.Chain.PublishTransaction(ctx, fundingTx)
}

// WaitForDepositConfirmation blocks until txid reaches minConfs
// confirmations, polling the configured chain source at
// Config.DepositPollInterval, so a caller can delay CompleteDeposit
// until the funding output is safely buried.
func (w *Wallet) WaitForDepositConfirmation(ctx context.Context, txid chainhash.Hash, minConfs uint32) error {
	if w.cfg.Chain == nil {
		return ErrChainSourceRequired
	}

	for {
		confs, err := w.cfg.Chain.TxConfirmations(ctx, txid)
		if err != nil {
			return fmt.Errorf("wallet: check deposit confirmations: %w", err)
		}
		if confs >= minConfs {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.DepositPollInterval):
		}
	}
}

// ClaimStaticDeposit runs the static-deposit claim flow for a
// previously seen, confirmed UTXO.
func (w *Wallet) ClaimStaticDeposit(ctx context.Context, txid string, vout uint32) (deposit.ClaimStaticDepositResponse, error) {
	return w.deposit.ClaimStaticDeposit(ctx, txid, vout)
}

// SendLeaves transfers leafIDs to receiverPublicKey by key rotation.
func (w *Wallet) SendLeaves(ctx context.Context, receiverPublicKey keys.PublicKey, leafIDs []string) (transfer.Transfer, error) {
	return w.transfer.SendLeaves(ctx, receiverPublicKey, leafIDs)
}

// ClaimTransfer completes a pending incoming transfer.
func (w *Wallet) ClaimTransfer(ctx context.Context, pending transfer.Transfer) (transfer.Transfer, error) {
	return w.transfer.ClaimTransfer(ctx, pending)
}

// PendingTransfers lists this wallet's unclaimed incoming transfers.
func (w *Wallet) PendingTransfers(ctx context.Context) ([]transfer.Transfer, error) {
	return w.transfer.PendingTransfers(ctx)
}

// Swap executes an atomic leaf-denomination swap against the pool.
func (w *Wallet) Swap(ctx context.Context, req transfer.SwapRequest) (transfer.SwapResult, error) {
	return w.transfer.Swap(ctx, req)
}

// ShouldOptimize reports whether the wallet's current leaf inventory
// warrants an optimization run.
func (w *Wallet) ShouldOptimize(ctx context.Context) (bool, error) {
	return w.optimize.ShouldOptimize(ctx)
}

// StartOptimization runs (or forces) one leaf-denomination
// optimization pass.
func (w *Wallet) StartOptimization(ctx context.Context, force bool) error {
	return w.optimize.Start(ctx, force)
}

// CancelOptimization interrupts an in-progress optimization run.
func (w *Wallet) CancelOptimization() error {
	return w.optimize.Cancel()
}

// StartSync begins the background sync engine loops.
func (w *Wallet) StartSync(ctx context.Context) error {
	return w.sync.Start(ctx)
}

// StopSync halts the background sync engine loops.
func (w *Wallet) StopSync() error {
	return w.sync.Stop()
}

// EncodeAddress renders a plain (non-invoice) Spark address for this
// wallet's identity key.
func (w *Wallet) EncodeAddress() (string, error) {
	addr := address.New(w.signer.IdentityPublicKey(), w.cfg.Network, nil)
	return addr.EncodeAddress()
}

// EncodeInvoice renders a signed Spark invoice string carrying inv.
func (w *Wallet) EncodeInvoice(inv address.Invoice) (string, error) {
	addr := address.New(w.signer.IdentityPublicKey(), w.cfg.Network, &inv)
	return addr.EncodeInvoice(w.signer)
}

// ParseAddress decodes a bech32m Spark address or invoice string.
func (w *Wallet) ParseAddress(s string) (address.SparkAddress, error) {
	return address.Parse(s)
}

// ListPayments pages through locally recorded payments.
func (w *Wallet) ListPayments(ctx context.Context, filter storage.PaymentFilter, paging storage.Paging) ([]storage.Payment, error) {
	return w.cfg.Storage.ListPayments(ctx, filter, paging)
}

// GetPayment looks up one locally recorded payment by id.
func (w *Wallet) GetPayment(ctx context.Context, id string) (*storage.Payment, error) {
	return w.cfg.Storage.GetPaymentByID(ctx, id)
}
