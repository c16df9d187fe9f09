// Package deposit implements cooperative deposit-tree creation and the
// static-deposit claim/refund flows: binding an on-chain
// UTXO to a leaf, validating the operator pool's proof of shared
// custody, and FROST-signing the root/refund transaction pair that
// anchors a new leaf.
package deposit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sparkwallet/spark/internal/sparklog"
	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/network"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/tree"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the deposit
// subsystem (tag "DPST").
func UseLogger(logger btclog.Logger) {
	log = logger
}

// RequestType discriminates the static-deposit claim/refund payload
// variants.
type RequestType uint8

const (
	RequestTypeFixed RequestType = iota
	RequestTypeMaxFee
	RequestTypeRefund
)

// Config wires a Deposit Service to its collaborators.
type Config struct {
	Network          network.Network
	Signer           Signer
	Pool             *operator.Pool
	Tree             tree.Service
	SSP              SSPClient
	RefundMinFeeSats uint64
}

func (c *Config) Validate() error {
	if c.Signer == nil {
		return fmt.Errorf("deposit: signer is required")
	}
	if c.Pool == nil {
		return fmt.Errorf("deposit: operator pool is required")
	}
	if c.Tree == nil {
		return fmt.Errorf("deposit: tree service is required")
	}
	if c.RefundMinFeeSats == 0 {
		c.RefundMinFeeSats = 300
	}
	return nil
}

// Signer is the subset of *signer.Signer's capability the deposit
// service needs, expressed as a narrow capability interface.
type Signer interface {
	DerivePublicKey(source keys.PrivateKeySource) (keys.PublicKey, error)
	GetStaticDepositPrivateKeySource(index uint32) keys.PrivateKeySource
	SignECDSA(msg []byte, source keys.PrivateKeySource) ([]byte, error)
	GenerateFrostSigningCommitments() (signer.FrostCommitment, signer.NonceHandle, error)
	SignFrost(req signer.FrostSignRequest) ([32]byte, error)
	AggregateFrost(req signer.FrostAggregateRequest) ([]byte, error)
}

// SSPClient is the thin SSP surface the static-deposit claim flow
// talks to.
type SSPClient interface {
	GetClaimDepositQuote(ctx context.Context, txid string, vout uint32) (StaticDepositQuote, error)
	ClaimStaticDeposit(ctx context.Context, req ClaimStaticDepositRequest) (ClaimStaticDepositResponse, error)
}

// StaticDepositQuote is an SSP-signed promise to credit an amount.
type StaticDepositQuote struct {
	CreditAmountSats uint64
	Signature        []byte // DER-encoded
}

type ClaimStaticDepositRequest struct {
	Txid             string
	Vout             uint32
	CreditAmountSats uint64
	DepositSecretKey []byte
	QuoteSignature   []byte
	UserSignature    []byte
}

type ClaimStaticDepositResponse struct {
	TransferID string
}

// Service implements cooperative deposit-tree creation and static
// deposit claim/refund.
type Service struct {
	cfg *Config
}

func New(cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg}, nil
}

// GenerateDepositAddress requests a cooperative deposit address from
// the pool, verifies its proof of possession, and returns it for the
// caller to fund on chain.
func (s *Service) GenerateDepositAddress(ctx context.Context, userSigningKey keys.PublicKey, leafID string) (operator.DepositAddressResponse, error) {
	resp, err := s.cfg.Pool.Coordinator().Client.GenerateDepositAddress(ctx, operator.DepositAddressRequest{
		UserSigningPublicKey: userSigningKey,
		LeafID:               leafID,
	})
	if err != nil {
		return operator.DepositAddressResponse{}, fmt.Errorf("deposit: generate address: %w", err)
	}

	if err := s.verifyDepositAddressProof(resp); err != nil {
		return operator.DepositAddressResponse{}, err
	}

	log.Debugf("generated deposit address %s for leaf %s", resp.Address, leafID)
	return resp, nil
}

// verifyDepositAddressProof checks both halves of the pool's proof:
// the Schnorr proof-of-possession under the derived taproot key, and
// an ECDSA signature from every non-coordinator operator over the
// address string hash.
func (s *Service) verifyDepositAddressProof(resp operator.DepositAddressResponse) error {
	addressHash := sha256.Sum256([]byte(resp.Address))

	popPubKey, err := resp.VerifyingPublicKey.ToBTCEC()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVerifyingKey, err)
	}
	sig, err := schnorr.ParseSignature(resp.ProofOfPossession)
	if err != nil || !sig.Verify(addressHash[:], popPubKey) {
		return ErrInvalidDepositAddressProof
	}

	for _, op := range s.cfg.Pool.NonCoordinatorOperators() {
		opSig, ok := resp.OperatorSignatures[op.Identifier]
		if !ok {
			return fmt.Errorf("%w: missing signature from operator %d", ErrInvalidDepositAddressProof, op.Identifier)
		}
		pubKey, err := op.IdentityPublicKey.ToBTCEC()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDepositAddressProof, err)
		}
		parsed, err := ecdsa.ParseDERSignature(opSig)
		if err != nil || !parsed.Verify(addressHash[:], pubKey) {
			return fmt.Errorf("%w: operator %d signature invalid", ErrInvalidDepositAddressProof, op.Identifier)
		}
	}

	return nil
}

// StartDepositTreeCreation verifies the funding output matches the
// deposit address, then builds and FROST-signs the root/refund
// transaction pair, finalizing the new tree node.
func (s *Service) StartDepositTreeCreation(
	ctx context.Context,
	leafID string,
	fundingTx *wire.MsgTx,
	vout uint32,
	depositAddrScript []byte,
	verifyingKey keys.PublicKey,
	rootTx, refundTx *wire.MsgTx,
) (tree.Node, error) {
	if int(vout) >= len(fundingTx.TxOut) {
		return tree.Node{}, ErrInvalidOutputIndex
	}
	out := fundingTx.TxOut[vout]
	if !bytes.Equal(out.PkScript, depositAddrScript) {
		return tree.Node{}, ErrNotADepositOutput
	}

	fundingBuf, err := serializeTx(fundingTx)
	if err != nil {
		return tree.Node{}, err
	}
	rootBuf, err := serializeTx(rootTx)
	if err != nil {
		return tree.Node{}, err
	}
	refundBuf, err := serializeTx(refundTx)
	if err != nil {
		return tree.Node{}, err
	}

	startResp, err := s.cfg.Pool.Coordinator().Client.StartDepositTreeCreation(ctx, operator.StartDepositTreeCreationRequest{
		LeafID:       leafID,
		FundingTxHex: hex.EncodeToString(fundingBuf),
		Vout:         vout,
		RootTxHex:    hex.EncodeToString(rootBuf),
		RefundTxHex:  hex.EncodeToString(refundBuf),
	})
	if err != nil {
		return tree.Node{}, fmt.Errorf("deposit: start tree creation: %w", err)
	}

	rootSigHash, err := sigHashFromTx(rootTx)
	if err != nil {
		return tree.Node{}, err
	}
	refundSigHash, err := sigHashFromTx(refundTx)
	if err != nil {
		return tree.Node{}, err
	}

	rootSig, err := s.cooperativeSign(rootSigHash, verifyingKey, keys.Derived(leafID), startResp.RootJobID, startResp.Participants)
	if err != nil {
		return tree.Node{}, err
	}
	refundSig, err := s.cooperativeSign(refundSigHash, verifyingKey, keys.Derived(leafID), startResp.RefundJobID, startResp.Participants)
	if err != nil {
		return tree.Node{}, err
	}

	finalizeResp, err := s.cfg.Pool.Coordinator().Client.FinalizeNodeSignatures(ctx, operator.FinalizeNodeSignaturesRequest{
		Intent: operator.IntentCreation,
		Signatures: map[string][]byte{
			startResp.RootJobID:   rootSig,
			startResp.RefundJobID: refundSig,
		},
	})
	if err != nil {
		return tree.Node{}, fmt.Errorf("deposit: finalize node signatures: %w", err)
	}
	if len(finalizeResp.NodeIDs) == 0 {
		return tree.Node{}, ErrMissingTreeSignatures
	}

	node := tree.Node{
		ID:                 finalizeResp.NodeIDs[0],
		TreeID:             startResp.TreeID,
		Value:              uint64(rootTx.TxOut[0].Value),
		NodeTx:             rootTx,
		RefundTx:           refundTx,
		Vout:               0,
		VerifyingPublicKey: verifyingKey,
		Status:             tree.StatusAvailable,
	}
	if err := s.cfg.Tree.InsertLeaves(ctx, []tree.Node{node}); err != nil {
		return tree.Node{}, fmt.Errorf("deposit: persist new leaf: %w", err)
	}

	return node, nil
}

// cooperativeSign runs one FROST signing round to completion for a
// single job: the user generates a nonce commitment, produces its
// partial signature share over message, and aggregates it against the
// operator commitments the coordinator already returned for jobID.
func (s *Service) cooperativeSign(
	message [32]byte,
	verifyingKey keys.PublicKey,
	secret keys.PrivateKeySource,
	jobID string,
	participants []operator.ParticipantInfo,
) ([]byte, error) {
	const selfIdentifier = 1

	commitment, handle, err := s.cfg.Signer.GenerateFrostSigningCommitments()
	if err != nil {
		return nil, fmt.Errorf("deposit: generate frost commitment: %w", err)
	}

	all := []signer.ParticipantCommitment{{Identifier: selfIdentifier, Commitment: commitment}}
	for _, p := range participants {
		if p.JobID != jobID {
			continue
		}
		all = append(all, signer.ParticipantCommitment{
			Identifier: p.Identifier,
			Commitment: signer.FrostCommitment{Hiding: p.Commitment.Hiding, Binding: p.Commitment.Binding},
		})
	}
	if len(all) == 1 {
		return nil, fmt.Errorf("deposit: no operator participants returned for job %s", jobID)
	}

	share, err := s.cfg.Signer.SignFrost(signer.FrostSignRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		Secret:          secret,
		SelfIdentifier:  selfIdentifier,
		NonceHandle:     handle,
		AllParticipants: all,
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: frost sign job %s: %w", jobID, err)
	}

	sig, err := s.cfg.Signer.AggregateFrost(signer.FrostAggregateRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		AllParticipants: all,
		Shares:          map[uint32][32]byte{selfIdentifier: share},
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: aggregate frost job %s: %w", jobID, err)
	}
	return sig, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("deposit: serialize tx: %w", err)
	}
	return buf.Bytes(), nil
}

func sigHashFromTx(tx *wire.MsgTx) ([32]byte, error) {
	buf, err := serializeTx(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return chainhash.DoubleHashH(buf), nil
}

// ClaimStaticDeposit runs the static deposit claim flow:
// fetch a quote, build the canonical claim payload, sign it with the
// identity key, and submit it to the SSP.
func (s *Service) ClaimStaticDeposit(ctx context.Context, txid string, vout uint32) (ClaimStaticDepositResponse, error) {
	quote, err := s.cfg.SSP.GetClaimDepositQuote(ctx, txid, vout)
	if err != nil {
		return ClaimStaticDepositResponse{}, fmt.Errorf("deposit: get claim quote: %w", err)
	}

	payload, err := s.claimPayload(txid, vout, RequestTypeFixed, quote.CreditAmountSats, quote.Signature)
	if err != nil {
		return ClaimStaticDepositResponse{}, err
	}

	userSig, err := s.cfg.Signer.SignECDSA(payload, keys.Identity())
	if err != nil {
		return ClaimStaticDepositResponse{}, fmt.Errorf("deposit: sign claim payload: %w", err)
	}

	resp, err := s.cfg.SSP.ClaimStaticDeposit(ctx, ClaimStaticDepositRequest{
		Txid:             txid,
		Vout:             vout,
		CreditAmountSats: quote.CreditAmountSats,
		QuoteSignature:   quote.Signature,
		UserSignature:    userSig,
	})
	if err != nil {
		return ClaimStaticDepositResponse{}, fmt.Errorf("deposit: claim static deposit: %w", err)
	}
	return resp, nil
}

// claimPayload builds the canonical static-deposit claim payload:
//
//	"claim_static_deposit" || network_name || txid_hex || vout_le_u32
//	|| request_type_u8 || credit_amount_sats_le_u64 || signing_payload
func (s *Service) claimPayload(txid string, vout uint32, reqType RequestType, creditSats uint64, signingPayload []byte) ([]byte, error) {
	networkName, err := networkName(s.cfg.Network)
	if err != nil {
		return nil, err
	}

	var buf []byte
	buf = append(buf, "claim_static_deposit"...)
	buf = append(buf, networkName...)
	buf = append(buf, []byte(txid)...)

	var voutLE [4]byte
	binary.LittleEndian.PutUint32(voutLE[:], vout)
	buf = append(buf, voutLE[:]...)

	buf = append(buf, byte(reqType))

	var creditLE [8]byte
	binary.LittleEndian.PutUint64(creditLE[:], creditSats)
	buf = append(buf, creditLE[:]...)

	buf = append(buf, signingPayload...)
	return buf, nil
}

func networkName(n network.Network) (string, error) {
	switch n {
	case network.Mainnet:
		return "mainnet", nil
	case network.Testnet:
		return "testnet", nil
	case network.Regtest:
		return "regtest", nil
	case network.Signet:
		return "signet", nil
	default:
		return "", fmt.Errorf("deposit: unknown network %d", n)
	}
}

// RefundStaticDeposit builds and FROST-signs an on-chain refund of a
// static deposit UTXO.
func (s *Service) RefundStaticDeposit(
	ctx context.Context,
	staticDepositIndex uint32,
	txid string,
	vout uint32,
	utxoValueSats uint64,
	feeSats uint64,
	refundTx *wire.MsgTx,
) ([]byte, error) {
	if feeSats <= s.cfg.RefundMinFeeSats {
		return nil, ErrInsufficientRefundFee
	}
	credit := utxoValueSats - feeSats
	if credit == 0 {
		return nil, ErrZeroRefundCredit
	}

	sigHash, err := sigHashFromTx(refundTx)
	if err != nil {
		return nil, fmt.Errorf("deposit: compute refund sighash: %w", err)
	}

	payload, err := s.claimPayload(txid, vout, RequestTypeRefund, credit, sigHash[:])
	if err != nil {
		return nil, err
	}
	if _, err := s.cfg.Signer.SignECDSA(payload, keys.Identity()); err != nil {
		return nil, fmt.Errorf("deposit: sign refund claim payload: %w", err)
	}

	secretSource := s.cfg.Signer.GetStaticDepositPrivateKeySource(staticDepositIndex)
	verifyingKey, err := s.cfg.Signer.DerivePublicKey(secretSource)
	if err != nil {
		return nil, fmt.Errorf("deposit: derive static deposit key: %w", err)
	}

	swapResp, err := s.cfg.Pool.Coordinator().Client.InitiateUtxoSwap(ctx, operator.InitiateUtxoSwapRequest{
		Txid: txid,
		Vout: vout,
		SigningJob: operator.SigningJob{
			JobID:        "refund",
			LeafID:       staticDepositNodeID(staticDepositIndex),
			VerifyingKey: verifyingKey,
			SigHash:      sigHash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: initiate utxo swap: %w", err)
	}

	sig, err := s.cooperativeSign(sigHash, verifyingKey, secretSource, "refund", swapResp.Participants)
	if err != nil {
		return nil, fmt.Errorf("deposit: refund: %w", err)
	}
	return sig, nil
}

func staticDepositNodeID(index uint32) string {
	return fmt.Sprintf("static-deposit/%d", index)
}
