package transfer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/tree"
)

// claimRefundSequence is the sequence a receiver's newly rotated
// refund transaction carries; shorter than sendRefundSequence so a
// leaf's timelock strictly tightens with each hop.
const claimRefundSequence uint32 = 0xfffffffe

// ClaimTransfer runs the full claim-path state machine for a pending
// transfer: verify the sender's per-leaf signatures, rotate each
// leaf's key a second time to a key of the receiver's own choosing,
// submit the claim tweaks and refund signatures, and finalize. It
// retries with exponential backoff per Config.Claim.
func (s *Service) ClaimTransfer(ctx context.Context, pending Transfer) (Transfer, error) {
	claimed, err := s.ClaimTransferWithoutFinalizeSignatures(ctx, pending)
	if err != nil {
		return Transfer{}, err
	}

	if err := s.cfg.Pool.Coordinator().Client.FinalizeTransfer(ctx, pending.ID); err != nil {
		return Transfer{}, fmt.Errorf("transfer: finalize transfer %s: %w", pending.ID, err)
	}
	claimed.Status = StatusCompleted
	return claimed, nil
}

// ClaimTransferWithoutFinalizeSignatures performs steps 1-5 of the
// claim path (tweak keys + sign refunds) but stops short of
// FinalizeTransfer, the separate step the supplemented claim surface
// exposes so a caller can retry finalize independently of the more
// expensive tweak/sign round.
func (s *Service) ClaimTransferWithoutFinalizeSignatures(ctx context.Context, pending Transfer) (Transfer, error) {
	delay := s.cfg.Claim.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= s.cfg.Claim.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warnf("retrying claim for transfer %s (attempt %d): %v", pending.ID, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return Transfer{}, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.cfg.Claim.Factor)
			if delay > s.cfg.Claim.MaxDelay {
				delay = s.cfg.Claim.MaxDelay
			}
		}

		claimed, err := s.claimOnce(ctx, pending)
		if err == nil {
			return claimed, nil
		}
		lastErr = err
	}

	return Transfer{}, fmt.Errorf("%w: %v", ErrClaimRetriesExhausted, lastErr)
}

func (s *Service) claimOnce(ctx context.Context, pending Transfer) (Transfer, error) {
	if len(pending.Leaves) == 0 {
		return Transfer{}, ErrNoLeavesToClaim
	}

	senderKey, err := pending.SenderPublicKey.ToBTCEC()
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: parse sender key: %w", err)
	}

	operators := s.cfg.Pool.AllOperators()
	perOperatorTweaks := make(map[uint32]map[string][]byte, len(operators))
	for _, op := range operators {
		perOperatorTweaks[op.Identifier] = make(map[string][]byte, len(pending.Leaves))
	}
	signingJobs := make([]operator.SigningJob, 0, len(pending.Leaves))
	claimedLeaves := make([]TransferLeaf, 0, len(pending.Leaves))

	for _, leaf := range pending.Leaves {
		// Step 1: verify the sender's authorization signature over
		// this leaf before acting on its secret_cipher.
		authPayload := leafAuthPayload(leaf.LeafID, pending.ID, leaf.SecretCipher)
		digest := sha256.Sum256(authPayload)
		sig, err := ecdsa.ParseDERSignature(leaf.SenderSignature)
		if err != nil || !sig.Verify(digest[:], senderKey) {
			return Transfer{}, fmt.Errorf("%w: leaf %s", ErrSenderSignatureInvalid, leaf.LeafID)
		}

		// Step 2: decrypt the new signing key and re-seal it under this
		// wallet's own identity key, holding it as an Encrypted source.
		newKeySource, err := s.cfg.Signer.EciesDecrypt(leaf.SecretCipher, keys.Identity())
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: decrypt secret cipher for leaf %s: %w", leaf.LeafID, err)
		}
		sealed, err := s.cfg.Signer.EciesEncrypt(newKeySource, s.cfg.Signer.IdentityPublicKey())
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: seal received key for leaf %s: %w", leaf.LeafID, err)
		}
		receivedKeySource := keys.Encrypted(sealed)

		// Step 3: rotate a second time, to a key this wallet derives
		// itself, so the leaf's ownership no longer depends on any
		// ciphertext the sender produced.
		finalNodeID := fmt.Sprintf("%s/claim/%s", leaf.LeafID, pending.ID)
		finalKeySource := keys.Derived(finalNodeID)
		tweak, err := s.cfg.Signer.SubtractPrivateKeys(receivedKeySource, finalKeySource)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: compute claim tweak for leaf %s: %w", leaf.LeafID, err)
		}

		shares, err := s.cfg.Signer.SplitSecretWithProofs(tweak, s.cfg.Threshold, uint32(len(operators)))
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: split claim tweak for leaf %s: %w", leaf.LeafID, err)
		}
		pubkeyShares, err := publicShareMap(shares)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: leaf %s: %w", leaf.LeafID, err)
		}

		newVerifyingKey, err := s.cfg.Signer.DerivePublicKey(finalKeySource)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: derive final key for leaf %s: %w", leaf.LeafID, err)
		}

		// Every operator's share carries the same Feldman commitments
		// (only the per-operator Value differs), so a single signature
		// over leaf_id || transfer_id || commitments authorizes all of
		// them without needing a distinct signature per operator.
		commitPayload := commitmentAuthPayload(leaf.LeafID, pending.ID, shares[0].Commitments)
		claimSig, err := s.cfg.Signer.SignECDSA(commitPayload, keys.Identity())
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: sign claim tweak for leaf %s: %w", leaf.LeafID, err)
		}

		for _, share := range shares {
			tweakForOperator := ClaimLeafKeyTweak{
				LeafID:            leaf.LeafID,
				SecretShareTweak:  share,
				PubkeySharesTweak: pubkeyShares,
				Signature:         claimSig,
			}
			perOperatorTweaks[share.Identifier][leaf.LeafID] = encodeClaimLeafTweak(tweakForOperator)
		}

		refundTemplate, err := s.cfg.RefundTxBuilder.BuildRefundTx(leaf.Leaf, s.cfg.Signer.IdentityPublicKey(), claimRefundSequence)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: build claim refund tx for leaf %s: %w", leaf.LeafID, err)
		}
		jobID := fmt.Sprintf("transfer-claim-refund/%s/%s", pending.ID, leaf.LeafID)
		signingJobs = append(signingJobs, operator.SigningJob{
			JobID:        jobID,
			LeafID:       leaf.LeafID,
			VerifyingKey: newVerifyingKey,
			SigHash:      refundTemplate.SigHash,
		})

		claimedLeaves = append(claimedLeaves, TransferLeaf{
			LeafID: leaf.LeafID,
			Leaf: tree.Node{
				ID:                 leaf.LeafID,
				TreeID:             leaf.Leaf.TreeID,
				Value:              leaf.Leaf.Value,
				VerifyingPublicKey: newVerifyingKey,
				Status:             tree.StatusAvailable,
			},
		})
	}

	// Step 4: submit each operator's claim tweaks.
	for _, op := range operators {
		if err := s.cfg.Pool.Coordinator().Client.ClaimTransferTweakKeys(ctx, operator.ClaimTransferTweakKeysRequest{
			TransferID:    pending.ID,
			OperatorID:    op.Identifier,
			LeafKeyTweaks: perOperatorTweaks[op.Identifier],
		}); err != nil {
			return Transfer{}, fmt.Errorf("transfer: claim tweak keys for operator %d: %w", op.Identifier, err)
		}
	}

	// Step 5: request partial signatures for the newly rotated
	// refunds and aggregate them locally.
	operatorShares, err := s.cfg.Pool.Coordinator().Client.ClaimTransferSignRefunds(ctx, operator.ClaimTransferSignRefundsRequest{
		TransferID:  pending.ID,
		SigningJobs: signingJobs,
	})
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: claim sign refunds: %w", err)
	}

	for _, job := range signingJobs {
		sig, ok := operatorShares[job.JobID]
		if !ok {
			return Transfer{}, fmt.Errorf("transfer: no aggregated refund signature for job %s", job.JobID)
		}
		if err := verifyRefundSignature(job, sig); err != nil {
			return Transfer{}, err
		}
	}

	if err := s.cfg.Tree.InsertLeaves(ctx, nodesOf(claimedLeaves)); err != nil {
		return Transfer{}, fmt.Errorf("transfer: persist claimed leaves: %w", err)
	}

	return Transfer{
		ID:                pending.ID,
		SenderPublicKey:   pending.SenderPublicKey,
		ReceiverPublicKey: s.cfg.Signer.IdentityPublicKey(),
		Status:            StatusReceiverKeyTweaked,
		Leaves:            claimedLeaves,
	}, nil
}

func nodesOf(leaves []TransferLeaf) []tree.Node {
	out := make([]tree.Node, len(leaves))
	for i, l := range leaves {
		out[i] = l.Leaf
	}
	return out
}

// verifyRefundSignature confirms the aggregated refund signature the
// operators returned actually validates against the job's own
// verifying key before it is trusted as this leaf's new refund.
func verifyRefundSignature(job operator.SigningJob, sig []byte) error {
	vk, err := job.VerifyingKey.ToBTCEC()
	if err != nil {
		return fmt.Errorf("transfer: parse verifying key for job %s: %w", job.JobID, err)
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("transfer: parse refund signature for job %s: %w", job.JobID, err)
	}
	if !parsed.Verify(job.SigHash[:], vk) {
		return fmt.Errorf("transfer: refund signature for job %s does not verify", job.JobID)
	}
	return nil
}

// encodeClaimLeafTweak deterministically serializes a single
// ClaimLeafKeyTweak, reusing the same field layout as the send-path
// per-leaf encoding (minus the fields a claim tweak does not carry).
func encodeClaimLeafTweak(t ClaimLeafKeyTweak) []byte {
	var out []byte
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
	out = appendBytes(out, t.Signature)
	return out
}
