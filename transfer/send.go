package transfer

import (
	"context"
	"fmt"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/tree"
)

// sendRefundSequence is the relative-timelock sequence encoded into a
// transfer's rotated refund transaction; concrete
// timelock policy belongs to the onchain package's RefundTxBuilder,
// this value only distinguishes "pending transfer" refunds from a
// leaf's original, longer-delay refund.
const sendRefundSequence uint32 = 0xfffffffd

// Service implements the transfer send/claim state machine, the
// building block the leaf optimizer's swap primitive also drives.
type Service struct {
	cfg *Config
}

func New(cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg}, nil
}

// SendLeaves executes the send-path state machine for leafIDs,
// reassigning them to receiverPublicKey.
func (s *Service) SendLeaves(ctx context.Context, receiverPublicKey keys.PublicKey, leafIDs []string) (Transfer, error) {
	if len(leafIDs) == 0 {
		return Transfer{}, ErrEmptyLeafSet
	}

	available, err := s.cfg.Tree.ListLeaves(ctx)
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: list leaves: %w", err)
	}
	byID := make(map[string]tree.Node, len(available))
	for _, l := range available {
		byID[l.ID] = l
	}
	leaves := make([]tree.Node, 0, len(leafIDs))
	for _, id := range leafIDs {
		leaf, ok := byID[id]
		if !ok {
			return Transfer{}, fmt.Errorf("%w: %s", ErrUnknownTransfer, id)
		}
		leaves = append(leaves, leaf)
	}

	reservation, err := s.cfg.Tree.SelectLeaves(ctx, leafIDs, tree.PurposeTransfer)
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: reserve leaves: %w", err)
	}

	result, err := s.sendReservedLeaves(ctx, receiverPublicKey, leaves)
	if err != nil {
		s.cancelReservation(ctx, reservation.ID)
		return Transfer{}, err
	}

	if err := s.cfg.Tree.FinalizeReservation(ctx, reservation.ID); err != nil {
		return Transfer{}, fmt.Errorf("transfer: finalize reservation: %w", err)
	}
	return result, nil
}

// SendReservedLeaves runs the send-path protocol for leaves the caller has already reserved by some other
// means — the leaf optimizer holds a single broad Optimization
// reservation across an entire run and hands this method the exact
// nodes each round gives up, rather than letting SendLeaves reserve
// them a second time.
func (s *Service) SendReservedLeaves(ctx context.Context, receiverPublicKey keys.PublicKey, leaves []tree.Node) (Transfer, error) {
	if len(leaves) == 0 {
		return Transfer{}, ErrEmptyLeafSet
	}
	return s.sendReservedLeaves(ctx, receiverPublicKey, leaves)
}

func (s *Service) cancelReservation(ctx context.Context, reservationID string) {
	if err := s.cfg.Tree.CancelReservation(ctx, reservationID); err != nil {
		log.Warnf("cancel reservation %s: %v", reservationID, err)
	}
}

func (s *Service) sendReservedLeaves(ctx context.Context, receiverPublicKey keys.PublicKey, leaves []tree.Node) (Transfer, error) {
	transferID := newTransferID()
	identity := s.cfg.Signer.IdentityPublicKey()

	operators := s.cfg.Pool.AllOperators()
	perOperatorTweaks := make(map[uint32][]SendLeafKeyTweak, len(operators))
	transferLeaves := make([]TransferLeaf, 0, len(leaves))

	for _, leaf := range leaves {
		leafID := leaf.ID

		// Step 1: prepare key tweaks — mint a fresh signing key the
		// leaf rotates to, and the scalar tweak from the leaf's
		// current key to it.
		oldKeySource := keys.Derived(leafID)
		newKeySource, err := s.cfg.Signer.GenerateEncryptedKey()
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: generate new signing key for leaf %s: %w", leafID, err)
		}
		tweak, err := s.cfg.Signer.SubtractPrivateKeys(oldKeySource, newKeySource)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: compute tweak for leaf %s: %w", leafID, err)
		}

		// Step 2: split the tweak across the operator pool and seal
		// the new signing key for the receiver.
		shares, err := s.cfg.Signer.SplitSecretWithProofs(tweak, s.cfg.Threshold, uint32(len(operators)))
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: split tweak for leaf %s: %w", leafID, err)
		}
		secretCipher, err := s.cfg.Signer.ReencryptForRecipient(newKeySource, receiverPublicKey)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: seal secret cipher for leaf %s: %w", leafID, err)
		}

		authPayload := leafAuthPayload(leafID, transferID, secretCipher)
		signature, err := s.cfg.Signer.SignECDSA(authPayload, keys.Identity())
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: sign leaf authorization for %s: %w", leafID, err)
		}

		pubkeyShares, err := publicShareMap(shares)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: leaf %s: %w", leafID, err)
		}

		// Step 3: sign the rotated refund transaction, paying to the
		// receiver's identity key.
		refundTemplate, err := s.cfg.RefundTxBuilder.BuildRefundTx(leaf, receiverPublicKey, sendRefundSequence)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: build refund tx for leaf %s: %w", leafID, err)
		}
		refundJobID := fmt.Sprintf("transfer-refund/%s/%s", transferID, leafID)
		refundSig, err := s.cooperativeSign(ctx, refundTemplate.SigHash, leaf.VerifyingPublicKey, oldKeySource, refundJobID)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: sign refund for leaf %s: %w", leafID, err)
		}

		for _, share := range shares {
			perOperatorTweaks[share.Identifier] = append(perOperatorTweaks[share.Identifier], SendLeafKeyTweak{
				LeafID:            leafID,
				SecretShareTweak:  share,
				PubkeySharesTweak: pubkeyShares,
				SecretCipher:      secretCipher,
				Signature:         signature,
				RefundSignature:   refundSig,
			})
		}

		transferLeaves = append(transferLeaves, TransferLeaf{
			LeafID:          leafID,
			Leaf:            leaf,
			SenderSignature: signature,
			SecretCipher:    secretCipher,
		})
	}

	// Step 4: encrypt each operator's slice of per-leaf tweaks under
	// that operator's own identity key.
	keyTweakPackage := make(map[uint32][]byte, len(operators))
	for _, op := range operators {
		encoded := encodeLeafTweaks(perOperatorTweaks[op.Identifier])
		ciphertext, err := s.cfg.Signer.EciesEncrypt(encoded, op.IdentityPublicKey)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer: seal tweak package for operator %d: %w", op.Identifier, err)
		}
		keyTweakPackage[op.Identifier] = ciphertext
	}

	// Step 5: sign the canonical transfer-package payload.
	leafIDs := make([]string, len(leaves))
	for i, l := range leaves {
		leafIDs[i] = l.ID
	}
	packagePayload, err := packageSigningPayload(transferID, keyTweakPackage)
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: %w", err)
	}
	userSignature, err := s.cfg.Signer.SignECDSA(packagePayload, keys.Identity())
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: sign transfer package: %w", err)
	}

	// Step 6: start the transfer with the coordinator.
	startResp, err := s.cfg.Pool.Coordinator().Client.StartTransfer(ctx, operator.StartTransferRequest{
		TransferID:        transferID,
		OwnerPublicKey:    identity,
		ReceiverPublicKey: receiverPublicKey,
		LeafIDs:           leafIDs,
		KeyTweakPackage:   keyTweakPackage,
		UserSignature:     userSignature,
	})
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: start transfer: %w", err)
	}

	log.Infof("started transfer %s for %d leaves to %x", startResp.TransferID, len(leaves), receiverPublicKey.Bytes())

	return Transfer{
		ID:                startResp.TransferID,
		SenderPublicKey:   identity,
		ReceiverPublicKey: receiverPublicKey,
		Status:            StatusSenderKeyTweaked,
		Leaves:            transferLeaves,
	}, nil
}

// publicShareMap derives each share's public point, keyed by
// identifier, so every operator can cross-check the others' shares
// without seeing their secret values.
func publicShareMap(shares []signer.VerifiableShare) (map[uint32][33]byte, error) {
	out := make(map[uint32][33]byte, len(shares))
	for _, share := range shares {
		point, err := share.PublicPoint()
		if err != nil {
			return nil, fmt.Errorf("derive public share point for identifier %d: %w", share.Identifier, err)
		}
		var compressed [33]byte
		copy(compressed[:], point.SerializeCompressed())
		out[share.Identifier] = compressed
	}
	return out, nil
}

// cooperativeSign runs one FROST signing round to completion: the
// wallet generates its own nonce commitment, fetches every operator's
// commitment for jobID directly from that operator's own client, and
// aggregates the combined shares into a single signature over message.
func (s *Service) cooperativeSign(ctx context.Context, message [32]byte, verifyingKey keys.PublicKey, secret keys.PrivateKeySource, jobID string) ([]byte, error) {
	const selfIdentifier = 1

	commitment, handle, err := s.cfg.Signer.GenerateFrostSigningCommitments()
	if err != nil {
		return nil, fmt.Errorf("transfer: generate frost commitment: %w", err)
	}

	all := []signer.ParticipantCommitment{{Identifier: selfIdentifier, Commitment: commitment}}
	for _, op := range s.cfg.Pool.AllOperators() {
		bundles, err := op.Client.GetSigningCommitments(ctx, []string{jobID})
		if err != nil {
			return nil, fmt.Errorf("transfer: get signing commitments from operator %d: %w", op.Identifier, err)
		}
		bundle, ok := bundles[jobID]
		if !ok {
			return nil, fmt.Errorf("transfer: operator %d returned no commitment for job %s", op.Identifier, jobID)
		}
		all = append(all, signer.ParticipantCommitment{
			Identifier: op.Identifier,
			Commitment: signer.FrostCommitment{Hiding: bundle.Hiding, Binding: bundle.Binding},
		})
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
		return nil, fmt.Errorf("transfer: frost sign job %s: %w", jobID, err)
	}

	sig, err := s.cfg.Signer.AggregateFrost(signer.FrostAggregateRequest{
		Message:         message,
		VerifyingKey:    verifyingKey,
		AllParticipants: all,
		Shares:          map[uint32][32]byte{selfIdentifier: share},
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: aggregate frost job %s: %w", jobID, err)
	}
	return sig, nil
}
