package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/tree"
)

// SwapRequest names the leaves to give up and, optionally, the
// denominations the caller wants back. Swap does not forward
// Denominations: the coordinator chooses the returned leaves whatever
// it holds.
type SwapRequest struct {
	LeafIDs       []string
	Denominations []uint64
}

// SwapResult is the set of newly owned leaves a swap produced.
type SwapResult struct {
	NewLeafIDs []string
}

// swapPollInterval and swapPollAttempts bound how long Swap waits for
// the coordinator's return leg before giving up; a caller that times
// out still holds a valid, coordinator-visible pending transfer and
// can resume by calling QueryPendingTransfers and ClaimTransfer
// directly.
const (
	swapPollInterval = 500 * time.Millisecond
	swapPollAttempts = 20
)

// Swap executes the swap primitive: an
// atomic transfer of req.LeafIDs to the coordinator-managed
// intermediate, followed by claiming the atomic transfer back of new
// leaves whose denominations the coordinator chooses. The Leaf Optimizer calls this
// once per round while holding its own Optimization reservation.
func (s *Service) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	intermediate := s.cfg.Pool.Coordinator().IdentityPublicKey

	outbound, err := s.SendLeaves(ctx, intermediate, req.LeafIDs)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: swap send leg: %w", err)
	}

	inbound, err := s.awaitSwapReturn(ctx, outbound.ID)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: swap return leg: %w", err)
	}

	claimed, err := s.ClaimTransfer(ctx, inbound)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: claim swap return: %w", err)
	}

	newLeafIDs := make([]string, len(claimed.Leaves))
	for i, l := range claimed.Leaves {
		newLeafIDs[i] = l.LeafID
	}
	return SwapResult{NewLeafIDs: newLeafIDs}, nil
}

// SwapReserved is the leaf optimizer's entry point into the swap
// primitive: leaves is the exact, already-reserved node set one
// reshaping round gives up (the optimizer holds a single broad
// Optimization reservation for its whole run), so this skips the
// ordinary SendLeaves reservation step SwapRequest-based Swap uses.
func (s *Service) SwapReserved(ctx context.Context, leaves []tree.Node) (SwapResult, error) {
	intermediate := s.cfg.Pool.Coordinator().IdentityPublicKey

	outbound, err := s.SendReservedLeaves(ctx, intermediate, leaves)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: swap send leg: %w", err)
	}

	inbound, err := s.awaitSwapReturn(ctx, outbound.ID)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: swap return leg: %w", err)
	}

	claimed, err := s.ClaimTransfer(ctx, inbound)
	if err != nil {
		return SwapResult{}, fmt.Errorf("transfer: claim swap return: %w", err)
	}

	newLeafIDs := make([]string, len(claimed.Leaves))
	for i, l := range claimed.Leaves {
		newLeafIDs[i] = l.LeafID
	}
	return SwapResult{NewLeafIDs: newLeafIDs}, nil
}

// awaitSwapReturn polls for the coordinator's counter-swap transfer
// paying this wallet back in response to outboundTransferID, since the
// return leg is produced server-side once the send leg lands.
func (s *Service) awaitSwapReturn(ctx context.Context, outboundTransferID string) (Transfer, error) {
	for attempt := 0; attempt < swapPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Transfer{}, ctx.Err()
			case <-time.After(swapPollInterval):
			}
		}

		pending, err := s.cfg.Pool.Coordinator().Client.QueryAllTransfers(ctx, operator.QueryTransfersRequest{
			IdentityPublicKey: s.cfg.Signer.IdentityPublicKey(),
			Types:             []operator.TransferType{operator.TransferTypeCounterSwap},
		})
		if err != nil {
			return Transfer{}, fmt.Errorf("query counter-swap transfers: %w", err)
		}

		for _, summary := range pending.Transfers {
			if summary.ID == outboundTransferID {
				continue
			}
			return s.transferFromSummary(ctx, summary)
		}
	}

	return Transfer{}, fmt.Errorf("transfer: timed out waiting for counter-swap return to outbound transfer %s", outboundTransferID)
}

// transferFromSummary reconstructs the Transfer the claim path needs
// from the coordinator's listing; the receiver's own leaf/secret
// details come from QueryPendingTransfers, which carries the full
// per-leaf payload unlike the summary view.
func (s *Service) transferFromSummary(ctx context.Context, summary operator.TransferSummary) (Transfer, error) {
	pending, err := s.cfg.Pool.Coordinator().Client.QueryPendingTransfers(ctx, s.cfg.Signer.IdentityPublicKey())
	if err != nil {
		return Transfer{}, fmt.Errorf("query pending transfers: %w", err)
	}
	for _, t := range pending.Transfers {
		if t.ID == summary.ID {
			return transferFromRPC(t), nil
		}
	}
	return Transfer{}, fmt.Errorf("%w: %s", ErrUnknownTransfer, summary.ID)
}

// transferFromRPC converts the coordinator's wire representation of a
// pending transfer into the claim path's working Transfer value.
func transferFromRPC(t operator.TransferSummary) Transfer {
	leaves := make([]TransferLeaf, len(t.Leaves))
	for i, l := range t.Leaves {
		leaves[i] = TransferLeaf{
			LeafID:          l.LeafID,
			Leaf:            tree.Node{ID: l.LeafID, TreeID: l.TreeID, Value: l.Value},
			SenderSignature: l.SenderSignature,
			SecretCipher:    l.SecretCipher,
		}
	}
	return Transfer{
		ID:                t.ID,
		SenderPublicKey:   t.SenderPublicKey,
		ReceiverPublicKey: t.ReceiverPublicKey,
		Status:            StatusSenderKeyTweaked,
		Leaves:            leaves,
	}
}
