package transfer

import (
	"context"
	"fmt"

	"github.com/sparkwallet/spark/operator"
)

// QueryAllTransfers pages through every transfer visible to this
// wallet's identity, optionally narrowed by filter (supplemented
// transfer query surface, SPEC_FULL §3).
func (s *Service) QueryAllTransfers(ctx context.Context, filter Filter) (operator.QueryTransfersResponse, error) {
	resp, err := s.cfg.Pool.Coordinator().Client.QueryAllTransfers(ctx, operator.QueryTransfersRequest{
		IdentityPublicKey: s.cfg.Signer.IdentityPublicKey(),
		Types:             filter.Types,
		Limit:             filter.Limit,
		Offset:            filter.Offset,
	})
	if err != nil {
		return operator.QueryTransfersResponse{}, fmt.Errorf("transfer: query all transfers: %w", err)
	}
	return resp, nil
}

// QueryPendingTransfers returns the transfers awaiting claim by this
// wallet's identity.
func (s *Service) QueryPendingTransfers(ctx context.Context) (operator.QueryTransfersResponse, error) {
	resp, err := s.cfg.Pool.Coordinator().Client.QueryPendingTransfers(ctx, s.cfg.Signer.IdentityPublicKey())
	if err != nil {
		return operator.QueryTransfersResponse{}, fmt.Errorf("transfer: query pending transfers: %w", err)
	}
	return resp, nil
}

// PendingTransfers is QueryPendingTransfers converted into the working
// Transfer shape ClaimTransfer expects, saving callers the RPC-to-
// domain translation.
func (s *Service) PendingTransfers(ctx context.Context) ([]Transfer, error) {
	resp, err := s.QueryPendingTransfers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Transfer, len(resp.Transfers))
	for i, t := range resp.Transfers {
		out[i] = transferFromRPC(t)
	}
	return out, nil
}
