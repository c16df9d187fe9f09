package optimizer

import (
	"context"
	"fmt"

	"github.com/sparkwallet/spark/transfer"
	"github.com/sparkwallet/spark/tree"
)

// Swapper is the capability interface the optimizer needs from
// *transfer.Service: the ability to execute one give/receive round
// atomically over leaves the optimizer has already reserved itself.
// Named narrowly per the capability-interface convention the rest of
// this module follows (transfer.Signer, deposit.Signer).
type Swapper interface {
	SwapReserved(ctx context.Context, leaves []tree.Node) (transfer.SwapResult, error)
}

// OptimizationOptions bounds the target decomposition the optimizer
// computes and the batch size any single swap round may carry.
// Multiplicity 0 is a distinct, legal mode ("maximize unilateral
// exit"), not a degenerate case of multiplicity>=1.
type OptimizationOptions struct {
	AutoEnabled      bool
	Multiplicity     uint32
	MaxLeavesPerSwap uint32
}

// DefaultOptimizationOptions returns sensible defaults: automatic
// optimization enabled, targeting a denomination multiplicity of 2
// with at most 64 leaves swapped per round.
func DefaultOptimizationOptions() OptimizationOptions {
	return OptimizationOptions{
		AutoEnabled:      true,
		Multiplicity:     2,
		MaxLeavesPerSwap: 64,
	}
}

func (o OptimizationOptions) Validate() error {
	if o.Multiplicity > 5 {
		return ErrInvalidMultiplicity
	}
	if o.MaxLeavesPerSwap == 0 {
		return ErrInvalidMaxLeavesPerSwap
	}
	return nil
}

// Config wires a leaf Optimizer to its collaborators.
type Config struct {
	Swapper Swapper
	Tree    tree.Service
	Options OptimizationOptions
}

func (c *Config) Validate() error {
	if c.Swapper == nil {
		return fmt.Errorf("optimizer: swapper is required")
	}
	if c.Tree == nil {
		return fmt.Errorf("optimizer: tree service is required")
	}
	if c.Options == (OptimizationOptions{}) {
		c.Options = DefaultOptimizationOptions()
	}
	return c.Options.Validate()
}
