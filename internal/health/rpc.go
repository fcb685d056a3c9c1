package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/devblac/syt-bridge/internal/chain"
)

// RPCChecker pings every registered chain node.
type RPCChecker struct {
	registry *chain.Registry
}

// NewRPCChecker creates a checker for all chains in registry.
func NewRPCChecker(registry *chain.Registry) *RPCChecker {
	return &RPCChecker{registry: registry}
}

// Ping asks each node for its chain id and requires it to match the
// configured one. All failures are joined.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var errs []error
	for _, id := range c.registry.ChainIDs() {
		if err := PingChain(ctx, c.registry, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PingChain checks a single chain's node.
func PingChain(ctx context.Context, registry *chain.Registry, chainID int64) error {
	p, err := registry.Resolve(chainID)
	if err != nil {
		return err
	}
	got, err := p.Client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain %d: %w", chainID, err)
	}
	if !got.IsInt64() || got.Int64() != chainID {
		return fmt.Errorf("chain %d: node reports chain id %s", chainID, got)
	}
	return nil
}
