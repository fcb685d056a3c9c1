package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// Details is everything known about a transaction on one chain. Found is
// false when the node has no mined transaction or no receipt for the hash yet.
type Details struct {
	Found       bool               `json:"found"`
	ChainID     int64              `json:"chainId"`
	TxHash      common.Hash        `json:"txHash"`
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Receipt     *types.Receipt     `json:"receipt,omitempty"`
	Input       *DecodedInput      `json:"input,omitempty"`
	Logs        []DecodedLog       `json:"decodedLogs"`
}

// DebateID extracts the contract-assigned debate id from the first
// DebateCreated log. Caller-supplied ids are never a fallback.
func (d *Details) DebateID() (int64, error) {
	if d == nil || !d.Found {
		return 0, fmt.Errorf("%w: transaction or receipt", domain.ErrNotFound)
	}
	if d.Receipt != nil && d.Receipt.Status != types.ReceiptStatusSuccessful {
		return 0, fmt.Errorf("%w: transaction reverted", domain.ErrInvalidLogArgs)
	}
	for _, l := range d.Logs {
		if l.EventName != chain.EventDebateCreated {
			continue
		}
		raw, ok := l.Args["debateId"]
		if !ok {
			return 0, fmt.Errorf("%w: %s log has no debateId", domain.ErrInvalidLogArgs, l.EventName)
		}
		id, ok := raw.(*big.Int)
		if !ok || id == nil || id.Sign() < 0 || !id.IsInt64() {
			return 0, fmt.Errorf("%w: debateId %v out of range", domain.ErrInvalidLogArgs, raw)
		}
		return id.Int64(), nil
	}
	return 0, fmt.Errorf("%w: no %s log from the registered contract", domain.ErrInvalidLogArgs, chain.EventDebateCreated)
}

// Resolver fetches and decodes transactions through the chain registry.
type Resolver struct {
	registry *chain.Registry
	retry    chain.RetryPolicy
	log      *slog.Logger
}

// New builds a resolver.
func New(registry *chain.Registry, retry chain.RetryPolicy, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{registry: registry, retry: retry, log: log}
}

// FetchTransactionDetails loads the transaction and its receipt concurrently
// and decodes them against the chain's contract. A missing transaction or
// receipt is reported as Found=false, not as an error.
func (r *Resolver) FetchTransactionDetails(ctx context.Context, txHash common.Hash, chainID int64) (*Details, error) {
	profile, err := r.registry.Resolve(chainID)
	if err != nil {
		return nil, err
	}
	details := &Details{ChainID: chainID, TxHash: txHash, Logs: []DecodedLog{}}

	var (
		tx      *types.Transaction
		pending bool
		receipt *types.Receipt
	)
	var g errgroup.Group
	g.Go(func() error {
		return r.retry.Do(ctx, func(ctx context.Context) error {
			t, p, err := profile.Client.TransactionByHash(ctx, txHash)
			if chain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get transaction: %w", err)
			}
			tx, pending = t, p
			return nil
		})
	})
	g.Go(func() error {
		return r.retry.Do(ctx, func(ctx context.Context) error {
			rc, err := profile.Client.TransactionReceipt(ctx, txHash)
			if chain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get receipt: %w", err)
			}
			receipt = rc
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		r.log.Warn("transaction lookup failed", "chain_id", chainID, "tx", txHash.Hex(), "error", err)
		return nil, err
	}

	if tx == nil || pending || receipt == nil {
		r.log.Debug("transaction not found", "chain_id", chainID, "tx", txHash.Hex(), "pending", pending)
		return details, nil
	}

	dec := NewDecoder(r.registry.Contract(), profile.Contract)
	details.Found = true
	details.Transaction = tx
	details.Receipt = receipt
	details.Input = dec.DecodeInput(tx)
	details.Logs = dec.DecodeLogs(receipt.Logs)
	r.log.Debug("transaction resolved", "chain_id", chainID, "tx", txHash.Hex(), "logs", len(receipt.Logs), "decoded", len(details.Logs))
	return details, nil
}
