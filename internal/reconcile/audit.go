package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/devblac/syt-bridge/internal/resolver"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// auditWindow caps the block span of a single eth_getLogs request.
const auditWindow = 5000

// Orphan is an on-chain debate with no off-chain record.
type Orphan struct {
	DebateID    int64  `json:"debateId"`
	Creator     string `json:"creator"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

type AuditReport struct {
	ChainID  int64    `json:"chainId"`
	From     uint64   `json:"from"`
	To       uint64   `json:"to"`
	Created  int      `json:"created"`
	Recorded int      `json:"recorded"`
	Orphans  []Orphan `json:"orphans"`
}

// Audit scans DebateCreated logs in [from, to] and reports debates that were
// created on chain but never recorded. to == 0 means the current head.
func (s *Service) Audit(ctx context.Context, chainID int64, from, to uint64) (AuditReport, error) {
	p, err := s.registry.Resolve(chainID)
	if err != nil {
		return AuditReport{}, err
	}
	if to == 0 {
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			to, err = p.Client.BlockNumber(ctx)
			return err
		})
		if err != nil {
			return AuditReport{}, fmt.Errorf("head block: %w", err)
		}
	}
	if from > to {
		return AuditReport{}, fmt.Errorf("%w: from %d is after to %d", domain.ErrInvalidInput, from, to)
	}

	contract := s.registry.Contract()
	topic := contract.ABI.Events[chain.EventDebateCreated].ID
	decoder := resolver.NewDecoder(contract, p.Contract)
	report := AuditReport{ChainID: chainID, From: from, To: to, Orphans: []Orphan{}}

	for start := from; start <= to; start += auditWindow {
		end := start + auditWindow - 1
		if end > to || end < start {
			end = to
		}
		var logs []types.Log
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			logs, err = p.Client.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(start),
				ToBlock:   new(big.Int).SetUint64(end),
				Addresses: []common.Address{p.Contract},
				Topics:    [][]common.Hash{{topic}},
			})
			return err
		})
		if err != nil {
			return report, fmt.Errorf("logs %d-%d: %w", start, end, err)
		}

		ptrs := make([]*types.Log, len(logs))
		for i := range logs {
			ptrs[i] = &logs[i]
		}
		for _, dl := range decoder.DecodeLogs(ptrs) {
			if dl.EventName != chain.EventDebateCreated {
				continue
			}
			id, ok := dl.Args["debateId"].(*big.Int)
			if !ok || id.Sign() < 0 || !id.IsInt64() {
				continue
			}
			report.Created++
			_, err := s.store.GetDebateByChain(ctx, chainID, id.Int64())
			switch {
			case err == nil:
				report.Recorded++
			case errors.Is(err, domain.ErrNotFound):
				o := Orphan{DebateID: id.Int64(), BlockNumber: dl.BlockNumber, TxHash: dl.TxHash.Hex()}
				if c, ok := dl.Args["creator"].(common.Address); ok {
					o.Creator = c.Hex()
				}
				report.Orphans = append(report.Orphans, o)
			default:
				return report, err
			}
		}
		if end == to {
			break
		}
	}

	if len(report.Orphans) > 0 {
		s.log.Warn("on-chain debates without records", "chain_id", chainID, "count", len(report.Orphans), "from", from, "to", to)
	}
	return report, nil
}
