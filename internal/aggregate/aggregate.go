// Package aggregate merges live contract state onto off-chain debate records.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/syt-bridge/internal/cache"
	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// MaxCacheTTL caps how stale a cached contract read may be.
const MaxCacheTTL = 60 * time.Second

// Options configures an Aggregator.
type Options struct {
	Cache  cache.Cache
	TTL    time.Duration
	Retry  chain.RetryPolicy
	Logger *slog.Logger
}

// Aggregator reads debates(debateId) for many records across chains.
type Aggregator struct {
	registry *chain.Registry
	cache    cache.Cache
	ttl      time.Duration
	retry    chain.RetryPolicy
	log      *slog.Logger
}

// New builds an aggregator. TTL is clamped to MaxCacheTTL.
func New(registry *chain.Registry, opts Options) *Aggregator {
	ttl := opts.TTL
	if ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		registry: registry,
		cache:    opts.Cache,
		ttl:      ttl,
		retry:    opts.Retry,
		log:      log,
	}
}

// Aggregate returns one entry per record, in input order. A nil entry means
// the state is unknown (unsupported chain, failed read, or a debate the
// contract does not know); it never means zero votes.
//
// If ctx is cancelled, the entries already filled for completed chains are
// returned together with the context error.
func (a *Aggregator) Aggregate(ctx context.Context, records []domain.Debate) ([]*domain.DebateState, error) {
	out := make([]*domain.DebateState, len(records))
	if len(records) == 0 {
		return out, nil
	}

	byChain := map[int64][]int{}
	order := []int64{}
	for i, rec := range records {
		if _, seen := byChain[rec.ChainID]; !seen {
			order = append(order, rec.ChainID)
		}
		byChain[rec.ChainID] = append(byChain[rec.ChainID], i)
	}

	var g errgroup.Group
	for _, chainID := range order {
		profile, err := a.registry.Resolve(chainID)
		if err != nil {
			a.log.Warn("skipping debates on unsupported chain", "chain_id", chainID, "count", len(byChain[chainID]))
			continue
		}
		idx := byChain[chainID]
		g.Go(func() error {
			a.readChain(ctx, profile, records, idx, out)
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

// readChain fills out[i] for every i in idx. Each index belongs to exactly
// one chain, so goroutines never write the same slot.
func (a *Aggregator) readChain(ctx context.Context, p *chain.Profile, records []domain.Debate, idx []int, out []*domain.DebateState) {
	contract := a.registry.Contract()

	// Records sharing a debate id share one read.
	pending := map[int64][]int{}
	var ids []int64
	for _, i := range idx {
		id := records[i].DebateID
		if id < 0 {
			continue
		}
		if data, ok := a.cached(ctx, p, id); ok {
			if st := decodeState(contract, data); st != nil {
				out[i] = st
				continue
			}
		}
		if _, seen := pending[id]; !seen {
			ids = append(ids, id)
		}
		pending[id] = append(pending[id], i)
	}
	if len(ids) == 0 {
		return
	}

	msgs := make([]ethereum.CallMsg, 0, len(ids))
	for _, id := range ids {
		data, err := contract.PackDebates(id)
		if err != nil {
			a.log.Error("pack debates call", "chain_id", p.ChainID, "debate_id", id, "error", err)
			return
		}
		to := p.Contract
		msgs = append(msgs, ethereum.CallMsg{To: &to, Data: data})
	}

	var results []chain.CallResult
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		results, err = p.Client.BatchCallContract(ctx, msgs)
		return err
	})
	if err != nil {
		a.log.Warn("batch read failed", "chain_id", p.ChainID, "debates", len(ids), "error", err)
		return
	}
	if len(results) != len(ids) {
		a.log.Warn("batch read returned wrong result count", "chain_id", p.ChainID, "want", len(ids), "got", len(results))
		return
	}

	for n, id := range ids {
		res := results[n]
		if res.Err != nil {
			a.log.Debug("debate read failed", "chain_id", p.ChainID, "debate_id", id, "error", res.Err)
			continue
		}
		st := decodeState(contract, res.Data)
		if st == nil {
			continue
		}
		a.store(ctx, p, id, res.Data)
		for _, i := range pending[id] {
			out[i] = st
		}
	}
}

// decodeState treats undecodable data and never-created debates (zero
// creator) as unknown.
func decodeState(c *chain.Contract, data []byte) *domain.DebateState {
	st, err := c.UnpackDebates(data)
	if err != nil || st.Creator == (common.Address{}) {
		return nil
	}
	return st
}

func cacheKey(p *chain.Profile, debateID int64) string {
	return fmt.Sprintf("debates:%d:%s:%d", p.ChainID, p.Contract.Hex(), debateID)
}

func (a *Aggregator) cached(ctx context.Context, p *chain.Profile, debateID int64) ([]byte, bool) {
	if a.cache == nil || a.ttl <= 0 {
		return nil, false
	}
	data, ok, err := a.cache.Get(ctx, cacheKey(p, debateID))
	if err != nil {
		a.log.Debug("cache get failed", "error", err)
		return nil, false
	}
	return data, ok
}

func (a *Aggregator) store(ctx context.Context, p *chain.Profile, debateID int64, data []byte) {
	if a.cache == nil || a.ttl <= 0 {
		return
	}
	if err := a.cache.Set(ctx, cacheKey(p, debateID), data, a.ttl); err != nil {
		a.log.Debug("cache set failed", "error", err)
	}
}
