// Package chaintest provides an in-memory EVM node that understands the
// voting contract interface.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type voteKey struct {
	debateID int64
	voter    common.Address
}

// Client is a fake chain.Client. Zero values answer "not found" or empty data.
type Client struct {
	mu       sync.Mutex
	contract *chain.Contract
	chainID  int64

	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	states   map[int64]*domain.DebateState
	votes    map[voteKey]domain.VoteProof
	logs     []types.Log

	// Injected failures; returned as-is.
	TxErr      error
	ReceiptErr error
	CallErr    error
	BatchErr   error

	Calls      int
	BatchCalls int

	// OnBatch runs at the start of every batch call.
	OnBatch func()

	// Head overrides the reported block number; otherwise the highest
	// receipt block is used.
	Head uint64
}

// New builds a fake node for chainID.
func New(contract *chain.Contract, chainID int64) *Client {
	return &Client{
		contract: contract,
		chainID:  chainID,
		txs:      map[common.Hash]*types.Transaction{},
		receipts: map[common.Hash]*types.Receipt{},
		states:   map[int64]*domain.DebateState{},
		votes:    map[voteKey]domain.VoteProof{},
	}
}

// AddTransaction registers a mined transaction and its receipt. A nil
// receipt leaves the transaction pending.
func (c *Client) AddTransaction(tx *types.Transaction, receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Hash()] = tx
	if receipt != nil {
		receipt.TxHash = tx.Hash()
		c.receipts[tx.Hash()] = receipt
		for _, l := range receipt.Logs {
			l.TxHash = tx.Hash()
			c.logs = append(c.logs, *l)
		}
	}
}

// SetDebate sets the state returned by debates(debateID).
func (c *Client) SetDebate(debateID int64, st domain.DebateState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[debateID] = &st
}

// SetVote records a vote for voter on debateID.
func (c *Client) SetVote(debateID int64, voter common.Address, proof domain.VoteProof) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.votes[voteKey{debateID, voter}] = proof
}

func (c *Client) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TxErr != nil {
		return nil, false, c.TxErr
	}
	tx, ok := c.txs[hash]
	if !ok {
		return nil, false, fmt.Errorf("%w: tx", domain.ErrNotFound)
	}
	_, mined := c.receipts[hash]
	return tx, !mined, nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReceiptErr != nil {
		return nil, c.ReceiptErr
	}
	r, ok := c.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("%w: receipt", ethereum.NotFound)
	}
	return r, nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	return c.answer(msg.Data)
}

func (c *Client) BatchCallContract(_ context.Context, msgs []ethereum.CallMsg) ([]chain.CallResult, error) {
	if c.OnBatch != nil {
		c.OnBatch()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BatchCalls++
	if c.BatchErr != nil {
		return nil, c.BatchErr
	}
	out := make([]chain.CallResult, len(msgs))
	for i, m := range msgs {
		data, err := c.answer(m.Data)
		out[i] = chain.CallResult{Data: data, Err: err}
	}
	return out, nil
}

func (c *Client) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddr(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0])) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Client) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(c.chainID), nil
}

func (c *Client) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Head > 0 {
		return c.Head, nil
	}
	var head uint64
	for _, l := range c.logs {
		if l.BlockNumber > head {
			head = l.BlockNumber
		}
	}
	return head, nil
}

func (c *Client) answer(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("execution reverted")
	}
	m, err := c.contract.ABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	switch m.Name {
	case "debates":
		id := args[0].(*big.Int).Int64()
		st, ok := c.states[id]
		if !ok {
			// An unknown debate reads as zero storage, like the real contract.
			st = &domain.DebateState{}
		}
		return m.Outputs.Pack(st.Creator, st.EndTime, orZero(st.VoteFee), orZero(st.YesCount), orZero(st.NoCount),
			orZero(st.YesPot), orZero(st.NoPot), st.Finalized, st.Result, orZero(st.Residual))
	case "voters":
		id := args[0].(*big.Int).Int64()
		voter := args[1].(common.Address)
		p := c.votes[voteKey{id, voter}]
		return m.Outputs.Pack(p.HasVoted, p.SupportYes, p.Claimed)
	default:
		return nil, fmt.Errorf("execution reverted: %s not readable", m.Name)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func containsAddr(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
