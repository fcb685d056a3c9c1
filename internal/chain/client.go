package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/devblac/syt-bridge/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client captures the read-only node surface used by the bridge.
type Client interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BatchCallContract(ctx context.Context, msgs []ethereum.CallMsg) ([]CallResult, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// CallResult is the outcome of one eth_call inside a batch.
type CallResult struct {
	Data []byte
	Err  error
}

// RPCOptions bounds every call made through an RPCClient.
type RPCOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
}

// RPCClient wraps ethclient with per-call timeouts, a client-side rate limit,
// and error classification into the domain taxonomy.
type RPCClient struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewRPCClient dials an EVM node.
func NewRPCClient(ctx context.Context, rpcURL string, opts RPCOptions) (*RPCClient, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &RPCClient{
		eth:     ethclient.NewClient(rc),
		rpc:     rc,
		timeout: timeout,
		limiter: limiter,
	}, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *RPCClient) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, classify(ctx, err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

func (c *RPCClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()
	tx, pending, err := c.eth.TransactionByHash(callCtx, hash)
	if err != nil {
		return nil, false, classify(ctx, err)
	}
	return tx, pending, nil
}

func (c *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	r, err := c.eth.TransactionReceipt(callCtx, hash)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return r, nil
}

func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	out, err := c.eth.CallContract(callCtx, msg, blockNumber)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

// BatchCallContract sends all calls in a single JSON-RPC batch against the
// latest block. A transport failure fails the whole batch; per-call failures
// are reported in the matching CallResult.
func (c *RPCClient) BatchCallContract(ctx context.Context, msgs []ethereum.CallMsg) ([]CallResult, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw := make([]hexutil.Bytes, len(msgs))
	elems := make([]rpc.BatchElem, len(msgs))
	for i, m := range msgs {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []any{toCallArg(m), "latest"},
			Result: &raw[i],
		}
	}
	if err := c.rpc.BatchCallContext(callCtx, elems); err != nil {
		return nil, classify(ctx, err)
	}

	results := make([]CallResult, len(msgs))
	for i, el := range elems {
		if el.Error != nil {
			results[i].Err = el.Error
			continue
		}
		results[i].Data = raw[i]
	}
	return results, nil
}

func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	logs, err := c.eth.FilterLogs(callCtx, q)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return logs, nil
}

func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	id, err := c.eth.ChainID(callCtx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return id, nil
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	n, err := c.eth.BlockNumber(callCtx)
	if err != nil {
		return 0, classify(ctx, err)
	}
	return n, nil
}

func toCallArg(msg ethereum.CallMsg) map[string]any {
	arg := map[string]any{
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	return arg
}

// classify maps transport errors onto the domain taxonomy. Cancellation by the
// caller is passed through untouched so it is never mistaken for a node fault.
func classify(parent context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, ethereum.NotFound):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout: %w", domain.ErrChainUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrChainUnavailable, err)
	}
}

// IsNotFound reports whether err means the node does not know the object.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, ethereum.NotFound)
}
