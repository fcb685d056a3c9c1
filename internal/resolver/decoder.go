package resolver

import (
	"fmt"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodedLog is a contract event decoded against the voting contract ABI.
type DecodedLog struct {
	Address     common.Address `json:"address"`
	EventName   string         `json:"eventName"`
	Args        map[string]any `json:"args"`
	Positional  []any          `json:"positional"`
	LogIndex    uint           `json:"logIndex"`
	TxIndex     uint           `json:"txIndex"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
}

// DecodedInput is the contract method a transaction called.
type DecodedInput struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
}

// Decoder decodes logs and calldata for one deployed contract.
type Decoder struct {
	contract *chain.Contract
	address  common.Address
}

// NewDecoder builds a decoder bound to the contract deployed at address.
func NewDecoder(contract *chain.Contract, address common.Address) *Decoder {
	return &Decoder{contract: contract, address: address}
}

// DecodeLogs keeps on-chain order and drops every log that was not emitted by
// the bound contract or does not decode as one of its events.
func (d *Decoder) DecodeLogs(logs []*types.Log) []DecodedLog {
	out := make([]DecodedLog, 0, len(logs))
	for _, l := range logs {
		if l == nil {
			continue
		}
		dl, ok, err := d.DecodeLog(*l)
		if err != nil || !ok {
			continue
		}
		out = append(out, *dl)
	}
	return out
}

// DecodeLog decodes a single log. ok is false when the log belongs to another
// contract or carries an unknown topic; err is set when the topic matches but
// the payload does not.
func (d *Decoder) DecodeLog(l types.Log) (*DecodedLog, bool, error) {
	if l.Address != d.address {
		return nil, false, nil
	}
	if len(l.Topics) == 0 {
		return nil, false, nil
	}
	ev, err := d.contract.ABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, false, nil
	}

	inputs := namedArguments(ev.Inputs)
	indexed, nonIndexed := splitIndexed(inputs)
	if len(l.Topics)-1 != len(indexed) {
		return nil, false, fmt.Errorf("%s: expected %d indexed topics, got %d", ev.Name, len(indexed), len(l.Topics)-1)
	}

	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return nil, false, fmt.Errorf("%s: parse topics: %w", ev.Name, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, l.Data); err != nil {
		return nil, false, fmt.Errorf("%s: unpack data: %w", ev.Name, err)
	}

	positional := make([]any, len(inputs))
	for i, in := range inputs {
		positional[i] = args[in.Name]
	}

	return &DecodedLog{
		Address:     l.Address,
		EventName:   ev.Name,
		Args:        args,
		Positional:  positional,
		LogIndex:    l.Index,
		TxIndex:     l.TxIndex,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}, true, nil
}

// DecodeInput decodes calldata sent to the bound contract. Plain transfers
// and calls to other contracts yield nil.
func (d *Decoder) DecodeInput(tx *types.Transaction) *DecodedInput {
	if tx == nil || tx.To() == nil || *tx.To() != d.address {
		return nil
	}
	data := tx.Data()
	if len(data) < 4 {
		return nil
	}
	m, err := d.contract.ABI.MethodById(data[:4])
	if err != nil {
		return nil
	}
	args := map[string]any{}
	if err := namedArguments(m.Inputs).UnpackIntoMap(args, data[4:]); err != nil {
		return nil
	}
	return &DecodedInput{Method: m.Name, Args: args}
}

// namedArguments gives unnamed ABI arguments positional names so they survive
// map decoding.
func namedArguments(args abi.Arguments) abi.Arguments {
	out := make(abi.Arguments, len(args))
	for i, a := range args {
		if a.Name == "" {
			a.Name = fmt.Sprintf("arg%d", i)
		}
		out[i] = a
	}
	return out
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
