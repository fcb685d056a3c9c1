package chaintest

import (
	"math/big"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DebateCreatedLog builds a DebateCreated log as the contract would emit it.
func DebateCreatedLog(c *chain.Contract, emitter common.Address, debateID *big.Int, creator common.Address, endTime uint64, voteFee *big.Int) *types.Log {
	ev := c.ABI.Events[chain.EventDebateCreated]
	data, err := ev.Inputs.NonIndexed().Pack(endTime, voteFee, true)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: emitter,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(debateID),
			common.BytesToHash(common.LeftPadBytes(creator.Bytes(), 32)),
		},
		Data: data,
	}
}

// CreateDebateTx builds an unsigned createDebate call to contract.
func CreateDebateTx(c *chain.Contract, contract common.Address, nonce uint64, endTime uint64, voteFee *big.Int) *types.Transaction {
	input, err := c.ABI.Pack("createDebate", endTime, true, voteFee)
	if err != nil {
		panic(err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    voteFee,
		Gas:      200_000,
		GasPrice: big.NewInt(1),
		Data:     input,
	})
}

// Receipt builds a successful receipt carrying logs in order, with block and
// index metadata filled in the way a node reports them.
func Receipt(blockNumber uint64, txIndex uint, logs ...*types.Log) *types.Receipt {
	r := &types.Receipt{
		Status:           types.ReceiptStatusSuccessful,
		BlockNumber:      new(big.Int).SetUint64(blockNumber),
		TransactionIndex: txIndex,
		Logs:             logs,
	}
	for i, l := range logs {
		l.BlockNumber = blockNumber
		l.TxIndex = txIndex
		l.Index = uint(i)
	}
	return r
}
