package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"os"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/StakeYourTake.json
var defaultABIJSON []byte

const (
	EventDebateCreated = "DebateCreated"
	methodDebates      = "debates"
	methodVoters       = "voters"
)

// Contract packs and unpacks calls against the voting contract interface.
type Contract struct {
	ABI *abi.ABI
}

// DefaultContract returns the embedded voting contract interface.
func DefaultContract() (*Contract, error) {
	return parseContract(defaultABIJSON)
}

// LoadContract reads an ABI JSON file. An empty path yields the embedded ABI.
func LoadContract(path string) (*Contract, error) {
	if path == "" {
		return DefaultContract()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	c, err := parseContract(data)
	if err != nil {
		return nil, fmt.Errorf("abi %s: %w", path, err)
	}
	return c, nil
}

func parseContract(data []byte) (*Contract, error) {
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	for _, m := range []string{methodDebates, methodVoters} {
		if _, ok := a.Methods[m]; !ok {
			return nil, fmt.Errorf("abi is missing method %s", m)
		}
	}
	if _, ok := a.Events[EventDebateCreated]; !ok {
		return nil, fmt.Errorf("abi is missing event %s", EventDebateCreated)
	}
	return &Contract{ABI: &a}, nil
}

// PackDebates encodes a debates(debateId) call.
func (c *Contract) PackDebates(debateID int64) ([]byte, error) {
	return c.ABI.Pack(methodDebates, big.NewInt(debateID))
}

// UnpackDebates decodes the debates accessor output. Empty return data (no
// contract deployed, or a reverted call) is an error, never a zero state.
func (c *Contract) UnpackDebates(data []byte) (*domain.DebateState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("debates: empty return data")
	}
	out, err := c.ABI.Unpack(methodDebates, data)
	if err != nil {
		return nil, fmt.Errorf("debates: %w", err)
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("debates: expected 10 values, got %d", len(out))
	}

	var (
		st domain.DebateState
		ok bool
	)
	if st.Creator, ok = out[0].(common.Address); !ok {
		return nil, fmt.Errorf("debates: creator has type %T", out[0])
	}
	if st.EndTime, ok = out[1].(uint64); !ok {
		return nil, fmt.Errorf("debates: endTime has type %T", out[1])
	}
	ints := []**big.Int{&st.VoteFee, &st.YesCount, &st.NoCount, &st.YesPot, &st.NoPot}
	for i, dst := range ints {
		v, ok := out[2+i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("debates: field %d has type %T", 2+i, out[2+i])
		}
		*dst = v
	}
	if st.Finalized, ok = out[7].(bool); !ok {
		return nil, fmt.Errorf("debates: finalized has type %T", out[7])
	}
	if st.Result, ok = out[8].(uint8); !ok {
		return nil, fmt.Errorf("debates: result has type %T", out[8])
	}
	if st.Residual, ok = out[9].(*big.Int); !ok {
		return nil, fmt.Errorf("debates: residual has type %T", out[9])
	}
	return &st, nil
}

// PackVoters encodes a voters(debateId, voter) call.
func (c *Contract) PackVoters(debateID int64, voter common.Address) ([]byte, error) {
	return c.ABI.Pack(methodVoters, big.NewInt(debateID), voter)
}

// UnpackVoters decodes the per-voter record.
func (c *Contract) UnpackVoters(data []byte) (domain.VoteProof, error) {
	if len(data) == 0 {
		return domain.VoteProof{}, fmt.Errorf("voters: empty return data")
	}
	out, err := c.ABI.Unpack(methodVoters, data)
	if err != nil {
		return domain.VoteProof{}, fmt.Errorf("voters: %w", err)
	}
	if len(out) != 3 {
		return domain.VoteProof{}, fmt.Errorf("voters: expected 3 values, got %d", len(out))
	}
	flags := make([]bool, 3)
	for i, v := range out {
		b, ok := v.(bool)
		if !ok {
			return domain.VoteProof{}, fmt.Errorf("voters: field %d has type %T", i, v)
		}
		flags[i] = b
	}
	return domain.VoteProof{HasVoted: flags[0], SupportYes: flags[1], Claimed: flags[2]}, nil
}
