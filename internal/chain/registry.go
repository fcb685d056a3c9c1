package chain

import (
	"fmt"
	"sort"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Profile is the static description of one supported chain.
type Profile struct {
	ChainID        int64
	Name           string
	Contract       common.Address
	NativeSymbol   string
	NativeDecimals uint8
	Client         Client
}

// Registry maps chain ids to profiles. It is immutable after construction.
type Registry struct {
	profiles map[int64]*Profile
	contract *Contract
}

// NewRegistry validates and indexes the given profiles.
func NewRegistry(contract *Contract, profiles ...Profile) (*Registry, error) {
	if contract == nil {
		return nil, fmt.Errorf("contract interface required")
	}
	r := &Registry{profiles: make(map[int64]*Profile, len(profiles)), contract: contract}
	for i := range profiles {
		p := profiles[i]
		if p.ChainID <= 0 {
			return nil, fmt.Errorf("chain %q: chain id must be positive", p.Name)
		}
		if _, dup := r.profiles[p.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", p.ChainID)
		}
		if p.Contract == (common.Address{}) {
			return nil, fmt.Errorf("chain %d: contract address is the zero address", p.ChainID)
		}
		if p.Client == nil {
			return nil, fmt.Errorf("chain %d: client required", p.ChainID)
		}
		r.profiles[p.ChainID] = &p
	}
	return r, nil
}

// Resolve returns the profile for chainID or ErrUnsupportedChain.
func (r *Registry) Resolve(chainID int64) (*Profile, error) {
	if r != nil {
		if p, ok := r.profiles[chainID]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID)
}

// Contract returns the shared contract interface.
func (r *Registry) Contract() *Contract {
	return r.contract
}

// ChainIDs lists configured chains in ascending order.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
