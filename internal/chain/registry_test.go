package chain

import (
	"errors"
	"testing"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

func TestRegistryResolve(t *testing.T) {
	c, err := DefaultContract()
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	reg, err := NewRegistry(c,
		Profile{ChainID: 97, Name: "bsc-testnet", Contract: common.HexToAddress("0xd9d6b13f32fe9De626C2fD175fC79Fd72067bcD5"), NativeSymbol: "tBNB", NativeDecimals: 18, Client: nopClient{}},
		Profile{ChainID: 11155111, Name: "sepolia", Contract: common.HexToAddress("0x00000000000000000000000000000000000000aa"), NativeSymbol: "ETH", NativeDecimals: 18, Client: nopClient{}},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	for _, id := range []int64{97, 11155111} {
		p, err := reg.Resolve(id)
		if err != nil {
			t.Fatalf("resolve %d: %v", id, err)
		}
		if p.ChainID != id {
			t.Fatalf("resolve %d returned chain %d", id, p.ChainID)
		}
	}

	for _, id := range []int64{0, 1, -97, 56, 11155112} {
		if _, err := reg.Resolve(id); !errors.Is(err, domain.ErrUnsupportedChain) {
			t.Fatalf("resolve %d: expected ErrUnsupportedChain, got %v", id, err)
		}
	}

	if got := reg.ChainIDs(); len(got) != 2 || got[0] != 97 || got[1] != 11155111 {
		t.Fatalf("unexpected chain ids %v", got)
	}
}

func TestRegistryRejectsPlaceholders(t *testing.T) {
	c, _ := DefaultContract()
	tests := []struct {
		name     string
		profiles []Profile
	}{
		{"zero_address", []Profile{{ChainID: 1, Client: nopClient{}}}},
		{"no_client", []Profile{{ChainID: 1, Contract: common.HexToAddress("0x01")}}},
		{"bad_id", []Profile{{ChainID: 0, Contract: common.HexToAddress("0x01"), Client: nopClient{}}}},
		{"duplicate", []Profile{
			{ChainID: 1, Contract: common.HexToAddress("0x01"), Client: nopClient{}},
			{ChainID: 1, Contract: common.HexToAddress("0x02"), Client: nopClient{}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(c, tt.profiles...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNilRegistryResolve(t *testing.T) {
	var reg *Registry
	if _, err := reg.Resolve(1); !errors.Is(err, domain.ErrUnsupportedChain) {
		t.Fatalf("expected ErrUnsupportedChain, got %v", err)
	}
}
