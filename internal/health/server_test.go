package health

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/chain/chaintest"
	"github.com/ethereum/go-ethereum/common"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantDB   string
		wantRPC  string
	}{
		{
			name: "all_ok",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
			wantDB:   "ok",
			wantRPC:  "ok",
		},
		{
			name: "db_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return context.DeadlineExceeded },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "fail",
			wantRPC:  "ok",
		},
		{
			name: "rpc_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return context.DeadlineExceeded },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "ok",
			wantRPC:  "fail",
		},
		{
			name: "cache_fail",
			checker: Checker{
				DBPing:    func(ctx context.Context) error { return nil },
				CachePing: func(ctx context.Context) error { return context.Canceled },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "ok",
		},
		{
			name:     "no_checkers",
			checker:  Checker{},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			Handler(tt.checker).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp Report
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			wantStatus := "ok"
			if tt.wantCode != http.StatusOK {
				wantStatus = "degraded"
			}
			if resp.Status != wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, wantStatus)
			}
			if tt.wantDB != "" && resp.Checks["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp.Checks["db"], tt.wantDB)
			}
			if tt.wantRPC != "" && resp.Checks["rpc"] != tt.wantRPC {
				t.Errorf("rpc = %q, want %q", resp.Checks["rpc"], tt.wantRPC)
			}
		})
	}
}

type wrongChainClient struct{ *chaintest.Client }

func (wrongChainClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func TestRPCCheckerDetectsChainMismatch(t *testing.T) {
	contract, err := chain.DefaultContract()
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	addr := common.HexToAddress("0xd9d6b13f32fe9De626C2fD175fC79Fd72067bcD5")
	good, err := chain.NewRegistry(contract, chain.Profile{ChainID: 97, Contract: addr, NativeSymbol: "tBNB", Client: chaintest.New(contract, 97)})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := NewRPCChecker(good).Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy chain, got %v", err)
	}

	bad, err := chain.NewRegistry(contract, chain.Profile{ChainID: 97, Contract: addr, NativeSymbol: "tBNB", Client: wrongChainClient{chaintest.New(contract, 97)}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := NewRPCChecker(bad).Ping(context.Background()); err == nil {
		t.Fatalf("expected chain id mismatch")
	}
}
