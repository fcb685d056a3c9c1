package reconcile

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devblac/syt-bridge/internal/aggregate"
	"github.com/devblac/syt-bridge/internal/authz"
	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/chain/chaintest"
	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/devblac/syt-bridge/internal/resolver"
	"github.com/devblac/syt-bridge/internal/sink"
	"github.com/devblac/syt-bridge/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testChain = 97

var (
	contractAddr = common.HexToAddress("0xd9d6b13f32fe9De626C2fD175fC79Fd72067bcD5")
	creatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type recordingSender struct {
	mu     sync.Mutex
	events []sink.Event
	err    error
}

func (s *recordingSender) Send(_ context.Context, ev sink.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type testEnv struct {
	svc      *Service
	node     *chaintest.Client
	store    *storage.Store
	contract *chain.Contract
	auth     *authz.Authorizer
	notifier *Notifier
	sender   *recordingSender
	nonce    uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	contract, err := chain.DefaultContract()
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	node := chaintest.New(contract, testChain)
	reg, err := chain.NewRegistry(contract, chain.Profile{
		ChainID: testChain, Name: "bsc-testnet", Contract: contractAddr, NativeSymbol: "tBNB", NativeDecimals: 18, Client: node,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store, err := storage.Open(filepath.Join(t.TempDir(), "syt.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sender := &recordingSender{}
	notifier := NewNotifier(map[string]sink.Sender{"slack": sender}, store, nil, nil)
	auth := authz.New(reg, "", "", nil)
	svc, err := New(Deps{
		Registry:   reg,
		Resolver:   resolver.New(reg, chain.RetryPolicy{}, nil),
		Aggregator: aggregate.New(reg, aggregate.Options{}),
		Authorizer: auth,
		Store:      store,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &testEnv{svc: svc, node: node, store: store, contract: contract, auth: auth, notifier: notifier, sender: sender}
}

// mine adds a createDebate transaction at block whose receipt carries logs.
func (e *testEnv) mine(block uint64, logs ...*types.Log) common.Hash {
	e.nonce++
	tx := chaintest.CreateDebateTx(e.contract, contractAddr, e.nonce, 2_000_000_000, big.NewInt(1e15))
	e.node.AddTransaction(tx, chaintest.Receipt(block, 0, logs...))
	return tx.Hash()
}

func (e *testEnv) debateLog(id int64) *types.Log {
	return chaintest.DebateCreatedLog(e.contract, contractAddr, big.NewInt(id), creatorAddr, 2_000_000_000, big.NewInt(1e15))
}

func TestCreateDebatePersistsLogID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	hash := env.mine(100, env.debateLog(42))

	in := CreateDebateInput{Title: "Is Go fun?", Description: "Yes.", TxHash: hash.Hex(), ChainID: testChain}
	rec, created, err := env.svc.CreateDebateFromTransaction(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || rec.DebateID != 42 || rec.ChainID != testChain || rec.CreationTxHash != hash.Hex() {
		t.Fatalf("unexpected record %+v created=%v", rec, created)
	}

	again, created, err := env.svc.CreateDebateFromTransaction(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created || again.ID != rec.ID {
		t.Fatalf("replay must return the existing row, got %+v created=%v", again, created)
	}

	list, err := env.svc.ListDebates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one debate, got %d", len(list))
	}

	env.notifier.Wait()
	if len(env.sender.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.sender.events))
	}
	ev := env.sender.events[0]
	if ev.DebateID != 42 || ev.Creator != creatorAddr.Hex() || ev.ChainName != "bsc-testnet" || ev.BlockNumber != 100 {
		t.Fatalf("unexpected event %+v", ev)
	}
	deliveries, err := env.store.Deliveries(ctx, rec.ID)
	if err != nil || len(deliveries) != 1 || deliveries[0].Status != "sent" {
		t.Fatalf("unexpected deliveries %+v err=%v", deliveries, err)
	}
}

func TestCreateDebateIgnoresClientSuppliedIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	spoofed := chaintest.DebateCreatedLog(env.contract, common.Address{0xee}, big.NewInt(1), creatorAddr, 1, big.NewInt(1))
	hash := env.mine(5, spoofed)

	_, _, err := env.svc.CreateDebateFromTransaction(ctx, CreateDebateInput{Title: "t", TxHash: hash.Hex(), ChainID: testChain})
	if !errors.Is(err, domain.ErrInvalidLogArgs) {
		t.Fatalf("expected invalid log args, got %v", err)
	}
	list, _ := env.svc.ListDebates(ctx)
	if len(list) != 0 {
		t.Fatalf("nothing should be persisted, got %d rows", len(list))
	}
}

func TestCreateDebateFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	noLogs := env.mine(7)
	pendingTx := chaintest.CreateDebateTx(env.contract, contractAddr, 99, 1, big.NewInt(1))
	env.node.AddTransaction(pendingTx, nil)

	tests := []struct {
		name string
		in   CreateDebateInput
		want error
	}{
		{"no_logs", CreateDebateInput{Title: "t", TxHash: noLogs.Hex(), ChainID: testChain}, domain.ErrInvalidLogArgs},
		{"unknown_tx", CreateDebateInput{Title: "t", TxHash: common.Hash{1}.Hex(), ChainID: testChain}, domain.ErrNotFound},
		{"pending_tx", CreateDebateInput{Title: "t", TxHash: pendingTx.Hash().Hex(), ChainID: testChain}, domain.ErrNotFound},
		{"unsupported_chain", CreateDebateInput{Title: "t", TxHash: noLogs.Hex(), ChainID: 1}, domain.ErrUnsupportedChain},
		{"markup_title", CreateDebateInput{Title: "<script>x</script>", TxHash: noLogs.Hex(), ChainID: testChain}, domain.ErrInvalidInput},
		{"empty_title", CreateDebateInput{Title: "  ", TxHash: noLogs.Hex(), ChainID: testChain}, domain.ErrInvalidInput},
		{"bad_hash", CreateDebateInput{Title: "t", TxHash: "0x1234", ChainID: testChain}, domain.ErrInvalidInput},
		{"bad_asset", CreateDebateInput{Title: "t", TxHash: noLogs.Hex(), ChainID: testChain, AssetURL: "javascript:alert(1)"}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.CreateDebateFromTransaction(ctx, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	list, _ := env.svc.ListDebates(ctx)
	if len(list) != 0 {
		t.Fatalf("failures must not persist, got %d rows", len(list))
	}
}

func TestCreateDebateChainUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.node.TxErr = domain.ErrChainUnavailable
	_, _, err := env.svc.CreateDebateFromTransaction(context.Background(), CreateDebateInput{
		Title: "t", TxHash: common.Hash{2}.Hex(), ChainID: testChain,
	})
	if !errors.Is(err, domain.ErrChainUnavailable) || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected chain unavailable, got %v", err)
	}
}

func (e *testEnv) signEvidence(t *testing.T, key *ecdsa.PrivateKey, content string, debateID int64) string {
	t.Helper()
	hash, err := e.auth.EvidenceHash(testChain, contractAddr, content, debateID)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (e *testEnv) recordDebate(t *testing.T, id int64) domain.Debate {
	t.Helper()
	hash := e.mine(uint64(10+id), e.debateLog(id))
	rec, _, err := e.svc.CreateDebateFromTransaction(context.Background(), CreateDebateInput{
		Title: "Debate", TxHash: hash.Hex(), ChainID: testChain,
	})
	if err != nil {
		t.Fatalf("record debate: %v", err)
	}
	return rec
}

func TestSubmitEvidenceRequiresVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recordDebate(t, 42)

	key, _ := crypto.GenerateKey()
	voter := crypto.PubkeyToAddress(key.PublicKey)
	in := SubmitEvidenceInput{
		DebateIDPg: rec.ID,
		DebateID:   42,
		ChainID:    testChain,
		Content:    "Source: the river is wet & cold.",
		Signature:  env.signEvidence(t, key, "Source: the river is wet & cold.", 42),
	}

	if _, err := env.svc.SubmitEvidence(ctx, in); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected not authorized before voting, got %v", err)
	}
	if list, _ := env.svc.ListEvidence(ctx, rec.ID); len(list) != 0 {
		t.Fatalf("rejected submission persisted %d rows", len(list))
	}

	env.node.SetVote(42, voter, domain.VoteProof{HasVoted: true, SupportYes: true})
	ev, err := env.svc.SubmitEvidence(ctx, in)
	if err != nil {
		t.Fatalf("submit after vote: %v", err)
	}
	if ev.DebateIDPg != rec.ID || ev.Content != in.Content {
		t.Fatalf("unexpected evidence %+v", ev)
	}
	list, err := env.svc.ListEvidence(ctx, rec.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected exactly one evidence row, got %d err=%v", len(list), err)
	}

	full, err := env.svc.GetDebate(ctx, rec.ID)
	if err != nil || len(full.Evidence) != 1 {
		t.Fatalf("get debate with evidence: %+v err=%v", full, err)
	}
}

func TestSubmitEvidenceKeepsSignedTextVerbatim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recordDebate(t, 5)

	key, _ := crypto.GenerateKey()
	env.node.SetVote(5, crypto.PubkeyToAddress(key.PublicKey), domain.VoteProof{HasVoted: true})

	for _, content := range []string{"line one\r\nline two", "x &amp; y"} {
		ev, err := env.svc.SubmitEvidence(ctx, SubmitEvidenceInput{
			DebateIDPg: rec.ID,
			DebateID:   5,
			ChainID:    testChain,
			Content:    content,
			Signature:  env.signEvidence(t, key, content, 5),
		})
		if err != nil {
			t.Fatalf("submit %q: %v", content, err)
		}
		if ev.Content != content {
			t.Fatalf("stored %q, signed %q", ev.Content, content)
		}
	}
}

func TestSubmitEvidenceRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recordDebate(t, 42)
	other := env.recordDebate(t, 43)

	key, _ := crypto.GenerateKey()
	voter := crypto.PubkeyToAddress(key.PublicKey)
	env.node.SetVote(42, voter, domain.VoteProof{HasVoted: true})
	env.node.SetVote(43, voter, domain.VoteProof{HasVoted: true})
	sig42 := env.signEvidence(t, key, "claim", 42)

	tests := []struct {
		name string
		in   SubmitEvidenceInput
		want error
	}{
		{"wrong_debate_id", SubmitEvidenceInput{DebateIDPg: other.ID, DebateID: 43, ChainID: testChain, Content: "claim", Signature: sig42}, domain.ErrNotAuthorized},
		{"record_mismatch", SubmitEvidenceInput{DebateIDPg: other.ID, DebateID: 42, ChainID: testChain, Content: "claim", Signature: sig42}, domain.ErrDebateMismatch},
		{"unknown_record", SubmitEvidenceInput{DebateIDPg: 999, DebateID: 42, ChainID: testChain, Content: "claim", Signature: sig42}, domain.ErrNotFound},
		{"bad_signature", SubmitEvidenceInput{DebateIDPg: rec.ID, DebateID: 42, ChainID: testChain, Content: "claim", Signature: "0x00"}, domain.ErrSignatureInvalid},
		{"claimed_other_address", SubmitEvidenceInput{DebateIDPg: rec.ID, DebateID: 42, ChainID: testChain, Content: "claim", Signature: sig42, Address: creatorAddr.Hex()}, domain.ErrNotAuthorized},
		{"markup_content", SubmitEvidenceInput{DebateIDPg: rec.ID, DebateID: 42, ChainID: testChain, Content: "<img src=x>", Signature: sig42}, domain.ErrInvalidInput},
		{"unsupported_chain", SubmitEvidenceInput{DebateIDPg: rec.ID, DebateID: 42, ChainID: 5, Content: "claim", Signature: sig42}, domain.ErrUnsupportedChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.SubmitEvidence(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	for _, id := range []int64{rec.ID, other.ID} {
		if list, _ := env.svc.ListEvidence(ctx, id); len(list) != 0 {
			t.Fatalf("rejections persisted evidence on %d", id)
		}
	}
}

func TestUpdateDebate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recordDebate(t, 1)

	title := "Better title"
	got, err := env.svc.UpdateDebate(ctx, rec.ID, UpdateDebateInput{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != title || got.Description != rec.Description || got.DebateID != 1 {
		t.Fatalf("unexpected update %+v", got)
	}

	if _, err := env.svc.UpdateDebate(ctx, rec.ID, UpdateDebateInput{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
	bad := "<b>bold</b>"
	if _, err := env.svc.UpdateDebate(ctx, rec.ID, UpdateDebateInput{Description: &bad}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for markup, got %v", err)
	}
	if _, err := env.svc.UpdateDebate(ctx, 404, UpdateDebateInput{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLiveDebatesDerivesMetrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.recordDebate(t, 1)
	env.recordDebate(t, 2)

	env.node.SetDebate(1, domain.DebateState{
		Creator: creatorAddr, EndTime: 1, VoteFee: big.NewInt(1e15),
		YesCount: big.NewInt(3), NoCount: big.NewInt(1),
		YesPot: big.NewInt(3e15), NoPot: big.NewInt(1e15),
	})
	env.svc.now = func() time.Time { return time.Unix(100, 0) }

	live, err := env.svc.LiveDebates(ctx)
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected two debates, got %d", len(live))
	}
	m := live[0].Metrics
	if !m.Known || m.YesPercent != 75 || m.NoPercent != 25 || !m.VotingClosed || m.YesPot != "0.003 tBNB" {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if live[1].State != nil || live[1].Metrics.Known {
		t.Fatalf("debate unknown to the contract must be unknown, got %+v", live[1])
	}
}

func TestLiveDebatesKeepsPartialStateOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.recordDebate(t, 1)
	env.node.SetDebate(1, domain.DebateState{
		Creator: creatorAddr, EndTime: 1 << 40,
		YesCount: big.NewInt(1), NoCount: big.NewInt(1),
		YesPot: big.NewInt(1e15), NoPot: big.NewInt(1e15),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.node.OnBatch = cancel

	live, err := env.svc.LiveDebates(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(live) != 1 || live[0].State == nil || !live[0].Metrics.Known || live[0].Metrics.YesPercent != 50 {
		t.Fatalf("completed chain results were dropped: %+v", live)
	}
}

func TestVoteStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recordDebate(t, 9)
	voter := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	env.node.SetVote(9, voter, domain.VoteProof{HasVoted: true, Claimed: true})

	proof, err := env.svc.VoteStatus(ctx, rec.ID, voter.Hex())
	if err != nil {
		t.Fatalf("vote status: %v", err)
	}
	if !proof.HasVoted || !proof.Claimed {
		t.Fatalf("unexpected proof %+v", proof)
	}
	if _, err := env.svc.VoteStatus(ctx, rec.ID, "nope"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAuditFindsUnrecordedDebates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.recordDebate(t, 1) // block 11
	orphanTx := env.mine(40, env.debateLog(2))
	env.mine(41, chaintest.DebateCreatedLog(env.contract, common.Address{0xee}, big.NewInt(3), creatorAddr, 1, big.NewInt(1)))

	report, err := env.svc.Audit(ctx, testChain, 0, 0)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.To != 41 || report.Created != 2 || report.Recorded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Orphans) != 1 || report.Orphans[0].DebateID != 2 || report.Orphans[0].TxHash != orphanTx.Hex() {
		t.Fatalf("unexpected orphans %+v", report.Orphans)
	}

	if _, err := env.svc.Audit(ctx, testChain, 50, 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
}
