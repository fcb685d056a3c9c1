package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblac/syt-bridge/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDebate(debateID int64) domain.Debate {
	return domain.Debate{
		DebateID:       debateID,
		ChainID:        97,
		Title:          "Is water wet?",
		Description:    "A classic.",
		CreationTxHash: "0xabc",
	}
}

func TestCreateDebateUniquePerChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateDebate(ctx, testDebate(42))
	if err != nil {
		t.Fatalf("create debate: %v", err)
	}
	if first.ID == 0 || first.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", first)
	}

	_, err = store.CreateDebate(ctx, testDebate(42))
	if !errors.Is(err, domain.ErrStorageConflict) {
		t.Fatalf("expected storage conflict, got %v", err)
	}

	other := testDebate(42)
	other.ChainID = 11155111
	if _, err := store.CreateDebate(ctx, other); err != nil {
		t.Fatalf("same debate id on another chain should insert: %v", err)
	}

	got, err := store.GetDebateByChain(ctx, 97, 42)
	if err != nil {
		t.Fatalf("get by chain: %v", err)
	}
	if got.ID != first.ID || got.Title != first.Title || got.AssetURL != "" {
		t.Fatalf("unexpected debate %+v", got)
	}
}

func TestCreateDebateRejectsIncompleteRows(t *testing.T) {
	store := newTestStore(t)
	d := testDebate(1)
	d.CreationTxHash = ""
	if _, err := store.CreateDebate(context.Background(), d); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGetDebateNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetDebate(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateDebateKeepsIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d, err := store.CreateDebate(ctx, testDebate(5))
	if err != nil {
		t.Fatalf("create debate: %v", err)
	}
	store.now = func() time.Time { return d.CreatedAt.Add(time.Minute) }

	updated, err := store.UpdateDebate(ctx, d.ID, "New title", "New description")
	if err != nil {
		t.Fatalf("update debate: %v", err)
	}
	if updated.Title != "New title" || updated.DebateID != 5 || updated.CreationTxHash != "0xabc" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("updated_at not advanced: %+v", updated)
	}

	if _, err := store.UpdateDebate(ctx, 1234, "x", "y"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEvidenceOrderedByCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d, err := store.CreateDebate(ctx, testDebate(1))
	if err != nil {
		t.Fatalf("create debate: %v", err)
	}

	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Second)
		store.now = func() time.Time { return at }
		if _, err := store.CreateEvidence(ctx, domain.Evidence{DebateIDPg: d.ID, Content: content}); err != nil {
			t.Fatalf("create evidence: %v", err)
		}
	}

	list, err := store.ListEvidence(ctx, d.ID)
	if err != nil {
		t.Fatalf("list evidence: %v", err)
	}
	if len(list) != 3 || list[0].Content != "first" || list[2].Content != "third" {
		t.Fatalf("unexpected order %+v", list)
	}

	empty, err := store.ListEvidence(ctx, 999)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", empty, err)
	}
}

func TestEvidenceRequiresDebate(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEvidence(context.Background(), domain.Evidence{DebateIDPg: 77, Content: "orphan"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing debate, got %v", err)
	}
}

func TestAuditCursorUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetAuditCursor(ctx, 97); err != nil || ok {
		t.Fatalf("expected no cursor, ok=%v err=%v", ok, err)
	}
	if err := store.UpsertAuditCursor(ctx, 97, 100); err != nil {
		t.Fatalf("upsert cursor: %v", err)
	}
	if err := store.UpsertAuditCursor(ctx, 97, 250); err != nil {
		t.Fatalf("upsert cursor update: %v", err)
	}
	block, ok, err := store.GetAuditCursor(ctx, 97)
	if err != nil || !ok || block != 250 {
		t.Fatalf("cursor not updated: %d ok=%v err=%v", block, ok, err)
	}
}

func TestRecordDeliveryOnePerSink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d, err := store.CreateDebate(ctx, testDebate(3))
	if err != nil {
		t.Fatalf("create debate: %v", err)
	}

	if err := store.RecordDelivery(ctx, Delivery{DebateIDPg: d.ID, SinkID: "slack", Status: "failed", ResponseCode: 500}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}
	if err := store.RecordDelivery(ctx, Delivery{DebateIDPg: d.ID, SinkID: "slack", Status: "sent", ResponseCode: 200}); err != nil {
		t.Fatalf("record delivery retry: %v", err)
	}
	if err := store.RecordDelivery(ctx, Delivery{SinkID: "slack"}); err == nil {
		t.Fatalf("expected validation error")
	}

	list, err := store.Deliveries(ctx, d.ID)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if len(list) != 1 || list[0].Status != "sent" || list[0].ResponseCode != 200 {
		t.Fatalf("unexpected deliveries %+v", list)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO debates (debate_id, chain_id, title, description, creation_tx_hash, created_at, updated_at)
VALUES (9, 97, 't', 'd', '0x1', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, err := store.GetDebateByChain(ctx, 97, 9); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("insert should have rolled back, got %v", err)
	}
}
