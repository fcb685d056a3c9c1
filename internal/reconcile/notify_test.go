package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/devblac/syt-bridge/internal/sink"
	"github.com/devblac/syt-bridge/internal/storage"
)

type memRecorder struct {
	mu   sync.Mutex
	rows []storage.Delivery
}

func (m *memRecorder) RecordDelivery(_ context.Context, d storage.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, d)
	return nil
}

func TestNotifierRoutesAndRecords(t *testing.T) {
	all := &recordingSender{}
	mainnetOnly, err := sink.WithConditions(&recordingSender{}, []string{"chain_id == 1"})
	if err != nil {
		t.Fatalf("conditions: %v", err)
	}
	broken := &recordingSender{err: &sink.StatusError{Code: 500}}
	rec := &memRecorder{}

	n := NewNotifier(map[string]sink.Sender{"all": all, "mainnet": mainnetOnly, "broken": broken}, rec, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, sink.Event{Kind: "debate_created", ChainID: 97, DebateIDPg: 3})
	cancel()
	n.Wait()

	if len(all.events) != 1 {
		t.Fatalf("expected delivery despite cancelled request context, got %d", len(all.events))
	}
	if len(rec.rows) != 2 {
		t.Fatalf("expected 2 delivery rows (filtered sink skipped), got %+v", rec.rows)
	}
	for _, d := range rec.rows {
		switch d.SinkID {
		case "all":
			if d.Status != "sent" {
				t.Fatalf("unexpected %+v", d)
			}
		case "broken":
			if d.Status != "failed" || d.ResponseCode != 500 {
				t.Fatalf("unexpected %+v", d)
			}
		default:
			t.Fatalf("unexpected sink %s", d.SinkID)
		}
	}
}

func TestNilNotifier(t *testing.T) {
	n := NewNotifier(nil, nil, nil, nil)
	if n != nil {
		t.Fatalf("expected nil notifier without senders")
	}
	n.Notify(context.Background(), sink.Event{})
	n.Wait()
}
