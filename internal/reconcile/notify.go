package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devblac/syt-bridge/internal/metrics"
	"github.com/devblac/syt-bridge/internal/sink"
	"github.com/devblac/syt-bridge/internal/storage"
)

// DeliveryRecorder persists sink outcomes.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d storage.Delivery) error
}

// Notifier fans a debate event out to every sink in the background.
type Notifier struct {
	senders  map[string]sink.Sender
	recorder DeliveryRecorder
	metrics  *metrics.Metrics
	log      *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewNotifier returns nil when there are no senders; a nil Notifier is a no-op.
func NewNotifier(senders map[string]sink.Sender, recorder DeliveryRecorder, m *metrics.Metrics, log *slog.Logger) *Notifier {
	if len(senders) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{senders: senders, recorder: recorder, metrics: m, log: log, timeout: 10 * time.Second}
}

// Notify delivers ev without blocking the caller. Failures are logged and
// recorded, never returned.
func (n *Notifier) Notify(ctx context.Context, ev sink.Event) {
	if n == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, id := range sink.IDs(n.senders) {
		if !sink.Accepts(n.senders[id], ev) {
			continue
		}
		id := id
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliver(ctx, id, ev)
		}()
	}
}

func (n *Notifier) deliver(ctx context.Context, id string, ev sink.Event) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	d := storage.Delivery{DebateIDPg: ev.DebateIDPg, SinkID: id, Status: "sent"}
	if err := n.senders[id].Send(ctx, ev); err != nil {
		n.log.Warn("sink delivery failed", "sink", id, "debate_id_pg", ev.DebateIDPg, "error", err)
		d.Status, d.ResponseCode = "failed", sink.ResponseCode(err)
	}
	n.metrics.Notification(d.Status)
	if n.recorder == nil {
		return
	}
	if err := n.recorder.RecordDelivery(ctx, d); err != nil {
		n.log.Error("record delivery", "sink", id, "error", err)
	}
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
