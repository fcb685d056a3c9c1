package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters.
type Metrics struct {
	debatesCreated    prometheus.Counter
	debatesReplayed   prometheus.Counter
	evidenceCreated   prometheus.Counter
	authzRejected     *prometheus.CounterVec
	rpcErrors         *prometheus.CounterVec
	aggregations      prometheus.Counter
	notificationsSent *prometheus.CounterVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			debatesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "syt_bridge_debates_created_total",
				Help: "Debates persisted from verified transactions",
			}),
			debatesReplayed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "syt_bridge_debates_replayed_total",
				Help: "Debate submissions that matched an existing record",
			}),
			evidenceCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "syt_bridge_evidence_created_total",
				Help: "Evidence rows persisted after authorization",
			}),
			authzRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "syt_bridge_authz_rejected_total",
				Help: "Evidence submissions rejected by authorization",
			}, []string{"reason"}),
			rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "syt_bridge_rpc_errors_total",
				Help: "Chain node reads that failed after retries",
			}, []string{"chain_id"}),
			aggregations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "syt_bridge_aggregations_total",
				Help: "Contract state aggregation passes",
			}),
			notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "syt_bridge_notifications_total",
				Help: "Sink notifications by outcome",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			metrics.debatesCreated,
			metrics.debatesReplayed,
			metrics.evidenceCreated,
			metrics.authzRejected,
			metrics.rpcErrors,
			metrics.aggregations,
			metrics.notificationsSent,
		)
	})
	return metrics
}

// DebateCreated increments the debates created counter.
func (m *Metrics) DebateCreated() {
	if m != nil {
		m.debatesCreated.Inc()
	}
}

// DebateReplayed counts a creation that resolved to an existing row.
func (m *Metrics) DebateReplayed() {
	if m != nil {
		m.debatesReplayed.Inc()
	}
}

func (m *Metrics) EvidenceCreated() {
	if m != nil {
		m.evidenceCreated.Inc()
	}
}

// AuthzRejected counts a rejected evidence submission by error kind.
func (m *Metrics) AuthzRejected(reason string) {
	if m != nil {
		m.authzRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RPCError(chainID int64) {
	if m != nil {
		m.rpcErrors.WithLabelValues(strconv.FormatInt(chainID, 10)).Inc()
	}
}

func (m *Metrics) Aggregation() {
	if m != nil {
		m.aggregations.Inc()
	}
}

// Notification counts a sink delivery as "sent" or "failed".
func (m *Metrics) Notification(status string) {
	if m != nil {
		m.notificationsSent.WithLabelValues(status).Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
