// Package metrics exposes the swarm's Prometheus instrumentation: live peer
// and client-endpoint gauges, delta-gossip counters, per-type dispatch
// counters, and catch-up outcome counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the swarm's Prometheus collectors. A nil *Metrics is
// safe to call methods on (all become no-ops), so components can be built
// without metrics wired in.
type Metrics struct {
	LivePeers       prometheus.Gauge
	ClientEndpoints prometheus.Gauge

	DeltasDistributed prometheus.Counter
	DeltasReceived    prometheus.Counter

	MessagesDispatched *prometheus.CounterVec
	CatchUpRuns        *prometheus.CounterVec
}

// New builds a fresh, unregistered Metrics instance.
func New() *Metrics {
	return &Metrics{
		LivePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainswarm_live_peers",
			Help: "Number of peers currently in the live peer set.",
		}),
		ClientEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainswarm_client_endpoints",
			Help: "Number of open client endpoints.",
		}),
		DeltasDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainswarm_deltas_distributed_total",
			Help: "Total number of PeerSetDelta messages broadcast.",
		}),
		DeltasReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainswarm_deltas_received_total",
			Help: "Total number of PeerSetDelta messages applied.",
		}),
		MessagesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainswarm_messages_dispatched_total",
			Help: "Total number of inbound messages dispatched, by type.",
		}, []string{"type"}),
		CatchUpRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainswarm_catchup_runs_total",
			Help: "Total number of catch-up runs, by outcome.",
		}, []string{"outcome"}),
	}
}

// MustRegister registers every collector with reg (use prometheus.DefaultRegisterer
// for the global registry).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	reg.MustRegister(m.LivePeers, m.ClientEndpoints, m.DeltasDistributed, m.DeltasReceived, m.MessagesDispatched, m.CatchUpRuns)
}

func (m *Metrics) SetLivePeers(n int) {
	if m == nil {
		return
	}
	m.LivePeers.Set(float64(n))
}

func (m *Metrics) SetClientEndpoints(n int) {
	if m == nil {
		return
	}
	m.ClientEndpoints.Set(float64(n))
}

func (m *Metrics) IncDeltaDistributed() {
	if m == nil {
		return
	}
	m.DeltasDistributed.Inc()
}

func (m *Metrics) IncDeltaReceived() {
	if m == nil {
		return
	}
	m.DeltasReceived.Inc()
}

func (m *Metrics) IncDispatched(msgType string) {
	if m == nil {
		return
	}
	m.MessagesDispatched.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncCatchUp(outcome string) {
	if m == nil {
		return
	}
	m.CatchUpRuns.WithLabelValues(outcome).Inc()
}
