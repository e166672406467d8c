// Package metrics records chain level measurements as prometheus collectors
// held in a registry owned by the node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set of gossip directions used as a label value.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds the collectors for a node. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	blocks       prometheus.Counter
	blockTime    prometheus.Histogram
	blockTxs     prometheus.Histogram
	mempool      prometheus.Gauge
	peers        prometheus.Gauge
	gossip       *prometheus.CounterVec
	latestHeight prometheus.Gauge
}

// New constructs the collectors under the namespace and registers them with
// a fresh registry, along with the go runtime and process collectors.
func New(namespace string) *Metrics {
	m := Metrics{
		registry: prometheus.NewRegistry(),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Number of blocks added to the chain.",
		}),
		blockTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_production_seconds",
			Help:      "Time spent producing a block, from selecting transactions to a solved or signed block.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		blockTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_transactions",
			Help:      "Number of transactions per block.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		mempool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_transactions",
			Help:      "Number of transactions waiting in the mempool.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_peers",
			Help:      "Number of peers in the routing table.",
		}),
		gossip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_messages_total",
			Help:      "Number of gossip messages by kind and direction.",
		}, []string{"kind", "direction"}),
		latestHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_block_number",
			Help:      "Number of the latest block in the chain.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.blocks,
		m.blockTime,
		m.blockTxs,
		m.mempool,
		m.peers,
		m.gossip,
		m.latestHeight,
	)

	return &m
}

// Handler returns the http handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the collectors belong to.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBlock records a block added to the chain. A zero duration means
// the block was received from a peer and only counts towards the totals.
func (m *Metrics) ObserveBlock(number uint64, txs int, took time.Duration) {
	if m == nil {
		return
	}

	m.blocks.Inc()
	m.blockTxs.Observe(float64(txs))
	m.latestHeight.Set(float64(number))
	if took > 0 {
		m.blockTime.Observe(took.Seconds())
	}
}

// SetLatest records the height of the chain without counting a new block,
// as when a node opens a chain from storage.
func (m *Metrics) SetLatest(number uint64) {
	if m == nil {
		return
	}
	m.latestHeight.Set(float64(number))
}

// SetMempool records the size of the mempool.
func (m *Metrics) SetMempool(n int) {
	if m == nil {
		return
	}
	m.mempool.Set(float64(n))
}

// SetPeers records the size of the routing table.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

// GossipMessage counts a gossip message of the specified kind.
func (m *Metrics) GossipMessage(kind string, direction string) {
	if m == nil {
		return
	}
	m.gossip.WithLabelValues(kind, direction).Inc()
}
