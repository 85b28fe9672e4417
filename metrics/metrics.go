// Package metrics exposes the ranging core's operational counters through
// a Prometheus registry. None of this affects ranging correctness; it is
// purely for watching a node from the outside.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the counters and gauges for one node. Every metric
// carries a node_id constant label, so the Collectors of several Node
// instances in one process can all be registered against one shared
// registry (the host-side simulation in cmd/twrsim does exactly this).
type Collector struct {
	RangesComputed prometheus.Counter
	PeersEvicted   prometheus.Counter
	CounterDesyncs prometheus.Counter
	PeersRejected  prometheus.Counter
	RingOccupancy  prometheus.Gauge
	SlotTimeouts   prometheus.Counter
}

// New creates a Collector and registers its metrics against reg, labeling
// them all with the node's own ID so one registry can host several nodes
// if the caller wants a combined /metrics endpoint.
func New(reg prometheus.Registerer, ourID uint8) *Collector {
	labels := prometheus.Labels{"node_id": formatID(ourID)}

	c := &Collector{
		RangesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "twrcore_ranges_computed_total",
			Help:        "Number of DS-TWR exchanges that produced an accepted range.",
			ConstLabels: labels,
		}),
		PeersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "twrcore_peers_evicted_total",
			Help:        "Number of peers dropped for exceeding the eviction threshold.",
			ConstLabels: labels,
		}),
		CounterDesyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "twrcore_counter_desyncs_total",
			Help:        "Number of shared-counter protocol desync events observed.",
			ConstLabels: labels,
		}),
		PeersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "twrcore_peers_rejected_total",
			Help:        "Number of new-peer frames rejected because the table was full.",
			ConstLabels: labels,
		}),
		RingOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "twrcore_ring_occupancy",
			Help:        "Current number of peers tracked in the transmission order.",
			ConstLabels: labels,
		}),
		SlotTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "twrcore_slot_timeouts_total",
			Help:        "Number of MAC slot timeouts attributed to any peer.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		c.RangesComputed,
		c.PeersEvicted,
		c.CounterDesyncs,
		c.PeersRejected,
		c.RingOccupancy,
		c.SlotTimeouts,
	)

	return c
}

func formatID(id uint8) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{'0', 'x', hexDigits[id>>4], hexDigits[id&0xf]})
}
