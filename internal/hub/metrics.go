package hub

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the hub's Prometheus instrumentation (§1 expansion:
// ambient observability, never consulted by routing decisions).
type metrics struct {
	packetsRouted   prometheus.Counter
	dispatchErrors  *prometheus.CounterVec
	registeredNodes prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		packetsRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samcore_hub_packets_routed_total",
			Help: "Packets forwarded between nodes via send/return.",
		}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samcore_hub_dispatch_errors_total",
			Help: "Dispatch errors observed, labeled by error kind.",
		}, []string{"kind"}),
		registeredNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "samcore_hub_registered_nodes",
			Help: "Current count of registered node connections.",
		}),
	}
	reg.MustRegister(m.packetsRouted, m.dispatchErrors, m.registeredNodes)
	return m
}

// Error kind labels, matching §7's error taxonomy.
const (
	errKindProtocol  = "protocol"
	errKindArgument  = "argument"
	errKindAuth      = "authorization"
	errKindStorage   = "storage"
	errKindTransport = "transport"
)
