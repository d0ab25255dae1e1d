package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
)

var (
	AdvertisementsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dvr",
		Name:      "advertisements_sent_total",
		Help:      "Advertisements sent to live neighbours",
	})
	AdvertisementsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dvr",
		Name:      "advertisements_accepted_total",
		Help:      "Advertisements accepted from live neighbours",
	})
	AdvertisementsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dvr",
		Name:      "advertisements_discarded_total",
		Help:      "Advertisements discarded, by reason",
	}, []string{"reason"})
	IOErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dvr",
		Name:      "io_errors_total",
		Help:      "Failed socket reads and writes",
	}, []string{"op"})
	NeighbourDowns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dvr",
		Name:      "neighbour_down_total",
		Help:      "Neighbours removed by timeout or by the disable command",
	})
	ReachableNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dvr",
		Name:      "reachable_nodes",
		Help:      "Nodes with a finite cost after the last recomputation",
	})
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("dvr:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("dvr:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("dvr:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("dvr:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("dvr:DispatchLatency (µs)", DispatchLatency)
}
