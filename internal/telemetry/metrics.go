// Package telemetry wires metrics and tracing for threatbusd: Prometheus counters/gauges served on /metrics, an
// OpenTelemetry TracerProvider for the dispatch core's publish/deliver
// spans, and a /healthz liveness endpoint.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	subscriberCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threatbus_subscriber_count",
		Help: "Number of subscriptions currently registered with the dispatch core.",
	})

	inboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "threatbus_inbox_depth",
		Help: "Number of messages currently queued in a subscriber's inbox.",
	}, []string{"p2p_topic"})

	backpressureBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatbus_backpressure_blocked_total",
		Help: "Count of messages dropped after waiting on a full inbox past the dispatch timeout.",
	}, []string{"p2p_topic"})

	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatbus_dispatched_total",
		Help: "Count of messages routed by the dispatch core, by canonical topic.",
	}, []string{"topic"})
)

// Metrics implements dispatch.Metrics over the package-level Prometheus
// collectors above.
type Metrics struct{}

// NewMetrics returns a Metrics instrumentation seam for the Dispatcher.
func NewMetrics() Metrics { return Metrics{} }

func (Metrics) SetSubscriberCount(n int) { subscriberCount.Set(float64(n)) }

func (Metrics) ObserveInboxDepth(p2pTopic string, depth int) {
	inboxDepth.WithLabelValues(p2pTopic).Set(float64(depth))
}

func (Metrics) IncBackpressureBlocked(p2pTopic string) {
	backpressureBlockedTotal.WithLabelValues(p2pTopic).Inc()
}

func (Metrics) IncDispatched(topic string) {
	dispatchedTotal.WithLabelValues(topic).Inc()
}

// Serve starts an HTTP server exposing /metrics and /healthz on addr in a
// background goroutine and returns it; the caller stops it with Close.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}
