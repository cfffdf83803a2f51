// Package telemetry exposes the signaling plane's prometheus metrics.
// All helpers are no-ops until Init is called.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const sfuNamespace = "sfu"

var (
	initialized atomic.Bool

	promSessionCurrent   prometheus.Gauge
	promProducerCurrent  *prometheus.GaugeVec
	promConsumerCounter  *prometheus.CounterVec
	promRequestCounter   *prometheus.CounterVec
	promBroadcastCounter *prometheus.CounterVec
	promWorkerDied       prometheus.Counter
)

func Init(nodeID string) {
	if initialized.Swap(true) {
		return
	}
	labels := prometheus.Labels{"node_id": nodeID}

	promSessionCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "session",
		Name:        "total",
		ConstLabels: labels,
		Help:        "Connected signaling sessions.",
	})
	promProducerCurrent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "producer",
		Name:        "total",
		ConstLabels: labels,
	}, []string{"kind"})
	promConsumerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "consumer",
		Name:        "created",
		ConstLabels: labels,
	}, []string{"kind", "type"})
	promRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "signal",
		Name:        "requests",
		ConstLabels: labels,
	}, []string{"method", "status"})
	promBroadcastCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "signal",
		Name:        "broadcasts",
		ConstLabels: labels,
		Help:        "Broadcast deliveries by event and outcome.",
	}, []string{"event", "status"})
	promWorkerDied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   sfuNamespace,
		Subsystem:   "worker",
		Name:        "died",
		ConstLabels: labels,
	})

	prometheus.MustRegister(promSessionCurrent)
	prometheus.MustRegister(promProducerCurrent)
	prometheus.MustRegister(promConsumerCounter)
	prometheus.MustRegister(promRequestCounter)
	prometheus.MustRegister(promBroadcastCounter)
	prometheus.MustRegister(promWorkerDied)
}

func SessionStarted() {
	if initialized.Load() {
		promSessionCurrent.Inc()
	}
}

func SessionEnded() {
	if initialized.Load() {
		promSessionCurrent.Dec()
	}
}

func ProducerAdded(kind string) {
	if initialized.Load() {
		promProducerCurrent.WithLabelValues(kind).Inc()
	}
}

func ProducerRemoved(kind string) {
	if initialized.Load() {
		promProducerCurrent.WithLabelValues(kind).Dec()
	}
}

func ConsumerCreated(kind, typ string) {
	if initialized.Load() {
		promConsumerCounter.WithLabelValues(kind, typ).Inc()
	}
}

func RequestHandled(method string, err error) {
	if !initialized.Load() {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	promRequestCounter.WithLabelValues(method, status).Inc()
}

func BroadcastResult(event string, sent, dropped int) {
	if !initialized.Load() {
		return
	}
	promBroadcastCounter.WithLabelValues(event, "sent").Add(float64(sent))
	promBroadcastCounter.WithLabelValues(event, "dropped").Add(float64(dropped))
}

func WorkerDied() {
	if initialized.Load() {
		promWorkerDied.Inc()
	}
}
