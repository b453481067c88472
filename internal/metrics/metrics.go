// Package metrics exposes Prometheus counters for the relay.
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "usb"

// Dispatch outcomes recorded by the engine.
const (
	DispatchSent   = "sent"
	DispatchFailed = "relay_failed"
)

// Metrics holds the relay counters.
type Metrics struct {
	BatchesTotal    *prometheus.CounterVec
	EncodedTotal    *prometheus.CounterVec
	DispatchesTotal *prometheus.CounterVec
	RepliesTotal    *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Command batches submitted, by result.",
		}, []string{"result"}),
		EncodedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoded_messages_total",
			Help:      "Destination messages encoded, by type URL.",
		}, []string{"type_url"}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Outer relay calls handed to the relay, by outcome.",
		}, []string{"host_chain", "outcome"}),
		RepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Completion notifications received, by reply action and outcome.",
		}, []string{"action", "outcome"}),
	}

	for _, c := range []prometheus.Collector{m.BatchesTotal, m.EncodedTotal, m.DispatchesTotal, m.RepliesTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Batch records a submitted batch. result is "accepted" or an error code.
func (m *Metrics) Batch(result string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(result).Inc()
}

// Encoded records one encoded destination message.
func (m *Metrics) Encoded(typeURL string) {
	if m == nil {
		return
	}
	m.EncodedTotal.WithLabelValues(typeURL).Inc()
}

// Dispatch records an outer call handed to the relay.
func (m *Metrics) Dispatch(hostChain, outcome string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(hostChain, outcome).Inc()
}

// Reply records a routed completion notification.
func (m *Metrics) Reply(action, outcome string) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(action, outcome).Inc()
}
