package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the order-confirmation flows.
type BridgeMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	intentTotal    *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "webhooks",
			Name:      "inbound_total",
			Help:      "Total inbound webhook events",
		}, []string{"source", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"type", "status"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "inbound",
			Name:      "intent_total",
			Help:      "Classified inbound intents",
		}, []string{"intent", "language"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.intentTotal, m.webhookLatency)
	return m
}

func (m *BridgeMetrics) ObserveInbound(source, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, status).Inc()
}

func (m *BridgeMetrics) ObserveOutbound(messageType, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *BridgeMetrics) ObserveIntent(intent, language string) {
	if m == nil {
		return
	}
	m.intentTotal.WithLabelValues(intent, language).Inc()
}

func (m *BridgeMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}
