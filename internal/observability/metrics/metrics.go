package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the intake call flow.
type CallMetrics struct {
	callsStarted   prometheus.Counter
	turnsTotal     *prometheus.CounterVec
	fieldsCaptured *prometheus.CounterVec
	persistTotal   *prometheus.CounterVec
	turnLatency    prometheus.Histogram
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "voice",
			Name:      "calls_started_total",
			Help:      "Total inbound calls answered",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "voice",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"status"}),
		fieldsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "voice",
			Name:      "fields_captured_total",
			Help:      "Total patient fields captured by extraction",
		}, []string{"field"}),
		persistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "voice",
			Name:      "persist_total",
			Help:      "Outcomes of patient record persistence attempts",
		}, []string{"status"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "voice",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a full utterance-to-reply turn",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsStarted, m.turnsTotal, m.fieldsCaptured, m.persistTotal, m.turnLatency)
	return m
}

func (m *CallMetrics) ObserveCallStarted() {
	if m == nil {
		return
	}
	m.callsStarted.Inc()
}

func (m *CallMetrics) ObserveTurn(status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *CallMetrics) ObserveFieldCaptured(field string) {
	if m == nil {
		return
	}
	m.fieldsCaptured.WithLabelValues(field).Inc()
}

func (m *CallMetrics) ObservePersist(status string) {
	if m == nil {
		return
	}
	m.persistTotal.WithLabelValues(status).Inc()
}
