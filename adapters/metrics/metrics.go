package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what happens on the ingestion path and the live feed.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	received   prometheus.Counter
	stored     prometheus.Counter
	dropped    *prometheus.CounterVec
	storeFails prometheus.Counter
	broadcast  prometheus.Counter
	viewers    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_messages_received_total",
			Help: "Messages delivered by the message channel.",
		}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_readings_stored_total",
			Help: "Readings written to the store.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_messages_dropped_total",
			Help: "Messages dropped before becoming a reading.",
		}, []string{"reason"}),
		storeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_store_failures_total",
			Help: "Readings the store refused.",
		}),
		broadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorhub_events_broadcast_total",
			Help: "Live events handed to the broadcast sink.",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_live_viewers",
			Help: "Currently connected live viewers.",
		}),
	}

	reg.MustRegister(m.received, m.stored, m.dropped, m.storeFails, m.broadcast, m.viewers)
	return m
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) MessageDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ReadingStored() {
	if m != nil {
		m.stored.Inc()
	}
}

func (m *Metrics) StoreFailed() {
	if m != nil {
		m.storeFails.Inc()
	}
}

func (m *Metrics) EventBroadcast() {
	if m != nil {
		m.broadcast.Inc()
	}
}

func (m *Metrics) SetViewers(n int) {
	if m != nil {
		m.viewers.Set(float64(n))
	}
}
