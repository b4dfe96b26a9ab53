// Package metrics exposes the pipeline's Prometheus instrumentation: a set of
// CounterVec instances built by New and registered once against the
// Registerer it is given, with thin helper methods so call sites never touch
// the prometheus API directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter the pipeline updates.
type Metrics struct {
	packetsEmitted      *prometheus.CounterVec // by packet_kind
	hitsEmitted         *prometheus.CounterVec // by classifier_id
	alertsEmitted       *prometheus.CounterVec // by severity
	darkEventsEmitted   *prometheus.CounterVec // by type
	persistenceFailures *prometheus.CounterVec // by table
	publishFailures     *prometheus.CounterVec // by subject
	busOverflows        *prometheus.CounterVec // by subject
}

// New builds the metric set and registers it against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_packets_emitted_total",
			Help: "Flow packets emitted, by packet_kind.",
		}, []string{"packet_kind"}),
		hitsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_classifier_hits_total",
			Help: "Classifier hits emitted, by classifier_id.",
		}, []string{"classifier_id"}),
		alertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_alerts_emitted_total",
			Help: "Alerts emitted, by severity.",
		}, []string{"severity"}),
		darkEventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_dark_events_emitted_total",
			Help: "Dark-pool inference events emitted, by type.",
		}, []string{"type"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_persistence_failures_total",
			Help: "Store insert failures, by table.",
		}, []string{"table"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_publish_failures_total",
			Help: "Bus publish failures, by subject.",
		}, []string{"subject"}),
		busOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_bus_subscriber_overflow_total",
			Help: "Subscriber queue overflows on the in-memory bus, by subject.",
		}, []string{"subject"}),
	}
	reg.MustRegister(
		m.packetsEmitted,
		m.hitsEmitted,
		m.alertsEmitted,
		m.darkEventsEmitted,
		m.persistenceFailures,
		m.publishFailures,
		m.busOverflows,
	)
	return m
}

func (m *Metrics) PacketEmitted(packetKind string)  { m.packetsEmitted.WithLabelValues(packetKind).Inc() }
func (m *Metrics) HitEmitted(classifierID string)   { m.hitsEmitted.WithLabelValues(classifierID).Inc() }
func (m *Metrics) AlertEmitted(severity string)     { m.alertsEmitted.WithLabelValues(severity).Inc() }
func (m *Metrics) DarkEventEmitted(eventType string) {
	m.darkEventsEmitted.WithLabelValues(eventType).Inc()
}
func (m *Metrics) PersistenceFailure(table string) { m.persistenceFailures.WithLabelValues(table).Inc() }
func (m *Metrics) PublishFailure(subject string)   { m.publishFailures.WithLabelValues(subject).Inc() }
func (m *Metrics) BusOverflow(subject string)      { m.busOverflows.WithLabelValues(subject).Inc() }
