// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wxrelay"

// Metrics holds the counters and gauges shared by all stations. Every
// collector is labelled by station name.
type Metrics struct {
	PacketsReceived   *prometheus.CounterVec // labels: station
	ConnectionEvents  *prometheus.CounterVec // labels: station, event
	ReportsSent       *prometheus.CounterVec // labels: station, outcome={sent,error,empty}
	SensorUpdates     *prometheus.CounterVec // labels: station, measure
	ConnectionState   *prometheus.GaugeVec   // labels: station
	StationAvailable  *prometheus.GaugeVec   // labels: station
	RainMillimeters   *prometheus.GaugeVec   // labels: station, window={1h,24h,today}
	LastReportSeconds *prometheus.GaugeVec   // labels: station
}

func newMetrics() *Metrics {
	return &Metrics{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "APRS packets received from APRS-IS.",
		}, []string{"station"}),
		ConnectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "APRS-IS connection lifecycle events by type.",
		}, []string{"station", "event"}),
		ReportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Weather report transmissions by outcome.",
		}, []string{"station", "outcome"}),
		SensorUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_updates_total",
			Help:      "Sensor readings accepted by measurement.",
		}, []string{"station", "measure"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 logged in, 4 closing.",
		}, []string{"station"}),
		StationAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "station_available",
			Help:      "1 when the station is available, 0 otherwise.",
		}, []string{"station"}),
		RainMillimeters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_millimeters",
			Help:      "Rain totals by window. Absent windows hold no data.",
		}, []string{"station", "window"}),
		LastReportSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_report_timestamp_seconds",
			Help:      "Unix time of the last successful weather report.",
		}, []string{"station"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PacketsReceived,
		m.ConnectionEvents,
		m.ReportsSent,
		m.SensorUpdates,
		m.ConnectionState,
		m.StationAvailable,
		m.RainMillimeters,
		m.LastReportSeconds,
	}
}

// NewMetrics creates all collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// SetRain records a rain window, removing the series when it holds no data.
func (m *Metrics) SetRain(station, window string, mm float64, ok bool) {
	if !ok {
		m.RainMillimeters.DeleteLabelValues(station, window)
		return
	}
	m.RainMillimeters.WithLabelValues(station, window).Set(mm)
}

// SetAvailable records the availability flag of a station.
func (m *Metrics) SetAvailable(station string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	m.StationAvailable.WithLabelValues(station).Set(v)
}
