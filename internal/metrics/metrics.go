package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Host results
const (
	ResultSynced  = "synced"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics collects the counters of one sync run in a private registry,
// so they can be written out as a node-exporter textfile when the run ends
type Metrics struct {
	registry *prometheus.Registry

	hosts       *prometheus.CounterVec
	apiRequests *prometheus.CounterVec
	lastRun     prometheus.Gauge
	runDuration prometheus.Gauge
}

// New creates and registers the sync metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hosts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expo_sync_hosts_total",
				Help: "Hosts processed by the last sync run, by result",
			},
			[]string{"result"},
		),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expo_sync_api_requests_total",
				Help: "Requests sent to the Joplin API",
			},
			[]string{"method", "endpoint", "code"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "expo_sync_last_run_timestamp_seconds",
				Help: "Unix time the last sync run finished",
			},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "expo_sync_run_duration_seconds",
				Help: "Wall time of the last sync run",
			},
		),
	}

	m.registry.MustRegister(m.hosts, m.apiRequests, m.lastRun, m.runDuration)
	return m
}

// ObserveHost counts one processed host
func (m *Metrics) ObserveHost(result string) {
	m.hosts.WithLabelValues(result).Inc()
}

// ObserveRequest counts one API request. Code 0 means the request never
// got a response.
func (m *Metrics) ObserveRequest(method, endpoint string, code int) {
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	m.apiRequests.WithLabelValues(method, endpoint, label).Inc()
}

// ObserveRun records when the run finished and how long it took
func (m *Metrics) ObserveRun(start, end time.Time) {
	m.lastRun.Set(float64(end.Unix()))
	m.runDuration.Set(end.Sub(start).Seconds())
}

// WriteTextfile writes all metrics to path in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
