package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "arbscan"

// MetricsCollector exports a Metrics snapshot as Prometheus metrics.
// Values are read at scrape time, so the scan loop never touches Prometheus.
type MetricsCollector struct {
	metrics *Metrics

	cycles           *prometheus.Desc
	cycleFaults      *prometheus.Desc
	fetchErrors      *prometheus.Desc
	evaluationFaults *prometheus.Desc
	opportunities    *prometheus.Desc
	skippedPairs     *prometheus.Desc
	sinkErrors       *prometheus.Desc
	avgLatency       *prometheus.Desc
	lastLatency      *prometheus.Desc
	streamClients    *prometheus.Desc
	lastCycle        *prometheus.Desc
}

// NewMetricsCollector wraps m. A nil m uses GlobalMetrics.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	if m == nil {
		m = GlobalMetrics
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
	}
	return &MetricsCollector{
		metrics:          m,
		cycles:           desc("cycles_total", "Scan cycles completed."),
		cycleFaults:      desc("cycle_faults_total", "Scan cycles that panicked and were recovered."),
		fetchErrors:      desc("fetch_errors_total", "Venue or asset quote fetch failures."),
		evaluationFaults: desc("evaluation_faults_total", "Pairs skipped because evaluation failed."),
		opportunities:    desc("opportunities_total", "Opportunities that cleared the profit threshold."),
		skippedPairs:     desc("skipped_pairs_total", "Pairs skipped because a quote was missing."),
		sinkErrors:       desc("sink_errors_total", "Failed result sink writes."),
		avgLatency:       desc("cycle_duration_avg_seconds", "Average scan cycle duration."),
		lastLatency:      desc("cycle_duration_last_seconds", "Duration of the most recent scan cycle."),
		streamClients:    desc("stream_clients", "Connected live stream clients."),
		lastCycle:        desc("last_cycle_timestamp_seconds", "Unix time of the most recent scan cycle."),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cycles
	ch <- c.cycleFaults
	ch <- c.fetchErrors
	ch <- c.evaluationFaults
	ch <- c.opportunities
	ch <- c.skippedPairs
	ch <- c.sinkErrors
	ch <- c.avgLatency
	ch <- c.lastLatency
	ch <- c.streamClients
	ch <- c.lastCycle
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.cycles, s.CyclesTotal)
	counter(c.cycleFaults, s.CycleFaults)
	counter(c.fetchErrors, s.FetchErrors)
	counter(c.evaluationFaults, s.EvaluationFaults)
	counter(c.opportunities, s.Opportunities)
	counter(c.skippedPairs, s.SkippedPairs)
	counter(c.sinkErrors, s.SinkErrors)
	gauge(c.avgLatency, float64(s.AvgLatencyNs)/1e9)
	gauge(c.lastLatency, float64(s.LastLatencyNs)/1e9)
	gauge(c.streamClients, float64(s.StreamClients))
	gauge(c.lastCycle, float64(s.LastCycleUnix))
}
