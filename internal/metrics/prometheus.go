package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"siemlite/internal/model"
)

const namespace = "siemlite"

// Collectors groups the Prometheus instruments of the monitor on a private
// registry. A nil *Collectors is valid and records nothing.
type Collectors struct {
	Registry       *prometheus.Registry
	alerts         *prometheus.CounterVec
	lines          prometheus.Counter
	lineErrors     prometheus.Counter
	tailerReopens  *prometheus.CounterVec
	suspicious     prometheus.Gauge
	reports        prometheus.Counter
	reportFailures prometheus.Counter
}

func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted, by category.",
		}, []string{"category"}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_processed_total",
			Help:      "Log lines run through detection.",
		}),
		lineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_errors_total",
			Help:      "Log lines skipped because processing failed.",
		}),
		tailerReopens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tailer_reopens_total",
			Help:      "Times a watched file was (re)opened.",
		}, []string{"path"}),
		suspicious: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspicious_sources",
			Help:      "Sources that crossed the brute-force threshold.",
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Incident reports written.",
		}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Incident reports that could not be written.",
		}),
	}
	c.Registry.MustRegister(
		c.alerts, c.lines, c.lineErrors, c.tailerReopens, c.suspicious, c.reports, c.reportFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, cat := range model.Categories {
		c.alerts.WithLabelValues(string(cat))
	}
	return c
}

func (c *Collectors) Alert(cat model.Category) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(string(cat)).Inc()
}

func (c *Collectors) Line() {
	if c == nil {
		return
	}
	c.lines.Inc()
}

func (c *Collectors) LineError() {
	if c == nil {
		return
	}
	c.lineErrors.Inc()
}

func (c *Collectors) TailerOpened(path string) {
	if c == nil {
		return
	}
	c.tailerReopens.WithLabelValues(path).Inc()
}

func (c *Collectors) SetSuspicious(n int) {
	if c == nil {
		return
	}
	c.suspicious.Set(float64(n))
}

func (c *Collectors) Report(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.reports.Inc()
		return
	}
	c.reportFailures.Inc()
}
