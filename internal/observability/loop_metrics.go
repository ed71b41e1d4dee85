package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LoopCollector exposes counters about the PHY loop itself.
type LoopCollector struct {
	gatherer prometheus.Gatherer

	TTIsProcessed    prometheus.Counter
	TTIDuration      prometheus.Histogram
	CurrentTTI       prometheus.Gauge
	NonFiniteSINR    *prometheus.CounterVec
	ReportsPublished prometheus.Counter
}

// NewLoopCollector registers loop metrics against the provided registerer.
func NewLoopCollector(reg prometheus.Registerer) (*LoopCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	processed, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phy_ttis_processed_total",
		Help: "Number of TTIs processed by the PHY loop.",
	}), "phy_ttis_processed_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "phy_tti_processing_seconds",
		Help:    "Time spent handling one TTI, compared against the 1 ms subframe budget.",
		Buckets: []float64{1e-6, 5e-6, 10e-6, 50e-6, 100e-6, 250e-6, 500e-6, 1e-3, 2e-3},
	}), "phy_tti_processing_seconds")
	if err != nil {
		return nil, err
	}

	current, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "phy_current_tti",
		Help: "Last TTI processed by the PHY loop.",
	}), "phy_current_tti")
	if err != nil {
		return nil, err
	}

	nonFinite, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_sinr_nonfinite_total",
		Help: "SINR observations excluded from the average because they were NaN or infinite.",
	}, []string{"carrier"}), "phy_sinr_nonfinite_total")
	if err != nil {
		return nil, err
	}

	reports, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phy_reports_total",
		Help: "Number of periodic metric reports emitted by the PHY loop.",
	}), "phy_reports_total")
	if err != nil {
		return nil, err
	}

	return &LoopCollector{
		gatherer:         gatherer,
		TTIsProcessed:    processed,
		TTIDuration:      duration,
		CurrentTTI:       current,
		NonFiniteSINR:    nonFinite,
		ReportsPublished: reports,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *LoopCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTTI records one processed TTI and how long it took.
func (c *LoopCollector) ObserveTTI(t uint32, d time.Duration) {
	if c == nil {
		return
	}
	if c.TTIsProcessed != nil {
		c.TTIsProcessed.Inc()
	}
	if c.TTIDuration != nil {
		c.TTIDuration.Observe(d.Seconds())
	}
	if c.CurrentTTI != nil {
		c.CurrentTTI.Set(float64(t))
	}
}

// IncNonFiniteSINR counts one excluded SINR observation on carrier cc.
func (c *LoopCollector) IncNonFiniteSINR(cc uint32) {
	if c == nil || c.NonFiniteSINR == nil {
		return
	}
	c.NonFiniteSINR.WithLabelValues(strconv.FormatUint(uint64(cc), 10)).Inc()
}

// IncReports counts one periodic report.
func (c *LoopCollector) IncReports() {
	if c == nil || c.ReportsPublished == nil {
		return
	}
	c.ReportsPublished.Inc()
}
