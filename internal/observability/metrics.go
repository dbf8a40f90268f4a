package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateCollector bundles Prometheus metrics for rate-control decisions. It
// satisfies ratectl.MetricsRecorder.
type RateCollector struct {
	gatherer prometheus.Gatherer

	Decisions        *prometheus.CounterVec
	RateChanges      *prometheus.CounterVec
	SelectedRate     *prometheus.HistogramVec
	Probes           *prometheus.CounterVec
	DiscardedSamples *prometheus.CounterVec
	RecoveryEntries  *prometheus.CounterVec
	FinalFailures    *prometheus.CounterVec
}

// NewRateCollector registers rate-control metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewRateCollector(reg prometheus.Registerer) (*RateCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	counter := func(name, help string, labels ...string) (*prometheus.CounterVec, error) {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
		return registerCounterVec(reg, vec, name)
	}

	decisions, err := counter("ratectl_decisions_total",
		"Data configuration selections, labeled by algorithm.", "algorithm")
	if err != nil {
		return nil, err
	}
	changes, err := counter("ratectl_rate_changes_total",
		"Selections that switched the station to a different configuration.", "algorithm")
	if err != nil {
		return nil, err
	}
	probes, err := counter("ratectl_probes_total",
		"Latency probe evaluations, labeled by whether the probe switched configuration.", "algorithm", "switched")
	if err != nil {
		return nil, err
	}
	discarded, err := counter("ratectl_discarded_samples_total",
		"SNR samples reported as zero and dropped.", "algorithm")
	if err != nil {
		return nil, err
	}
	recoveries, err := counter("ratectl_recovery_entries_total",
		"Transitions into the recovery state.", "algorithm")
	if err != nil {
		return nil, err
	}
	finals, err := counter("ratectl_final_failures_total",
		"Frames abandoned after exhausting retries.", "algorithm")
	if err != nil {
		return nil, err
	}

	selected := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ratectl_selected_rate_mbps",
		Help:    "Nominal data rate of each newly selected configuration in Mbit/s.",
		Buckets: []float64{1, 2, 6, 12, 24, 54, 100, 200, 400, 800, 1600, 3200},
	}, []string{"algorithm"})
	selected, err = registerHistogramVec(reg, selected, "ratectl_selected_rate_mbps")
	if err != nil {
		return nil, err
	}

	return &RateCollector{
		gatherer:         gatherer,
		Decisions:        decisions,
		RateChanges:      changes,
		SelectedRate:     selected,
		Probes:           probes,
		DiscardedSamples: discarded,
		RecoveryEntries:  recoveries,
		FinalFailures:    finals,
	}, nil
}

func (c *RateCollector) RecordDecision(algorithm string) {
	if c == nil {
		return
	}
	c.Decisions.WithLabelValues(algorithm).Inc()
}

func (c *RateCollector) RecordRateChange(algorithm string, rateBps uint64) {
	if c == nil {
		return
	}
	c.RateChanges.WithLabelValues(algorithm).Inc()
	c.SelectedRate.WithLabelValues(algorithm).Observe(float64(rateBps) / 1e6)
}

func (c *RateCollector) RecordProbe(algorithm string, switched bool) {
	if c == nil {
		return
	}
	c.Probes.WithLabelValues(algorithm, strconv.FormatBool(switched)).Inc()
}

func (c *RateCollector) RecordDiscardedSample(algorithm string) {
	if c == nil {
		return
	}
	c.DiscardedSamples.WithLabelValues(algorithm).Inc()
}

func (c *RateCollector) RecordRecoveryEntered(algorithm string) {
	if c == nil {
		return
	}
	c.RecoveryEntries.WithLabelValues(algorithm).Inc()
}

func (c *RateCollector) RecordFinalFailure(algorithm string) {
	if c == nil {
		return
	}
	c.FinalFailures.WithLabelValues(algorithm).Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RateCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RateCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
