package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome is how a frame exchange ended.
type Outcome int

const (
	OutcomeDelivered     Outcome = iota // data frame acknowledged
	OutcomeDataAbandoned                // data frame dropped after the retry limit
	OutcomeRTSAbandoned                 // RTS never answered; the data frame was not sent
)

// SimCollector exposes metrics of the simulation driver loop.
type SimCollector struct {
	gatherer prometheus.Gatherer

	FrameDuration     prometheus.Histogram
	Frames            prometheus.Counter
	Attempts          prometheus.Counter
	Delivered         prometheus.Counter
	Abandoned         prometheus.Counter
	RTSAbandoned      prometheus.Counter
	Stations          prometheus.Gauge
	DeliveredFraction prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided
// registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frameHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratesim_frame_step_duration_seconds",
		Help:    "Wall-clock time spent driving every station through one frame.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	frameHistogram, err := registerHistogram(reg, frameHistogram, "ratesim_frame_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	counters := make(map[string]prometheus.Counter, 5)
	for _, def := range []struct{ name, help string }{
		{"ratesim_frames_total", "Frames stepped by the simulation clock."},
		{"ratesim_attempts_total", "Transmission attempts, RTS and data, across all stations."},
		{"ratesim_frames_delivered_total", "Data frames acknowledged."},
		{"ratesim_frames_abandoned_total", "Data frames dropped after the retry limit."},
		{"ratesim_rts_abandoned_total", "Frames dropped because the RTS exchange hit the retry limit."},
	} {
		c, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: def.name,
			Help: def.help,
		}), def.name)
		if err != nil {
			return nil, err
		}
		counters[def.name] = c
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratesim_stations",
		Help: "Stations currently held in the registry.",
	}), "ratesim_stations")
	if err != nil {
		return nil, err
	}
	fraction, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratesim_delivered_ratio",
		Help: "Fraction of completed frames that were delivered; frames lost at RTS count as not delivered.",
	}), "ratesim_delivered_ratio")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		FrameDuration:     frameHistogram,
		Frames:            counters["ratesim_frames_total"],
		Attempts:          counters["ratesim_attempts_total"],
		Delivered:         counters["ratesim_frames_delivered_total"],
		Abandoned:         counters["ratesim_frames_abandoned_total"],
		RTSAbandoned:      counters["ratesim_rts_abandoned_total"],
		Stations:          stations,
		DeliveredFraction: fraction,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveFrame records one clock frame that took d to process.
func (c *SimCollector) ObserveFrame(d time.Duration) {
	if c == nil {
		return
	}
	c.Frames.Inc()
	c.FrameDuration.Observe(d.Seconds())
}

// AddAttempts counts n transmission attempts.
func (c *SimCollector) AddAttempts(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Attempts.Add(float64(n))
}

// ObserveOutcome counts a completed frame and refreshes the delivered ratio
// from the running totals.
func (c *SimCollector) ObserveOutcome(outcome Outcome, totalDelivered, totalCompleted uint64) {
	if c == nil {
		return
	}
	switch outcome {
	case OutcomeDelivered:
		c.Delivered.Inc()
	case OutcomeDataAbandoned:
		c.Abandoned.Inc()
	case OutcomeRTSAbandoned:
		c.RTSAbandoned.Inc()
	}
	if totalCompleted > 0 {
		c.DeliveredFraction.Set(float64(totalDelivered) / float64(totalCompleted))
	}
}

// SetStations updates the registry size gauge.
func (c *SimCollector) SetStations(n int) {
	if c == nil {
		return
	}
	c.Stations.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
