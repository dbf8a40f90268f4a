package ratectl

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Defaults for Config fields.
const (
	DefaultTargetErrorRate    = 1e-6
	DefaultPercentile         = 95
	DefaultProbeInterval      = 100
	DefaultSuccessThreshold   = 10
	DefaultTimerTimeout       = 15
	DefaultRecoveryRetryLimit = 2
)

// Config holds the tunables shared by both controllers. Fields that only
// one controller reads are marked.
type Config struct {
	// TargetErrorRate is the bit error rate every threshold is computed for.
	// Default: 1e-6
	TargetErrorRate float64

	// Percentile (0-100) selects the retry-histogram bucket that gates
	// probing. Zero is a valid value, so ApplyDefaults leaves it alone.
	// Latency controller. Default: 95
	Percentile uint32

	// ProbeInterval is the number of completed frames between probe
	// evaluations. Latency controller. Default: 100
	ProbeInterval uint64

	// SuccessThreshold is the run of consecutive successes that ends
	// recovery. Threshold controller. Default: 10
	SuccessThreshold uint32

	// TimerTimeout is the number of successes after the last failure at
	// which the cached decision is forcibly re-evaluated. Threshold
	// controller. Default: 15
	TimerTimeout uint32

	// RecoveryRetryLimit is the number of extra failures tolerated inside a
	// recovery window before the configuration is forced one step down.
	// Threshold controller. Default: 2
	RecoveryRetryLimit uint32

	// CacheToleranceDB is the SNR change below which the cached decision
	// is reused. Threshold controller. Default: 0 (any change re-evaluates)
	CacheToleranceDB float64

	// Latency parameterises the latency estimate used when probing.
	Latency LatencyModel
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{
		TargetErrorRate:    DefaultTargetErrorRate,
		Percentile:         DefaultPercentile,
		ProbeInterval:      DefaultProbeInterval,
		SuccessThreshold:   DefaultSuccessThreshold,
		TimerTimeout:       DefaultTimerTimeout,
		RecoveryRetryLimit: DefaultRecoveryRetryLimit,
		Latency:            DefaultLatencyModel(),
	}
}

// ApplyDefaults fills fields whose zero value is not meaningful.
// Percentile, RecoveryRetryLimit and CacheToleranceDB accept zero and are
// kept as given.
func (c Config) ApplyDefaults() Config {
	if c.TargetErrorRate == 0 {
		c.TargetErrorRate = DefaultTargetErrorRate
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.TimerTimeout == 0 {
		c.TimerTimeout = DefaultTimerTimeout
	}
	c.Latency = c.Latency.ApplyDefaults()
	return c
}

// Validate reports every out-of-range field. Each error wraps
// ErrConfiguration.
func (c Config) Validate() error {
	var err error
	if c.TargetErrorRate <= 0 || c.TargetErrorRate >= 1 {
		err = multierr.Append(err, fmt.Errorf("%w: target error rate %g outside (0,1)", ErrConfiguration, c.TargetErrorRate))
	}
	if c.Percentile > 100 {
		err = multierr.Append(err, fmt.Errorf("%w: percentile %d above 100", ErrConfiguration, c.Percentile))
	}
	if c.ProbeInterval == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: probe interval must be positive", ErrConfiguration))
	}
	if c.SuccessThreshold == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: success threshold must be positive", ErrConfiguration))
	}
	if c.TimerTimeout == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: timer timeout must be positive", ErrConfiguration))
	}
	if c.CacheToleranceDB < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: cache tolerance %g dB is negative", ErrConfiguration, c.CacheToleranceDB))
	}
	return multierr.Append(err, c.Latency.Validate())
}

// LatencyModel estimates the time to deliver one frame at a configuration.
//
// The estimate is a setup delay (channel access before the first attempt)
// plus a service delay: the expected number of attempts, each costing a
// preamble plus the payload airtime, with every retry paying the setup
// delay again.
type LatencyModel struct {
	// FrameBytes is the payload size the estimate is computed for.
	// Default: 1500
	FrameBytes uint32
	// SetupDelay is DIFS plus the mean initial backoff. Default: 101.5µs
	SetupDelay time.Duration
	// Preamble is the PHY preamble and header duration. Default: 20µs
	Preamble time.Duration
	// ErrorSlopePerDB is the steepness of the logistic frame error curve.
	// Default: 1.5
	ErrorSlopePerDB float64
	// ErrorMidpointDB is how far below the threshold the frame error rate
	// reaches 50%. Default: 3
	ErrorMidpointDB float64
}

// DefaultLatencyModel returns the 802.11 OFDM timing defaults.
func DefaultLatencyModel() LatencyModel {
	return LatencyModel{
		FrameBytes:      1500,
		SetupDelay:      101500 * time.Nanosecond,
		Preamble:        20 * time.Microsecond,
		ErrorSlopePerDB: 1.5,
		ErrorMidpointDB: 3,
	}
}

// ApplyDefaults fills zero fields from DefaultLatencyModel.
func (m LatencyModel) ApplyDefaults() LatencyModel {
	d := DefaultLatencyModel()
	if m.FrameBytes == 0 {
		m.FrameBytes = d.FrameBytes
	}
	if m.SetupDelay == 0 {
		m.SetupDelay = d.SetupDelay
	}
	if m.Preamble == 0 {
		m.Preamble = d.Preamble
	}
	if m.ErrorSlopePerDB == 0 {
		m.ErrorSlopePerDB = d.ErrorSlopePerDB
	}
	if m.ErrorMidpointDB == 0 {
		m.ErrorMidpointDB = d.ErrorMidpointDB
	}
	return m
}

// Validate reports negative durations and a non-positive slope.
func (m LatencyModel) Validate() error {
	var err error
	if m.SetupDelay < 0 || m.Preamble < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: latency model durations must not be negative", ErrConfiguration))
	}
	if m.ErrorSlopePerDB <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: error slope %g must be positive", ErrConfiguration, m.ErrorSlopePerDB))
	}
	if m.FrameBytes == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: frame size must be positive", ErrConfiguration))
	}
	return err
}
