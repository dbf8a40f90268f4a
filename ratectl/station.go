package ratectl

import "github.com/signalsfoundry/linkrate/phy"

// CacheInitialSNR is the cached-SNR value of a fresh station. It is below
// any real reading so the first decision never reuses a stale cache.
const CacheInitialSNR = -100.0

// Algorithm tags which controller owns a Station.
type Algorithm int

const (
	AlgorithmThreshold Algorithm = iota // ThresholdController
	AlgorithmLatency                    // LatencyController
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmThreshold:
		return "threshold"
	case AlgorithmLatency:
		return "latency"
	default:
		return "unknown"
	}
}

// Station is the per-remote-station state of a rate controller. It is
// created by Controller.NewStation, owned by the station registry and
// mutated only through the owning controller's callbacks and selection
// methods, which the caller serialises.
type Station struct {
	algorithm Algorithm
	address   string

	packets   uint64 // completed frames
	successes uint64 // successful attempts, never reset
	failures  uint64 // failed attempts, never reset
	discarded uint64 // zero-SNR samples dropped

	lastSNR   float64 // 0 until a valid sample arrives
	cachedSNR float64

	retries      RetryHistogram
	frameRetries uint32 // failed attempts of the frame in flight

	current  int // ladder index in use
	decision int // ladder index of the last table lookup
	ceiling  int // highest index allowed after a final failure, -1 for none

	// Threshold controller.
	recovery        bool
	successCount    uint32
	failureCount    uint32
	retryCount      uint32
	timer           uint32
	timerTimeout    uint32
	recoveryBase    int
	recoveryEntries uint64

	// Latency controller.
	seeded           bool
	downgradePending bool
	probes           uint64
	lastProbeAt      uint64

	table *ThresholdTable
}

func newStation(algo Algorithm, table *ThresholdTable) *Station {
	robust := table.MostRobust()
	return &Station{
		algorithm:    algo,
		cachedSNR:    CacheInitialSNR,
		current:      robust,
		decision:     robust,
		ceiling:      -1,
		recoveryBase: robust,
		table:        table,
	}
}

// Algorithm returns the tag of the controller that created the station.
func (s *Station) Algorithm() Algorithm { return s.algorithm }

// Address returns the label set by SetAddress.
func (s *Station) Address() string { return s.address }

// SetAddress labels the station (usually with its MAC address) for logs
// and rate-change events.
func (s *Station) SetAddress(addr string) { s.address = addr }

// Current returns the configuration currently selected for data frames.
func (s *Station) Current() phy.TxConfig { return s.table.Entry(s.current).Config }

// PacketsObserved returns the number of completed frames (delivered or
// finally failed).
func (s *Station) PacketsObserved() uint64 { return s.packets }

// Successes returns the total number of successful attempts.
func (s *Station) Successes() uint64 { return s.successes }

// Failures returns the total number of failed attempts.
func (s *Station) Failures() uint64 { return s.failures }

// DiscardedSamples returns how many zero-SNR reports were dropped.
func (s *Station) DiscardedSamples() uint64 { return s.discarded }

// LastObservedSNR returns the most recent valid SNR sample, 0 if none.
func (s *Station) LastObservedSNR() float64 { return s.lastSNR }

// CachedSNR returns the SNR the last table decision was based on.
func (s *Station) CachedSNR() float64 { return s.cachedSNR }

// RetryHistogram returns a copy of the retry histogram.
func (s *Station) RetryHistogram() RetryHistogram { return s.retries }

// InRecovery reports whether the station is in the RECOVERY state.
func (s *Station) InRecovery() bool { return s.recovery }

// SuccessCount returns successes in the current recovery window.
func (s *Station) SuccessCount() uint32 { return s.successCount }

// FailureCount returns failures in the current recovery window.
func (s *Station) FailureCount() uint32 { return s.failureCount }

// RetryCount returns failures seen since recovery began or was last
// forced down.
func (s *Station) RetryCount() uint32 { return s.retryCount }

// Timer returns the number of successes since the last failure.
func (s *Station) Timer() uint32 { return s.timer }

// TimerTimeout returns the timer value that forces a re-evaluation.
func (s *Station) TimerTimeout() uint32 { return s.timerTimeout }

// RecoveryEntries returns how many times the station entered RECOVERY.
func (s *Station) RecoveryEntries() uint64 { return s.recoveryEntries }

// Probes returns how many probe evaluations ran for the station.
func (s *Station) Probes() uint64 { return s.probes }

// hasSample reports whether a valid SNR has been observed. Zero is the
// "unreported" sentinel and is never stored, so lastSNR == 0 means none.
func (s *Station) hasSample() bool { return s.lastSNR != 0 }
