// Package ratectl selects the transmit configuration for each remote
// station of a wireless link from reported frame outcomes and SNR samples.
//
// Two controllers share the Controller interface: ThresholdController picks
// the fastest configuration whose SNR threshold the last sample clears and
// backs off through a recovery state after failures; LatencyController
// periodically probes neighbouring configurations with a latency estimate
// when the retry histogram shows trouble.
//
// Controllers are synchronous. Callers invoke them once per frame event and
// must serialise all calls that touch the same Station.
package ratectl

import (
	"context"

	"github.com/signalsfoundry/linkrate/internal/logging"
	"github.com/signalsfoundry/linkrate/phy"
)

// Controller is the surface the driver loop uses.
type Controller interface {
	// NewStation creates the state for a newly seen remote station.
	NewStation() *Station

	ReportRxOk(st *Station, rxSNR float64, mode phy.Mode)
	ReportRtsFailed(st *Station)
	ReportDataFailed(st *Station)
	ReportRtsOk(st *Station, ctsSNR float64, ctsMode phy.Mode, rtsSNR float64)
	ReportDataOk(st *Station, ackSNR float64, ackMode phy.Mode, dataSNR float64)
	ReportAmpduStatus(st *Station, nSuccess, nFailed uint8, rxSNR, dataSNR float64)
	ReportFinalRtsFailed(st *Station)
	ReportFinalDataFailed(st *Station)

	// DataTxConfig returns the configuration for the next data frame.
	DataTxConfig(st *Station) phy.TxConfig
	// RtsTxConfig returns the configuration for the next RTS frame.
	RtsTxConfig(st *Station) phy.TxConfig

	// OnRateChange registers fn to be called whenever a station's selected
	// data configuration changes.
	OnRateChange(fn func(RateChange))

	// Table exposes the shared threshold table.
	Table() *ThresholdTable
	Algorithm() Algorithm
}

// RateChange is emitted when a station switches data configuration.
type RateChange struct {
	Station   *Station
	Algorithm Algorithm
	From      phy.TxConfig
	To        phy.TxConfig
}

// RateBps is the new nominal data rate.
func (c RateChange) RateBps() uint64 { return c.To.DataRate() }

// MetricsRecorder receives controller events for instrumentation.
type MetricsRecorder interface {
	RecordDecision(algorithm string)
	RecordRateChange(algorithm string, rateBps uint64)
	RecordProbe(algorithm string, switched bool)
	RecordDiscardedSample(algorithm string)
	RecordRecoveryEntered(algorithm string)
	RecordFinalFailure(algorithm string)
}

type noopRecorder struct{}

func (noopRecorder) RecordDecision(string)           {}
func (noopRecorder) RecordRateChange(string, uint64) {}
func (noopRecorder) RecordProbe(string, bool)        {}
func (noopRecorder) RecordDiscardedSample(string)    {}
func (noopRecorder) RecordRecoveryEntered(string)    {}
func (noopRecorder) RecordFinalFailure(string)       {}

// Option customises a controller.
type Option func(*base)

// WithLogger sets the controller logger.
func WithLogger(l logging.Logger) Option {
	return func(b *base) { b.log = logging.OrNoop(l) }
}

// WithMetricsRecorder routes controller events to r.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(b *base) {
		if r != nil {
			b.metrics = r
		}
	}
}

// base is the shell both controllers share: table, parameters, sample
// bookkeeping and the rate-change trace.
type base struct {
	algorithm Algorithm
	cfg       Config
	table     *ThresholdTable
	log       logging.Logger
	metrics   MetricsRecorder
	listeners []func(RateChange)
}

func newBase(algo Algorithm, catalog phy.Catalog, cfg Config, opts []Option) (*base, error) {
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := BuildThresholdTable(catalog, cfg.TargetErrorRate)
	if err != nil {
		return nil, err
	}
	b := &base{
		algorithm: algo,
		cfg:       cfg,
		table:     table,
		log:       logging.Noop(),
		metrics:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logging.String("algorithm", algo.String()))
	b.log.Info(context.Background(), "rate controller ready",
		logging.Int("configurations", table.Len()),
		logging.Float("target_error_rate", table.TargetErrorRate()),
	)
	return b, nil
}

func (b *base) Table() *ThresholdTable { return b.table }
func (b *base) Algorithm() Algorithm   { return b.algorithm }

// Config returns the effective configuration after defaults.
func (b *base) Config() Config { return b.cfg }

func (b *base) OnRateChange(fn func(RateChange)) {
	if fn != nil {
		b.listeners = append(b.listeners, fn)
	}
}

func (b *base) NewStation() *Station {
	st := newStation(b.algorithm, b.table)
	st.timerTimeout = b.cfg.TimerTimeout
	return st
}

// RtsTxConfig returns the most robust legacy configuration. RTS frames are
// short and go out before the data rate is known to work.
func (b *base) RtsTxConfig(st *Station) phy.TxConfig {
	return b.table.Entry(b.table.RTS()).Config
}

// ReportRxOk is informational; neither controller samples passively.
func (b *base) ReportRxOk(st *Station, rxSNR float64, mode phy.Mode) {}

// recordSample stores snr as the latest observation unless it is the zero
// sentinel, in which case it is counted and dropped.
func (b *base) recordSample(st *Station, snr float64, source string) bool {
	if snr == 0 {
		st.discarded++
		b.metrics.RecordDiscardedSample(b.algorithm.String())
		logging.WithStation(b.log, st.address).Warn(context.Background(), "SNR reported as zero; discarding sample",
			logging.String("source", source),
		)
		return false
	}
	st.lastSNR = snr
	return true
}

// setCurrent switches the station to ladder index idx and emits the trace.
func (b *base) setCurrent(st *Station, idx int) {
	if idx == st.current {
		return
	}
	from := b.table.Entry(st.current).Config
	st.current = idx
	change := RateChange{Station: st, Algorithm: b.algorithm, From: from, To: b.table.Entry(idx).Config}

	b.metrics.RecordRateChange(b.algorithm.String(), change.RateBps())
	logging.WithStation(b.log, st.address).Debug(context.Background(), "data rate changed",
		logging.String("from", change.From.String()),
		logging.String("to", change.To.String()),
		logging.Uint64("rate_bps", change.RateBps()),
	)
	for _, fn := range b.listeners {
		fn(change)
	}
}

// completeFrame records the retries of the frame in flight.
func (b *base) completeFrame(st *Station) {
	st.packets++
	st.retries.Record(st.frameRetries)
	st.frameRetries = 0
}

func (b *base) checkOwner(st *Station) {
	if st == nil {
		invariant("nil station passed to %s controller", b.algorithm)
	}
	if st.table != b.table {
		invariant("station created by a different controller passed to %s controller", b.algorithm)
	}
}
