package ratectl

import (
	"context"
	"time"

	"github.com/signalsfoundry/linkrate/internal/logging"
	"github.com/signalsfoundry/linkrate/phy"
)

// LatencyController keeps a station on one configuration and, every
// ProbeInterval completed frames, checks the retry histogram: when the
// retry count at the configured percentile is nonzero it compares the
// delivery latency of the current configuration, from its mean observed
// attempts, with that of its two ladder neighbours, from the frame error
// model at the last SNR, and adopts the lowest.
//
// The first valid SNR sample seeds the configuration from the threshold
// table. A final failure steps one configuration down on the next decision.
type LatencyController struct {
	*base
}

var _ Controller = (*LatencyController)(nil)

// NewLatencyController builds the threshold table from catalog and returns
// a controller using it.
func NewLatencyController(catalog phy.Catalog, cfg Config, opts ...Option) (*LatencyController, error) {
	b, err := newBase(AlgorithmLatency, catalog, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &LatencyController{base: b}, nil
}

// ReportRtsFailed and ReportDataFailed count a failed attempt of the frame
// in flight.
func (c *LatencyController) ReportRtsFailed(st *Station) {
	st.failures++
	st.frameRetries++
}

func (c *LatencyController) ReportDataFailed(st *Station) {
	st.failures++
	st.frameRetries++
}

func (c *LatencyController) ReportRtsOk(st *Station, ctsSNR float64, ctsMode phy.Mode, rtsSNR float64) {
	c.recordSample(st, rtsSNR, "rts")
}

func (c *LatencyController) ReportDataOk(st *Station, ackSNR float64, ackMode phy.Mode, dataSNR float64) {
	st.successes++
	c.completeFrame(st)
	c.recordSample(st, dataSNR, "data")
}

func (c *LatencyController) ReportAmpduStatus(st *Station, nSuccess, nFailed uint8, rxSNR, dataSNR float64) {
	st.successes += uint64(nSuccess)
	st.failures += uint64(nFailed)
	c.recordSample(st, dataSNR, "ampdu")
}

func (c *LatencyController) ReportFinalRtsFailed(st *Station)  { c.finalFailure(st, "rts") }
func (c *LatencyController) ReportFinalDataFailed(st *Station) { c.finalFailure(st, "data") }

func (c *LatencyController) finalFailure(st *Station, kind string) {
	c.completeFrame(st)
	st.downgradePending = true
	c.metrics.RecordFinalFailure(c.algorithm.String())
	logging.WithStation(c.log, st.address).Warn(context.Background(), "transmission abandoned",
		logging.String("frame", kind),
		logging.String("config", c.table.Entry(st.current).Config.String()),
	)
}

// DataTxConfig seeds the station on its first valid sample, applies a
// pending downgrade, runs a probe when one is due and returns the current
// configuration.
func (c *LatencyController) DataTxConfig(st *Station) phy.TxConfig {
	c.checkOwner(st)
	c.metrics.RecordDecision(c.algorithm.String())

	if !st.seeded && st.hasSample() {
		st.seeded = true
		st.cachedSNR = st.lastSNR
		st.decision = c.table.Best(st.lastSNR)
		c.setCurrent(st, st.decision)
	}

	if st.downgradePending {
		st.downgradePending = false
		lower := c.table.Lower(st.current)
		st.ceiling = lower
		c.setCurrent(st, lower)
	}

	if c.probeDue(st) {
		st.lastProbeAt = st.packets
		c.probe(st)
	}
	return c.table.Entry(st.current).Config
}

// probeDue is true once per ProbeInterval boundary, and only when frames at
// the configured percentile needed retries.
func (c *LatencyController) probeDue(st *Station) bool {
	if st.packets == 0 || st.packets%c.cfg.ProbeInterval != 0 || st.packets == st.lastProbeAt {
		return false
	}
	return st.retries.AtPercentile(c.cfg.Percentile) > 0
}

func (c *LatencyController) probe(st *Station) {
	st.probes++

	snr := st.lastSNR
	if !st.hasSample() {
		// No channel estimate: assume the current configuration sits
		// exactly at its threshold.
		snr = c.table.Entry(st.current).MinSNR
	}
	st.cachedSNR = snr

	// The current configuration is scored by its measured mean attempt
	// count, the neighbours by the modelled mean at snr.
	cur := st.current
	observed := st.retries.MeanAttempts()
	best, bestLatency := cur, c.cfg.Latency.Estimate(c.table.Entry(cur).Config, observed)
	curLatency := bestLatency

	for _, cand := range []int{c.table.Lower(cur), c.table.Higher(cur)} {
		if cand == cur || (st.ceiling >= 0 && cand > st.ceiling) {
			continue
		}
		if lat := c.estimate(cand, snr); lat < bestLatency {
			best, bestLatency = cand, lat
		}
	}

	// A probe is a fresh evaluation; the final-failure cap only holds
	// until then.
	st.ceiling = -1
	switched := best != cur
	if switched {
		st.retries.Reset()
		c.setCurrent(st, best)
	}
	c.metrics.RecordProbe(c.algorithm.String(), switched)
	logging.WithStation(c.log, st.address).Debug(context.Background(), "probe evaluated",
		logging.Uint64("packets", st.packets),
		logging.Float("snr_db", snr),
		logging.String("current", c.table.Entry(cur).Config.String()),
		logging.Any("current_latency", curLatency),
		logging.String("chosen", c.table.Entry(best).Config.String()),
		logging.Any("chosen_latency", bestLatency),
	)
}

// estimate returns the modelled latency of ladder entry i at snr.
func (c *LatencyController) estimate(i int, snr float64) time.Duration {
	e := c.table.Entry(i)
	per := c.cfg.Latency.FrameErrorRate(snr, e.MinSNR)
	return c.cfg.Latency.Estimate(e.Config, ExpectedAttempts(per))
}
