package ratectl

import (
	"context"
	"math"

	"github.com/signalsfoundry/linkrate/internal/logging"
	"github.com/signalsfoundry/linkrate/phy"
)

// ThresholdController selects the fastest configuration whose threshold the
// latest SNR sample clears, and moves through a recovery state after
// failures:
//
//	STEADY --data/RTS failure--> RECOVERY
//	RECOVERY --SuccessThreshold consecutive successes--> STEADY
//
// While in RECOVERY the selection is clamped one step below the
// configuration in effect when recovery began; when more than
// RecoveryRetryLimit further failures accumulate the clamp moves one more
// step down and the recovery window restarts.
type ThresholdController struct {
	*base
}

var _ Controller = (*ThresholdController)(nil)

// NewThresholdController builds the threshold table from catalog and
// returns a controller using it.
func NewThresholdController(catalog phy.Catalog, cfg Config, opts ...Option) (*ThresholdController, error) {
	b, err := newBase(AlgorithmThreshold, catalog, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &ThresholdController{base: b}, nil
}

func (c *ThresholdController) ReportRtsFailed(st *Station)  { c.failure(st) }
func (c *ThresholdController) ReportDataFailed(st *Station) { c.failure(st) }

func (c *ThresholdController) ReportRtsOk(st *Station, ctsSNR float64, ctsMode phy.Mode, rtsSNR float64) {
	c.recordSample(st, rtsSNR, "rts")
}

func (c *ThresholdController) ReportDataOk(st *Station, ackSNR float64, ackMode phy.Mode, dataSNR float64) {
	st.successes++
	c.completeFrame(st)
	c.success(st)
	c.recordSample(st, dataSNR, "data")
}

func (c *ThresholdController) ReportAmpduStatus(st *Station, nSuccess, nFailed uint8, rxSNR, dataSNR float64) {
	st.successes += uint64(nSuccess)
	st.failures += uint64(nFailed)
	c.recordSample(st, dataSNR, "ampdu")
}

func (c *ThresholdController) ReportFinalRtsFailed(st *Station)  { c.finalFailure(st, "rts") }
func (c *ThresholdController) ReportFinalDataFailed(st *Station) { c.finalFailure(st, "data") }

// DataTxConfig re-runs the table lookup when the SNR moved since the last
// decision, applies the final-failure ceiling and the recovery clamp, and
// returns the resulting configuration.
func (c *ThresholdController) DataTxConfig(st *Station) phy.TxConfig {
	c.checkOwner(st)
	c.metrics.RecordDecision(c.algorithm.String())

	if st.hasSample() && c.cacheStale(st) {
		st.decision = c.table.Best(st.lastSNR)
		st.cachedSNR = st.lastSNR
	}

	candidate := st.decision
	if st.ceiling >= 0 && candidate > st.ceiling {
		candidate = st.ceiling
	}
	if st.recovery {
		if limit := c.table.Lower(st.recoveryBase); candidate > limit {
			candidate = limit
		}
	}
	c.setCurrent(st, candidate)
	return c.table.Entry(st.current).Config
}

func (c *ThresholdController) cacheStale(st *Station) bool {
	if st.cachedSNR == CacheInitialSNR {
		return true
	}
	return math.Abs(st.lastSNR-st.cachedSNR) > c.cfg.CacheToleranceDB
}

func (c *ThresholdController) failure(st *Station) {
	st.failures++
	st.frameRetries++
	st.timer = 0

	if !st.recovery {
		c.enterRecovery(st)
		st.failureCount++
		return
	}

	st.failureCount++
	st.successCount = 0
	st.retryCount++
	if st.retryCount > c.cfg.RecoveryRetryLimit {
		st.recoveryBase = c.table.Lower(st.recoveryBase)
		st.retryCount = 0
		st.successCount = 0
		st.failureCount = 0
		logging.WithStation(c.log, st.address).Debug(context.Background(), "recovery retry limit exceeded; stepping down",
			logging.String("base", c.table.Entry(st.recoveryBase).Config.String()),
		)
	}
}

func (c *ThresholdController) success(st *Station) {
	st.successCount++
	st.timer++

	if st.recovery && st.successCount >= c.cfg.SuccessThreshold {
		st.recovery = false
		st.successCount = 0
		st.failureCount = 0
		st.retryCount = 0
		st.ceiling = -1
		logging.WithStation(c.log, st.address).Info(context.Background(), "leaving recovery",
			logging.String("config", c.table.Entry(st.current).Config.String()),
		)
	}

	if st.timer >= st.timerTimeout {
		st.timer = 0
		st.cachedSNR = CacheInitialSNR
		st.ceiling = -1
	}
}

func (c *ThresholdController) enterRecovery(st *Station) {
	st.recovery = true
	st.recoveryBase = st.current
	st.successCount = 0
	st.failureCount = 0
	st.retryCount = 0
	st.recoveryEntries++
	c.metrics.RecordRecoveryEntered(c.algorithm.String())
	logging.WithStation(c.log, st.address).Info(context.Background(), "entering recovery",
		logging.String("config", c.table.Entry(st.current).Config.String()),
	)
}

// finalFailure closes the frame, caps the station one step below the
// configuration that just failed and makes sure recovery is active.
func (c *ThresholdController) finalFailure(st *Station, kind string) {
	c.completeFrame(st)
	st.timer = 0
	st.ceiling = c.table.Lower(st.current)
	if !st.recovery {
		c.enterRecovery(st)
	}
	c.metrics.RecordFinalFailure(c.algorithm.String())
	logging.WithStation(c.log, st.address).Warn(context.Background(), "transmission abandoned",
		logging.String("frame", kind),
		logging.String("config", c.table.Entry(st.current).Config.String()),
	)
}
