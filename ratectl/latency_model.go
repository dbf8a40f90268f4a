package ratectl

import (
	"math"
	"time"

	"github.com/signalsfoundry/linkrate/phy"
)

// maxFrameErrorRate caps the modelled loss so the expected attempt count
// stays finite.
const maxFrameErrorRate = 0.99

// FrameErrorRate models the probability that one attempt fails at snr for
// a configuration whose threshold is thresholdDB: a logistic curve reaching
// 50% ErrorMidpointDB below the threshold.
func (m LatencyModel) FrameErrorRate(snr, thresholdDB float64) float64 {
	x := m.ErrorSlopePerDB * (snr - thresholdDB + m.ErrorMidpointDB)
	per := 1 / (1 + math.Exp(x))
	return math.Min(per, maxFrameErrorRate)
}

// ExpectedAttempts is the mean number of attempts until success for a
// per-attempt failure probability per.
func ExpectedAttempts(per float64) float64 {
	if per < 0 {
		per = 0
	}
	if per > maxFrameErrorRate {
		per = maxFrameErrorRate
	}
	return 1 / (1 - per)
}

// Airtime returns the payload transmission time at cfg's data rate.
func (m LatencyModel) Airtime(cfg phy.TxConfig) time.Duration {
	rate := cfg.DataRate()
	if rate == 0 {
		return time.Duration(math.MaxInt64)
	}
	bits := float64(m.FrameBytes) * 8
	return time.Duration(bits * float64(time.Second) / float64(rate))
}

// Estimate returns setup delay + service delay for delivering one frame at
// cfg, given the expected number of attempts.
func (m LatencyModel) Estimate(cfg phy.TxConfig, attempts float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	attempt := float64(m.Preamble + m.Airtime(cfg))
	service := attempts*attempt + (attempts-1)*float64(m.SetupDelay)
	return m.SetupDelay + time.Duration(service)
}
