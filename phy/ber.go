package phy

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Bounds of the SNR search (dB). A configuration that cannot meet the
// target within them reports maxSearchSNR.
const (
	minSearchSNR = -20.0
	maxSearchSNR = 80.0
)

// codingGainDB is the approximate SNR benefit of the convolutional/LDPC
// code at each rate, relative to the uncoded constellation.
var codingGainDB = map[CodeRate]float64{
	CodeRateUncoded: 0,
	CodeRate1_2:     6.0,
	CodeRate2_3:     5.0,
	CodeRate3_4:     4.0,
	CodeRate5_6:     3.5,
}

// q is the Gaussian tail probability Q(x).
func q(x float64) float64 {
	return distuv.UnitNormal.Survival(x)
}

// BitErrorRate returns the AWGN bit error probability of cfg at snrDB.
//
// The SNR is referenced to a single 20 MHz stream: wider channels and
// additional streams spread the same received power and therefore need
// proportionally more of it.
func BitErrorRate(cfg TxConfig, snrDB float64) float64 {
	m := cfg.Mode
	eff := snrDB + codingGain(m.CodeRate)
	if width := cfg.ChannelWidthMHz; width > 20 && !m.Class.IsLegacy() {
		eff -= 10 * math.Log10(float64(width)/20)
	}
	if cfg.Nss > 1 {
		eff -= 10 * math.Log10(float64(cfg.Nss))
	}

	gamma := math.Pow(10, eff/10)
	if m.SpreadingGain > 1 {
		gamma *= m.SpreadingGain
	}

	switch {
	case m.Constellation <= 2:
		return q(math.Sqrt(2 * gamma))
	case m.Constellation == 4:
		return q(math.Sqrt(gamma))
	default:
		mm := float64(m.Constellation)
		k := float64(m.BitsPerSymbol())
		ber := (4 / k) * (1 - 1/math.Sqrt(mm)) * q(math.Sqrt(3*gamma/(mm-1)))
		return math.Min(ber, 0.5)
	}
}

func codingGain(r CodeRate) float64 {
	if g, ok := codingGainDB[r]; ok {
		return g
	}
	// Unlisted rates scale linearly: 1/2 -> 6 dB, uncoded -> 0 dB.
	return 12 * (1 - r.Ratio())
}

// SolveMinimumSNR finds, by bisection, the lowest SNR (dB) at which the
// bit error rate of cfg does not exceed target.
func SolveMinimumSNR(cfg TxConfig, target float64) float64 {
	lo, hi := minSearchSNR, maxSearchSNR
	if BitErrorRate(cfg, hi) > target {
		return hi
	}
	if BitErrorRate(cfg, lo) <= target {
		return lo
	}
	for i := 0; i < 60 && hi-lo > 1e-4; i++ {
		mid := (lo + hi) / 2
		if BitErrorRate(cfg, mid) <= target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}
