// Package channel produces the SNR samples a simulated receiver would
// report for a station over time.
package channel

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Provider reports the SNR (dB) of a link at simulation time t. ok is
// false when the receiver has no measurement, for example while the link is
// blocked.
type Provider interface {
	SNR(t time.Time) (snr float64, ok bool)
}

// Static is a fixed SNR.
type Static float64

// SNR always returns the fixed value.
func (s Static) SNR(time.Time) (float64, bool) { return float64(s), true }

// RandomWalk is an SNR that drifts by a Gaussian step every Step of
// simulation time, clamped to [Min, Max].
type RandomWalk struct {
	mu sync.Mutex

	Min, Max float64
	Step     time.Duration

	current float64
	last    time.Time
	noise   distuv.Normal
}

// NewRandomWalk starts a walk at startDB with a per-step standard deviation
// of sigmaDB. The same seed replays the same walk.
func NewRandomWalk(startDB, sigmaDB, minDB, maxDB float64, step time.Duration, seed uint64) (*RandomWalk, error) {
	switch {
	case sigmaDB < 0:
		return nil, fmt.Errorf("channel: negative step deviation %g dB", sigmaDB)
	case minDB > maxDB:
		return nil, fmt.Errorf("channel: walk bounds [%g, %g] are inverted", minDB, maxDB)
	case step <= 0:
		return nil, fmt.Errorf("channel: walk step %v must be positive", step)
	}
	return &RandomWalk{
		Min:     minDB,
		Max:     maxDB,
		Step:    step,
		current: math.Max(minDB, math.Min(maxDB, startDB)),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: sigmaDB,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
	}, nil
}

// SNR advances the walk by every whole step elapsed since the previous
// call and returns the current value. The first call anchors the walk.
func (w *RandomWalk) SNR(t time.Time) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.last.IsZero() {
		w.last = t
		return w.current, true
	}
	for !t.Before(w.last.Add(w.Step)) {
		w.last = w.last.Add(w.Step)
		if w.noise.Sigma > 0 {
			w.current += w.noise.Rand()
		}
		w.current = math.Max(w.Min, math.Min(w.Max, w.current))
	}
	return w.current, true
}

// LinkBudget turns a distance into an SNR with free-space path loss and a
// thermal noise floor.
type LinkBudget struct {
	FrequencyGHz  float64
	BandwidthMHz  float64
	TxPowerDBm    float64
	TxGainDBi     float64
	RxGainDBi     float64
	NoiseFigureDB float64
}

// DefaultLinkBudget is a 20 MHz channel at 5.2 GHz with 20 dBm and 0 dBi
// antennas.
func DefaultLinkBudget() LinkBudget {
	return LinkBudget{
		FrequencyGHz:  5.2,
		BandwidthMHz:  20,
		TxPowerDBm:    20,
		NoiseFigureDB: 7,
	}
}

// ApplyDefaults fills the frequency and bandwidth when unset. A budget
// whose power, gain and noise-figure fields are all zero takes those from
// DefaultLinkBudget as a group, so a budget that only names a band still
// gets a usable transmitter and receiver.
func (b LinkBudget) ApplyDefaults() LinkBudget {
	d := DefaultLinkBudget()
	if b.FrequencyGHz <= 0 {
		b.FrequencyGHz = d.FrequencyGHz
	}
	if b.BandwidthMHz <= 0 {
		b.BandwidthMHz = d.BandwidthMHz
	}
	if b.TxPowerDBm == 0 && b.TxGainDBi == 0 && b.RxGainDBi == 0 && b.NoiseFigureDB == 0 {
		b.TxPowerDBm = d.TxPowerDBm
		b.TxGainDBi = d.TxGainDBi
		b.RxGainDBi = d.RxGainDBi
		b.NoiseFigureDB = d.NoiseFigureDB
	}
	return b
}

// NoiseFloorDBm is kTB plus the receiver noise figure.
func (b LinkBudget) NoiseFloorDBm() float64 {
	return -174 + 10*math.Log10(b.BandwidthMHz*1e6) + b.NoiseFigureDB
}

// SNRAtDistance returns the SNR (dB) at distanceKm. Distances below one
// metre are treated as one metre.
func (b LinkBudget) SNRAtDistance(distanceKm float64) float64 {
	distanceKm = math.Max(distanceKm, 1e-3)
	// Free-space path loss in dB: 92.45 + 20 log10(d_km) + 20 log10(f_GHz)
	fspl := 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(b.FrequencyGHz)
	rx := b.TxPowerDBm + b.TxGainDBi + b.RxGainDBi - fspl
	return rx - b.NoiseFloorDBm()
}

// Distance is a station at a fixed range.
type Distance struct {
	Budget LinkBudget
	Km     float64
}

// SNR returns the link budget at the fixed range.
func (d Distance) SNR(time.Time) (float64, bool) {
	return d.Budget.ApplyDefaults().SNRAtDistance(d.Km), true
}
