package ratectl

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/linkrate/phy"
)

// ThresholdEntry pairs a transmit configuration with the minimum SNR (dB) at
// which it meets the table's target error rate.
type ThresholdEntry struct {
	Config phy.TxConfig
	MinSNR float64
}

// DataRate is shorthand for Config.DataRate().
func (e ThresholdEntry) DataRate() uint64 { return e.Config.DataRate() }

// ThresholdTable holds one entry per configuration the catalog advertises,
// ordered as a rate ladder: ascending data rate, then ascending threshold.
// It is immutable after BuildThresholdTable and safe to share between
// stations and goroutines.
type ThresholdTable struct {
	entries         []ThresholdEntry
	index           map[phy.TxConfig]int
	targetErrorRate float64
	mostRobust      int
	rts             int
}

// BuildThresholdTable enumerates every configuration of catalog and records
// the SNR it needs to meet targetErrorRate.
func BuildThresholdTable(catalog phy.Catalog, targetErrorRate float64) (*ThresholdTable, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: nil catalog", ErrConfiguration)
	}
	if targetErrorRate <= 0 || targetErrorRate >= 1 {
		return nil, fmt.Errorf("%w: target error rate %g outside (0,1)", ErrConfiguration, targetErrorRate)
	}

	configs := phy.EnumerateConfigs(catalog)
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: catalog reports no transmit configurations", ErrConfiguration)
	}

	t := &ThresholdTable{
		entries:         make([]ThresholdEntry, 0, len(configs)),
		index:           make(map[phy.TxConfig]int, len(configs)),
		targetErrorRate: targetErrorRate,
	}
	seen := make(map[phy.TxConfig]bool, len(configs))
	for _, cfg := range configs {
		if seen[cfg] {
			continue
		}
		seen[cfg] = true
		t.entries = append(t.entries, ThresholdEntry{
			Config: cfg,
			MinSNR: catalog.MinimumSNR(cfg, targetErrorRate),
		})
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		ri, rj := t.entries[i].DataRate(), t.entries[j].DataRate()
		if ri != rj {
			return ri < rj
		}
		return t.entries[i].MinSNR < t.entries[j].MinSNR
	})

	t.mostRobust, t.rts = 0, -1
	for i, e := range t.entries {
		t.index[e.Config] = i
		if e.MinSNR < t.entries[t.mostRobust].MinSNR {
			t.mostRobust = i
		}
		if e.Config.Mode.Class.IsLegacy() && (t.rts < 0 || e.MinSNR < t.entries[t.rts].MinSNR) {
			t.rts = i
		}
	}
	if t.rts < 0 {
		t.rts = t.mostRobust
	}
	return t, nil
}

// Len returns the number of entries.
func (t *ThresholdTable) Len() int { return len(t.entries) }

// TargetErrorRate returns the error rate the thresholds were computed for.
func (t *ThresholdTable) TargetErrorRate() float64 { return t.targetErrorRate }

// Entry returns the i-th entry of the rate ladder.
func (t *ThresholdTable) Entry(i int) ThresholdEntry {
	if i < 0 || i >= len(t.entries) {
		invariant("threshold table index %d out of range [0,%d)", i, len(t.entries))
	}
	return t.entries[i]
}

// Entries returns a copy of the rate ladder.
func (t *ThresholdTable) Entries() []ThresholdEntry {
	return append([]ThresholdEntry(nil), t.entries...)
}

// IndexOf returns the ladder position of cfg. It panics with
// InvariantViolation when cfg was never registered.
func (t *ThresholdTable) IndexOf(cfg phy.TxConfig) int {
	i, ok := t.index[cfg]
	if !ok {
		invariant("configuration %s not in threshold table", cfg)
	}
	return i
}

// Threshold returns the minimum SNR stored for cfg. It panics with
// InvariantViolation when cfg was never registered.
func (t *ThresholdTable) Threshold(cfg phy.TxConfig) float64 {
	return t.entries[t.IndexOf(cfg)].MinSNR
}

// Best returns the ladder index of the highest-rate configuration whose
// threshold does not exceed snr, or MostRobust when none qualifies. Among
// equal thresholds the higher rate wins.
func (t *ThresholdTable) Best(snr float64) int {
	best := -1
	for i, e := range t.entries {
		if e.MinSNR <= snr {
			best = i
		}
	}
	if best < 0 {
		return t.mostRobust
	}
	return best
}

// MostRobust returns the index of the entry with the lowest threshold.
func (t *ThresholdTable) MostRobust() int { return t.mostRobust }

// RTS returns the index of the most robust legacy entry, or MostRobust when
// the catalog has no legacy modes.
func (t *ThresholdTable) RTS() int { return t.rts }

// Lower returns one step down the ladder from i: the fastest entry that is
// strictly slower than i and needs no more SNR. Without such an entry it
// falls back to MostRobust, and returns i when i already is the most
// robust.
func (t *ThresholdTable) Lower(i int) int {
	cur := t.Entry(i)
	for j := i - 1; j >= 0; j-- {
		e := t.entries[j]
		if e.DataRate() < cur.DataRate() && e.MinSNR <= cur.MinSNR {
			return j
		}
	}
	if t.entries[t.mostRobust].DataRate() <= cur.DataRate() {
		return t.mostRobust
	}
	return i
}

// Higher returns one step up the ladder from i: the slowest entry strictly
// faster than i, or i at the top.
func (t *ThresholdTable) Higher(i int) int {
	cur := t.Entry(i)
	for j := i + 1; j < len(t.entries); j++ {
		if t.entries[j].DataRate() > cur.DataRate() {
			return j
		}
	}
	return i
}
