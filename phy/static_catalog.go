package phy

import "fmt"

// StaticEntry pins a legacy mode to a fixed minimum SNR.
type StaticEntry struct {
	Mode   Mode
	MinSNR float64
}

// StaticCatalog is a legacy-only Catalog whose thresholds are given
// explicitly instead of derived from an error model. The target error rate
// passed to MinimumSNR is ignored.
type StaticCatalog struct {
	entries []StaticEntry
	byName  map[string]float64
}

// NewStaticCatalog builds a catalog from entries. Mode names must be unique
// and every mode must belong to a legacy class.
func NewStaticCatalog(entries ...StaticEntry) (*StaticCatalog, error) {
	c := &StaticCatalog{byName: make(map[string]float64, len(entries))}
	for _, e := range entries {
		if !e.Mode.Class.IsLegacy() {
			return nil, fmt.Errorf("mode %q: static catalogs only hold legacy modes", e.Mode.Name)
		}
		if _, dup := c.byName[e.Mode.Name]; dup {
			return nil, fmt.Errorf("mode %q listed twice", e.Mode.Name)
		}
		c.byName[e.Mode.Name] = e.MinSNR
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// NewOFDMMode is a convenience for static catalogs: an OFDM legacy mode
// with the given name and data rate.
func NewOFDMMode(name string, rateBps uint64) Mode {
	return Mode{Name: name, Class: ClassOFDM, Constellation: 2, CodeRate: CodeRate1_2, LegacyRateBps: rateBps}
}

func (c *StaticCatalog) LegacyModes() []Mode {
	out := make([]Mode, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Mode)
	}
	return out
}

func (c *StaticCatalog) MCSModes() []Mode                        { return nil }
func (c *StaticCatalog) ChannelWidthFor(Mode) uint16             { return 20 }
func (c *StaticCatalog) MaxChannelWidth() uint16                 { return 20 }
func (c *StaticCatalog) MaxSpatialStreams() uint8                { return 1 }
func (c *StaticCatalog) GuardIntervals(ModulationClass) []uint16 { return nil }
func (c *StaticCatalog) SupportsHT() bool                        { return false }
func (c *StaticCatalog) SupportsVHT() bool                       { return false }
func (c *StaticCatalog) SupportsHE() bool                        { return false }

// MinimumSNR returns the pinned threshold. Unknown modes need an SNR no
// receiver reports.
func (c *StaticCatalog) MinimumSNR(cfg TxConfig, _ float64) float64 {
	if snr, ok := c.byName[cfg.Mode.Name]; ok {
		return snr
	}
	return maxSearchSNR
}
