// Package phy describes the transmit configurations a radio offers and the
// signal-to-noise ratio each one needs to meet a target error rate.
package phy

// Catalog is the physical-layer view a rate controller is built from.
type Catalog interface {
	// LegacyModes returns the non-HT modes (DSSS, HR-DSSS, OFDM).
	LegacyModes() []Mode
	// MCSModes returns every HT/VHT/HE modulation and coding scheme.
	MCSModes() []Mode
	// ChannelWidthFor returns the channel width a legacy mode occupies.
	ChannelWidthFor(m Mode) uint16
	// MaxChannelWidth is the widest channel the radio operates on (MHz).
	MaxChannelWidth() uint16
	// MaxSpatialStreams is the number of transmit spatial streams.
	MaxSpatialStreams() uint8
	// GuardIntervals lists the guard intervals (ns) usable with class.
	GuardIntervals(class ModulationClass) []uint16

	SupportsHT() bool
	SupportsVHT() bool
	SupportsHE() bool

	// MinimumSNR returns the SNR (dB) at which cfg meets targetErrorRate.
	MinimumSNR(cfg TxConfig, targetErrorRate float64) float64
}

// EnumerateConfigs walks every transmit configuration the catalog exposes:
// legacy modes first, then, when any high-throughput class is supported,
// each MCS for every channel width from 20 MHz doubling up to the catalog
// maximum, every spatial stream count and every guard interval.
func EnumerateConfigs(c Catalog) []TxConfig {
	var out []TxConfig
	for _, m := range c.LegacyModes() {
		out = append(out, TxConfig{
			Mode:            m,
			ChannelWidthMHz: c.ChannelWidthFor(m),
			Nss:             1,
		})
	}

	if !c.SupportsHT() && !c.SupportsVHT() && !c.SupportsHE() {
		return out
	}

	maxWidth := c.MaxChannelWidth()
	maxNss := c.MaxSpatialStreams()
	if maxNss == 0 {
		maxNss = 1
	}
	for _, m := range c.MCSModes() {
		if !classSupported(c, m.Class) {
			continue
		}
		for width := uint16(20); width <= maxWidth; width *= 2 {
			if m.Class == ClassHT && width > 40 {
				break
			}
			for _, gi := range c.GuardIntervals(m.Class) {
				if m.Class == ClassHT {
					// HT encodes the stream count in the MCS index.
					nss := m.HTStreams()
					if nss > maxNss {
						continue
					}
					out = append(out, TxConfig{Mode: m, ChannelWidthMHz: width, Nss: nss, GuardIntervalNs: gi})
					continue
				}
				for nss := uint8(1); nss <= maxNss; nss++ {
					out = append(out, TxConfig{Mode: m, ChannelWidthMHz: width, Nss: nss, GuardIntervalNs: gi})
				}
			}
		}
	}
	return out
}

func classSupported(c Catalog, class ModulationClass) bool {
	switch class {
	case ClassHT:
		return c.SupportsHT()
	case ClassVHT:
		return c.SupportsVHT()
	case ClassHE:
		return c.SupportsHE()
	default:
		return false
	}
}
