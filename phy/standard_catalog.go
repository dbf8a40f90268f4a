package phy

import (
	"fmt"
	"strings"
)

// Standard names an 802.11 amendment the reference catalog can emulate.
type Standard string

const (
	Standard80211a  Standard = "802.11a"
	Standard80211b  Standard = "802.11b"
	Standard80211g  Standard = "802.11g"
	Standard80211n  Standard = "802.11n"
	Standard80211ac Standard = "802.11ac"
	Standard80211ax Standard = "802.11ax"
)

// ParseStandard accepts "a", "11ac", "802.11ax" and similar spellings.
func ParseStandard(s string) (Standard, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "802.")
	v = strings.TrimPrefix(v, "11")
	switch v {
	case "a":
		return Standard80211a, nil
	case "b":
		return Standard80211b, nil
	case "g":
		return Standard80211g, nil
	case "n":
		return Standard80211n, nil
	case "ac":
		return Standard80211ac, nil
	case "ax":
		return Standard80211ax, nil
	default:
		return "", fmt.Errorf("unknown 802.11 standard %q", s)
	}
}

// StandardCatalog is a reference Catalog built from the 802.11 mode tables
// and the AWGN error model in ber.go.
type StandardCatalog struct {
	standard Standard
	legacy   []Mode
	mcs      []Mode

	maxWidth  uint16
	streams   uint8
	shortGI   bool
	heGuardNs uint16
}

// CatalogOption customises a StandardCatalog.
type CatalogOption func(*StandardCatalog)

// WithChannelWidth sets the widest channel in MHz (20, 40, 80 or 160).
func WithChannelWidth(mhz uint16) CatalogOption {
	return func(c *StandardCatalog) { c.maxWidth = mhz }
}

// WithSpatialStreams sets the number of transmit streams (1-4).
func WithSpatialStreams(n uint8) CatalogOption {
	return func(c *StandardCatalog) { c.streams = n }
}

// WithShortGuardInterval enables the 400 ns HT/VHT guard interval in
// addition to the regular 800 ns one.
func WithShortGuardInterval(enabled bool) CatalogOption {
	return func(c *StandardCatalog) { c.shortGI = enabled }
}

// WithHEGuardInterval sets the HE guard interval (800, 1600 or 3200 ns).
func WithHEGuardInterval(ns uint16) CatalogOption {
	return func(c *StandardCatalog) { c.heGuardNs = ns }
}

// NewStandardCatalog returns the catalog of the given amendment.
func NewStandardCatalog(std Standard, opts ...CatalogOption) (*StandardCatalog, error) {
	c := &StandardCatalog{
		standard:  std,
		maxWidth:  20,
		streams:   1,
		heGuardNs: 800,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch c.maxWidth {
	case 20, 40, 80, 160:
	default:
		return nil, fmt.Errorf("unsupported channel width %d MHz", c.maxWidth)
	}
	if c.streams == 0 || c.streams > 4 {
		return nil, fmt.Errorf("unsupported spatial stream count %d", c.streams)
	}
	switch c.heGuardNs {
	case 800, 1600, 3200:
	default:
		return nil, fmt.Errorf("unsupported HE guard interval %d ns", c.heGuardNs)
	}

	switch std {
	case Standard80211a:
		c.legacy = OFDMModes(false)
	case Standard80211b:
		c.legacy = DSSSModes()
	case Standard80211g:
		c.legacy = append(DSSSModes(), OFDMModes(true)...)
	case Standard80211n:
		c.legacy = OFDMModes(false)
		c.mcs = HTModes(c.streams)
	case Standard80211ac:
		c.legacy = OFDMModes(false)
		c.mcs = append(HTModes(c.streams), VHTModes()...)
	case Standard80211ax:
		c.legacy = OFDMModes(false)
		c.mcs = append(append(HTModes(c.streams), VHTModes()...), HEModes()...)
	default:
		return nil, fmt.Errorf("unknown 802.11 standard %q", std)
	}

	if c.mcs == nil && c.maxWidth > 20 {
		// Legacy-only PHYs never bond channels.
		c.maxWidth = 20
	}
	if std == Standard80211n && c.maxWidth > 40 {
		c.maxWidth = 40
	}
	return c, nil
}

// Standard returns the amendment the catalog was built for.
func (c *StandardCatalog) Standard() Standard { return c.standard }

func (c *StandardCatalog) LegacyModes() []Mode { return append([]Mode(nil), c.legacy...) }
func (c *StandardCatalog) MCSModes() []Mode    { return append([]Mode(nil), c.mcs...) }

// ChannelWidthFor returns 22 MHz for DSSS/HR-DSSS modes and 20 MHz for
// every OFDM legacy mode.
func (c *StandardCatalog) ChannelWidthFor(m Mode) uint16 {
	if m.Class == ClassDSSS || m.Class == ClassHRDSSS {
		return 22
	}
	return 20
}

func (c *StandardCatalog) MaxChannelWidth() uint16  { return c.maxWidth }
func (c *StandardCatalog) MaxSpatialStreams() uint8 { return c.streams }

func (c *StandardCatalog) GuardIntervals(class ModulationClass) []uint16 {
	switch class {
	case ClassHT, ClassVHT:
		if c.shortGI {
			return []uint16{800, 400}
		}
		return []uint16{800}
	case ClassHE:
		return []uint16{c.heGuardNs}
	default:
		return nil
	}
}

func (c *StandardCatalog) SupportsHT() bool {
	switch c.standard {
	case Standard80211n, Standard80211ac, Standard80211ax:
		return true
	}
	return false
}

func (c *StandardCatalog) SupportsVHT() bool {
	return c.standard == Standard80211ac || c.standard == Standard80211ax
}

func (c *StandardCatalog) SupportsHE() bool { return c.standard == Standard80211ax }

func (c *StandardCatalog) MinimumSNR(cfg TxConfig, targetErrorRate float64) float64 {
	return SolveMinimumSNR(cfg, targetErrorRate)
}
