package phy

import "fmt"

// TxConfig is one concrete transmit configuration: a mode sent on a given
// channel width, number of spatial streams and guard interval. It is
// comparable and used as a map key.
type TxConfig struct {
	Mode            Mode
	ChannelWidthMHz uint16
	Nss             uint8
	GuardIntervalNs uint16
}

// dataSubcarriers per channel width for HT/VHT (52/108/234/468) and HE
// (234/468/980/1960).
var (
	htDataSubcarriers = map[uint16]float64{20: 52, 40: 108, 80: 234, 160: 468}
	heDataSubcarriers = map[uint16]float64{20: 234, 40: 468, 80: 980, 160: 1960}
)

const (
	htSymbolNs = 3200  // HT/VHT OFDM symbol without guard interval
	heSymbolNs = 12800 // HE OFDM symbol without guard interval
)

// DataRate returns the nominal PHY data rate in bit/s. Unknown widths
// yield zero.
func (c TxConfig) DataRate() uint64 {
	if c.Mode.Class.IsLegacy() {
		return c.Mode.LegacyRateBps
	}

	nss := c.Nss
	if nss == 0 {
		nss = 1
	}
	gi := float64(c.GuardIntervalNs)

	var nsd, symbolNs float64
	switch c.Mode.Class {
	case ClassHT, ClassVHT:
		nsd = htDataSubcarriers[c.ChannelWidthMHz]
		if gi == 0 {
			gi = 800
		}
		symbolNs = htSymbolNs + gi
	case ClassHE:
		nsd = heDataSubcarriers[c.ChannelWidthMHz]
		if gi == 0 {
			gi = 800
		}
		symbolNs = heSymbolNs + gi
	default:
		return 0
	}

	bitsPerSymbol := nsd * float64(c.Mode.BitsPerSymbol()) * c.Mode.CodeRate.Ratio() * float64(nss)
	return uint64(bitsPerSymbol * 1e9 / symbolNs)
}

func (c TxConfig) String() string {
	if c.Mode.Class.IsLegacy() {
		return fmt.Sprintf("%s/%dMHz", c.Mode.Name, c.ChannelWidthMHz)
	}
	return fmt.Sprintf("%s/%dMHz/%dss/%dns", c.Mode.Name, c.ChannelWidthMHz, c.Nss, c.GuardIntervalNs)
}
