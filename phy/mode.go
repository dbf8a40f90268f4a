package phy

import "fmt"

// ModulationClass groups modes by the PHY generation that defines them.
type ModulationClass int

const (
	ClassUnknown ModulationClass = iota // Default/unset
	ClassDSSS                           // 802.11 (1, 2 Mb/s)
	ClassHRDSSS                         // 802.11b CCK (5.5, 11 Mb/s)
	ClassERPOFDM                        // 802.11g OFDM in 2.4 GHz
	ClassOFDM                           // 802.11a OFDM
	ClassHT                             // 802.11n
	ClassVHT                            // 802.11ac
	ClassHE                             // 802.11ax
)

func (c ModulationClass) String() string {
	switch c {
	case ClassDSSS:
		return "DSSS"
	case ClassHRDSSS:
		return "HR-DSSS"
	case ClassERPOFDM:
		return "ERP-OFDM"
	case ClassOFDM:
		return "OFDM"
	case ClassHT:
		return "HT"
	case ClassVHT:
		return "VHT"
	case ClassHE:
		return "HE"
	default:
		return "unknown"
	}
}

// IsLegacy reports whether the class predates HT, i.e. its modes carry a
// fixed data rate and are always sent on a single spatial stream.
func (c ModulationClass) IsLegacy() bool {
	return c >= ClassDSSS && c <= ClassOFDM
}

// CodeRate is the forward error correction rate Num/Den. The zero value
// means uncoded.
type CodeRate struct {
	Num uint8
	Den uint8
}

// Common code rates.
var (
	CodeRateUncoded = CodeRate{1, 1}
	CodeRate1_2     = CodeRate{1, 2}
	CodeRate2_3     = CodeRate{2, 3}
	CodeRate3_4     = CodeRate{3, 4}
	CodeRate5_6     = CodeRate{5, 6}
)

// Ratio returns the code rate as a fraction in (0,1].
func (r CodeRate) Ratio() float64 {
	if r.Num == 0 || r.Den == 0 {
		return 1
	}
	return float64(r.Num) / float64(r.Den)
}

func (r CodeRate) String() string {
	if r.Num == 0 || r.Den == 0 || r.Num == r.Den {
		return "uncoded"
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Mode is a modulation and coding scheme. Legacy modes carry their data
// rate directly; HT/VHT/HE modes derive it from the channel width, guard
// interval and stream count of the TxConfig they are used in.
type Mode struct {
	Name  string
	Class ModulationClass

	// MCS is the MCS index for HT/VHT/HE modes. HT indices above 7 encode
	// additional spatial streams (MCS/8 + 1).
	MCS uint8

	// Constellation is the number of points (2 for BPSK, 4 for QPSK, 16
	// for 16-QAM and so on).
	Constellation uint16
	CodeRate      CodeRate

	// LegacyRateBps is the fixed data rate of legacy modes. Zero for HT
	// and later classes.
	LegacyRateBps uint64

	// SpreadingGain is the linear processing gain applied before
	// demodulation (DSSS/CCK chips per symbol). Zero means none.
	SpreadingGain float64
}

func (m Mode) String() string { return m.Name }

// BitsPerSymbol returns log2 of the constellation size.
func (m Mode) BitsPerSymbol() int {
	bits := 0
	for n := m.Constellation; n > 1; n >>= 1 {
		bits++
	}
	return bits
}

// HTStreams returns the number of spatial streams an HT MCS index implies.
// For every other class it returns 1.
func (m Mode) HTStreams() uint8 {
	if m.Class != ClassHT {
		return 1
	}
	return m.MCS/8 + 1
}

func legacyMode(name string, class ModulationClass, rateBps uint64, constellation uint16, rate CodeRate, spreading float64) Mode {
	return Mode{
		Name:          name,
		Class:         class,
		Constellation: constellation,
		CodeRate:      rate,
		LegacyRateBps: rateBps,
		SpreadingGain: spreading,
	}
}

// DSSSModes returns the 802.11b mode set (DSSS and HR-DSSS).
func DSSSModes() []Mode {
	return []Mode{
		legacyMode("DsssRate1Mbps", ClassDSSS, 1_000_000, 2, CodeRateUncoded, 11),
		legacyMode("DsssRate2Mbps", ClassDSSS, 2_000_000, 4, CodeRateUncoded, 11),
		legacyMode("DsssRate5_5Mbps", ClassHRDSSS, 5_500_000, 4, CodeRateUncoded, 2),
		legacyMode("DsssRate11Mbps", ClassHRDSSS, 11_000_000, 4, CodeRateUncoded, 1),
	}
}

// OFDMModes returns the 802.11a mode set. With erp set the modes are
// tagged ERP-OFDM (802.11g) instead.
func OFDMModes(erp bool) []Mode {
	class, prefix := ClassOFDM, "OfdmRate"
	if erp {
		class, prefix = ClassERPOFDM, "ErpOfdmRate"
	}
	return []Mode{
		legacyMode(prefix+"6Mbps", class, 6_000_000, 2, CodeRate1_2, 0),
		legacyMode(prefix+"9Mbps", class, 9_000_000, 2, CodeRate3_4, 0),
		legacyMode(prefix+"12Mbps", class, 12_000_000, 4, CodeRate1_2, 0),
		legacyMode(prefix+"18Mbps", class, 18_000_000, 4, CodeRate3_4, 0),
		legacyMode(prefix+"24Mbps", class, 24_000_000, 16, CodeRate1_2, 0),
		legacyMode(prefix+"36Mbps", class, 36_000_000, 16, CodeRate3_4, 0),
		legacyMode(prefix+"48Mbps", class, 48_000_000, 64, CodeRate2_3, 0),
		legacyMode(prefix+"54Mbps", class, 54_000_000, 64, CodeRate3_4, 0),
	}
}

// mcsTable lists constellation and code rate for MCS 0-11, shared by
// VHT and HE (HT uses the first eight entries per stream group).
var mcsTable = []struct {
	constellation uint16
	rate          CodeRate
}{
	{2, CodeRate1_2},
	{4, CodeRate1_2},
	{4, CodeRate3_4},
	{16, CodeRate1_2},
	{16, CodeRate3_4},
	{64, CodeRate2_3},
	{64, CodeRate3_4},
	{64, CodeRate5_6},
	{256, CodeRate3_4},
	{256, CodeRate5_6},
	{1024, CodeRate3_4},
	{1024, CodeRate5_6},
}

// HTModes returns HT MCS 0..8*streams-1.
func HTModes(streams uint8) []Mode {
	if streams == 0 {
		streams = 1
	}
	if streams > 4 {
		streams = 4
	}
	out := make([]Mode, 0, int(streams)*8)
	for mcs := 0; mcs < int(streams)*8; mcs++ {
		e := mcsTable[mcs%8]
		out = append(out, Mode{
			Name:          fmt.Sprintf("HtMcs%d", mcs),
			Class:         ClassHT,
			MCS:           uint8(mcs),
			Constellation: e.constellation,
			CodeRate:      e.rate,
		})
	}
	return out
}

// VHTModes returns VHT MCS 0-9.
func VHTModes() []Mode { return mcsModes("VhtMcs", ClassVHT, 10) }

// HEModes returns HE MCS 0-11.
func HEModes() []Mode { return mcsModes("HeMcs", ClassHE, 12) }

func mcsModes(prefix string, class ModulationClass, n int) []Mode {
	out := make([]Mode, 0, n)
	for mcs := 0; mcs < n; mcs++ {
		e := mcsTable[mcs]
		out = append(out, Mode{
			Name:          fmt.Sprintf("%s%d", prefix, mcs),
			Class:         class,
			MCS:           uint8(mcs),
			Constellation: e.constellation,
			CodeRate:      e.rate,
		})
	}
	return out
}
