package phy

import (
	"math"
	"testing"
)

func TestParseStandard(t *testing.T) {
	tests := []struct {
		in      string
		want    Standard
		wantErr bool
	}{
		{"a", Standard80211a, false},
		{"11b", Standard80211b, false},
		{"802.11g", Standard80211g, false},
		{" N ", Standard80211n, false},
		{"802.11ac", Standard80211ac, false},
		{"ax", Standard80211ax, false},
		{"be", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStandard(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseStandard(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTxConfigDataRate(t *testing.T) {
	ht := HTModes(2)
	vht := VHTModes()
	he := HEModes()

	tests := []struct {
		name string
		cfg  TxConfig
		want uint64
	}{
		{"ofdm 54", TxConfig{Mode: OFDMModes(false)[7], ChannelWidthMHz: 20, Nss: 1}, 54_000_000},
		{"dsss 11", TxConfig{Mode: DSSSModes()[3], ChannelWidthMHz: 22, Nss: 1}, 11_000_000},
		{"ht mcs0 20MHz long GI", TxConfig{Mode: ht[0], ChannelWidthMHz: 20, Nss: 1, GuardIntervalNs: 800}, 6_500_000},
		{"ht mcs7 20MHz long GI", TxConfig{Mode: ht[7], ChannelWidthMHz: 20, Nss: 1, GuardIntervalNs: 800}, 65_000_000},
		{"ht mcs15 40MHz short GI", TxConfig{Mode: ht[15], ChannelWidthMHz: 40, Nss: 2, GuardIntervalNs: 400}, 300_000_000},
		{"vht mcs9 80MHz short GI", TxConfig{Mode: vht[9], ChannelWidthMHz: 80, Nss: 1, GuardIntervalNs: 400}, 433_333_333},
		{"he mcs11 20MHz", TxConfig{Mode: he[11], ChannelWidthMHz: 20, Nss: 1, GuardIntervalNs: 800}, 143_382_352},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.DataRate()
			// Allow rounding in the last digit.
			if diff := int64(got) - int64(tt.want); diff < -1 || diff > 1 {
				t.Fatalf("DataRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBitErrorRateDecreasesWithSNR(t *testing.T) {
	cfg := TxConfig{Mode: OFDMModes(false)[4], ChannelWidthMHz: 20, Nss: 1}
	prev := BitErrorRate(cfg, -10)
	for snr := -9.0; snr <= 40; snr++ {
		cur := BitErrorRate(cfg, snr)
		if cur > prev {
			t.Fatalf("BER rose from %g to %g at %.0f dB", prev, cur, snr)
		}
		prev = cur
	}
}

func TestSolveMinimumSNRMeetsTarget(t *testing.T) {
	const target = 1e-6
	for _, m := range OFDMModes(false) {
		cfg := TxConfig{Mode: m, ChannelWidthMHz: 20, Nss: 1}
		snr := SolveMinimumSNR(cfg, target)
		if ber := BitErrorRate(cfg, snr); ber > target {
			t.Fatalf("%s: BER %g at threshold %.2f dB exceeds target", m.Name, ber, snr)
		}
		if ber := BitErrorRate(cfg, snr-0.01); ber <= target {
			t.Fatalf("%s: threshold %.2f dB is not minimal", m.Name, snr)
		}
	}
}

func TestOFDMThresholdsRiseWithRate(t *testing.T) {
	prev := math.Inf(-1)
	for _, m := range OFDMModes(false) {
		snr := SolveMinimumSNR(TxConfig{Mode: m, ChannelWidthMHz: 20, Nss: 1}, 1e-6)
		if snr <= prev {
			t.Fatalf("%s threshold %.2f dB not above previous %.2f dB", m.Name, snr, prev)
		}
		prev = snr
	}
}

func TestWiderChannelsNeedMoreSNR(t *testing.T) {
	m := VHTModes()[4]
	narrow := SolveMinimumSNR(TxConfig{Mode: m, ChannelWidthMHz: 20, Nss: 1, GuardIntervalNs: 800}, 1e-6)
	wide := SolveMinimumSNR(TxConfig{Mode: m, ChannelWidthMHz: 80, Nss: 1, GuardIntervalNs: 800}, 1e-6)
	if math.Abs((wide-narrow)-10*math.Log10(4)) > 0.01 {
		t.Fatalf("80 MHz penalty = %.3f dB, want %.3f dB", wide-narrow, 10*math.Log10(4))
	}
}

func TestNewStandardCatalogValidation(t *testing.T) {
	if _, err := NewStandardCatalog(Standard80211ac, WithChannelWidth(30)); err == nil {
		t.Fatalf("expected error for 30 MHz width")
	}
	if _, err := NewStandardCatalog(Standard80211ac, WithSpatialStreams(5)); err == nil {
		t.Fatalf("expected error for 5 streams")
	}
	if _, err := NewStandardCatalog(Standard80211ax, WithHEGuardInterval(400)); err == nil {
		t.Fatalf("expected error for 400 ns HE guard interval")
	}
	if _, err := NewStandardCatalog("802.11z"); err == nil {
		t.Fatalf("expected error for unknown standard")
	}
}

func TestEnumerateConfigs(t *testing.T) {
	tests := []struct {
		name string
		std  Standard
		opts []CatalogOption
		want int
	}{
		{"11a", Standard80211a, nil, 8},
		{"11b", Standard80211b, nil, 4},
		{"11g", Standard80211g, nil, 12},
		// 8 legacy + 16 HT MCS x 2 widths x 2 GIs (streams implied by MCS).
		{"11n 2ss 40MHz sgi", Standard80211n, []CatalogOption{WithChannelWidth(40), WithSpatialStreams(2), WithShortGuardInterval(true)}, 8 + 16*2*2},
		// 8 legacy + 8 HT x 2 widths + 10 VHT x 3 widths.
		{"11ac 1ss 80MHz", Standard80211ac, []CatalogOption{WithChannelWidth(80)}, 8 + 8*2 + 10*3},
		// 8 legacy + 8 HT + 10 VHT x 2ss + 12 HE x 2ss, all at 20 MHz.
		{"11ax 2ss 20MHz", Standard80211ax, []CatalogOption{WithSpatialStreams(2)}, 8 + 16 + 20 + 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewStandardCatalog(tt.std, tt.opts...)
			if err != nil {
				t.Fatalf("NewStandardCatalog: %v", err)
			}
			got := EnumerateConfigs(c)
			if len(got) != tt.want {
				t.Fatalf("EnumerateConfigs returned %d configs, want %d", len(got), tt.want)
			}
			seen := make(map[TxConfig]bool, len(got))
			for _, cfg := range got {
				if seen[cfg] {
					t.Fatalf("duplicate config %s", cfg)
				}
				seen[cfg] = true
				if cfg.DataRate() == 0 {
					t.Fatalf("config %s has zero data rate", cfg)
				}
			}
		})
	}
}

func TestStaticCatalog(t *testing.T) {
	c1 := NewOFDMMode("C1", 6_000_000)
	c2 := NewOFDMMode("C2", 12_000_000)
	c, err := NewStaticCatalog(StaticEntry{Mode: c1, MinSNR: 5}, StaticEntry{Mode: c2, MinSNR: 10})
	if err != nil {
		t.Fatalf("NewStaticCatalog: %v", err)
	}
	if got := c.MinimumSNR(TxConfig{Mode: c2, ChannelWidthMHz: 20, Nss: 1}, 1e-6); got != 10 {
		t.Fatalf("MinimumSNR(C2) = %v, want 10", got)
	}
	if got := len(EnumerateConfigs(c)); got != 2 {
		t.Fatalf("EnumerateConfigs = %d configs, want 2", got)
	}

	if _, err := NewStaticCatalog(StaticEntry{Mode: c1}, StaticEntry{Mode: c1}); err == nil {
		t.Fatalf("expected duplicate mode error")
	}
	if _, err := NewStaticCatalog(StaticEntry{Mode: HTModes(1)[0]}); err == nil {
		t.Fatalf("expected error for HT mode in static catalog")
	}
}
