package ratectl

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/linkrate/phy"
)

// ladderCatalog has three legacy configurations at 5, 10 and 20 dB.
func ladderCatalog(t *testing.T) *phy.StaticCatalog {
	t.Helper()
	c, err := phy.NewStaticCatalog(
		phy.StaticEntry{Mode: phy.NewOFDMMode("C1", 6_000_000), MinSNR: 5},
		phy.StaticEntry{Mode: phy.NewOFDMMode("C2", 12_000_000), MinSNR: 10},
		phy.StaticEntry{Mode: phy.NewOFDMMode("C3", 24_000_000), MinSNR: 20},
	)
	if err != nil {
		t.Fatalf("NewStaticCatalog error: %v", err)
	}
	return c
}

func ladderTable(t *testing.T) *ThresholdTable {
	t.Helper()
	table, err := BuildThresholdTable(ladderCatalog(t), DefaultTargetErrorRate)
	if err != nil {
		t.Fatalf("BuildThresholdTable error: %v", err)
	}
	return table
}

func TestBuildThresholdTableOrdersLadder(t *testing.T) {
	table := ladderTable(t)
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	for i, want := range []string{"C1", "C2", "C3"} {
		if got := table.Entry(i).Config.Mode.Name; got != want {
			t.Fatalf("Entry(%d) = %s, want %s", i, got, want)
		}
	}
	if table.MostRobust() != 0 {
		t.Fatalf("MostRobust() = %d, want 0", table.MostRobust())
	}
	if table.RTS() != 0 {
		t.Fatalf("RTS() = %d, want 0", table.RTS())
	}
}

func TestBuildThresholdTableRejectsEmptyCatalog(t *testing.T) {
	empty, err := phy.NewStaticCatalog()
	if err != nil {
		t.Fatalf("NewStaticCatalog error: %v", err)
	}
	if _, err := BuildThresholdTable(empty, DefaultTargetErrorRate); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("BuildThresholdTable(empty) error = %v, want ErrConfiguration", err)
	}
	if _, err := BuildThresholdTable(nil, DefaultTargetErrorRate); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("BuildThresholdTable(nil) error = %v, want ErrConfiguration", err)
	}
	if _, err := BuildThresholdTable(ladderCatalog(t), 2); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("BuildThresholdTable(ber=2) error = %v, want ErrConfiguration", err)
	}
}

func TestThresholdTableBest(t *testing.T) {
	table := ladderTable(t)
	tests := []struct {
		snr  float64
		want string
	}{
		{-3, "C1"},
		{4.99, "C1"},
		{5, "C1"},
		{9.9, "C1"},
		{10, "C2"},
		{12, "C2"},
		{19.99, "C2"},
		{20, "C3"},
		{45, "C3"},
	}
	for _, tt := range tests {
		if got := table.Entry(table.Best(tt.snr)).Config.Mode.Name; got != tt.want {
			t.Errorf("Best(%g) = %s, want %s", tt.snr, got, tt.want)
		}
	}
}

func TestThresholdTableBestIsMonotone(t *testing.T) {
	for _, std := range []phy.Standard{phy.Standard80211a, phy.Standard80211g, phy.Standard80211n, phy.Standard80211ac} {
		t.Run(string(std), func(t *testing.T) {
			cat, err := phy.NewStandardCatalog(std)
			if err != nil {
				t.Fatalf("NewStandardCatalog error: %v", err)
			}
			table, err := BuildThresholdTable(cat, DefaultTargetErrorRate)
			if err != nil {
				t.Fatalf("BuildThresholdTable error: %v", err)
			}
			var prev uint64
			for snr := -10.0; snr <= 60; snr += 0.25 {
				i := table.Best(snr)
				e := table.Entry(i)
				if i != table.MostRobust() && e.MinSNR > snr {
					t.Fatalf("Best(%g) picked threshold %g above the sample", snr, e.MinSNR)
				}
				if rate := e.DataRate(); rate < prev {
					t.Fatalf("Best(%g) rate %d dropped below %d", snr, rate, prev)
				} else {
					prev = rate
				}
			}
		})
	}
}

func TestThresholdTableLowerHigher(t *testing.T) {
	table := ladderTable(t)
	tests := []struct {
		from      int
		lower     int
		higher    int
		fromLabel string
	}{
		{0, 0, 1, "C1"},
		{1, 0, 2, "C2"},
		{2, 1, 2, "C3"},
	}
	for _, tt := range tests {
		t.Run(tt.fromLabel, func(t *testing.T) {
			if got := table.Lower(tt.from); got != tt.lower {
				t.Fatalf("Lower(%d) = %d, want %d", tt.from, got, tt.lower)
			}
			if got := table.Higher(tt.from); got != tt.higher {
				t.Fatalf("Higher(%d) = %d, want %d", tt.from, got, tt.higher)
			}
		})
	}
}

func TestThresholdLookupOfUnknownConfigPanics(t *testing.T) {
	table := ladderTable(t)
	unknown := phy.TxConfig{Mode: phy.NewOFDMMode("C9", 54_000_000), ChannelWidthMHz: 20, Nss: 1}

	defer func() {
		r := recover()
		if _, ok := r.(InvariantViolation); !ok {
			t.Fatalf("recover() = %#v, want InvariantViolation", r)
		}
	}()
	table.Threshold(unknown)
	t.Fatalf("Threshold of an unknown configuration returned")
}

func TestThresholdTableRTSPrefersLegacy(t *testing.T) {
	cat, err := phy.NewStandardCatalog(phy.Standard80211n)
	if err != nil {
		t.Fatalf("NewStandardCatalog error: %v", err)
	}
	table, err := BuildThresholdTable(cat, DefaultTargetErrorRate)
	if err != nil {
		t.Fatalf("BuildThresholdTable error: %v", err)
	}
	rts := table.Entry(table.RTS())
	if !rts.Config.Mode.Class.IsLegacy() {
		t.Fatalf("RTS configuration %s is not legacy", rts.Config)
	}
	for _, e := range table.Entries() {
		if e.Config.Mode.Class.IsLegacy() && e.MinSNR < rts.MinSNR {
			t.Fatalf("legacy %s needs %g dB, below RTS choice %g dB", e.Config, e.MinSNR, rts.MinSNR)
		}
	}
}
