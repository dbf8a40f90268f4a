package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/linkrate/timectrl"
)

// Report summarises a run.
type Report struct {
	Scenario      string          `json:"scenario"`
	Algorithm     string          `json:"algorithm"`
	Frames        uint64          `json:"frames"`
	SimulatedTime time.Duration   `json:"simulated_time_ns"`
	Wall          time.Duration   `json:"wall_ns"`
	Stations      []StationReport `json:"stations"`
}

// StationReport is the per-station part of a Report. Controller counters
// come from the station state; the rest is driver accounting.
type StationReport struct {
	Address      string `json:"address"`
	FinalConfig  string `json:"final_config"`
	FinalRateBps uint64 `json:"final_rate_bps"`

	PacketsObserved  uint64 `json:"packets_observed"`
	Successes        uint64 `json:"successes"`
	Failures         uint64 `json:"failures"`
	DiscardedSamples uint64 `json:"discarded_samples"`
	Probes           uint64 `json:"probes"`
	RecoveryEntries  uint64 `json:"recovery_entries"`
	RateChanges      uint64 `json:"rate_changes"`

	Attempts      uint64        `json:"attempts"`
	Delivered     uint64        `json:"delivered"`
	Abandoned     uint64        `json:"abandoned"`
	RTSAbandoned  uint64        `json:"rts_abandoned"`
	DeliveredBits uint64        `json:"delivered_bits"`
	Airtime       time.Duration `json:"airtime_ns"`
	MeanSNR       float64       `json:"mean_snr_db"`
	ThroughputBps float64       `json:"throughput_bps"`
}

func (d *Driver) report(last timectrl.Frame, wall time.Duration) *Report {
	r := &Report{
		Scenario:      d.scenario.Name,
		Algorithm:     d.ctrl.Algorithm().String(),
		Frames:        last.Index,
		SimulatedTime: last.Time.Sub(d.start),
		Wall:          wall,
	}
	for _, run := range d.runs {
		st := run.station
		s := run.stats
		cfg := st.Current()
		s.FinalConfig = cfg.String()
		s.FinalRateBps = cfg.DataRate()
		s.PacketsObserved = st.PacketsObserved()
		s.Successes = st.Successes()
		s.Failures = st.Failures()
		s.DiscardedSamples = st.DiscardedSamples()
		s.Probes = st.Probes()
		s.RecoveryEntries = st.RecoveryEntries()
		if run.snrCount > 0 {
			s.MeanSNR = run.snrSum / float64(run.snrCount)
		}
		if s.Airtime > 0 {
			s.ThroughputBps = float64(s.DeliveredBits) / s.Airtime.Seconds()
		}
		r.Stations = append(r.Stations, s)
	}
	return r
}

// WriteText renders the report as an aligned table.
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "scenario %s  algorithm %s  frames %d  simulated %v  wall %v\n\n",
		r.Scenario, r.Algorithm, r.Frames, r.SimulatedTime, r.Wall.Round(time.Millisecond)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tCONFIG\tRATE Mb/s\tDELIVERED\tABANDONED\tATTEMPTS\tDISCARDED\tPROBES\tRECOVERIES\tCHANGES\tMEAN SNR\tTHROUGHPUT Mb/s")
	for _, s := range r.Stations {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.1f\t%.2f\n",
			s.Address, s.FinalConfig, float64(s.FinalRateBps)/1e6,
			s.Delivered, s.Abandoned, s.Attempts, s.DiscardedSamples,
			s.Probes, s.RecoveryEntries, s.RateChanges, s.MeanSNR, s.ThroughputBps/1e6)
	}
	return tw.Flush()
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
