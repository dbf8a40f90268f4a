// Package sim drives rate controllers through a scripted wireless scenario:
// a set of stations, each with an SNR provider, stepped frame by frame.
package sim

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/signalsfoundry/linkrate/channel"
	"github.com/signalsfoundry/linkrate/phy"
	"github.com/signalsfoundry/linkrate/ratectl"
	"github.com/signalsfoundry/linkrate/timectrl"
)

// Scenario is the YAML description of one simulation run.
type Scenario struct {
	Name      string `yaml:"name"`
	Seed      uint64 `yaml:"seed"`
	Algorithm string `yaml:"algorithm"` // threshold | latency

	Standard           string        `yaml:"standard"`
	ChannelWidthMHz    uint16        `yaml:"channel_width_mhz"`
	SpatialStreams     uint8         `yaml:"spatial_streams"`
	ShortGuardInterval bool          `yaml:"short_guard_interval"`
	StaticModes        []StaticMode  `yaml:"static_modes"`
	Controller         ControllerSet `yaml:"controller"`

	Frames        uint64 `yaml:"frames"`
	FrameInterval string `yaml:"frame_interval"`
	ClockMode     string `yaml:"clock_mode"` // accelerated | realtime

	RetryLimit            uint32  `yaml:"retry_limit"`
	UseRTS                bool    `yaml:"use_rts"`
	ZeroSampleProbability float64 `yaml:"zero_sample_probability"`
	RegistryCapacity      int     `yaml:"registry_capacity"`
	Workers               int     `yaml:"workers"`

	Stations []StationSpec `yaml:"stations"`
}

// StaticMode pins one legacy mode to a threshold instead of deriving it
// from a standard.
type StaticMode struct {
	Name    string  `yaml:"name"`
	RateBps uint64  `yaml:"rate_bps"`
	MinSNR  float64 `yaml:"min_snr_db"`
}

// ControllerSet overrides ratectl.Config fields. Pointers distinguish an
// explicit zero from an absent value.
type ControllerSet struct {
	TargetErrorRate    float64  `yaml:"target_error_rate"`
	Percentile         *uint32  `yaml:"percentile"`
	ProbeInterval      uint64   `yaml:"probe_interval"`
	SuccessThreshold   uint32   `yaml:"success_threshold"`
	TimerTimeout       uint32   `yaml:"timer_timeout"`
	RecoveryRetryLimit *uint32  `yaml:"recovery_retry_limit"`
	CacheToleranceDB   *float64 `yaml:"cache_tolerance_db"`
	FrameBytes         uint32   `yaml:"frame_bytes"`
}

// StationSpec is one remote station.
type StationSpec struct {
	Address string      `yaml:"address"`
	Channel ChannelSpec `yaml:"channel"`
}

// ChannelSpec selects and parameterises a channel.Provider.
type ChannelSpec struct {
	Type string `yaml:"type"` // static | random_walk | distance | orbital

	SNR float64 `yaml:"snr_db"`

	Start float64 `yaml:"start_db"`
	Sigma float64 `yaml:"sigma_db"`
	Min   float64 `yaml:"min_db"`
	Max   float64 `yaml:"max_db"`
	Step  string  `yaml:"step"`

	DistanceKm float64 `yaml:"distance_km"`

	TLE1            string  `yaml:"tle1"`
	TLE2            string  `yaml:"tle2"`
	LatitudeDeg     float64 `yaml:"latitude_deg"`
	LongitudeDeg    float64 `yaml:"longitude_deg"`
	AltitudeKm      float64 `yaml:"altitude_km"`
	MinElevationDeg float64 `yaml:"min_elevation_deg"`

	Budget BudgetSpec `yaml:"budget"`
}

// BudgetSpec mirrors channel.LinkBudget.
type BudgetSpec struct {
	FrequencyGHz  float64 `yaml:"frequency_ghz"`
	BandwidthMHz  float64 `yaml:"bandwidth_mhz"`
	TxPowerDBm    float64 `yaml:"tx_power_dbm"`
	TxGainDBi     float64 `yaml:"tx_gain_dbi"`
	RxGainDBi     float64 `yaml:"rx_gain_dbi"`
	NoiseFigureDB float64 `yaml:"noise_figure_db"`
}

// DefaultScenario is a single 802.11a station on a static 25 dB channel.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:          "default",
		Seed:          1,
		Algorithm:     ratectl.AlgorithmThreshold.String(),
		Standard:      string(phy.Standard80211a),
		Frames:        1000,
		FrameInterval: "1ms",
		ClockMode:     timectrl.Accelerated.String(),
		RetryLimit:    7,
		Workers:       4,
		Stations: []StationSpec{
			{Address: "02:00:00:00:00:01", Channel: ChannelSpec{Type: "static", SNR: 25}},
		},
	}
}

// LoadScenario reads path over DefaultScenario and validates the result.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes YAML over DefaultScenario. Unknown keys are
// rejected. Stations listed in the document replace the default station.
func ParseScenario(data []byte) (*Scenario, error) {
	s := DefaultScenario()
	s.Stations = nil
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Stations) == 0 {
		s.Stations = DefaultScenario().Stations
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports every invalid field at once.
func (s *Scenario) Validate() error {
	var err error
	if _, e := s.algorithm(); e != nil {
		err = multierr.Append(err, e)
	}
	if len(s.StaticModes) == 0 {
		if _, e := phy.ParseStandard(s.Standard); e != nil {
			err = multierr.Append(err, e)
		}
	}
	if s.Frames == 0 {
		err = multierr.Append(err, fmt.Errorf("frames must be positive"))
	}
	if d, e := time.ParseDuration(s.FrameInterval); e != nil || d <= 0 {
		err = multierr.Append(err, fmt.Errorf("frame_interval %q is not a positive duration", s.FrameInterval))
	}
	if _, ok := timectrl.ParseMode(s.ClockMode); !ok {
		err = multierr.Append(err, fmt.Errorf("unknown clock_mode %q", s.ClockMode))
	}
	if s.RetryLimit == 0 {
		err = multierr.Append(err, fmt.Errorf("retry_limit must be positive"))
	}
	if s.ZeroSampleProbability < 0 || s.ZeroSampleProbability > 1 {
		err = multierr.Append(err, fmt.Errorf("zero_sample_probability %g outside [0,1]", s.ZeroSampleProbability))
	}
	if s.RegistryCapacity < 0 {
		err = multierr.Append(err, fmt.Errorf("registry_capacity must not be negative"))
	}
	if s.RegistryCapacity > 0 && s.RegistryCapacity < len(s.Stations) {
		err = multierr.Append(err, fmt.Errorf("registry_capacity %d holds fewer than %d stations", s.RegistryCapacity, len(s.Stations)))
	}

	seen := make(map[string]bool, len(s.Stations))
	for i, st := range s.Stations {
		if st.Address == "" {
			err = multierr.Append(err, fmt.Errorf("station %d has no address", i))
			continue
		}
		if seen[st.Address] {
			err = multierr.Append(err, fmt.Errorf("station %s listed twice", st.Address))
		}
		seen[st.Address] = true
		if _, e := st.Channel.provider(0); e != nil {
			err = multierr.Append(err, fmt.Errorf("station %s: %w", st.Address, e))
		}
	}
	if err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

func (s *Scenario) algorithm() (ratectl.Algorithm, error) {
	switch strings.ToLower(s.Algorithm) {
	case "threshold", "llra", "":
		return ratectl.AlgorithmThreshold, nil
	case "latency", "lara":
		return ratectl.AlgorithmLatency, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q", s.Algorithm)
	}
}

func (s *Scenario) interval() time.Duration {
	d, _ := time.ParseDuration(s.FrameInterval)
	return d
}

// Catalog builds the configuration catalog the scenario describes.
func (s *Scenario) Catalog() (phy.Catalog, error) {
	if len(s.StaticModes) > 0 {
		entries := make([]phy.StaticEntry, 0, len(s.StaticModes))
		for _, m := range s.StaticModes {
			entries = append(entries, phy.StaticEntry{Mode: phy.NewOFDMMode(m.Name, m.RateBps), MinSNR: m.MinSNR})
		}
		return phy.NewStaticCatalog(entries...)
	}

	std, err := phy.ParseStandard(s.Standard)
	if err != nil {
		return nil, err
	}
	opts := []phy.CatalogOption{phy.WithShortGuardInterval(s.ShortGuardInterval)}
	if s.ChannelWidthMHz != 0 {
		opts = append(opts, phy.WithChannelWidth(s.ChannelWidthMHz))
	}
	if s.SpatialStreams != 0 {
		opts = append(opts, phy.WithSpatialStreams(s.SpatialStreams))
	}
	return phy.NewStandardCatalog(std, opts...)
}

// ControllerConfig overlays the scenario's controller settings on
// ratectl.DefaultConfig.
func (s *Scenario) ControllerConfig() ratectl.Config {
	cfg := ratectl.DefaultConfig()
	c := s.Controller
	if c.TargetErrorRate != 0 {
		cfg.TargetErrorRate = c.TargetErrorRate
	}
	if c.Percentile != nil {
		cfg.Percentile = *c.Percentile
	}
	if c.ProbeInterval != 0 {
		cfg.ProbeInterval = c.ProbeInterval
	}
	if c.SuccessThreshold != 0 {
		cfg.SuccessThreshold = c.SuccessThreshold
	}
	if c.TimerTimeout != 0 {
		cfg.TimerTimeout = c.TimerTimeout
	}
	if c.RecoveryRetryLimit != nil {
		cfg.RecoveryRetryLimit = *c.RecoveryRetryLimit
	}
	if c.CacheToleranceDB != nil {
		cfg.CacheToleranceDB = *c.CacheToleranceDB
	}
	if c.FrameBytes != 0 {
		cfg.Latency.FrameBytes = c.FrameBytes
	}
	return cfg
}

// NewController builds the controller the scenario names.
func (s *Scenario) NewController(opts ...ratectl.Option) (ratectl.Controller, error) {
	algo, err := s.algorithm()
	if err != nil {
		return nil, err
	}
	cat, err := s.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ratectl.ErrConfiguration, err)
	}
	if algo == ratectl.AlgorithmLatency {
		return ratectl.NewLatencyController(cat, s.ControllerConfig(), opts...)
	}
	return ratectl.NewThresholdController(cat, s.ControllerConfig(), opts...)
}

func (c ChannelSpec) provider(seed uint64) (channel.Provider, error) {
	budget := channel.LinkBudget{
		FrequencyGHz:  c.Budget.FrequencyGHz,
		BandwidthMHz:  c.Budget.BandwidthMHz,
		TxPowerDBm:    c.Budget.TxPowerDBm,
		TxGainDBi:     c.Budget.TxGainDBi,
		RxGainDBi:     c.Budget.RxGainDBi,
		NoiseFigureDB: c.Budget.NoiseFigureDB,
	}
	budget = budget.ApplyDefaults()

	switch strings.ToLower(c.Type) {
	case "static", "":
		return channel.Static(c.SNR), nil
	case "random_walk", "randomwalk":
		step := time.Millisecond
		if c.Step != "" {
			d, err := time.ParseDuration(c.Step)
			if err != nil {
				return nil, fmt.Errorf("random walk step: %w", err)
			}
			step = d
		}
		return channel.NewRandomWalk(c.Start, c.Sigma, c.Min, c.Max, step, seed)
	case "distance":
		if c.DistanceKm <= 0 {
			return nil, fmt.Errorf("distance_km must be positive")
		}
		return channel.Distance{Budget: budget, Km: c.DistanceKm}, nil
	case "orbital":
		o, err := channel.NewOrbital(c.TLE1, c.TLE2, c.LatitudeDeg, c.LongitudeDeg, c.AltitudeKm, budget)
		if err != nil {
			return nil, err
		}
		o.MinElevationDeg = c.MinElevationDeg
		return o, nil
	default:
		return nil, fmt.Errorf("unknown channel type %q", c.Type)
	}
}
