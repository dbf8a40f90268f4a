package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/linkrate/channel"
	"github.com/signalsfoundry/linkrate/internal/logging"
	"github.com/signalsfoundry/linkrate/internal/observability"
	"github.com/signalsfoundry/linkrate/phy"
	"github.com/signalsfoundry/linkrate/ratectl"
	"github.com/signalsfoundry/linkrate/registry"
	"github.com/signalsfoundry/linkrate/timectrl"
)

// Option customises a Driver.
type Option func(*Driver)

// WithLogger sets the driver and controller logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Driver) { d.log = logging.OrNoop(l) }
}

// WithSimCollector records driver metrics.
func WithSimCollector(c *observability.SimCollector) Option {
	return func(d *Driver) { d.metrics = c }
}

// WithRateRecorder records controller metrics.
func WithRateRecorder(r ratectl.MetricsRecorder) Option {
	return func(d *Driver) { d.rateMetrics = r }
}

// WithWallClock replaces the wall clock used for realtime pacing and frame
// timing.
func WithWallClock(c clock.Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.wall = c
		}
	}
}

// WithStart sets the simulation epoch. Default: the wall clock's now.
func WithStart(t time.Time) Option {
	return func(d *Driver) { d.start = t }
}

// Driver steps every station of a scenario through the frame clock. A
// Driver runs once.
type Driver struct {
	scenario *Scenario
	ctrl     ratectl.Controller
	reg      *registry.Registry
	model    ratectl.LatencyModel
	ackMode  phy.Mode

	log         logging.Logger
	metrics     *observability.SimCollector
	rateMetrics ratectl.MetricsRecorder
	wall        clock.Clock
	start       time.Time

	runs      []*stationRun
	byStation map[*ratectl.Station]*stationRun

	delivered atomic.Uint64
	completed atomic.Uint64
	ran       atomic.Bool
}

type stationRun struct {
	spec     StationSpec
	station  *ratectl.Station
	provider channel.Provider
	src      rand.Source
	zero     distuv.Bernoulli
	stats    StationReport
	snrSum   float64
	snrCount uint64
	span     trace.Span
}

// NewDriver builds the controller, registry and channels of s.
func NewDriver(s *Scenario, opts ...Option) (*Driver, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		scenario:  s,
		log:       logging.Noop(),
		wall:      clock.New(),
		byStation: make(map[*ratectl.Station]*stationRun, len(s.Stations)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.start.IsZero() {
		d.start = d.wall.Now().UTC()
	}
	d.log = d.log.With(logging.String("scenario", s.Name))

	ctrlOpts := []ratectl.Option{ratectl.WithLogger(d.log)}
	if d.rateMetrics != nil {
		ctrlOpts = append(ctrlOpts, ratectl.WithMetricsRecorder(d.rateMetrics))
	}
	ctrl, err := s.NewController(ctrlOpts...)
	if err != nil {
		return nil, err
	}
	d.ctrl = ctrl
	d.model = s.ControllerConfig().Latency.ApplyDefaults()
	table := ctrl.Table()
	d.ackMode = table.Entry(table.RTS()).Config.Mode

	capacity := s.RegistryCapacity
	if capacity == 0 {
		capacity = max(registry.DefaultCapacity, len(s.Stations))
	}
	reg, err := registry.New(ctrl, registry.Config{Capacity: capacity})
	if err != nil {
		return nil, err
	}
	d.reg = reg
	reg.Subscribe(d.onRegistryEvent)

	for i, spec := range s.Stations {
		seed := s.Seed + uint64(i)
		provider, err := spec.Channel.provider(seed)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", spec.Address, err)
		}
		st, _ := reg.GetOrCreate(spec.Address)
		run := &stationRun{
			spec:     spec,
			station:  st,
			provider: provider,
			src:      rand.NewPCG(s.Seed, uint64(i)+1),
		}
		run.zero = distuv.Bernoulli{P: s.ZeroSampleProbability, Src: rand.NewPCG(s.Seed^0x5eed, uint64(i)+1)}
		run.stats.Address = spec.Address
		d.runs = append(d.runs, run)
		d.byStation[st] = run
	}

	ctrl.OnRateChange(d.onRateChange)
	return d, nil
}

// Controller returns the controller the driver feeds.
func (d *Driver) Controller() ratectl.Controller { return d.ctrl }

// Registry returns the station registry.
func (d *Driver) Registry() *registry.Registry { return d.reg }

// Run steps the scenario to completion or until ctx is cancelled and
// returns the report. A cancelled run returns the partial report along
// with the context error.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if !d.ran.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("sim: driver already ran")
	}

	algo := d.ctrl.Algorithm().String()
	ctx, span := observability.Tracer().Start(ctx, "ratesim.run", trace.WithAttributes(
		attribute.String("scenario", d.scenario.Name),
		attribute.String("algorithm", algo),
		attribute.Int("stations", len(d.runs)),
		attribute.Int64("frames", int64(d.scenario.Frames)),
	))
	defer span.End()
	for _, run := range d.runs {
		_, run.span = observability.Tracer().Start(ctx, "ratesim.station", trace.WithAttributes(
			attribute.String("station", run.spec.Address),
			attribute.String("channel", run.spec.Channel.Type),
		))
	}

	mode, _ := timectrl.ParseMode(d.scenario.ClockMode)
	fc := timectrl.NewFrameClock(d.start, d.scenario.interval(), mode, timectrl.WithClock(d.wall))
	fc.AddListener(func(f timectrl.Frame) { d.stepFrame(ctx, f) })

	d.log.Info(ctx, "simulation starting",
		logging.String("algorithm", algo),
		logging.Int("stations", len(d.runs)),
		logging.Uint64("frames", d.scenario.Frames),
		logging.String("clock", mode.String()),
	)
	began := d.wall.Now()
	<-fc.Run(ctx, d.scenario.Frames)

	report := d.report(fc.Current(), d.wall.Since(began))
	for i, run := range d.runs {
		sr := report.Stations[i]
		run.span.SetAttributes(
			attribute.String("final_config", sr.FinalConfig),
			attribute.Int64("delivered", int64(sr.Delivered)),
			attribute.Int64("abandoned", int64(sr.Abandoned)),
			attribute.Int64("rts_abandoned", int64(sr.RTSAbandoned)),
			attribute.Int64("probes", int64(sr.Probes)),
		)
		run.span.End()
	}
	span.SetAttributes(
		attribute.Int64("frames.completed", int64(report.Frames)),
		attribute.Int64("delivered", int64(d.delivered.Load())),
	)
	d.log.Info(ctx, "simulation finished",
		logging.Uint64("frames", report.Frames),
		logging.Uint64("delivered", d.delivered.Load()),
		logging.Uint64("completed", d.completed.Load()),
		logging.Any("wall", report.Wall),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Driver) stepFrame(ctx context.Context, f timectrl.Frame) {
	began := d.wall.Now()
	workers := d.scenario.Workers
	if workers <= 1 {
		for _, run := range d.runs {
			d.step(run, f)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, run := range d.runs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				d.step(run, f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			d.log.Debug(ctx, "frame interrupted", logging.Uint64("frame", f.Index), logging.Err(err))
		}
	}
	d.metrics.ObserveFrame(d.wall.Since(began))
}

// step sends one data frame, preceded by RTS when enabled, to one station.
// Only the goroutine handling run touches its station during a frame.
func (d *Driver) step(run *stationRun, f timectrl.Frame) {
	snr, ok := run.provider.SNR(f.Time)
	reported := snr
	if !ok || run.zero.Rand() == 1 {
		reported = 0
	}
	if ok {
		run.snrSum += snr
		run.snrCount++
	}

	st := run.station
	if d.scenario.UseRTS && !d.sendRTS(run, snr, ok, reported) {
		return
	}

	cfg := d.ctrl.DataTxConfig(st)
	per := d.frameErrorRate(cfg, snr, ok)
	for attempt := uint32(1); ; attempt++ {
		if d.attempt(run, cfg, per) {
			d.ctrl.ReportDataOk(st, reported, d.ackMode, reported)
			run.stats.Delivered++
			run.stats.DeliveredBits += uint64(d.model.FrameBytes) * 8
			d.finish(observability.OutcomeDelivered)
			return
		}
		d.ctrl.ReportDataFailed(st)
		if attempt >= d.scenario.RetryLimit {
			d.ctrl.ReportFinalDataFailed(st)
			run.stats.Abandoned++
			d.finish(observability.OutcomeDataAbandoned)
			return
		}
	}
}

func (d *Driver) sendRTS(run *stationRun, snr float64, ok bool, reported float64) bool {
	st := run.station
	cfg := d.ctrl.RtsTxConfig(st)
	per := d.frameErrorRate(cfg, snr, ok)
	for attempt := uint32(1); ; attempt++ {
		if d.attempt(run, cfg, per) {
			d.ctrl.ReportRtsOk(st, reported, d.ackMode, reported)
			return true
		}
		d.ctrl.ReportRtsFailed(st)
		if attempt >= d.scenario.RetryLimit {
			d.ctrl.ReportFinalRtsFailed(st)
			run.stats.Abandoned++
			run.stats.RTSAbandoned++
			d.finish(observability.OutcomeRTSAbandoned)
			return false
		}
	}
}

// attempt accounts one transmission at cfg and draws its outcome.
func (d *Driver) attempt(run *stationRun, cfg phy.TxConfig, per float64) bool {
	run.stats.Attempts++
	run.stats.Airtime += d.model.SetupDelay + d.model.Preamble + d.model.Airtime(cfg)
	d.metrics.AddAttempts(1)
	success := distuv.Bernoulli{P: 1 - per, Src: run.src}
	return success.Rand() == 1
}

// frameErrorRate is the channel's ground truth: the logistic loss curve
// around the configuration's threshold, or certain loss without a link.
func (d *Driver) frameErrorRate(cfg phy.TxConfig, snr float64, ok bool) float64 {
	if !ok {
		return 1
	}
	return d.model.FrameErrorRate(snr, d.ctrl.Table().Threshold(cfg))
}

func (d *Driver) finish(outcome observability.Outcome) {
	total := d.completed.Add(1)
	ok := d.delivered.Load()
	if outcome == observability.OutcomeDelivered {
		ok = d.delivered.Add(1)
	}
	d.metrics.ObserveOutcome(outcome, ok, total)
}

func (d *Driver) onRateChange(rc ratectl.RateChange) {
	run, ok := d.byStation[rc.Station]
	if !ok {
		return
	}
	run.stats.RateChanges++
	if run.span != nil {
		run.span.AddEvent("rate_change", trace.WithAttributes(
			attribute.String("from", rc.From.String()),
			attribute.String("to", rc.To.String()),
			attribute.Int64("rate_bps", int64(rc.RateBps())),
		))
	}
}

func (d *Driver) onRegistryEvent(ev registry.Event) {
	d.log.Debug(context.Background(), "station "+ev.Type.String(), logging.String("station", ev.Address))
	if d.reg != nil {
		d.metrics.SetStations(d.reg.Len())
	}
}
